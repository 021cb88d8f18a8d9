package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/adelansari/tk2-track-namer/internal/search"
	"github.com/adelansari/tk2-track-namer/internal/store"
)

type fakeSearch struct {
	queries []search.Query
	indexed []store.Suggestion
	deleted []string
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.queries = append(f.queries, q)
	return search.Response{
		Results: []search.Result{{ID: 1, Type: string(store.KindTrack), ItemID: "track-01", Name: "Forest Circuit"}},
		Total:   1,
		Query:   q.Text,
	}
}

func (f *fakeSearch) IndexSuggestion(item store.Suggestion) {
	f.indexed = append(f.indexed, item)
}

func (f *fakeSearch) DeleteSuggestion(kind store.Kind, id int64) {
	f.deleted = append(f.deleted, search.RecordID(kind, id))
}

func TestCountsDefaultToCatalogItems(t *testing.T) {
	var gotIDs []string
	fs := &fakeStore{
		countByItemFn: func(_ context.Context, kind store.Kind, ids []string) (map[string]int, error) {
			if kind != store.KindArena {
				t.Fatalf("expected arena counts, got %q", kind)
			}
			gotIDs = ids
			counts := make(map[string]int, len(ids))
			for _, id := range ids {
				counts[id] = 0
			}
			counts["arena-01"] = 3
			return counts, nil
		},
	}
	handler := newTestServer(fs, Deps{Catalog: mustCatalog(t)})

	rr, payload := doJSON(t, handler, http.MethodGet, "/api/suggestions?countsOnly=true&type=arena", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	if len(gotIDs) != 8 {
		t.Fatalf("expected all 8 arenas, got %v", gotIDs)
	}
	counts := payload["counts"].(map[string]any)
	if len(counts) != 8 || counts["arena-01"] != float64(3) || counts["arena-08"] != float64(0) {
		t.Fatalf("unexpected counts: %v", counts)
	}

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/suggestions?countsOnly=true&type=arena&itemIds=arena-01,arena-02&itemIds=arena-05", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if len(gotIDs) != 3 || gotIDs[2] != "arena-05" {
		t.Fatalf("explicit ids not forwarded: %v", gotIDs)
	}
	if counts := payload["counts"].(map[string]any); len(counts) != 3 {
		t.Fatalf("expected an entry per requested id, got %v", counts)
	}
}

func TestCatalogEndpoint(t *testing.T) {
	fs := &fakeStore{
		countByItemFn: func(_ context.Context, kind store.Kind, ids []string) (map[string]int, error) {
			counts := map[string]int{}
			if kind == store.KindTrack {
				counts["track-01"] = 2
			}
			return counts, nil
		},
	}
	handler := newTestServer(fs, Deps{Catalog: mustCatalog(t)})

	rr, payload := doJSON(t, handler, http.MethodGet, "/api/catalog", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	items := payload["items"].([]any)
	if len(items) != 24 {
		t.Fatalf("expected 16 tracks and 8 arenas, got %d", len(items))
	}
	first := items[0].(map[string]any)
	if first["id"] != "track-01" || first["type"] != "track" || first["suggestion_count"] != float64(2) {
		t.Fatalf("unexpected first entry: %v", first)
	}

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/catalog?type=arena", nil, nil)
	if rr.Code != http.StatusOK || len(payload["items"].([]any)) != 8 {
		t.Fatalf("expected 8 arenas: %d %v", rr.Code, payload)
	}

	unconfigured := newTestServer(fs, Deps{})
	rr, payload = doJSON(t, unconfigured, http.MethodGet, "/api/catalog", nil, nil)
	expectError(t, rr, payload, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE")
}

func TestSearchEndpoint(t *testing.T) {
	idx := &fakeSearch{}
	handler := newTestServer(&fakeStore{}, Deps{Search: idx})

	rr, payload := doJSON(t, handler, http.MethodGet, "/api/suggestions/search?q=forest&type=track&limit=5", nil, nil)
	if rr.Code != http.StatusOK || payload["total"] != float64(1) || payload["query"] != "forest" {
		t.Fatalf("unexpected response: %d %v", rr.Code, payload)
	}
	if len(idx.queries) != 1 || idx.queries[0].Kind != store.KindTrack || idx.queries[0].Limit != 5 {
		t.Fatalf("unexpected query: %+v", idx.queries)
	}

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/suggestions/search?q=%20", nil, nil)
	expectError(t, rr, payload, http.StatusBadRequest, "VALIDATION_ERROR")

	rr, _ = doJSON(t, handler, http.MethodGet, "/api/suggestions/search?q=forest&limit=500", nil, nil)
	if rr.Code != http.StatusOK || idx.queries[1].Limit != 100 {
		t.Fatalf("expected limit capped at 100: %d %+v", rr.Code, idx.queries)
	}

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/suggestions/search?q=forest&limit=0", nil, nil)
	expectError(t, rr, payload, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestWritesKeepSearchIndexInStep(t *testing.T) {
	idx := &fakeSearch{}
	fs := &fakeStore{}
	newMemoryVotes().install(fs)
	handler := newTestServer(fs, Deps{Search: idx})

	rr, _ := doJSON(t, handler, http.MethodPost, "/api/suggestions", map[string]any{
		"type": "track", "item_id": "track-03", "name": "Molten Mile", "user_id": "u1",
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("create failed: %d", rr.Code)
	}
	rr, _ = doJSON(t, handler, http.MethodDelete, "/api/suggestions/1?user_id=u1&type=track", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rr.Code)
	}
	if len(idx.indexed) != 1 || idx.indexed[0].Text != "Molten Mile" {
		t.Fatalf("unexpected indexed records: %+v", idx.indexed)
	}
	if len(idx.deleted) != 1 || idx.deleted[0] != "track-1" {
		t.Fatalf("unexpected deleted records: %v", idx.deleted)
	}
}

func TestUserDisplayName(t *testing.T) {
	names := &fakeNames{names: map[string]string{"u1": "Speedy"}}
	var stored map[string]string
	fs := &fakeStore{
		setDisplayNameFn: func(_ context.Context, userID, name string) error {
			stored = map[string]string{userID: name}
			return nil
		},
	}
	handler := newTestServer(fs, Deps{Names: names})

	rr, payload := doJSON(t, handler, http.MethodGet, "/api/users/u1", nil, nil)
	if rr.Code != http.StatusOK || payload["display_name"] != "Speedy" || payload["uid"] != "u1" {
		t.Fatalf("unexpected response: %d %v", rr.Code, payload)
	}
	rr, payload = doJSON(t, handler, http.MethodGet, "/api/users/ghost", nil, nil)
	if rr.Code != http.StatusOK || payload["display_name"] != "Anonymous User" {
		t.Fatalf("unknown users read as anonymous: %d %v", rr.Code, payload)
	}

	rr, payload = doJSON(t, handler, http.MethodPut, "/api/users/u1", map[string]any{"user_id": "u2", "display_name": "Sneaky"}, nil)
	expectError(t, rr, payload, http.StatusForbidden, "UNAUTHORIZED")
	if stored != nil {
		t.Fatal("a mismatched user must not write")
	}

	rr, payload = doJSON(t, handler, http.MethodPut, "/api/users/u1", map[string]any{"user_id": "u1", "display_name": " Turbo "}, nil)
	if rr.Code != http.StatusOK || payload["display_name"] != "Turbo" {
		t.Fatalf("unexpected response: %d %v", rr.Code, payload)
	}
	if stored["u1"] != "Turbo" {
		t.Fatalf("unexpected stored names: %v", stored)
	}
	if len(names.invalidated) != 1 || names.invalidated[0] != "u1" {
		t.Fatalf("expected cache invalidation for u1, got %v", names.invalidated)
	}
}

func TestDisplayNameFailuresDegradeToAnonymous(t *testing.T) {
	fs := &fakeStore{
		findSuggestionFn: func(_ context.Context, id int64, _ store.Kind) (store.Suggestion, error) {
			return store.Suggestion{ID: id, Kind: store.KindTrack, UserID: "u1", Text: "Shiny Shroom"}, nil
		},
	}
	handler := newTestServer(fs, Deps{Names: &fakeNames{err: errors.New("redis down")}})
	rr, payload := doJSON(t, handler, http.MethodGet, "/api/suggestions/1", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if suggestionOf(t, payload)["user_display_name"] != "Anonymous User" {
		t.Fatalf("unexpected display name: %v", payload)
	}
}
