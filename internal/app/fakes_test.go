package app

import (
	"context"
	"fmt"

	"github.com/adelansari/tk2-track-namer/internal/store"
)

type fakeStore struct {
	pingFn             func(context.Context) error
	findSuggestionFn   func(context.Context, int64, store.Kind) (store.Suggestion, error)
	createSuggestionFn func(context.Context, store.NewSuggestion) (store.Suggestion, error)
	updateSuggestionFn func(context.Context, int64, store.Kind, string, string) (store.Suggestion, error)
	deleteSuggestionFn func(context.Context, int64, store.Kind, string, bool) error
	listSuggestionsFn  func(context.Context, store.ListFilter) ([]store.Suggestion, int, error)
	countByItemFn      func(context.Context, store.Kind, []string) (map[string]int, error)
	toggleVoteFn       func(context.Context, int64, store.Kind, string) (store.ToggleResult, error)
	getVoteFn          func(context.Context, string, int64, store.Kind) (*store.Vote, error)
	getVotesFn         func(context.Context, string, []int64, store.Kind) (map[int64]*int, error)
	reconcileVotesFn   func(context.Context, store.Kind) (map[store.Kind]int64, error)
	setDisplayNameFn   func(context.Context, string, string) error
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}
func (f *fakeStore) FindSuggestion(ctx context.Context, id int64, kind store.Kind) (store.Suggestion, error) {
	if f.findSuggestionFn != nil {
		return f.findSuggestionFn(ctx, id, kind)
	}
	return store.Suggestion{}, store.ErrNotFound
}
func (f *fakeStore) CreateSuggestion(ctx context.Context, in store.NewSuggestion) (store.Suggestion, error) {
	if f.createSuggestionFn != nil {
		return f.createSuggestionFn(ctx, in)
	}
	return store.Suggestion{}, nil
}
func (f *fakeStore) UpdateSuggestion(ctx context.Context, id int64, kind store.Kind, text, requesterID string) (store.Suggestion, error) {
	if f.updateSuggestionFn != nil {
		return f.updateSuggestionFn(ctx, id, kind, text, requesterID)
	}
	return store.Suggestion{}, nil
}
func (f *fakeStore) DeleteSuggestion(ctx context.Context, id int64, kind store.Kind, requesterID string, elevated bool) error {
	if f.deleteSuggestionFn != nil {
		return f.deleteSuggestionFn(ctx, id, kind, requesterID, elevated)
	}
	return nil
}
func (f *fakeStore) ListSuggestions(ctx context.Context, filter store.ListFilter) ([]store.Suggestion, int, error) {
	if f.listSuggestionsFn != nil {
		return f.listSuggestionsFn(ctx, filter)
	}
	return nil, 0, nil
}
func (f *fakeStore) CountByItem(ctx context.Context, kind store.Kind, itemIDs []string) (map[string]int, error) {
	if f.countByItemFn != nil {
		return f.countByItemFn(ctx, kind, itemIDs)
	}
	counts := make(map[string]int, len(itemIDs))
	for _, id := range itemIDs {
		counts[id] = 0
	}
	return counts, nil
}
func (f *fakeStore) ToggleVote(ctx context.Context, id int64, kind store.Kind, userID string) (store.ToggleResult, error) {
	if f.toggleVoteFn != nil {
		return f.toggleVoteFn(ctx, id, kind, userID)
	}
	return store.ToggleResult{}, nil
}
func (f *fakeStore) GetVote(ctx context.Context, userID string, id int64, kind store.Kind) (*store.Vote, error) {
	if f.getVoteFn != nil {
		return f.getVoteFn(ctx, userID, id, kind)
	}
	return nil, nil
}
func (f *fakeStore) GetVotes(ctx context.Context, userID string, ids []int64, kind store.Kind) (map[int64]*int, error) {
	if f.getVotesFn != nil {
		return f.getVotesFn(ctx, userID, ids, kind)
	}
	return map[int64]*int{}, nil
}
func (f *fakeStore) ReconcileVotes(ctx context.Context, kind store.Kind) (map[store.Kind]int64, error) {
	if f.reconcileVotesFn != nil {
		return f.reconcileVotesFn(ctx, kind)
	}
	return map[store.Kind]int64{}, nil
}
func (f *fakeStore) SetDisplayName(ctx context.Context, userID, name string) error {
	if f.setDisplayNameFn != nil {
		return f.setDisplayNameFn(ctx, userID, name)
	}
	return nil
}

type fakeNames struct {
	names       map[string]string
	err         error
	invalidated []string
}

func (f *fakeNames) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for _, id := range ids {
		if name, ok := f.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (f *fakeNames) Invalidate(_ context.Context, userID string) error {
	f.invalidated = append(f.invalidated, userID)
	return nil
}

type fakeSchema struct {
	schema  string
	current string
	err     error
}

func (f fakeSchema) Schema() string { return f.schema }
func (f fakeSchema) CurrentSchema(context.Context) (string, error) {
	return f.current, f.err
}

// memoryVotes is an in-memory suggestion table plus ledger used to exercise
// the toggle protocol end to end through the HTTP layer.
type memoryVotes struct {
	suggestions map[store.Kind]map[int64]*store.Suggestion
	ledger      map[string]bool
	nextID      map[store.Kind]int64
}

func newMemoryVotes() *memoryVotes {
	return &memoryVotes{
		suggestions: map[store.Kind]map[int64]*store.Suggestion{store.KindTrack: {}, store.KindArena: {}},
		ledger:      map[string]bool{},
		nextID:      map[store.Kind]int64{},
	}
}

func ledgerKey(userID string, id int64, kind store.Kind) string {
	return fmt.Sprintf("%s|%s|%d", userID, kind, id)
}

func (m *memoryVotes) install(fs *fakeStore) {
	fs.createSuggestionFn = func(_ context.Context, in store.NewSuggestion) (store.Suggestion, error) {
		m.nextID[in.Kind]++
		item := &store.Suggestion{ID: m.nextID[in.Kind], Kind: in.Kind, ItemID: in.ItemID, UserID: in.UserID, Text: in.Text}
		m.suggestions[in.Kind][item.ID] = item
		return *item, nil
	}
	fs.findSuggestionFn = func(_ context.Context, id int64, kind store.Kind) (store.Suggestion, error) {
		kinds := []store.Kind{store.KindTrack, store.KindArena}
		if kind.Concrete() {
			kinds = []store.Kind{kind}
		}
		for _, k := range kinds {
			if item, ok := m.suggestions[k][id]; ok {
				return *item, nil
			}
		}
		return store.Suggestion{}, store.ErrNotFound
	}
	fs.toggleVoteFn = func(_ context.Context, id int64, kind store.Kind, userID string) (store.ToggleResult, error) {
		item, ok := m.suggestions[kind][id]
		if !ok {
			return store.ToggleResult{}, store.ErrNotFound
		}
		key := ledgerKey(userID, id, kind)
		if m.ledger[key] {
			delete(m.ledger, key)
			if item.Votes > 0 {
				item.Votes--
			}
			return store.ToggleResult{State: store.VoteRemoved, Suggestion: *item}, nil
		}
		m.ledger[key] = true
		item.Votes++
		return store.ToggleResult{State: store.VoteAdded, Suggestion: *item}, nil
	}
	fs.deleteSuggestionFn = func(_ context.Context, id int64, kind store.Kind, requesterID string, elevated bool) error {
		item, ok := m.suggestions[kind][id]
		if !ok {
			return store.ErrNotFound
		}
		if !elevated && item.UserID != requesterID {
			return store.ErrUnauthorized
		}
		delete(m.suggestions[kind], id)
		return nil
	}
}
