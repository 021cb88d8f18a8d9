package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/adelansari/tk2-track-namer/internal/store"
)

const pgMatches = `
	SELECT id, track_id AS item_id, name, votes, 'track'::text AS suggestion_type
	FROM track_suggestions WHERE name ILIKE $1
	UNION ALL
	SELECT id, arena_id AS item_id, name, votes, 'arena'::text AS suggestion_type
	FROM arena_suggestions WHERE name ILIKE $1`

const pgAllSuggestions = `
	SELECT id, track_id, name, votes, 'track'::text FROM track_suggestions
	UNION ALL
	SELECT id, arena_id, name, votes, 'arena'::text FROM arena_suggestions`

// PgSearch implements Searcher with ILIKE matching over both suggestion
// tables. It is the fallback when Meilisearch is absent or unhealthy.
type PgSearch struct {
	gw *store.Gateway
}

func NewPgSearch(gw *store.Gateway) *PgSearch {
	return &PgSearch{gw: gw}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

func (p *PgSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}
	pattern := "%" + escapeLike(text) + "%"
	var kind any
	if k := q.kindFilter(); k != "" {
		kind = k
	}

	var results []Result
	var total int
	err := p.gw.Run(ctx, func(ctx context.Context, db store.Querier) error {
		if err := db.QueryRow(ctx, `
			SELECT count(*) FROM (`+pgMatches+`) sub
			WHERE ($2::text IS NULL OR suggestion_type = $2)
		`, pattern, kind).Scan(&total); err != nil {
			return fmt.Errorf("count: %w", err)
		}

		rows, err := db.Query(ctx, `
			SELECT id, item_id, name, votes, suggestion_type FROM (`+pgMatches+`) sub
			WHERE ($2::text IS NULL OR suggestion_type = $2)
			ORDER BY votes DESC, suggestion_type ASC, id DESC
			LIMIT $3
		`, pattern, kind, q.limit())
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r Result
			if err := rows.Scan(&r.ID, &r.ItemID, &r.Name, &r.Votes, &r.Type); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			results = append(results, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("pg search: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords returns every suggestion for full reindexing.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]SuggestionRecord, error) {
	records := make([]SuggestionRecord, 0)
	err := p.gw.Run(ctx, func(ctx context.Context, db store.Querier) error {
		rows, err := db.Query(ctx, pgAllSuggestions)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r SuggestionRecord
			if err := rows.Scan(&r.SuggestionID, &r.ItemID, &r.Name, &r.Votes, &r.Type); err != nil {
				return fmt.Errorf("scan suggestion: %w", err)
			}
			r.ID = RecordID(store.Kind(r.Type), r.SuggestionID)
			records = append(records, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}
	return records, nil
}
