package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type sampleSuggestion struct {
	kind   Kind
	itemID string
	userID string
	text   string
}

var sampleSuggestions = []sampleSuggestion{
	{KindTrack, "track-01", "seed-user", "Forest Circuit"},
	{KindTrack, "track-01", "seed-user-2", "Woodland Way"},
	{KindTrack, "track-02", "seed-user", "Mushroom Madness"},
	{KindArena, "arena-01", "seed-user", "Lava Dome"},
	{KindArena, "arena-02", "seed-user-2", "Frost Arena"},
}

// SeedSamples inserts a handful of sample suggestions into collections that are
// still empty. It returns the number of suggestions inserted.
func (s *PostgresStore) SeedSamples(ctx context.Context) (int, error) {
	inserted := 0
	err := s.gw.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		empty := make(map[Kind]bool, len(Kinds))
		for _, kind := range Kinds {
			var isEmpty bool
			if err := tx.QueryRow(ctx, statementsByKind[kind].isEmpty).Scan(&isEmpty); err != nil {
				return fmt.Errorf("check %s collection: %w", kind, err)
			}
			empty[kind] = isEmpty
		}
		for _, sample := range sampleSuggestions {
			if !empty[sample.kind] {
				continue
			}
			if err := ensureProfile(ctx, tx, sample.userID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, statementsByKind[sample.kind].insert, sample.itemID, sample.userID, sample.text); err != nil {
				return fmt.Errorf("seed %s suggestion: %w", sample.kind, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
