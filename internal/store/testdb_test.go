package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

// openTestGateway returns a gateway pinned to a throwaway schema with all
// migrations applied. The schema is dropped when the test ends.
func openTestGateway(t *testing.T) (*Gateway, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("TRACKNAMER_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TRACKNAMER_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	pool, err := Open(ctx, dsn, PoolOptions{MaxConns: 10})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	schema := fmt.Sprintf("tk2_test_%d", time.Now().UnixNano())
	gw, err := NewGateway(pool, schema)
	if err != nil {
		pool.Close()
		t.Fatalf("new gateway: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
		pool.Close()
	})

	if err := ApplyMigrations(ctx, gw, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return gw, ctx
}

func ledgerCount(t *testing.T, ctx context.Context, gw *Gateway, id int64, kind Kind) int {
	t.Helper()
	var count int
	err := gw.Run(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRow(ctx, `
			SELECT COUNT(*) FROM user_votes
			WHERE suggestion_id=$1 AND suggestion_type=$2 AND vote_type=1
		`, id, string(kind)).Scan(&count)
	})
	if err != nil {
		t.Fatalf("count ledger rows: %v", err)
	}
	return count
}

func mustCreate(t *testing.T, ctx context.Context, s *PostgresStore, kind Kind, itemID, userID, text string) Suggestion {
	t.Helper()
	item, err := s.CreateSuggestion(ctx, NewSuggestion{Kind: kind, ItemID: itemID, UserID: userID, Text: text})
	if err != nil {
		t.Fatalf("create %s suggestion: %v", kind, err)
	}
	return item
}
