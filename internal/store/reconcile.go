package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ReconcileVotes recomputes every suggestion counter of the given kind(s) from
// the ledger, one transaction per kind, and reports how many rows were
// corrected per kind. Rows already in agreement are left untouched, so a second
// run reports zero corrections.
func (s *PostgresStore) ReconcileVotes(ctx context.Context, kind Kind) (map[Kind]int64, error) {
	fixed := make(map[Kind]int64, 2)
	for _, k := range kind.Expand() {
		stmts, err := statementsFor(k)
		if err != nil {
			return nil, err
		}
		err = s.gw.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, stmts.reconcile)
			if err != nil {
				return err
			}
			fixed[k] = tag.RowsAffected()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("reconcile %s votes: %w", k, err)
		}
	}
	return fixed, nil
}
