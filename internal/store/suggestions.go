package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"github.com/adelansari/tk2-track-namer/internal/rbac"
)

// PostgresStore owns the suggestion collections, the vote ledger and the local
// profile table. All access goes through the Gateway.
type PostgresStore struct {
	gw *Gateway
}

func NewPostgresStore(gw *Gateway) *PostgresStore {
	return &PostgresStore{gw: gw}
}

func (s *PostgresStore) Gateway() *Gateway {
	return s.gw
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.gw.Ping(ctx)
}

func scanSuggestion(row pgx.Row, kind Kind) (Suggestion, error) {
	item := Suggestion{Kind: kind}
	err := row.Scan(&item.ID, &item.ItemID, &item.UserID, &item.Text, &item.Votes, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Suggestion{}, ErrNotFound
	}
	return item, err
}

func scanTaggedSuggestion(row pgx.Row) (Suggestion, error) {
	var item Suggestion
	var kind string
	if err := row.Scan(&item.ID, &item.ItemID, &item.UserID, &item.Text, &item.Votes, &item.CreatedAt, &item.UpdatedAt, &kind); err != nil {
		return Suggestion{}, err
	}
	item.Kind = Kind(kind)
	return item, nil
}

// FindSuggestion looks a suggestion up by id. With a concrete kind only that
// collection is probed. Without one both are probed and the track row wins,
// which is ambiguous when both collections hold the id.
func (s *PostgresStore) FindSuggestion(ctx context.Context, id int64, kind Kind) (Suggestion, error) {
	if kind.Concrete() {
		stmts, err := statementsFor(kind)
		if err != nil {
			return Suggestion{}, err
		}
		var item Suggestion
		err = s.gw.Run(ctx, func(ctx context.Context, q Querier) error {
			var scanErr error
			item, scanErr = scanSuggestion(q.QueryRow(ctx, stmts.selectByID, id), kind)
			return scanErr
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Suggestion{}, fmt.Errorf("find %s suggestion: %w", kind, err)
		}
		return item, err
	}
	return s.findAnyKind(ctx, id)
}

func (s *PostgresStore) findAnyKind(ctx context.Context, id int64) (Suggestion, error) {
	var matches []Suggestion
	err := s.gw.Run(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, findAnyStatement, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var item Suggestion
			var kind string
			var probe int
			if err := rows.Scan(&item.ID, &item.ItemID, &item.UserID, &item.Text, &item.Votes, &item.CreatedAt, &item.UpdatedAt, &kind, &probe); err != nil {
				return err
			}
			item.Kind = Kind(kind)
			matches = append(matches, item)
		}
		return rows.Err()
	})
	if err != nil {
		return Suggestion{}, fmt.Errorf("find suggestion: %w", err)
	}
	if len(matches) == 0 {
		return Suggestion{}, ErrNotFound
	}
	if len(matches) > 1 {
		log.WithField("suggestion_id", id).Warn("store: suggestion id exists in both collections; resolved to track, send a type to disambiguate")
	}
	return matches[0], nil
}

func (s *PostgresStore) CreateSuggestion(ctx context.Context, in NewSuggestion) (Suggestion, error) {
	stmts, err := statementsFor(in.Kind)
	if err != nil {
		return Suggestion{}, err
	}
	var item Suggestion
	err = s.gw.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := ensureProfile(ctx, tx, in.UserID); err != nil {
			return err
		}
		var scanErr error
		item, scanErr = scanSuggestion(tx.QueryRow(ctx, stmts.insert, in.ItemID, in.UserID, in.Text), in.Kind)
		return scanErr
	})
	if err != nil {
		return Suggestion{}, fmt.Errorf("insert %s suggestion: %w", in.Kind, err)
	}
	return item, nil
}

// lockOwned loads and row-locks a suggestion, then checks that role may apply
// action to it given whether requesterID authored it.
func lockOwned(ctx context.Context, tx pgx.Tx, stmts kindStatements, id int64, requesterID string, role rbac.Role, action rbac.Action) (Suggestion, error) {
	item, err := scanSuggestion(tx.QueryRow(ctx, stmts.lockByID, id), stmts.kind)
	if err != nil {
		return Suggestion{}, err
	}
	if !rbac.Can(role, action, requesterID != "" && item.UserID == requesterID) {
		return Suggestion{}, ErrUnauthorized
	}
	return item, nil
}

// UpdateSuggestion replaces the text of a suggestion owned by requesterID.
func (s *PostgresStore) UpdateSuggestion(ctx context.Context, id int64, kind Kind, text, requesterID string) (Suggestion, error) {
	stmts, err := statementsFor(kind)
	if err != nil {
		return Suggestion{}, err
	}
	var item Suggestion
	err = s.gw.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := lockOwned(ctx, tx, stmts, id, requesterID, rbac.For(requesterID, false), rbac.ActionEdit); err != nil {
			return err
		}
		var scanErr error
		item, scanErr = scanSuggestion(tx.QueryRow(ctx, stmts.updateText, id, text), kind)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
			return Suggestion{}, err
		}
		return Suggestion{}, fmt.Errorf("update %s suggestion: %w", kind, err)
	}
	return item, nil
}

// DeleteSuggestion hard-deletes a suggestion and its ledger rows. Non-owners
// need elevated set.
func (s *PostgresStore) DeleteSuggestion(ctx context.Context, id int64, kind Kind, requesterID string, elevated bool) error {
	stmts, err := statementsFor(kind)
	if err != nil {
		return err
	}
	err = s.gw.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := lockOwned(ctx, tx, stmts, id, requesterID, rbac.For(requesterID, elevated), rbac.ActionDelete); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_votes WHERE suggestion_id=$1 AND suggestion_type=$2`, id, string(kind)); err != nil {
			return fmt.Errorf("delete ledger rows: %w", err)
		}
		if _, err := tx.Exec(ctx, stmts.delete, id); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
			return err
		}
		return fmt.Errorf("delete %s suggestion: %w", kind, err)
	}
	return nil
}

// ListSuggestions returns one page ordered by created_at then votes, newest and
// most voted first, plus the total number of matching rows across the selected
// collections.
func (s *PostgresStore) ListSuggestions(ctx context.Context, filter ListFilter) ([]Suggestion, int, error) {
	var statement string
	if filter.Kind == KindAll {
		statement = listAllStatement
	} else {
		stmts, err := statementsFor(filter.Kind)
		if err != nil {
			return nil, 0, err
		}
		statement = listOneStatement(stmts)
	}

	var itemFilter any
	if filter.ItemID != "" {
		itemFilter = filter.ItemID
	}

	items := make([]Suggestion, 0)
	total := 0
	err := s.gw.Run(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, statement, itemFilter, filter.Limit, filter.Offset())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			item, err := scanTaggedSuggestion(rows)
			if err != nil {
				return fmt.Errorf("scan suggestion: %w", err)
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, kind := range filter.Kind.Expand() {
			stmts := statementsByKind[kind]
			var count int
			if err := q.QueryRow(ctx, stmts.count, itemFilter).Scan(&count); err != nil {
				return fmt.Errorf("count %s suggestions: %w", kind, err)
			}
			total += count
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list suggestions: %w", err)
	}
	return items, total, nil
}

// CountByItem returns the number of suggestions per item id. Every requested id
// is present in the result, with 0 when it has no suggestions.
func (s *PostgresStore) CountByItem(ctx context.Context, kind Kind, itemIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(itemIDs))
	for _, itemID := range itemIDs {
		counts[itemID] = 0
	}
	if len(itemIDs) == 0 {
		return counts, nil
	}
	err := s.gw.Run(ctx, func(ctx context.Context, q Querier) error {
		for _, k := range kind.Expand() {
			stmts, err := statementsFor(k)
			if err != nil {
				return err
			}
			rows, err := q.Query(ctx, stmts.countItems, itemIDs)
			if err != nil {
				return err
			}
			for rows.Next() {
				var itemID string
				var count int
				if err := rows.Scan(&itemID, &count); err != nil {
					rows.Close()
					return fmt.Errorf("scan item count: %w", err)
				}
				counts[itemID] += count
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count suggestions by item: %w", err)
	}
	return counts, nil
}
