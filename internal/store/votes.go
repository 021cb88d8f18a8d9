package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ToggleVote casts an upvote for userID, or retracts it when one is already
// recorded. The ledger row and the suggestion's counter change in the same
// transaction, with the suggestion row locked so concurrent toggles on it are
// serialised. A lost insert race on the ledger key returns ErrConflict.
func (s *PostgresStore) ToggleVote(ctx context.Context, id int64, kind Kind, userID string) (ToggleResult, error) {
	stmts, err := statementsFor(kind)
	if err != nil {
		return ToggleResult{}, err
	}

	var result ToggleResult
	err = s.gw.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := scanSuggestion(tx.QueryRow(ctx, stmts.lockByID, id), kind); err != nil {
			return err
		}

		removed, err := tx.Exec(ctx, `
			DELETE FROM user_votes
			WHERE user_id=$1 AND suggestion_id=$2 AND suggestion_type=$3
		`, userID, id, string(kind))
		if err != nil {
			return fmt.Errorf("retract vote: %w", err)
		}

		delta := -1
		result.State = VoteRemoved
		if removed.RowsAffected() == 0 {
			inserted, err := tx.Exec(ctx, `
				INSERT INTO user_votes (user_id, suggestion_id, suggestion_type, vote_type)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (user_id, suggestion_id, suggestion_type) DO NOTHING
			`, userID, id, string(kind), UpvoteValue)
			if err != nil {
				if isUniqueViolation(err) {
					return ErrConflict
				}
				return fmt.Errorf("cast vote: %w", err)
			}
			if inserted.RowsAffected() == 0 {
				return ErrConflict
			}
			delta = 1
			result.State = VoteAdded
		}

		updated, err := scanSuggestion(tx.QueryRow(ctx, stmts.adjust, id, delta), kind)
		if err != nil {
			return fmt.Errorf("adjust vote counter: %w", err)
		}
		result.Suggestion = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return ToggleResult{}, err
		}
		return ToggleResult{}, fmt.Errorf("toggle %s vote: %w", kind, err)
	}
	return result, nil
}

// GetVote returns userID's ledger row for a suggestion, or nil. Without a
// concrete kind both kinds are checked and a track vote is preferred.
func (s *PostgresStore) GetVote(ctx context.Context, userID string, suggestionID int64, kind Kind) (*Vote, error) {
	kinds := Kinds
	if kind.Concrete() {
		kinds = []Kind{kind}
	}
	var found *Vote
	err := s.gw.Run(ctx, func(ctx context.Context, q Querier) error {
		for _, k := range kinds {
			vote := Vote{UserID: userID, SuggestionID: suggestionID, Kind: k}
			err := q.QueryRow(ctx, `
				SELECT vote_type, created_at
				FROM user_votes
				WHERE user_id=$1 AND suggestion_id=$2 AND suggestion_type=$3
			`, userID, suggestionID, string(k)).Scan(&vote.VoteType, &vote.CreatedAt)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			found = &vote
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return found, nil
}

// GetVotes returns userID's vote_type for each requested suggestion id. Every
// requested id is present, nil meaning no vote.
func (s *PostgresStore) GetVotes(ctx context.Context, userID string, suggestionIDs []int64, kind Kind) (map[int64]*int, error) {
	votes := make(map[int64]*int, len(suggestionIDs))
	for _, id := range suggestionIDs {
		votes[id] = nil
	}
	if len(suggestionIDs) == 0 {
		return votes, nil
	}

	kinds := []string{string(KindTrack), string(KindArena)}
	if kind.Concrete() {
		kinds = []string{string(kind)}
	}

	err := s.gw.Run(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, `
			SELECT suggestion_id, vote_type
			FROM user_votes
			WHERE user_id=$1
			  AND suggestion_id = ANY($2::bigint[])
			  AND suggestion_type = ANY($3::text[])
			ORDER BY suggestion_type ASC
		`, userID, suggestionIDs, kinds)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var voteType int
			if err := rows.Scan(&id, &voteType); err != nil {
				return err
			}
			// Rows arrive arena before track, so a track vote wins an id collision.
			votes[id] = &voteType
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("get votes: %w", err)
	}
	return votes, nil
}
