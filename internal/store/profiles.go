package store

import (
	"context"
	"fmt"
)

// AnonymousName is the placeholder display name for authors without a profile.
const AnonymousName = "Anonymous User"

func ensureProfile(ctx context.Context, q Querier, userID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO user_profiles (uid, display_name, email)
		VALUES ($1, $2, 'anonymous@example.com')
		ON CONFLICT (uid) DO NOTHING
	`, userID, AnonymousName)
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

// DisplayNames returns the stored display name for each known user id. Unknown
// ids are absent from the result.
func (s *PostgresStore) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	err := s.gw.Run(ctx, func(ctx context.Context, q Querier) error {
		rows, err := q.Query(ctx, `SELECT uid, display_name FROM user_profiles WHERE uid = ANY($1::text[])`, userIDs)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var uid, name string
			if err := rows.Scan(&uid, &name); err != nil {
				return err
			}
			names[uid] = name
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load display names: %w", err)
	}
	return names, nil
}

// SetDisplayName records the identity provider's display name for a user.
func (s *PostgresStore) SetDisplayName(ctx context.Context, userID, displayName string) error {
	return s.gw.Run(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO user_profiles (uid, display_name, email)
			VALUES ($1, $2, '')
			ON CONFLICT (uid) DO UPDATE SET display_name=EXCLUDED.display_name, updated_at=NOW()
		`, userID, displayName)
		if err != nil {
			return fmt.Errorf("set display name: %w", err)
		}
		return nil
	})
}
