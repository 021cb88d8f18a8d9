// Package identity resolves user ids to display names for suggestion
// enrichment. Names come from the local profile table, optionally fronted by a
// Redis cache.
package identity

import (
	"context"
	"fmt"
)

// AnonymousName labels authors without a known display name.
const AnonymousName = "Anonymous User"

// Resolver returns a display name for every requested user id.
type Resolver interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// NameSource is the profile lookup behind a ProfileResolver. Unknown ids are
// absent from its result.
type NameSource interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// ProfileResolver fills gaps left by its source with AnonymousName.
type ProfileResolver struct {
	source NameSource
}

func NewProfileResolver(source NameSource) *ProfileResolver {
	return &ProfileResolver{source: source}
}

func (r *ProfileResolver) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	ids := Unique(userIDs)
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	found, err := r.source.DisplayNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve display names: %w", err)
	}
	for _, id := range ids {
		name := found[id]
		if name == "" {
			name = AnonymousName
		}
		names[id] = name
	}
	return names, nil
}

// Unique drops empty and repeated ids, keeping first-seen order.
func Unique(userIDs []string) []string {
	seen := make(map[string]struct{}, len(userIDs))
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
