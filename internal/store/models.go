package store

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type Kind string

const (
	KindTrack Kind = "track"
	KindArena Kind = "arena"
	// KindAll selects both collections in list and count queries.
	KindAll Kind = "all"
)

// Kinds lists the concrete suggestion collections in probe order.
var Kinds = []Kind{KindTrack, KindArena}

// ParseKind accepts track, arena (or battle-arena) and, when allowAll is set, all.
func ParseKind(raw string, allowAll bool) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "track":
		return KindTrack, nil
	case "arena", "battle-arena":
		return KindArena, nil
	case "all":
		if allowAll {
			return KindAll, nil
		}
	}
	return "", fmt.Errorf("unknown suggestion type %q", raw)
}

func (k Kind) Concrete() bool {
	return k == KindTrack || k == KindArena
}

// Expand returns the concrete kinds a filter kind covers.
func (k Kind) Expand() []Kind {
	if k == KindAll {
		return Kinds
	}
	return []Kind{k}
}

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("requester does not own this suggestion")
	// ErrConflict reports a lost race on the vote ledger's composite key.
	ErrConflict = errors.New("vote already recorded")
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type Suggestion struct {
	ID              int64
	Kind            Kind
	ItemID          string
	UserID          string
	Text            string
	Votes           int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	UserDisplayName string
}

type NewSuggestion struct {
	Kind   Kind
	ItemID string
	UserID string
	Text   string
}

type ListFilter struct {
	Kind   Kind
	ItemID string
	Page   int
	Limit  int
}

// Offset saturates at math.MaxInt for page numbers whose offset would overflow,
// which still selects an empty page.
func (f ListFilter) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

type Vote struct {
	UserID       string
	SuggestionID int64
	Kind         Kind
	VoteType     int
	CreatedAt    time.Time
}

type VoteState string

const (
	VoteAdded   VoteState = "added"
	VoteRemoved VoteState = "removed"
)

type ToggleResult struct {
	State      VoteState
	Suggestion Suggestion
}

// UpvoteValue is the only vote_type written by the toggle.
const UpvoteValue = 1
