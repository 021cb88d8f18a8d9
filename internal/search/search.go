package search

import (
	"context"
	"strconv"
	"strings"

	"github.com/adelansari/tk2-track-namer/internal/store"
)

// Result is a single suggestion hit returned to the caller.
type Result struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	ItemID    string `json:"item_id"`
	Name      string `json:"name"`
	Highlight string `json:"highlight,omitempty"`
	Votes     int    `json:"votes"`
}

// Query describes a search request. An empty Kind searches both collections.
type Query struct {
	Text  string
	Kind  store.Kind
	Limit int
}

func (q Query) kindFilter() string {
	if q.Kind.Concrete() {
		return string(q.Kind)
	}
	return ""
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a suggestion name search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// SuggestionRecord is the data we index for a suggestion. Suggestion ids repeat
// across kinds, so the index key combines both.
type SuggestionRecord struct {
	ID           string `json:"id"`
	SuggestionID int64  `json:"suggestionId"`
	Type         string `json:"type"`
	ItemID       string `json:"itemId"`
	Name         string `json:"name"`
	Votes        int    `json:"votes"`
}

func RecordID(kind store.Kind, id int64) string {
	return string(kind) + "-" + strconv.FormatInt(id, 10)
}

func RecordFor(s store.Suggestion) SuggestionRecord {
	return SuggestionRecord{
		ID:           RecordID(s.Kind, s.ID),
		SuggestionID: s.ID,
		Type:         string(s.Kind),
		ItemID:       s.ItemID,
		Name:         s.Text,
		Votes:        s.Votes,
	}
}

// escapeLike quotes the ILIKE wildcards in user input.
func escapeLike(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(text)
}
