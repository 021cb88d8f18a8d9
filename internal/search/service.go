package search

import (
	"context"

	"github.com/adelansari/tk2-track-namer/internal/store"
	log "github.com/sirupsen/logrus"
)

// RecordLoader supplies every suggestion for a full reindex.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]SuggestionRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to Postgres.
type Service struct {
	meili    *Meili
	fallback Searcher
	loader   RecordLoader
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured; loader may be nil when reindexing is not needed.
func NewService(meili *Meili, fallback Searcher, loader RecordLoader) *Service {
	return &Service{meili: meili, fallback: fallback, loader: loader}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.WithError(err).Warn("search: meilisearch error, falling back to postgres")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.WithError(err).Error("search: postgres fallback failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexSuggestion indexes a suggestion (fire-and-forget to Meilisearch).
func (s *Service) IndexSuggestion(item store.Suggestion) {
	if !s.meiliReady() {
		return
	}
	rec := RecordFor(item)
	go func() {
		if err := s.meili.IndexSuggestion(rec); err != nil {
			log.WithError(err).WithField("record", rec.ID).Warn("search: index suggestion")
		}
	}()
}

// DeleteSuggestion removes a suggestion from the index (fire-and-forget).
func (s *Service) DeleteSuggestion(kind store.Kind, id int64) {
	if !s.meiliReady() {
		return
	}
	recordID := RecordID(kind, id)
	go func() {
		if err := s.meili.DeleteSuggestion(recordID); err != nil {
			log.WithError(err).WithField("record", recordID).Warn("search: delete suggestion")
		}
	}()
}

// ReindexAllFromPG pushes every stored suggestion into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.meiliReady() || s.loader == nil {
		return
	}
	records, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		log.WithError(err).Warn("search: reindex load failed")
		return
	}
	if err := s.meili.IndexSuggestions(records); err != nil {
		log.WithError(err).Warn("search: reindex suggestions")
		return
	}
	log.WithField("count", len(records)).Info("search: reindexed suggestions")
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
