package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adelansari/tk2-track-namer/internal/auth"
	"github.com/adelansari/tk2-track-namer/internal/catalog"
	"github.com/adelansari/tk2-track-namer/internal/identity"
	"github.com/adelansari/tk2-track-namer/internal/search"
	"github.com/adelansari/tk2-track-namer/internal/store"
)

// SuggestionStore is the persistence surface the service needs.
type SuggestionStore interface {
	Ping(ctx context.Context) error
	FindSuggestion(ctx context.Context, id int64, kind store.Kind) (store.Suggestion, error)
	CreateSuggestion(ctx context.Context, in store.NewSuggestion) (store.Suggestion, error)
	UpdateSuggestion(ctx context.Context, id int64, kind store.Kind, text, requesterID string) (store.Suggestion, error)
	DeleteSuggestion(ctx context.Context, id int64, kind store.Kind, requesterID string, elevated bool) error
	ListSuggestions(ctx context.Context, filter store.ListFilter) ([]store.Suggestion, int, error)
	CountByItem(ctx context.Context, kind store.Kind, itemIDs []string) (map[string]int, error)
	ToggleVote(ctx context.Context, id int64, kind store.Kind, userID string) (store.ToggleResult, error)
	GetVote(ctx context.Context, userID string, suggestionID int64, kind store.Kind) (*store.Vote, error)
	GetVotes(ctx context.Context, userID string, suggestionIDs []int64, kind store.Kind) (map[int64]*int, error)
	ReconcileVotes(ctx context.Context, kind store.Kind) (map[store.Kind]int64, error)
	SetDisplayName(ctx context.Context, userID, displayName string) error
}

// SchemaChecker reports the schema connections are pinned to.
type SchemaChecker interface {
	Schema() string
	CurrentSchema(ctx context.Context) (string, error)
}

// SearchIndex keeps the search index in step with suggestion writes.
type SearchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexSuggestion(item store.Suggestion)
	DeleteSuggestion(kind store.Kind, id int64)
}

// NameInvalidator drops cached display names after a profile change.
type NameInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type Deps struct {
	Names   identity.Resolver
	Schema  SchemaChecker
	Catalog *catalog.Catalog
	Search  SearchIndex
	Admin   *auth.KeyVerifier
}

type Service struct {
	store   SuggestionStore
	names   identity.Resolver
	schema  SchemaChecker
	catalog *catalog.Catalog
	search  SearchIndex
	admin   *auth.KeyVerifier
}

func New(dataStore SuggestionStore, deps Deps) *Service {
	return &Service{
		store:   dataStore,
		names:   deps.Names,
		schema:  deps.Schema,
		catalog: deps.Catalog,
		search:  deps.Search,
		admin:   deps.Admin,
	}
}

type SuggestionView struct {
	ID              int64      `json:"id"`
	Type            store.Kind `json:"type"`
	ItemID          string     `json:"item_id"`
	UserID          string     `json:"user_id"`
	UserDisplayName string     `json:"user_display_name"`
	Name            string     `json:"name"`
	Votes           int        `json:"votes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type VoteView struct {
	UserID         string     `json:"user_id"`
	SuggestionID   int64      `json:"suggestion_id"`
	SuggestionType store.Kind `json:"suggestion_type"`
	VoteType       int        `json:"vote_type"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

type SuggestionPage struct {
	Suggestions []SuggestionView
	Pagination  Pagination
}

type ListInput struct {
	Type   string
	ItemID string
	Page   int
	Limit  int
}

type CreateSuggestionInput struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
	UserID string `json:"user_id"`
}

type UpdateSuggestionInput struct {
	Name   string `json:"name"`
	UserID string `json:"user_id"`
	Type   string `json:"type"`
}

type DeleteSuggestionInput struct {
	UserID   string
	Type     string
	Elevated bool
	AdminKey string
}

type VoteInput struct {
	ID             flexID `json:"id"`
	Action         string `json:"action"`
	UserID         string `json:"user_id"`
	SuggestionType string `json:"suggestion_type"`
}

type VoteOutcome struct {
	State      store.VoteState
	Suggestion SuggestionView
}

type CatalogEntry struct {
	catalog.Item
	Type            store.Kind `json:"type"`
	SuggestionCount int        `json:"suggestion_count"`
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CheckSchema verifies that pooled connections resolve to the pinned schema.
func (s *Service) CheckSchema(ctx context.Context) error {
	if s.schema == nil {
		return nil
	}
	current, err := s.schema.CurrentSchema(ctx)
	if err != nil {
		return err
	}
	if current != s.schema.Schema() {
		return fmt.Errorf("connection resolves schema %q, want %q", current, s.schema.Schema())
	}
	return nil
}

func (s *Service) ListSuggestions(ctx context.Context, in ListInput) (SuggestionPage, error) {
	rawType := in.Type
	if strings.TrimSpace(rawType) == "" {
		rawType = string(store.KindAll)
	}
	kind, err := parseKind(rawType, true)
	if err != nil {
		return SuggestionPage{}, err
	}
	limit, err := validatePage(in.Page, in.Limit)
	if err != nil {
		return SuggestionPage{}, err
	}

	items, total, err := s.store.ListSuggestions(ctx, store.ListFilter{
		Kind:   kind,
		ItemID: strings.TrimSpace(in.ItemID),
		Page:   in.Page,
		Limit:  limit,
	})
	if err != nil {
		return SuggestionPage{}, err
	}
	return SuggestionPage{
		Suggestions: s.enrich(ctx, items),
		Pagination: Pagination{
			Page:       in.Page,
			Limit:      limit,
			TotalItems: total,
			TotalPages: totalPages(total, limit),
		},
	}, nil
}

// CountSuggestions returns a count for every requested item id. With no ids it
// counts every catalog item of the kind.
func (s *Service) CountSuggestions(ctx context.Context, rawType string, itemIDs []string) (map[string]int, error) {
	if strings.TrimSpace(rawType) == "" {
		rawType = string(store.KindAll)
	}
	kind, err := parseKind(rawType, true)
	if err != nil {
		return nil, err
	}
	ids := splitList(itemIDs)
	if len(ids) == 0 && s.catalog != nil {
		ids = s.catalog.IDs(kind)
	}
	return s.store.CountByItem(ctx, kind, ids)
}

func (s *Service) GetSuggestion(ctx context.Context, id int64, rawType string) (SuggestionView, error) {
	kind, err := parseKindHint(rawType)
	if err != nil {
		return SuggestionView{}, err
	}
	item, err := s.store.FindSuggestion(ctx, id, kind)
	if err != nil {
		return SuggestionView{}, err
	}
	return s.enrichOne(ctx, item), nil
}

func (s *Service) CreateSuggestion(ctx context.Context, in CreateSuggestionInput) (SuggestionView, error) {
	if strings.TrimSpace(in.Type) == "" || strings.TrimSpace(in.ItemID) == "" || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.UserID) == "" {
		return SuggestionView{}, validationError("Missing required fields")
	}
	kind, err := parseKind(in.Type, false)
	if err != nil {
		return SuggestionView{}, err
	}
	name, err := validateName(in.Name)
	if err != nil {
		return SuggestionView{}, err
	}
	itemID := strings.TrimSpace(in.ItemID)
	if s.catalog != nil {
		if _, ok := s.catalog.Lookup(kind, itemID); !ok {
			return SuggestionView{}, validationError(fmt.Sprintf("Unknown %s %q", kind, itemID))
		}
	}

	item, err := s.store.CreateSuggestion(ctx, store.NewSuggestion{
		Kind:   kind,
		ItemID: itemID,
		UserID: strings.TrimSpace(in.UserID),
		Text:   name,
	})
	if err != nil {
		return SuggestionView{}, err
	}
	s.indexSuggestion(item)
	return s.enrichOne(ctx, item), nil
}

func (s *Service) UpdateSuggestion(ctx context.Context, id int64, in UpdateSuggestionInput) (SuggestionView, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" || strings.TrimSpace(in.Name) == "" {
		return SuggestionView{}, validationError("Missing required fields")
	}
	name, err := validateName(in.Name)
	if err != nil {
		return SuggestionView{}, err
	}
	kind, err := s.resolveKind(ctx, id, in.Type)
	if err != nil {
		return SuggestionView{}, err
	}

	item, err := s.store.UpdateSuggestion(ctx, id, kind, name, userID)
	if err != nil {
		return SuggestionView{}, err
	}
	s.indexSuggestion(item)
	return s.enrichOne(ctx, item), nil
}

func (s *Service) DeleteSuggestion(ctx context.Context, id int64, in DeleteSuggestionInput) error {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" && !in.Elevated {
		return validationError("user_id is required")
	}
	if in.Elevated {
		if err := s.admin.Verify(in.AdminKey); err != nil {
			log.WithError(err).WithField("suggestion_id", id).Warn("app: elevated delete rejected")
			return forbiddenError("Elevated access denied")
		}
	}
	kind, err := s.resolveKind(ctx, id, in.Type)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSuggestion(ctx, id, kind, userID, in.Elevated); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteSuggestion(kind, id)
	}
	return nil
}

// ToggleVote casts or retracts userID's upvote. A lost race on the ledger key is
// retried once; a second conflict reports the state that is now stored.
func (s *Service) ToggleVote(ctx context.Context, in VoteInput) (VoteOutcome, error) {
	userID := strings.TrimSpace(in.UserID)
	if in.ID == 0 || strings.TrimSpace(in.Action) == "" || userID == "" {
		return VoteOutcome{}, validationError("ID, action, and user_id are required")
	}
	if in.ID < 0 {
		return VoteOutcome{}, validationError("Invalid suggestion id")
	}
	if in.Action != "upvote" {
		return VoteOutcome{}, validationError(`Invalid action. Only "upvote" is supported`)
	}
	id := int64(in.ID)
	kind, err := s.resolveKind(ctx, id, in.SuggestionType)
	if err != nil {
		return VoteOutcome{}, err
	}

	var result store.ToggleResult
	for attempt := 0; attempt < 2; attempt++ {
		result, err = s.store.ToggleVote(ctx, id, kind, userID)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		log.WithFields(log.Fields{"suggestion_id": id, "type": kind, "attempt": attempt + 1}).Info("app: vote toggle lost a race, retrying")
	}
	if errors.Is(err, store.ErrConflict) {
		result, err = s.currentVoteState(ctx, id, kind, userID)
	}
	if err != nil {
		return VoteOutcome{}, err
	}

	s.indexSuggestion(result.Suggestion)
	return VoteOutcome{State: result.State, Suggestion: s.enrichOne(ctx, result.Suggestion)}, nil
}

func (s *Service) currentVoteState(ctx context.Context, id int64, kind store.Kind, userID string) (store.ToggleResult, error) {
	item, err := s.store.FindSuggestion(ctx, id, kind)
	if err != nil {
		return store.ToggleResult{}, err
	}
	vote, err := s.store.GetVote(ctx, userID, id, kind)
	if err != nil {
		return store.ToggleResult{}, err
	}
	state := store.VoteRemoved
	if vote != nil {
		state = store.VoteAdded
	}
	return store.ToggleResult{State: state, Suggestion: item}, nil
}

func (s *Service) VoteStatus(ctx context.Context, userID string, id int64, rawType string) (*VoteView, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("Missing required parameters")
	}
	kind, err := parseKindHint(rawType)
	if err != nil {
		return nil, err
	}
	vote, err := s.store.GetVote(ctx, strings.TrimSpace(userID), id, kind)
	if err != nil || vote == nil {
		return nil, err
	}
	return &VoteView{
		UserID:         vote.UserID,
		SuggestionID:   vote.SuggestionID,
		SuggestionType: vote.Kind,
		VoteType:       vote.VoteType,
		CreatedAt:      vote.CreatedAt,
	}, nil
}

func (s *Service) VoteStatusBatch(ctx context.Context, userID string, ids []int64, rawType string) (map[int64]*int, error) {
	if strings.TrimSpace(userID) == "" || len(ids) == 0 {
		return nil, validationError("Missing required parameters")
	}
	kind, err := parseKindHint(rawType)
	if err != nil {
		return nil, err
	}
	return s.store.GetVotes(ctx, strings.TrimSpace(userID), ids, kind)
}

func (s *Service) FixCounts(ctx context.Context, rawType string) (store.Kind, map[store.Kind]int64, error) {
	if strings.TrimSpace(rawType) == "" {
		return "", nil, validationError("Invalid or missing type parameter")
	}
	kind, err := store.ParseKind(rawType, true)
	if err != nil {
		return "", nil, validationError("Invalid or missing type parameter")
	}
	fixed, err := s.store.ReconcileVotes(ctx, kind)
	if err != nil {
		return "", nil, err
	}
	return kind, fixed, nil
}

func (s *Service) Search(ctx context.Context, text, rawType string, limit int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, validationError("q is required")
	}
	if limit < 1 {
		return search.Response{}, validationError("limit must be at least 1")
	}
	limit = min(limit, maxLimit)
	kind := store.KindAll
	if strings.TrimSpace(rawType) != "" {
		parsed, err := parseKind(rawType, true)
		if err != nil {
			return search.Response{}, err
		}
		kind = parsed
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{Text: text, Kind: kind, Limit: limit}), nil
}

func (s *Service) Catalog(ctx context.Context, rawType string) ([]CatalogEntry, error) {
	if s.catalog == nil {
		return nil, domainError(http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "Catalog not configured", nil)
	}
	if strings.TrimSpace(rawType) == "" {
		rawType = string(store.KindAll)
	}
	kind, err := parseKind(rawType, true)
	if err != nil {
		return nil, err
	}

	entries := make([]CatalogEntry, 0)
	for _, k := range kind.Expand() {
		counts, err := s.store.CountByItem(ctx, k, s.catalog.IDs(k))
		if err != nil {
			return nil, err
		}
		for _, item := range s.catalog.Items(k) {
			entries = append(entries, CatalogEntry{Item: item, Type: k, SuggestionCount: counts[item.ID]})
		}
	}
	return entries, nil
}

func (s *Service) DisplayName(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", validationError("user id is required")
	}
	names := s.displayNames(ctx, []string{userID})
	return names[userID], nil
}

// SetDisplayName records the identity provider's name for userID. The body must
// name the same user as the path.
func (s *Service) SetDisplayName(ctx context.Context, userID, requesterID, displayName string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(requesterID) == "" {
		return validationError("user_id is required")
	}
	if userID != strings.TrimSpace(requesterID) {
		return forbiddenError("Cannot change another user's display name")
	}
	name, err := validateName(displayName)
	if err != nil {
		return err
	}
	if err := s.store.SetDisplayName(ctx, userID, name); err != nil {
		return err
	}
	if invalidator, ok := s.names.(NameInvalidator); ok {
		if err := invalidator.Invalidate(ctx, userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("app: display name cache invalidation failed")
		}
	}
	return nil
}

// resolveKind parses an explicit kind or, without one, falls back to probing
// both collections for id.
func (s *Service) resolveKind(ctx context.Context, id int64, rawType string) (store.Kind, error) {
	kind, err := parseKindHint(rawType)
	if err != nil {
		return "", err
	}
	if kind != "" {
		return kind, nil
	}
	item, err := s.store.FindSuggestion(ctx, id, "")
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"suggestion_id": id, "resolved_type": item.Kind}).Debug("app: request without suggestion type used fallback lookup")
	return item.Kind, nil
}

func (s *Service) indexSuggestion(item store.Suggestion) {
	if s.search != nil && item.ID != 0 {
		s.search.IndexSuggestion(item)
	}
}

// displayNames never fails; lookups that error fall back to the anonymous label.
func (s *Service) displayNames(ctx context.Context, userIDs []string) map[string]string {
	names := map[string]string{}
	if s.names != nil {
		resolved, err := s.names.DisplayNames(ctx, userIDs)
		if err != nil {
			log.WithError(err).Warn("app: display name lookup failed")
		} else {
			names = resolved
		}
	}
	for _, id := range userIDs {
		if names[id] == "" {
			names[id] = identity.AnonymousName
		}
	}
	return names
}

func (s *Service) enrich(ctx context.Context, items []store.Suggestion) []SuggestionView {
	userIDs := make([]string, 0, len(items))
	for _, item := range items {
		userIDs = append(userIDs, item.UserID)
	}
	names := s.displayNames(ctx, identity.Unique(userIDs))

	views := make([]SuggestionView, 0, len(items))
	for _, item := range items {
		item.UserDisplayName = names[item.UserID]
		views = append(views, toView(item))
	}
	return views
}

func (s *Service) enrichOne(ctx context.Context, item store.Suggestion) SuggestionView {
	return s.enrich(ctx, []store.Suggestion{item})[0]
}

func toView(item store.Suggestion) SuggestionView {
	name := item.UserDisplayName
	if name == "" {
		name = identity.AnonymousName
	}
	return SuggestionView{
		ID:              item.ID,
		Type:            item.Kind,
		ItemID:          item.ItemID,
		UserID:          item.UserID,
		UserDisplayName: name,
		Name:            item.Text,
		Votes:           item.Votes,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
}
