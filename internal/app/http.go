package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/adelansari/tk2-track-namer/internal/auth"
	"github.com/adelansari/tk2-track-namer/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.withRecover(http.HandlerFunc(s.handle)))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/catalog" {
		entries, err := s.service.Catalog(r.Context(), r.URL.Query().Get("type"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "items": entries})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "suggestions":
		s.handleSuggestions(w, r, parts[2:])
		return
	case "users":
		if len(parts) == 3 {
			s.handleUser(w, r, parts[2])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"schema":   map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		requestLogger(r).WithError(err).Error("readiness: database unreachable")
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": "unavailable"}
	} else if err := s.service.CheckSchema(ctx); err != nil {
		requestLogger(r).WithError(err).Error("readiness: schema check failed")
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["schema"] = map[string]any{"status": "error", "error": "schema mismatch"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSuggestions(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		if r.URL.Query().Get("countsOnly") == "true" {
			s.handleCounts(w, r)
			return
		}
		s.handleList(w, r)
		return
	case len(parts) == 0 && r.Method == http.MethodPost:
		s.handleCreate(w, r)
		return
	case len(parts) == 1 && parts[0] == "search" && r.Method == http.MethodGet:
		s.handleSearch(w, r)
		return
	case len(parts) >= 1 && parts[0] == "vote":
		s.handleVote(w, r, parts[1:])
		return
	case len(parts) == 1:
		id, err := parseID(parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		switch r.Method {
		case http.MethodGet:
			item, err := s.service.GetSuggestion(r.Context(), id, r.URL.Query().Get("type"))
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "suggestion": item, "type": item.Type})
			return
		case http.MethodPut:
			var input UpdateSuggestionInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
				return
			}
			if input.Type == "" {
				input.Type = r.URL.Query().Get("type")
			}
			item, err := s.service.UpdateSuggestion(r.Context(), id, input)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Suggestion updated successfully", "suggestion": item})
			return
		case http.MethodDelete:
			query := r.URL.Query()
			err := s.service.DeleteSuggestion(r.Context(), id, DeleteSuggestionInput{
				UserID:   query.Get("user_id"),
				Type:     query.Get("type"),
				Elevated: query.Get("elevated") == "true",
				AdminKey: r.Header.Get(auth.HeaderAdminKey),
			})
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Suggestion deleted successfully"})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := intParam(query.Get("page"), defaultPage, "page")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intParam(query.Get("limit"), defaultLimit, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.ListSuggestions(r.Context(), ListInput{
		Type:   query.Get("type"),
		ItemID: query.Get("itemId"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"suggestions": result.Suggestions,
		"pagination":  result.Pagination,
	})
}

func (s *HTTPServer) handleCounts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	counts, err := s.service.CountSuggestions(r.Context(), query.Get("type"), query["itemIds"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "counts": counts})
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateSuggestionInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	item, err := s.service.CreateSuggestion(r.Context(), input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Suggestion created successfully", "suggestion": item})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := intParam(query.Get("limit"), 20, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.service.Search(r.Context(), query.Get("q"), query.Get("type"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
	})
}

func (s *HTTPServer) handleVote(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		var input VoteInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		outcome, err := s.service.ToggleVote(r.Context(), input)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		message := "Upvoted successfully"
		if outcome.State == store.VoteRemoved {
			message = "Vote removed successfully"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"message":    message,
			"action":     outcome.State,
			"suggestion": outcome.Suggestion,
		})
		return

	case len(parts) == 1 && parts[0] == "status" && r.Method == http.MethodGet:
		query := r.URL.Query()
		if query.Get("suggestion_id") == "" || query.Get("user_id") == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Missing required parameters", nil)
			return
		}
		id, err := parseID(query.Get("suggestion_id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		vote, err := s.service.VoteStatus(r.Context(), query.Get("user_id"), id, query.Get("suggestion_type"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		message := "User vote found"
		if vote == nil {
			message = "User has not voted on this suggestion"
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "vote": vote, "message": message})
		return

	case len(parts) == 2 && parts[0] == "status" && parts[1] == "batch" && r.Method == http.MethodGet:
		query := r.URL.Query()
		ids, err := parseIDList(query["suggestion_ids"])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		votes, err := s.service.VoteStatusBatch(r.Context(), query.Get("user_id"), ids, query.Get("suggestion_type"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"votes":   votes,
			"message": fmt.Sprintf("Checked %d suggestions", len(ids)),
		})
		return

	case len(parts) == 1 && parts[0] == "fix-counts" && r.Method == http.MethodPost:
		var input struct {
			Type string `json:"type"`
		}
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		kind, fixed, err := s.service.FixCounts(r.Context(), input.Type)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": fmt.Sprintf("Successfully fixed %s vote counts", kind),
			"fixed":   fixed,
		})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUser(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		name, err := s.service.DisplayName(r.Context(), userID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "uid": userID, "display_name": name})
	case http.MethodPut:
		var input struct {
			UserID      string `json:"user_id"`
			DisplayName string `json:"display_name"`
		}
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		if err := s.service.SetDisplayName(r.Context(), userID, input.UserID, input.DisplayName); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "uid": userID, "display_name": strings.TrimSpace(input.DisplayName)})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// fail maps err onto the error response and logs anything that is not a client error.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		requestLogger(r).WithError(err).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.WithFields(log.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
	})
}

func (s *HTTPServer) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				requestLogger(r).WithField("panic", p).Error("handler panicked")
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func requestLogger(r *http.Request) *log.Entry {
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	return log.WithField("request_id", requestID)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+auth.HeaderAdminKey)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"success": false,
		"message": message,
		"error":   code,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Suggestion not found", nil
	}
	if errors.Is(err, store.ErrUnauthorized) {
		return http.StatusForbidden, "UNAUTHORIZED", "You are not allowed to modify this suggestion", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
