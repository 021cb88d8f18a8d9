package app

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/adelansari/tk2-track-namer/internal/store"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100

	minNameLength = 2
	maxNameLength = 50
)

func parseKind(raw string, allowAll bool) (store.Kind, error) {
	kind, err := store.ParseKind(raw, allowAll)
	if err != nil {
		if allowAll {
			return "", validationError("Invalid type parameter")
		}
		return "", validationError("Invalid suggestion type")
	}
	return kind, nil
}

// parseKindHint accepts an empty hint, which selects the kind-less fallback.
func parseKindHint(raw string) (store.Kind, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return parseKind(raw, false)
}

func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return "", validationError("Name must be between 2 and 50 characters")
	}
	return name, nil
}

// validatePage rejects non-positive values and caps limit at maxLimit.
func validatePage(page, limit int) (int, error) {
	if page < 1 {
		return 0, validationError("page must be at least 1")
	}
	if limit < 1 {
		return 0, validationError("limit must be at least 1")
	}
	return min(limit, maxLimit), nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, validationError("Invalid suggestion id")
	}
	return id, nil
}

// parseIDList accepts repeated values and comma separated lists.
func parseIDList(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, value := range splitList(values) {
		id, err := parseID(value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(raw string, fallback int, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validationError(name + " must be an integer")
	}
	return n, nil
}

func totalPages(totalItems, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (totalItems + limit - 1) / limit
}

// flexID decodes a suggestion id sent either as a JSON number or a string.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", raw)
	}
	*f = flexID(n)
	return nil
}
