package httpx

import (
	"net/url"
	"strings"

	apperrors "github.com/target/dataio-go/internal/errors"
)

const (
	sortAsc  = "asc"
	sortDesc = "desc"
)

// parseSort reads ?sort=field:dir or ?sort=field&dir=dir. The field must be one of
// allowed; an unknown direction is dropped so the repository default applies.
// The colon form wins when both are given.
func parseSort(q url.Values, allowed map[string]struct{}) (field, dir string, err error) {
	raw := strings.TrimSpace(q.Get("sort"))
	if raw == "" {
		return "", "", nil
	}

	field, dir = raw, q.Get("dir")
	if name, suffix, ok := strings.Cut(raw, ":"); ok {
		field, dir = strings.TrimSpace(name), suffix
	}
	if _, known := allowed[field]; !known {
		return "", "", apperrors.ValidationField("sort", "unsupported sort field "+field)
	}

	switch dir = strings.ToLower(strings.TrimSpace(dir)); dir {
	case sortAsc, sortDesc:
	default:
		dir = ""
	}
	return field, dir, nil
}
