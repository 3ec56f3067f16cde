package httpx

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/target/dataio-go/internal/errors"
)

// pageBounds bounds a list endpoint's limit/offset parameters.
type pageBounds struct {
	def, max int
}

// parse reads limit and offset from q. Missing or malformed values fall back to the default
// limit and a zero offset; an oversized limit is clamped.
func (p pageBounds) parse(q url.Values) (limit, offset int) {
	limit = p.def
	if n, err := strconv.Atoi(strings.TrimSpace(q.Get("limit"))); err == nil && n > 0 {
		limit = min(n, p.max)
	}
	if n, err := strconv.Atoi(strings.TrimSpace(q.Get("offset"))); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}

var (
	jobPage   = pageBounds{def: 50, max: 500}
	chunkPage = pageBounds{def: 100, max: 1000}
)

func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(r.PathValue(name)), 10, 64)
	if err != nil || v <= 0 {
		return 0, apperrors.ValidationField(name, fmt.Sprintf("%s must be a positive integer", name))
	}
	return v, nil
}

// pathChunkID allows 0; chunk ids start there.
func pathChunkID(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(r.PathValue(name)))
	if err != nil || v < 0 {
		return 0, apperrors.ValidationField(name, fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return v, nil
}
