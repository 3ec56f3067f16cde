package httpx

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/dataio-go/internal/errors"
)

func TestParseSort(t *testing.T) {
	allowed := map[string]struct{}{"id": {}, "created_at": {}, "number_of_items": {}}

	tests := []struct {
		name      string
		sort, dir string
		wantField string
		wantDir   string
		wantErr   bool
	}{
		{name: "empty"},
		{name: "colon form", sort: "created_at:asc", wantField: "created_at", wantDir: "asc"},
		{name: "colon form uppercase", sort: "id:DESC", wantField: "id", wantDir: "desc"},
		{name: "colon form bad direction", sort: "id:sideways", wantField: "id"},
		{name: "colon form padded", sort: " number_of_items : desc ", wantField: "number_of_items", wantDir: "desc"},
		{name: "separate dir", sort: "id", dir: "asc", wantField: "id", wantDir: "asc"},
		{name: "separate bad dir", sort: "id", dir: "up", wantField: "id"},
		{name: "colon wins", sort: "id:desc", dir: "asc", wantField: "id", wantDir: "desc"},
		{name: "unknown field", sort: "eoj", wantErr: true},
		{name: "only first colon splits", sort: "id:b:desc", wantField: "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			if tt.sort != "" {
				q.Set("sort", tt.sort)
			}
			if tt.dir != "" {
				q.Set("dir", tt.dir)
			}

			field, dir, err := parseSort(q, allowed)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantField, field)
			assert.Equal(t, tt.wantDir, dir)
		})
	}
}
