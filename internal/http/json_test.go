package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type target struct {
		Name      string `json:"name"`
		ChunkSize int    `json:"chunk_size"`
	}

	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantCode  int
		wantField string
	}{
		{name: "valid", body: `{"name":"marc","chunk_size":10}`, wantOK: true},
		{name: "empty", body: ``, wantCode: http.StatusBadRequest},
		{name: "unknown field", body: `{"name":"marc","extra":1}`, wantCode: http.StatusBadRequest},
		{name: "trailing object", body: `{"name":"a"}{"name":"b"}`, wantCode: http.StatusBadRequest},
		{name: "wrong type", body: `{"chunk_size":"ten"}`, wantCode: http.StatusBadRequest, wantField: "chunk_size"},
		{name: "too large", body: `{"name":"` + strings.Repeat("x", maxJSONBody) + `"}`, wantCode: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/flows", strings.NewReader(tt.body))

			var dst target
			ok := DecodeJSON(rec, req, &dst)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "marc", dst.Name)
				assert.Equal(t, 10, dst.ChunkSize)
				return
			}

			assert.Equal(t, tt.wantCode, rec.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.wantField, body.Field)
		})
	}
}
