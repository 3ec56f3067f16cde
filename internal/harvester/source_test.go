package harvester

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/domain/model"
)

func dropFile(t *testing.T, dir, name, content string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestFileDropSource_Lines(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	dropFile(t, dir, "b.txt", "r3\n", base.Add(2*time.Hour))
	dropFile(t, dir, "a.txt", "r1\n\n  r2  \n", base.Add(time.Hour))
	dropFile(t, dir, "old.txt", "r0\n", base.Add(-time.Hour))
	dropFile(t, dir, "skip.csv", "nope\n", base.Add(time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o750))

	src := &FileDropSource{Dir: dir, Pattern: "*.txt"}
	ctx := context.Background()

	hasNew, err := src.HasNewData(ctx, &base)
	require.NoError(t, err)
	assert.True(t, hasNew)

	var buf bytes.Buffer
	pulled, err := src.Pull(ctx, &base, model.FormatLines, &buf)
	require.NoError(t, err)
	assert.Equal(t, "r1\nr2\nr3\n", buf.String())
	assert.Equal(t, 2, pulled.Files)
	assert.Equal(t, 3, pulled.Records)
	assert.True(t, pulled.Cursor.After(base.Add(2*time.Hour)))

	hasNew, err = src.HasNewData(ctx, &pulled.Cursor)
	require.NoError(t, err)
	assert.False(t, hasNew, "the cursor moves past every pulled file")

	all, err := src.HasNewData(ctx, nil)
	require.NoError(t, err)
	assert.True(t, all)
}

func TestFileDropSource_JSONArray(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	dropFile(t, dir, "1.json", `[{"id":1},{"id":2}]`, base)
	dropFile(t, dir, "2.json", `[]`, base.Add(time.Minute))
	dropFile(t, dir, "3.json", `[{"id":3}]`, base.Add(2*time.Minute))

	var buf bytes.Buffer
	pulled, err := (&FileDropSource{Dir: dir}).Pull(context.Background(), nil, model.FormatJSONArray, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, pulled.Files)
	assert.Equal(t, 3, pulled.Records)

	var records []map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	assert.Equal(t, []map[string]int{{"id": 1}, {"id": 2}, {"id": 3}}, records)
}

func TestFileDropSource_EmptyAndBroken(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	pulled, err := (&FileDropSource{Dir: dir}).Pull(context.Background(), nil, model.FormatJSONArray, &buf)
	require.NoError(t, err)
	assert.Zero(t, pulled.Files)
	assert.Equal(t, "[]", buf.String())

	dropFile(t, dir, "bad.json", `{"id":1}`, time.Now())
	_, err = (&FileDropSource{Dir: dir}).Pull(context.Background(), nil, model.FormatJSONArray, &buf)
	require.ErrorContains(t, err, "decode json array")

	_, err = (&FileDropSource{Dir: filepath.Join(dir, "missing")}).HasNewData(context.Background(), nil)
	require.Error(t, err)
}
