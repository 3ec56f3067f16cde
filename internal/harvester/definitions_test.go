package harvester

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/mocks"
	"go.uber.org/mock/gomock"
)

func writeDefinitions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvesters.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefinitions(t *testing.T) {
	path := writeDefinitions(t, `
[[harvester]]
id = 1
name = "daily-drop"

[harvester.source]
kind = "filedrop"
dir = "/srv/drop/daily"
pattern = "*.ndjson"

[[harvester]]
id = 2

[harvester.source]
kind = "FileDrop"
dir = "/srv/drop/weekly"
`)
	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs.Harvesters, 2)
	assert.Equal(t, "daily-drop", defs.Harvesters[0].Name)
	assert.Equal(t, "*.ndjson", defs.Harvesters[0].Source.Pattern)

	src, err := defs.Harvesters[1].Source.Build()
	require.NoError(t, err)
	assert.Equal(t, &FileDropSource{Dir: "/srv/drop/weekly"}, src)
}

func TestLoadDefinitions_Missing(t *testing.T) {
	defs, err := LoadDefinitions(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Empty(t, defs.Harvesters)

	defs, err = LoadDefinitions("")
	require.NoError(t, err)
	assert.Empty(t, defs.Harvesters)
}

func TestLoadDefinitions_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing id":    "[[harvester]]\n[harvester.source]\nkind = \"filedrop\"\ndir = \"/x\"\n",
		"duplicate id":  "[[harvester]]\nid = 1\n[harvester.source]\nkind = \"filedrop\"\ndir = \"/x\"\n[[harvester]]\nid = 1\n[harvester.source]\nkind = \"filedrop\"\ndir = \"/y\"\n",
		"unknown kind":  "[[harvester]]\nid = 1\n[harvester.source]\nkind = \"ftp\"\n",
		"missing dir":   "[[harvester]]\nid = 1\n[harvester.source]\nkind = \"filedrop\"\n",
		"unknown field": "[[harvester]]\nid = 1\nschedule = \"@daily\"\n",
		"broken toml":   "[[harvester]\nid = 1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadDefinitions(writeDefinitions(t, content))
			require.Error(t, err)
		})
	}
}

func TestDefinitionsBuild(t *testing.T) {
	ctrl := gomock.NewController(t)
	root := t.TempDir()
	defs := &Definitions{Harvesters: []Definition{
		{ID: 4, Name: "drop", Source: SourceDefinition{Kind: SourceFileDrop, Dir: root}},
		{ID: 5, Source: SourceDefinition{Kind: SourceFileDrop, Dir: root}},
	}}
	harvesters, err := defs.Build(BuildOptions{
		Store:      mocks.NewMockStateStore(ctrl),
		WALDir:     filepath.Join(root, "wal"),
		StagingDir: filepath.Join(root, "staging"),
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	require.Len(t, harvesters, 2)
	assert.Equal(t, "drop", harvesters[0].Name())
	assert.Equal(t, "harvester-5", harvesters[1].Name())
	assert.Equal(t, filepath.Join(root, "wal", "harvester-5.wal"), harvesters[1].wal.Path())
}
