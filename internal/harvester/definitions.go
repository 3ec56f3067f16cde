package harvester

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// Source kinds accepted in a definitions file.
const (
	SourceFileDrop = "filedrop"
)

// Definitions is the harvesters file. Schedules, specifications and dates live in the
// state store; the file only binds a harvester id to a local source.
//
//	[[harvester]]
//	id = 1
//	name = "daily-drop"
//
//	[harvester.source]
//	kind = "filedrop"
//	dir = "/srv/drop/daily"
//	pattern = "*.ndjson"
type Definitions struct {
	Harvesters []Definition `toml:"harvester"`
}

// Definition binds one harvester config to its source.
type Definition struct {
	ID     int64            `toml:"id"`
	Name   string           `toml:"name"`
	Source SourceDefinition `toml:"source"`
}

// SourceDefinition configures a Source.
type SourceDefinition struct {
	Kind    string `toml:"kind"`
	Dir     string `toml:"dir"`
	Pattern string `toml:"pattern"`
}

// LoadDefinitions reads and validates a harvesters file. A missing file yields no
// harvesters.
func LoadDefinitions(path string) (*Definitions, error) {
	var defs Definitions
	if strings.TrimSpace(path) == "" {
		return &defs, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &defs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open harvesters file: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&defs); err != nil {
		return nil, fmt.Errorf("parse harvesters file: %w", err)
	}
	if err := defs.Validate(); err != nil {
		return nil, fmt.Errorf("harvesters file %s: %w", path, err)
	}
	return &defs, nil
}

// Validate checks every definition and rejects duplicate ids.
func (d *Definitions) Validate() error {
	seen := make(map[int64]struct{}, len(d.Harvesters))
	for i, def := range d.Harvesters {
		if def.ID <= 0 {
			return fmt.Errorf("harvester[%d]: id is required", i)
		}
		if _, dup := seen[def.ID]; dup {
			return fmt.Errorf("harvester[%d]: duplicate id %d", i, def.ID)
		}
		seen[def.ID] = struct{}{}
		if _, err := def.Source.Build(); err != nil {
			return fmt.Errorf("harvester[%d]: %w", i, err)
		}
	}
	return nil
}

// Build constructs the configured source.
func (s SourceDefinition) Build() (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case SourceFileDrop:
		if strings.TrimSpace(s.Dir) == "" {
			return nil, errors.New("filedrop source requires dir")
		}
		return &FileDropSource{Dir: s.Dir, Pattern: s.Pattern}, nil
	case "":
		return nil, errors.New("source kind is required")
	default:
		return nil, fmt.Errorf("unknown source kind %q", s.Kind)
	}
}

// BuildOptions carries what every harvester built from definitions shares.
type BuildOptions struct {
	Store      core.StateStore
	WALDir     string
	StagingDir string
	Now        func() time.Time
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// Build constructs one Harvester per definition.
func (d *Definitions) Build(opts BuildOptions) ([]*Harvester, error) {
	out := make([]*Harvester, 0, len(d.Harvesters))
	for _, def := range d.Harvesters {
		source, err := def.Source.Build()
		if err != nil {
			return nil, fmt.Errorf("harvester %d: %w", def.ID, err)
		}
		wal, err := OpenWAL(opts.WALDir, def.ID)
		if err != nil {
			return nil, fmt.Errorf("harvester %d: %w", def.ID, err)
		}
		h, err := New(Options{
			ID:         def.ID,
			Name:       def.Name,
			Store:      opts.Store,
			Source:     source,
			WAL:        wal,
			StagingDir: opts.StagingDir,
			Now:        opts.Now,
			Logger:     opts.Logger,
			Metrics:    opts.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("harvester %d: %w", def.ID, err)
		}
		out = append(out, h)
	}
	return out, nil
}
