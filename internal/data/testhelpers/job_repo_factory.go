package testhelpers

import (
	"database/sql"

	"github.com/target/dataio-go/internal/data"
)

// Repos bundles the state store repositories sharing one clock.
type Repos struct {
	Jobs       *data.JobRepo
	Chunks     *data.ChunkRepo
	Flows      *data.FlowRepo
	Sinks      *data.SinkRepo
	Harvesters *data.HarvesterConfigRepo
	Files      *data.FileRepo
}

// NewReposWithTimeProvider creates all repositories with the provided TimeProvider for tests.
func NewReposWithTimeProvider(db *sql.DB, cfg data.RepoConfig, tp data.TimeProvider) Repos {
	cfg.TimeProvider = tp
	return Repos{
		Jobs:       data.NewJobRepo(db, cfg),
		Chunks:     data.NewChunkRepo(db, cfg),
		Flows:      data.NewFlowRepo(db, cfg),
		Sinks:      data.NewSinkRepo(db, cfg),
		Harvesters: data.NewHarvesterConfigRepo(db, cfg),
		Files:      data.NewFileRepo(db, cfg),
	}
}
