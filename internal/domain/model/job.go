// Package model defines the records exchanged between the partitioner, processors,
// sinks, harvesters and the state store.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/dataio-go/internal/domain/state"
)

// DataFormat names how raw job data is split into items.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type DataFormat string

const (
	// FormatLines treats each non-empty line as one record.
	FormatLines DataFormat = "lines"
	// FormatJSONArray treats each element of a top level JSON array as one record.
	FormatJSONArray DataFormat = "json-array"
)

// Valid reports whether f is a supported format.
func (f DataFormat) Valid() bool {
	return f == FormatLines || f == FormatJSONArray
}

// UnmarshalText implements encoding.TextUnmarshaler for env and TOML parsing.
func (f *DataFormat) UnmarshalText(text []byte) error {
	v := DataFormat(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid data format: %q", v)
	}
	*f = v
	return nil
}

// JobKind distinguishes production jobs from test submissions.
type JobKind string

const (
	JobKindPersistent JobKind = "PERSISTENT"
	JobKindTransient  JobKind = "TRANSIENT"
	JobKindTest       JobKind = "TEST"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	return k == JobKindPersistent || k == JobKindTransient || k == JobKindTest
}

// DefaultChunkSize is the number of items per chunk when the specification leaves it unset.
const DefaultChunkSize = 10

// JobSpecification describes where a job's data came from and where it goes.
type JobSpecification struct {
	Format      DataFormat `json:"format"`
	Charset     string     `json:"charset"`
	Destination string     `json:"destination"`
	Submitter   int64      `json:"submitter"`
	Kind        JobKind    `json:"kind"`
	// DataFile is the id of the uploaded raw data.
	DataFile string `json:"data_file"`
	// ChunkSize overrides DefaultChunkSize when positive.
	ChunkSize int `json:"chunk_size,omitempty"`
	// SequenceKey is a JSON field whose distinct values per chunk are recorded as ordering hints.
	SequenceKey string `json:"sequence_key,omitempty"`
}

// Validate checks required specification fields.
func (s JobSpecification) Validate() error {
	if !s.Format.Valid() {
		return fmt.Errorf("invalid format %q", s.Format)
	}
	if strings.TrimSpace(s.DataFile) == "" {
		return errors.New("data_file is required")
	}
	if strings.TrimSpace(s.Destination) == "" {
		return errors.New("destination is required")
	}
	if s.Kind != "" && !s.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", s.Kind)
	}
	if s.ChunkSize < 0 {
		return errors.New("chunk_size must be >= 0")
	}
	return nil
}

// EffectiveChunkSize returns the configured chunk size or the default.
func (s JobSpecification) EffectiveChunkSize() int {
	if s.ChunkSize > 0 {
		return s.ChunkSize
	}
	return DefaultChunkSize
}

// Job is a unit of import work. Jobs are never deleted, only completed.
type Job struct {
	ID             int64            `json:"id"                     db:"id"`
	Specification  JobSpecification `json:"specification"          db:"specification"`
	EOJ            bool             `json:"eoj"                    db:"eoj"`
	NumberOfChunks int              `json:"number_of_chunks"       db:"number_of_chunks"`
	NumberOfItems  int              `json:"number_of_items"        db:"number_of_items"`
	State          state.State      `json:"state"                  db:"state"`
	FlowID         int64            `json:"flow_id"                db:"flow_id"`
	FlowVersion    int64            `json:"flow_version"           db:"flow_version"`
	SinkID         int64            `json:"sink_id"                db:"sink_id"`
	SinkVersion    int64            `json:"sink_version"           db:"sink_version"`
	HarvesterID    *int64           `json:"harvester_id,omitempty" db:"harvester_id"`
	Version        int64            `json:"version"                db:"version"`
	CreatedAt      time.Time        `json:"created_at"             db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"             db:"updated_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
}

// Completed reports whether the job has been marked complete.
func (j *Job) Completed() bool {
	return j != nil && j.CompletedAt != nil
}

// ReadyForCompletion reports whether partitioning has ended and every partitioned item was delivered.
func (j *Job) ReadyForCompletion() bool {
	if j == nil || !j.EOJ || !j.State.Partitioning.Ended() {
		return false
	}
	return j.State.Delivering.Done == j.State.Partitioning.Done
}

// CreateJobRequest registers a new job. Flow and sink versions are pinned at creation.
type CreateJobRequest struct {
	Specification JobSpecification `json:"specification"`
	FlowID        int64            `json:"flow_id"`
	SinkID        int64            `json:"sink_id"`
	HarvesterID   *int64           `json:"harvester_id,omitempty"`
}

// Validate validates the request.
func (r *CreateJobRequest) Validate() error {
	if r == nil {
		return errors.New("create job request is required")
	}
	if err := r.Specification.Validate(); err != nil {
		return err
	}
	if r.FlowID <= 0 {
		return errors.New("flow_id is required")
	}
	if r.SinkID <= 0 {
		return errors.New("sink_id is required")
	}
	return nil
}

// JobListOptions filters a job listing.
type JobListOptions struct {
	Submitter   *int64      // exact submitter match
	SinkID      *int64      // exact sink match
	HarvesterID *int64      // exact harvester match
	Completed   *bool       // completed_at set / unset
	CreatedFrom *time.Time  // created_at >= CreatedFrom
	CreatedTo   *time.Time  // created_at < CreatedTo
	MinItems    *int        // number_of_items >= MinItems
	ExcludeKind *JobKind    // specification kind != ExcludeKind
	Phase       state.Phase // when set, only jobs whose phase has not ended
	SortBy      string      // "created_at" (default), "id", "number_of_items"
	SortOrder   string      // "asc" or "desc" (default)
	Limit       int
	Offset      int
}

// JobPage is one page of a job listing with the total number of matching jobs.
type JobPage struct {
	Jobs   []*Job `json:"jobs"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}
