package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/target/dataio-go/internal/domain/state"
)

// ItemStatus is the per-item result of a phase.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "SUCCESS"
	ItemFailure ItemStatus = "FAILURE"
	ItemIgnore  ItemStatus = "IGNORE"
)

// Valid reports whether s is a known status.
func (s ItemStatus) Valid() bool {
	return s == ItemSuccess || s == ItemFailure || s == ItemIgnore
}

// Outcome is what one phase produced for one item: opaque bytes plus their charset.
type Outcome struct {
	ItemID     int        `json:"item_id"`
	Status     ItemStatus `json:"status"`
	Data       []byte     `json:"data,omitempty"`
	Encoding   string     `json:"encoding,omitempty"`
	Diagnostic string     `json:"diagnostic,omitempty"`
}

// Chunk is an ordered batch of items, the unit of transport between stages.
type Chunk struct {
	JobID         int64       `json:"job_id"                  db:"job_id"`
	ChunkID       int         `json:"chunk_id"                db:"chunk_id"`
	NumberOfItems int         `json:"number_of_items"         db:"number_of_items"`
	State         state.State `json:"state"                   db:"state"`
	SequenceKeys  []string    `json:"sequence_keys,omitempty" db:"sequence_keys"`
	Version       int64       `json:"version"                 db:"version"`
	CreatedAt     time.Time   `json:"created_at"              db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"              db:"updated_at"`
}

// Item is one record within a chunk.
type Item struct {
	JobID               int64       `json:"job_id"`
	ChunkID             int         `json:"chunk_id"`
	ItemID              int         `json:"item_id"`
	State               state.State `json:"state"`
	PartitioningOutcome *Outcome    `json:"partitioning_outcome,omitempty"`
	ProcessingOutcome   *Outcome    `json:"processing_outcome,omitempty"`
	DeliveringOutcome   *Outcome    `json:"delivering_outcome,omitempty"`
}

// PartitionedChunk is a chunk and its items as emitted by the partitioner.
type PartitionedChunk struct {
	Chunk Chunk  `json:"chunk"`
	Items []Item `json:"items"`
}

// ChunkResult carries the per-item outcomes of one phase for one chunk, in item order.
type ChunkResult struct {
	JobID   int64       `json:"job_id"`
	ChunkID int         `json:"chunk_id"`
	Phase   state.Phase `json:"phase"`
	Items   []Outcome   `json:"items"`
}

// Validate checks that the result names a chunk and carries one valid outcome per item id.
// Whether the ids match the stored chunk's items is checked when the result is recorded.
func (r *ChunkResult) Validate() error {
	if r == nil {
		return errors.New("chunk result is required")
	}
	if r.JobID <= 0 || r.ChunkID < 0 {
		return fmt.Errorf("invalid chunk key %d/%d", r.JobID, r.ChunkID)
	}
	if !r.Phase.Valid() || r.Phase == state.PhasePartitioning {
		return fmt.Errorf("invalid result phase %q", r.Phase)
	}
	seen := make(map[int]struct{}, len(r.Items))
	for i, it := range r.Items {
		if !it.Status.Valid() {
			return fmt.Errorf("item %d: invalid status %q", i, it.Status)
		}
		if it.ItemID < 0 {
			return fmt.Errorf("item %d: invalid item id %d", i, it.ItemID)
		}
		if _, dup := seen[it.ItemID]; dup {
			return fmt.Errorf("item %d: duplicate item id %d", i, it.ItemID)
		}
		seen[it.ItemID] = struct{}{}
	}
	return nil
}

// Counts tallies item statuses.
func (r *ChunkResult) Counts() (succeeded, failed, ignored int64) {
	for _, it := range r.Items {
		switch it.Status {
		case ItemSuccess:
			succeeded++
		case ItemFailure:
			failed++
		case ItemIgnore:
			ignored++
		}
	}
	return succeeded, failed, ignored
}

// StateChange converts the result into the change applied to its chunk and job.
func (r *ChunkResult) StateChange() state.Change {
	s, f, i := r.Counts()
	return state.Change{Phase: r.Phase, Succeeded: s, Failed: f, Ignored: i}
}

// Checksum identifies the result content so duplicate reports can be told apart from conflicting ones.
func (r *ChunkResult) Checksum() string {
	h := sha256.New()
	h.Write([]byte(string(r.Phase)))
	for _, it := range r.Items {
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(it.ItemID)))
		h.Write([]byte(it.Status))
		h.Write([]byte(it.Encoding))
		h.Write(it.Data)
		h.Write([]byte(it.Diagnostic))
	}
	return hex.EncodeToString(h.Sum(nil))
}
