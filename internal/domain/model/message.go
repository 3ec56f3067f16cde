package model

import (
	"strconv"
	"strings"
)

// NewJobNotice is the body of a NewJob message: a job is ready to be partitioned.
type NewJobNotice struct {
	JobID int64 `json:"job_id"`
}

// ChunkNotice is the body of a Chunk message: a stored chunk is ready to be processed.
// Items are fetched from the state store by key.
type ChunkNotice struct {
	JobID   int64 `json:"job_id"`
	ChunkID int   `json:"chunk_id"`
}

const sinkResourcePrefix = "sink-"

// SinkResource is the resource header of results addressed to sink id.
func SinkResource(id int64) string {
	return sinkResourcePrefix + strconv.FormatInt(id, 10)
}

// ParseSinkResource returns the sink id named by a SinkResource header.
func ParseSinkResource(resource string) (int64, bool) {
	raw, ok := strings.CutPrefix(resource, sinkResourcePrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
