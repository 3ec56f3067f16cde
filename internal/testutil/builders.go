// Package testutil provides test databases, Redis clients and fixture builders for the dataio packages.
package testutil

import (
	"fmt"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
)

// JobRequestBuilder builds CreateJobRequest values with sensible defaults.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest starts a line-format job for submitter 870970.
func NewJobRequest(flowID, sinkID int64) *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Specification: model.JobSpecification{
				Format:      model.FormatLines,
				Charset:     "utf-8",
				Destination: "broend",
				Submitter:   870970,
				Kind:        model.JobKindPersistent,
				DataFile:    "8f6b7c9e-4d3a-4b2f-9e1d-0c5a7b3e2f10",
			},
			FlowID: flowID,
			SinkID: sinkID,
		},
	}
}

// WithSubmitter sets the submitter.
func (b *JobRequestBuilder) WithSubmitter(s int64) *JobRequestBuilder {
	b.req.Specification.Submitter = s
	return b
}

// WithKind sets the job kind.
func (b *JobRequestBuilder) WithKind(k model.JobKind) *JobRequestBuilder {
	b.req.Specification.Kind = k
	return b
}

// WithFormat sets the data format.
func (b *JobRequestBuilder) WithFormat(f model.DataFormat) *JobRequestBuilder {
	b.req.Specification.Format = f
	return b
}

// WithDataFile sets the data file id.
func (b *JobRequestBuilder) WithDataFile(id string) *JobRequestBuilder {
	b.req.Specification.DataFile = id
	return b
}

// WithChunkSize sets the chunk size.
func (b *JobRequestBuilder) WithChunkSize(n int) *JobRequestBuilder {
	b.req.Specification.ChunkSize = n
	return b
}

// WithHarvester links the job to a harvester.
func (b *JobRequestBuilder) WithHarvester(id int64) *JobRequestBuilder {
	b.req.HarvesterID = &id
	return b
}

// Build returns the request.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// NewFlowRequest returns a one-module flow that passes records through unchanged.
func NewFlowRequest(name string) *model.FlowRequest {
	return &model.FlowRequest{
		Name:             name,
		Modules:          []model.FlowModule{{Name: "identity", Source: "@"}},
		InvocationMethod: "identity",
	}
}

// NewDummySinkRequest returns a dummy sink definition.
func NewDummySinkRequest(name string) *model.SinkRequest {
	return &model.SinkRequest{Name: name, Type: model.SinkTypeDummy}
}

// NewPartitionedChunk builds chunk chunkID of job jobID holding n successfully partitioned
// items whose data is {"n": <index>}.
func NewPartitionedChunk(jobID int64, chunkID, n int) model.PartitionedChunk {
	pc := model.PartitionedChunk{
		Chunk: model.Chunk{JobID: jobID, ChunkID: chunkID, NumberOfItems: n},
		Items: make([]model.Item, n),
	}
	for i := range n {
		pc.Items[i] = model.Item{
			JobID:   jobID,
			ChunkID: chunkID,
			ItemID:  i,
			PartitioningOutcome: &model.Outcome{
				ItemID:   i,
				Status:   model.ItemSuccess,
				Data:     []byte(fmt.Sprintf(`{"n":%d}`, i)),
				Encoding: "UTF-8",
			},
		}
	}
	return pc
}

// NewChunkResult builds a result for phase with one outcome per status, item ids in order.
func NewChunkResult(jobID int64, chunkID int, phase state.Phase, statuses ...model.ItemStatus) *model.ChunkResult {
	r := &model.ChunkResult{JobID: jobID, ChunkID: chunkID, Phase: phase, Items: make([]model.Outcome, len(statuses))}
	for i, s := range statuses {
		r.Items[i] = model.Outcome{ItemID: i, Status: s, Encoding: "UTF-8"}
		if s == model.ItemFailure {
			r.Items[i].Diagnostic = "failed"
		}
	}
	return r
}
