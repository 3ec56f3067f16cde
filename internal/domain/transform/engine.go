// Package transform runs a job's flow over the items of a chunk.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	"github.com/target/dataio-go/internal/observability/statsd"
	"golang.org/x/sync/singleflight"
)

// ChunkFetcher returns the items of a chunk ordered by item id.
type ChunkFetcher interface {
	GetChunkItems(ctx context.Context, jobID int64, chunkID int) ([]model.Item, error)
}

// JobReader returns the job record, used to find the flow a job is pinned to.
type JobReader interface {
	GetJob(ctx context.Context, id int64) (*model.Job, error)
}

// FlowLoader returns one version of a flow.
type FlowLoader interface {
	GetFlow(ctx context.Context, id, version int64) (*model.Flow, error)
}

// EngineOptions groups dependencies for NewEngine.
type EngineOptions struct {
	Chunks  ChunkFetcher
	Jobs    JobReader
	Flows   FlowLoader
	Logger  *slog.Logger
	Metrics statsd.Sink
	// MaxCachedJobs bounds the per-job script cache. Defaults to 256.
	MaxCachedJobs int
}

// Engine transforms chunks. It is safe for concurrent use; chunks of the same job may be
// processed in parallel and share one compiled script.
type Engine struct {
	chunks  ChunkFetcher
	jobs    JobReader
	flows   FlowLoader
	logger  *slog.Logger
	metrics statsd.Sink

	mu      sync.RWMutex
	scripts map[int64]*Script
	order   []int64
	max     int
	group   singleflight.Group
}

// NewEngine constructs an Engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Chunks == nil || opts.Jobs == nil || opts.Flows == nil {
		return nil, errors.New("chunks, jobs and flows are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.MaxCachedJobs
	if limit <= 0 {
		limit = 256
	}
	return &Engine{
		chunks:  opts.Chunks,
		jobs:    opts.Jobs,
		flows:   opts.Flows,
		logger:  logger.With("component", "transform_engine"),
		metrics: opts.Metrics,
		scripts: make(map[int64]*Script),
		max:     limit,
	}, nil
}

// Process runs the job's flow over every item of the chunk and returns the processing
// result in item order. Item failures are recorded per item; only fetch and flow load
// failures are returned as errors.
func (e *Engine) Process(ctx context.Context, jobID int64, chunkID int) (*model.ChunkResult, error) {
	start := time.Now()
	script, err := e.script(ctx, jobID)
	if err != nil {
		return nil, err
	}
	items, err := e.chunks.GetChunkItems(ctx, jobID, chunkID)
	if err != nil {
		return nil, fmt.Errorf("fetch chunk %d/%d: %w", jobID, chunkID, err)
	}

	result := &model.ChunkResult{
		JobID:   jobID,
		ChunkID: chunkID,
		Phase:   state.PhaseProcessing,
		Items:   make([]model.Outcome, 0, len(items)),
	}
	for _, item := range items {
		outcome := e.processItem(script, item)
		if outcome.Status == model.ItemFailure {
			e.logger.DebugContext(ctx, "item failed",
				"job_id", jobID, "chunk_id", chunkID, "item_id", item.ItemID, "diagnostic", outcome.Diagnostic)
		}
		result.Items = append(result.Items, outcome)
	}

	if e.metrics != nil {
		succeeded, failed, ignored := result.Counts()
		e.metrics.Count("transform.items", succeeded, map[string]string{"status": "success"})
		e.metrics.Count("transform.items", failed, map[string]string{"status": "failure"})
		e.metrics.Count("transform.items", ignored, map[string]string{"status": "ignore"})
		e.metrics.Timing("transform.chunk_duration", time.Since(start), nil)
	}
	return result, nil
}

func (e *Engine) processItem(script *Script, item model.Item) model.Outcome {
	out := model.Outcome{ItemID: item.ItemID}
	src := item.PartitioningOutcome
	switch {
	case src == nil:
		out.Status = model.ItemFailure
		out.Diagnostic = "item has no partitioning outcome"
		return out
	case src.Status == model.ItemFailure || src.Status == model.ItemIgnore:
		out.Status = model.ItemIgnore
		out.Diagnostic = "item was not partitioned: " + src.Diagnostic
		return out
	}

	data, err := ToUTF8(src.Data, src.Encoding)
	if err != nil {
		out.Status = model.ItemFailure
		out.Diagnostic = err.Error()
		return out
	}
	value, err := script.Invoke(decodeInput(data))
	if err != nil {
		out.Status = model.ItemFailure
		out.Diagnostic = err.Error()
		return out
	}
	if value == nil {
		out.Status = model.ItemIgnore
		return out
	}
	encoded, err := encodeOutput(value)
	if err != nil {
		out.Status = model.ItemFailure
		out.Diagnostic = fmt.Sprintf("encode result: %v", err)
		return out
	}
	out.Status = model.ItemSuccess
	out.Data = encoded
	out.Encoding = OutputEncoding
	return out
}

// flowLoadTimeout bounds a shared flow load. The load is detached from the caller that
// started it, so chunks waiting on the same job are not failed by that caller's cancellation.
const flowLoadTimeout = 30 * time.Second

// script returns the compiled flow for a job, loading it at most once per job even when
// several chunks of that job arrive together.
func (e *Engine) script(ctx context.Context, jobID int64) (*Script, error) {
	e.mu.RLock()
	s, ok := e.scripts[jobID]
	e.mu.RUnlock()
	if ok {
		return s, nil
	}

	ch := e.group.DoChan(strconv.FormatInt(jobID, 10), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flowLoadTimeout)
		defer cancel()
		return e.load(loadCtx, jobID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Script), nil
	}
}

func (e *Engine) load(ctx context.Context, jobID int64) (*Script, error) {
	e.mu.RLock()
	cached, ok := e.scripts[jobID]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %d: %w", jobID, err)
	}
	flow, err := e.flows.GetFlow(ctx, job.FlowID, job.FlowVersion)
	if err != nil {
		return nil, fmt.Errorf("load flow %d v%d for job %d: %w", job.FlowID, job.FlowVersion, jobID, err)
	}
	compiled, err := Compile(flow)
	if err != nil {
		return nil, err
	}
	e.store(jobID, compiled)
	e.logger.InfoContext(ctx, "flow loaded",
		"job_id", jobID, "flow_id", flow.ID, "flow_version", flow.Version, "modules", len(compiled.modules))
	return compiled, nil
}

func (e *Engine) store(jobID int64, s *Script) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.scripts[jobID]; !exists {
		e.order = append(e.order, jobID)
	}
	e.scripts[jobID] = s
	for len(e.order) > e.max {
		delete(e.scripts, e.order[0])
		e.order = e.order[1:]
	}
}

// Forget drops the cached script of a finished job.
func (e *Engine) Forget(jobID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.scripts[jobID]; !ok {
		return
	}
	delete(e.scripts, jobID)
	for i, id := range e.order {
		if id == jobID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}
