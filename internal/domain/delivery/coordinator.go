// Package delivery hands processed chunks to sink adapters and reports the outcome.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// Adapter delivers the items of one processed chunk and returns one outcome per item,
// in the same order. An error means nothing can be said about the chunk and the unit of
// work must be redelivered.
type Adapter interface {
	Deliver(ctx context.Context, chunk *model.ChunkResult) ([]model.Outcome, error)
}

// AdapterFactory builds an adapter for one version of a sink configuration.
type AdapterFactory interface {
	NewAdapter(ctx context.Context, sink *model.SinkConfig) (Adapter, error)
}

// AdapterFactoryFunc adapts a function to AdapterFactory.
type AdapterFactoryFunc func(ctx context.Context, sink *model.SinkConfig) (Adapter, error)

// NewAdapter calls f.
func (f AdapterFactoryFunc) NewAdapter(ctx context.Context, sink *model.SinkConfig) (Adapter, error) {
	return f(ctx, sink)
}

// Reporter records delivered chunks. Implementations must be idempotent for identical
// results, reporting false, and return a conflict for a different result of an already
// delivered chunk.
type Reporter interface {
	RecordDeliveredChunk(ctx context.Context, result *model.ChunkResult) (bool, error)
}

// CoordinatorOptions groups dependencies for NewCoordinator.
type CoordinatorOptions struct {
	Factory  AdapterFactory
	Reporter Reporter
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// Coordinator keeps one adapter per sink, refreshed when a newer sink version shows up.
type Coordinator struct {
	factory  AdapterFactory
	reporter Reporter
	logger   *slog.Logger
	metrics  statsd.Sink

	mu       sync.Mutex
	adapters map[int64]*VersionedCache[Adapter]
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Factory == nil {
		return nil, errors.New("adapter factory is required")
	}
	if opts.Reporter == nil {
		return nil, errors.New("reporter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		factory:  opts.Factory,
		reporter: opts.Reporter,
		logger:   logger.With("component", "delivery_coordinator"),
		metrics:  opts.Metrics,
		adapters: make(map[int64]*VersionedCache[Adapter]),
	}, nil
}

func (c *Coordinator) cacheFor(sinkID int64) *VersionedCache[Adapter] {
	c.mu.Lock()
	defer c.mu.Unlock()
	vc, ok := c.adapters[sinkID]
	if !ok {
		vc = &VersionedCache[Adapter]{OnReplace: closeAdapter}
		c.adapters[sinkID] = vc
	}
	return vc
}

func closeAdapter(a Adapter) {
	if closer, ok := a.(io.Closer); ok {
		_ = closer.Close()
	}
}

// Deliver sends a processed chunk to the sink and reports the delivering result.
func (c *Coordinator) Deliver(ctx context.Context, processed *model.ChunkResult, sink *model.SinkConfig) (*model.ChunkResult, error) {
	if err := processed.Validate(); err != nil {
		return nil, err
	}
	if processed.Phase != state.PhaseProcessing {
		return nil, fmt.Errorf("cannot deliver a %s result", processed.Phase)
	}
	if sink == nil {
		return nil, errors.New("sink config is required")
	}

	start := time.Now()
	outcomes, err := c.deliver(ctx, processed, sink)
	if err != nil {
		c.count("delivery.failed", sink)
		return nil, err
	}

	delivered := &model.ChunkResult{
		JobID:   processed.JobID,
		ChunkID: processed.ChunkID,
		Phase:   state.PhaseDelivering,
		Items:   outcomes,
	}
	recorded, err := c.reporter.RecordDeliveredChunk(ctx, delivered)
	if err != nil {
		return nil, fmt.Errorf("record delivered chunk %d/%d: %w", processed.JobID, processed.ChunkID, err)
	}
	if !recorded {
		c.logger.InfoContext(ctx, "delivered chunk already recorded",
			"job_id", processed.JobID, "chunk_id", processed.ChunkID)
	}

	c.count("delivery.delivered", sink)
	if c.metrics != nil {
		c.metrics.Timing("delivery.duration", time.Since(start), map[string]string{"sink_type": string(sink.Type)})
	}
	return delivered, nil
}

func (c *Coordinator) deliver(ctx context.Context, processed *model.ChunkResult, sink *model.SinkConfig) ([]model.Outcome, error) {
	vc := c.cacheFor(sink.ID)
	previous, loaded := vc.Version()
	adapter, release, err := vc.Acquire(sink.Version, func() (Adapter, error) {
		a, buildErr := c.factory.NewAdapter(ctx, sink)
		if buildErr != nil {
			return nil, fmt.Errorf("build adapter for sink %d v%d: %w", sink.ID, sink.Version, buildErr)
		}
		if loaded {
			c.logger.InfoContext(ctx, "sink adapter refreshed",
				"sink_id", sink.ID, "from_version", previous, "to_version", sink.Version)
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	defer release()

	outcomes, err := adapter.Deliver(ctx, processed)
	if err != nil {
		return nil, fmt.Errorf("sink %d: %w", sink.ID, err)
	}
	if len(outcomes) != len(processed.Items) {
		return nil, fmt.Errorf("sink %d returned %d outcomes for %d items", sink.ID, len(outcomes), len(processed.Items))
	}
	for i := range outcomes {
		outcomes[i].ItemID = processed.Items[i].ItemID
		if !outcomes[i].Status.Valid() {
			return nil, fmt.Errorf("sink %d returned invalid status %q for item %d", sink.ID, outcomes[i].Status, outcomes[i].ItemID)
		}
	}
	return outcomes, nil
}

func (c *Coordinator) count(name string, sink *model.SinkConfig) {
	if c.metrics == nil {
		return
	}
	c.metrics.Count(name, 1, map[string]string{"sink_type": string(sink.Type)})
}
