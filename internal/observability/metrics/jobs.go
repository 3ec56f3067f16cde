// Package metrics holds the metric names and tag conventions shared by pipeline stages.
package metrics

import (
	"time"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	obserrors "github.com/target/dataio-go/internal/observability/errors"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// StageMetric captures one unit of work done by a pipeline stage.
type StageMetric struct {
	Stage     string // partitioner, processor, sink, harvester, reaper
	Operation string
	Result    string
	Items     int
	Duration  time.Duration
	Err       error
}

// EmitStage emits standardised stage metrics: a counter, an item counter and a timing.
func EmitStage(sink statsd.Sink, in StageMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"stage":     in.Stage,
		"operation": in.Operation,
		"result":    in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("stage.operation", 1, tags)
	if in.Items > 0 {
		sink.Count("stage.items", int64(in.Items), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("stage.duration", in.Duration, CloneTags(tags))
	}
}

// ResultFor maps an error to ResultSuccess or ResultError.
func ResultFor(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// EmitJobProgress reports per-phase counters of job as gauges.
func EmitJobProgress(sink statsd.Sink, job *model.Job) {
	if sink == nil || job == nil {
		return
	}
	for _, phase := range state.Phases() {
		e := job.State.Element(phase)
		tags := map[string]string{
			"phase": string(phase),
			"kind":  string(job.Specification.Kind),
		}
		sink.Gauge("job.phase.pending", float64(e.Pending), tags)
		sink.Gauge("job.phase.active", float64(e.Active), CloneTags(tags))
	}
	if job.Completed() {
		tags := map[string]string{"kind": string(job.Specification.Kind)}
		sink.Count("job.completed", 1, tags)
		if !job.CreatedAt.IsZero() {
			sink.Timing("job.duration", job.CompletedAt.Sub(job.CreatedAt), CloneTags(tags))
		}
	}
}

// CloneTags creates a shallow copy of a tag map. Nil or empty maps yield nil.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
