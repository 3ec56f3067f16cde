// Package failurenotifier fans pipeline failures out to the configured alert sinks.
package failurenotifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/messaging"
	obserrors "github.com/target/dataio-go/internal/observability/errors"
	"github.com/target/dataio-go/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	Now    func() time.Time
	// Stages limits alerts to these stages; empty allows every stage.
	Stages          []string
	IncludeTestJobs bool
	// DedupWindow suppresses repeats for the same job, stage and error class.
	DedupWindow time.Duration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger          *slog.Logger
	sinks           []SinkRegistration
	now             func() time.Time
	stages          []string
	includeTestJobs bool
	dedupWindow     time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:          logger.With("component", "failure_notifier"),
		sinks:           sinks,
		now:             now,
		stages:          opts.Stages,
		includeTestJobs: opts.IncludeTestJobs,
		dedupWindow:     opts.DedupWindow,
		lastSent:        map[string]time.Time{},
	}
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// NotifyFailure fans the payload out to all sinks and waits for them. Payloads filtered
// by stage, TEST job kind or the dedup window are only logged.
func (s *Service) NotifyFailure(ctx context.Context, payload notify.FailurePayload) {
	if !s.Enabled() {
		return
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.now()
	}
	if reason := s.suppressed(payload); reason != "" {
		s.logger.DebugContext(ctx, "notification suppressed",
			"reason", reason, "stage", payload.Stage, "subject", payload.Subject())
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"subject", payload.Subject(),
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

func (s *Service) suppressed(p notify.FailurePayload) string {
	if len(s.stages) > 0 && !slices.Contains(s.stages, p.Stage) {
		return "stage filtered"
	}
	if p.JobKind == string(model.JobKindTest) && !s.includeTestJobs {
		return "test job"
	}
	if s.dedupWindow <= 0 || (p.JobID == 0 && p.Harvester == "") {
		return ""
	}

	key := fmt.Sprintf("%s|%d|%s|%s", p.Stage, p.JobID, p.Harvester, p.ErrorClass)
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[key]; ok && p.OccurredAt.Sub(last) < s.dedupWindow {
		return "duplicate"
	}
	s.lastSent[key] = p.OccurredAt
	for k, t := range s.lastSent {
		if p.OccurredAt.Sub(t) >= s.dedupWindow {
			delete(s.lastSent, k)
		}
	}
	return ""
}

// unitOfWork picks the identifiers shared by every pipeline payload body.
type unitOfWork struct {
	JobID   int64 `json:"job_id"`
	ChunkID *int  `json:"chunk_id"`
}

// MessageHook returns a router hook that alerts on dead-lettered messages of stage.
func (s *Service) MessageHook(stage string) messaging.FatalHook {
	return func(ctx context.Context, d *messaging.Delivery, err error) {
		if !s.Enabled() || d == nil {
			return
		}
		payload := notify.FailurePayload{
			Stage:      stage,
			Queue:      d.Queue,
			Error:      err.Error(),
			ErrorClass: obserrors.Classify(err),
			Metadata:   map[string]string{},
		}
		if env := d.Envelope; env != nil {
			payload.MessageID = env.ID
			payload.PayloadType = string(env.Headers.PayloadType)
			if env.Headers.Resource != "" {
				payload.Metadata["resource"] = env.Headers.Resource
			}
			var unit unitOfWork
			if json.Unmarshal(env.Body, &unit) == nil {
				payload.JobID = unit.JobID
				payload.ChunkID = unit.ChunkID
			}
		}
		s.NotifyFailure(ctx, payload)
	}
}
