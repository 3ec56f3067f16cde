package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeAPI serves the state store REST API.
	ServiceModeAPI ServiceMode = "api"
	// ServiceModePartitioner splits new jobs into chunks.
	ServiceModePartitioner ServiceMode = "partitioner"
	// ServiceModeProcessor runs flows over chunks.
	ServiceModeProcessor ServiceMode = "processor"
	// ServiceModeSink delivers processed chunks and records delivery results.
	ServiceModeSink ServiceMode = "sink"
	// ServiceModeHarvester runs the harvester scheduler.
	ServiceModeHarvester ServiceMode = "harvester"
	// ServiceModeReaper purges dead letters, orphaned files and re-announces stalled jobs.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeAPI,
		ServiceModePartitioner,
		ServiceModeProcessor,
		ServiceModeSink,
		ServiceModeHarvester,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeAPI,
			ServiceModePartitioner,
			ServiceModeProcessor,
			ServiceModeSink,
			ServiceModeHarvester,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: api, partitioner, processor, sink, harvester, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// TransportKind selects the message transport between stages.
type TransportKind string

const (
	TransportPostgres TransportKind = "postgres"
	TransportRedis    TransportKind = "redis"
	// TransportMemory only connects stages running in the same process.
	TransportMemory TransportKind = "memory"
)

// TransportConfig contains message transport configuration.
type TransportConfig struct {
	Kind TransportKind `env:"TRANSPORT" envDefault:"postgres"`

	// LeaseDuration is how long a received message stays invisible to other consumers.
	LeaseDuration time.Duration `env:"TRANSPORT_LEASE" envDefault:"5m"`

	// RetryDelay postpones redelivery after a failed attempt (Postgres only).
	RetryDelay time.Duration `env:"TRANSPORT_RETRY_DELAY" envDefault:"10s"`

	// MaxDeliveries dead-letters a message received more often than this.
	MaxDeliveries int `env:"TRANSPORT_MAX_DELIVERIES" envDefault:"10"`

	// PollInterval is the idle wait between empty receives.
	PollInterval time.Duration `env:"TRANSPORT_POLL_INTERVAL" envDefault:"1s"`

	// StreamPrefix and ConsumerGroup configure the Redis Streams transport.
	StreamPrefix  string `env:"TRANSPORT_REDIS_STREAM_PREFIX"  envDefault:"dataio"`
	ConsumerGroup string `env:"TRANSPORT_REDIS_CONSUMER_GROUP" envDefault:"dataio"`
}

// Sanitize applies guardrails to transport configuration values.
func (t *TransportConfig) Sanitize() {
	t.Kind = TransportKind(strings.ToLower(strings.TrimSpace(string(t.Kind))))
	switch t.Kind {
	case TransportPostgres, TransportRedis, TransportMemory:
	default:
		t.Kind = TransportPostgres
	}
	if t.LeaseDuration < 5*time.Second {
		t.LeaseDuration = 5 * time.Second
	}
	if t.RetryDelay < 0 {
		t.RetryDelay = 0
	}
	if t.MaxDeliveries < 1 {
		t.MaxDeliveries = 1
	}
	if t.PollInterval < 10*time.Millisecond {
		t.PollInterval = 10 * time.Millisecond
	}
	if t.StreamPrefix = strings.TrimSpace(t.StreamPrefix); t.StreamPrefix == "" {
		t.StreamPrefix = "dataio"
	}
	if t.ConsumerGroup = strings.TrimSpace(t.ConsumerGroup); t.ConsumerGroup == "" {
		t.ConsumerGroup = "dataio"
	}
}

// PartitionerConfig contains partitioner service configuration.
type PartitionerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"PARTITIONER_CONCURRENCY" envDefault:"1"`
}

// Sanitize applies guardrails to partitioner configuration values.
func (p *PartitionerConfig) Sanitize() {
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
}

// ProcessorConfig contains processor service configuration.
type ProcessorConfig struct {
	// Concurrency is the number of chunks processed in parallel.
	Concurrency int `env:"PROCESSOR_CONCURRENCY" envDefault:"4"`

	// MaxCachedJobs bounds the per-job compiled flow cache.
	MaxCachedJobs int `env:"PROCESSOR_MAX_CACHED_JOBS" envDefault:"256"`

	// FlowCacheEnabled shares loaded flows between processors through Redis.
	FlowCacheEnabled bool          `env:"PROCESSOR_FLOW_CACHE_ENABLED" envDefault:"false"`
	FlowCacheTTL     time.Duration `env:"PROCESSOR_FLOW_CACHE_TTL"     envDefault:"24h"`
}

// Sanitize applies guardrails to processor configuration values.
func (p *ProcessorConfig) Sanitize() {
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	if p.MaxCachedJobs < 1 {
		p.MaxCachedJobs = 1
	}
	if p.FlowCacheTTL < time.Minute {
		p.FlowCacheTTL = time.Minute
	}
}

// SinkConfig contains sink service configuration.
type SinkConfig struct {
	// Concurrency is the number of chunks delivered in parallel.
	Concurrency int `env:"SINK_CONCURRENCY" envDefault:"4"`

	// RecorderConcurrency is the number of workers consuming delivered chunk results.
	RecorderConcurrency int `env:"SINK_RECORDER_CONCURRENCY" envDefault:"1"`
}

// Sanitize applies guardrails to sink configuration values.
func (s *SinkConfig) Sanitize() {
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.RecorderConcurrency < 1 {
		s.RecorderConcurrency = 1
	}
}

// HarvesterConfig contains harvester scheduler configuration.
type HarvesterConfig struct {
	// DefinitionsFile is a TOML file describing harvesters and their sources.
	DefinitionsFile string `env:"HARVESTERS_FILE" envDefault:"harvesters.toml"`

	// WALDir holds one write-ahead log file per harvester.
	WALDir string `env:"HARVESTER_WAL_DIR" envDefault:"/var/lib/dataio/wal"`

	// StagingDir holds data pulled from a source before it is uploaded.
	StagingDir string `env:"HARVESTER_STAGING_DIR" envDefault:"/var/lib/dataio/staging"`

	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"HARVESTER_INTERVAL" envDefault:"1m"`

	// MinSpacing is the minimum time between two runs of the same harvester.
	MinSpacing time.Duration `env:"HARVESTER_MIN_SPACING" envDefault:"24h"`
}

// Sanitize applies guardrails to harvester configuration values.
func (h *HarvesterConfig) Sanitize() {
	h.DefinitionsFile = strings.TrimSpace(h.DefinitionsFile)
	if h.Interval < time.Second {
		h.Interval = time.Second
	}
	if h.MinSpacing < 0 {
		h.MinSpacing = 0
	}
}

// ReaperConfig contains reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// DeadLetterMaxAge is how long dead-lettered messages are kept for operators.
	DeadLetterMaxAge time.Duration `env:"REAPER_DEAD_LETTER_MAX_AGE" envDefault:"336h"` // 14 days

	// OrphanFileMaxAge is the age after which uploaded files no job references are deleted.
	OrphanFileMaxAge time.Duration `env:"REAPER_ORPHAN_FILE_MAX_AGE" envDefault:"24h"`

	// StalledJobAge is how long a job may wait for partitioning before it is announced again.
	StalledJobAge time.Duration `env:"REAPER_STALLED_JOB_AGE" envDefault:"1h"`

	// BatchSize is the maximum number of stalled jobs re-announced per tick.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.DeadLetterMaxAge < 1*time.Hour {
		r.DeadLetterMaxAge = 1 * time.Hour
	}
	if r.OrphanFileMaxAge < 1*time.Hour {
		r.OrphanFileMaxAge = 1 * time.Hour
	}
	if r.StalledJobAge < 5*time.Minute {
		r.StalledJobAge = 5 * time.Minute
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 1000 {
		r.BatchSize = 1000
	}
}
