package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - api",
			input:    "api",
			expected: map[ServiceMode]bool{ServiceModeAPI: true},
		},
		{
			name:     "single service - harvester",
			input:    "harvester",
			expected: map[ServiceMode]bool{ServiceModeHarvester: true},
		},
		{
			name:  "pipeline stages",
			input: "partitioner,processor,sink",
			expected: map[ServiceMode]bool{
				ServiceModePartitioner: true,
				ServiceModeProcessor:   true,
				ServiceModeSink:        true,
			},
		},
		{
			name:  "services with spaces",
			input: " api , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeAPI:    true,
				ServiceModeReaper: true,
			},
		},
		{
			name:     "duplicate services",
			input:    "sink,sink",
			expected: map[ServiceMode]bool{ServiceModeSink: true},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "api,http",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestAppConfig_ParseEnvDefaults(t *testing.T) {
	t.Setenv("SERVICES", "processor,sink")
	t.Setenv("TRANSPORT", "REDIS")
	t.Setenv("PROCESSOR_CONCURRENCY", "0")
	t.Setenv("STATESTORE_URL", "http://api:8080/ ")
	t.Setenv("DB_NAME", "imports")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Sanitize()

	if !cfg.IsEnabled(ServiceModeProcessor) || !cfg.IsEnabled(ServiceModeSink) {
		t.Fatalf("expected processor and sink enabled, got %q", cfg.Services)
	}
	if cfg.IsEnabled(ServiceModeAPI) {
		t.Fatal("api should not be enabled")
	}
	if cfg.Transport.Kind != TransportRedis {
		t.Fatalf("expected redis transport, got %q", cfg.Transport.Kind)
	}
	if cfg.Processor.Concurrency != 1 {
		t.Fatalf("expected concurrency clamped to 1, got %d", cfg.Processor.Concurrency)
	}
	if cfg.StateStore.URL != "http://api:8080" || !cfg.StateStore.IsRemote() {
		t.Fatalf("expected trimmed remote url, got %q", cfg.StateStore.URL)
	}
	if cfg.Postgres.Name != "imports" {
		t.Fatalf("expected DB_NAME to apply, got %q", cfg.Postgres.Name)
	}
	if !cfg.NeedsRedis() {
		t.Fatal("redis transport needs redis")
	}
	if cfg.NeedsDatabase() {
		t.Fatal("remote stage workers on redis should not need the database")
	}
}

func TestAppConfig_NeedsDatabase(t *testing.T) {
	cfg := AppConfig{Services: "processor", Transport: TransportConfig{Kind: TransportRedis}}
	if !cfg.NeedsDatabase() {
		t.Fatal("in-process state store needs the database")
	}

	cfg.StateStore.URL = "http://api"
	if cfg.NeedsDatabase() {
		t.Fatal("remote state store over redis should not need the database")
	}

	cfg.Transport.Kind = TransportPostgres
	if !cfg.NeedsDatabase() {
		t.Fatal("postgres transport needs the database")
	}

	cfg = AppConfig{Services: "api", StateStore: StateStoreClientConfig{URL: "http://api"}}
	if !cfg.NeedsDatabase() {
		t.Fatal("api always needs the database")
	}
}

func TestConfig_IsEnabledWithInvalidConfig(t *testing.T) {
	cfg := &AppConfig{Services: "api,unknown"}
	if cfg.IsEnabled(ServiceModeAPI) {
		t.Fatal("invalid service list should enable nothing")
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{
		ServiceModeAPI,
		ServiceModePartitioner,
		ServiceModeProcessor,
		ServiceModeSink,
		ServiceModeHarvester,
		ServiceModeReaper,
	}

	if len(modes) != len(expected) {
		t.Errorf("expected %d service modes, got %d", len(expected), len(modes))
	}

	for i, mode := range modes {
		if mode != expected[i] {
			t.Errorf("expected service mode %s at index %d, got %s", expected[i], i, mode)
		}
	}
}

func TestTransportConfig_Sanitize(t *testing.T) {
	cfg := TransportConfig{Kind: "kafka", LeaseDuration: time.Second, MaxDeliveries: 0, RetryDelay: -time.Second}
	cfg.Sanitize()

	if cfg.Kind != TransportPostgres {
		t.Fatalf("unknown transport should fall back to postgres, got %q", cfg.Kind)
	}
	if cfg.LeaseDuration != 5*time.Second {
		t.Fatalf("expected lease floor, got %v", cfg.LeaseDuration)
	}
	if cfg.MaxDeliveries != 1 || cfg.RetryDelay != 0 {
		t.Fatalf("unexpected clamps: %+v", cfg)
	}
	if cfg.StreamPrefix != "dataio" || cfg.ConsumerGroup != "dataio" {
		t.Fatalf("expected stream defaults, got %q/%q", cfg.StreamPrefix, cfg.ConsumerGroup)
	}
}

func TestReaperConfig_Sanitize(t *testing.T) {
	cfg := ReaperConfig{BatchSize: 50000}
	cfg.Sanitize()

	if cfg.Interval != time.Minute {
		t.Fatalf("expected interval floor, got %v", cfg.Interval)
	}
	if cfg.StalledJobAge != 5*time.Minute {
		t.Fatalf("expected stalled job floor, got %v", cfg.StalledJobAge)
	}
	if cfg.BatchSize != 1000 {
		t.Fatalf("expected batch size ceiling, got %d", cfg.BatchSize)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
			Channel:    "  ",
			Username:   "",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
			Source:     "",
			Component:  "",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled without a routing key")
	}
	if cfg.PagerDuty.Source != "dataio" {
		t.Fatalf("expected pagerduty source default, got %q", cfg.PagerDuty.Source)
	}
	if cfg.PagerDuty.Component != "pipeline" {
		t.Fatalf("expected pagerduty component default, got %q", cfg.PagerDuty.Component)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "abc",
		},
	}
	cfg.Sanitize()

	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled when top-level notifications disabled")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled when top-level notifications disabled")
	}
}

func TestObservabilityNotificationsConfig_SanitizeStages(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Stages:      []string{" Sink", "processor", "sink", "ui", ""},
		DedupWindow: -time.Minute,
	}
	cfg.Sanitize()

	if len(cfg.Stages) != 2 || cfg.Stages[0] != "sink" || cfg.Stages[1] != "processor" {
		t.Fatalf("unexpected stages after sanitize: %v", cfg.Stages)
	}
	if cfg.DedupWindow != 0 {
		t.Fatalf("expected negative dedup window to be cleared, got %v", cfg.DedupWindow)
	}
}
