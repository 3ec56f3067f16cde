package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/dataio-go/config"
	"github.com/target/dataio-go/internal/adapters/statestoreclient"
	"github.com/target/dataio-go/internal/messaging"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "api only",
			modes: []config.ServiceMode{config.ServiceModeAPI},
			want:  1,
		},
		{
			name:  "partitioner and processor",
			modes: []config.ServiceMode{config.ServiceModePartitioner, config.ServiceModeProcessor},
			want:  2,
		},
		{
			name:  "all services enabled",
			modes: config.ValidServiceModes(),
			want:  6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
			if got := errorChannelBufferSize(enabled); got != tt.want+1 {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want+1)
			}
		})
	}
}

func TestValidateServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.AppConfig
		wantErr bool
	}{
		{name: "nil", wantErr: true},
		{name: "api", cfg: &config.AppConfig{Services: "api"}},
		{name: "unknown service", cfg: &config.AppConfig{Services: "api,rules"}, wantErr: true},
		{
			name: "memory transport with remote state store",
			cfg: &config.AppConfig{
				Services:   "processor",
				Transport:  config.TransportConfig{Kind: config.TransportMemory},
				StateStore: config.StateStoreClientConfig{URL: "http://api:8080"},
			},
			wantErr: true,
		},
		{
			name: "remote state store over redis",
			cfg: &config.AppConfig{
				Services:   "processor,sink",
				Transport:  config.TransportConfig{Kind: config.TransportRedis},
				StateStore: config.StateStoreClientConfig{URL: "http://api:8080"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGetEnabledServices_StableOrder(t *testing.T) {
	cfg := &config.AppConfig{Services: "reaper, sink,api"}
	assert.Equal(t, []string{"api", "sink", "reaper"}, GetEnabledServices(cfg))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestBuildTransport(t *testing.T) {
	bundle, err := BuildTransport(TransportDeps{
		Config: config.TransportConfig{Kind: config.TransportMemory},
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	assert.IsType(t, &messaging.MemoryTransport{}, bundle.Transport)
	assert.Nil(t, bundle.DeadLetters)

	_, err = BuildTransport(TransportDeps{Config: config.TransportConfig{Kind: config.TransportPostgres}})
	require.Error(t, err)

	_, err = BuildTransport(TransportDeps{Config: config.TransportConfig{Kind: config.TransportRedis}})
	require.Error(t, err)

	_, err = BuildTransport(TransportDeps{Config: config.TransportConfig{Kind: "kafka"}})
	require.Error(t, err)
}

func TestNewServices_RemoteStateStore(t *testing.T) {
	cfg := &config.AppConfig{
		Services:   "partitioner",
		Transport:  config.TransportConfig{Kind: config.TransportMemory},
		StateStore: config.StateStoreClientConfig{URL: "http://api:8080", Timeout: time.Second},
	}
	services, err := NewServices(&ServiceDeps{Config: cfg, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Nil(t, services.Local)
	assert.Nil(t, services.Catalog)
	assert.IsType(t, &statestoreclient.Client{}, services.StateStore)
	assert.NotNil(t, services.Transport)
	assert.Nil(t, services.Observability.Metrics())
	assert.False(t, services.Observability.FailureNotifier.Enabled())
}

func TestNewServices_RequiresStateStore(t *testing.T) {
	cfg := &config.AppConfig{
		Services:  "partitioner",
		Transport: config.TransportConfig{Kind: config.TransportMemory},
	}
	_, err := NewServices(&ServiceDeps{Config: cfg, Logger: quietLogger()})
	require.Error(t, err)

	_, err = NewServices(nil)
	require.Error(t, err)
}

func TestBuildObservability_JobURLPrefixFromBaseURL(t *testing.T) {
	obs := buildObservability(quietLogger(), config.ObservabilityConfig{}, "https://dataio.example.com")
	assert.Equal(t, "https://dataio.example.com/api/jobs/", obs.NotifierConfig.Slack.JobURLPrefix)

	cfg := config.ObservabilityConfig{}
	cfg.Notifications.Slack.JobURLPrefix = "https://ui.example.com/jobs/"
	obs = buildObservability(quietLogger(), cfg, "https://dataio.example.com")
	assert.Equal(t, "https://ui.example.com/jobs/", obs.NotifierConfig.Slack.JobURLPrefix)
}

func TestLaunchBackground_ReportsErrors(t *testing.T) {
	errCh := make(chan error, 1)
	deps := &serviceStartupDeps{
		ctx:             context.Background(),
		logger:          quietLogger(),
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeSink: true},
		errCh:           errCh,
	}

	done := launchBackground(context.Background(), deps, backgroundService{
		mode:  config.ServiceModeSink,
		name:  "sink",
		start: func(context.Context) error { return errors.New("boom") },
	})
	require.NotNil(t, done)
	<-done

	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink failed: boom")

	skipped := launchBackground(context.Background(), deps, backgroundService{
		mode:  config.ServiceModeReaper,
		name:  "reaper",
		start: func(context.Context) error { return nil },
	})
	assert.Nil(t, skipped)
}

func TestMinSpacing(t *testing.T) {
	assert.Negative(t, minSpacing(0))
	assert.Equal(t, time.Hour, minSpacing(time.Hour))
}
