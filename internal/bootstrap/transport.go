package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/dataio-go/config"
	"github.com/target/dataio-go/internal/adapters/reaper"
	redisadapter "github.com/target/dataio-go/internal/adapters/redis"
	"github.com/target/dataio-go/internal/data"
	"github.com/target/dataio-go/internal/messaging"
)

// TransportDeps groups the connections a transport may be built on.
type TransportDeps struct {
	Config      config.TransportConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// TransportBundle is the selected transport plus the dead-letter store the reaper
// should purge. DeadLetters is nil when dead letters live in the Postgres table.
type TransportBundle struct {
	Transport   messaging.Transport
	DeadLetters reaper.DeadLetterPurger
}

// BuildTransport selects the message transport named by cfg.Kind.
func BuildTransport(deps TransportDeps) (TransportBundle, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	switch cfg.Kind {
	case config.TransportPostgres, "":
		if deps.DB == nil {
			return TransportBundle{}, errors.New("postgres transport requires a database connection")
		}
		repo := data.NewMessageQueueRepo(deps.DB, data.MessageQueueConfig{
			RepoConfig:    data.RepoConfig{Logger: logger},
			LeaseDuration: cfg.LeaseDuration,
			RetryDelay:    cfg.RetryDelay,
			MaxDeliveries: cfg.MaxDeliveries,
		})
		return TransportBundle{Transport: repo}, nil

	case config.TransportRedis:
		if deps.RedisClient == nil {
			return TransportBundle{}, errors.New("redis transport requires a redis connection")
		}
		streams, err := redisadapter.NewStreamTransport(redisadapter.StreamTransportOptions{
			Client:        deps.RedisClient,
			Prefix:        cfg.StreamPrefix,
			Group:         cfg.ConsumerGroup,
			LeaseDuration: cfg.LeaseDuration,
			RetryDelay:    cfg.RetryDelay,
			MaxDeliveries: cfg.MaxDeliveries,
			Logger:        logger,
		})
		if err != nil {
			return TransportBundle{}, fmt.Errorf("create redis stream transport: %w", err)
		}
		return TransportBundle{Transport: streams, DeadLetters: streams}, nil

	case config.TransportMemory:
		logger.Warn("using in-memory transport; messages do not survive a restart")
		return TransportBundle{Transport: messaging.NewMemoryTransport()}, nil

	default:
		return TransportBundle{}, fmt.Errorf("unknown transport %q", cfg.Kind)
	}
}
