package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"dataio"`
	Password string `env:"PASSWORD"                envDefault:"dataio"`
	Name     string `env:"NAME"                    envDefault:"dataio"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"25"`
	// MaxIdleConns of 0 keeps a fifth of MaxOpenConns idle.
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"0"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`

	Connect ConnectRetry `envPrefix:"CONNECT_"`
}

// ConnectRetry bounds how long startup waits for a backing store to accept connections.
type ConnectRetry struct {
	Attempts int           `env:"ATTEMPTS" envDefault:"5"`
	Delay    time.Duration `env:"DELAY"    envDefault:"2s"`
}

// Sanitize applies guardrails to pool and retry settings.
func (c *DBConfig) Sanitize() {
	if c.MaxOpenConns < 1 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 || c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = max(c.MaxOpenConns/5, 1)
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	c.Connect.sanitize()
}

func (r *ConnectRetry) sanitize() {
	if r.Attempts < 1 {
		r.Attempts = 1
	}
	if r.Delay < 0 {
		r.Delay = 0
	}
}

// DSN builds a pgx connection URL, escaping credentials.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`

	Connect ConnectRetry `envPrefix:"CONNECT_"`
}

// Sanitize applies guardrails to retry settings.
func (c *RedisConfig) Sanitize() {
	c.Connect.sanitize()
}
