package config

import (
	"strings"
	"time"
)

// HTTPConfig contains REST API server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the externally reachable URL of the API, used for links in notifications.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// MaxUploadBytes bounds the size of POST /api/files bodies.
	MaxUploadBytes int64 `env:"HTTP_MAX_UPLOAD_BYTES" envDefault:"268435456"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"15s"`
}

// StateStoreClientConfig points stage workers and harvesters at a remote REST API.
// When URL is empty they use the state store in-process against the database.
type StateStoreClientConfig struct {
	URL     string        `env:"STATESTORE_URL"`
	Timeout time.Duration `env:"STATESTORE_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to state store client configuration values.
func (c *StateStoreClientConfig) Sanitize() {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// IsRemote reports whether the state store is reached over HTTP.
func (c *StateStoreClientConfig) IsRemote() bool {
	return c.URL != ""
}
