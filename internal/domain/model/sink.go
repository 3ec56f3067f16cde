package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SinkType selects the adapter used to deliver chunks.
type SinkType string

const (
	// SinkTypeDummy acknowledges every item without sending it anywhere.
	SinkTypeDummy SinkType = "dummy"
	// SinkTypeHTTP posts chunks as JSON to an endpoint.
	SinkTypeHTTP SinkType = "http"
)

// Valid reports whether t is a known sink type.
func (t SinkType) Valid() bool {
	return t == SinkTypeDummy || t == SinkTypeHTTP
}

// SinkSettings holds adapter settings. Only the fields relevant to the sink type are used.
type SinkSettings struct {
	Endpoint     string            `json:"endpoint,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"body_template,omitempty"` // JMESPath over {job_id, chunk_id, items}
	Timeout      string            `json:"timeout,omitempty"`       // Go duration, default 30s
	TokenURL     string            `json:"token_url,omitempty"`
	ClientID     string            `json:"client_id,omitempty"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Scopes       []string          `json:"scopes,omitempty"`
}

// SinkConfig is a versioned delivery destination. Every update bumps Version.
type SinkConfig struct {
	ID        int64        `json:"id"         db:"id"`
	Name      string       `json:"name"       db:"name"`
	Type      SinkType     `json:"type"       db:"type"`
	Settings  SinkSettings `json:"settings"   db:"settings"`
	Version   int64        `json:"version"    db:"version"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// SinkRequest creates or replaces a sink.
type SinkRequest struct {
	Name     string       `json:"name"`
	Type     SinkType     `json:"type"`
	Settings SinkSettings `json:"settings"`
}

// Validate checks the request for its sink type.
func (r *SinkRequest) Validate() error {
	if r == nil {
		return errors.New("sink request is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("invalid sink type %q", r.Type)
	}
	if r.Type != SinkTypeHTTP {
		return nil
	}
	u, err := url.Parse(r.Settings.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("settings.endpoint must be an absolute http(s) URL")
	}
	if r.Settings.Timeout != "" {
		if _, err := time.ParseDuration(r.Settings.Timeout); err != nil {
			return fmt.Errorf("settings.timeout: %w", err)
		}
	}
	if r.Settings.TokenURL != "" && r.Settings.ClientID == "" {
		return errors.New("settings.client_id is required with token_url")
	}
	return nil
}
