// Package sinks provides the delivery adapters behind sink configurations.
package sinks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/dataio-go/internal/domain/delivery"
	"github.com/target/dataio-go/internal/domain/model"
)

// FactoryOptions configures the adapter factory.
type FactoryOptions struct {
	// HTTPClient is the base client for http sinks; each adapter layers its own timeout
	// and, when configured, OAuth2 token handling on top of its transport.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Factory builds adapters by sink type.
type Factory struct {
	base   *http.Client
	logger *slog.Logger
}

var _ delivery.AdapterFactory = (*Factory)(nil)

// NewFactory constructs a Factory.
func NewFactory(opts FactoryOptions) *Factory {
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{base: base, logger: logger}
}

// NewAdapter implements delivery.AdapterFactory.
func (f *Factory) NewAdapter(ctx context.Context, sink *model.SinkConfig) (delivery.Adapter, error) {
	if sink == nil {
		return nil, errors.New("sink config is required")
	}
	switch sink.Type {
	case model.SinkTypeDummy:
		return Dummy{}, nil
	case model.SinkTypeHTTP:
		a, err := NewHTTPAdapter(ctx, HTTPAdapterOptions{
			Sink:       sink,
			HTTPClient: f.base,
			Logger:     f.logger,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unsupported sink type %q", sink.Type)
	}
}
