package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/transform"
	apperrors "github.com/target/dataio-go/internal/errors"
)

// CatalogServiceOptions groups dependencies for CatalogService.
type CatalogServiceOptions struct {
	Repos  CatalogRepos // Required
	Logger *slog.Logger // Optional
}

// CatalogRepos groups the configuration repositories.
type CatalogRepos struct {
	Flows      core.FlowRepository
	Sinks      core.SinkRepository
	Harvesters core.HarvesterConfigRepository
}

// CatalogService manages the versioned configuration jobs refer to: flows, sinks and
// harvester definitions. Definitions are validated before they are stored so a broken
// flow or template is rejected at the API rather than failing every chunk.
type CatalogService struct {
	flows      core.FlowRepository
	sinks      core.SinkRepository
	harvesters core.HarvesterConfigRepository
	logger     *slog.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(opts CatalogServiceOptions) (*CatalogService, error) {
	if opts.Repos.Flows == nil || opts.Repos.Sinks == nil || opts.Repos.Harvesters == nil {
		return nil, errors.New("flow, sink and harvester repositories are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{
		flows:      opts.Repos.Flows,
		sinks:      opts.Repos.Sinks,
		harvesters: opts.Repos.Harvesters,
		logger:     logger.With("component", "catalog_service"),
	}, nil
}

func validateFlow(req *model.FlowRequest) error {
	if err := req.Validate(); err != nil {
		return apperrors.Validation(err.Error())
	}
	_, err := transform.Compile(&model.Flow{Name: req.Name, Modules: req.Modules, InvocationMethod: req.InvocationMethod})
	if err != nil {
		return apperrors.ValidationField("modules", err.Error())
	}
	return nil
}

func validateSink(req *model.SinkRequest) error {
	if err := req.Validate(); err != nil {
		return apperrors.Validation(err.Error())
	}
	if tpl := req.Settings.BodyTemplate; tpl != "" {
		if _, err := jmespath.Compile(tpl); err != nil {
			return apperrors.ValidationField("settings.body_template", err.Error())
		}
	}
	return nil
}

// CreateFlow stores version 1 of a new flow.
func (s *CatalogService) CreateFlow(ctx context.Context, req *model.FlowRequest) (*model.Flow, error) {
	if err := validateFlow(req); err != nil {
		return nil, err
	}
	return s.flows.Create(ctx, req)
}

// UpdateFlow stores a new version of a flow. Jobs already created keep their pinned version.
func (s *CatalogService) UpdateFlow(ctx context.Context, id int64, req *model.FlowRequest) (*model.Flow, error) {
	if err := validateFlow(req); err != nil {
		return nil, err
	}
	return s.flows.Update(ctx, id, req)
}

// GetFlow returns a flow version; 0 means latest.
func (s *CatalogService) GetFlow(ctx context.Context, id, version int64) (*model.Flow, error) {
	return s.flows.Get(ctx, id, version)
}

// ListFlows returns the latest version of every flow.
func (s *CatalogService) ListFlows(ctx context.Context) ([]*model.Flow, error) {
	return s.flows.List(ctx)
}

// CreateSink stores a new sink.
func (s *CatalogService) CreateSink(ctx context.Context, req *model.SinkRequest) (*model.SinkConfig, error) {
	if err := validateSink(req); err != nil {
		return nil, err
	}
	return s.sinks.Create(ctx, req)
}

// UpdateSink replaces a sink's settings and bumps its version. Sink workers rebuild
// their adapter the next time they see the new version.
func (s *CatalogService) UpdateSink(ctx context.Context, id int64, req *model.SinkRequest) (*model.SinkConfig, error) {
	if err := validateSink(req); err != nil {
		return nil, err
	}
	return s.sinks.Update(ctx, id, req)
}

// GetSink returns the current sink configuration.
func (s *CatalogService) GetSink(ctx context.Context, id int64) (*model.SinkConfig, error) {
	return s.sinks.Get(ctx, id)
}

// ListSinks returns every sink.
func (s *CatalogService) ListSinks(ctx context.Context) ([]*model.SinkConfig, error) {
	return s.sinks.List(ctx)
}

// CreateHarvester registers a harvester definition.
func (s *CatalogService) CreateHarvester(ctx context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	created, err := s.harvesters.Create(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create harvester %q: %w", cfg.Name, err)
	}
	s.logger.InfoContext(ctx, "harvester registered", "harvester_id", created.ID, "name", created.Name)
	return created, nil
}

// ListHarvesters returns harvester definitions, optionally only enabled ones.
func (s *CatalogService) ListHarvesters(ctx context.Context, enabledOnly bool) ([]*model.HarvesterConfig, error) {
	return s.harvesters.List(ctx, enabledOnly)
}
