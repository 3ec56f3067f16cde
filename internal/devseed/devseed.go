// Package devseed populates a development database with a small working catalog:
// flows, sinks and a disabled harvester wired to them.
package devseed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/dataio-go/internal/domain/model"
)

// Catalog is the subset of the catalog service used for seeding.
type Catalog interface {
	CreateFlow(ctx context.Context, req *model.FlowRequest) (*model.Flow, error)
	UpdateFlow(ctx context.Context, id int64, req *model.FlowRequest) (*model.Flow, error)
	ListFlows(ctx context.Context) ([]*model.Flow, error)
	CreateSink(ctx context.Context, req *model.SinkRequest) (*model.SinkConfig, error)
	ListSinks(ctx context.Context) ([]*model.SinkConfig, error)
	CreateHarvester(ctx context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error)
	ListHarvesters(ctx context.Context, enabledOnly bool) ([]*model.HarvesterConfig, error)
}

// Options configures a seeding run.
type Options struct {
	Catalog Catalog
	Logger  *slog.Logger
	// SinkEndpoint, when set, adds an http sink posting to it.
	SinkEndpoint string
}

// Result reports what a run created or refreshed.
type Result struct {
	Flows      map[string]int64
	Sinks      map[string]int64
	Harvesters map[string]int64
}

// Run seeds the default catalog. Existing entries are matched by name; flows whose
// modules changed get a new version, sinks and harvesters are left untouched.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &seeder{catalog: opts.Catalog, logger: logger.With("component", "devseed")}

	res := &Result{
		Flows:      map[string]int64{},
		Sinks:      map[string]int64{},
		Harvesters: map[string]int64{},
	}
	failures := 0
	failures += s.seedFlows(ctx, defaultFlows(), res)
	failures += s.seedSinks(ctx, defaultSinks(opts.SinkEndpoint), res)
	failures += s.seedHarvesters(ctx, defaultHarvesters(), res)
	if failures > 0 {
		return res, fmt.Errorf("%d seed errors; check logs", failures)
	}
	return res, nil
}

type seeder struct {
	catalog Catalog
	logger  *slog.Logger
}

func (s *seeder) seedFlows(ctx context.Context, reqs []*model.FlowRequest, res *Result) int {
	existing, err := s.catalog.ListFlows(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "list flows failed", "error", err)
		return len(reqs)
	}
	byName := make(map[string]*model.Flow, len(existing))
	for _, f := range existing {
		byName[f.Name] = f
	}

	failures := 0
	for _, req := range reqs {
		current, ok := byName[req.Name]
		switch {
		case !ok:
			created, createErr := s.catalog.CreateFlow(ctx, req)
			if createErr != nil {
				s.logger.ErrorContext(ctx, "seed flow failed", "name", req.Name, "error", createErr)
				failures++
				continue
			}
			s.logger.InfoContext(ctx, "seeded flow", "name", req.Name, "flow_id", created.ID)
			res.Flows[req.Name] = created.ID
		case flowChanged(current, req):
			updated, updateErr := s.catalog.UpdateFlow(ctx, current.ID, req)
			if updateErr != nil {
				s.logger.ErrorContext(ctx, "update seeded flow failed", "name", req.Name, "error", updateErr)
				failures++
				continue
			}
			s.logger.InfoContext(ctx, "updated seeded flow", "name", req.Name, "version", updated.Version)
			res.Flows[req.Name] = updated.ID
		default:
			res.Flows[req.Name] = current.ID
		}
	}
	return failures
}

func flowChanged(current *model.Flow, req *model.FlowRequest) bool {
	if current.InvocationMethod != req.InvocationMethod || len(current.Modules) != len(req.Modules) {
		return true
	}
	for i := range req.Modules {
		if current.Modules[i] != req.Modules[i] {
			return true
		}
	}
	return false
}

func (s *seeder) seedSinks(ctx context.Context, reqs []*model.SinkRequest, res *Result) int {
	existing, err := s.catalog.ListSinks(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "list sinks failed", "error", err)
		return len(reqs)
	}
	for _, sink := range existing {
		res.Sinks[sink.Name] = sink.ID
	}

	failures := 0
	for _, req := range reqs {
		if _, ok := res.Sinks[req.Name]; ok {
			s.logger.DebugContext(ctx, "sink already present", "name", req.Name)
			continue
		}
		created, createErr := s.catalog.CreateSink(ctx, req)
		if createErr != nil {
			s.logger.ErrorContext(ctx, "seed sink failed", "name", req.Name, "error", createErr)
			failures++
			continue
		}
		s.logger.InfoContext(ctx, "seeded sink", "name", req.Name, "sink_id", created.ID, "type", created.Type)
		res.Sinks[req.Name] = created.ID
	}
	return failures
}

type harvesterSeed struct {
	name     string
	flow     string
	sink     string
	schedule string
	spec     model.JobSpecification
}

func (s *seeder) seedHarvesters(ctx context.Context, seeds []harvesterSeed, res *Result) int {
	existing, err := s.catalog.ListHarvesters(ctx, false)
	if err != nil {
		s.logger.ErrorContext(ctx, "list harvesters failed", "error", err)
		return len(seeds)
	}
	for _, h := range existing {
		res.Harvesters[h.Name] = h.ID
	}

	failures := 0
	for _, seed := range seeds {
		if _, ok := res.Harvesters[seed.name]; ok {
			continue
		}
		flowID, sinkID := res.Flows[seed.flow], res.Sinks[seed.sink]
		if flowID == 0 || sinkID == 0 {
			s.logger.WarnContext(ctx, "skipping harvester seed; flow or sink missing",
				"name", seed.name, "flow", seed.flow, "sink", seed.sink)
			failures++
			continue
		}
		created, createErr := s.catalog.CreateHarvester(ctx, &model.HarvesterConfig{
			Name:          seed.name,
			Schedule:      seed.schedule,
			Specification: seed.spec,
			FlowID:        flowID,
			SinkID:        sinkID,
		})
		if createErr != nil {
			s.logger.ErrorContext(ctx, "seed harvester failed", "name", seed.name, "error", createErr)
			failures++
			continue
		}
		res.Harvesters[seed.name] = created.ID
	}
	return failures
}

func defaultFlows() []*model.FlowRequest {
	return []*model.FlowRequest{
		{
			Name:             "passthrough",
			Modules:          []model.FlowModule{{Name: "identity", Source: "@"}},
			InvocationMethod: "identity",
		},
		{
			Name: "marc-summary",
			Modules: []model.FlowModule{
				{Name: "select", Source: "{id: id, title: title, authors: authors || `[]`}"},
				{Name: "summarize", Source: "{id: id, title: title, author_count: length(authors)}"},
			},
			InvocationMethod: "summarize",
		},
	}
}

func defaultSinks(endpoint string) []*model.SinkRequest {
	sinks := []*model.SinkRequest{{Name: "dev-dummy", Type: model.SinkTypeDummy}}
	if endpoint != "" {
		sinks = append(sinks, &model.SinkRequest{
			Name: "dev-http",
			Type: model.SinkTypeHTTP,
			Settings: model.SinkSettings{
				Endpoint: endpoint,
				Timeout:  "10s",
			},
		})
	}
	return sinks
}

// Seeded harvesters stay disabled until someone points a source definition at them.
func defaultHarvesters() []harvesterSeed {
	return []harvesterSeed{
		{
			name:     "dev-filedrop",
			flow:     "passthrough",
			sink:     "dev-dummy",
			schedule: "@hourly",
			spec: model.JobSpecification{
				Format:  model.FormatLines,
				Charset: "utf8",
				Kind:    model.JobKindTest,
			},
		},
	}
}
