package devseed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/transform"
)

type fakeCatalog struct {
	nextID     int64
	flows      []*model.Flow
	sinks      []*model.SinkConfig
	harvesters []*model.HarvesterConfig
	sinkErr    error
	updates    int
}

func (f *fakeCatalog) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeCatalog) CreateFlow(_ context.Context, req *model.FlowRequest) (*model.Flow, error) {
	flow := &model.Flow{ID: f.id(), Name: req.Name, Version: 1, Modules: req.Modules, InvocationMethod: req.InvocationMethod}
	f.flows = append(f.flows, flow)
	return flow, nil
}

func (f *fakeCatalog) UpdateFlow(_ context.Context, id int64, req *model.FlowRequest) (*model.Flow, error) {
	for _, flow := range f.flows {
		if flow.ID == id {
			flow.Modules, flow.InvocationMethod = req.Modules, req.InvocationMethod
			flow.Version++
			f.updates++
			return flow, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeCatalog) ListFlows(context.Context) ([]*model.Flow, error) { return f.flows, nil }

func (f *fakeCatalog) CreateSink(_ context.Context, req *model.SinkRequest) (*model.SinkConfig, error) {
	if f.sinkErr != nil {
		return nil, f.sinkErr
	}
	sink := &model.SinkConfig{ID: f.id(), Name: req.Name, Type: req.Type, Settings: req.Settings, Version: 1}
	f.sinks = append(f.sinks, sink)
	return sink, nil
}

func (f *fakeCatalog) ListSinks(context.Context) ([]*model.SinkConfig, error) { return f.sinks, nil }

func (f *fakeCatalog) CreateHarvester(_ context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	created := *cfg
	created.ID = f.id()
	f.harvesters = append(f.harvesters, &created)
	return &created, nil
}

func (f *fakeCatalog) ListHarvesters(context.Context, bool) ([]*model.HarvesterConfig, error) {
	return f.harvesters, nil
}

func TestRun_SeedsCatalog(t *testing.T) {
	catalog := &fakeCatalog{}
	res, err := Run(context.Background(), Options{Catalog: catalog, SinkEndpoint: "http://localhost:9000/ingest"})
	require.NoError(t, err)

	assert.Len(t, catalog.flows, 2)
	assert.Len(t, catalog.sinks, 2)
	require.Len(t, catalog.harvesters, 1)

	h := catalog.harvesters[0]
	assert.False(t, h.Enabled)
	assert.Equal(t, res.Flows["passthrough"], h.FlowID)
	assert.Equal(t, res.Sinks["dev-dummy"], h.SinkID)
}

func TestRun_Idempotent(t *testing.T) {
	catalog := &fakeCatalog{}
	_, err := Run(context.Background(), Options{Catalog: catalog})
	require.NoError(t, err)
	_, err = Run(context.Background(), Options{Catalog: catalog})
	require.NoError(t, err)

	assert.Len(t, catalog.flows, 2)
	assert.Len(t, catalog.sinks, 1)
	assert.Len(t, catalog.harvesters, 1)
	assert.Zero(t, catalog.updates)
}

func TestRun_UpdatesChangedFlow(t *testing.T) {
	catalog := &fakeCatalog{}
	_, err := catalog.CreateFlow(context.Background(), &model.FlowRequest{
		Name:             "passthrough",
		Modules:          []model.FlowModule{{Name: "identity", Source: "id"}},
		InvocationMethod: "identity",
	})
	require.NoError(t, err)

	_, err = Run(context.Background(), Options{Catalog: catalog})
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.updates)
	assert.Equal(t, int64(2), catalog.flows[0].Version)
}

func TestRun_CountsFailures(t *testing.T) {
	catalog := &fakeCatalog{sinkErr: errors.New("db down")}
	_, err := Run(context.Background(), Options{Catalog: catalog})
	require.Error(t, err)
	// sink failure plus the harvester that needed it
	assert.Contains(t, err.Error(), "2 seed errors")
}

func TestDefaultFlowsCompile(t *testing.T) {
	for _, req := range defaultFlows() {
		require.NoError(t, req.Validate(), req.Name)
		_, err := transform.Compile(&model.Flow{Name: req.Name, Modules: req.Modules, InvocationMethod: req.InvocationMethod})
		require.NoError(t, err, req.Name)
	}
}
