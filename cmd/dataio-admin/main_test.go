package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/dataio-go/config"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	"github.com/target/dataio-go/internal/harvester"
	"github.com/target/dataio-go/internal/messaging"
)

func TestParseCreateJobFlags(t *testing.T) {
	opts, err := parseCreateJobFlags([]string{
		"--data", "records.ndjson",
		"--format", "json-array",
		"--kind", "persistent",
		"--flow", "3",
		"--sink", "4",
		"--chunk-size", "50",
	})
	require.NoError(t, err)
	assert.Equal(t, "records.ndjson", opts.DataPath)
	assert.Equal(t, model.FormatJSONArray, opts.Request.Specification.Format)
	assert.Equal(t, model.JobKindPersistent, opts.Request.Specification.Kind)
	assert.Equal(t, 50, opts.Request.Specification.ChunkSize)
	assert.Equal(t, int64(3), opts.Request.FlowID)
	assert.Equal(t, int64(4), opts.Request.SinkID)
	assert.Equal(t, defaultCommandTimeout, opts.Timeout)

	_, err = parseCreateJobFlags([]string{"--flow", "3"})
	require.Error(t, err, "--data is required")
}

func TestParseJobFlags(t *testing.T) {
	opts, err := parseJobFlags("job", []string{"--id", "12", "--json"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), opts.ID)
	assert.True(t, opts.RawJSON)

	_, err = parseJobFlags("job", nil)
	require.Error(t, err)
	_, err = parseJobFlags("job", []string{"--id", "1", "--timeout", "0s"})
	require.Error(t, err)
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags([]string{"--status"})
	require.NoError(t, err)
	assert.True(t, opts.Status)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	_, err = parseMigrateFlags([]string{"--timeout", "-1s"})
	require.Error(t, err)
}

func TestParseDBSeedFlags(t *testing.T) {
	opts, err := parseDBSeedFlags([]string{"--http-sink", "http://localhost:9000/in"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/in", opts.SinkEndpoint)
	assert.False(t, opts.AllowRemote)

	_, err = parseDBSeedFlags([]string{"--timeout", "0s"})
	require.Error(t, err)
}

func TestIsLikelyRemoteHost(t *testing.T) {
	tests := map[string]bool{
		"":                 false,
		"localhost":        false,
		"127.0.0.1":        false,
		"::1":              false,
		"db.local":         false,
		"10.2.3.4":         true,
		"db.prod.internal": true,
	}
	for host, want := range tests {
		assert.Equal(t, want, isLikelyRemoteHost(host), host)
	}
}

func TestInfraNeeds(t *testing.T) {
	local := &config.AppConfig{Transport: config.TransportConfig{Kind: config.TransportRedis}}
	db, redis := infraNeeds(local)
	assert.True(t, db)
	assert.True(t, redis)

	remote := &config.AppConfig{
		Transport:  config.TransportConfig{Kind: config.TransportRedis},
		StateStore: config.StateStoreClientConfig{URL: "http://api:8080"},
	}
	db, redis = infraNeeds(remote)
	assert.False(t, db)
	assert.True(t, redis)
}

func TestPrintJob(t *testing.T) {
	ended := time.Date(2026, 6, 2, 3, 0, 0, 0, time.UTC)
	job := &model.Job{
		ID:             7,
		Version:        4,
		EOJ:            true,
		NumberOfChunks: 2,
		NumberOfItems:  15,
		FlowID:         3,
		FlowVersion:    1,
		SinkID:         4,
		SinkVersion:    2,
		Specification: model.JobSpecification{
			Format:   model.FormatLines,
			Charset:  "utf8",
			Kind:     model.JobKindTest,
			DataFile: "f-1",
		},
		State: state.State{
			Partitioning: state.Element{Succeeded: 15, EndDate: &ended},
			Processing:   state.Element{Succeeded: 10, Pending: 5},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printJob(&buf, job))
	out := buf.String()
	assert.Contains(t, out, "7 (version 4)")
	assert.Contains(t, out, "in progress")
	assert.Contains(t, out, "true (2 chunks, 15 items)")
	assert.Contains(t, out, "PARTITIONING")
	assert.Contains(t, out, "DELIVERING")
}

func TestPrintWALEntry(t *testing.T) {
	dir := t.TempDir()
	wal, err := harvester.OpenWAL(dir, 9)
	require.NoError(t, err)

	next := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, wal.Write(&harvester.Entry{
		HarvesterID:         9,
		StagingFile:         dir + "/harvester-9-1.data",
		Request:             model.CreateJobRequest{FlowID: 3, SinkID: 4},
		NextPublicationDate: &next,
		Records:             12,
		WrittenAt:           next,
	}))
	entry, err := wal.Read()
	require.NoError(t, err)
	require.NotNil(t, entry)

	var buf bytes.Buffer
	require.NoError(t, printWALEntry(&buf, wal.Path(), entry))
	assert.Contains(t, buf.String(), "3 / 4")
	assert.Contains(t, buf.String(), "2026-06-01T00:00:00Z")
}

func TestCollectQueueStats_Memory(t *testing.T) {
	transport := messaging.NewMemoryTransport()
	transport.PublishRaw(messaging.QueueProcessing, []byte(`{}`))
	transport.PublishRaw(messaging.QueueProcessing, []byte(`{}`))

	rows, err := collectQueueStats(context.Background(), transport)
	require.NoError(t, err)
	require.Len(t, rows, len(messaging.AllQueues()))
	for _, row := range rows {
		if row.Queue == messaging.QueueProcessing {
			assert.Equal(t, int64(2), row.Ready)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, printQueueStats(&buf, rows))
	assert.Contains(t, buf.String(), "QUEUE")
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for name := range commands() {
		assert.Contains(t, buf.String(), name)
	}
}
