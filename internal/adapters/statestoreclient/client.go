// Package statestoreclient talks to the state store REST API. It lets pipeline workers and
// harvesters run in processes that have no database access.
package statestoreclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	apperrors "github.com/target/dataio-go/internal/errors"
	httpx "github.com/target/dataio-go/internal/http"
)

const (
	defaultTimeout = 30 * time.Second
	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Options configures a Client.
type Options struct {
	BaseURL    string       // Required, e.g. http://dataio-api:8080
	HTTPClient *http.Client // Optional; defaults to a client with Timeout
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client implements core.StateStore over HTTP. Error responses are turned back into
// AppErrors carrying the server's code, so callers can branch on apperrors.IsConflict,
// errors.Is(err, state.ErrPhaseOrderingViolation) and friends as they would in-process.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

var (
	_ core.StateStore   = (*Client)(nil)
	_ core.JobAnnouncer = (*Client)(nil)
)

// New builds a Client.
func New(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("state store base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid state store base URL %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: base, http: hc, logger: logger.With("component", "statestore_client")}, nil
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        any
	raw         []byte
	contentType string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	var body io.Reader
	contentType := r.contentType
	switch {
	case r.raw != nil:
		body = bytes.NewReader(r.raw)
	case r.body != nil:
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s body: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// send performs r and returns the response body of a 2xx reply.
func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(r, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", r.method, r.path, err)
	}
	return data, nil
}

func (c *Client) call(ctx context.Context, r request, out any) error {
	data, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", r.method, r.path, err)
	}
	return nil
}

// decodeError maps an error response back to an AppError. State violations get their
// sentinel as the cause so errors.Is keeps working across the wire.
func decodeError(r request, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body httpx.ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = string(codeForStatus(resp.StatusCode))
		body.Message = strings.TrimSpace(string(raw))
	}
	if body.Message == "" {
		body.Message = resp.Status
	}

	code := apperrors.ErrorCode(body.Error)
	if code == "invalid_json" {
		code = apperrors.ErrCodeValidation
	}
	appErr := &apperrors.AppError{
		Code:    code,
		Message: fmt.Sprintf("%s %s: %s", r.method, r.path, body.Message),
		Field:   body.Field,
	}
	switch code {
	case apperrors.ErrCodeInvalidStateChange:
		appErr.Cause = state.ErrInvalidStateChange
	case apperrors.ErrCodePhaseOrdering:
		appErr.Cause = state.ErrPhaseOrderingViolation
	}
	return appErr
}

func codeForStatus(status int) apperrors.ErrorCode {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return apperrors.ErrCodeValidation
	case http.StatusNotFound:
		return apperrors.ErrCodeNotFound
	case http.StatusConflict:
		return apperrors.ErrCodeConflict
	case http.StatusUnprocessableEntity:
		return apperrors.ErrCodePhaseOrdering
	case http.StatusGatewayTimeout:
		return apperrors.ErrCodeTimeout
	default:
		return apperrors.ErrCodeInternal
	}
}

func jobPath(id int64, rest ...string) string {
	p := "/api/jobs/" + strconv.FormatInt(id, 10)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func chunkPath(jobID int64, chunkID int, rest ...string) string {
	return jobPath(jobID, append([]string{"chunks", strconv.Itoa(chunkID)}, rest...)...)
}

// CreateJob implements core.StateStore.
func (c *Client) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	var job model.Job
	if err := c.call(ctx, request{method: http.MethodPost, path: "/api/jobs", body: req}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// AnnounceJob implements core.JobAnnouncer.
func (c *Client) AnnounceJob(ctx context.Context, jobID int64) error {
	return c.call(ctx, request{method: http.MethodPost, path: jobPath(jobID, "announce")}, nil)
}

// GetJob implements core.StateStore.
func (c *Client) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	var job model.Job
	if err := c.call(ctx, request{method: http.MethodGet, path: jobPath(id)}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs implements core.StateStore.
func (c *Client) ListJobs(ctx context.Context, opts model.JobListOptions) (*model.JobPage, error) {
	var page model.JobPage
	r := request{method: http.MethodGet, path: "/api/jobs", query: httpx.EncodeJobListQuery(opts)}
	if err := c.call(ctx, r, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ApplyJobStateChange implements core.StateStore.
func (c *Client) ApplyJobStateChange(ctx context.Context, jobID int64, ch state.Change) (*model.Job, error) {
	var job model.Job
	if err := c.call(ctx, request{method: http.MethodPost, path: jobPath(jobID, "state"), body: ch}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkPartitioned implements core.StateStore.
func (c *Client) MarkPartitioned(ctx context.Context, jobID int64) (*model.Job, error) {
	var job model.Job
	if err := c.call(ctx, request{method: http.MethodPost, path: jobPath(jobID, "eoj")}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// AddChunk implements core.StateStore.
func (c *Client) AddChunk(ctx context.Context, pc model.PartitionedChunk) (*model.Chunk, error) {
	var chunk model.Chunk
	r := request{method: http.MethodPost, path: jobPath(pc.Chunk.JobID, "chunks"), body: pc}
	if err := c.call(ctx, r, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// GetChunk implements core.StateStore.
func (c *Client) GetChunk(ctx context.Context, jobID int64, chunkID int) (*model.Chunk, error) {
	var chunk model.Chunk
	if err := c.call(ctx, request{method: http.MethodGet, path: chunkPath(jobID, chunkID)}, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// ListChunks returns a page of chunks of a job.
func (c *Client) ListChunks(ctx context.Context, jobID int64, limit, offset int) ([]*model.Chunk, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var chunks []*model.Chunk
	if err := c.call(ctx, request{method: http.MethodGet, path: jobPath(jobID, "chunks"), query: q}, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetChunkItems implements core.StateStore.
func (c *Client) GetChunkItems(ctx context.Context, jobID int64, chunkID int) ([]model.Item, error) {
	var items []model.Item
	if err := c.call(ctx, request{method: http.MethodGet, path: chunkPath(jobID, chunkID, "items")}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ApplyChunkStateChange implements core.StateStore.
func (c *Client) ApplyChunkStateChange(ctx context.Context, jobID int64, chunkID int, ch state.Change) (*model.Chunk, error) {
	var chunk model.Chunk
	r := request{method: http.MethodPost, path: chunkPath(jobID, chunkID, "state"), body: ch}
	if err := c.call(ctx, r, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// RecordProcessedChunk implements core.StateStore.
func (c *Client) RecordProcessedChunk(ctx context.Context, result *model.ChunkResult) (bool, error) {
	return c.record(ctx, result, "processed")
}

// RecordDeliveredChunk implements core.StateStore.
func (c *Client) RecordDeliveredChunk(ctx context.Context, result *model.ChunkResult) (bool, error) {
	return c.record(ctx, result, "delivered")
}

func (c *Client) record(ctx context.Context, result *model.ChunkResult, leaf string) (bool, error) {
	if result == nil {
		return false, apperrors.Validation("chunk result is required")
	}
	var resp httpx.RecordResponse
	r := request{method: http.MethodPost, path: chunkPath(result.JobID, result.ChunkID, leaf), body: result}
	if err := c.call(ctx, r, &resp); err != nil {
		return false, err
	}
	return resp.Recorded, nil
}

// GetFlow implements core.StateStore. Version 0 asks for the latest version.
func (c *Client) GetFlow(ctx context.Context, id, version int64) (*model.Flow, error) {
	var q url.Values
	if version > 0 {
		q = url.Values{"version": {strconv.FormatInt(version, 10)}}
	}
	var flow model.Flow
	r := request{method: http.MethodGet, path: "/api/flows/" + strconv.FormatInt(id, 10), query: q}
	if err := c.call(ctx, r, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

// GetSink implements core.StateStore.
func (c *Client) GetSink(ctx context.Context, id int64) (*model.SinkConfig, error) {
	var sink model.SinkConfig
	if err := c.call(ctx, request{method: http.MethodGet, path: "/api/sinks/" + strconv.FormatInt(id, 10)}, &sink); err != nil {
		return nil, err
	}
	return &sink, nil
}

// GetHarvesterConfig implements core.StateStore.
func (c *Client) GetHarvesterConfig(ctx context.Context, id int64) (*model.HarvesterConfig, error) {
	var cfg model.HarvesterConfig
	r := request{method: http.MethodGet, path: "/api/harvesters/" + strconv.FormatInt(id, 10)}
	if err := c.call(ctx, r, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateHarvesterConfig implements core.StateStore. A stale version yields a conflict.
func (c *Client) UpdateHarvesterConfig(ctx context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
	if cfg == nil {
		return nil, apperrors.Validation("harvester config is required")
	}
	var updated model.HarvesterConfig
	r := request{method: http.MethodPut, path: "/api/harvesters/" + strconv.FormatInt(cfg.ID, 10), body: cfg}
	if err := c.call(ctx, r, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// UploadFile implements core.StateStore.
func (c *Client) UploadFile(ctx context.Context, data []byte) (*model.File, error) {
	if data == nil {
		data = []byte{}
	}
	var f model.File
	r := request{method: http.MethodPost, path: "/api/files", raw: data, contentType: "application/octet-stream"}
	if err := c.call(ctx, r, &f); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "file uploaded", "file_id", f.ID, "size", f.Size)
	return &f, nil
}

// GetFile returns a file descriptor.
func (c *Client) GetFile(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	if err := c.call(ctx, request{method: http.MethodGet, path: "/api/files/" + url.PathEscape(id)}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFileData implements core.StateStore.
func (c *Client) GetFileData(ctx context.Context, id string) ([]byte, error) {
	return c.send(ctx, request{method: http.MethodGet, path: "/api/files/" + url.PathEscape(id) + "/data"})
}
