package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/dataio-go/internal/domain/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 4 << 20
	maxDiagnosticLen   = 512
)

type searcher interface {
	Search(data any) (any, error)
}

// HTTPAdapterOptions configures an HTTPAdapter.
type HTTPAdapterOptions struct {
	Sink       *model.SinkConfig // Required
	HTTPClient *http.Client      // Optional base client
	Logger     *slog.Logger
}

// HTTPAdapter POSTs the successfully processed items of a chunk to an endpoint.
//
// The request body is {"job_id", "chunk_id", "items": [{"item_id", "data", ...}]}, or the
// result of the sink's JMESPath body template applied to that document. Item data that
// is valid JSON is embedded as JSON, anything else as a string.
//
// A 2xx reply may list per-item outcomes as {"items": [{"item_id", "status", "diagnostic"}]};
// items it does not mention are SUCCESS. A 4xx reply fails every sent item. Transport
// errors and 5xx replies abort the delivery so the chunk is redelivered.
type HTTPAdapter struct {
	sinkID   int64
	endpoint string
	headers  map[string]string
	template searcher
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPAdapter validates the sink settings and builds the adapter.
func NewHTTPAdapter(ctx context.Context, opts HTTPAdapterOptions) (*HTTPAdapter, error) {
	sink := opts.Sink
	if sink == nil {
		return nil, errors.New("sink config is required")
	}
	settings := sink.Settings
	if strings.TrimSpace(settings.Endpoint) == "" {
		return nil, errors.New("http sink endpoint is required")
	}

	var template searcher
	if expr := strings.TrimSpace(settings.BodyTemplate); expr != "" {
		compiled, err := jmespath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile body template: %w", err)
		}
		template = compiled
	}

	timeout := defaultHTTPTimeout
	if settings.Timeout != "" {
		d, err := time.ParseDuration(settings.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse timeout: %w", err)
		}
		timeout = d
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	client := &http.Client{Transport: base.Transport, Timeout: timeout}
	if settings.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			TokenURL:     settings.TokenURL,
			Scopes:       settings.Scopes,
		}
		// The token source outlives ctx; only the base client is taken from it.
		tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, &http.Client{
			Transport: base.Transport,
			Timeout:   timeout,
		})
		client = cc.Client(tokenCtx)
		client.Timeout = timeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAdapter{
		sinkID:   sink.ID,
		endpoint: settings.Endpoint,
		headers:  settings.Headers,
		template: template,
		client:   client,
		logger:   logger.With("component", "http_sink", "sink_id", sink.ID, "sink_version", sink.Version),
	}, nil
}

type wireItem struct {
	ItemID     int    `json:"item_id"`
	Encoding   string `json:"encoding,omitempty"`
	Data       any    `json:"data"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

type wireChunk struct {
	JobID   int64      `json:"job_id"`
	ChunkID int        `json:"chunk_id"`
	Items   []wireItem `json:"items"`
}

type replyItem struct {
	ItemID     int              `json:"item_id"`
	Status     model.ItemStatus `json:"status"`
	Diagnostic string           `json:"diagnostic"`
}

type reply struct {
	Items []replyItem `json:"items"`
}

func itemData(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

// buildBody returns the request body and the indexes of the items it carries.
func (a *HTTPAdapter) buildBody(chunk *model.ChunkResult) ([]byte, []int, error) {
	doc := wireChunk{JobID: chunk.JobID, ChunkID: chunk.ChunkID, Items: []wireItem{}}
	var sent []int
	for i, it := range chunk.Items {
		if it.Status != model.ItemSuccess {
			continue
		}
		sent = append(sent, i)
		doc.Items = append(doc.Items, wireItem{ItemID: it.ItemID, Encoding: it.Encoding, Data: itemData(it.Data)})
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal chunk: %w", err)
	}
	if a.template == nil {
		return raw, sent, nil
	}

	// JMESPath works on the generic decoded form.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, sent, fmt.Errorf("decode chunk document: %w", err)
	}
	shaped, err := a.template.Search(generic)
	if err != nil {
		return nil, sent, fmt.Errorf("evaluate body template: %w", err)
	}
	body, err := json.Marshal(shaped)
	if err != nil {
		return nil, sent, fmt.Errorf("marshal templated body: %w", err)
	}
	return body, sent, nil
}

// Deliver implements delivery.Adapter.
func (a *HTTPAdapter) Deliver(ctx context.Context, chunk *model.ChunkResult) ([]model.Outcome, error) {
	out := make([]model.Outcome, len(chunk.Items))
	for i, it := range chunk.Items {
		out[i] = model.Outcome{ItemID: it.ItemID, Status: model.ItemIgnore, Diagnostic: "not delivered: processing " + string(it.Status)}
	}

	body, sent, err := a.buildBody(chunk)
	if err != nil {
		// Template errors are per document, so every sent item fails with the same diagnostic.
		for _, i := range sent {
			out[i] = model.Outcome{ItemID: chunk.Items[i].ItemID, Status: model.ItemFailure, Diagnostic: err.Error()}
		}
		return out, nil
	}
	if len(sent) == 0 {
		return out, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post chunk %d/%d: %w", chunk.JobID, chunk.ChunkID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	a.logger.DebugContext(ctx, "chunk posted",
		"job_id", chunk.JobID, "chunk_id", chunk.ChunkID,
		"items", len(sent), "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("sink endpoint returned %s", resp.Status)
	case resp.StatusCode >= http.StatusBadRequest:
		diag := fmt.Sprintf("sink rejected chunk: %s %s", resp.Status, truncate(strings.TrimSpace(string(respBody))))
		for _, i := range sent {
			out[i] = model.Outcome{ItemID: chunk.Items[i].ItemID, Status: model.ItemFailure, Diagnostic: diag}
		}
		return out, nil
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("unexpected sink response %s", resp.Status)
	}

	perItem := parseReply(respBody)
	for _, i := range sent {
		itemID := chunk.Items[i].ItemID
		o := model.Outcome{ItemID: itemID, Status: model.ItemSuccess}
		if r, ok := perItem[itemID]; ok && r.Status.Valid() {
			o.Status = r.Status
			o.Diagnostic = r.Diagnostic
		}
		out[i] = o
	}
	return out, nil
}

func parseReply(body []byte) map[int]replyItem {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var r reply
	if err := json.Unmarshal(body, &r); err != nil {
		return nil
	}
	m := make(map[int]replyItem, len(r.Items))
	for _, it := range r.Items {
		m[it.ItemID] = it
	}
	return m
}

func truncate(s string) string {
	if len(s) <= maxDiagnosticLen {
		return s
	}
	return s[:maxDiagnosticLen] + "…"
}

// Close releases idle connections held by the adapter's client.
func (a *HTTPAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
