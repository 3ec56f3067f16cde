package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Webhook posts JSON bodies to one URL with linear backoff between attempts.
type Webhook struct {
	Name       string
	URL        string
	RetryLimit int
	Client     *http.Client
}

// NewHTTPClient returns a client with timeout, defaulting to 5s.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Post sends body, retrying RetryLimit times on transport errors and non-2xx responses.
func (w Webhook) Post(ctx context.Context, body []byte) error {
	attempts := max(w.RetryLimit, 0) + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = w.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (w Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", w.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	hc := w.Client
	if hc == nil {
		hc = NewHTTPClient(0)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", w.Name, err)
	}

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	closeErr := resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", w.Name, resp.Status, strings.TrimSpace(string(respBody)))
	}
	if readErr != nil || closeErr != nil {
		return fmt.Errorf("drain %s response: %w", w.Name, errors.Join(readErr, closeErr))
	}
	return nil
}

// Fallback returns value, or fallback when value is blank.
func Fallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
