// Package calendar posts resolved actions to the Google Apps Script web app
// that writes to the user's calendar.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
	"github.com/capitalize-ai/calendar-agent/pkg/metrics"
)

const maxResponseBytes = 1 << 20

var (
	// ErrNotConfigured is returned when no web app URL is set.
	ErrNotConfigured = errors.New("APPS_SCRIPT_URL is not configured")

	// ErrHTMLResponse means the web app answered with a page instead of JSON,
	// which happens when it is not deployed for anonymous access.
	ErrHTMLResponse = errors.New("received HTML instead of JSON, check Apps Script deployment permissions")
)

// RejectedError is returned when the web app answered but refused the action.
type RejectedError struct {
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return "failed to create event"
	}
	return e.Detail
}

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Apps Script web app.
type Client struct {
	url    string
	client HTTPDoer
	logger *logger.Logger
}

// NewClient creates a client for the web app at url. A nil doer gets an
// *http.Client with the given timeout.
func NewClient(url string, client HTTPDoer, timeout time.Duration, log *logger.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{url: strings.TrimSpace(url), client: client, logger: log}
}

// Configured reports whether a web app URL is set.
func (c *Client) Configured() bool {
	return c.url != ""
}

// Commit sends one action to the web app. A non-nil response is returned
// whenever the web app answered with JSON, even if it refused the action.
func (c *Client) Commit(ctx context.Context, req model.CommitRequest) (*model.CommitResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	resp, err := c.do(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordCommit(string(req.Action), status, time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("calendar commit failed",
			zap.String("action", string(req.Action)),
			zap.String("calendar_id", req.CalendarID),
			zap.Error(err),
		)
		return resp, err
	}

	c.logger.Debug("calendar commit succeeded",
		zap.String("action", string(req.Action)),
		zap.String("calendar_id", req.CalendarID),
		zap.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

func (c *Client) do(ctx context.Context, req model.CommitRequest) (*model.CommitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal commit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build commit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call Apps Script: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read Apps Script response: %w", err)
	}

	if looksLikeHTML(raw) {
		return nil, ErrHTMLResponse
	}
	if httpResp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("Apps Script returned status %d", httpResp.StatusCode)
	}

	var out model.CommitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode Apps Script response: %w", err)
	}
	if !out.OK() {
		return &out, &RejectedError{Detail: out.Detail()}
	}
	return &out, nil
}

func looksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	head := strings.ToLower(string(trimmed[:min(len(trimmed), 64)]))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}
