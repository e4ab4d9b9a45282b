// Package planner asks an LLM to turn a user's message or image into
// calendar actions.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/calendar-agent/internal/llm"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
	"github.com/capitalize-ai/calendar-agent/pkg/metrics"
	"github.com/capitalize-ai/calendar-agent/pkg/tracing"
)

const (
	defaultImageInstructions = "Extract these events for my calendar."
	defaultMaxTokens         = 1024
)

var (
	// ErrNotConfigured is returned when no AI provider client is available.
	ErrNotConfigured = errors.New("AI provider is not configured")

	// ErrEmptyRequest is returned when neither a message nor an image is given.
	ErrEmptyRequest = errors.New("message or image is required")

	// ErrInvalidRequest wraps malformed timezones and images.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAIRequest wraps provider failures.
	ErrAIRequest = errors.New("AI request failed")
)

// InvalidJSONError is returned when the model's answer is not a JSON object.
type InvalidJSONError struct {
	Content string
	Err     error
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("AI returned invalid JSON: %v", e.Err)
}

func (e *InvalidJSONError) Unwrap() error {
	return e.Err
}

// Planner is the AI proposal source.
type Planner struct {
	client  llm.Client
	model   string
	timeout time.Duration
	now     func() time.Time
	logger  *logger.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(p *Planner) { p.model = model }
}

// WithTimeout bounds each LLM call.
func WithTimeout(d time.Duration) Option {
	return func(p *Planner) { p.timeout = d }
}

// WithClock overrides the time source used in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// New creates a planner. A nil client is allowed; every request then fails
// with ErrNotConfigured.
func New(client llm.Client, log *logger.Logger, opts ...Option) *Planner {
	if log == nil {
		log = logger.Nop()
	}
	p := &Planner{
		client: client,
		now:    time.Now,
		logger: log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configured reports whether an LLM client is available.
func (p *Planner) Configured() bool {
	return p.client != nil
}

// Propose sends the request to the LLM and decodes its actions. A response
// with no actions is not an error; the caller decides how to present it.
func (p *Planner) Propose(ctx context.Context, req model.ProposeRequest) (*model.ProposeResponse, error) {
	if p.client == nil {
		return nil, ErrNotConfigured
	}

	loc, err := time.LoadLocation(req.Timezone)
	if err != nil || req.Timezone == "" {
		return nil, fmt.Errorf("%w: invalid timezone %q", ErrInvalidRequest, req.Timezone)
	}

	msg := llm.ChatMessage{Role: "user", Content: strings.TrimSpace(req.Message)}
	if req.HasImage() {
		img, err := llm.ParseImage(req.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid image: %v", ErrInvalidRequest, err)
		}
		msg.Image = &img
		msg.Content = firstNonEmpty(req.Instructions, req.Message, defaultImageInstructions)
	} else if msg.Content == "" {
		return nil, ErrEmptyRequest
	}

	ctx, span := tracing.Tracer("planner").Start(ctx, "planner.Propose")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", p.client.Name()),
		attribute.Bool("request.image", req.HasImage()),
	)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.client.Complete(ctx, &llm.CompletionRequest{
		Model:     p.model,
		System:    SystemPrompt(loc, p.now()),
		Messages:  []llm.ChatMessage{msg},
		MaxTokens: defaultMaxTokens,
		JSONMode:  true,
	})
	if err != nil {
		metrics.RecordLLM(p.modelLabel(), "error", time.Since(start).Seconds(), 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrAIRequest, err)
	}
	metrics.RecordLLM(resp.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	p.logger.Debug("AI response",
		zap.String("model", resp.Model),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int64("latency_ms", resp.LatencyMs),
	)

	out, err := DecodeResponse(resp.Content)
	if err != nil {
		p.logger.Warn("failed to parse AI response", zap.String("content", resp.Content), zap.Error(err))
		span.SetStatus(codes.Error, "invalid json")
		return nil, err
	}
	span.SetAttributes(attribute.Int("actions", len(out.Actions)))

	return out, nil
}

func (p *Planner) modelLabel() string {
	if p.model != "" {
		return p.model
	}
	return p.client.Name()
}

// DecodeResponse parses the model's answer. Markdown code fences around the
// JSON are tolerated. A missing success flag means success. Malformed action
// entries are dropped and counted; only a body that is not a JSON object is
// an error.
func DecodeResponse(content string) (*model.ProposeResponse, error) {
	body := stripFences(content)

	var raw struct {
		Success json.RawMessage `json:"success"`
		Actions json.RawMessage `json:"actions"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&raw); err != nil {
		return nil, &InvalidJSONError{Content: content, Err: err}
	}

	actions, dropped := model.DecodeRawActions(raw.Actions)
	return &model.ProposeResponse{
		Success: decodeSuccess(raw.Success),
		Actions: actions,
		Dropped: dropped,
	}, nil
}

// decodeSuccess reads the success flag. Only an explicit false, as a boolean
// or a string, means failure.
func decodeSuccess(raw json.RawMessage) bool {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(string(raw)), `"`)) {
	case "false":
		return false
	}
	return true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
