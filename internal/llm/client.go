// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64

	// JSONMode asks the provider for a single JSON object when it supports
	// constraining output.
	JSONMode bool
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Image   *Image `json:"-"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Valid reports whether p names a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderAnthropic || p == ProviderOpenAI
}

// ErrMissingAPIKey is returned when a provider is selected without a key.
var ErrMissingAPIKey = errors.New("API key is required")

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", provider)
	}
}

// Image is an inline image attachment.
type Image struct {
	MediaType string
	// Data is standard base64 without a data URL prefix.
	Data string
}

// DataURL renders the image as a data URL.
func (i Image) DataURL() string {
	return "data:" + i.MediaType + ";base64," + i.Data
}

// ParseImage accepts a data URL or bare base64 payload. Payloads without a
// declared media type are treated as JPEG.
func ParseImage(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Image{}, errors.New("empty image")
	}

	img := Image{MediaType: "image/jpeg", Data: s}
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found {
			return Image{}, errors.New("malformed data URL")
		}
		if mt, _, _ := strings.Cut(header, ";"); mt != "" {
			img.MediaType = strings.ToLower(mt)
		}
		img.Data = data
	}

	if !strings.HasPrefix(img.MediaType, "image/") {
		return Image{}, fmt.Errorf("unsupported media type %q", img.MediaType)
	}
	if _, err := base64.StdEncoding.DecodeString(img.Data); err != nil {
		return Image{}, fmt.Errorf("invalid base64 image: %w", err)
	}
	return img, nil
}
