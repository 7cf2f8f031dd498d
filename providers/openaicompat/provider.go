// Package openaicompat implements the shared base for any vendor reachable
// through an OpenAI-compatible chat-completions endpoint: Bearer-token auth
// by default, with BuildHeaders overridable per vendor variant.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/internal/tlsutil"
	"github.com/dreamscapes/gateway/providers"
	"github.com/dreamscapes/gateway/types"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	EndpointPath string

	// BuildHeaders overrides the default Bearer-token auth header, for
	// vendors that authenticate differently while keeping the rest of the
	// wire format identical.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider is the base implementation for OpenAI-compatible providers.
// Vendor-specific variants construct one with a Config tailored to their
// base URL, default model, and (optionally) header scheme.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates an OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger,
	}
}

func (p *Provider) Name() string { return p.cfg.ProviderName }

func (p *Provider) buildHeaders(req *http.Request, apiKey string) {
	if p.cfg.BuildHeaders != nil {
		p.cfg.BuildHeaders(req, apiKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) endpoint() string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.EndpointPath)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// Invoke sends a single dream-generation prompt through the chat-completions
// endpoint and returns the first choice's message content as raw bytes.
func (p *Provider) Invoke(ctx context.Context, prompt string, params types.GenerationParams, deadline time.Time) ([]byte, int, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	model := p.cfg.DefaultModel

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: providers.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal %s request: %w", p.cfg.ProviderName, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build %s request: %w", p.cfg.ProviderName, err)
	}
	p.buildHeaders(httpReq, p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer providers.SafeCloseBody(resp.Body)

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, resp.StatusCode, readErr
	}
	if resp.StatusCode >= 400 {
		return raw, resp.StatusCode, fmt.Errorf("%s request failed: %s", p.cfg.ProviderName, providers.ReadErrorMessage(bytes.NewReader(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return raw, resp.StatusCode, fmt.Errorf("decode %s response: %w", p.cfg.ProviderName, err)
	}
	if len(parsed.Choices) == 0 {
		return raw, resp.StatusCode, fmt.Errorf("%s response had no choices", p.cfg.ProviderName)
	}

	return []byte(parsed.Choices[0].Message.Content), resp.StatusCode, nil
}
