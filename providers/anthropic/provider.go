// Package claude implements the Anthropic Claude adapter. Claude's wire
// format differs from OpenAI-compatible vendors in three ways this adapter
// preserves: authentication via the x-api-key header rather than Bearer,
// the system instruction carried as its own top-level field rather than a
// message with role "system", and message content expressed as an array of
// typed content blocks rather than a bare string.
package claude

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

	"github.com/dreamscapes/gateway/providers"
	"github.com/dreamscapes/gateway/types"
)

const (
	defaultBaseURL         = "https://api.anthropic.com"
	defaultModel           = "claude-3-5-sonnet-20241022"
	defaultMaxTokens       = 4096
	anthropicVersionHeader = "2023-06-01"
)

// Provider is the Anthropic Claude adapter.
type Provider struct {
	cfg    providers.ClaudeConfig
	client *http.Client
	logger *zap.Logger
}

// New constructs a Claude Provider.
func New(cfg providers.ClaudeConfig, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *Provider) Name() string { return "claude" }

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeMessage struct {
	Role    string               `json:"role"`
	Content []claudeContentBlock `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
}

type claudeResponse struct {
	ID      string               `json:"id"`
	Role    string               `json:"role"`
	Content []claudeContentBlock `json:"content"`
	Model   string               `json:"model"`
}

func (p *Provider) buildHeaders(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersionHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// Invoke sends a single dream-generation prompt to Claude and returns the
// concatenated text of the response's text content blocks. The model is
// fixed here (config or default) — RetryOrchestrator adjusts
// GenerationParams, not model selection; max tokens come from params,
// falling back to defaultMaxTokens when unset.
func (p *Provider) Invoke(ctx context.Context, prompt string, params types.GenerationParams, deadline time.Time) ([]byte, int, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	model := p.cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := claudeRequest{
		Model: model,
		Messages: []claudeMessage{
			{Role: "user", Content: []claudeContentBlock{{Type: "text", Text: prompt}}},
		},
		System:      providers.SystemPrompt,
		MaxTokens:   maxTokens,
		Temperature: params.Temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal claude request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/messages", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build claude request: %w", err)
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
		return raw, resp.StatusCode, fmt.Errorf("claude request failed: %s", providers.ReadErrorMessage(bytes.NewReader(raw)))
	}

	var parsed claudeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return raw, resp.StatusCode, fmt.Errorf("decode claude response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return []byte(text.String()), resp.StatusCode, nil
}
