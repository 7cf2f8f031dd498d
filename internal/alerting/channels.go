package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LogChannel delivers alerts as structured zap log entries.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel constructs a LogChannel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(_ context.Context, alert Alert) error {
	level := c.logger.Warn
	if alert.Severity == SeverityCritical {
		level = c.logger.Error
	}
	level("alert fired",
		zap.String("provider", alert.Provider),
		zap.String("rule", alert.Rule),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message),
		zap.Int("recurrences", alert.Recurrences),
		zap.Bool("escalated", alert.Escalated))
	return nil
}

// ConsoleChannel writes human-readable alert lines, matching the "[ALERT]"
// tagging convention the rest of the gateway's ad-hoc operational logging
// uses.
type ConsoleChannel struct {
	write func(string)
}

// NewConsoleChannel constructs a ConsoleChannel. If write is nil it defaults
// to fmt.Println.
func NewConsoleChannel(write func(string)) *ConsoleChannel {
	if write == nil {
		write = func(s string) { fmt.Println(s) }
	}
	return &ConsoleChannel{write: write}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Deliver(_ context.Context, alert Alert) error {
	tag := "[ALERT]"
	if alert.Escalated {
		tag = "[ALERT][ESCALATED]"
	}
	c.write(fmt.Sprintf("%s %s/%s: %s (x%d)", tag, alert.Provider, alert.Rule, alert.Message, alert.Recurrences))
	return nil
}

// WebhookChannel posts alerts as JSON to a configured URL.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel constructs a WebhookChannel. If client is nil a client
// with a 5s timeout is used.
func NewWebhookChannel(url string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookChannel{url: url, client: client}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Deliver(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
