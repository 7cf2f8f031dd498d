// Package api provides the wire-level request/response types for the
// gateway's HTTP surface.
package api

import "time"

// =============================================================================
// Envelope
// =============================================================================

// Response is the canonical API envelope every endpoint responds with.
// @Description API response envelope
type Response struct {
	// Whether the request succeeded
	Success bool `json:"success"`
	// Response payload, present only on success
	Data any `json:"data,omitempty"`
	// Error details, present only on failure
	Error *ErrorInfo `json:"error,omitempty"`
	// Response generation timestamp
	Timestamp time.Time `json:"timestamp"`
	// Echoed request ID, when one was supplied or generated
	RequestID string `json:"request_id,omitempty"`
}

// ErrorInfo is the sanitized error carried on a failed Response — never the
// cause, never internal context, just what a caller needs to classify and
// possibly retry.
// @Description Sanitized error structure
type ErrorInfo struct {
	// Error kind from the fixed taxonomy (e.g. provider_unavailable, timeout)
	Code string `json:"code" example:"provider_unavailable"`
	// Human-readable message
	Message string `json:"message" example:"all candidate providers exhausted"`
	// HTTP status this error was surfaced as
	HTTPStatus int `json:"http_status,omitempty" example:"503"`
	// Whether the request can be retried
	Retryable bool `json:"retryable,omitempty"`
	// Provider that produced the error, if any
	Provider string `json:"provider,omitempty" example:"openai"`
}

// =============================================================================
// Generation
// =============================================================================

// GenerateRequest is the body of POST /api/parse-dream.
// @Description Dream generation request
type GenerateRequest struct {
	// Natural-language prompt to generate a dream artifact from
	Text string `json:"text" example:"a dragon over mountains" binding:"required"`
	// Desired narrative/visual style
	Style string `json:"style,omitempty" example:"ethereal"`
	// Desired quality tier
	Quality string `json:"quality,omitempty" example:"standard"`
	// Optional per-request overrides
	Options *GenerateOptions `json:"options,omitempty"`
}

// GenerateOptions carries optional per-request overrides to GenerateRequest.
// @Description Per-request generation overrides
type GenerateOptions struct {
	// Overall time budget for this request, in milliseconds
	TimeoutBudgetMs int `json:"timeout_budget_ms,omitempty" example:"8000"`
	// Named schema to validate the artifact against
	Schema string `json:"schema,omitempty" example:"dreamResponse"`
}

// ArtifactMetadata is the required metadata block on every validated
// artifact, regardless of whether it was produced by a provider or by the
// emergency fallback synthesizer.
// @Description Artifact provenance and quality metadata
type ArtifactMetadata struct {
	// Either a provider name or "emergency_fallback"
	Source string `json:"source" example:"openai"`
	// Model identifier used to produce this artifact
	Model string `json:"model,omitempty" example:"openai"`
	// Wall-clock time spent producing this artifact
	ProcessingTimeMs int64 `json:"processingTimeMs"`
	// Quality tier actually used
	Quality string `json:"quality,omitempty" example:"standard"`
	// Token usage, when the provider reports it
	Tokens *TokenUsage `json:"tokens,omitempty"`
	// Confidence in [0,1]: successProbability · repairPenalty · extractionPenalty
	Confidence float64 `json:"confidence" example:"0.87"`
	// Whether this artifact was served from cache
	CacheHit bool `json:"cacheHit"`
}

// TokenUsage mirrors types.TokenUsage for the wire response.
// @Description Token usage statistics
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// =============================================================================
// Health
// =============================================================================

// ProviderHealthDetail is one provider's row in GET /health/detailed.
// @Description Per-provider detailed health
type ProviderHealthDetail struct {
	Provider            string  `json:"provider" example:"openai"`
	Status              string  `json:"status" example:"healthy"`
	SuccessRate         float64 `json:"successRate" example:"0.97"`
	AvgResponseTime     string  `json:"avgResponseTime" example:"420ms"`
	ConsecutiveFailures int     `json:"consecutiveFailures" example:"0"`
	Circuit             string  `json:"circuit" example:"closed"`
}

// HealthDetailResponse is the body of GET /health/detailed.
// @Description Detailed health response
type HealthDetailResponse struct {
	Providers []ProviderHealthDetail `json:"providers"`
}

// HealthCheckRequest is the optional body of POST /health/check.
// @Description Live health probe request
type HealthCheckRequest struct {
	// Providers to probe; empty means probe every registered provider
	Providers []string `json:"providers,omitempty"`
}

// HealthCheckResult is one provider's outcome in POST /health/check.
// @Description Live probe result
type HealthCheckResult struct {
	Provider string `json:"provider"`
	Healthy  bool   `json:"healthy"`
	Error    string `json:"error,omitempty"`
}

// HealthCheckResponse is the body of POST /health/check.
// @Description Live probe response
type HealthCheckResponse struct {
	Results []HealthCheckResult `json:"results"`
}

// =============================================================================
// Monitoring
// =============================================================================

// DashboardResponse is the combined snapshot served by GET /monitoring/dashboard.
// @Description Monitoring dashboard snapshot
type DashboardResponse struct {
	Providers []ProviderHealthDetail `json:"providers"`
	Metrics   MetricsSummary         `json:"metrics"`
	Alerts    []AlertView            `json:"alerts"`
	System    SystemSummary          `json:"system"`
}

// MetricsSummary aggregates the fleet-wide counters shown on the dashboard.
// @Description Fleet-wide metrics summary
type MetricsSummary struct {
	TotalRequests      int64   `json:"totalRequests"`
	TotalFailures      int64   `json:"totalFailures"`
	OverallSuccessRate float64 `json:"overallSuccessRate"`
	FallbackCount      int64   `json:"fallbackCount"`
	TotalCostUSD       float64 `json:"totalCostUsd"`
}

// SystemSummary is process-level context shown on the dashboard.
// @Description Process-level system summary
type SystemSummary struct {
	Uptime          string `json:"uptime"`
	RegisteredCount int    `json:"registeredProviders"`
}

// RealtimeResponse is the body of GET /monitoring/realtime: point-in-time
// per-provider counters with no historical series attached.
// @Description Realtime per-provider counters
type RealtimeResponse struct {
	GeneratedAt time.Time             `json:"generatedAt"`
	Providers   []RealtimeProviderRow `json:"providers"`
}

// RealtimeProviderRow is one provider's row in RealtimeResponse.
// @Description Realtime counters for one provider
type RealtimeProviderRow struct {
	Provider            string  `json:"provider"`
	InFlight            int64   `json:"inFlight"`
	RequestsLastMinute  int     `json:"requestsLastMinute"`
	FailuresLastMinute  int     `json:"failuresLastMinute"`
	SuccessRate         float64 `json:"successRate"`
	AvgLatency          string  `json:"avgLatency"`
	P95Latency          string  `json:"p95Latency"`
	ConsecutiveFailures int     `json:"consecutiveFailures"`
	TotalCostUSD        float64 `json:"totalCostUsd"`
}

// PerformanceResponse is the body of GET /monitoring/performance: aggregated
// metrics for the requested time range plus a baseline comparison.
// @Description Aggregated performance metrics with baseline comparison
type PerformanceResponse struct {
	TimeRange string                     `json:"timeRange" example:"1h"`
	Providers []ProviderPerformanceEntry `json:"providers"`
}

// ProviderPerformanceEntry is one provider's aggregated performance entry.
// @Description Per-provider aggregated performance with baseline delta
type ProviderPerformanceEntry struct {
	Provider            string  `json:"provider"`
	SuccessRate         float64 `json:"successRate"`
	AvgLatency          string  `json:"avgLatency"`
	P50Latency          string  `json:"p50Latency"`
	P95Latency          string  `json:"p95Latency"`
	EWMABaselineLatency string  `json:"ewmaBaselineLatency"`
	// LatencyDeltaPct is (avgLatency − baseline) / baseline, a positive value
	// meaning the provider is currently slower than its rolling baseline.
	LatencyDeltaPct float64 `json:"latencyDeltaPct"`
	Samples         int     `json:"samples"`
}

// AlertView is one alert as served by GET /monitoring/alerts.
// @Description Alert record
type AlertView struct {
	Provider    string    `json:"provider"`
	Rule        string    `json:"rule"`
	Severity    string    `json:"severity" example:"critical"`
	Message     string    `json:"message"`
	FiredAt     time.Time `json:"firedAt"`
	Recurrences int       `json:"recurrences"`
	Escalated   bool      `json:"escalated"`
}

// AlertsResponse is the body of GET /monitoring/alerts.
// @Description Active and recent alerts
type AlertsResponse struct {
	Active []AlertView `json:"active"`
	Recent []AlertView `json:"recent"`
}

// =============================================================================
// Admin
// =============================================================================

// MutateProviderRequest is the body of the JWT-gated administrative mutation
// endpoint, PATCH /admin/providers/:name. Only non-nil fields are applied.
// @Description Administrative provider mutation request
type MutateProviderRequest struct {
	Enabled  *bool `json:"enabled,omitempty"`
	Priority *int  `json:"priority,omitempty"`
	Limits   *struct {
		MaxTokens  *int `json:"max_tokens,omitempty"`
		RPM        *int `json:"rpm,omitempty"`
		Concurrent *int `json:"concurrent,omitempty"`
	} `json:"limits,omitempty"`
}

// ProviderDescriptorView mirrors types.ProviderDescriptor for the wire
// response returned after a mutation is applied.
// @Description Provider descriptor after mutation
type ProviderDescriptorView struct {
	Name               string  `json:"name"`
	Priority           int     `json:"priority"`
	Enabled            bool    `json:"enabled"`
	MaxTokens          int     `json:"max_tokens"`
	RPM                int     `json:"rpm"`
	Concurrent         int     `json:"concurrent"`
	Streaming          bool    `json:"streaming"`
	JSONMode           bool    `json:"json_mode"`
	OptimalTemperature float64 `json:"optimal_temperature"`
}
