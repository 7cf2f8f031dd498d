package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, ManagerConfig{}, cfg.Manager)
	assert.NotEqual(t, CircuitBreakerConfig{}, cfg.CircuitBreaker)
	assert.NotEqual(t, RateLimiterConfig{}, cfg.RateLimiter)
	assert.NotEqual(t, ValidationConfig{}, cfg.Validation)
	assert.NotEqual(t, HealthMonitorConfig{}, cfg.HealthMonitor)
	assert.NotEqual(t, AlertingConfig{}, cfg.Alerting)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.Empty(t, cfg.Providers)
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Equal(t, 20*time.Second, cfg.RequestBudget)
}

func TestDefaultManagerConfig(t *testing.T) {
	cfg := DefaultManagerConfig()
	assert.InDelta(t, 1.0, cfg.PriorityWeight, 0.001)
	assert.InDelta(t, 10.0, cfg.SuccessRateWeight, 0.001)
	assert.InDelta(t, 5.0, cfg.LatencyWeight, 0.001)
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.InDelta(t, 0.5, cfg.FailureRateThreshold, 0.001)
	assert.Equal(t, 10, cfg.MinSamples)
	assert.Equal(t, 50, cfg.WindowSize)
	assert.Equal(t, 30*time.Second, cfg.Cooldown)
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	assert.Equal(t, 60, cfg.RPM)
	assert.Equal(t, 4, cfg.Concurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.AcquireTimeout)
}

func TestDefaultValidationConfig(t *testing.T) {
	cfg := DefaultValidationConfig()
	assert.Equal(t, 2, cfg.MaxRepairAttempts)
}

func TestDefaultHealthMonitorConfig(t *testing.T) {
	cfg := DefaultHealthMonitorConfig()
	assert.InDelta(t, 0.9, cfg.SuccessRateHealthy, 0.001)
	assert.Equal(t, 3*time.Second, cfg.SLALatency)
	assert.Equal(t, 5, cfg.CriticalConsecutiveFailures)
	assert.InDelta(t, 2.0, cfg.CircuitOpenUnhealthyMultiple, 0.001)
	assert.Equal(t, 30*time.Second, cfg.ProbeInterval)
}

func TestDefaultAlertingConfig(t *testing.T) {
	cfg := DefaultAlertingConfig()
	assert.Equal(t, 30*time.Second, cfg.EvaluateInterval)
	assert.Empty(t, cfg.WebhookURL)
	assert.True(t, cfg.ConsoleEnabled)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "ai-provider-gateway", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}
