// =============================================================================
// 📦 网关默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:         DefaultServerConfig(),
		Providers:      DefaultProviders(),
		Manager:        DefaultManagerConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		RateLimiter:    DefaultRateLimiterConfig(),
		Validation:     DefaultValidationConfig(),
		HealthMonitor:  DefaultHealthMonitorConfig(),
		Alerting:       DefaultAlertingConfig(),
		Security:       DefaultSecurityConfig(),
		Log:            DefaultLogConfig(),
		Telemetry:      DefaultTelemetryConfig(),
		Persistence:    DefaultPersistenceConfig(),
		Cache:          DefaultCacheConfig(),
	}
}

// DefaultPersistenceConfig 返回默认快照持久化配置：默认关闭
func DefaultPersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		Enabled:  false,
		DSN:      "gateway-snapshot.db",
		Interval: time.Minute,
	}
}

// DefaultCacheConfig 返回默认缓存配置：默认关闭
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: false,
		Addr:    "localhost:6379",
		DB:      0,
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		RequestBudget:   20 * time.Second,
	}
}

// DefaultProviders 返回一个空的 Provider 列表；生产部署必须通过 YAML 文件
// 或挂载的配置声明至少一个 Provider，Validate 会拒绝空列表。
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{}
}

// DefaultManagerConfig 返回默认的评分权重
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PriorityWeight:    1.0,
		SuccessRateWeight: 10.0,
		LatencyWeight:     5.0,
	}
}

// DefaultCircuitBreakerConfig 返回默认熔断阈值
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:     5,
		FailureRateThreshold: 0.5,
		MinSamples:           10,
		WindowSize:           50,
		Cooldown:             30 * time.Second,
	}
}

// DefaultRateLimiterConfig 返回未显式配置 Provider 限流参数时的默认值
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RPM:            60,
		Concurrent:     4,
		AcquireTimeout: 250 * time.Millisecond,
	}
}

// DefaultValidationConfig 返回默认校验/修复配置
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxRepairAttempts: 2,
	}
}

// DefaultHealthMonitorConfig 返回默认健康探测配置
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		SuccessRateHealthy:           0.9,
		SLALatency:                   3 * time.Second,
		CriticalConsecutiveFailures:  5,
		CircuitOpenUnhealthyMultiple: 2.0,
		ProbeInterval:                30 * time.Second,
	}
}

// DefaultAlertingConfig 返回默认告警配置
func DefaultAlertingConfig() AlertingConfig {
	return AlertingConfig{
		EvaluateInterval: 30 * time.Second,
		WebhookURL:       "",
		ConsoleEnabled:   true,
	}
}

// DefaultSecurityConfig 返回默认安全配置：空 API Key 列表、空 JWT 密钥、
// 空 CORS 来源列表 — 生产部署必须通过 YAML 或环境变量显式配置，否则
// 所有跨域请求被拒绝且管理端点无法通过任何 JWT 验证。
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "ai-provider-gateway",
		SampleRate:   0.1,
	}
}
