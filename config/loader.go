// =============================================================================
// 📦 网关配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("GATEWAY").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config is the gateway's complete configuration tree.
type Config struct {
	// Server HTTP 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Providers 已注册的 Provider 列表
	Providers []ProviderConfig `yaml:"providers" env:"-"`

	// Manager ProviderManager 评分权重
	Manager ManagerConfig `yaml:"manager" env:"MANAGER"`

	// CircuitBreaker 熔断器阈值
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" env:"CIRCUIT_BREAKER"`

	// RateLimiter 默认限流配置，未在 Providers 中覆盖时使用
	RateLimiter RateLimiterConfig `yaml:"rate_limiter" env:"RATE_LIMITER"`

	// Validation 校验与修复配置
	Validation ValidationConfig `yaml:"validation" env:"VALIDATION"`

	// HealthMonitor 健康探测配置
	HealthMonitor HealthMonitorConfig `yaml:"health_monitor" env:"HEALTH_MONITOR"`

	// Alerting 告警配置
	Alerting AlertingConfig `yaml:"alerting" env:"ALERTING"`

	// Security API Key / JWT / CORS 配置
	Security SecurityConfig `yaml:"security" env:"SECURITY"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Persistence 可选的快照持久化配置
	Persistence PersistenceConfig `yaml:"persistence" env:"PERSISTENCE"`

	// Cache 可选的分布式缓存配置，用于跨副本共享告警抑制状态
	Cache CacheConfig `yaml:"cache" env:"CACHE"`
}

// ServerConfig holds the HTTP server's own listen/timeout/throttle settings.
// This is distinct from RateLimiterConfig, which governs outbound admission
// to each upstream provider.
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 入站请求限流：每秒请求数
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 入站请求限流：突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 单次请求允许的最大处理时间预算
	RequestBudget time.Duration `yaml:"request_budget" env:"REQUEST_BUDGET"`
}

// ProviderConfig is one registered provider's full configuration: the
// adapter kind and credentials needed to build it, plus the descriptor
// ProviderManager ranks and gates it by. Providers are loaded from the
// "providers" YAML array; there is no environment-variable form because a
// list of variable length doesn't map cleanly onto prefix/suffix env keys —
// per-field secrets (api_key) are still expected to come from the process
// environment via YAML's own env-var expansion at the deployment layer, not
// from this loader's env-override pass.
type ProviderConfig struct {
	// Name 唯一标识，用于熔断器、限流器、指标按 Provider 维度归档
	Name string `yaml:"name"`
	// Kind 适配器类型: anthropic | gemini | openai_compat
	Kind string `yaml:"kind"`
	// APIKey 鉴权密钥
	APIKey string `yaml:"api_key"`
	// BaseURL 覆盖默认的服务地址
	BaseURL string `yaml:"base_url"`
	// Model 默认模型名
	Model string `yaml:"model"`
	// Timeout 单次请求超时
	Timeout time.Duration `yaml:"timeout"`

	// Priority 静态优先级，评分公式的 w_p 项
	Priority int `yaml:"priority"`
	// Enabled 是否参与候选排序
	Enabled bool `yaml:"enabled"`
	// MaxTokens 单次请求允许的最大 Token 数
	MaxTokens int `yaml:"max_tokens"`
	// RPM 限流器的每分钟请求数上限
	RPM int `yaml:"rpm"`
	// Concurrent 限流器允许的最大并发请求数
	Concurrent int `yaml:"concurrent"`
	// Streaming 该 Provider 是否支持流式响应
	Streaming bool `yaml:"streaming"`
	// JSONMode 该 Provider 是否支持原生 JSON 模式
	JSONMode bool `yaml:"json_mode"`
	// OptimalTemperature 该 Provider 结构化输出任务下的推荐温度
	OptimalTemperature float64 `yaml:"optimal_temperature"`
}

// ManagerConfig holds ProviderManager's composite scoring coefficients.
type ManagerConfig struct {
	// PriorityWeight 优先级权重 (w_p)
	PriorityWeight float64 `yaml:"priority_weight" env:"PRIORITY_WEIGHT"`
	// SuccessRateWeight 近期成功率权重 (w_s)
	SuccessRateWeight float64 `yaml:"success_rate_weight" env:"SUCCESS_RATE_WEIGHT"`
	// LatencyWeight 归一化延迟权重 (w_l)
	LatencyWeight float64 `yaml:"latency_weight" env:"LATENCY_WEIGHT"`
}

// CircuitBreakerConfig holds the trip/recovery thresholds shared by every
// provider's breaker. Per-provider overrides are a non-goal: all breakers
// in one gateway instance share one policy.
type CircuitBreakerConfig struct {
	// FailureThreshold 连续失败达到该值即跳闸
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	// FailureRateThreshold 窗口内失败率达到该值即跳闸
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" env:"FAILURE_RATE_THRESHOLD"`
	// MinSamples 评估失败率前所需的最小样本数
	MinSamples int `yaml:"min_samples" env:"MIN_SAMPLES"`
	// WindowSize 失败率滑动窗口保留的样本数
	WindowSize int `yaml:"window_size" env:"WINDOW_SIZE"`
	// Cooldown 熔断后进入半开探测前的冷却时间
	Cooldown time.Duration `yaml:"cooldown" env:"COOLDOWN"`
}

// RateLimiterConfig is the fallback admission policy used for any provider
// whose ProviderConfig doesn't set RPM/Concurrent.
type RateLimiterConfig struct {
	// RPM 默认每分钟请求数
	RPM int `yaml:"rpm" env:"RPM"`
	// Concurrent 默认最大并发数
	Concurrent int `yaml:"concurrent" env:"CONCURRENT"`
	// AcquireTimeout 获取令牌的最长等待时间
	AcquireTimeout time.Duration `yaml:"acquire_timeout" env:"ACQUIRE_TIMEOUT"`
}

// ValidationConfig tunes ValidationPipeline's repair pass.
type ValidationConfig struct {
	// MaxRepairAttempts 单次候选在判定失败前允许的最大修复尝试次数
	MaxRepairAttempts int `yaml:"max_repair_attempts" env:"MAX_REPAIR_ATTEMPTS"`
}

// HealthMonitorConfig tunes HealthMonitor's classification thresholds and
// probe cadence.
type HealthMonitorConfig struct {
	// SuccessRateHealthy 成功率高于该值视为健康
	SuccessRateHealthy float64 `yaml:"success_rate_healthy" env:"SUCCESS_RATE_HEALTHY"`
	// SLALatency 平均延迟高于该值视为降级
	SLALatency time.Duration `yaml:"sla_latency" env:"SLA_LATENCY"`
	// CriticalConsecutiveFailures 连续失败达到该值视为不健康
	CriticalConsecutiveFailures int `yaml:"critical_consecutive_failures" env:"CRITICAL_CONSECUTIVE_FAILURES"`
	// CircuitOpenUnhealthyMultiple 熔断开启时长超过 cooldown 的该倍数视为不健康
	CircuitOpenUnhealthyMultiple float64 `yaml:"circuit_open_unhealthy_multiple" env:"CIRCUIT_OPEN_UNHEALTHY_MULTIPLE"`
	// ProbeInterval 主动探测的周期
	ProbeInterval time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`
}

// AlertingConfig configures AlertingSystem's delivery channels and
// evaluation cadence. The rule set itself (thresholds for provider_unhealthy,
// circuit_open, success_rate_degraded, repeated_failures) is fixed in code —
// see alerting.DefaultRules.
type AlertingConfig struct {
	// EvaluateInterval Evaluate 的调度周期
	EvaluateInterval time.Duration `yaml:"evaluate_interval" env:"EVALUATE_INTERVAL"`
	// WebhookURL 非空时启用 Webhook 通道
	WebhookURL string `yaml:"webhook_url" env:"WEBHOOK_URL"`
	// ConsoleEnabled 是否启用标准输出通道，便于本地调试
	ConsoleEnabled bool `yaml:"console_enabled" env:"CONSOLE_ENABLED"`
}

// SecurityConfig holds the inbound-request authentication settings: API
// keys gating the generation/monitoring surface, and the JWT secret gating
// the administrative provider-mutation surface.
type SecurityConfig struct {
	// APIKeys 允许访问生成/监控接口的 API Key 列表
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// JWTSecret HMAC 签名密钥，用于验证 /admin 路由的 Bearer token
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// AllowedOrigins CORS 允许的来源列表；为空时拒绝一切跨域请求
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// PersistenceConfig controls the optional restart-continuity snapshot: a
// point-in-time dump of provider state and recent alerts, not durable
// request history.
type PersistenceConfig struct {
	// Enabled 是否启用快照持久化
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// DSN SQLite 数据源名称，例如 file:gateway-snapshot.db
	DSN string `yaml:"dsn" env:"DSN"`
	// Interval 快照写入周期
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// CacheConfig controls the optional Redis-backed second tier for alert
// suppression state. When Enabled is false the AlertingSystem keeps state
// in-process only.
type CacheConfig struct {
	// Enabled 是否启用 Redis 缓存
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addr Redis 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// Password Redis 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// DB Redis 数据库编号
	DB int `yaml:"db" env:"DB"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "GATEWAY",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	if len(c.Providers) == 0 {
		errs = append(errs, "at least one provider must be configured")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, "provider name must not be empty")
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("duplicate provider name %q", p.Name))
		}
		seen[p.Name] = true
		switch p.Kind {
		case "anthropic", "gemini", "openai_compat":
		default:
			errs = append(errs, fmt.Sprintf("provider %q: unknown kind %q", p.Name, p.Kind))
		}
	}

	if c.Validation.MaxRepairAttempts < 0 {
		errs = append(errs, "validation.max_repair_attempts must not be negative")
	}
	if c.CircuitBreaker.FailureRateThreshold < 0 || c.CircuitBreaker.FailureRateThreshold > 1 {
		errs = append(errs, "circuit_breaker.failure_rate_threshold must be between 0 and 1")
	}
	if c.HealthMonitor.SuccessRateHealthy < 0 || c.HealthMonitor.SuccessRateHealthy > 1 {
		errs = append(errs, "health_monitor.success_rate_healthy must be between 0 and 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
