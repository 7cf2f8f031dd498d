package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/dreamscapes/gateway/api/handlers"
	"github.com/dreamscapes/gateway/config"
	"github.com/dreamscapes/gateway/internal/alerting"
	"github.com/dreamscapes/gateway/internal/cache"
	"github.com/dreamscapes/gateway/internal/circuitbreaker"
	"github.com/dreamscapes/gateway/internal/database"
	"github.com/dreamscapes/gateway/internal/extractor"
	"github.com/dreamscapes/gateway/internal/fallback"
	"github.com/dreamscapes/gateway/internal/healthmonitor"
	"github.com/dreamscapes/gateway/internal/invoker"
	"github.com/dreamscapes/gateway/internal/manager"
	"github.com/dreamscapes/gateway/internal/obsmetrics"
	"github.com/dreamscapes/gateway/internal/ratelimiter"
	"github.com/dreamscapes/gateway/internal/retryorchestrator"
	"github.com/dreamscapes/gateway/internal/server"
	"github.com/dreamscapes/gateway/internal/validation"
)

// Server is the assembled gateway process: every ProviderManager
// collaborator, the background health/alerting loops, and the two HTTP
// listeners (API + metrics) built around them.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	metrics  *obsmetrics.Collector
	breakers *circuitbreaker.Manager
	limiters *ratelimiter.Manager
	mgr      *manager.Manager
	health   *healthmonitor.Monitor
	alerts   *alerting.Manager

	dbPool   *database.PoolManager
	snapshot *database.SnapshotStore
	redis    *cache.Manager

	hotReload        *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	stopBackground context.CancelFunc
	wg             sync.WaitGroup

	startedAt time.Time
}

// NewServer wires every ProviderManager collaborator from cfg and returns an
// unstarted Server. configPath is the file hot-reload should watch; empty
// disables hot-reload entirely.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger, startedAt: time.Now()}

	var err error
	s.metrics, err = obsmetrics.New(logger)
	if err != nil {
		return nil, fmt.Errorf("init metrics collector: %w", err)
	}

	s.breakers = circuitbreaker.NewManager(circuitbreaker.Config{
		FailureThreshold:     cfg.CircuitBreaker.FailureThreshold,
		FailureRateThreshold: cfg.CircuitBreaker.FailureRateThreshold,
		MinSamples:           cfg.CircuitBreaker.MinSamples,
		WindowSize:           cfg.CircuitBreaker.WindowSize,
		Cooldown:             cfg.CircuitBreaker.Cooldown,
	}, logger)

	s.limiters = ratelimiter.NewManager()
	limiterDefault := ratelimiter.Config{
		RPM:            cfg.RateLimiter.RPM,
		Concurrent:     cfg.RateLimiter.Concurrent,
		AcquireTimeout: cfg.RateLimiter.AcquireTimeout,
	}
	limiterCfgByProvider := make(map[string]ratelimiter.Config, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		limiterCfgByProvider[pc.Name] = ratelimiter.Config{
			RPM:            pc.RPM,
			Concurrent:     pc.Concurrent,
			AcquireTimeout: limiterDefault.AcquireTimeout,
		}
	}
	limiterCfg := func(provider string) ratelimiter.Config {
		if c, ok := limiterCfgByProvider[provider]; ok && c.RPM > 0 {
			return c
		}
		return limiterDefault
	}

	ex := extractor.New(logger)
	inv := invoker.New(s.limiters, limiterCfg, s.breakers, ex, s.metrics, logger)
	orch := retryorchestrator.New(logger)
	valid := validation.New(logger, cfg.Validation.MaxRepairAttempts)
	synth := fallback.New(logger)

	var channels []alerting.Channel
	if cfg.Alerting.WebhookURL != "" {
		channels = append(channels, alerting.NewWebhookChannel(cfg.Alerting.WebhookURL, &http.Client{Timeout: 10 * time.Second}))
	}
	if cfg.Alerting.ConsoleEnabled {
		channels = append(channels, alerting.NewConsoleChannel(func(msg string) { fmt.Println(msg) }))
	}
	channels = append(channels, alerting.NewLogChannel(logger))
	s.alerts = alerting.New(alerting.DefaultRules(), channels, logger)

	if cfg.Cache.Enabled {
		redisManager, err := cache.NewManager(cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init cache manager: %w", err)
		}
		s.redis = redisManager
		s.alerts.SetStore(cache.NewAlertStore(redisManager))
	}

	if cfg.Persistence.Enabled {
		gormDB, err := gorm.Open(sqlite.Open(cfg.Persistence.DSN), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open snapshot database: %w", err)
		}
		dbPool, err := database.NewPoolManager(gormDB, database.DefaultPoolConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("init snapshot pool: %w", err)
		}
		s.dbPool = dbPool
		snapshotStore, err := database.NewSnapshotStore(dbPool, logger)
		if err != nil {
			return nil, fmt.Errorf("init snapshot store: %w", err)
		}
		s.snapshot = snapshotStore
	}

	s.mgr = manager.New(manager.Deps{
		Invoker:      inv,
		Orchestrator: orch,
		Validator:    valid,
		Synthesizer:  synth,
		Breakers:     s.breakers,
		Metrics:      s.metrics,
		Alerts:       s.alerts,
		Weights: manager.ScoreWeights{
			Priority:    cfg.Manager.PriorityWeight,
			SuccessRate: cfg.Manager.SuccessRateWeight,
			Latency:     cfg.Manager.LatencyWeight,
		},
		Logger: logger,
	})

	providerNames := make([]string, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, descriptor, err := buildProvider(pc, logger)
		if err != nil {
			return nil, err
		}
		s.mgr.Register(p, descriptor)
		providerNames = append(providerNames, pc.Name)
	}

	s.health = healthmonitor.New(
		manager.NewMetricsSource(s.metrics, s.breakers),
		s.mgr,
		healthmonitor.Thresholds{
			SuccessRateHealthy:           cfg.HealthMonitor.SuccessRateHealthy,
			SLALatency:                   cfg.HealthMonitor.SLALatency,
			CriticalConsecutiveFailures:  cfg.HealthMonitor.CriticalConsecutiveFailures,
			CircuitOpenUnhealthyMultiple: cfg.HealthMonitor.CircuitOpenUnhealthyMultiple,
			Cooldown:                     cfg.CircuitBreaker.Cooldown,
			ProbeInterval:                cfg.HealthMonitor.ProbeInterval,
		},
		logger,
	)
	s.mgr.SetHealth(s.health)

	var bgCtx context.Context
	bgCtx, s.stopBackground = context.WithCancel(context.Background())

	if configPath != "" {
		hotReloadOpts := []config.HotReloadOption{
			config.WithHotReloadLogger(logger),
			config.WithConfigPath(configPath),
		}
		s.hotReload = config.NewHotReloadManager(cfg, hotReloadOpts...)
		s.hotReload.OnChange(func(change config.ConfigChange) {
			logger.Info("configuration changed",
				zap.String("path", change.Path),
				zap.String("source", change.Source),
				zap.Bool("requires_restart", change.RequiresRestart),
			)
		})
		s.hotReload.OnReload(func(oldConfig, newConfig *config.Config) {
			logger.Info("configuration reloaded")
			s.cfg = newConfig
		})
		if err := s.hotReload.Start(bgCtx); err != nil {
			return nil, fmt.Errorf("start hot reload manager: %w", err)
		}
		s.configAPIHandler = config.NewConfigAPIHandler(s.hotReload)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.health.RunPassiveLoop(bgCtx, providerNames, cfg.HealthMonitor.ProbeInterval)
	}()
	go func() {
		defer s.wg.Done()
		s.alerts.RunLoop(bgCtx, cfg.Alerting.EvaluateInterval, s.mgr.Snapshots)
	}()
	if len(providerNames) > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.health.RunActiveLoop(bgCtx, providerNames)
		}()
	}
	if s.snapshot != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.snapshot.RunSnapshotLoop(bgCtx, cfg.Persistence.Interval,
				func() []database.ProviderSnapshotRecord { return providerSnapshotRecords(s.mgr.Snapshots()) },
				func() []database.AlertRecord { return alertRecords(s.alerts.Recent("", "", 0)) },
			)
		}()
	}

	return s, nil
}

// providerSnapshotRecords adapts alerting's provider view into the
// restart-continuity snapshot schema.
func providerSnapshotRecords(snapshots []alerting.ProviderSnapshot) []database.ProviderSnapshotRecord {
	records := make([]database.ProviderSnapshotRecord, 0, len(snapshots))
	now := time.Now()
	for _, s := range snapshots {
		records = append(records, database.ProviderSnapshotRecord{
			Provider:            s.Provider,
			Health:              s.Health,
			CircuitOpen:         s.CircuitOpen,
			SuccessRate:         s.SuccessRate,
			Samples:             s.Samples,
			AvgLatencyMS:        s.AvgLatency.Milliseconds(),
			ConsecutiveFailures: s.ConsecutiveFailures,
			CapturedAt:          now,
		})
	}
	return records
}

// alertRecords adapts alerting's fired-alert history into the persisted
// schema.
func alertRecords(alerts []alerting.Alert) []database.AlertRecord {
	records := make([]database.AlertRecord, 0, len(alerts))
	for _, a := range alerts {
		records = append(records, database.AlertRecord{
			Provider:    a.Provider,
			Rule:        a.Rule,
			Severity:    string(a.Severity),
			Message:     a.Message,
			FiredAt:     a.FiredAt,
			Recurrences: a.Recurrences,
			Escalated:   a.Escalated,
		})
	}
	return records
}

// Start builds the HTTP mux, wraps it in the middleware chain, and starts
// both the API and metrics listeners. Non-blocking; call WaitForShutdown to
// block until a shutdown signal arrives.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(s.logger)
	generateHandler := handlers.NewGenerateHandler(s.mgr, s.logger)
	adminHandler := handlers.NewAdminHandler(s.mgr, s.logger)
	providerHealthHandler := handlers.NewProviderHealthHandler(s.mgr, s.mgr, s.logger)
	monitoringHandler := handlers.NewMonitoringHandler(s.mgr, s.metrics, s.alerts, s.startedAt, s.logger)

	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", healthHandler.HandleReady)
	mux.HandleFunc("/readyz", healthHandler.HandleReady)
	mux.HandleFunc("/version", healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("/api/parse-dream", generateHandler.HandleGenerate)

	mux.HandleFunc("/health/detailed", providerHealthHandler.HandleDetailed)
	mux.HandleFunc("/health/provider/", providerHealthHandler.HandleProvider)
	mux.HandleFunc("/health/check", providerHealthHandler.HandleCheck)

	mux.HandleFunc("/admin/providers/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			adminHandler.HandleGetProvider(w, r)
		case http.MethodPatch:
			adminHandler.HandleMutateProvider(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/monitoring/dashboard", monitoringHandler.HandleDashboard)
	mux.HandleFunc("/monitoring/realtime", monitoringHandler.HandleRealtime)
	mux.HandleFunc("/monitoring/realtime/ws", monitoringHandler.HandleRealtimeStream)
	mux.HandleFunc("/monitoring/performance", monitoringHandler.HandlePerformance)
	mux.HandleFunc("/monitoring/alerts", monitoringHandler.HandleAlerts)

	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("configuration API registered")
	}

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	bgCtx := context.Background()
	apiHandler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		SecurityHeaders(),
		CORS(s.cfg.Security.AllowedOrigins),
		RateLimiter(bgCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst),
		OnlyAdminPath(JWTAuth(s.cfg.Security.JWTSecret, s.logger)),
		ExceptAdminPath(APIKeyAuth(s.cfg.Security.APIKeys, skipAuthPaths, s.logger)),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(apiHandler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(metricsMux, metricsConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}
	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))

	return nil
}

// WaitForShutdown blocks until a termination signal or server error arrives,
// then runs Shutdown.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the background health/alerting loops and both HTTP
// listeners, waiting for in-flight work to finish or the configured timeout
// to elapse.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	if s.hotReload != nil {
		if err := s.hotReload.Stop(); err != nil {
			s.logger.Error("hot reload manager stop error", zap.Error(err))
		}
	}

	if s.stopBackground != nil {
		s.stopBackground()
	}

	ctx := context.Background()
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	s.metrics.Close()
	s.wg.Wait()

	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("snapshot database close error", zap.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("cache manager close error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
