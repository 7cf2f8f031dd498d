package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/api"
	"github.com/dreamscapes/gateway/internal/alerting"
	"github.com/dreamscapes/gateway/internal/channel"
	"github.com/dreamscapes/gateway/internal/obsmetrics"
	"github.com/dreamscapes/gateway/types"
)

// realtimeStreamInterval is how often HandleRealtimeStream pushes a frame.
const realtimeStreamInterval = 2 * time.Second

// =============================================================================
// 📊 监控接口 Handler
// =============================================================================

// metricsReporter is the narrow slice of obsmetrics.Collector the monitoring
// handler needs.
type metricsReporter interface {
	GetMetricsReport(filter obsmetrics.Filter, timeRange obsmetrics.TimeRange) obsmetrics.Report
}

// alertSource is the narrow slice of alerting.Manager the monitoring handler
// needs to serve GET /monitoring/alerts.
type alertSource interface {
	Active() []alerting.Alert
	Recent(provider string, severity alerting.Severity, limit int) []alerting.Alert
}

// MonitoringHandler serves the fleet-wide monitoring surface: dashboard,
// realtime counters, aggregated performance, and alerts.
type MonitoringHandler struct {
	snapshots snapshotSource
	metrics   metricsReporter
	alerts    alertSource
	startedAt time.Time
	logger    *zap.Logger
}

// NewMonitoringHandler constructs a MonitoringHandler. startedAt is the
// process start time, used to compute the dashboard's uptime field.
func NewMonitoringHandler(snapshots snapshotSource, metrics metricsReporter, alerts alertSource, startedAt time.Time, logger *zap.Logger) *MonitoringHandler {
	return &MonitoringHandler{snapshots: snapshots, metrics: metrics, alerts: alerts, startedAt: startedAt, logger: logger}
}

// HandleDashboard serves GET /monitoring/dashboard: a combined snapshot of
// provider health, fleet-wide metrics, active alerts, and process state.
// @Summary 监控仪表盘
// @Tags 监控
// @Produce json
// @Success 200 {object} Response "仪表盘快照"
// @Router /monitoring/dashboard [get]
func (h *MonitoringHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	snaps := h.snapshots.Snapshots()
	details := make([]api.ProviderHealthDetail, 0, len(snaps))
	for _, s := range snaps {
		details = append(details, toDetail(s))
	}

	report := h.metrics.GetMetricsReport(obsmetrics.Filter{}, obsmetrics.TimeRange{})
	summary := summarizeMetrics(report)

	active := h.alerts.Active()
	alertViews := make([]api.AlertView, 0, len(active))
	for _, a := range active {
		alertViews = append(alertViews, toAlertView(a))
	}

	WriteSuccess(w, api.DashboardResponse{
		Providers: details,
		Metrics:   summary,
		Alerts:    alertViews,
		System: api.SystemSummary{
			Uptime:          time.Since(h.startedAt).Round(time.Second).String(),
			RegisteredCount: len(snaps),
		},
	})
}

// HandleRealtime serves GET /monitoring/realtime: point-in-time per-provider
// counters with no historical series attached.
// @Summary 实时计数器
// @Tags 监控
// @Produce json
// @Success 200 {object} Response "实时计数器"
// @Router /monitoring/realtime [get]
func (h *MonitoringHandler) HandleRealtime(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.buildRealtimeResponse())
}

// HandleRealtimeStream upgrades GET /monitoring/realtime/ws to a websocket
// connection and pushes the same payload HandleRealtime serves, once every
// realtimeStreamInterval, until the client disconnects.
// @Summary 实时计数器（WebSocket 推送）
// @Tags 监控
// @Router /monitoring/realtime/ws [get]
func (h *MonitoringHandler) HandleRealtimeStream(w http.ResponseWriter, r *http.Request) {
	err := channel.ServeRealtime(w, r, realtimeStreamInterval, func() any {
		return h.buildRealtimeResponse()
	}, h.logger)
	if err != nil {
		h.logger.Debug("realtime stream ended", zap.Error(err))
	}
}

func (h *MonitoringHandler) buildRealtimeResponse() api.RealtimeResponse {
	report := h.metrics.GetMetricsReport(obsmetrics.Filter{}, obsmetrics.TimeRange{})

	rows := make([]api.RealtimeProviderRow, 0, len(report.Providers))
	for name, pr := range report.Providers {
		rows = append(rows, api.RealtimeProviderRow{
			Provider:            name,
			InFlight:            pr.InFlight,
			RequestsLastMinute:  pr.RequestsLastMinute,
			FailuresLastMinute:  pr.FailuresLastMinute,
			SuccessRate:         pr.SuccessRate,
			AvgLatency:          pr.AvgLatency.String(),
			P95Latency:          pr.P95Latency.String(),
			ConsecutiveFailures: pr.ConsecutiveFailures,
			TotalCostUSD:        pr.TotalCostUSD,
		})
	}

	return api.RealtimeResponse{GeneratedAt: report.GeneratedAt, Providers: rows}
}

// HandlePerformance serves GET /monitoring/performance?timeRange=1h:
// aggregated metrics for the requested window plus a comparison against each
// provider's rolling EWMA latency baseline.
// @Summary 聚合性能指标
// @Tags 监控
// @Produce json
// @Param timeRange query string false "时间范围，如 1h、30m" default(1h)
// @Success 200 {object} Response "聚合性能指标"
// @Router /monitoring/performance [get]
func (h *MonitoringHandler) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	timeRangeParam := r.URL.Query().Get("timeRange")
	if timeRangeParam == "" {
		timeRangeParam = "1h"
	}
	window, err := time.ParseDuration(timeRangeParam)
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidationFailed, "invalid timeRange: "+timeRangeParam, h.logger)
		return
	}

	report := h.metrics.GetMetricsReport(obsmetrics.Filter{}, obsmetrics.TimeRange{Since: time.Now().Add(-window)})

	entries := make([]api.ProviderPerformanceEntry, 0, len(report.Providers))
	for name, pr := range report.Providers {
		delta := 0.0
		if pr.EWMALatency > 0 {
			delta = (float64(pr.AvgLatency) - float64(pr.EWMALatency)) / float64(pr.EWMALatency)
		}
		entries = append(entries, api.ProviderPerformanceEntry{
			Provider:            name,
			SuccessRate:         pr.SuccessRate,
			AvgLatency:          pr.AvgLatency.String(),
			P50Latency:          pr.P50Latency.String(),
			P95Latency:          pr.P95Latency.String(),
			EWMABaselineLatency: pr.EWMALatency.String(),
			LatencyDeltaPct:     delta,
			Samples:             pr.Samples,
		})
	}

	WriteSuccess(w, api.PerformanceResponse{TimeRange: timeRangeParam, Providers: entries})
}

// HandleAlerts serves GET /monitoring/alerts?severity=&provider=&limit=:
// currently-active alerts plus a filtered slice of recent history.
// @Summary 活跃与近期告警
// @Tags 监控
// @Produce json
// @Param severity query string false "warning 或 critical"
// @Param provider query string false "按 provider 过滤"
// @Param limit query int false "recent 列表的最大条数"
// @Success 200 {object} Response "活跃与近期告警"
// @Router /monitoring/alerts [get]
func (h *MonitoringHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	provider := q.Get("provider")
	severity := alerting.Severity(strings.ToLower(q.Get("severity")))
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidationFailed, "invalid limit: "+raw, h.logger)
			return
		}
		limit = parsed
	}

	active := h.alerts.Active()
	activeViews := make([]api.AlertView, 0, len(active))
	for _, a := range active {
		if provider != "" && a.Provider != provider {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		activeViews = append(activeViews, toAlertView(a))
	}

	recent := h.alerts.Recent(provider, severity, limit)
	recentViews := make([]api.AlertView, 0, len(recent))
	for _, a := range recent {
		recentViews = append(recentViews, toAlertView(a))
	}

	WriteSuccess(w, api.AlertsResponse{Active: activeViews, Recent: recentViews})
}

func summarizeMetrics(report obsmetrics.Report) api.MetricsSummary {
	var summary api.MetricsSummary
	var totalRate float64
	var rateSamples int
	for _, pr := range report.Providers {
		summary.TotalRequests += int64(pr.RequestsLastMinute)
		summary.TotalFailures += int64(pr.FailuresLastMinute)
		summary.FallbackCount += pr.FallbackCount
		summary.TotalCostUSD += pr.TotalCostUSD
		if pr.Samples > 0 {
			totalRate += pr.SuccessRate
			rateSamples++
		}
	}
	if rateSamples > 0 {
		summary.OverallSuccessRate = totalRate / float64(rateSamples)
	}
	return summary
}

func toAlertView(a alerting.Alert) api.AlertView {
	return api.AlertView{
		Provider:    a.Provider,
		Rule:        a.Rule,
		Severity:    string(a.Severity),
		Message:     a.Message,
		FiredAt:     a.FiredAt,
		Recurrences: a.Recurrences,
		Escalated:   a.Escalated,
	}
}
