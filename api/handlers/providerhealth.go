package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/api"
	"github.com/dreamscapes/gateway/internal/alerting"
	"github.com/dreamscapes/gateway/types"
)

// =============================================================================
// 🩺 Provider 健康接口 Handler
// =============================================================================

// snapshotSource is the narrow slice of manager.Manager's API the provider
// health handler needs to render /health/detailed and /health/provider/:name
// without depending on the manager package's full collaborator graph.
type snapshotSource interface {
	Snapshots() []alerting.ProviderSnapshot
}

// prober probes one provider live, matching manager.Manager.Probe.
type prober interface {
	Probe(ctx context.Context, provider string) error
}

// ProviderHealthHandler serves the provider-scoped health surface:
// GET /health/detailed, GET /health/provider/:name, POST /health/check.
type ProviderHealthHandler struct {
	snapshots snapshotSource
	prober    prober
	logger    *zap.Logger
}

// NewProviderHealthHandler constructs a ProviderHealthHandler.
func NewProviderHealthHandler(snapshots snapshotSource, prober prober, logger *zap.Logger) *ProviderHealthHandler {
	return &ProviderHealthHandler{snapshots: snapshots, prober: prober, logger: logger}
}

// HandleDetailed serves GET /health/detailed: 200 when every provider is
// healthy, 206 when at least one is degraded or unhealthy but at least one is
// healthy, 503 when none is healthy.
// @Summary 详细健康状态
// @Description 返回每个 provider 的健康详情
// @Tags 健康
// @Produce json
// @Success 200 {object} Response "全部健康"
// @Success 206 {object} Response "部分降级"
// @Failure 503 {object} Response "全部不健康"
// @Router /health/detailed [get]
func (h *ProviderHealthHandler) HandleDetailed(w http.ResponseWriter, r *http.Request) {
	snaps := h.snapshots.Snapshots()
	details := make([]api.ProviderHealthDetail, 0, len(snaps))
	healthyCount := 0
	for _, s := range snaps {
		details = append(details, toDetail(s))
		if s.Health == "healthy" {
			healthyCount++
		}
	}

	status := http.StatusOK
	switch {
	case len(snaps) == 0:
		status = http.StatusOK
	case healthyCount == 0:
		status = http.StatusServiceUnavailable
	case healthyCount < len(snaps):
		status = http.StatusMultiStatus
	}

	WriteJSON(w, status, Response{
		Success:   status != http.StatusServiceUnavailable,
		Data:      api.HealthDetailResponse{Providers: details},
		Timestamp: time.Now(),
	})
}

// HandleProvider serves GET /health/provider/:name, 404 if name is unknown.
// @Summary 单个 Provider 健康状态
// @Tags 健康
// @Produce json
// @Param name path string true "Provider 名称"
// @Success 200 {object} Response "健康详情"
// @Failure 404 {object} Response "未知 provider"
// @Router /health/provider/{name} [get]
func (h *ProviderHealthHandler) HandleProvider(w http.ResponseWriter, r *http.Request) {
	name := extractProviderName(r)
	if name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidationFailed, "provider name is required", h.logger)
		return
	}

	for _, s := range h.snapshots.Snapshots() {
		if s.Provider == name {
			WriteSuccess(w, toDetail(s))
			return
		}
	}

	WriteErrorMessage(w, http.StatusNotFound, types.ErrModelUnavailable, "unknown provider: "+name, h.logger)
}

// HandleCheck serves POST /health/check: an optional body lists providers to
// probe live; an empty/absent body probes every known provider.
// @Summary 主动健康探测
// @Tags 健康
// @Accept json
// @Produce json
// @Param request body api.HealthCheckRequest false "要探测的 provider 列表"
// @Success 200 {object} Response "探测结果"
// @Router /health/check [post]
func (h *ProviderHealthHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req api.HealthCheckRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}

	providers := req.Providers
	if len(providers) == 0 {
		for _, s := range h.snapshots.Snapshots() {
			providers = append(providers, s.Provider)
		}
	}

	results := make([]api.HealthCheckResult, 0, len(providers))
	for _, p := range providers {
		result := api.HealthCheckResult{Provider: p}
		if err := h.prober.Probe(r.Context(), p); err != nil {
			result.Error = err.Error()
		} else {
			result.Healthy = true
		}
		results = append(results, result)
	}

	WriteSuccess(w, api.HealthCheckResponse{Results: results})
}

func toDetail(s alerting.ProviderSnapshot) api.ProviderHealthDetail {
	circuit := "closed"
	if s.CircuitOpen {
		circuit = "open"
	}
	return api.ProviderHealthDetail{
		Provider:            s.Provider,
		Status:              s.Health,
		SuccessRate:         s.SuccessRate,
		AvgResponseTime:     s.AvgLatency.String(),
		ConsecutiveFailures: s.ConsecutiveFailures,
		Circuit:             circuit,
	}
}

// extractProviderName reads the :name path parameter (Go 1.22+ PathValue
// first, falling back to manual path parsing), the same convention
// extractAdminProviderName uses for the admin API.
func extractProviderName(r *http.Request) string {
	if name := r.PathValue("name"); name != "" {
		return name
	}
	const prefix = "/health/provider/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		return ""
	}
	return strings.TrimPrefix(r.URL.Path, prefix)
}
