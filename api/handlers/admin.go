package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/api"
	"github.com/dreamscapes/gateway/types"
)

// =============================================================================
// ⚙️ 管理接口 Handler
// =============================================================================

// descriptorMutator matches internal/manager.Manager's administrative calls
// without importing that package into api/handlers.
type descriptorMutator interface {
	MutateDescriptor(provider string, mutate func(*types.ProviderDescriptor)) bool
	Descriptor(provider string) (types.ProviderDescriptor, bool)
}

// AdminHandler serves the provider-administration surface. Every route this
// handler exposes is expected to be mounted behind JWTAuth — it performs no
// authentication of its own.
type AdminHandler struct {
	manager descriptorMutator
	logger  *zap.Logger
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(m descriptorMutator, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{manager: m, logger: logger}
}

// HandleGetProvider serves GET /admin/providers/:name.
// @Summary 查看 Provider 配置
// @Tags 管理
// @Produce json
// @Param name path string true "Provider 名称"
// @Success 200 {object} Response "Provider 配置"
// @Failure 404 {object} Response "未知 provider"
// @Security BearerAuth
// @Router /admin/providers/{name} [get]
func (h *AdminHandler) HandleGetProvider(w http.ResponseWriter, r *http.Request) {
	name := extractAdminProviderName(r)
	if name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidationFailed, "provider name is required", h.logger)
		return
	}

	descriptor, ok := h.manager.Descriptor(name)
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrModelUnavailable, "unknown provider: "+name, h.logger)
		return
	}

	WriteSuccess(w, toDescriptorView(descriptor))
}

// HandleMutateProvider serves PATCH /admin/providers/:name: a partial update
// of a provider's enabled/priority/limits fields. Unset fields are left
// untouched.
// @Summary 修改 Provider 配置
// @Tags 管理
// @Accept json
// @Produce json
// @Param name path string true "Provider 名称"
// @Param request body api.MutateProviderRequest true "要修改的字段"
// @Success 200 {object} Response "修改后的 Provider 配置"
// @Failure 400 {object} Response "无效请求"
// @Failure 404 {object} Response "未知 provider"
// @Security BearerAuth
// @Router /admin/providers/{name} [patch]
func (h *AdminHandler) HandleMutateProvider(w http.ResponseWriter, r *http.Request) {
	name := extractAdminProviderName(r)
	if name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidationFailed, "provider name is required", h.logger)
		return
	}

	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.MutateProviderRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := validateMutateRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	applied := h.manager.MutateDescriptor(name, func(d *types.ProviderDescriptor) {
		if req.Enabled != nil {
			d.Enabled = *req.Enabled
		}
		if req.Priority != nil {
			d.Priority = *req.Priority
		}
		if req.Limits != nil {
			if req.Limits.MaxTokens != nil {
				d.Limits.MaxTokens = *req.Limits.MaxTokens
			}
			if req.Limits.RPM != nil {
				d.Limits.RPM = *req.Limits.RPM
			}
			if req.Limits.Concurrent != nil {
				d.Limits.Concurrent = *req.Limits.Concurrent
			}
		}
	})
	if !applied {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrModelUnavailable, "unknown provider: "+name, h.logger)
		return
	}

	descriptor, _ := h.manager.Descriptor(name)
	h.logger.Info("provider descriptor mutated",
		zap.String("provider", name),
		zap.Bool("enabled", descriptor.Enabled),
		zap.Int("priority", descriptor.Priority),
	)
	WriteSuccess(w, toDescriptorView(descriptor))
}

func validateMutateRequest(req *api.MutateProviderRequest) *types.Error {
	if req.Limits != nil {
		if req.Limits.MaxTokens != nil && *req.Limits.MaxTokens <= 0 {
			return types.NewError(types.ErrValidationFailed, "max_tokens must be positive").
				WithHTTPStatus(http.StatusBadRequest)
		}
		if req.Limits.RPM != nil && *req.Limits.RPM <= 0 {
			return types.NewError(types.ErrValidationFailed, "rpm must be positive").
				WithHTTPStatus(http.StatusBadRequest)
		}
		if req.Limits.Concurrent != nil && *req.Limits.Concurrent <= 0 {
			return types.NewError(types.ErrValidationFailed, "concurrent must be positive").
				WithHTTPStatus(http.StatusBadRequest)
		}
	}
	return nil
}

func toDescriptorView(d types.ProviderDescriptor) api.ProviderDescriptorView {
	return api.ProviderDescriptorView{
		Name:               d.Name,
		Priority:           d.Priority,
		Enabled:            d.Enabled,
		MaxTokens:          d.Limits.MaxTokens,
		RPM:                d.Limits.RPM,
		Concurrent:         d.Limits.Concurrent,
		Streaming:          d.Capabilities.Streaming,
		JSONMode:           d.Capabilities.JSONMode,
		OptimalTemperature: d.OptimalTemperature,
	}
}

// extractAdminProviderName reads the :name path parameter, matching
// extractProviderName's PathValue-first convention.
func extractAdminProviderName(r *http.Request) string {
	if name := r.PathValue("name"); name != "" {
		return name
	}
	const prefix = "/admin/providers/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		return ""
	}
	return strings.TrimPrefix(r.URL.Path, prefix)
}
