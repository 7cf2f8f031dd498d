package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/api"
	"github.com/dreamscapes/gateway/internal/ctxkeys"
	"github.com/dreamscapes/gateway/types"
)

// =============================================================================
// 🎨 生成接口 Handler
// =============================================================================

// minPromptLength/maxPromptLength bound GenerateRequest.Text: a request too
// short or long to plausibly produce a valid artifact is rejected up front
// rather than burning a provider attempt on it.
const (
	minPromptLength = 1
	maxPromptLength = 4000

	defaultTimeoutBudgetMs = 15000
	maxTimeoutBudgetMs     = 60000
)

// generator matches internal/manager.Manager.Generate without importing that
// package here, keeping api/handlers free of a dependency on the manager
// package's full collaborator graph.
type generator interface {
	Generate(ctx context.Context, req *types.Request) *types.ValidatedArtifact
}

// GenerateHandler serves POST /api/parse-dream: decode, validate, dispatch to
// the ProviderManager's Generate, and render the resulting artifact (genuine
// or emergency-fallback — both always validate against the declared schema).
type GenerateHandler struct {
	manager generator
	logger  *zap.Logger
}

// NewGenerateHandler constructs a GenerateHandler around m.
func NewGenerateHandler(m generator, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{manager: m, logger: logger}
}

// HandleGenerate processes a dream generation request.
// @Summary 生成梦境内容
// @Description 根据文本提示生成结构化梦境内容
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.GenerateRequest true "生成请求"
// @Success 200 {object} Response "生成结果（含 fallback 场景）"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "fallback 本身也失败"
// @Security ApiKeyAuth
// @Router /api/parse-dream [post]
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.GenerateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := validateGenerateRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	domainReq := toDomainRequest(&req)

	artifact := h.manager.Generate(r.Context(), domainReq)
	if artifact == nil {
		// Generate's contract guarantees a non-nil artifact even on total
		// failure (emergency fallback never itself returns nil); this only
		// triggers if that guarantee is ever broken upstream.
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrFallbackFailed,
			"generation produced no artifact", h.logger)
		return
	}

	traceID, _ := ctxkeys.TraceID(r.Context())
	h.logger.Info("generate request complete",
		zap.String("request_id", domainReq.ID),
		zap.String("trace_id", traceID),
		zap.String("source", artifact.Source),
		zap.Float64("confidence", artifact.Confidence),
		zap.Int64("processing_time_ms", artifact.ProcessingTimeMs),
	)

	WriteSuccess(w, renderArtifact(artifact))
}

func validateGenerateRequest(req *api.GenerateRequest) *types.Error {
	if len(req.Text) < minPromptLength || len(req.Text) > maxPromptLength {
		return types.NewError(types.ErrValidationFailed, "text must be between 1 and 4000 characters").
			WithHTTPStatus(http.StatusBadRequest)
	}
	if req.Options != nil && req.Options.TimeoutBudgetMs < 0 {
		return types.NewError(types.ErrValidationFailed, "timeout_budget_ms must be non-negative").
			WithHTTPStatus(http.StatusBadRequest)
	}
	return nil
}

func toDomainRequest(req *api.GenerateRequest) *types.Request {
	timeoutBudgetMs := defaultTimeoutBudgetMs
	schema := types.DreamResponseSchemaName
	if req.Options != nil {
		// An explicit 0 is a deliberate "skip every provider, go straight to
		// fallback" request, not "unset" — validateGenerateRequest already
		// rejected negative values, so >= 0 just means "the caller supplied
		// an options block" and its budget, zero included, is authoritative.
		if req.Options.TimeoutBudgetMs >= 0 {
			timeoutBudgetMs = req.Options.TimeoutBudgetMs
			if timeoutBudgetMs > maxTimeoutBudgetMs {
				timeoutBudgetMs = maxTimeoutBudgetMs
			}
		}
		if req.Options.Schema != "" {
			schema = req.Options.Schema
		}
	}

	return &types.Request{
		ID:              uuid.NewString(),
		Prompt:          req.Text,
		Style:           req.Style,
		Quality:         req.Quality,
		Schema:          schema,
		TimeoutBudgetMs: timeoutBudgetMs,
		CreatedAt:       time.Now(),
	}
}

// renderArtifact unwraps a types.ValidatedArtifact's Content map (which
// already carries source/model/quality/confidence/etc. per
// manager.assembleArtifact) into the plain response body callers see.
func renderArtifact(artifact *types.ValidatedArtifact) map[string]any {
	out := make(map[string]any, len(artifact.Content))
	for k, v := range artifact.Content {
		out[k] = v
	}
	return out
}
