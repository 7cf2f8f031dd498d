// Package manager implements ProviderManager: the top-level Generate
// coordinator that ranks candidate providers, drives each through
// ProviderInvoker and RetryOrchestrator, validates and repairs the result,
// and falls back to a locally synthesized artifact when every candidate is
// exhausted or the request's timeout budget runs out.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/internal/alerting"
	"github.com/dreamscapes/gateway/internal/circuitbreaker"
	"github.com/dreamscapes/gateway/internal/cost"
	"github.com/dreamscapes/gateway/internal/fallback"
	"github.com/dreamscapes/gateway/internal/healthmonitor"
	"github.com/dreamscapes/gateway/internal/idempotency"
	"github.com/dreamscapes/gateway/internal/invoker"
	"github.com/dreamscapes/gateway/internal/obsmetrics"
	"github.com/dreamscapes/gateway/internal/retryorchestrator"
	"github.com/dreamscapes/gateway/internal/validation"
	"github.com/dreamscapes/gateway/providers"
	"github.com/dreamscapes/gateway/types"
)

// ScoreWeights are the composite-score coefficients (w_p, w_s, w_l) used to
// rank candidate providers for one Generate call:
//
//	score = priority·Priority + recentSuccessRate·SuccessRate − normalizedLatency·Latency − circuitPenalty
type ScoreWeights struct {
	Priority    float64
	SuccessRate float64
	Latency     float64
}

// DefaultScoreWeights returns the gateway's default scoring coefficients.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Priority: 1.0, SuccessRate: 10.0, Latency: 5.0}
}

// latencyNormalizationCeiling bounds the latency term: any average latency
// at or above this normalizes to 1.0, so one very slow provider can't blow
// up the score with an unbounded penalty.
const latencyNormalizationCeiling = 5 * time.Second

// halfOpenCircuitPenalty is subtracted from a half-open provider's score so
// closed providers are preferred when any healthy alternative exists, while
// still letting the half-open probe happen when it's the best (or only)
// candidate.
const halfOpenCircuitPenalty = 0.5

// optimisticPriorSuccessRate is used in place of a measured success rate for
// a provider with no recorded samples yet, so a brand-new provider isn't
// scored as if it had a 0% success rate.
const optimisticPriorSuccessRate = 1.0

type registeredProvider struct {
	provider   providers.Provider
	descriptor types.ProviderDescriptor
}

// Manager is the ProviderManager.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]*registeredProvider

	weights ScoreWeights

	invoker      *invoker.Invoker
	orchestrator *retryorchestrator.Orchestrator
	validator    *validation.Pipeline
	synthesizer  *fallback.Synthesizer
	breakers     *circuitbreaker.Manager
	metrics      *obsmetrics.Collector
	alerts       *alerting.Manager
	health       healthProvider
	idem         *idempotency.Guard
	costs        *cost.Estimator
	logger       *zap.Logger
}

// healthProvider is the narrow slice of healthmonitor.Monitor's API Manager
// needs: the last-derived health value, by provider name.
type healthProvider interface {
	Health(provider string) healthmonitor.Health
}

// Deps bundles the already-constructed collaborators Manager composes. All
// fields are required except Alerts, Health, and CostEstimator, which may
// be nil.
type Deps struct {
	Invoker       *invoker.Invoker
	Orchestrator  *retryorchestrator.Orchestrator
	Validator     *validation.Pipeline
	Synthesizer   *fallback.Synthesizer
	Breakers      *circuitbreaker.Manager
	Metrics       *obsmetrics.Collector
	Alerts        *alerting.Manager
	Health        healthProvider
	CostEstimator *cost.Estimator
	Weights       ScoreWeights
	Logger        *zap.Logger
}

// New constructs a Manager from its collaborators. Call Register for each
// known provider afterward.
func New(deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	weights := deps.Weights
	if weights == (ScoreWeights{}) {
		weights = DefaultScoreWeights()
	}
	costs := deps.CostEstimator
	if costs == nil {
		costs = cost.NewEstimator(nil, cost.Pricing{PerThousandTokens: 0.005})
	}
	return &Manager{
		providers:    make(map[string]*registeredProvider),
		weights:      weights,
		invoker:      deps.Invoker,
		orchestrator: deps.Orchestrator,
		validator:    deps.Validator,
		synthesizer:  deps.Synthesizer,
		breakers:     deps.Breakers,
		metrics:      deps.Metrics,
		alerts:       deps.Alerts,
		health:       deps.Health,
		idem:         idempotency.New(),
		costs:        costs,
		logger:       logger,
	}
}

// Register adds or replaces a provider and its descriptor. Safe to call
// after Generate calls are already in flight.
func (m *Manager) Register(p providers.Provider, descriptor types.ProviderDescriptor) {
	descriptor.Name = p.Name()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Name()] = &registeredProvider{provider: p, descriptor: descriptor}
}

// SetHealth wires HealthMonitor in once it has been constructed. Health
// derivation depends on a MetricsSource built from the same Collector and
// circuitbreaker.Manager passed to Deps, which is independent of Manager
// itself, but HealthMonitor's Prober is Manager.Probe — so HealthMonitor
// can only be built after Manager, and this closes the cycle without Deps
// ever needing a forward reference to a not-yet-constructed collaborator.
func (m *Manager) SetHealth(h healthProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = h
}

// MutateDescriptor applies mutate to provider's descriptor under lock — the
// administrative call for changing enabled/priority/limits at runtime.
// Reports whether the provider was found.
func (m *Manager) MutateDescriptor(provider string, mutate func(*types.ProviderDescriptor)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rp, ok := m.providers[provider]
	if !ok {
		return false
	}
	mutate(&rp.descriptor)
	return true
}

// Descriptor returns a copy of provider's current descriptor.
func (m *Manager) Descriptor(provider string) (types.ProviderDescriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rp, ok := m.providers[provider]
	if !ok {
		return types.ProviderDescriptor{}, false
	}
	return rp.descriptor, true
}

// Generate is ProviderManager's one primary operation: select an ordered
// candidate list, drive each through ProviderInvoker + RetryOrchestrator +
// ValidationPipeline until one produces a valid artifact, and fall back to
// EmergencyFallback when candidates are exhausted or the deadline passes.
func (m *Manager) Generate(ctx context.Context, req *types.Request) *types.ValidatedArtifact {
	if m.metrics != nil {
		var span trace.Span
		ctx, span = m.metrics.StartGenerateSpan(ctx, req.ID)
		defer span.End()
	}

	deadline := req.Deadline()
	candidates := m.rankedCandidates()

	if len(candidates) == 0 {
		m.logger.Warn("no eligible providers", zap.String("request_id", req.ID))
		return m.fallbackArtifact(req, "no_eligible_providers")
	}

	for _, rp := range candidates {
		if time.Now().After(deadline) {
			return m.fallbackArtifact(req, "timeout_budget_exhausted")
		}

		artifact, giveUp := m.runProvider(ctx, rp, req, deadline)
		if artifact != nil {
			m.logger.Info("operation success",
				zap.String("request_id", req.ID), zap.String("provider", rp.provider.Name()))
			m.annotateSpanSuccess(ctx, rp.provider.Name())
			return artifact
		}
		m.logger.Warn("operation failure, moving to next candidate",
			zap.String("request_id", req.ID), zap.String("provider", rp.provider.Name()),
			zap.Bool("gave_up", giveUp))
	}

	m.emitAllProvidersFailed(req, "all_candidates_exhausted")
	m.annotateSpanFallback(ctx)
	return m.fallbackArtifact(req, "all_candidates_exhausted")
}

// annotateSpanSuccess records the winning provider on the active Generate
// span, if tracing is active on ctx.
func (m *Manager) annotateSpanSuccess(ctx context.Context, provider string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("provider.selected", provider))
	span.SetStatus(codes.Ok, "")
}

// annotateSpanFallback marks the active Generate span as having exhausted
// every candidate and fallen back to the synthesized artifact.
func (m *Manager) annotateSpanFallback(ctx context.Context) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Bool("fallback", true))
	span.SetStatus(codes.Error, "all_candidates_exhausted")
}

// runProvider drives one (provider, request) pair through repeated attempts
// until RetryOrchestrator says moveToNextProvider or giveUp, the candidate
// validates, or the shared deadline passes. The second return value
// distinguishes an explicit giveUp (stop entirely) from moveToNextProvider
// (try the next candidate) only for logging; Generate treats both the same.
func (m *Manager) runProvider(ctx context.Context, rp *registeredProvider, req *types.Request, deadline time.Time) (*types.ValidatedArtifact, bool) {
	params := types.GenerationParams{
		Temperature: rp.descriptor.OptimalTemperature,
		MaxTokens:   rp.descriptor.Limits.MaxTokens,
		JSONMode:    rp.descriptor.Capabilities.JSONMode,
	}
	prompt := req.Prompt
	attempt := 0

	for {
		attempt++
		if time.Now().After(deadline) {
			return nil, true
		}

		result := m.dispatch(ctx, rp, req.ID, prompt, params, deadline)

		var kind types.ErrorKind
		var errSummary string
		var repairApplied bool
		var validCandidate map[string]any

		if result.Err == nil {
			report, repaired, didRepair := m.validator.ValidateAndRepair(result.Candidate)
			if report.Valid {
				validCandidate = repaired
				repairApplied = didRepair
			} else {
				kind = types.ErrValidationFailed
				errSummary = summarizeValidationErrors(report)
			}
		} else {
			kind = result.Err.Kind
			errSummary = result.Err.Message
		}

		if validCandidate != nil {
			return m.assembleArtifact(rp, req, validCandidate, result, repairApplied), false
		}

		decision := m.orchestrator.Decide(kind, attempt, errSummary, schemaDescription(), prompt, params, rp.descriptor.Limits.MaxTokens)
		switch decision.Action {
		case retryorchestrator.ActionRetrySameProvider:
			if !m.wait(ctx, decision.Delay, deadline) {
				return nil, true
			}
		case retryorchestrator.ActionRepairAndRetry:
			if decision.ModifiedPrompt != "" {
				prompt = decision.ModifiedPrompt
			}
			if decision.ModifiedParams != nil {
				params = *decision.ModifiedParams
			}
		case retryorchestrator.ActionMoveToNextProvider:
			return nil, false
		default: // ActionGiveUp
			return nil, true
		}
	}
}

// dispatch runs one provider invocation through the idempotency guard: two
// goroutines that land in runProvider's ActionRetrySameProvider branch for
// the same request, provider, and prepared (prompt, params) at the same
// time collapse onto a single Invoke call rather than racing the shared
// deadline with duplicate dispatches. Distinct attempts (a new prompt after
// repairAndRetry, a later provider) get distinct keys and dispatch normally.
func (m *Manager) dispatch(ctx context.Context, rp *registeredProvider, requestID, prompt string, params types.GenerationParams, deadline time.Time) invoker.Attempt {
	key := idempotency.Key(requestID, rp.provider.Name(), prompt, params.Temperature, params.MaxTokens, params.JSONMode)
	v, shared := m.idem.Do(key, func() any {
		return m.invoker.Invoke(ctx, rp.provider, prompt, params, deadline)
	})
	if shared {
		m.logger.Debug("collapsed concurrent identical dispatch",
			zap.String("request_id", requestID), zap.String("provider", rp.provider.Name()))
	}
	return v.(invoker.Attempt)
}

// wait blocks for delay, bounded by ctx cancellation and the request
// deadline, reporting whether it returned because the wait elapsed (true)
// rather than being cut short (false).
func (m *Manager) wait(ctx context.Context, delay time.Duration, deadline time.Time) bool {
	if delay <= 0 {
		return true
	}
	if remaining := time.Until(deadline); delay > remaining {
		delay = remaining
	}
	if delay <= 0 {
		return false
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func summarizeValidationErrors(report *validation.Report) string {
	if len(report.Errors) == 0 {
		return "validation failed"
	}
	first := report.Errors[0]
	msg := fmt.Sprintf("%s: %s", first.Field, first.Message)
	if len(report.Errors) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(report.Errors)-1)
	}
	return msg
}

func schemaDescription() string {
	data, err := types.DreamResponseSchema().ToJSON()
	if err != nil {
		return types.DreamResponseSchemaName
	}
	return string(data)
}

// completionText renders a validated candidate back to text for token
// counting. The candidate is a structured schema object, not provider-native
// prose, so this is an approximation of what the provider actually emitted
// — close enough for a cost estimate that only informs dashboard reporting.
func completionText(content map[string]any) string {
	data, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(data)
}

// assembleArtifact fills in the validation envelope's metadata and computes
// confidence = successProbability · repairPenalty · extractionPenalty, the
// resolution this gateway uses for the formula left ambiguous across
// reference implementations (documented in the grounding ledger).
func (m *Manager) assembleArtifact(rp *registeredProvider, req *types.Request, content map[string]any, result invoker.Attempt, repairApplied bool) *types.ValidatedArtifact {
	successRate, samples := m.metrics.SuccessRateWindow(rp.provider.Name())
	successProbability := successRate
	if samples == 0 {
		successProbability = 0.8
	}

	repairPenalty := 1.0
	if repairApplied {
		repairPenalty = 0.85
	}

	extractionPenalty := 1.0
	if len(result.ExtractionNotes) > 0 {
		extractionPenalty = 0.9
	}

	confidence := successProbability * repairPenalty * extractionPenalty
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	tokens := m.costs.Estimate(rp.provider.Name(), req.Prompt, completionText(content))
	m.metrics.RecordCost(rp.provider.Name(), tokens.Cost)

	content["source"] = rp.provider.Name()
	content["model"] = rp.provider.Name()
	content["quality"] = req.Quality
	content["processingTimeMs"] = result.Latency.Milliseconds()
	content["confidence"] = confidence
	content["cacheHit"] = false

	return &types.ValidatedArtifact{
		Content:          content,
		Tokens:           &tokens,
		Schema:           types.DreamResponseSchemaName,
		Source:           rp.provider.Name(),
		Confidence:       confidence,
		ProcessingTimeMs: result.Latency.Milliseconds(),
		RepairApplied:    repairApplied,
		CacheHit:         false,
	}
}

func (m *Manager) fallbackArtifact(req *types.Request, reason string) *types.ValidatedArtifact {
	m.logger.Warn("invoking emergency fallback",
		zap.String("request_id", req.ID), zap.String("reason", reason))
	artifact := m.synthesizer.Synthesize(req.Prompt)
	if m.metrics != nil {
		m.metrics.Record(types.EmergencyFallbackSource, obsmetrics.Event{
			Provider: types.EmergencyFallbackSource,
			Success:  true,
			Fallback: true,
		})
	}
	return artifact
}

func (m *Manager) emitAllProvidersFailed(req *types.Request, reason string) {
	m.logger.Error("all providers failed",
		zap.String("request_id", req.ID), zap.String("reason", reason))
	if m.alerts != nil {
		m.alerts.FireEvent(context.Background(), "gateway", "all_providers_failed", alerting.SeverityCritical,
			"all candidate providers exhausted: "+reason)
	}
}

// rankedCandidates returns enabled, non-open-circuit, non-unhealthy
// providers ordered by descending composite score, ties broken by priority
// then name. A provider the HealthMonitor has derived as unhealthy is
// excluded even if its circuit breaker hasn't yet tripped — consecutive
// failures below the breaker's threshold can still cross the health
// monitor's own stricter bar.
func (m *Manager) rankedCandidates() []*registeredProvider {
	m.mu.RLock()
	all := make([]*registeredProvider, 0, len(m.providers))
	for _, rp := range m.providers {
		all = append(all, rp)
	}
	m.mu.RUnlock()

	type scored struct {
		rp    *registeredProvider
		score float64
	}
	candidates := make([]scored, 0, len(all))
	for _, rp := range all {
		if !rp.descriptor.Enabled {
			continue
		}
		breaker := m.breakers.Get(rp.provider.Name())
		if breaker.State() == circuitbreaker.StateOpen {
			continue
		}
		if m.health != nil && m.health.Health(rp.provider.Name()) == healthmonitor.HealthUnhealthy {
			continue
		}
		candidates = append(candidates, scored{rp: rp, score: m.score(rp, breaker)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].rp.descriptor.Priority != candidates[j].rp.descriptor.Priority {
			return candidates[i].rp.descriptor.Priority > candidates[j].rp.descriptor.Priority
		}
		return candidates[i].rp.provider.Name() < candidates[j].rp.provider.Name()
	})

	out := make([]*registeredProvider, len(candidates))
	for i, c := range candidates {
		out[i] = c.rp
	}
	return out
}

func (m *Manager) score(rp *registeredProvider, breaker *circuitbreaker.Breaker) float64 {
	successRate, samples := m.metrics.SuccessRateWindow(rp.provider.Name())
	if samples == 0 {
		successRate = optimisticPriorSuccessRate
	}

	avgLatency := m.metrics.AvgLatency(rp.provider.Name())
	normalizedLatency := float64(avgLatency) / float64(latencyNormalizationCeiling)
	if normalizedLatency > 1 {
		normalizedLatency = 1
	}

	circuitPenalty := 0.0
	if breaker.State() == circuitbreaker.StateHalfOpen {
		circuitPenalty = halfOpenCircuitPenalty
	}

	return float64(rp.descriptor.Priority)*m.weights.Priority +
		successRate*m.weights.SuccessRate -
		normalizedLatency*m.weights.Latency -
		circuitPenalty
}

// Probe implements healthmonitor.Prober: a minimal dispatch used only to
// confirm a provider is reachable, bypassing RetryOrchestrator and
// ValidationPipeline entirely. The outcome is returned to the caller only:
// it is recorded neither in metrics nor in derived health.
func (m *Manager) Probe(ctx context.Context, provider string) error {
	m.mu.RLock()
	rp, ok := m.providers[provider]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}
	deadline := time.Now().Add(5 * time.Second)
	_, _, err := rp.provider.Invoke(ctx, "ping", types.GenerationParams{MaxTokens: 8}, deadline)
	return err
}

// metricsSource adapts obsmetrics.Collector and circuitbreaker.Manager
// together into healthmonitor.MetricsSource. CircuitOpenDuration is a
// circuitbreaker.Snapshot concern, not something obsmetrics.Collector
// tracks on its own, so HealthMonitor's single source has to come from
// here, where both are already in scope.
type metricsSource struct {
	metrics  *obsmetrics.Collector
	breakers *circuitbreaker.Manager
}

// NewMetricsSource builds the healthmonitor.MetricsSource HealthMonitor
// needs from the same Collector and circuitbreaker.Manager Manager itself
// holds.
func NewMetricsSource(metrics *obsmetrics.Collector, breakers *circuitbreaker.Manager) healthmonitor.MetricsSource {
	return metricsSource{metrics: metrics, breakers: breakers}
}

func (s metricsSource) SuccessRateWindow(provider string) (float64, int) {
	return s.metrics.SuccessRateWindow(provider)
}

func (s metricsSource) AvgLatency(provider string) time.Duration {
	return s.metrics.AvgLatency(provider)
}

func (s metricsSource) ConsecutiveFailures(provider string) int {
	return s.metrics.ConsecutiveFailures(provider)
}

func (s metricsSource) CircuitOpenDuration(provider string) time.Duration {
	snap := s.breakers.Get(provider).Snapshot()
	if snap.State != circuitbreaker.StateOpen {
		return 0
	}
	return time.Since(snap.OpenedAt)
}

// Snapshots builds the per-provider view AlertingSystem evaluates rules
// against, combining descriptor state, derived health, circuit state and
// rolling metrics.
func (m *Manager) Snapshots() []alerting.ProviderSnapshot {
	m.mu.RLock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	m.mu.RUnlock()

	out := make([]alerting.ProviderSnapshot, 0, len(names))
	for _, name := range names {
		successRate, samples := m.metrics.SuccessRateWindow(name)
		health := string(healthmonitor.HealthUnknown)
		if m.health != nil {
			health = string(m.health.Health(name))
		}
		out = append(out, alerting.ProviderSnapshot{
			Provider:            name,
			Health:              health,
			CircuitOpen:         m.breakers.Get(name).State() == circuitbreaker.StateOpen,
			SuccessRate:         successRate,
			Samples:             samples,
			AvgLatency:          m.metrics.AvgLatency(name),
			ConsecutiveFailures: m.metrics.ConsecutiveFailures(name),
		})
	}
	return out
}
