// Package invoker implements ProviderInvoker: the single-attempt pipeline
// of admission, circuit gate, dispatch, extraction, and recording for one
// provider. It never retries — that decision belongs one layer up, in
// internal/retryorchestrator and internal/manager.
package invoker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/internal/circuitbreaker"
	"github.com/dreamscapes/gateway/internal/errortaxonomy"
	"github.com/dreamscapes/gateway/internal/extractor"
	"github.com/dreamscapes/gateway/internal/obsmetrics"
	"github.com/dreamscapes/gateway/internal/ratelimiter"
	"github.com/dreamscapes/gateway/providers"
	"github.com/dreamscapes/gateway/types"
)

// Attempt is the fully-assembled outcome of one Invoke call: either a
// candidate object ready for ValidationPipeline, or a classified error.
type Attempt struct {
	Provider        string
	Candidate       map[string]any
	ExtractionNotes []string
	Latency         time.Duration
	Err             *types.Error
}

// Invoker drives one provider through admission, circuit gating, dispatch,
// and extraction, recording the outcome into MetricsCollector either way.
type Invoker struct {
	limiters   *ratelimiter.Manager
	limiterCfg func(provider string) ratelimiter.Config
	breakers   *circuitbreaker.Manager
	extractor  *extractor.Extractor
	metrics    *obsmetrics.Collector
	logger     *zap.Logger
}

// New constructs an Invoker. limiterCfg supplies the per-provider admission
// config the first time a provider is seen (ratelimiter.Manager builds each
// Limiter lazily and keeps it thereafter); pass a func returning
// ratelimiter.DefaultConfig() if every provider shares one admission policy.
// metrics receives every outcome regardless of success.
func New(limiters *ratelimiter.Manager, limiterCfg func(provider string) ratelimiter.Config, breakers *circuitbreaker.Manager, ex *extractor.Extractor, metrics *obsmetrics.Collector, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiterCfg == nil {
		limiterCfg = func(string) ratelimiter.Config { return ratelimiter.DefaultConfig() }
	}
	return &Invoker{
		limiters:   limiters,
		limiterCfg: limiterCfg,
		breakers:   breakers,
		extractor:  ex,
		metrics:    metrics,
		logger:     logger,
	}
}

// Invoke runs one admission→dispatch→extraction→record cycle against
// provider for prompt, bounded by deadline. It never retries: a failure at
// any stage is classified and returned for the caller's RetryOrchestrator to
// act on.
func (inv *Invoker) Invoke(ctx context.Context, provider providers.Provider, prompt string, params types.GenerationParams, deadline time.Time) Attempt {
	name := provider.Name()
	start := time.Now()

	breaker := inv.breakers.Get(name)

	limiter := inv.limiters.GetOrCreate(name, inv.limiterCfg(name))
	release, err := limiter.Acquire(ctx)
	if err != nil {
		breaker.RecordFailure()
		return inv.record(name, start, nil, nil, errortaxonomy.Classify(err, 0).WithProvider(name))
	}
	defer release()

	if err := breaker.Allow(); err != nil {
		return inv.record(name, start, nil, nil, errortaxonomy.Classify(err, 0).WithProvider(name))
	}

	done := inv.metrics.BeginRequest(name)
	defer done()

	raw, httpStatus, dispatchErr := provider.Invoke(ctx, prompt, params, deadline)
	if dispatchErr != nil {
		breaker.RecordFailure()
		return inv.record(name, start, nil, nil, errortaxonomy.Classify(dispatchErr, httpStatus).WithProvider(name))
	}

	result, extractErr := inv.extractor.Extract(raw)
	if extractErr != nil {
		breaker.RecordFailure()
		var classified *types.Error
		if e, ok := extractErr.(*types.Error); ok {
			classified = e.WithProvider(name)
		} else {
			classified = errortaxonomy.Classify(extractErr, httpStatus).WithProvider(name)
		}
		return inv.record(name, start, nil, nil, classified)
	}

	breaker.RecordSuccess()
	return inv.record(name, start, result.Candidate, result.ExtractionNotes, nil)
}

func (inv *Invoker) record(provider string, start time.Time, candidate map[string]any, notes []string, classified *types.Error) Attempt {
	latency := time.Since(start)
	ev := obsmetrics.Event{
		Provider: provider,
		Success:  classified == nil,
		Latency:  latency,
	}
	if classified != nil {
		ev.ErrorKind = string(classified.Kind)
	}
	inv.metrics.Record(provider, ev)

	return Attempt{
		Provider:        provider,
		Candidate:       candidate,
		ExtractionNotes: notes,
		Latency:         latency,
		Err:             classified,
	}
}
