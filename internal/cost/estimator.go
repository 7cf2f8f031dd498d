// Package cost estimates the USD price of one generation attempt from a
// tiktoken-go token count, purely for dashboard reporting — it never
// influences provider selection. Adapted from the teacher's
// llm/observability/cost.go (CostCalculator's per-key price table, scaled
// per 1K tokens) and llm/tokenizer/tiktoken.go (lazy per-encoding
// tiktoken.Tiktoken initialization), narrowed to what this gateway actually
// has on hand: a provider name and the rendered prompt/candidate text, with
// no per-model granularity since ProviderDescriptor carries no model field.
package cost

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/dreamscapes/gateway/types"
)

// defaultEncoding is used for every provider: none of this gateway's
// adapters exposes which exact model variant served a request, so token
// counts are an approximation shared across providers rather than an
// encoding picked per model.
const defaultEncoding = "cl100k_base"

// Pricing is the USD price per 1000 tokens for one provider, blending
// prompt and completion tokens at a single rate since the gateway's
// candidate content has no separate prompt/completion token accounting at
// the wire level.
type Pricing struct {
	PerThousandTokens float64
}

// DefaultPricing mirrors the representative per-provider rates from the
// teacher's CostCalculator.loadDefaultPrices, collapsed from its per-model
// table to one blended rate per provider name.
func DefaultPricing() map[string]Pricing {
	return map[string]Pricing{
		"claude": {PerThousandTokens: 0.009},
		"gemini": {PerThousandTokens: 0.003},
		"openai": {PerThousandTokens: 0.01},
		"qwen":   {PerThousandTokens: 0.0014},
		"glm":    {PerThousandTokens: 0.007},
		"ernie":  {PerThousandTokens: 0.0017},
	}
}

// Estimator counts tokens via tiktoken-go and converts them to a cost
// estimate using a per-provider Pricing table.
type Estimator struct {
	pricingMu sync.RWMutex
	pricing   map[string]Pricing
	fallback  Pricing

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error

	estimate *types.EstimateTokenizer
}

// NewEstimator constructs an Estimator. A nil pricing map uses
// DefaultPricing; providers absent from pricing fall back to fallback.
func NewEstimator(pricing map[string]Pricing, fallback Pricing) *Estimator {
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &Estimator{pricing: pricing, fallback: fallback, estimate: types.NewEstimateTokenizer()}
}

// SetPricing replaces the price for provider, matching the teacher's
// CostCalculator.SetPrice escape hatch for runtime price updates.
func (e *Estimator) SetPricing(provider string, p Pricing) {
	e.pricingMu.Lock()
	defer e.pricingMu.Unlock()
	e.pricing[provider] = p
}

func (e *Estimator) priceFor(provider string) Pricing {
	e.pricingMu.RLock()
	defer e.pricingMu.RUnlock()
	if p, ok := e.pricing[provider]; ok {
		return p
	}
	return e.fallback
}

// encoding lazily initializes the shared tiktoken encoding, same pattern as
// TiktokenTokenizer.init: built once, reused for every Estimate call.
func (e *Estimator) encoding() (*tiktoken.Tiktoken, error) {
	e.encOnce.Do(func() {
		e.enc, e.encErr = tiktoken.GetEncoding(defaultEncoding)
	})
	return e.enc, e.encErr
}

// countTokens returns the tiktoken token count for text, falling back to
// the dependency-free heuristic in types.EstimateTokenizer if the tiktoken
// encoding failed to load (e.g. no network access to fetch its BPE ranks).
func (e *Estimator) countTokens(text string) int {
	if text == "" {
		return 0
	}
	enc, err := e.encoding()
	if err != nil {
		return e.estimate.CountTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// Estimate counts prompt and completion tokens and prices the total against
// provider's configured rate.
func (e *Estimator) Estimate(provider, prompt, completion string) types.TokenUsage {
	promptTokens := e.countTokens(prompt)
	completionTokens := e.countTokens(completion)
	total := promptTokens + completionTokens

	price := e.priceFor(provider)
	cost := float64(total) / 1000 * price.PerThousandTokens

	return types.TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      total,
		Cost:             cost,
	}
}
