// Package retryorchestrator drives the per-(provider,request) multi-attempt
// decision: retry the same provider, repair and retry, move to the next
// provider, or give up.
package retryorchestrator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/types"
)

// Action is one of the four terminal decisions for a single failed attempt.
type Action string

const (
	ActionRetrySameProvider  Action = "retrySameProvider"
	ActionRepairAndRetry     Action = "repairAndRetry"
	ActionMoveToNextProvider Action = "moveToNextProvider"
	ActionGiveUp             Action = "giveUp"
)

// Decision is the orchestrator's output for one failed attempt.
type Decision struct {
	Action         Action
	Delay          time.Duration
	ModifiedPrompt string
	ModifiedParams *types.GenerationParams
}

// rule is one row of the decision table.
type rule struct {
	primary     Action
	maxAttempts int
	backoffBase time.Duration
	multiplier  float64
	maxDelay    time.Duration
	onExhausted Action
}

var rules = map[types.ErrorKind]rule{
	types.ErrRateLimitExceeded: {ActionRetrySameProvider, 5, time.Second, 3.0, 60 * time.Second, ActionMoveToNextProvider},
	types.ErrTimeout:           {ActionRetrySameProvider, 3, time.Second, 1.5, 30 * time.Second, ActionMoveToNextProvider},
	types.ErrNetworkError:      {ActionRetrySameProvider, 4, time.Second, 1.8, 30 * time.Second, ActionMoveToNextProvider},
	types.ErrServerError:       {ActionRetrySameProvider, 3, time.Second, 2.0, 30 * time.Second, ActionMoveToNextProvider},
	types.ErrValidationFailed:  {ActionRepairAndRetry, 3, 0, 0, 0, ActionMoveToNextProvider},
	types.ErrParsingError:      {ActionRepairAndRetry, 2, 0, 0, 0, ActionMoveToNextProvider},
	types.ErrAuthentication:    {ActionMoveToNextProvider, 0, 0, 0, 0, ActionMoveToNextProvider},
	types.ErrQuotaExceeded:     {ActionMoveToNextProvider, 0, 0, 0, 0, ActionMoveToNextProvider},
	types.ErrCircuitBreakerOpen: {ActionMoveToNextProvider, 0, 0, 0, 0, ActionMoveToNextProvider},
	types.ErrContentFilter:      {ActionMoveToNextProvider, 0, 0, 0, 0, ActionMoveToNextProvider},
	types.ErrConfigurationError: {ActionGiveUp, 0, 0, 0, 0, ActionGiveUp},
}

// defaultRule covers taxonomy kinds the table above doesn't name explicitly:
// retryable kinds (per types.kindFacts) get two bounded same-provider
// retries; everything else moves to the next provider immediately.
func defaultRule(kind types.ErrorKind) rule {
	dummy := types.NewError(kind, "")
	if dummy.Retryable {
		return rule{ActionRetrySameProvider, 2, time.Second, 1.5, 30 * time.Second, ActionMoveToNextProvider}
	}
	return rule{ActionMoveToNextProvider, 0, 0, 0, 0, ActionMoveToNextProvider}
}

// Orchestrator is stateless: callers track attempt counts per
// (provider, request) pair themselves and pass them into Decide.
type Orchestrator struct {
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{logger: logger}
}

// Decide returns the next action for a failed attempt. attempt is the
// 1-indexed number of the attempt that just failed with kind; candidate is
// the prompt/params that produced it, used to build a corrective prompt on
// repairAndRetry.
func (o *Orchestrator) Decide(kind types.ErrorKind, attempt int, errSummary string, schemaDescription string, prompt string, params types.GenerationParams, providerMaxTokens int) Decision {
	r, ok := rules[kind]
	if !ok {
		r = defaultRule(kind)
	}

	if r.maxAttempts == 0 || attempt > r.maxAttempts {
		action := r.onExhausted
		if r.maxAttempts == 0 {
			action = r.primary
		}
		o.logger.Debug("retry orchestrator decision",
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.String("action", string(action)))
		return Decision{Action: action}
	}

	switch r.primary {
	case ActionRetrySameProvider:
		delay := o.backoff(r, attempt)
		return Decision{Action: ActionRetrySameProvider, Delay: delay}

	case ActionRepairAndRetry:
		newParams := params
		newParams.Temperature = math.Max(0.2, params.Temperature-0.2)
		newParams.MaxTokens = int(math.Ceil(float64(params.MaxTokens) * 1.5))
		if providerMaxTokens > 0 && newParams.MaxTokens > providerMaxTokens {
			newParams.MaxTokens = providerMaxTokens
		}
		return Decision{
			Action:         ActionRepairAndRetry,
			ModifiedPrompt: correctivePrompt(prompt, errSummary, schemaDescription),
			ModifiedParams: &newParams,
		}

	default:
		return Decision{Action: r.primary}
	}
}

// backoff computes the jittered exponential delay for attempt (1-indexed),
// capped at r.maxDelay and jittered by up to ±10%.
func (o *Orchestrator) backoff(r rule, attempt int) time.Duration {
	delay := float64(r.backoffBase) * math.Pow(r.multiplier, float64(attempt-1))
	if delay > float64(r.maxDelay) {
		delay = float64(r.maxDelay)
	}
	jitter := delay * 0.10
	delay += (rand.Float64()*2 - 1) * jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// correctivePrompt synthesizes the repair-and-retry prompt: the original
// prompt, the specific validation error summary, and the target schema
// description.
func correctivePrompt(original, errSummary, schemaDescription string) string {
	return fmt.Sprintf(
		"%s\n\nYour previous response failed validation: %s\nIt must conform to this schema: %s\nReturn corrected content only.",
		original, errSummary, schemaDescription,
	)
}
