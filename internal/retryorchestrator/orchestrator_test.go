package retryorchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/types"
)

func TestDecide_RateLimitRetriesSameProviderWithBackoff(t *testing.T) {
	o := New(zap.NewNop())
	d := o.Decide(types.ErrRateLimitExceeded, 1, "", "", "prompt", types.GenerationParams{}, 0)
	assert.Equal(t, ActionRetrySameProvider, d.Action)
	assert.GreaterOrEqual(t, d.Delay, 900*time.Millisecond)
}

func TestDecide_RateLimitExhaustedMovesOn(t *testing.T) {
	o := New(zap.NewNop())
	d := o.Decide(types.ErrRateLimitExceeded, 6, "", "", "prompt", types.GenerationParams{}, 0)
	assert.Equal(t, ActionMoveToNextProvider, d.Action)
}

func TestDecide_ValidationFailedRepairsWithLoweredTemperature(t *testing.T) {
	o := New(zap.NewNop())
	d := o.Decide(types.ErrValidationFailed, 1, "title too short", "dreamResponse", "a dragon", types.GenerationParams{Temperature: 0.9, MaxTokens: 100}, 200)
	assert.Equal(t, ActionRepairAndRetry, d.Action)
	assert.NotNil(t, d.ModifiedParams)
	assert.InDelta(t, 0.7, d.ModifiedParams.Temperature, 0.001)
	assert.Equal(t, 150, d.ModifiedParams.MaxTokens)
	assert.Contains(t, d.ModifiedPrompt, "title too short")
	assert.Contains(t, d.ModifiedPrompt, "dreamResponse")
}

func TestDecide_TemperatureFloorAtPointTwo(t *testing.T) {
	o := New(zap.NewNop())
	d := o.Decide(types.ErrValidationFailed, 1, "x", "y", "p", types.GenerationParams{Temperature: 0.25}, 0)
	assert.InDelta(t, 0.2, d.ModifiedParams.Temperature, 0.001)
}

func TestDecide_MaxTokensCeilingRespectsProviderLimit(t *testing.T) {
	o := New(zap.NewNop())
	d := o.Decide(types.ErrValidationFailed, 1, "x", "y", "p", types.GenerationParams{MaxTokens: 1000}, 1200)
	assert.Equal(t, 1200, d.ModifiedParams.MaxTokens)
}

func TestDecide_ParsingErrorRepairsThenMoves(t *testing.T) {
	o := New(zap.NewNop())
	d1 := o.Decide(types.ErrParsingError, 1, "x", "y", "p", types.GenerationParams{}, 0)
	assert.Equal(t, ActionRepairAndRetry, d1.Action)

	d3 := o.Decide(types.ErrParsingError, 3, "x", "y", "p", types.GenerationParams{}, 0)
	assert.Equal(t, ActionMoveToNextProvider, d3.Action)
}

func TestDecide_ImmediateProviderSwitchKinds(t *testing.T) {
	o := New(zap.NewNop())
	for _, kind := range []types.ErrorKind{
		types.ErrAuthentication, types.ErrQuotaExceeded,
		types.ErrCircuitBreakerOpen, types.ErrContentFilter,
	} {
		d := o.Decide(kind, 1, "", "", "", types.GenerationParams{}, 0)
		assert.Equal(t, ActionMoveToNextProvider, d.Action, string(kind))
	}
}

func TestDecide_ConfigurationErrorGivesUp(t *testing.T) {
	o := New(zap.NewNop())
	d := o.Decide(types.ErrConfigurationError, 1, "", "", "", types.GenerationParams{}, 0)
	assert.Equal(t, ActionGiveUp, d.Action)
}

func TestDecide_UnmappedRetryableKindUsesDefaultRule(t *testing.T) {
	o := New(zap.NewNop())
	d := o.Decide(types.ErrStreamingError, 1, "", "", "", types.GenerationParams{}, 0)
	assert.Equal(t, ActionRetrySameProvider, d.Action)
}

func TestDecide_UnmappedNonRetryableKindMovesOn(t *testing.T) {
	o := New(zap.NewNop())
	d := o.Decide(types.ErrModelUnavailable, 1, "", "", "", types.GenerationParams{}, 0)
	assert.Equal(t, ActionMoveToNextProvider, d.Action)
}
