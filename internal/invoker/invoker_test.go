package invoker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/internal/circuitbreaker"
	"github.com/dreamscapes/gateway/internal/extractor"
	"github.com/dreamscapes/gateway/internal/obsmetrics"
	"github.com/dreamscapes/gateway/internal/ratelimiter"
	"github.com/dreamscapes/gateway/types"
)

type fakeProvider struct {
	name       string
	raw        []byte
	httpStatus int
	err        error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Invoke(_ context.Context, _ string, _ types.GenerationParams, _ time.Time) ([]byte, int, error) {
	return f.raw, f.httpStatus, f.err
}

func newTestInvoker(t *testing.T) *Invoker {
	t.Helper()
	metrics, err := obsmetrics.New(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(metrics.Close)

	return New(
		ratelimiter.NewManager(),
		func(string) ratelimiter.Config { return ratelimiter.Config{RPM: 6000, Concurrent: 100, AcquireTimeout: time.Second} },
		circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), zap.NewNop()),
		extractor.New(zap.NewNop()),
		metrics,
		zap.NewNop(),
	)
}

const validCandidateJSON = `{"id":"d1","title":"A short dream","description":"A sufficiently long description of the dream.","scenes":[{"id":"s1","description":"opening scene","objects":["a door"]}]}`

func TestInvoke_SuccessReturnsCandidate(t *testing.T) {
	inv := newTestInvoker(t)
	p := &fakeProvider{name: "openai", raw: []byte(validCandidateJSON), httpStatus: 200}

	attempt := inv.Invoke(context.Background(), p, "a dream prompt", types.GenerationParams{}, time.Now().Add(time.Second))
	require.Nil(t, attempt.Err)
	assert.Equal(t, "d1", attempt.Candidate["id"])
}

func TestInvoke_DispatchErrorClassifiedAndRecorded(t *testing.T) {
	inv := newTestInvoker(t)
	p := &fakeProvider{name: "openai", err: errors.New("connection refused"), httpStatus: 0}

	attempt := inv.Invoke(context.Background(), p, "prompt", types.GenerationParams{}, time.Now().Add(time.Second))
	require.NotNil(t, attempt.Err)
	assert.Equal(t, types.ErrNetworkError, attempt.Err.Kind)
}

func TestInvoke_CircuitOpenShortCircuitsDispatch(t *testing.T) {
	inv := newTestInvoker(t)
	breaker := inv.breakers.Get("openai")
	for i := 0; i < 10; i++ {
		breaker.RecordFailure()
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	p := &fakeProvider{name: "openai", raw: []byte(validCandidateJSON), httpStatus: 200}
	attempt := inv.Invoke(context.Background(), p, "prompt", types.GenerationParams{}, time.Now().Add(time.Second))
	require.NotNil(t, attempt.Err)
	assert.Equal(t, types.ErrCircuitBreakerOpen, attempt.Err.Kind)
}

func TestInvoke_AdmissionCheckedBeforeCircuitGate(t *testing.T) {
	metrics, err := obsmetrics.New(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(metrics.Close)

	limiters := ratelimiter.NewManager()
	cfg := ratelimiter.Config{RPM: 6000, Concurrent: 1, AcquireTimeout: 20 * time.Millisecond}
	limiterCfg := func(string) ratelimiter.Config { return cfg }

	// Saturate the single concurrency slot before Invoke ever runs, so any
	// Acquire inside Invoke is guaranteed to time out.
	release, err := limiters.GetOrCreate("openai", cfg).Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	inv := New(
		limiters,
		limiterCfg,
		circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), zap.NewNop()),
		extractor.New(zap.NewNop()),
		metrics,
		zap.NewNop(),
	)

	breaker := inv.breakers.Get("openai")
	for i := 0; i < 10; i++ {
		breaker.RecordFailure()
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	p := &fakeProvider{name: "openai", raw: []byte(validCandidateJSON), httpStatus: 200}
	attempt := inv.Invoke(context.Background(), p, "prompt", types.GenerationParams{}, time.Now().Add(time.Second))
	require.NotNil(t, attempt.Err)
	// Rate-limit exceeded, not circuit-breaker-open: admission is checked
	// first even though the breaker is also open.
	assert.Equal(t, types.ErrRateLimitExceeded, attempt.Err.Kind)
}

func TestInvoke_UnparsableResponseClassifiedAsInvalid(t *testing.T) {
	inv := newTestInvoker(t)
	p := &fakeProvider{name: "openai", raw: []byte("not json at all, just prose with no structure"), httpStatus: 200}

	attempt := inv.Invoke(context.Background(), p, "prompt", types.GenerationParams{}, time.Now().Add(time.Second))
	require.NotNil(t, attempt.Err)
}
