// Package obsmetrics implements the realtime MetricsCollector: a
// non-blocking ingestion queue feeding a single aggregation goroutine that
// maintains per-provider counters, rolling latency percentiles, per-minute
// buckets and EWMA baselines, and exposes them both as a queryable report and
// as Prometheus/OpenTelemetry instruments.
package obsmetrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/internal/channel"
)

const instrumentationName = "github.com/dreamscapes/gateway/internal/obsmetrics"

// bucketRetention is how long per-minute buckets are kept before eviction.
const bucketRetention = 24 * time.Hour

// collapseAfter is the age past which a minute bucket is considered closed
// and no longer accepts new samples from a late-arriving event; in practice
// this is always true once the wall clock has moved past the bucket's minute,
// so collapse is enforced by prune() dropping buckets past bucketRetention
// rather than by rewriting old buckets.
const collapseAfter = time.Hour

// latencyWindowSize bounds how many recent latency samples are retained per
// provider for percentile estimation.
const latencyWindowSize = 256

// ewmaAlpha is the smoothing factor for the rolling latency baseline.
const ewmaAlpha = 0.2

// Event is one completed (or cache-hit, or fallback) generation attempt fed
// into the collector. Producers must never block on Record; a full queue
// drops the new event rather than stall the request hot path.
type Event struct {
	Provider  string
	Success   bool
	Latency   time.Duration
	ErrorKind string
	Cached    bool
	Fallback  bool
}

// MinuteBucket aggregates outcomes within one wall-clock minute.
type MinuteBucket struct {
	Minute       time.Time
	Requests     int
	Failures     int
	TotalLatency time.Duration
}

// ProviderReport is a point-in-time snapshot of one provider's metrics.
type ProviderReport struct {
	Provider            string
	InFlight            int64
	RequestsLastMinute  int
	FailuresLastMinute  int
	SuccessRate         float64
	Samples             int
	AvgLatency          time.Duration
	P50Latency          time.Duration
	P95Latency          time.Duration
	EWMALatency         time.Duration
	ConsecutiveFailures int
	CacheHits           int64
	CacheMisses         int64
	FallbackCount       int64
	TotalCostUSD        float64
}

// Filter narrows GetMetricsReport to a subset of providers; a nil/empty
// Providers list matches every known provider.
type Filter struct {
	Providers []string
}

// TimeRange bounds which minute buckets contribute to the historical series
// returned alongside each ProviderReport. A zero TimeRange returns the full
// retained history.
type TimeRange struct {
	Since time.Time
	Until time.Time
}

// Report is the result of GetMetricsReport: a realtime snapshot per provider
// plus the minute-bucket series each snapshot was aggregated from.
type Report struct {
	GeneratedAt time.Time
	Providers   map[string]ProviderReport
	Buckets     map[string][]MinuteBucket
}

type providerState struct {
	inFlight            int64
	consecutiveFailures int
	cacheHits           int64
	cacheMisses         int64
	fallbackCount       int64
	totalCost           float64

	latencies    []time.Duration
	latencyPos   int
	latencyCount int
	ewmaLatency  time.Duration

	buckets map[int64]*MinuteBucket // keyed by unix-minute

	// successWindow is a small ring of recent outcomes used for the rolling
	// success rate independent of minute-bucket boundaries.
	successWindow []bool
	successPos    int
	successLen    int
}

func newProviderState() *providerState {
	return &providerState{
		latencies:     make([]time.Duration, latencyWindowSize),
		buckets:       make(map[int64]*MinuteBucket),
		successWindow: make([]bool, 100),
	}
}

// Collector is the MetricsCollector: ingest via Record (non-blocking),
// aggregate on a single background goroutine, query via GetMetricsReport or
// the MetricsSource-shaped accessors consumed by HealthMonitor.
type Collector struct {
	logger *zap.Logger
	queue  *channel.TunableChannel[providerEvent]

	mu    sync.RWMutex
	state map[string]*providerState

	instruments *instruments

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

type providerEvent struct {
	provider string
	ev       Event
	at       time.Time
}

type instruments struct {
	tracerName string

	requestsTotal  metric.Int64Counter
	failuresTotal  metric.Int64Counter
	cacheHitTotal  metric.Int64Counter
	cacheMissTotal metric.Int64Counter
	fallbackTotal  metric.Int64Counter
	latency        metric.Float64Histogram
	inFlight       metric.Int64UpDownCounter

	promRequests prometheus.CounterVec
	promFailures prometheus.CounterVec
	promLatency  prometheus.HistogramVec
	promInFlight prometheus.GaugeVec
}

// StartGenerateSpan begins one tracer span covering a full ProviderManager
// Generate call, parented to whatever span ctx already carries (the inbound
// HTTP request's span, when telemetry is enabled). Callers must End() the
// returned span, typically via defer.
func (c *Collector) StartGenerateSpan(ctx context.Context, requestID string) (context.Context, trace.Span) {
	tracer := otel.Tracer(c.instruments.tracerName)
	return tracer.Start(ctx, "gateway.generate", trace.WithAttributes(
		attribute.String("request.id", requestID),
	))
}

// New constructs a Collector and starts its aggregation goroutine. Callers
// must call Close to stop the goroutine.
func New(logger *zap.Logger) (*Collector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	inst, err := newInstruments()
	if err != nil {
		return nil, err
	}

	c := &Collector{
		logger:      logger,
		queue:       channel.NewTunableChannel[providerEvent](channel.DefaultTunableConfig()),
		state:       make(map[string]*providerState),
		instruments: inst,
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	go c.aggregate()
	return c, nil
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter(instrumentationName)

	inst := &instruments{tracerName: instrumentationName}
	var err error

	inst.requestsTotal, err = meter.Int64Counter("gateway.requests.total",
		metric.WithDescription("Total provider invocation attempts"))
	if err != nil {
		return nil, err
	}
	inst.failuresTotal, err = meter.Int64Counter("gateway.requests.failures",
		metric.WithDescription("Total failed provider invocation attempts"))
	if err != nil {
		return nil, err
	}
	inst.cacheHitTotal, err = meter.Int64Counter("gateway.cache.hits",
		metric.WithDescription("Total artifact cache hits"))
	if err != nil {
		return nil, err
	}
	inst.cacheMissTotal, err = meter.Int64Counter("gateway.cache.misses",
		metric.WithDescription("Total artifact cache misses"))
	if err != nil {
		return nil, err
	}
	inst.fallbackTotal, err = meter.Int64Counter("gateway.fallback.total",
		metric.WithDescription("Total emergency-fallback invocations"))
	if err != nil {
		return nil, err
	}
	inst.latency, err = meter.Float64Histogram("gateway.request.duration",
		metric.WithDescription("Provider request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20))
	if err != nil {
		return nil, err
	}
	inst.inFlight, err = meter.Int64UpDownCounter("gateway.requests.in_flight",
		metric.WithDescription("Number of in-flight provider requests"))
	if err != nil {
		return nil, err
	}

	inst.promRequests = *prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total provider invocation attempts.",
	}, []string{"provider"})
	inst.promFailures = *prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_request_failures_total",
		Help: "Total failed provider invocation attempts.",
	}, []string{"provider", "error_kind"})
	inst.promLatency = *prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_ms",
		Help:    "Provider request duration in milliseconds.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 3000, 5000, 10000, 20000},
	}, []string{"provider"})
	inst.promInFlight = *prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_requests_in_flight",
		Help: "Number of in-flight provider requests.",
	}, []string{"provider"})

	prometheus.MustRegister(
		&inst.promRequests, &inst.promFailures, &inst.promLatency, &inst.promInFlight,
	)
	return inst, nil
}

// Record enqueues a completed attempt for aggregation. Non-blocking: a full
// queue drops the event rather than stall the caller, logging at debug level.
func (c *Collector) Record(provider string, ev Event) {
	if !c.queue.TrySend(providerEvent{provider: provider, ev: ev, at: time.Now()}) {
		c.logger.Debug("metrics queue full, dropping event", zap.String("provider", provider))
	}
}

// BeginRequest increments the in-flight gauge for provider; callers must
// call the returned func exactly once when the attempt completes.
func (c *Collector) BeginRequest(provider string) func() {
	c.mu.Lock()
	st := c.stateFor(provider)
	st.inFlight++
	c.mu.Unlock()

	c.instruments.inFlight.Add(context.Background(), 1, metric.WithAttributes(attribute.String("provider", provider)))
	c.instruments.promInFlight.WithLabelValues(provider).Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			st := c.stateFor(provider)
			st.inFlight--
			c.mu.Unlock()
			c.instruments.inFlight.Add(context.Background(), -1, metric.WithAttributes(attribute.String("provider", provider)))
			c.instruments.promInFlight.WithLabelValues(provider).Dec()
		})
	}
}

// RecordCost adds usd to provider's cumulative cost-per-call estimate,
// surfaced in the dashboard as ProviderReport.TotalCostUSD. Applied directly
// under c.mu rather than queued through Record: it is a simple running total
// with no latency/success-window bookkeeping, and cost is only known once
// ProviderManager has validated the attempt, after Record already logged
// that same attempt's latency and success outcome.
func (c *Collector) RecordCost(provider string, usd float64) {
	c.mu.Lock()
	st := c.stateFor(provider)
	st.totalCost += usd
	c.mu.Unlock()
}

// stateFor returns provider's state, creating it if absent. Callers must
// hold c.mu.
func (c *Collector) stateFor(provider string) *providerState {
	st, ok := c.state[provider]
	if !ok {
		st = newProviderState()
		c.state[provider] = st
	}
	return st
}

func (c *Collector) aggregate() {
	defer close(c.done)
	pruneTicker := time.NewTicker(10 * time.Minute)
	defer pruneTicker.Stop()

	for {
		select {
		case <-c.stopped:
			c.drain()
			return
		case <-pruneTicker.C:
			c.prune(time.Now())
		case pe := <-c.queue.Chan():
			c.apply(pe)
		}
	}
}

func (c *Collector) drain() {
	for {
		pe, ok := c.queue.TryReceive()
		if !ok {
			return
		}
		c.apply(pe)
	}
}

func (c *Collector) apply(pe providerEvent) {
	ctx := context.Background()
	attrs := attribute.String("provider", pe.provider)

	c.mu.Lock()
	st := c.stateFor(pe.provider)

	if pe.ev.Cached {
		st.cacheHits++
	} else {
		st.cacheMisses++
	}
	if pe.ev.Fallback {
		st.fallbackCount++
	}

	st.successWindow[st.successPos] = pe.ev.Success
	st.successPos = (st.successPos + 1) % len(st.successWindow)
	if st.successLen < len(st.successWindow) {
		st.successLen++
	}

	if pe.ev.Success {
		st.consecutiveFailures = 0
	} else {
		st.consecutiveFailures++
	}

	if pe.ev.Latency > 0 {
		st.latencies[st.latencyPos] = pe.ev.Latency
		st.latencyPos = (st.latencyPos + 1) % len(st.latencies)
		if st.latencyCount < len(st.latencies) {
			st.latencyCount++
		}
		if st.ewmaLatency == 0 {
			st.ewmaLatency = pe.ev.Latency
		} else {
			st.ewmaLatency = time.Duration(ewmaAlpha*float64(pe.ev.Latency) + (1-ewmaAlpha)*float64(st.ewmaLatency))
		}
	}

	minute := pe.at.Truncate(time.Minute).Unix()
	b, ok := st.buckets[minute]
	if !ok {
		b = &MinuteBucket{Minute: pe.at.Truncate(time.Minute)}
		st.buckets[minute] = b
	}
	b.Requests++
	if !pe.ev.Success {
		b.Failures++
	}
	b.TotalLatency += pe.ev.Latency
	c.mu.Unlock()

	c.instruments.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs))
	c.instruments.promRequests.WithLabelValues(pe.provider).Inc()
	if !pe.ev.Success {
		c.instruments.failuresTotal.Add(ctx, 1, metric.WithAttributes(attrs, attribute.String("error_kind", pe.ev.ErrorKind)))
		c.instruments.promFailures.WithLabelValues(pe.provider, pe.ev.ErrorKind).Inc()
	}
	if pe.ev.Cached {
		c.instruments.cacheHitTotal.Add(ctx, 1, metric.WithAttributes(attrs))
	} else {
		c.instruments.cacheMissTotal.Add(ctx, 1, metric.WithAttributes(attrs))
	}
	if pe.ev.Fallback {
		c.instruments.fallbackTotal.Add(ctx, 1, metric.WithAttributes(attrs))
	}
	if pe.ev.Latency > 0 {
		c.instruments.latency.Record(ctx, pe.ev.Latency.Seconds(), metric.WithAttributes(attrs))
		c.instruments.promLatency.WithLabelValues(pe.provider).Observe(float64(pe.ev.Latency.Milliseconds()))
	}
}

func (c *Collector) prune(now time.Time) {
	cutoff := now.Add(-bucketRetention).Unix()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range c.state {
		for minute := range st.buckets {
			if minute < cutoff {
				delete(st.buckets, minute)
			}
		}
	}
}

// Close stops the aggregation goroutine, draining any queued events first.
func (c *Collector) Close() {
	c.stopOnce.Do(func() { close(c.stopped) })
	<-c.done
}

// SuccessRateWindow implements healthmonitor.MetricsSource: the rolling
// success rate over the last 100 (or fewer) observed outcomes.
func (c *Collector) SuccessRateWindow(provider string) (float64, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.state[provider]
	if !ok || st.successLen == 0 {
		return 0, 0
	}
	successes := 0
	for i := 0; i < st.successLen; i++ {
		if st.successWindow[i] {
			successes++
		}
	}
	return float64(successes) / float64(st.successLen), st.successLen
}

// AvgLatency implements healthmonitor.MetricsSource.
func (c *Collector) AvgLatency(provider string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.state[provider]
	if !ok || st.latencyCount == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < st.latencyCount; i++ {
		sum += st.latencies[i]
	}
	return sum / time.Duration(st.latencyCount)
}

// ConsecutiveFailures implements healthmonitor.MetricsSource.
func (c *Collector) ConsecutiveFailures(provider string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.state[provider]
	if !ok {
		return 0
	}
	return st.consecutiveFailures
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// GetMetricsReport returns a point-in-time snapshot filtered by filter and
// bounded to timeRange for the minute-bucket series.
func (c *Collector) GetMetricsReport(filter Filter, timeRange TimeRange) Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	wanted := make(map[string]bool, len(filter.Providers))
	for _, p := range filter.Providers {
		wanted[p] = true
	}

	report := Report{
		GeneratedAt: time.Now(),
		Providers:   make(map[string]ProviderReport),
		Buckets:     make(map[string][]MinuteBucket),
	}

	for provider, st := range c.state {
		if len(wanted) > 0 && !wanted[provider] {
			continue
		}

		latencies := make([]time.Duration, st.latencyCount)
		copy(latencies, st.latencies[:st.latencyCount])
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var avg time.Duration
		if len(latencies) > 0 {
			var sum time.Duration
			for _, l := range latencies {
				sum += l
			}
			avg = sum / time.Duration(len(latencies))
		}

		rate, samples := 0.0, 0
		if st.successLen > 0 {
			successes := 0
			for i := 0; i < st.successLen; i++ {
				if st.successWindow[i] {
					successes++
				}
			}
			rate = float64(successes) / float64(st.successLen)
			samples = st.successLen
		}

		var series []MinuteBucket
		now := time.Now()
		lastMinuteReq, lastMinuteFail := 0, 0
		lastMinute := now.Truncate(time.Minute)
		for _, b := range st.buckets {
			if !timeRange.Since.IsZero() && b.Minute.Before(timeRange.Since) {
				continue
			}
			if !timeRange.Until.IsZero() && b.Minute.After(timeRange.Until) {
				continue
			}
			series = append(series, *b)
			if b.Minute.Equal(lastMinute) {
				lastMinuteReq += b.Requests
				lastMinuteFail += b.Failures
			}
		}
		sort.Slice(series, func(i, j int) bool { return series[i].Minute.Before(series[j].Minute) })

		report.Providers[provider] = ProviderReport{
			Provider:            provider,
			InFlight:            st.inFlight,
			RequestsLastMinute:  lastMinuteReq,
			FailuresLastMinute:  lastMinuteFail,
			SuccessRate:         rate,
			Samples:             samples,
			AvgLatency:          avg,
			P50Latency:          percentile(latencies, 0.50),
			P95Latency:          percentile(latencies, 0.95),
			EWMALatency:         st.ewmaLatency,
			ConsecutiveFailures: st.consecutiveFailures,
			CacheHits:           st.cacheHits,
			CacheMisses:         st.cacheMisses,
			FallbackCount:       st.fallbackCount,
			TotalCostUSD:        st.totalCost,
		}
		report.Buckets[provider] = series
	}

	return report
}
