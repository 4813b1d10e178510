package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the journey BFF.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Upstream metrics
	UpstreamRequestsTotal       *prometheus.CounterVec
	UpstreamRequestDuration     *prometheus.HistogramVec
	UpstreamCircuitBreakerState *prometheus.GaugeVec
	TokenAcquisitionsTotal      *prometheus.CounterVec

	// Journey metrics
	JourneyNavigationsTotal   *prometheus.CounterVec
	StepLoadRetriesTotal      prometheus.Counter
	StepLoadExhaustedTotal    prometheus.Counter
	CustomProcessorCallsTotal *prometheus.CounterVec
	OverridesApplied          *prometheus.CounterVec
	OverrideReloadTotal       *prometheus.CounterVec
	OverrideStepsLoaded       prometheus.Gauge

	// Offer metrics
	OfferDetailCacheHitsTotal   prometheus.Counter
	OfferDetailCacheMissesTotal prometheus.Counter
	OffersReturned              prometheus.Histogram
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journeybff_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "journeybff_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "journeybff_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "journeybff_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Upstream
		UpstreamRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journeybff_upstream_requests_total",
			Help: "Total number of upstream requests.",
		}, []string{"service", "operation", "status"}),
		UpstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "journeybff_upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"service", "operation"}),
		UpstreamCircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "journeybff_upstream_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"service"}),
		TokenAcquisitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journeybff_token_acquisitions_total",
			Help: "Total number of upstream token acquisitions.",
		}, []string{"service", "status"}),

		// Journey
		JourneyNavigationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journeybff_journey_navigations_total",
			Help: "Total number of journey navigations.",
		}, []string{"operation", "status"}),
		StepLoadRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journeybff_step_load_retries_total",
			Help: "Total step load retries after transient not-found responses.",
		}),
		StepLoadExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journeybff_step_load_exhausted_total",
			Help: "Total step loads that failed after all retry attempts.",
		}),
		CustomProcessorCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journeybff_custom_processor_calls_total",
			Help: "Total custom-processor action invocations.",
		}, []string{"status"}),
		OverridesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journeybff_overrides_applied_total",
			Help: "Total steps that had overrides applied.",
		}, []string{"journey_step"}),
		OverrideReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journeybff_override_reload_total",
			Help: "Total override document reloads.",
		}, []string{"status"}),
		OverrideStepsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journeybff_override_steps_loaded",
			Help: "Number of steps with configured overrides.",
		}),

		// Offers
		OfferDetailCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journeybff_offer_detail_cache_hits_total",
			Help: "Total offer detail cache hits.",
		}),
		OfferDetailCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journeybff_offer_detail_cache_misses_total",
			Help: "Total offer detail cache misses.",
		}),
		OffersReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "journeybff_offers_returned",
			Help:    "Number of offers returned per offers request.",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Upstream
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		m.UpstreamCircuitBreakerState,
		m.TokenAcquisitionsTotal,
		// Journey
		m.JourneyNavigationsTotal,
		m.StepLoadRetriesTotal,
		m.StepLoadExhaustedTotal,
		m.CustomProcessorCallsTotal,
		m.OverridesApplied,
		m.OverrideReloadTotal,
		m.OverrideStepsLoaded,
		// Offers
		m.OfferDetailCacheHitsTotal,
		m.OfferDetailCacheMissesTotal,
		m.OffersReturned,
	)

	return m
}

// --- Recording helpers ---
// All helpers are safe to call on a nil *Metrics.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordUpstreamRequest records an upstream request. Status 0 means the
// request never produced a response.
func (m *Metrics) RecordUpstreamRequest(service, operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequestsTotal.WithLabelValues(service, operation, strconv.Itoa(status)).Inc()
	m.UpstreamRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetUpstreamCircuitBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetUpstreamCircuitBreakerState(service string, state float64) {
	if m == nil {
		return
	}
	m.UpstreamCircuitBreakerState.WithLabelValues(service).Set(state)
}

// RecordTokenAcquisition records a token request against an identity endpoint.
func (m *Metrics) RecordTokenAcquisition(service, status string) {
	if m == nil {
		return
	}
	m.TokenAcquisitionsTotal.WithLabelValues(service, status).Inc()
}

// RecordNavigation records a facade navigation outcome.
func (m *Metrics) RecordNavigation(operation, status string) {
	if m == nil {
		return
	}
	m.JourneyNavigationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordStepLoadRetry records one retry of a post-navigation step load.
func (m *Metrics) RecordStepLoadRetry() {
	if m == nil {
		return
	}
	m.StepLoadRetriesTotal.Inc()
}

// RecordStepLoadExhausted records a step load that ran out of attempts.
func (m *Metrics) RecordStepLoadExhausted() {
	if m == nil {
		return
	}
	m.StepLoadExhaustedTotal.Inc()
}

// RecordCustomProcessorCall records a custom-processor action invocation.
func (m *Metrics) RecordCustomProcessorCall(status string) {
	if m == nil {
		return
	}
	m.CustomProcessorCallsTotal.WithLabelValues(status).Inc()
}

// RecordOverrideApplied records that a step had overrides applied.
func (m *Metrics) RecordOverrideApplied(journeyStep string) {
	if m == nil {
		return
	}
	m.OverridesApplied.WithLabelValues(journeyStep).Inc()
}

// RecordOverrideReload records an override document reload.
func (m *Metrics) RecordOverrideReload(status string) {
	if m == nil {
		return
	}
	m.OverrideReloadTotal.WithLabelValues(status).Inc()
}

// SetOverrideStepsLoaded sets the number of steps with overrides.
func (m *Metrics) SetOverrideStepsLoaded(count float64) {
	if m == nil {
		return
	}
	m.OverrideStepsLoaded.Set(count)
}

// RecordOfferDetailCacheHit records an offer detail cache hit.
func (m *Metrics) RecordOfferDetailCacheHit() {
	if m == nil {
		return
	}
	m.OfferDetailCacheHitsTotal.Inc()
}

// RecordOfferDetailCacheMiss records an offer detail cache miss.
func (m *Metrics) RecordOfferDetailCacheMiss() {
	if m == nil {
		return
	}
	m.OfferDetailCacheMissesTotal.Inc()
}

// RecordOffersReturned records the number of offers returned.
func (m *Metrics) RecordOffersReturned(n int) {
	if m == nil {
		return
	}
	m.OffersReturned.Observe(float64(n))
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewResponseRecorder(w)
		next.ServeHTTP(rec, r)

		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, RoutePattern(r), rec.Status(), time.Since(start), reqSize, rec.Bytes())
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a Prometheus handler for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
