package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

var startedAt = time.Now()

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the readiness body.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one readiness probe.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// ReadinessChecks lists what must hold before the BFF takes traffic.
type ReadinessChecks struct {
	// OverridesLoaded reports whether an override document snapshot is
	// installed. A nil func counts as not loaded.
	OverridesLoaded func() bool

	// Upstreams are named probes, typically the circuit breakers of the
	// engine and offer clients. Nil entries are skipped.
	Upstreams map[string]HealthChecker

	// Timeout bounds each probe; zero means defaultCheckTimeout.
	Timeout time.Duration
}

const defaultCheckTimeout = 2 * time.Second

var errNoOverrides = errors.New("no override document loaded")

// HandleHealth answers liveness probes. It never consults upstreams.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			Commit:  Commit,
			Uptime:  time.Since(startedAt).Truncate(time.Second).String(),
		})
	}
}

// HandleReady runs every readiness probe concurrently and answers 503 when
// any of them fails.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	probes := checks.probes()
	timeout := checks.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		results := make([]CheckResult, len(probes))
		var g errgroup.Group
		for i, p := range probes {
			g.Go(func() error {
				results[i] = runProbe(r.Context(), p.checker, timeout)
				return nil
			})
		}
		_ = g.Wait()

		resp := ReadinessResponse{Status: "ready", Checks: make(map[string]CheckResult, len(probes))}
		status := http.StatusOK
		for i, p := range probes {
			resp.Checks[p.name] = results[i]
			if results[i].Status != "ok" {
				resp.Status = "not_ready"
				status = http.StatusServiceUnavailable
			}
		}
		writeProbe(w, status, resp)
	}
}

type probe struct {
	name    string
	checker HealthChecker
}

func (c ReadinessChecks) probes() []probe {
	loaded := c.OverridesLoaded
	out := []probe{{name: "overrides", checker: HealthCheckFunc(func(context.Context) error {
		if loaded == nil || !loaded() {
			return errNoOverrides
		}
		return nil
	})}}

	names := make([]string, 0, len(c.Upstreams))
	for name, checker := range c.Upstreams {
		if checker != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, probe{name: name, checker: c.Upstreams[name]})
	}
	return out
}

func runProbe(parent context.Context, checker HealthChecker, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	result := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
	}
	return result
}

func writeProbe(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
