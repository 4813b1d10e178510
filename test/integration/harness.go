// Package integration provides a reusable test harness for end-to-end
// integration testing of the journey BFF. It starts the fully wired HTTP
// server against mock journey-engine and offer API backends.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/pitabwire/journeybff/internal/client"
	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/internal/gateway"
	"github.com/pitabwire/journeybff/internal/journey"
	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/internal/offers"
	"github.com/pitabwire/journeybff/internal/openapi"
	"github.com/pitabwire/journeybff/internal/override"
	"github.com/pitabwire/journeybff/internal/processor"
	"github.com/pitabwire/journeybff/internal/render"
	"github.com/pitabwire/journeybff/internal/resolver"
	"github.com/pitabwire/journeybff/internal/transport"
)

// TestJourneyName is the journey the harness engine serves.
const TestJourneyName = "LoanJourney"

// TestHarness encapsulates a fully wired BFF instance with mock backends
// for integration testing.
type TestHarness struct {
	t         *testing.T
	server    *httptest.Server
	engine    *FakeUpstream
	offers    *FakeUpstream
	issuer    *tokenIssuer
	config    *config.Config
	overrides *override.Registry
	engineAPI *gateway.Engine
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	mutate    []func(*config.Config)
	overrides string
}

// WithEngineCircuitBreaker sets the engine circuit breaker settings.
func WithEngineCircuitBreaker(cb config.CircuitBreakerConfig) HarnessOption {
	return func(hc *harnessConfig) {
		hc.mutate = append(hc.mutate, func(c *config.Config) { c.Engine.CircuitBreaker = cb })
	}
}

// WithResolver sets the post-navigation step-load retry.
func WithResolver(attempts int, delay time.Duration) HarnessOption {
	return func(hc *harnessConfig) {
		hc.mutate = append(hc.mutate, func(c *config.Config) {
			c.Resolver = config.ResolverConfig{MaxAttempts: attempts, Delay: delay}
		})
	}
}

// WithTokenForwarding toggles forwarding of caller tokens to the engine.
func WithTokenForwarding(enabled bool) HarnessOption {
	return func(hc *harnessConfig) {
		hc.mutate = append(hc.mutate, func(c *config.Config) { c.Engine.Auth.ForwardInboundToken = enabled })
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(hc *harnessConfig) {
		hc.mutate = append(hc.mutate, func(c *config.Config) { c.Server.HandlerTimeout = d })
	}
}

// WithoutEngineCredentials clears the engine credentials so only caller
// tokens can be used.
func WithoutEngineCredentials() HarnessOption {
	return func(hc *harnessConfig) {
		hc.mutate = append(hc.mutate, func(c *config.Config) {
			c.Engine.Auth.Username = ""
			c.Engine.Auth.Password = ""
		})
	}
}

// WithOverrides installs an override document (YAML or JSON).
func WithOverrides(doc string) HarnessOption {
	return func(hc *harnessConfig) { hc.overrides = doc }
}

// NewTestHarness creates and starts a full BFF test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{}
	for _, opt := range opts {
		opt(hc)
	}

	engine := newFakeUpstream(t, "engine", EngineRoutes())
	offerAPI := newFakeUpstream(t, "offers", OfferRoutes())
	engine.OnOperation("token").RespondWith(http.StatusOK, map[string]any{
		"access_token": "engine-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
	offerAPI.OnOperation("token").RespondWith(http.StatusOK, map[string]any{
		"access_token": "offers-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})

	cfg := config.Defaults()
	cfg.Observability.Environment = "test"
	cfg.Engine.BaseURL = engine.URL()
	cfg.Engine.JourneyName = TestJourneyName
	cfg.Engine.Auth.TokenURL = engine.URL() + "/oauth/token"
	cfg.Engine.Auth.Username = "bff-service"
	cfg.Engine.Auth.Password = "secret"
	cfg.Offers.BaseURL = offerAPI.URL()
	cfg.Offers.TokenURL = offerAPI.URL() + "/oauth/token"
	cfg.Offers.ClientID = "bff"
	cfg.Offers.ClientSecret = "secret"
	cfg.Resolver.Delay = 5 * time.Millisecond
	for _, m := range hc.mutate {
		m(cfg)
	}

	if hc.overrides != "" {
		path := filepath.Join(t.TempDir(), "overrides.yaml")
		if err := os.WriteFile(path, []byte(hc.overrides), 0o600); err != nil {
			t.Fatalf("write override document: %v", err)
		}
		cfg.Overrides.File = path
	}

	ctx := context.Background()
	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	metrics := observability.InitMetrics(registry)
	tracer := observability.NewTracer(logger, cfg.Observability)

	facade, err := openapi.LoadFacade(ctx)
	if err != nil {
		t.Fatalf("load facade contract: %v", err)
	}

	loader, err := override.NewLoader(cfg.Overrides.ValidateSchema)
	if err != nil {
		t.Fatalf("create override loader: %v", err)
	}
	overrides := override.NewRegistry(loader, cfg.Overrides.File, logger, metrics)
	if err := overrides.Reload(); err != nil {
		t.Fatalf("load override document: %v", err)
	}

	gwDeps := gateway.Deps{Logger: logger, Metrics: metrics, Tracer: tracer}
	engineAPI := gateway.NewEngine(ctx, cfg.Engine, gwDeps)
	offersAPI := gateway.NewOffers(ctx, cfg.Offers, gwDeps)

	orchestrator := processor.NewOrchestrator(engineAPI, logger, metrics)
	pipeline := resolver.NewPipeline(engineAPI, overrides, orchestrator, cfg.Engine.JourneyName, cfg.Resolver,
		resolver.Deps{Logger: logger, Metrics: metrics, Tracer: tracer})

	router := transport.NewRouter(transport.Dependencies{
		Config:        cfg,
		Logger:        logger,
		Metrics:       metrics,
		Journey:       journey.NewService(engineAPI, pipeline, logger, metrics),
		Offers:        offers.NewService(offersAPI, cfg.Offers, logger, metrics),
		Validator:     facade,
		HealthHandler: observability.HandleHealth(),
		ReadyHandler: observability.HandleReady(observability.ReadinessChecks{
			OverridesLoaded: overrides.Loaded,
			Upstreams: map[string]observability.HealthChecker{
				gateway.ServiceEngine: engineAPI.Breaker(),
				gateway.ServiceOffers: offersAPI.Breaker(),
			},
		}),
		MetricsHandler: observability.HandlerFor(registry),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestHarness{
		t:         t,
		server:    server,
		engine:    engine,
		offers:    offerAPI,
		issuer:    newTokenIssuer(t),
		config:    cfg,
		overrides: overrides,
		engineAPI: engineAPI,
	}
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// Engine returns the mock journey engine.
func (h *TestHarness) Engine() *FakeUpstream {
	return h.engine
}

// Offers returns the mock offer API.
func (h *TestHarness) Offers() *FakeUpstream {
	return h.offers
}

// Config returns the configuration the BFF was wired with.
func (h *TestHarness) Config() *config.Config {
	return h.config
}

// Overrides returns the live override registry.
func (h *TestHarness) Overrides() *override.Registry {
	return h.overrides
}

// EngineBreaker returns the engine circuit breaker.
func (h *TestHarness) EngineBreaker() *gateway.CircuitBreaker {
	return h.engineAPI.Breaker()
}

// GenerateToken creates a signed caller JWT with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// Client returns a facade client bound to the test server. A non-empty
// token is sent as the caller's bearer token.
func (h *TestHarness) Client(token string) *client.Client {
	h.t.Helper()
	opts := client.Options{BaseURL: h.server.URL, Locale: "en-GB", Timeout: 10 * time.Second}
	if token != "" {
		opts.Tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	}
	c, err := client.New(opts)
	if err != nil {
		h.t.Fatalf("create facade client: %v", err)
	}
	return c
}

// Renderer returns a renderer driving the test server, searching loan
// offers when a step carries none.
func (h *TestHarness) Renderer(token string) *render.Renderer {
	return render.NewRenderer(h.Client(token), render.Options{
		OfferQuery: OfferQueryLoan(),
	}, zap.NewNop())
}

// --- HTTP client helpers ---

// GET performs a GET request. A non-empty token is sent as a bearer token.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// POST performs a POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs a POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, headers)
}

// POSTRaw performs a POST request with a raw body.
func (h *TestHarness) POSTRaw(path, body string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, json.RawMessage(body), "", nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if raw, ok := body.(json.RawMessage); ok {
		bodyReader = strings.NewReader(string(raw))
	} else if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}
