// Package gateway holds the outbound clients for the journey engine and the
// product-offer API.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/model"
)

// Service names used in errors, logs, and metric labels.
const (
	ServiceEngine = "engine"
	ServiceOffers = "offers"
)

// maxResponseBody caps how much of an upstream body is read.
const maxResponseBody = 10 << 20

// Deps carries the ambient collaborators shared by the upstream clients.
// Every member is optional.
type Deps struct {
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
	HTTPClient *http.Client
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// upstream executes single HTTP calls against one remote service with
// breaker protection, trace propagation, metrics, and debug traces.
type upstream struct {
	service     string
	baseURL     string
	localeParam string
	locale      string
	client      *http.Client
	breaker     *CircuitBreaker
	deps        Deps
}

func newUpstream(service, baseURL, localeParam, locale string, timeout time.Duration,
	cb config.CircuitBreakerConfig, deps Deps) *upstream {
	client := deps.HTTPClient
	if client == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	metrics := deps.Metrics
	return &upstream{
		service:     service,
		baseURL:     strings.TrimRight(baseURL, "/"),
		localeParam: localeParam,
		locale:      locale,
		client:      client,
		breaker: NewCircuitBreaker(cb, func(s BreakerState) {
			metrics.SetUpstreamCircuitBreakerState(service, s.Gauge())
		}),
		deps: deps,
	}
}

// call describes one outbound request.
type call struct {
	operation string
	method    string
	path      string
	token     string
	body      []byte
}

// do performs the call once and returns the raw response body of a 2xx
// response. Non-2xx responses become *model.UpstreamError.
func (u *upstream) do(ctx context.Context, c call) ([]byte, error) {
	ctx, span := observability.StartSpan(ctx, u.service+"."+c.operation,
		observability.AttrService.String(u.service),
		observability.AttrOperation.String(c.operation),
	)
	body, err := u.execute(ctx, c)
	observability.EndSpanWithError(span, err)
	return body, err
}

func (u *upstream) execute(ctx context.Context, c call) ([]byte, error) {
	done, err := u.breaker.Acquire()
	if err != nil {
		u.deps.logger().Warn("upstream call rejected by open circuit",
			zap.String("service", u.service),
			zap.String("operation", c.operation),
		)
		return nil, model.NewUpstreamUnavailableError(u.service)
	}
	outcome := Ignored
	defer func() { done(outcome) }()

	reqURL := u.url(c.path)

	var reader io.Reader
	if c.body != nil {
		reader = bytes.NewReader(c.body)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: build request: %w", u.service, c.operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+sanitizeHeader(c.token))
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
	}
	observability.InjectTraceHeaders(ctx, req.Header)

	u.deps.Tracer.Outbound(ctx, u.service, c.method, reqURL, c.body)

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		outcome = Failed
		u.deps.Metrics.RecordUpstreamRequest(u.service, c.operation, 0, time.Since(start))
		u.deps.logger().Error("upstream request failed",
			zap.String("service", u.service),
			zap.String("operation", c.operation),
			zap.String("url", reqURL),
			zap.Error(err),
		)
		if ctx.Err() != nil || isTimeout(err) {
			return nil, model.NewUpstreamTimeoutError(u.service)
		}
		if isConnectionError(err) {
			return nil, model.NewUpstreamUnavailableError(u.service)
		}
		return nil, fmt.Errorf("%s %s: request failed: %w", u.service, c.operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		outcome = Failed
		u.deps.logger().Error("upstream response truncated",
			zap.String("service", u.service),
			zap.String("operation", c.operation),
			zap.Error(err),
		)
		if ctx.Err() != nil || isTimeout(err) {
			return nil, model.NewUpstreamTimeoutError(u.service)
		}
		return nil, model.NewUpstreamUnavailableError(u.service)
	}
	u.deps.Metrics.RecordUpstreamRequest(u.service, c.operation, resp.StatusCode, time.Since(start))
	u.deps.Tracer.Inbound(ctx, u.service, reqURL, resp.StatusCode, respBody)

	// 4xx answers say nothing about upstream health.
	switch {
	case isServerError(resp.StatusCode):
		outcome = Failed
	case !isClientError(resp.StatusCode):
		outcome = Succeeded
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ue := &model.UpstreamError{
			Service:   u.service,
			Operation: c.operation,
			Status:    resp.StatusCode,
			Body:      string(respBody),
			Message:   upstreamMessage(respBody),
		}
		fields := []zap.Field{
			zap.String("service", u.service),
			zap.String("operation", c.operation),
			zap.Int("status", resp.StatusCode),
			zap.String("message", ue.Message),
		}
		if isServerError(resp.StatusCode) {
			u.deps.logger().Error("upstream returned error", fields...)
		} else {
			u.deps.logger().Warn("upstream returned error", fields...)
		}
		return nil, ue
	}

	return respBody, nil
}

// url joins the base URL with path and appends the locale parameter.
func (u *upstream) url(path string) string {
	full := u.baseURL + path
	if u.localeParam == "" || u.locale == "" {
		return full
	}
	sep := "?"
	if strings.Contains(full, "?") {
		sep = "&"
	}
	return full + sep + url.QueryEscape(u.localeParam) + "=" + url.QueryEscape(u.locale)
}

// expandPath substitutes {name} placeholders with escaped values.
func expandPath(template string, params map[string]string) string {
	path := template
	for name, value := range params {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	return path
}

// upstreamMessage pulls a human-readable message out of an error body. A
// non-JSON body is its own message.
func upstreamMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	if !gjson.Valid(trimmed) {
		return trimmed
	}
	parsed := gjson.Parse(trimmed)
	if parsed.Type == gjson.String {
		return strings.TrimSpace(parsed.String())
	}
	for _, path := range []string{"message", "Message", "error_description", "error.message", "title", "detail", "error"} {
		if r := parsed.Get(path); r.Exists() && r.Type == gjson.String {
			if s := strings.TrimSpace(r.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

func isServerError(code int) bool {
	return code >= 500
}

func isClientError(code int) bool {
	return code >= 400 && code < 500
}

// isConnectionError reports whether err means the upstream could not be
// reached or dropped the connection before answering.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && !urlErr.Timeout()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
