package observability

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/model"
)

// Context key for the logger.
type loggerKey struct{}

// NewLogger creates a zap.Logger configured for JSON output to stdout.
//
// Log level usage conventions:
//   - error: upstream 5xx, unhandled panics, configuration errors
//   - warn:  upstream 4xx, circuit breaker open, retry exhaustion
//   - info:  request start/end, journey init, navigation, override reload
//   - debug: outbound request/response traces, action folding, cache hits
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	// Debug traces are emitted at debug level; lift the floor so they show.
	if cfg.DebugTracesEnabled() && level > zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: !cfg.IsProduction(),
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or the provided
// fallback if none is found.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns a logger enriched with RequestContext fields.
// If no logger is in the context, the fallback is used.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := []zap.Field{
		zap.String("correlation_id", rctx.CorrelationID),
		zap.Bool("caller_token", rctx.HasBearerToken()),
	}
	if rctx.Subject != "" {
		fields = append(fields, zap.String("subject", rctx.Subject))
	}
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	if rctx.Locale != "" {
		fields = append(fields, zap.String("locale", rctx.Locale))
	}

	return logger.With(fields...)
}

// Tracer writes debug traces of outbound calls. A nil or disabled Tracer
// writes nothing.
type Tracer struct {
	logger  *zap.Logger
	enabled bool
	maxBody int
}

// NewTracer builds a Tracer from observability settings.
func NewTracer(logger *zap.Logger, cfg config.ObservabilityConfig) *Tracer {
	return &Tracer{
		logger:  logger,
		enabled: cfg.DebugTracesEnabled(),
		maxBody: cfg.MaxLoggedBody,
	}
}

// Enabled reports whether traces are written.
func (t *Tracer) Enabled() bool {
	return t != nil && t.enabled && t.logger != nil
}

// Outbound logs an outbound request. The body is redacted and truncated.
func (t *Tracer) Outbound(ctx context.Context, service, method, url string, body []byte) {
	if !t.Enabled() {
		return
	}
	RequestLogger(ctx, t.logger).Debug("outbound request",
		zap.String("service", service),
		zap.String("method", method),
		zap.String("url", url),
		zap.String("body", Truncate(RedactJSON(body, nil), t.maxBody)),
	)
}

// Inbound logs the response to an outbound request.
func (t *Tracer) Inbound(ctx context.Context, service, url string, status int, body []byte) {
	if !t.Enabled() {
		return
	}
	RequestLogger(ctx, t.logger).Debug("upstream response",
		zap.String("service", service),
		zap.String("url", url),
		zap.Int("status", status),
		zap.String("body", Truncate(RedactJSON(body, nil), t.maxBody)),
	)
}

// Step logs a step summary at a named pipeline stage.
func (t *Tracer) Step(ctx context.Context, stage string, step *model.Step) {
	if !t.Enabled() || step == nil {
		return
	}
	RequestLogger(ctx, t.logger).Debug("step",
		zap.String("stage", stage),
		zap.String("journey_step", step.JourneyStep),
		zap.String("step_type", step.JourneyStepType),
		zap.Int("fields", len(step.Fields)),
		zap.Int("actions", len(step.StepActions)),
	)
}

// Truncate cuts s to at most max bytes on a rune boundary and marks the cut.
// A non-positive max disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}

// defaultSensitiveFields is the default set of field names that should be
// redacted in debug logging output. Matching is case-insensitive.
var defaultSensitiveFields = map[string]bool{
	"password":      true,
	"secret":        true,
	"client_secret": true,
	"token":         true,
	"access_token":  true,
	"accesstoken":   true,
	"refresh_token": true,
	"id_token":      true,
	"api_key":       true,
	"authorization": true,
	"credit_card":   true,
	"ssn":           true,
	"pin":           true,
}

// RedactBody returns a copy of body with sensitive fields replaced by
// "[REDACTED]". The sensitiveFields list is merged with default sensitive
// field names. This is intended for debug-level logging only.
func RedactBody(body map[string]any, sensitiveFields []string) map[string]any {
	if body == nil {
		return nil
	}
	return redactMap(body, redactSet(sensitiveFields))
}

// RedactJSON redacts sensitive members of a JSON document and returns it as
// a string. Non-JSON input is returned as-is, and form-encoded credentials
// are masked.
func RedactJSON(body []byte, sensitiveFields []string) string {
	if len(body) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return redactForm(string(body), redactSet(sensitiveFields))
	}
	out, err := json.Marshal(redactValue(v, redactSet(sensitiveFields)))
	if err != nil {
		return string(body)
	}
	return string(out)
}

func redactSet(extra []string) map[string]bool {
	set := make(map[string]bool, len(defaultSensitiveFields)+len(extra))
	for k, v := range defaultSensitiveFields {
		set[k] = v
	}
	for _, f := range extra {
		set[strings.ToLower(f)] = true
	}
	return set
}

func redactValue(v any, set map[string]bool) any {
	switch t := v.(type) {
	case map[string]any:
		return redactMap(t, set)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = redactValue(item, set)
		}
		return out
	default:
		return v
	}
}

func redactMap(body map[string]any, set map[string]bool) map[string]any {
	result := make(map[string]any, len(body))
	for k, v := range body {
		if set[strings.ToLower(k)] {
			result[k] = "[REDACTED]"
			continue
		}
		result[k] = redactValue(v, set)
	}
	return result
}

func redactForm(s string, set map[string]bool) string {
	if !strings.Contains(s, "=") {
		return s
	}
	pairs := strings.Split(s, "&")
	for i, p := range pairs {
		k, _, ok := strings.Cut(p, "=")
		if ok && set[strings.ToLower(k)] {
			pairs[i] = k + "=[REDACTED]"
		}
	}
	return strings.Join(pairs, "&")
}
