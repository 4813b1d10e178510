package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/model"
)

// startIDPaths are where a start response may carry the new instance id.
var startIDPaths = []string{"externalId", "id", "instanceId", "data.externalId", "data.id"}

// navigationIDPaths are the only members a next or previous response may
// use to move the journey to another instance. Bare ids there name records.
var navigationIDPaths = []string{"externalId", "data.externalId"}

// actionPlaceholder is the fixed body sent to custom-processor actions.
// They take no caller input in this flow.
var actionPlaceholder = []byte(`{"values":[{"attribute":"placeholder","value":"placeholder"}]}`)

// NavigationResult is the engine's answer to next or previous.
type NavigationResult struct {
	// ExternalID is the instance id the engine returned, or empty.
	ExternalID string
	// Raw is the engine response body as received.
	Raw json.RawMessage
}

// Engine is the journey engine client.
type Engine struct {
	cfg    config.EngineConfig
	up     *upstream
	tokens *tokenProvider
}

// NewEngine builds the engine client. base bounds background token fetches
// when tokens are reused.
func NewEngine(base context.Context, cfg config.EngineConfig, deps Deps) *Engine {
	up := newUpstream(ServiceEngine, cfg.BaseURL, cfg.LocaleParam, cfg.Locale, cfg.Timeout, cfg.CircuitBreaker, deps)
	fetcher := &engineTokenFetcher{cfg: cfg.Auth, client: up.client, deps: deps, now: time.Now}
	return &Engine{
		cfg:    cfg,
		up:     up,
		tokens: newTokenProvider(base, fetcher.fetch, cfg.Auth.ReuseTokens),
	}
}

// Breaker exposes the engine circuit breaker for readiness checks.
func (e *Engine) Breaker() *CircuitBreaker {
	return e.up.breaker
}

// Token returns the bearer token for engine calls. A caller-presented token
// is forwarded as-is when forwarding is enabled; otherwise configured
// credentials are exchanged. Missing settings yield a configuration error.
func (e *Engine) Token(ctx context.Context) (string, error) {
	rctx := model.RequestContextFrom(ctx)
	if e.cfg.Auth.ForwardInboundToken && rctx.HasBearerToken() {
		if missing := e.cfg.Missing(false); len(missing) > 0 {
			return "", model.NewConfigurationError(missing)
		}
		return rctx.BearerToken, nil
	}
	if missing := e.cfg.Missing(true); len(missing) > 0 {
		return "", model.NewConfigurationError(missing)
	}
	return e.tokens.token(ctx)
}

// FetchMetadata returns the journey definition metadata.
func (e *Engine) FetchMetadata(ctx context.Context, token string) (json.RawMessage, error) {
	body, err := e.up.do(ctx, call{
		operation: "metadata",
		method:    http.MethodGet,
		path:      e.path(e.cfg.Paths.Metadata, nil),
		token:     token,
	})
	if err != nil {
		return nil, err
	}
	return rawJSON(body), nil
}

// StartInstance creates a journey instance and returns its externalId.
func (e *Engine) StartInstance(ctx context.Context, token string) (string, error) {
	body, err := e.up.do(ctx, call{
		operation: "start",
		method:    http.MethodPost,
		path:      e.path(e.cfg.Paths.Start, nil),
		token:     token,
		body:      []byte(`{}`),
	})
	if err != nil {
		return "", err
	}
	id := ExtractExternalID(body)
	if id == "" {
		return "", model.NewCorrelationError("engine start response did not carry an externalId")
	}
	return id, nil
}

// LoadStep fetches the current step of an instance.
func (e *Engine) LoadStep(ctx context.Context, token, externalID string) (*model.Step, error) {
	body, err := e.up.do(ctx, call{
		operation: "load_step",
		method:    http.MethodGet,
		path:      e.path(e.cfg.Paths.Step, map[string]string{"externalId": externalID}),
		token:     token,
	})
	if err != nil {
		return nil, err
	}
	return decodeStep(body)
}

// Advance submits values and moves the instance in the given direction.
func (e *Engine) Advance(ctx context.Context, token, externalID string, values []model.AttributeValue, dir model.Direction) (*NavigationResult, error) {
	var template string
	switch dir {
	case model.DirectionNext:
		template = e.cfg.Paths.Next
	case model.DirectionPrevious:
		template = e.cfg.Paths.Previous
	default:
		return nil, model.NewBadRequestError(fmt.Sprintf("unknown direction %q", dir))
	}
	if values == nil {
		values = []model.AttributeValue{}
	}
	payload, err := json.Marshal(struct {
		Values []model.AttributeValue `json:"values"`
	}{values})
	if err != nil {
		return nil, fmt.Errorf("engine %s: marshal values: %w", dir, err)
	}
	body, err := e.up.do(ctx, call{
		operation: string(dir),
		method:    http.MethodPost,
		path:      e.path(template, map[string]string{"externalId": externalID}),
		token:     token,
		body:      payload,
	})
	if err != nil {
		return nil, err
	}
	return &NavigationResult{ExternalID: memberID(gjson.ParseBytes(body), navigationIDPaths), Raw: rawJSON(body)}, nil
}

// InvokeStepAction runs a declared step action on an instance and returns
// the raw engine response.
func (e *Engine) InvokeStepAction(ctx context.Context, token, actionID, externalID string) (json.RawMessage, error) {
	body, err := e.up.do(ctx, call{
		operation: "action",
		method:    http.MethodPost,
		path: e.path(e.cfg.Paths.Action, map[string]string{
			"externalId": externalID,
			"actionId":   actionID,
		}),
		token: token,
		body:  actionPlaceholder,
	})
	if err != nil {
		return nil, err
	}
	return rawJSON(body), nil
}

// FetchViewItem returns a read-only snapshot of a named step's data.
func (e *Engine) FetchViewItem(ctx context.Context, token, externalID, journeyStep string) (json.RawMessage, error) {
	body, err := e.up.do(ctx, call{
		operation: "view_item",
		method:    http.MethodGet,
		path: e.path(e.cfg.Paths.ViewItem, map[string]string{
			"externalId":  externalID,
			"journeyStep": journeyStep,
		}),
		token: token,
	})
	if err != nil {
		return nil, err
	}
	return rawJSON(body), nil
}

func (e *Engine) path(template string, params map[string]string) string {
	all := map[string]string{"journeyName": e.cfg.JourneyName}
	for k, v := range params {
		all[k] = v
	}
	return expandPath(template, all)
}

// ExtractExternalID reads an instance id from a start response: a bare JSON
// string or one of the known members. It returns "" when none is present.
func ExtractExternalID(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	parsed := gjson.ParseBytes(body)
	if parsed.Type == gjson.String {
		return strings.TrimSpace(parsed.String())
	}
	return memberID(parsed, startIDPaths)
}

func memberID(parsed gjson.Result, paths []string) string {
	if !parsed.IsObject() {
		return ""
	}
	for _, path := range paths {
		r := parsed.Get(path)
		if r.Type == gjson.String || r.Type == gjson.Number {
			if id := strings.TrimSpace(r.String()); id != "" {
				return id
			}
		}
	}
	return ""
}

// decodeStep accepts a step object directly or wrapped in "step" or "data".
func decodeStep(body []byte) (*model.Step, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("engine load_step: response is not JSON")
	}
	parsed := gjson.ParseBytes(body)
	raw := body
	if !parsed.Get("journeyStep").Exists() {
		for _, wrapper := range []string{"step", "data"} {
			if inner := parsed.Get(wrapper); inner.IsObject() && inner.Get("journeyStep").Exists() {
				raw = []byte(inner.Raw)
				break
			}
		}
	}
	var step model.Step
	if err := json.Unmarshal(raw, &step); err != nil {
		return nil, fmt.Errorf("engine load_step: decode step: %w", err)
	}
	return &step, nil
}

// rawJSON returns body as a JSON value; an empty body becomes null and a
// non-JSON body is returned as a JSON string.
func rawJSON(body []byte) json.RawMessage {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return json.RawMessage("null")
	}
	if gjson.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(trimmed)
	return quoted
}
