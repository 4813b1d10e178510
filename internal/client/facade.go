// Package client is an HTTP client for the journey facade. It implements
// render.Navigator so a renderer can run against a remote BFF.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/internal/render"
	"github.com/pitabwire/journeybff/model"
)

const (
	serviceName = "facade"

	correlationHeader = "X-Correlation-Id"
	maxResponseBody   = 10 << 20
)

var _ render.Navigator = (*Client)(nil)

// Options configures a Client. Every member except BaseURL is optional.
type Options struct {
	BaseURL string
	// Tokens supplies the caller's bearer token. Nil sends no Authorization
	// header.
	Tokens     oauth2.TokenSource
	Locale     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the facade endpoints.
type Client struct {
	baseURL string
	tokens  oauth2.TokenSource
	locale  string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, model.NewConfigurationError([]string{"base_url"})
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		tokens:  opts.Tokens,
		locale:  opts.Locale,
		http:    hc,
		logger:  logger,
	}, nil
}

func (c *Client) Init(ctx context.Context) (*model.InitResult, error) {
	var out model.InitResult
	if err := c.post(ctx, "/api/journey/init", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LoadStep(ctx context.Context, externalID string) (*model.Step, error) {
	var out model.Step
	body := map[string]string{"externalId": externalID}
	if err := c.post(ctx, "/api/journey/load-step", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Advance(ctx context.Context, externalID string, values []model.AttributeValue, dir model.Direction) (*render.Landing, error) {
	if !dir.Valid() {
		return nil, model.NewBadRequestError(fmt.Sprintf("unknown direction %q", dir))
	}
	if values == nil {
		values = []model.AttributeValue{}
	}
	body := struct {
		ExternalID string                 `json:"externalId"`
		Values     []model.AttributeValue `json:"values"`
	}{externalID, values}

	var out render.Landing
	if err := c.post(ctx, "/api/journey/"+string(dir), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ViewItem(ctx context.Context, externalID, journeyStep string) (json.RawMessage, error) {
	var out json.RawMessage
	body := map[string]string{"externalId": externalID, "journeyStep": journeyStep}
	if err := c.post(ctx, "/api/journey/view-item", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AvailableOffers(ctx context.Context, query model.OfferQuery) (*model.OfferList, error) {
	var out model.OfferList
	if err := c.post(ctx, "/api/offers/available", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// post sends body as JSON and decodes a 2xx response into out. Error
// responses are returned as the facade's *model.ErrorEnvelope.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.locale != "" {
		req.Header.Set("Accept-Language", c.locale)
	}
	req.Header.Set(correlationHeader, correlationID(ctx))
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("caller token: %w", err)
		}
		tok.SetAuthHeader(req)
	}
	observability.InjectTraceHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return model.NewUpstreamUnavailableError(serviceName)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	c.logger.Debug("facade call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(path, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeError turns an error response into the envelope the facade wrote.
// Bodies that are not an envelope become an UpstreamError.
func decodeError(path string, status int, data []byte) error {
	var env model.ErrorEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Code != "" {
		return &env
	}
	return &model.UpstreamError{
		Service:   serviceName,
		Operation: strings.TrimPrefix(path, "/api/"),
		Status:    status,
		Body:      string(data),
		Message:   http.StatusText(status),
	}
}

func correlationID(ctx context.Context) string {
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.CorrelationID != "" {
		return rctx.CorrelationID
	}
	return uuid.NewString()
}

// IsValidation reports whether err is a facade validation rejection.
func IsValidation(err error) bool {
	var env *model.ErrorEnvelope
	return errors.As(err, &env) && env.Code == model.ErrValidationError
}
