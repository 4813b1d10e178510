package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/model"
)

// tokenPaths are the members of a token response that may hold the token,
// in lookup order.
var tokenPaths = []string{
	"access_token", "accessToken", "token", "id_token",
	"data.access_token", "data.accessToken", "data.token",
}

// ExtractToken pulls a bearer token out of a token endpoint response. The
// engine answers either with a bare JSON string or with an object holding
// the token under one of several names.
func ExtractToken(body []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", false
	}
	if !gjson.Valid(trimmed) {
		// A raw token without quotes has no whitespace or JSON punctuation.
		if strings.ContainsAny(trimmed, " \t\r\n{}[]\"") {
			return "", false
		}
		return trimmed, true
	}
	parsed := gjson.Parse(trimmed)
	if parsed.Type == gjson.String {
		tok := strings.TrimSpace(parsed.String())
		return tok, tok != ""
	}
	for _, path := range tokenPaths {
		if r := parsed.Get(path); r.Type == gjson.String {
			if tok := strings.TrimSpace(r.String()); tok != "" {
				return tok, true
			}
		}
	}
	return "", false
}

// tokenExpiry works out when a token stops being usable: the response's
// expires_in, else the JWT exp claim, else now+fallback.
func tokenExpiry(body []byte, token string, fallback time.Duration, now time.Time) time.Time {
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		for _, path := range []string{"expires_in", "expiresIn", "data.expires_in"} {
			if r := parsed.Get(path); r.Exists() && r.Int() > 0 {
				return now.Add(time.Duration(r.Int()) * time.Second)
			}
		}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if fallback <= 0 {
		fallback = 5 * time.Minute
	}
	return now.Add(fallback)
}

// fetchFunc acquires a fresh token.
type fetchFunc func(ctx context.Context) (*oauth2.Token, error)

// boundSource adapts a fetchFunc to oauth2.TokenSource with a fixed context.
type boundSource struct {
	ctx   context.Context
	fetch fetchFunc
}

func (s boundSource) Token() (*oauth2.Token, error) {
	return s.fetch(s.ctx)
}

// tokenProvider hands out bearer tokens, either cached until expiry or
// acquired per call.
type tokenProvider struct {
	fetch fetchFunc
	reuse oauth2.TokenSource
}

// newTokenProvider wraps fetch. With reuse, fetches run on base so a
// cancelled request cannot poison the shared cache.
func newTokenProvider(base context.Context, fetch fetchFunc, reuse bool) *tokenProvider {
	p := &tokenProvider{fetch: fetch}
	if reuse {
		p.reuse = oauth2.ReuseTokenSource(nil, boundSource{ctx: base, fetch: fetch})
	}
	return p
}

func (p *tokenProvider) token(ctx context.Context) (string, error) {
	var (
		tok *oauth2.Token
		err error
	)
	if p.reuse != nil {
		tok, err = p.reuse.Token()
	} else {
		tok, err = p.fetch(ctx)
	}
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// engineTokenFetcher exchanges configured engine credentials for a token.
type engineTokenFetcher struct {
	cfg    config.EngineAuthConfig
	client *http.Client
	deps   Deps
	now    func() time.Time
}

func (f *engineTokenFetcher) form() url.Values {
	form := url.Values{}
	switch f.cfg.Mode {
	case config.AuthModeClientCredentials:
		form.Set("grant_type", "client_credentials")
	default:
		form.Set("grant_type", "password")
		form.Set("username", f.cfg.Username)
		form.Set("password", f.cfg.Password)
	}
	if f.cfg.ClientID != "" {
		form.Set("client_id", f.cfg.ClientID)
	}
	if f.cfg.ClientSecret != "" {
		form.Set("client_secret", f.cfg.ClientSecret)
	}
	return form
}

func (f *engineTokenFetcher) fetch(ctx context.Context) (*oauth2.Token, error) {
	encoded := f.form().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.TokenURL, strings.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("engine token: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	f.deps.Tracer.Outbound(ctx, ServiceEngine, http.MethodPost, f.cfg.TokenURL, []byte(encoded))

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.deps.Metrics.RecordTokenAcquisition(ServiceEngine, "failure")
		if ctx.Err() != nil || isTimeout(err) {
			return nil, model.NewUpstreamTimeoutError(ServiceEngine)
		}
		if isConnectionError(err) {
			return nil, model.NewUpstreamUnavailableError(ServiceEngine)
		}
		return nil, fmt.Errorf("engine token: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		f.deps.Metrics.RecordTokenAcquisition(ServiceEngine, "failure")
		return nil, fmt.Errorf("engine token: read response: %w", err)
	}
	f.deps.Metrics.RecordUpstreamRequest(ServiceEngine, "token", resp.StatusCode, f.now().Sub(start))
	f.deps.Tracer.Inbound(ctx, ServiceEngine, f.cfg.TokenURL, resp.StatusCode, body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.deps.Metrics.RecordTokenAcquisition(ServiceEngine, "failure")
		f.deps.logger().Warn("engine token request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("mode", f.cfg.Mode),
		)
		return nil, &model.UpstreamError{
			Service:   ServiceEngine,
			Operation: "token",
			Status:    resp.StatusCode,
			Body:      string(body),
			Message:   upstreamMessage(body),
		}
	}

	access, ok := ExtractToken(body)
	if !ok {
		f.deps.Metrics.RecordTokenAcquisition(ServiceEngine, "failure")
		return nil, &model.UpstreamError{
			Service:   ServiceEngine,
			Operation: "token",
			Status:    resp.StatusCode,
			Body:      string(body),
			Message:   "token response did not contain a token",
		}
	}

	f.deps.Metrics.RecordTokenAcquisition(ServiceEngine, "success")
	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
		Expiry:      tokenExpiry(body, access, f.cfg.DefaultTTL, f.now()),
	}, nil
}

// offerTokenError maps an oauth2 retrieval failure to an upstream error.
func offerTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &model.UpstreamError{
			Service:   ServiceOffers,
			Operation: "token",
			Status:    re.Response.StatusCode,
			Body:      string(re.Body),
			Message:   upstreamMessage(re.Body),
		}
	}
	if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return model.NewUpstreamTimeoutError(ServiceOffers)
	}
	if isConnectionError(err) {
		return model.NewUpstreamUnavailableError(ServiceOffers)
	}
	return fmt.Errorf("offers token: %w", err)
}
