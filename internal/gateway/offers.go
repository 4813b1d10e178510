package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/model"
)

// offerListPaths are the members that may wrap the search result array.
var offerListPaths = []string{"offers", "items", "data", "data.offers", "data.items"}

// Offers is the product-offer API client. It always authenticates with its
// own client-credential pair.
type Offers struct {
	cfg    config.OffersConfig
	up     *upstream
	tokens *tokenProvider
}

// NewOffers builds the offer API client. Tokens are cached until expiry and
// fetched on base.
func NewOffers(base context.Context, cfg config.OffersConfig, deps Deps) *Offers {
	up := newUpstream(ServiceOffers, cfg.BaseURL, cfg.LocaleParam, cfg.Locale, cfg.Timeout, cfg.CircuitBreaker, deps)
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	o := &Offers{cfg: cfg, up: up}
	o.tokens = newTokenProvider(base, func(ctx context.Context) (*oauth2.Token, error) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, up.client)
		tok, err := cc.Token(ctx)
		if err != nil {
			deps.Metrics.RecordTokenAcquisition(ServiceOffers, "failure")
			return nil, offerTokenError(err)
		}
		deps.Metrics.RecordTokenAcquisition(ServiceOffers, "success")
		return tok, nil
	}, true)
	return o
}

// Breaker exposes the offer API circuit breaker for readiness checks.
func (o *Offers) Breaker() *CircuitBreaker {
	return o.up.breaker
}

// Token returns a bearer token for the offer API.
func (o *Offers) Token(ctx context.Context) (string, error) {
	if missing := o.cfg.Missing(); len(missing) > 0 {
		return "", model.NewConfigurationError(missing)
	}
	return o.tokens.token(ctx)
}

// FetchOffers searches available offers. The result keeps upstream order.
func (o *Offers) FetchOffers(ctx context.Context, token string, query model.OfferQuery) ([]model.Offer, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("offers search: marshal query: %w", err)
	}
	body, err := o.up.do(ctx, call{
		operation: "search",
		method:    http.MethodPost,
		path:      o.cfg.Paths.Search,
		token:     token,
		body:      payload,
	})
	if err != nil {
		return nil, err
	}
	return decodeOfferList(body)
}

// FetchOfferDetails returns one offer with its cards.
func (o *Offers) FetchOfferDetails(ctx context.Context, token, offerID string) (*model.Offer, error) {
	body, err := o.up.do(ctx, call{
		operation: "details",
		method:    http.MethodGet,
		path:      expandPath(o.cfg.Paths.Details, map[string]string{"offerId": offerID}),
		token:     token,
	})
	if err != nil {
		return nil, err
	}
	raw := body
	if data := gjson.GetBytes(body, "data"); data.IsObject() {
		raw = []byte(data.Raw)
	}
	var offer model.Offer
	if err := json.Unmarshal(raw, &offer); err != nil {
		return nil, fmt.Errorf("offers details %s: decode: %w", offerID, err)
	}
	if offer.OfferID == "" {
		offer.OfferID = offerID
	}
	return &offer, nil
}

// decodeOfferList accepts a bare array or an object wrapping one.
func decodeOfferList(body []byte) ([]model.Offer, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("offers search: response is not JSON")
	}
	parsed := gjson.ParseBytes(body)
	list := parsed
	if !parsed.IsArray() {
		list = gjson.Result{}
		for _, path := range offerListPaths {
			if r := parsed.Get(path); r.IsArray() {
				list = r
				break
			}
		}
	}
	if !list.IsArray() {
		return []model.Offer{}, nil
	}
	offers := make([]model.Offer, 0, len(list.Array()))
	if err := json.Unmarshal([]byte(list.Raw), &offers); err != nil {
		return nil, fmt.Errorf("offers search: decode: %w", err)
	}
	return offers, nil
}
