// Package offers serves the flattened available-offer list. It is
// independent of any journey instance.
package offers

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/model"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheEntries = 256
	defaultConcurrency  = 8
)

// API is the part of the offer API client the service drives.
type API interface {
	Token(ctx context.Context) (string, error)
	FetchOffers(ctx context.Context, token string, query model.OfferQuery) ([]model.Offer, error)
	FetchOfferDetails(ctx context.Context, token, offerID string) (*model.Offer, error)
}

// Service lists available offers with their cards.
type Service struct {
	api         API
	cache       *expirable.LRU[string, model.Offer]
	concurrency int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewService creates a Service. A negative cache TTL disables detail
// caching; zero selects the default.
func NewService(api API, cfg config.OffersConfig, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		api:         api,
		concurrency: cfg.DetailConcurrency,
		logger:      logger,
		metrics:     metrics,
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}
	if cfg.DetailCache.TTL >= 0 {
		ttl := cfg.DetailCache.TTL
		if ttl == 0 {
			ttl = defaultCacheTTL
		}
		size := cfg.DetailCache.MaxEntries
		if size <= 0 {
			size = defaultCacheEntries
		}
		s.cache = expirable.NewLRU[string, model.Offer](size, nil, ttl)
	}
	return s
}

// Available searches offers and fetches the details of each one
// concurrently. Offers and cards keep search order; each card carries the
// identity of its offer. A failed detail fetch fails the whole request.
func (s *Service) Available(ctx context.Context, query model.OfferQuery) (list *model.OfferList, err error) {
	ctx, span := observability.StartSpan(ctx, "offers.available")
	defer func() { observability.EndSpanWithError(span, err) }()

	token, err := s.api.Token(ctx)
	if err != nil {
		return nil, err
	}
	found, err := s.api.FetchOffers(ctx, token, query)
	if err != nil {
		return nil, err
	}

	details := make([]model.Offer, len(found))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, offer := range found {
		if offer.OfferID == "" {
			details[i] = offer
			continue
		}
		g.Go(func() error {
			d, err := s.details(gctx, token, offer.OfferID)
			if err != nil {
				return err
			}
			details[i] = merge(offer, d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	list = flatten(details)
	s.metrics.RecordOffersReturned(len(list.Offers))
	observability.RequestLogger(ctx, s.logger).Debug("offers listed",
		zap.Int("offers", len(list.Offers)),
		zap.Int("cards", len(list.Cards)),
	)
	return list, nil
}

func (s *Service) details(ctx context.Context, token, offerID string) (model.Offer, error) {
	if s.cache != nil {
		d, ok := s.cache.Get(offerID)
		observability.SpanEvent(ctx, "offer.details",
			observability.AttrOfferID.String(offerID),
			observability.AttrCacheHit.Bool(ok),
		)
		if ok {
			s.metrics.RecordOfferDetailCacheHit()
			return d, nil
		}
		s.metrics.RecordOfferDetailCacheMiss()
	}
	d, err := s.api.FetchOfferDetails(ctx, token, offerID)
	if err != nil {
		return model.Offer{}, err
	}
	if s.cache != nil {
		s.cache.Add(offerID, *d)
	}
	return *d, nil
}

// merge fills the detail's identity from the search entry where the detail
// leaves it blank.
func merge(entry, detail model.Offer) model.Offer {
	out := detail
	out.OfferID = entry.OfferID
	if out.OfferName == "" {
		out.OfferName = entry.OfferName
	}
	if out.OfferCode == "" {
		out.OfferCode = entry.OfferCode
	}
	if len(out.Cards) == 0 {
		out.Cards = entry.Cards
	}
	return out
}

func flatten(offers []model.Offer) *model.OfferList {
	list := &model.OfferList{Offers: offers, Cards: []model.OfferCard{}}
	if list.Offers == nil {
		list.Offers = []model.Offer{}
	}
	for _, o := range offers {
		for _, c := range o.Cards {
			c.OfferID = o.OfferID
			c.OfferName = o.OfferName
			c.OfferCode = o.OfferCode
			list.Cards = append(list.Cards, c)
		}
	}
	return list
}
