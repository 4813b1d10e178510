package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/internal/gateway"
	"github.com/pitabwire/journeybff/internal/journey"
	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/internal/offers"
	"github.com/pitabwire/journeybff/internal/openapi"
	"github.com/pitabwire/journeybff/internal/override"
	"github.com/pitabwire/journeybff/internal/processor"
	"github.com/pitabwire/journeybff/internal/resolver"
	"github.com/pitabwire/journeybff/internal/transport"
)

// app is the wired BFF: the override registry it reloads and the handler
// it serves.
type app struct {
	overrides *override.Registry
	handler   http.Handler
}

// wire builds every component from cfg. The override document must load;
// the upstreams are only contacted on demand.
func wire(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)
	tracer := observability.NewTracer(logger, cfg.Observability)

	contract, err := openapi.LoadFacade(ctx)
	if err != nil {
		return nil, fmt.Errorf("facade contract: %w", err)
	}

	loader, err := override.NewLoader(cfg.Overrides.ValidateSchema)
	if err != nil {
		return nil, fmt.Errorf("override loader: %w", err)
	}
	overrides := override.NewRegistry(loader, cfg.Overrides.File, logger, metrics)
	if err := overrides.Reload(); err != nil {
		return nil, fmt.Errorf("override document: %w", err)
	}

	deps := gateway.Deps{Logger: logger, Metrics: metrics, Tracer: tracer}
	engine := gateway.NewEngine(ctx, cfg.Engine, deps)
	offerAPI := gateway.NewOffers(ctx, cfg.Offers, deps)

	pipeline := resolver.NewPipeline(
		engine,
		overrides,
		processor.NewOrchestrator(engine, logger, metrics),
		cfg.Engine.JourneyName,
		cfg.Resolver,
		resolver.Deps{Logger: logger, Metrics: metrics, Tracer: tracer},
	)

	handler := transport.NewRouter(transport.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Journey:   journey.NewService(engine, pipeline, logger, metrics),
		Offers:    offers.NewService(offerAPI, cfg.Offers, logger, metrics),
		Validator: contract,
		ReadyHandler: observability.HandleReady(observability.ReadinessChecks{
			OverridesLoaded: overrides.Loaded,
			Upstreams: map[string]observability.HealthChecker{
				gateway.ServiceEngine: engine.Breaker(),
				gateway.ServiceOffers: offerAPI.Breaker(),
			},
		}),
		MetricsHandler: observability.Handler(),
	})

	return &app{overrides: overrides, handler: handler}, nil
}
