package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Journey   JourneyService
	Offers    OfferService
	Validator RequestValidator

	HealthHandler  http.Handler
	ReadyHandler   http.Handler
	MetricsHandler http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints skip the
// request-scoped layers.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(WithLogger(logger))

	r.Method(http.MethodGet, "/api/health", orDefault(deps.HealthHandler, observability.HandleHealth()))
	if deps.ReadyHandler != nil {
		r.Method(http.MethodGet, "/api/ready", deps.ReadyHandler)
	}
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, orDefault(deps.MetricsHandler, observability.Handler()))
	}

	var validator RequestValidator
	if deps.Config.Server.ValidateRequests {
		validator = deps.Validator
	}

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		r.Use(ValidateRequests(validator))

		if deps.Journey != nil {
			r.Post("/api/journey/init", handleInit(deps.Journey))
			r.Post("/api/journey/load-step", handleLoadStep(deps.Journey))
			r.Post("/api/journey/next", handleAdvance(deps.Journey, model.DirectionNext))
			r.Post("/api/journey/previous", handleAdvance(deps.Journey, model.DirectionPrevious))
			r.Post("/api/journey/view-item", handleViewItem(deps.Journey))
		}
		if deps.Offers != nil {
			r.Post("/api/offers/available", handleAvailableOffers(deps.Offers))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, model.NewNotFoundError("no such route"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, model.NewMethodNotAllowedError(r.Method))
	})

	return r
}

func orDefault(h, fallback http.Handler) http.Handler {
	if h != nil {
		return h
	}
	return fallback
}
