// Package journey implements the journey navigation operations: init,
// load-step, next/previous, and view-item.
package journey

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/journeybff/internal/gateway"
	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/model"
)

// Engine is the part of the engine client the service drives.
type Engine interface {
	Token(ctx context.Context) (string, error)
	FetchMetadata(ctx context.Context, token string) (json.RawMessage, error)
	StartInstance(ctx context.Context, token string) (string, error)
	Advance(ctx context.Context, token, externalID string, values []model.AttributeValue, dir model.Direction) (*gateway.NavigationResult, error)
	FetchViewItem(ctx context.Context, token, externalID, journeyStep string) (json.RawMessage, error)
}

// StepResolver resolves the enriched step of an instance.
type StepResolver interface {
	Resolve(ctx context.Context, token, externalID string) (*model.Step, error)
	ResolveAfterNavigate(ctx context.Context, token, externalID string) (*model.Step, error)
}

// Service runs journey operations. It holds no per-instance state; the
// instance id travels with every call.
type Service struct {
	engine   Engine
	resolver StepResolver
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewService creates a Service.
func NewService(engine Engine, resolver StepResolver, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, resolver: resolver, logger: logger, metrics: metrics}
}

// Init starts a brand-new instance and resolves its first step.
func (s *Service) Init(ctx context.Context) (result *model.InitResult, err error) {
	defer func() { s.record("init", err) }()

	token, err := s.engine.Token(ctx)
	if err != nil {
		return nil, err
	}
	metadata, err := s.engine.FetchMetadata(ctx, token)
	if err != nil {
		return nil, err
	}
	externalID, err := s.engine.StartInstance(ctx, token)
	if err != nil {
		return nil, err
	}
	step, err := s.resolver.Resolve(ctx, token, externalID)
	if err != nil {
		return nil, err
	}

	observability.RequestLogger(ctx, s.logger).Info("journey instance started",
		zap.String("external_id", externalID),
		zap.String("journey_step", step.JourneyStep),
	)
	return &model.InitResult{ExternalID: externalID, Metadata: metadata, Step: step}, nil
}

// LoadStep resolves the current step of a caller-supplied instance without
// retrying.
func (s *Service) LoadStep(ctx context.Context, externalID string) (step *model.Step, err error) {
	defer func() { s.record("load_step", err) }()

	if err = requireExternalID(externalID); err != nil {
		return nil, err
	}
	token, err := s.engine.Token(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, token, externalID)
}

// Advance submits values in direction and resolves the step the instance
// lands on. The engine may answer with a new instance id; otherwise the
// caller's id is kept.
func (s *Service) Advance(ctx context.Context, externalID string, values []model.AttributeValue, dir model.Direction) (result *AdvanceResult, err error) {
	defer func() { s.record(string(dir), err) }()

	if err = requireExternalID(externalID); err != nil {
		return nil, err
	}
	ctx, span := observability.StartSpan(ctx, "journey.advance",
		observability.AttrExternalID.String(externalID),
		observability.AttrDirection.String(string(dir)),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	if !dir.Valid() {
		return nil, model.NewBadRequestError("direction must be next or previous")
	}
	token, err := s.engine.Token(ctx)
	if err != nil {
		return nil, err
	}
	nav, err := s.engine.Advance(ctx, token, externalID, values, dir)
	if err != nil {
		return nil, err
	}

	target := nav.ExternalID
	if target == "" {
		target = externalID
	}
	step, err := s.resolver.ResolveAfterNavigate(ctx, token, target)
	if err != nil {
		return nil, err
	}

	if target != externalID {
		observability.RequestLogger(ctx, s.logger).Info("engine moved navigation to a new instance",
			zap.String("from", externalID),
			zap.String("to", target),
		)
	}
	return &AdvanceResult{ExternalID: target, Navigation: nav.Raw, Step: step}, nil
}

// ViewItem returns a read-only snapshot of a named step of an instance.
func (s *Service) ViewItem(ctx context.Context, externalID, journeyStep string) (snapshot json.RawMessage, err error) {
	defer func() { s.record("view_item", err) }()

	if err = requireExternalID(externalID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(journeyStep) == "" {
		return nil, model.NewBadRequestError("journeyStep is required")
	}
	token, err := s.engine.Token(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.FetchViewItem(ctx, token, externalID, journeyStep)
}

func (s *Service) record(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	s.metrics.RecordNavigation(operation, status)
}

func requireExternalID(externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return model.NewBadRequestError("externalId is required")
	}
	return nil
}
