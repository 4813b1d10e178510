// Package resolver composes step loading, override merging, and
// custom-processor enrichment into the single resolve-step operation every
// journey endpoint uses.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/model"
)

// StepLoader fetches the current step of an instance.
type StepLoader interface {
	LoadStep(ctx context.Context, token, externalID string) (*model.Step, error)
}

// OverrideResolver merges configured field overrides into a step.
type OverrideResolver interface {
	Resolve(step *model.Step, journeyName string) *model.Step
}

// ActionRunner invokes a step's custom-processor actions.
type ActionRunner interface {
	RunActions(ctx context.Context, token string, step *model.Step) (model.Enrichment, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Deps carries the optional ambient collaborators of a Pipeline.
type Deps struct {
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Sleep   SleepFunc
}

// Pipeline resolves steps: load, apply overrides, run actions.
type Pipeline struct {
	loader      StepLoader
	overrides   OverrideResolver
	actions     ActionRunner
	journeyName string
	maxAttempts int
	delay       time.Duration
	sleep       SleepFunc
	logger      *zap.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// NewPipeline creates a Pipeline. cfg bounds the post-navigation retry.
func NewPipeline(loader StepLoader, overrides OverrideResolver, actions ActionRunner,
	journeyName string, cfg config.ResolverConfig, deps Deps) *Pipeline {
	p := &Pipeline{
		loader:      loader,
		overrides:   overrides,
		actions:     actions,
		journeyName: journeyName,
		maxAttempts: cfg.MaxAttempts,
		delay:       cfg.Delay,
		sleep:       deps.Sleep,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 1
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Resolve loads and enriches the step of externalID without retrying.
func (p *Pipeline) Resolve(ctx context.Context, token, externalID string) (*model.Step, error) {
	return p.resolve(ctx, token, externalID, 1)
}

// ResolveAfterNavigate is Resolve for an instance that was just advanced.
// A 404 carrying a message means the engine's query side has not caught up
// yet; such loads are retried up to the configured attempts with a fixed
// delay. Any other error is returned at once.
func (p *Pipeline) ResolveAfterNavigate(ctx context.Context, token, externalID string) (*model.Step, error) {
	return p.resolve(ctx, token, externalID, p.maxAttempts)
}

func (p *Pipeline) resolve(ctx context.Context, token, externalID string, attempts int) (step *model.Step, err error) {
	if externalID == "" {
		return nil, model.NewCorrelationError("no instance id to resolve a step for")
	}
	ctx, span := observability.StartSpan(ctx, "resolver.resolve_step",
		observability.AttrExternalID.String(externalID),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	step, err = p.load(ctx, token, externalID, attempts)
	if err != nil {
		return nil, err
	}
	// Actions and the caller address the instance by the id it was
	// loaded with.
	step.ExternalID = externalID
	span.SetAttributes(observability.AttrJourneyStep.String(step.JourneyStep))
	p.tracer.Step(ctx, "loaded", step)

	step = p.overrides.Resolve(step, p.journeyName)
	p.tracer.Step(ctx, "overridden", step)

	enrichment, err := p.actions.RunActions(ctx, token, step)
	if err != nil {
		return nil, err
	}
	if len(step.CustomProcessorActions()) == 0 {
		// Hand-offs the engine put on the payload itself stand.
		enrichment = step.Enrichment
	}
	if enrichment.AvailableOffers == nil {
		enrichment.AvailableOffers = []json.RawMessage{}
	}
	resolved := *step
	resolved.Enrichment = enrichment
	p.tracer.Step(ctx, "enriched", &resolved)
	return &resolved, nil
}

func (p *Pipeline) load(ctx context.Context, token, externalID string, attempts int) (*model.Step, error) {
	logger := observability.RequestLogger(ctx, p.logger)
	for attempt := 1; ; attempt++ {
		step, err := p.loader.LoadStep(ctx, token, externalID)
		if err == nil {
			return step, nil
		}
		if !model.IsTransientNotFound(err) {
			return nil, err
		}
		if attempt >= attempts {
			if attempts > 1 {
				p.metrics.RecordStepLoadExhausted()
				logger.Warn("step still not found after retries",
					zap.String("external_id", externalID),
					zap.Int("attempts", attempt),
				)
			}
			return nil, err
		}

		p.metrics.RecordStepLoadRetry()
		observability.SpanEvent(ctx, "step_load.retry", observability.AttrAttempt.Int(attempt))
		logger.Info("step not yet visible, retrying",
			zap.String("external_id", externalID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", p.delay),
			zap.Error(err),
		)
		if serr := p.sleep(ctx, p.delay); serr != nil {
			return nil, fmt.Errorf("step load retry: %w", serr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
