// Package processor invokes the custom-processor actions declared on a step
// and folds their responses into the step's enrichment.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/model"
)

// ActionInvoker runs one step action on the engine.
type ActionInvoker interface {
	InvokeStepAction(ctx context.Context, token, actionID, externalID string) (json.RawMessage, error)
}

// Orchestrator runs custom-processor actions in declaration order.
type Orchestrator struct {
	invoker ActionInvoker
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(invoker ActionInvoker, logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{invoker: invoker, logger: logger, metrics: metrics}
}

// RunActions invokes every custom-processor action of step once and returns
// the folded enrichment. A step without such actions yields an empty
// enrichment and makes no calls. The first failing action aborts the run.
func (o *Orchestrator) RunActions(ctx context.Context, token string, step *model.Step) (model.Enrichment, error) {
	acc := model.Enrichment{AvailableOffers: []json.RawMessage{}}
	if step == nil {
		return acc, nil
	}
	actions := step.CustomProcessorActions()
	if len(actions) == 0 {
		return acc, nil
	}
	if strings.TrimSpace(step.ExternalID) == "" {
		return acc, model.NewCorrelationError(fmt.Sprintf(
			"step %q declares custom-processor actions but carries no instance id", step.JourneyStep))
	}

	ctx, span := observability.StartSpan(ctx, "processor.run_actions",
		observability.AttrExternalID.String(step.ExternalID),
		observability.AttrJourneyStep.String(step.JourneyStep),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	logger := observability.RequestLogger(ctx, o.logger)
	for _, action := range actions {
		observability.SpanEvent(ctx, "custom_processor.invoke", observability.AttrActionID.String(action.ID))
		var raw json.RawMessage
		raw, err = o.invoker.InvokeStepAction(ctx, token, action.ID, step.ExternalID)
		if err != nil {
			o.metrics.RecordCustomProcessorCall("failure")
			logger.Warn("custom processor action failed",
				zap.String("action_id", action.ID),
				zap.String("journey_step", step.JourneyStep),
				zap.Error(err),
			)
			return acc, fmt.Errorf("custom processor %s: %w", action.ID, err)
		}
		o.metrics.RecordCustomProcessorCall("success")
		Fold(&acc, raw)
	}
	return acc, nil
}

// Fold merges the actionResponse of one action response body into acc.
// Offers concatenate; esignUrl keeps the last non-empty string; the persona
// and payment objects keep the last well-formed object.
func Fold(acc *model.Enrichment, body []byte) {
	resp := actionResponse(body)
	if !resp.IsObject() {
		return
	}
	if offers := resp.Get("availableOffers"); offers.IsArray() {
		for _, o := range offers.Array() {
			acc.AvailableOffers = append(acc.AvailableOffers, json.RawMessage(o.Raw))
		}
	}
	if url := resp.Get("esignUrl"); url.Type == gjson.String && strings.TrimSpace(url.String()) != "" {
		acc.EsignURL = url.String()
	}
	if persona := objectMember(resp, "personaResponse"); persona != nil {
		acc.PersonaResponse = persona
	}
	if stripe := objectMember(resp, "stripePaymentDetails"); stripe != nil {
		acc.StripePaymentDetails = stripe
	}
}

// actionResponse returns the actionResponse member, decoding it when the
// engine sends it as a JSON string.
func actionResponse(body []byte) gjson.Result {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}
	}
	r := gjson.GetBytes(body, "actionResponse")
	if r.Type == gjson.String && gjson.Valid(r.String()) {
		return gjson.Parse(r.String())
	}
	return r
}

// objectMember returns the named member when it is an object, also when it
// arrives as a string holding an object.
func objectMember(parent gjson.Result, name string) json.RawMessage {
	r := parent.Get(name)
	if r.Type == gjson.String && gjson.Valid(r.String()) {
		r = gjson.Parse(r.String())
	}
	if !r.IsObject() {
		return nil
	}
	return json.RawMessage(r.Raw)
}
