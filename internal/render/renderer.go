package render

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/pitabwire/journeybff/model"
)

// SelectedOfferAttribute is the attribute the chosen offer card is submitted
// under on an offer step.
const SelectedOfferAttribute = "selectedOfferIds"

const defaultMaxAutoAdvance = 10

// Navigator is the journey facade as seen by the renderer.
type Navigator interface {
	Init(ctx context.Context) (*model.InitResult, error)
	LoadStep(ctx context.Context, externalID string) (*model.Step, error)
	Advance(ctx context.Context, externalID string, values []model.AttributeValue, dir model.Direction) (*Landing, error)
	ViewItem(ctx context.Context, externalID, journeyStep string) (json.RawMessage, error)
	AvailableOffers(ctx context.Context, query model.OfferQuery) (*model.OfferList, error)
}

// Landing is where a navigation ended up.
type Landing struct {
	ExternalID string      `json:"externalId"`
	Step       *model.Step `json:"step"`
}

// Options tunes a Renderer.
type Options struct {
	// OfferQuery filters the offer search on offer steps whose enrichment
	// carries no offers.
	OfferQuery model.OfferQuery
	// MaxAutoAdvance caps consecutive processing steps advanced in one call.
	MaxAutoAdvance int
}

// Renderer turns resolved steps into views and drives navigation for a
// Session.
type Renderer struct {
	nav    Navigator
	opts   Options
	logger *zap.Logger
}

// NewRenderer creates a Renderer over nav.
func NewRenderer(nav Navigator, opts Options, logger *zap.Logger) *Renderer {
	if opts.MaxAutoAdvance <= 0 {
		opts.MaxAutoAdvance = defaultMaxAutoAdvance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{nav: nav, opts: opts, logger: logger}
}

// Start begins a new instance, discarding whatever the session held.
func (r *Renderer) Start(ctx context.Context, s *Session) (View, error) {
	return r.guarded(s, func(seq uint64) error {
		s.reset()
		result, err := r.nav.Init(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.metadata = result.Metadata
		s.mu.Unlock()
		return r.land(ctx, s, seq, result.ExternalID, result.Step)
	})
}

// Restart is Start: a restart never reuses the previous instance.
func (r *Renderer) Restart(ctx context.Context, s *Session) (View, error) {
	return r.Start(ctx, s)
}

// Resume reloads the current step of the session's instance, or starts one
// when the session has none.
func (r *Renderer) Resume(ctx context.Context, s *Session) (View, error) {
	externalID := s.ExternalID()
	if externalID == "" {
		return r.Start(ctx, s)
	}
	return r.guarded(s, func(seq uint64) error {
		step, err := r.nav.LoadStep(ctx, externalID)
		if err != nil {
			return err
		}
		return r.land(ctx, s, seq, externalID, step)
	})
}

// Next submits the current values and moves forward.
func (r *Renderer) Next(ctx context.Context, s *Session) (View, error) {
	return r.guarded(s, func(seq uint64) error {
		return r.advance(ctx, s, seq, model.DirectionNext)
	})
}

// Previous submits the current values and moves back. Required fields and
// the offer selection are not enforced.
func (r *Renderer) Previous(ctx context.Context, s *Session) (View, error) {
	return r.guarded(s, func(seq uint64) error {
		return r.advance(ctx, s, seq, model.DirectionPrevious)
	})
}

// SetValue records edited input for a visible field of the current step.
// Input that does not convert is kept and reported as a field error.
func (r *Renderer) SetValue(s *Session, name, input string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step == nil {
		return model.NewBadRequestError("no active step")
	}
	for _, f := range s.step.VisibleFields() {
		if f.Name != name {
			continue
		}
		if f.IsReadOnly {
			return model.NewBadRequestError(fmt.Sprintf("field %s is read-only", name))
		}
		s.inputs[name] = input
		if _, err := ToWire(f, input); err != nil {
			s.fieldErrors[name] = err.Error()
			return model.NewValidationError([]model.FieldError{{Field: name, Code: "invalid", Message: err.Error()}})
		}
		delete(s.fieldErrors, name)
		return nil
	}
	return model.NewBadRequestError(fmt.Sprintf("step has no field %s", name))
}

// SelectOffer stores the selection on an offer step. id matches an offer id
// or, failing that, a card id.
func (r *Renderer) SelectOffer(s *Session, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.classification.Kind != KindOffers {
		return model.NewBadRequestError("current step does not offer a selection")
	}
	if findOffer(s.offers, id) < 0 {
		return model.NewBadRequestError(fmt.Sprintf("offer %s is not available", id))
	}
	s.selectedOfferID = id
	return nil
}

// RefreshOffers reloads the offer list of the current offer step.
func (r *Renderer) RefreshOffers(ctx context.Context, s *Session) (View, error) {
	s.mu.Lock()
	seq, step, kind := s.appliedSeq, s.step, s.classification.Kind
	s.mu.Unlock()
	if step == nil || kind != KindOffers {
		return r.View(s), nil
	}
	err := r.loadOffers(ctx, s, seq, step)
	return r.View(s), err
}

// ViewItem fetches the read-only snapshot of a named step of the session's
// instance.
func (r *Renderer) ViewItem(ctx context.Context, s *Session, journeyStep string) (json.RawMessage, error) {
	externalID := s.ExternalID()
	if externalID == "" {
		return nil, model.NewBadRequestError("journey has not been started")
	}
	return r.nav.ViewItem(ctx, externalID, journeyStep)
}

// WidgetEventKind is the outcome an embedded widget reports.
type WidgetEventKind string

const (
	WidgetCompleted WidgetEventKind = "completed"
	WidgetCancelled WidgetEventKind = "cancelled"
	WidgetFailed    WidgetEventKind = "failed"
)

// WidgetEvent is a completion message from an embedded widget. Key is the
// StepKey of the step that hosted the widget.
type WidgetEvent struct {
	Kind WidgetEventKind `json:"kind"`
	Key  string          `json:"key"`
}

// HandleWidgetEvent reacts to a widget outcome. Completion advances the
// journey once per step and instance; repeated or stale deliveries are
// ignored.
func (r *Renderer) HandleWidgetEvent(ctx context.Context, s *Session, ev WidgetEvent) (View, error) {
	s.mu.Lock()
	widget := s.classification.IsWidget()
	key := ""
	if s.step != nil {
		key = StepKey(s.externalID, s.step.JourneyStep)
	}
	s.mu.Unlock()

	if !widget || ev.Key != key {
		r.logger.Debug("ignoring widget event for inactive step", zap.String("key", ev.Key))
		return r.View(s), nil
	}
	switch ev.Kind {
	case WidgetCompleted:
	case WidgetCancelled:
		s.setNotice("The step was cancelled. You can try again.")
		return r.View(s), nil
	case WidgetFailed:
		s.setNotice("The step could not be completed. You can try again.")
		return r.View(s), nil
	default:
		return r.View(s), model.NewBadRequestError(fmt.Sprintf("unknown widget event %q", ev.Kind))
	}

	return r.guarded(s, func(seq uint64) error {
		if !s.markWidgetHandled(key) {
			return nil
		}
		if err := r.advance(ctx, s, seq, model.DirectionNext); err != nil {
			s.unmarkWidgetHandled(key)
			return err
		}
		return nil
	})
}

// guarded runs fn while holding the session's in-flight slot. A call made
// while another is in flight does nothing.
func (r *Renderer) guarded(s *Session, fn func(seq uint64) error) (View, error) {
	seq, ok := s.begin()
	if !ok {
		r.logger.Debug("navigation already in flight", zap.String("session", s.Key()))
		return r.View(s), nil
	}
	err := func() error {
		defer s.end()
		return fn(seq)
	}()
	return r.View(s), err
}

func (r *Renderer) advance(ctx context.Context, s *Session, seq uint64, dir model.Direction) error {
	externalID, values, err := r.submission(s, dir)
	if err != nil {
		return err
	}
	landing, err := r.nav.Advance(ctx, externalID, values, dir)
	if err != nil {
		return err
	}
	if landing == nil || landing.Step == nil {
		return fmt.Errorf("%s on %s returned no step", dir, externalID)
	}
	if landing.ExternalID != "" {
		externalID = landing.ExternalID
	}
	return r.land(ctx, s, seq, externalID, landing.Step)
}

// land applies a step and follows up on it: offer steps load their offers,
// processing steps advance on their own once per step and instance.
func (r *Renderer) land(ctx context.Context, s *Session, seq uint64, externalID string, step *model.Step) error {
	for hops := 0; ; hops++ {
		if !s.apply(seq, externalID, step) {
			r.logger.Debug("discarding superseded step", zap.Uint64("seq", seq))
			return nil
		}
		switch Classify(step).Kind {
		case KindOffers:
			return r.loadOffers(ctx, s, seq, step)
		case KindProcessing:
		default:
			return nil
		}

		if !s.markAutoAdvanced(StepKey(externalID, step.JourneyStep)) {
			return nil
		}
		if hops >= r.opts.MaxAutoAdvance {
			return fmt.Errorf("journey did not leave processing steps after %d automatic advances", hops)
		}
		r.logger.Debug("auto-advancing processing step",
			zap.String("external_id", externalID),
			zap.String("journey_step", step.JourneyStep),
		)
		landing, err := r.nav.Advance(ctx, externalID, []model.AttributeValue{}, model.DirectionNext)
		if err != nil {
			return err
		}
		if landing == nil || landing.Step == nil {
			return fmt.Errorf("next on %s returned no step", externalID)
		}
		if landing.ExternalID != "" {
			externalID = landing.ExternalID
		}
		step = landing.Step
		seq = s.issue()
	}
}

func (r *Renderer) loadOffers(ctx context.Context, s *Session, seq uint64, step *model.Step) error {
	offers := enrichmentOffers(step.AvailableOffers)
	if offers == nil {
		list, err := r.nav.AvailableOffers(ctx, r.opts.OfferQuery)
		if err != nil {
			return err
		}
		offers = make([]OfferOption, 0, len(list.Cards))
		for _, c := range list.Cards {
			payload, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("encode offer card: %w", err)
			}
			offers = append(offers, OfferOption{Card: c, Payload: payload})
		}
	}
	if !s.setOffers(seq, offers) {
		r.logger.Debug("discarding superseded offer list", zap.Uint64("seq", seq))
	}
	return nil
}

// submission builds the values of the current step: one entry per visible
// field, edited input converted and unedited fields echoing the engine's
// value. Moving forward also enforces required fields and the offer
// selection.
func (r *Renderer) submission(s *Session, dir model.Direction) (string, []model.AttributeValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.externalID == "" || s.step == nil {
		return "", nil, model.NewBadRequestError("journey has not been started")
	}
	forward := dir == model.DirectionNext

	var problems []model.FieldError
	values := []model.AttributeValue{}
	for _, f := range s.step.VisibleFields() {
		value := InitialValue(f)
		if input, edited := s.inputs[f.Name]; edited {
			v, err := ToWire(f, input)
			switch {
			case err == nil:
				value = v
			case forward:
				problems = append(problems, model.FieldError{Field: f.Name, Code: "invalid", Message: err.Error()})
			}
		}
		if forward && f.Required() && !f.IsReadOnly && blank(value) {
			problems = append(problems, model.FieldError{
				Field: f.Name, Code: "required", Message: fieldLabel(f) + " is required",
			})
		}
		values = append(values, model.AttributeValue{Attribute: f.Name, Value: value})
	}

	if forward && s.classification.Kind == KindOffers && len(s.offers) > 0 {
		i := findOffer(s.offers, s.selectedOfferID)
		if s.selectedOfferID == "" || i < 0 {
			problems = append(problems, model.FieldError{
				Field: SelectedOfferAttribute, Code: "required", Message: "select an offer to continue",
			})
		} else {
			values = setAttribute(values, SelectedOfferAttribute, string(s.offers[i].Payload))
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			s.fieldErrors[p.Field] = p.Message
		}
		return "", nil, model.NewValidationError(problems)
	}
	return s.externalID, values, nil
}

func setAttribute(values []model.AttributeValue, attribute string, value any) []model.AttributeValue {
	for i := range values {
		if values[i].Attribute == attribute {
			values[i].Value = value
			return values
		}
	}
	return append(values, model.AttributeValue{Attribute: attribute, Value: value})
}

func blank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}

// enrichmentOffers reads offers delivered inside the step. Items may be
// whole offers with cards or single cards. nil means the step carried none.
func enrichmentOffers(items []json.RawMessage) []OfferOption {
	var out []OfferOption
	for _, item := range items {
		obj := gjson.ParseBytes(item)
		if !obj.IsObject() {
			continue
		}
		if obj.Get("cards").IsArray() {
			var offer model.Offer
			if err := json.Unmarshal(item, &offer); err != nil {
				continue
			}
			for _, c := range offer.Cards {
				c.OfferID, c.OfferName, c.OfferCode = offer.OfferID, offer.OfferName, offer.OfferCode
				payload, err := json.Marshal(c)
				if err != nil {
					continue
				}
				out = append(out, OfferOption{Card: c, Payload: payload})
			}
			continue
		}
		var card model.OfferCard
		if err := json.Unmarshal(item, &card); err != nil || (card.OfferID == "" && card.CardID == "") {
			continue
		}
		out = append(out, OfferOption{Card: card, Payload: item})
	}
	return out
}

func fieldLabel(f model.Field) string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Name
}
