package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/journeybff/model"
)

type advanceCall struct {
	externalID string
	values     []model.AttributeValue
	dir        model.Direction
}

// fakeNavigator serves a scripted journey. Advance pops landings from
// script in order; an exhausted script repeats the last landing.
type fakeNavigator struct {
	mu sync.Mutex

	init      *model.InitResult
	initErr   error
	loadSteps map[string]*model.Step
	script    []*Landing
	advErr    error
	offers    *model.OfferList

	// gate, when set, blocks Advance until closed. entered receives once
	// per Advance call that reached the gate.
	gate    chan struct{}
	entered chan struct{}

	inits      int
	loads      []string
	advances   []advanceCall
	offerCalls int
	offerQuery model.OfferQuery
}

func (f *fakeNavigator) Init(context.Context) (*model.InitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	if f.initErr != nil {
		return nil, f.initErr
	}
	return f.init, nil
}

func (f *fakeNavigator) LoadStep(_ context.Context, externalID string) (*model.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, externalID)
	step, ok := f.loadSteps[externalID]
	if !ok {
		return nil, model.NewNotFoundError("no such instance")
	}
	return step, nil
}

func (f *fakeNavigator) Advance(_ context.Context, externalID string, values []model.AttributeValue, dir model.Direction) (*Landing, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advances = append(f.advances, advanceCall{externalID, values, dir})
	if f.advErr != nil {
		return nil, f.advErr
	}
	if len(f.script) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return next, nil
}

func (f *fakeNavigator) ViewItem(_ context.Context, externalID, journeyStep string) (json.RawMessage, error) {
	return json.RawMessage(fmt.Sprintf(`{"externalId":%q,"journeyStep":%q}`, externalID, journeyStep)), nil
}

func (f *fakeNavigator) AvailableOffers(_ context.Context, query model.OfferQuery) (*model.OfferList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offerCalls++
	f.offerQuery = query
	if f.offers == nil {
		return &model.OfferList{Offers: []model.Offer{}, Cards: []model.OfferCard{}}, nil
	}
	return f.offers, nil
}

func (f *fakeNavigator) advanceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.advances)
}

func twoOfferList() *model.OfferList {
	cards := []model.OfferCard{
		{CardID: "c1", CardTitle: "Classic", Benefits: []string{"no fee"}, OfferID: "o1", OfferName: "Loan A", OfferCode: "LA"},
		{CardID: "c2", CardTitle: "Premium", Benefits: []string{"cashback"}, OfferID: "o2", OfferName: "Loan B", OfferCode: "LB"},
	}
	return &model.OfferList{
		Offers: []model.Offer{
			{OfferID: "o1", OfferName: "Loan A", OfferCode: "LA", Cards: cards[:1]},
			{OfferID: "o2", OfferName: "Loan B", OfferCode: "LB", Cards: cards[1:]},
		},
		Cards: cards,
	}
}

func visible(b bool) *bool { return &b }

func formStep(name string, fields ...model.Field) *model.Step {
	return &model.Step{
		JourneyStep: name,
		Fields:      fields,
		Properties: model.StepProperties{
			NextButton:     model.ButtonProperties{Show: true, Label: "Continue"},
			PreviousButton: model.ButtonProperties{Show: true},
		},
	}
}

func newRenderer(nav Navigator) *Renderer {
	return NewRenderer(nav, Options{OfferQuery: model.OfferQuery{Product: "loan"}}, nil)
}

func TestRenderer_offerSelectionSubmitsSelectedCard(t *testing.T) {
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "ABC123", Step: formStep("Offers-1")},
		offers: twoOfferList(),
		script: []*Landing{{ExternalID: "ABC123", Step: formStep("Summary-2")}},
	}
	r := newRenderer(nav)
	s := NewSession("browser-1")

	view, err := r.Start(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, KindOffers, view.Kind)
	assert.Equal(t, "ABC123", view.ExternalID)
	require.Len(t, view.Offers, 2)
	assert.Equal(t, model.OfferQuery{Product: "loan"}, nav.offerQuery)

	require.NoError(t, r.SelectOffer(s, view.Offers[1].OfferID))
	assert.Equal(t, "o2", s.SelectedOfferID())

	view, err = r.Next(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Summary-2", view.Step.JourneyStep)

	require.Len(t, nav.advances, 1)
	call := nav.advances[0]
	assert.Equal(t, "ABC123", call.externalID)
	assert.Equal(t, model.DirectionNext, call.dir)
	require.Len(t, call.values, 1)
	assert.Equal(t, SelectedOfferAttribute, call.values[0].Attribute)

	raw, ok := call.values[0].Value.(string)
	require.True(t, ok, "selection must be submitted as a JSON string")
	var card model.OfferCard
	require.NoError(t, json.Unmarshal([]byte(raw), &card))
	assert.Equal(t, "c2", card.CardID)
	assert.Equal(t, "o2", card.OfferID)
	assert.Equal(t, "Loan B", card.OfferName)
}

func TestRenderer_resumeLoadsStoredInstance(t *testing.T) {
	nav := &fakeNavigator{
		loadSteps: map[string]*model.Step{"ABC123": formStep("Offers-1")},
		offers:    twoOfferList(),
	}
	r := newRenderer(nav)
	s := NewSession("")
	s.externalID = "ABC123"

	view, err := r.Resume(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC123"}, nav.loads)
	assert.Zero(t, nav.inits)
	assert.Equal(t, "Offers-1", view.Step.JourneyStep)
	assert.Len(t, view.Offers, 2)
}

func TestRenderer_resumeWithoutInstanceStarts(t *testing.T) {
	nav := &fakeNavigator{init: &model.InitResult{ExternalID: "N1", Step: formStep("Contact-1")}}
	r := newRenderer(nav)

	view, err := r.Resume(context.Background(), NewSession(""))
	require.NoError(t, err)
	assert.Equal(t, 1, nav.inits)
	assert.Equal(t, "N1", view.ExternalID)
}

func TestRenderer_nextOnOffersWithoutSelectionIsRejectedLocally(t *testing.T) {
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "ABC123", Step: formStep("Offers-1")},
		offers: twoOfferList(),
	}
	r := newRenderer(nav)
	s := NewSession("")
	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)

	view, err := r.Next(context.Background(), s)
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, model.ErrValidationError, env.Code)
	assert.Zero(t, nav.advanceCount())
	assert.Contains(t, view.Errors, SelectedOfferAttribute)
	assert.False(t, view.Busy)
}

func TestRenderer_emptyOfferListDoesNotRequireSelection(t *testing.T) {
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "X", Step: formStep("Offers-1")},
		script: []*Landing{{ExternalID: "X", Step: formStep("Next-2")}},
	}
	r := newRenderer(nav)
	s := NewSession("")
	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)

	_, err = r.Next(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, nav.advances, 1)
	assert.Empty(t, nav.advances[0].values)
}

func TestRenderer_refreshClearsVanishedSelection(t *testing.T) {
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "ABC123", Step: formStep("Offers-1")},
		offers: twoOfferList(),
	}
	r := newRenderer(nav)
	s := NewSession("")
	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)
	require.NoError(t, r.SelectOffer(s, "o2"))

	// Same list, the selection survives.
	_, err = r.RefreshOffers(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "o2", s.SelectedOfferID())

	list := twoOfferList()
	nav.offers = &model.OfferList{Offers: list.Offers[:1], Cards: list.Cards[:1]}
	view, err := r.RefreshOffers(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, s.SelectedOfferID())
	assert.Empty(t, view.SelectedOfferID)
	assert.Len(t, view.Offers, 1)
}

func TestRenderer_selectOfferRejectsUnknownID(t *testing.T) {
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "A", Step: formStep("Offers-1")},
		offers: twoOfferList(),
	}
	r := newRenderer(nav)
	s := NewSession("")
	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)

	assert.Error(t, r.SelectOffer(s, "o9"))
	require.NoError(t, r.SelectOffer(s, "c1"), "card ids are accepted too")
	assert.Equal(t, "c1", s.SelectedOfferID())
}

func TestRenderer_enrichmentOffersSkipSearch(t *testing.T) {
	step := formStep("Pick-3")
	step.AvailableOffers = []json.RawMessage{
		json.RawMessage(`{"offerId":"e1","offerName":"Inline","cards":[{"cardId":"k1","cardTitle":"One"}]}`),
		json.RawMessage(`{"offerId":"e2","cardId":"k2","cardTitle":"Two","extra":{"apr":9.5}}`),
		json.RawMessage(`"not an object"`),
	}
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "A", Step: step},
		script: []*Landing{{ExternalID: "A", Step: formStep("Done-4")}},
	}
	r := newRenderer(nav)
	s := NewSession("")

	view, err := r.Start(context.Background(), s)
	require.NoError(t, err)
	assert.Zero(t, nav.offerCalls)
	require.Len(t, view.Offers, 2)
	assert.Equal(t, "e1", view.Offers[0].OfferID)

	require.NoError(t, r.SelectOffer(s, "e2"))
	_, err = r.Next(context.Background(), s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"offerId":"e2","cardId":"k2","cardTitle":"Two","extra":{"apr":9.5}}`,
		nav.advances[0].values[0].Value.(string))
}

func TestRenderer_processingStepAutoAdvancesOncePerStep(t *testing.T) {
	scoring := &model.Step{JourneyStep: "Scoring-2", JourneyStepType: "action"}
	nav := &fakeNavigator{
		init:      &model.InitResult{ExternalID: "J1", Step: scoring},
		loadSteps: map[string]*model.Step{"J1": scoring},
		script:    []*Landing{{ExternalID: "J1", Step: formStep("Result-3")}},
	}
	r := newRenderer(nav)
	s := NewSession("")

	view, err := r.Start(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Result-3", view.Step.JourneyStep)
	require.Len(t, nav.advances, 1)
	assert.Equal(t, "J1", nav.advances[0].externalID)
	assert.Equal(t, model.DirectionNext, nav.advances[0].dir)
	assert.NotNil(t, nav.advances[0].values)
	assert.Empty(t, nav.advances[0].values)

	// Landing on the same step of the same instance again does not advance.
	view, err = r.Resume(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, KindProcessing, view.Kind)
	assert.False(t, view.ShowNext)
	assert.Equal(t, 1, nav.advanceCount())
}

func TestRenderer_autoAdvanceFollowsNewInstanceID(t *testing.T) {
	nav := &fakeNavigator{
		init: &model.InitResult{ExternalID: "J1", Step: &model.Step{JourneyStep: "Check-1", JourneyStepType: "action"}},
		script: []*Landing{
			{ExternalID: "J2", Step: &model.Step{JourneyStep: "Check-2", JourneyStepType: "action"}},
			{ExternalID: "", Step: formStep("Form-3")},
		},
	}
	r := newRenderer(nav)

	view, err := r.Start(context.Background(), NewSession(""))
	require.NoError(t, err)
	require.Len(t, nav.advances, 2)
	assert.Equal(t, "J1", nav.advances[0].externalID)
	assert.Equal(t, "J2", nav.advances[1].externalID)
	assert.Equal(t, "J2", view.ExternalID)
	assert.Equal(t, "Form-3", view.Step.JourneyStep)
}

func TestRenderer_autoAdvanceIsCapped(t *testing.T) {
	var script []*Landing
	for i := range 10 {
		script = append(script, &Landing{ExternalID: "J", Step: &model.Step{
			JourneyStep: fmt.Sprintf("Spin-%d", i+2), JourneyStepType: "action",
		}})
	}
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "J", Step: &model.Step{JourneyStep: "Spin-1", JourneyStepType: "action"}},
		script: script,
	}
	r := NewRenderer(nav, Options{MaxAutoAdvance: 3}, nil)

	_, err := r.Start(context.Background(), NewSession(""))
	require.Error(t, err)
	assert.Equal(t, 3, nav.advanceCount())
}

func TestRenderer_secondNavigationWhileInFlightIsNoop(t *testing.T) {
	nav := &fakeNavigator{
		init:    &model.InitResult{ExternalID: "J", Step: formStep("A-1")},
		script:  []*Landing{{ExternalID: "J", Step: formStep("B-2")}},
		entered: make(chan struct{}, 1),
	}
	r := newRenderer(nav)
	s := NewSession("")
	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)

	nav.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := r.Next(context.Background(), s)
		done <- err
	}()
	<-nav.entered

	view, err := r.Next(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, view.Busy)
	_, err = r.Previous(context.Background(), s)
	require.NoError(t, err)
	_, err = r.Restart(context.Background(), s)
	require.NoError(t, err)

	close(nav.gate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("first navigation did not finish")
	}
	assert.Equal(t, 1, nav.advanceCount())
	assert.Equal(t, 1, nav.inits)
	assert.Equal(t, "B-2", r.View(s).Step.JourneyStep)
	assert.False(t, r.View(s).Busy)
}

func TestRenderer_submitsOneValuePerVisibleField(t *testing.T) {
	step := formStep("Contact-2",
		model.Field{Name: "firstName", Type: "Text", Value: json.RawMessage(`"Ana"`)},
		model.Field{Name: "phone", Type: "Text", UI: model.UIHints{"inputType": "tel", "defaultCountryCode": "40"}},
		model.Field{Name: "birthDate", Type: "Date"},
		model.Field{Name: "internal", Type: "Text", IsVisible: visible(false), Value: json.RawMessage(`"secret"`)},
		model.Field{Name: "agreed", Type: "Boolean", Value: json.RawMessage(`true`)},
	)
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "J", Step: step},
		script: []*Landing{{ExternalID: "J", Step: formStep("Next-3")}},
	}
	r := newRenderer(nav)
	s := NewSession("")
	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)

	require.NoError(t, r.SetValue(s, "phone", "0722 123 456"))
	require.NoError(t, r.SetValue(s, "birthDate", "31/01/1990"))

	_, err = r.Next(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, nav.advances, 1)
	assert.Equal(t, []model.AttributeValue{
		{Attribute: "firstName", Value: "Ana"},
		{Attribute: "phone", Value: "+40722123456"},
		{Attribute: "birthDate", Value: "1990-01-31"},
		{Attribute: "agreed", Value: true},
	}, nav.advances[0].values)
}

func TestRenderer_requiredFieldsBlockNextButNotPrevious(t *testing.T) {
	step := formStep("Contact-2",
		model.Field{Name: "email", DisplayName: "Email", Type: "Text", RequiredLevel: model.RequiredRequired},
		model.Field{Name: "note", Type: "Text", RequiredLevel: model.RequiredRecommended},
		model.Field{Name: "ref", Type: "Text", RequiredLevel: model.RequiredRequired, IsReadOnly: true},
	)
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "J", Step: step},
		script: []*Landing{{ExternalID: "J", Step: formStep("Welcome-1")}},
	}
	r := newRenderer(nav)
	s := NewSession("")
	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)

	view, err := r.Next(context.Background(), s)
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, model.ErrValidationError, env.Code)
	assert.Equal(t, "Email is required", view.Errors["email"])
	assert.NotContains(t, view.Errors, "note")
	assert.NotContains(t, view.Errors, "ref")
	assert.Zero(t, nav.advanceCount())

	_, err = r.Previous(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, nav.advances, 1)
	assert.Equal(t, model.DirectionPrevious, nav.advances[0].dir)
}

func TestRenderer_setValue(t *testing.T) {
	step := formStep("Contact-2",
		model.Field{Name: "age", Type: "WholeNumber"},
		model.Field{Name: "ref", Type: "Text", IsReadOnly: true},
		model.Field{Name: "hidden", Type: "Text", IsVisible: visible(false)},
	)
	nav := &fakeNavigator{init: &model.InitResult{ExternalID: "J", Step: step}}
	r := newRenderer(nav)
	s := NewSession("")

	assert.Error(t, r.SetValue(s, "age", "3"), "no step yet")

	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)

	err = r.SetValue(s, "age", "three")
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, model.ErrValidationError, env.Code)
	view := r.View(s)
	assert.Equal(t, "three", view.Fields[0].Display)
	assert.NotEmpty(t, view.Fields[0].Error)

	require.NoError(t, r.SetValue(s, "age", "33"))
	assert.Empty(t, r.View(s).Fields[0].Error)

	assert.Error(t, r.SetValue(s, "ref", "x"))
	assert.Error(t, r.SetValue(s, "hidden", "x"))
	assert.Error(t, r.SetValue(s, "missing", "x"))
}

func TestRenderer_inputsResetWhenStepChanges(t *testing.T) {
	step := formStep("Contact-2", model.Field{Name: "email", Type: "Text"})
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "J", Step: step},
		script: []*Landing{{ExternalID: "J", Step: formStep("Other-3", model.Field{Name: "email", Type: "Text"})}},
	}
	r := newRenderer(nav)
	s := NewSession("")
	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)
	require.NoError(t, r.SetValue(s, "email", "a@b.c"))

	view, err := r.Next(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, view.Fields[0].Display)
}

func esignStep(name string) *model.Step {
	step := formStep(name)
	step.EsignURL = "https://sign.example/envelope/1"
	return step
}

func TestRenderer_widgetCompletionAdvancesOnce(t *testing.T) {
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "J", Step: esignStep("Sign-5")},
		script: []*Landing{{ExternalID: "J", Step: esignStep("Sign-5")}},
	}
	r := newRenderer(nav)
	s := NewSession("")
	view, err := r.Start(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, KindESign, view.Kind)
	key := view.StepKey

	_, err = r.HandleWidgetEvent(context.Background(), s, WidgetEvent{Kind: WidgetCompleted, Key: key})
	require.NoError(t, err)
	assert.Equal(t, 1, nav.advanceCount())

	// The engine kept us on the same step; the repeated callback is ignored.
	_, err = r.HandleWidgetEvent(context.Background(), s, WidgetEvent{Kind: WidgetCompleted, Key: key})
	require.NoError(t, err)
	assert.Equal(t, 1, nav.advanceCount())
}

func TestRenderer_widgetEventsForOtherStepsAreIgnored(t *testing.T) {
	nav := &fakeNavigator{init: &model.InitResult{ExternalID: "J", Step: esignStep("Sign-5")}}
	r := newRenderer(nav)
	s := NewSession("")
	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)

	_, err = r.HandleWidgetEvent(context.Background(), s, WidgetEvent{Kind: WidgetCompleted, Key: StepKey("J", "Sign-4")})
	require.NoError(t, err)
	_, err = r.HandleWidgetEvent(context.Background(), s, WidgetEvent{Kind: WidgetCompleted, Key: StepKey("K", "Sign-5")})
	require.NoError(t, err)
	assert.Zero(t, nav.advanceCount())
}

func TestRenderer_widgetCancelAndFailureDoNotAdvance(t *testing.T) {
	nav := &fakeNavigator{init: &model.InitResult{ExternalID: "J", Step: esignStep("Sign-5")}}
	r := newRenderer(nav)
	s := NewSession("")
	view, err := r.Start(context.Background(), s)
	require.NoError(t, err)

	view, err = r.HandleWidgetEvent(context.Background(), s, WidgetEvent{Kind: WidgetCancelled, Key: view.StepKey})
	require.NoError(t, err)
	assert.NotEmpty(t, view.Notice)

	view, err = r.HandleWidgetEvent(context.Background(), s, WidgetEvent{Kind: WidgetFailed, Key: view.StepKey})
	require.NoError(t, err)
	assert.NotEmpty(t, view.Notice)

	_, err = r.HandleWidgetEvent(context.Background(), s, WidgetEvent{Kind: "exploded", Key: view.StepKey})
	assert.Error(t, err)
	assert.Zero(t, nav.advanceCount())
}

func TestRenderer_widgetCompletionRetriesAfterFailedAdvance(t *testing.T) {
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "J", Step: esignStep("Sign-5")},
		advErr: &model.UpstreamError{Service: "engine", Operation: "next", Status: 500},
	}
	r := newRenderer(nav)
	s := NewSession("")
	view, err := r.Start(context.Background(), s)
	require.NoError(t, err)
	ev := WidgetEvent{Kind: WidgetCompleted, Key: view.StepKey}

	_, err = r.HandleWidgetEvent(context.Background(), s, ev)
	require.Error(t, err)

	nav.mu.Lock()
	nav.advErr = nil
	nav.script = []*Landing{{ExternalID: "J", Step: formStep("Done-6")}}
	nav.mu.Unlock()

	view, err = r.HandleWidgetEvent(context.Background(), s, ev)
	require.NoError(t, err)
	assert.Equal(t, "Done-6", view.Step.JourneyStep)
	assert.Equal(t, 2, nav.advanceCount())
}

func TestRenderer_restartAlwaysStartsFresh(t *testing.T) {
	nav := &fakeNavigator{
		init:   &model.InitResult{ExternalID: "ABC123", Step: formStep("Offers-1")},
		offers: twoOfferList(),
	}
	r := newRenderer(nav)
	s := NewSession("")
	_, err := r.Start(context.Background(), s)
	require.NoError(t, err)
	require.NoError(t, r.SelectOffer(s, "o1"))

	nav.init = &model.InitResult{ExternalID: "DEF456", Step: formStep("Offers-1")}
	view, err := r.Restart(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, nav.inits)
	assert.Equal(t, "DEF456", view.ExternalID)
	assert.Empty(t, view.SelectedOfferID)
}

func TestRenderer_startFailureLeavesSessionEmpty(t *testing.T) {
	nav := &fakeNavigator{initErr: model.NewConfigurationError([]string{"engine.base_url"})}
	r := newRenderer(nav)
	s := NewSession("")

	view, err := r.Start(context.Background(), s)
	require.Error(t, err)
	assert.Empty(t, view.ExternalID)
	assert.Nil(t, view.Step)
	assert.False(t, view.Busy)
}

func TestRenderer_viewItemNeedsInstance(t *testing.T) {
	nav := &fakeNavigator{init: &model.InitResult{ExternalID: "J", Step: formStep("A-1")}}
	r := newRenderer(nav)
	s := NewSession("")

	_, err := r.ViewItem(context.Background(), s, "A-1")
	require.Error(t, err)

	_, err = r.Start(context.Background(), s)
	require.NoError(t, err)
	snap, err := r.ViewItem(context.Background(), s, "A-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"externalId":"J","journeyStep":"A-1"}`, string(snap))
}

func TestView_navigationAffordances(t *testing.T) {
	step := formStep("Welcome-1")
	step.IsFirstStep = true
	nav := &fakeNavigator{init: &model.InitResult{ExternalID: "J", Step: step}}
	r := newRenderer(nav)

	view, err := r.Start(context.Background(), NewSession(""))
	require.NoError(t, err)
	assert.True(t, view.ShowNext)
	assert.Equal(t, "Continue", view.NextLabel)
	assert.False(t, view.ShowPrevious, "first step has no previous")
	assert.Equal(t, StepKey("J", "Welcome-1"), view.StepKey)
}
