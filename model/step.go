package model

import (
	"encoding/json"
	"strings"
)

// ActionTypeCustomProcessor marks a step action the resolving layer invokes
// on the engine before the step is returned.
const ActionTypeCustomProcessor = "callCustomProcessor"

// StepTypeAction is the journeyStepType of steps that carry no user input
// and advance on their own.
const StepTypeAction = "action"

// Step is one page-equivalent unit of a journey as returned by the engine,
// plus the enrichment bag filled in during resolution.
type Step struct {
	ExternalID      string         `json:"externalId,omitempty"`
	JourneyStep     string         `json:"journeyStep"`
	JourneyStepType string         `json:"journeyStepType,omitempty"`
	IsFirstStep     bool           `json:"isFirstStep"`
	IsLastStep      bool           `json:"isLastStep"`
	Fields          []Field        `json:"fields"`
	Properties      StepProperties `json:"properties"`
	StepActions     []StepAction   `json:"stepActions,omitempty"`

	Enrichment

	Extra Extra `json:"-"`
}

var stepKeys = []string{
	"externalId", "journeyStep", "journeyStepType", "isFirstStep", "isLastStep",
	"fields", "properties", "stepActions",
	"availableOffers", "esignUrl", "personaResponse", "stripePaymentDetails",
}

type stepAlias Step

// MarshalJSON always emits the enrichment members, even when empty.
func (s Step) MarshalJSON() ([]byte, error) {
	a := stepAlias(s)
	if a.Fields == nil {
		a.Fields = []Field{}
	}
	if a.AvailableOffers == nil {
		a.AvailableOffers = []json.RawMessage{}
	}
	return marshalWithExtra(a, s.Extra)
}

// UnmarshalJSON keeps unknown members in Extra.
func (s *Step) UnmarshalJSON(data []byte) error {
	var a stepAlias
	extra, err := unmarshalWithExtra(data, &a, stepKeys...)
	if err != nil {
		return err
	}
	*s = Step(a)
	s.Extra = extra
	return nil
}

// Title is the display part of the step name: everything before the first
// "-". "Offers-3" has title "Offers".
func (s *Step) Title() string {
	title, _, _ := strings.Cut(s.JourneyStep, "-")
	return strings.TrimSpace(title)
}

// IsActionType reports whether the step is an input-less action step.
func (s *Step) IsActionType() bool {
	return strings.EqualFold(s.JourneyStepType, StepTypeAction)
}

// VisibleFields returns the fields that should be displayed. Fields with an
// explicit isVisible=false are dropped.
func (s *Step) VisibleFields() []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Visible() {
			out = append(out, f)
		}
	}
	return out
}

// CustomProcessorActions returns the declared custom-processor actions that
// carry an id, in declaration order.
func (s *Step) CustomProcessorActions() []StepAction {
	var out []StepAction
	for _, a := range s.StepActions {
		if a.ID == "" {
			continue
		}
		if strings.EqualFold(a.Type, ActionTypeCustomProcessor) {
			out = append(out, a)
		}
	}
	return out
}

// StepProperties carries the navigation affordances of a step.
type StepProperties struct {
	NextButton     ButtonProperties `json:"nextButton"`
	PreviousButton ButtonProperties `json:"previousButton"`

	Extra Extra `json:"-"`
}

type propertiesAlias StepProperties

func (p StepProperties) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(propertiesAlias(p), p.Extra)
}

func (p *StepProperties) UnmarshalJSON(data []byte) error {
	var a propertiesAlias
	extra, err := unmarshalWithExtra(data, &a, "nextButton", "previousButton")
	if err != nil {
		return err
	}
	*p = StepProperties(a)
	p.Extra = extra
	return nil
}

// ButtonProperties controls a single navigation button.
type ButtonProperties struct {
	Show  bool   `json:"show"`
	Label string `json:"label,omitempty"`
}

// StepAction is a server-side action declared on a step.
type StepAction struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`

	Extra Extra `json:"-"`
}

type actionAlias StepAction

func (a StepAction) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(actionAlias(a), a.Extra)
}

func (a *StepAction) UnmarshalJSON(data []byte) error {
	var al actionAlias
	extra, err := unmarshalWithExtra(data, &al, "id", "type", "name")
	if err != nil {
		return err
	}
	*a = StepAction(al)
	a.Extra = extra
	return nil
}

// Enrichment is the set of hand-offs produced by custom-processor actions.
// It is always present on a resolved step.
type Enrichment struct {
	AvailableOffers      []json.RawMessage `json:"availableOffers"`
	EsignURL             string            `json:"esignUrl"`
	PersonaResponse      json.RawMessage   `json:"personaResponse"`
	StripePaymentDetails json.RawMessage   `json:"stripePaymentDetails"`
}

// IsEmpty reports whether no action contributed anything.
func (e Enrichment) IsEmpty() bool {
	return len(e.AvailableOffers) == 0 && e.EsignURL == "" &&
		isNullJSON(e.PersonaResponse) && isNullJSON(e.StripePaymentDetails)
}

func isNullJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// AttributeValue is one submitted field value.
type AttributeValue struct {
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
}

// Direction selects the engine navigation endpoint.
type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionNext || d == DirectionPrevious
}

// InitResult is returned when a new journey instance is started.
type InitResult struct {
	ExternalID string          `json:"externalId"`
	Metadata   json.RawMessage `json:"metadata"`
	Step       *Step           `json:"step"`
}
