package render

import (
	"encoding/json"

	"github.com/pitabwire/journeybff/model"
)

// View is everything needed to draw the current state of a session.
type View struct {
	Classification

	ExternalID string
	StepKey    string
	Metadata   json.RawMessage
	Step       *model.Step
	Fields     []FieldView

	Offers          []model.OfferCard
	SelectedOfferID string

	ShowNext     bool
	ShowPrevious bool
	NextLabel    string
	PrevLabel    string

	// Busy is set while a navigation is outstanding.
	Busy   bool
	Notice string
	// Errors holds field problems by field name. The offer selection is
	// reported under SelectedOfferAttribute.
	Errors map[string]string
}

// FieldView is one field as drawn.
type FieldView struct {
	Name        string
	Label       string
	Control     Control
	Display     string
	Placeholder string
	Required    bool
	ReadOnly    bool
	Options     []model.OptionSetValue
	Error       string
}

// View snapshots the session.
func (r *Renderer) View(s *Session) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Classification:  s.classification,
		ExternalID:      s.externalID,
		Metadata:        s.metadata,
		Step:            s.step,
		SelectedOfferID: s.selectedOfferID,
		Busy:            s.inFlight,
		Notice:          s.notice,
		Errors:          make(map[string]string, len(s.fieldErrors)),
	}
	for k, msg := range s.fieldErrors {
		v.Errors[k] = msg
	}
	for _, o := range s.offers {
		v.Offers = append(v.Offers, o.Card)
	}
	if s.step == nil {
		return v
	}

	v.StepKey = StepKey(s.externalID, s.step.JourneyStep)
	// Processing steps advance on their own and offer no navigation.
	if s.classification.Kind != KindProcessing {
		v.ShowNext = s.step.Properties.NextButton.Show
		v.ShowPrevious = s.step.Properties.PreviousButton.Show && !s.step.IsFirstStep
		v.NextLabel = s.step.Properties.NextButton.Label
		v.PrevLabel = s.step.Properties.PreviousButton.Label
	}
	for _, f := range s.step.VisibleFields() {
		fv := FieldView{
			Name:        f.Name,
			Label:       fieldLabel(f),
			Control:     ControlFor(f),
			Placeholder: f.UI.String("placeholder"),
			Required:    f.Required(),
			ReadOnly:    f.IsReadOnly,
			Options:     f.OptionSetValues,
			Error:       s.fieldErrors[f.Name],
		}
		if input, edited := s.inputs[f.Name]; edited {
			fv.Display = input
		} else {
			fv.Display = FormatForDisplay(f, InitialValue(f))
		}
		v.Fields = append(v.Fields, fv)
	}
	return v
}
