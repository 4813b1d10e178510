// Package override loads the step override document and merges its
// field-level directives (order, visibility, UI hints) into engine steps.
package override

import "github.com/pitabwire/journeybff/model"

// Document is the parsed override document. Flows group step overrides and
// may be scoped to one journey.
type Document struct {
	Version int    `json:"version,omitempty"`
	Flows   []Flow `json:"flows"`
}

// Flow is a named group of step overrides. An empty JourneyName applies to
// every journey.
type Flow struct {
	Name        string         `json:"name,omitempty"`
	JourneyName string         `json:"journeyName,omitempty"`
	Steps       []StepOverride `json:"steps"`
}

// StepOverride holds the field directives for one journeyStep, matched by
// exact name.
type StepOverride struct {
	JourneyStep string          `json:"journeyStep"`
	Fields      []FieldOverride `json:"fields"`
}

// FieldOverride adjusts one field of a step. Order and IsVisible are kept
// loosely typed: only a number counts as an order and only a boolean
// replaces visibility.
type FieldOverride struct {
	Name      string        `json:"name"`
	Order     any           `json:"order,omitempty"`
	SortOrder any           `json:"sortOrder,omitempty"`
	IsVisible any           `json:"isVisible,omitempty"`
	UI        model.UIHints `json:"ui,omitempty"`
}

// Rank returns the explicit order of the field. "order" and "sortOrder" are
// synonyms; "order" is read first.
func (f FieldOverride) Rank() (float64, bool) {
	for _, v := range []any{f.Order, f.SortOrder} {
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		}
	}
	return 0, false
}

// Visibility returns the configured visibility when it is a boolean.
func (f FieldOverride) Visibility() (visible, ok bool) {
	visible, ok = f.IsVisible.(bool)
	return visible, ok
}
