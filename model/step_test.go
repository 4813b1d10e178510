package model

import (
	"encoding/json"
	"strings"
	"testing"
)

const rawStep = `{
  "journeyStep": "Offers-3",
  "journeyStepType": "plain",
  "isFirstStep": false,
  "isLastStep": false,
  "customFlag": {"a": 1},
  "properties": {"nextButton": {"show": true}, "previousButton": {"show": false}, "theme": "dark"},
  "fields": [
    {"name": "phone", "type": "Text", "requiredLevel": 2, "ui": {"inputType": "phone"}, "tooltip": "x"},
    {"name": "hidden", "type": "WholeNumber", "isVisible": false}
  ],
  "stepActions": [
    {"id": "a1", "type": "callCustomProcessor"},
    {"id": "", "type": "callCustomProcessor"},
    {"id": "a2", "type": "navigate"},
    {"id": "a3", "type": "CallCustomProcessor", "extraArg": true}
  ]
}`

func TestStep_unmarshal_keeps_unknown_members(t *testing.T) {
	var s Step
	if err := json.Unmarshal([]byte(rawStep), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s.Title() != "Offers" {
		t.Errorf("Title() = %q, want Offers", s.Title())
	}
	if !s.Properties.NextButton.Show || s.Properties.PreviousButton.Show {
		t.Errorf("Properties = %+v", s.Properties)
	}
	if _, ok := s.Extra["customFlag"]; !ok {
		t.Error("step Extra lost customFlag")
	}
	if _, ok := s.Fields[0].Extra["tooltip"]; !ok {
		t.Error("field Extra lost tooltip")
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"customFlag"`, `"theme":"dark"`, `"tooltip":"x"`, `"extraArg":true`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("marshalled step missing %s: %s", want, out)
		}
	}
}

func TestStep_marshal_always_has_enrichment(t *testing.T) {
	out, err := json.Marshal(Step{JourneyStep: "Start-1"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"availableOffers", "esignUrl", "personaResponse", "stripePaymentDetails"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing enrichment key %q in %s", key, out)
		}
	}
	if offers, _ := m["availableOffers"].([]any); offers == nil {
		t.Errorf("availableOffers = %v, want empty array", m["availableOffers"])
	}
}

func TestStep_CustomProcessorActions(t *testing.T) {
	var s Step
	if err := json.Unmarshal([]byte(rawStep), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	actions := s.CustomProcessorActions()
	if len(actions) != 2 {
		t.Fatalf("CustomProcessorActions() = %d, want 2", len(actions))
	}
	if actions[0].ID != "a1" || actions[1].ID != "a3" {
		t.Errorf("actions = %+v, want a1 then a3", actions)
	}
}

func TestStep_VisibleFields(t *testing.T) {
	var s Step
	if err := json.Unmarshal([]byte(rawStep), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	visible := s.VisibleFields()
	if len(visible) != 1 || visible[0].Name != "phone" {
		t.Errorf("VisibleFields() = %+v", visible)
	}
	if !s.Fields[0].Required() {
		t.Error("phone should be required")
	}
}

func TestEnrichment_IsEmpty(t *testing.T) {
	if !(Enrichment{}).IsEmpty() {
		t.Error("zero Enrichment should be empty")
	}
	if !(Enrichment{PersonaResponse: json.RawMessage("null")}).IsEmpty() {
		t.Error("null persona should count as empty")
	}
	if (Enrichment{EsignURL: "https://sign"}).IsEmpty() {
		t.Error("esign url should make enrichment non-empty")
	}
}

func TestNormalizeFieldType(t *testing.T) {
	tests := map[string]FieldType{
		"Text":         FieldText,
		"WholeNumber":  FieldWholeNumber,
		"whole-number": FieldWholeNumber,
		"option_set":   FieldOptionSet,
		"DateTime":     FieldDateTime,
		"Money":        FieldMoney,
		"TextArea":     FieldLongText,
		"Signature":    FieldDefault,
	}
	for in, want := range tests {
		if got := NormalizeFieldType(in); got != want {
			t.Errorf("NormalizeFieldType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUIHints_Merge(t *testing.T) {
	live := UIHints{"placeholder": "live", "mask": "999"}
	cfg := UIHints{"placeholder": "config", "inputType": "phone"}
	got := live.Merge(cfg)
	if got.String("placeholder") != "config" {
		t.Errorf("placeholder = %q, want config", got.String("placeholder"))
	}
	if got.String("mask") != "999" || got.String("inputType") != "phone" {
		t.Errorf("merge = %v", got)
	}
	if live.String("placeholder") != "live" {
		t.Error("Merge must not mutate the receiver")
	}
}
