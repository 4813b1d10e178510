package render

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitabwire/journeybff/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		step *model.Step
		want Kind
	}{
		{"nil step", nil, KindForm},
		{"plain form", &model.Step{JourneyStep: "Contact-2"}, KindForm},
		{"offers by enrichment", &model.Step{
			JourneyStep: "Choose-3",
			Enrichment:  model.Enrichment{AvailableOffers: []json.RawMessage{json.RawMessage(`{"offerId":"o1"}`)}},
		}, KindOffers},
		{"offers by title", &model.Step{JourneyStep: "Offers-1"}, KindOffers},
		{"esign", &model.Step{JourneyStep: "Sign-4", Enrichment: model.Enrichment{EsignURL: "https://sign.example/x"}}, KindESign},
		{"identity by id", &model.Step{
			JourneyStep: "Verify-5",
			Enrichment:  model.Enrichment{PersonaResponse: json.RawMessage(`{"inquiryId":"inq_1"}`)},
		}, KindIdentity},
		{"identity nested id", &model.Step{
			Enrichment: model.Enrichment{PersonaResponse: json.RawMessage(`{"data":{"id":"inq_2"}}`)},
		}, KindIdentity},
		{"identity without id", &model.Step{
			Enrichment: model.Enrichment{PersonaResponse: json.RawMessage(`{"status":"pending"}`)},
		}, KindForm},
		{"payment", &model.Step{
			Enrichment: model.Enrichment{StripePaymentDetails: json.RawMessage(`{"clientSecret":"pi_1_secret"}`)},
		}, KindPayment},
		{"payment null", &model.Step{
			Enrichment: model.Enrichment{StripePaymentDetails: json.RawMessage(`null`)},
		}, KindForm},
		{"action step", &model.Step{JourneyStep: "Scoring-6", JourneyStepType: "Action"}, KindProcessing},
		{"offers beat action type", &model.Step{JourneyStep: "Offers-7", JourneyStepType: "action"}, KindOffers},
		{"esign beats identity", &model.Step{Enrichment: model.Enrichment{
			EsignURL:        "https://sign.example/y",
			PersonaResponse: json.RawMessage(`{"id":"inq_3"}`),
		}}, KindESign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.step).Kind)
		})
	}
}

func TestClassify_widgetDetails(t *testing.T) {
	c := Classify(&model.Step{
		JourneyStep: "Verify-5",
		Enrichment:  model.Enrichment{PersonaResponse: json.RawMessage(`{"id":"inq_9"}`)},
	})
	assert.True(t, c.IsWidget())
	assert.Equal(t, "inq_9", c.IdentitySessionID)
	assert.Equal(t, "Verify", c.Title)

	c = Classify(&model.Step{Enrichment: model.Enrichment{StripePaymentDetails: json.RawMessage(`{"token":"tok_1"}`)}})
	assert.Equal(t, "tok_1", c.PaymentToken)

	assert.False(t, Classify(&model.Step{JourneyStep: "Offers-1"}).IsWidget())
}

func TestClassify_summaryFlag(t *testing.T) {
	assert.True(t, Classify(&model.Step{JourneyStep: "Application Summary-9"}).Summary)
	assert.False(t, Classify(&model.Step{JourneyStep: "Contact-2"}).Summary)
}
