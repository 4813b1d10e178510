package integration

import (
	"net/http"

	"github.com/pitabwire/journeybff/model"
)

// OfferQueryLoan is the offer search the harness renderer issues.
func OfferQueryLoan() model.OfferQuery {
	return model.OfferQuery{Product: "loan"}
}

func navigation(showNext, showPrevious bool) map[string]any {
	return map[string]any{
		"nextButton":     map[string]any{"show": showNext, "label": "Continue"},
		"previousButton": map[string]any{"show": showPrevious, "label": "Back"},
	}
}

// FormStep is an engine step body with the given fields.
func FormStep(journeyStep string, fields ...map[string]any) map[string]any {
	if fields == nil {
		fields = []map[string]any{}
	}
	return map[string]any{
		"journeyStep":     journeyStep,
		"journeyStepType": "form",
		"isFirstStep":     false,
		"isLastStep":      false,
		"fields":          fields,
		"properties":      navigation(true, true),
	}
}

// FirstStep is FormStep marked as the first step of the journey.
func FirstStep(journeyStep string, fields ...map[string]any) map[string]any {
	s := FormStep(journeyStep, fields...)
	s["isFirstStep"] = true
	return s
}

// ActionStep is an input-less step the renderer advances on its own.
func ActionStep(journeyStep string) map[string]any {
	s := FormStep(journeyStep)
	s["journeyStepType"] = "action"
	s["properties"] = navigation(false, false)
	return s
}

// WithActions adds custom-processor actions to a step body.
func WithActions(step map[string]any, ids ...string) map[string]any {
	actions := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		actions = append(actions, map[string]any{"id": id, "type": model.ActionTypeCustomProcessor})
	}
	step["stepActions"] = actions
	return step
}

// TextField is a plain text field body.
func TextField(name string, required bool) map[string]any {
	level := 0
	if required {
		level = 2
	}
	return map[string]any{
		"name":          name,
		"displayName":   name,
		"type":          "text",
		"requiredLevel": level,
		"isReadOnly":    false,
	}
}

// OfferSearchBody lists offers o1 and o2.
func OfferSearchBody() map[string]any {
	return map[string]any{
		"offers": []map[string]any{
			{"offerId": "o1", "offerName": "Starter", "offerCode": "ST"},
			{"offerId": "o2", "offerName": "Premium", "offerCode": "PR"},
		},
	}
}

// OfferDetails answers the details operation with one card per offer:
// c1 for o1 and c2 for o2.
func OfferDetails(req *RecordedRequest) (int, any) {
	cards := map[string]string{"o1": "c1", "o2": "c2"}
	id := req.PathParams["offerId"]
	card, ok := cards[id]
	if !ok {
		return http.StatusNotFound, map[string]any{"message": "offer not found"}
	}
	return http.StatusOK, map[string]any{
		"offerId": id,
		"cards": []map[string]any{{
			"cardId":      card,
			"cardTitle":   "Card " + card,
			"description": "Loan offer " + id,
			"benefits":    []string{"no fees"},
		}},
	}
}
