// Package render is the headless step renderer: it turns a resolved step
// into a view, keeps per-session input state, and drives navigation through
// the facade.
package render

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pitabwire/journeybff/model"
)

// Kind is the display mode of a step.
type Kind string

const (
	KindOffers     Kind = "offers"
	KindESign      Kind = "esign"
	KindIdentity   Kind = "identity"
	KindPayment    Kind = "payment"
	KindProcessing Kind = "processing"
	KindForm       Kind = "form"
)

// offersTitle marks an offer-selection step by name when the enrichment
// carries no offers yet.
const offersTitle = "offers"

var (
	identityIDPaths   = []string{"id", "inquiryId", "inquiry_id", "data.id"}
	paymentTokenPaths = []string{"token", "clientSecret", "client_secret", "paymentIntentClientSecret"}
)

// Classification is the result of Classify.
type Classification struct {
	Kind  Kind
	Title string
	// Summary is set for steps whose title mentions "summary".
	Summary bool

	// Exactly one of these is set for widget kinds.
	ESignURL          string
	IdentitySessionID string
	PaymentToken      string
}

// IsWidget reports whether the step is completed inside an embedded
// third-party widget.
func (c Classification) IsWidget() bool {
	return c.Kind == KindESign || c.Kind == KindIdentity || c.Kind == KindPayment
}

// Classify selects the display mode of a step. Signals are checked in a
// fixed order and the first match wins: offers, e-sign URL, identity
// session, payment session, action step type, else a plain form.
func Classify(step *model.Step) Classification {
	if step == nil {
		return Classification{Kind: KindForm}
	}
	c := Classification{
		Title:   step.Title(),
		Summary: strings.Contains(strings.ToLower(step.Title()), "summary"),
	}
	switch {
	case len(step.AvailableOffers) > 0 || strings.EqualFold(c.Title, offersTitle):
		c.Kind = KindOffers
	case strings.TrimSpace(step.EsignURL) != "":
		c.Kind = KindESign
		c.ESignURL = strings.TrimSpace(step.EsignURL)
	case firstString(step.PersonaResponse, identityIDPaths) != "":
		c.Kind = KindIdentity
		c.IdentitySessionID = firstString(step.PersonaResponse, identityIDPaths)
	case firstString(step.StripePaymentDetails, paymentTokenPaths) != "":
		c.Kind = KindPayment
		c.PaymentToken = firstString(step.StripePaymentDetails, paymentTokenPaths)
	case step.IsActionType():
		c.Kind = KindProcessing
	default:
		c.Kind = KindForm
	}
	return c
}

func firstString(raw []byte, paths []string) string {
	if len(raw) == 0 {
		return ""
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return ""
	}
	for _, p := range paths {
		if v := obj.Get(p); v.Exists() && v.Type != gjson.Null {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}
