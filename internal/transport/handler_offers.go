package transport

import (
	"context"
	"net/http"

	"github.com/pitabwire/journeybff/model"
)

// OfferService lists available offers.
type OfferService interface {
	Available(ctx context.Context, query model.OfferQuery) (*model.OfferList, error)
}

func handleAvailableOffers(svc OfferService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var query model.OfferQuery
		if err := decodeBody(r, &query); err != nil {
			WriteError(w, r, err)
			return
		}
		list, err := svc.Available(r.Context(), query)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, list)
	}
}
