package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pitabwire/journeybff/internal/journey"
	"github.com/pitabwire/journeybff/model"
)

// JourneyService is the navigation facade the journey handlers call.
type JourneyService interface {
	Init(ctx context.Context) (*model.InitResult, error)
	LoadStep(ctx context.Context, externalID string) (*model.Step, error)
	Advance(ctx context.Context, externalID string, values []model.AttributeValue, dir model.Direction) (*journey.AdvanceResult, error)
	ViewItem(ctx context.Context, externalID, journeyStep string) (json.RawMessage, error)
}

type instanceRequest struct {
	ExternalID string `json:"externalId"`
}

type advanceRequest struct {
	ExternalID string                 `json:"externalId"`
	Values     []model.AttributeValue `json:"values"`
}

type viewItemRequest struct {
	ExternalID  string `json:"externalId"`
	JourneyStep string `json:"journeyStep"`
}

func handleInit(svc JourneyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Init(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func handleLoadStep(svc JourneyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body instanceRequest
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, r, err)
			return
		}
		step, err := svc.LoadStep(r.Context(), body.ExternalID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, step)
	}
}

func handleAdvance(svc JourneyService, dir model.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body advanceRequest
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, r, err)
			return
		}
		res, err := svc.Advance(r.Context(), body.ExternalID, body.Values, dir)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func handleViewItem(svc JourneyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body viewItemRequest
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, r, err)
			return
		}
		snapshot, err := svc.ViewItem(r.Context(), body.ExternalID, body.JourneyStep)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, snapshot)
	}
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return model.NewBadRequestError("invalid JSON body")
}
