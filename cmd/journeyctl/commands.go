package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pitabwire/journeybff/internal/render"
	"github.com/pitabwire/journeybff/model"
)

var errQuit = errors.New("quit")

const help = `commands:
  next | prev            navigate
  set <field> <value>    edit a field
  select <offerId>       choose an offer
  refresh                reload offers
  widget <completed|cancelled|failed>
  view <journeyStep>     show a step snapshot
  restart | quit`

func dispatch(ctx context.Context, r *render.Renderer, s *render.Session, args []string) (render.View, error) {
	if len(args) == 0 {
		return r.View(s), nil
	}
	switch args[0] {
	case "next", "n":
		return r.Next(ctx, s)
	case "prev", "p":
		return r.Previous(ctx, s)
	case "restart":
		return r.Restart(ctx, s)
	case "refresh":
		return r.RefreshOffers(ctx, s)
	case "set":
		if len(args) < 2 {
			return r.View(s), model.NewBadRequestError("usage: set <field> <value>")
		}
		err := r.SetValue(s, args[1], strings.Join(args[2:], " "))
		return r.View(s), err
	case "select":
		if len(args) != 2 {
			return r.View(s), model.NewBadRequestError("usage: select <offerId>")
		}
		return r.View(s), r.SelectOffer(s, args[1])
	case "widget":
		if len(args) != 2 {
			return r.View(s), model.NewBadRequestError("usage: widget <completed|cancelled|failed>")
		}
		v := r.View(s)
		return r.HandleWidgetEvent(ctx, s, render.WidgetEvent{Kind: render.WidgetEventKind(args[1]), Key: v.StepKey})
	case "view":
		if len(args) != 2 {
			return r.View(s), model.NewBadRequestError("usage: view <journeyStep>")
		}
		snap, err := r.ViewItem(ctx, s, args[1])
		if err == nil {
			fmt.Println(string(snap))
		}
		return r.View(s), err
	case "quit", "q", "exit":
		return r.View(s), errQuit
	default:
		return r.View(s), model.NewBadRequestError(help)
	}
}

func report(w io.Writer, v render.View, err error) {
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		if env := model.AsEnvelope(err); env.Code == model.ErrValidationError {
			for field, msg := range v.Errors {
				fmt.Fprintf(w, "  %s: %s\n", field, msg)
			}
		}
	}
	if v.Step == nil {
		return
	}

	fmt.Fprintf(w, "\n[%s] %s (%s)\n", v.ExternalID, v.Title, v.Kind)
	if v.Notice != "" {
		fmt.Fprintf(w, "  %s\n", v.Notice)
	}
	switch v.Kind {
	case render.KindESign:
		fmt.Fprintf(w, "  sign at %s\n", v.ESignURL)
	case render.KindIdentity:
		fmt.Fprintf(w, "  identity session %s\n", v.IdentitySessionID)
	case render.KindPayment:
		fmt.Fprintf(w, "  payment session %s\n", v.PaymentToken)
	case render.KindOffers:
		for _, c := range v.Offers {
			mark := " "
			if c.OfferID == v.SelectedOfferID || (c.CardID != "" && c.CardID == v.SelectedOfferID) {
				mark = "*"
			}
			fmt.Fprintf(w, "  %s %s  %s: %s\n", mark, c.OfferID, c.OfferName, c.CardTitle)
		}
	case render.KindProcessing:
		fmt.Fprintln(w, "  processing...")
	}

	for _, f := range v.Fields {
		flags := ""
		if f.Required {
			flags += " *"
		}
		if f.ReadOnly {
			flags += " (read-only)"
		}
		fmt.Fprintf(w, "  %s [%s]%s = %s\n", f.Label, f.Control, flags, f.Display)
		for _, o := range f.Options {
			fmt.Fprintf(w, "      %v: %s\n", o.ID, o.DisplayName)
		}
		if f.Error != "" {
			fmt.Fprintf(w, "      ! %s\n", f.Error)
		}
	}

	var nav []string
	if v.ShowPrevious {
		nav = append(nav, "prev")
	}
	if v.ShowNext {
		nav = append(nav, "next")
	}
	if len(nav) > 0 {
		fmt.Fprintf(w, "  [%s]\n", strings.Join(nav, " | "))
	}
}
