// Package main is a terminal client that walks a journey through the BFF
// facade using the headless step renderer.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/pitabwire/journeybff/internal/client"
	"github.com/pitabwire/journeybff/internal/render"
	"github.com/pitabwire/journeybff/model"
)

func main() {
	os.Exit(run())
}

func run() int {
	baseURL := flag.String("bff", "http://localhost:8080", "journey BFF base URL")
	token := flag.String("token", os.Getenv("JOURNEY_TOKEN"), "bearer token sent to the BFF")
	locale := flag.String("locale", "", "Accept-Language sent to the BFF")
	sessionKey := flag.String("session", "", "browser-session key; empty starts a new session")
	redisAddr := flag.String("redis", "", "Redis address for session persistence; empty keeps sessions in memory")
	product := flag.String("product", "", "product filter for offer steps")
	debug := flag.Bool("debug", false, "log facade calls")
	flag.Parse()

	logger := zap.NewNop()
	if *debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
			return 1
		}
		logger = l
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	opts := client.Options{BaseURL: *baseURL, Locale: *locale, Logger: logger}
	if *token != "" {
		opts.Tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: *token})
	}
	nav, err := client.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client error: %v\n", err)
		return 1
	}

	var store render.SessionStore = render.NewMemoryStore(0, 0)
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		store = render.NewRedisStore(rdb, "journeyctl:", 24*time.Hour)
	}

	session, err := render.Open(ctx, store, *sessionKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session error: %v\n", err)
		return 1
	}
	fmt.Printf("session %s\n", session.Key())

	r := render.NewRenderer(nav, render.Options{OfferQuery: model.OfferQuery{Product: *product}}, logger)

	view, err := r.Resume(ctx, session)
	report(os.Stdout, view, err)

	in := bufio.NewScanner(os.Stdin)
	for prompt(); in.Scan(); prompt() {
		view, err = dispatch(ctx, r, session, strings.Fields(in.Text()))
		if errors.Is(err, errQuit) {
			break
		}
		if serr := store.Save(ctx, session); serr != nil {
			fmt.Fprintf(os.Stderr, "session not saved: %v\n", serr)
		}
		report(os.Stdout, view, err)
		if ctx.Err() != nil {
			break
		}
	}
	return 0
}

func prompt() { fmt.Print("> ") }
