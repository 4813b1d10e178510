// Command journeybff serves the journey facade in front of the FintechOS
// journey engine and the offer API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/internal/override"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "journeybff: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	observability.Version, observability.Commit = version, commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	stopTracing, err := observability.InitTracing(ctx, cfg.Observability, "journeybff", version)
	if err != nil {
		return err
	}

	a, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("journeybff listening",
			zap.String("addr", srv.Addr),
			zap.String("version", version),
			zap.String("commit", commit),
			zap.String("journey", cfg.Engine.JourneyName),
			zap.Int("override_steps", a.overrides.StepCount()),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		reloadOnHangup(gctx, a.overrides, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("draining connections")
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := errors.Join(srv.Shutdown(sctx), stopTracing(sctx))
		if err != nil {
			logger.Error("shutdown incomplete", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("journeybff stopped")
	return nil
}

// reloadOnHangup re-reads the override document on every SIGHUP until ctx
// ends. A document that fails to load leaves the current one in place.
func reloadOnHangup(ctx context.Context, overrides *override.Registry, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if overrides.Reload() != nil {
				logger.Warn("keeping current override document", zap.String("checksum", overrides.Checksum()))
			}
		}
	}
}
