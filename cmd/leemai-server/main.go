package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/leemai/leemai/internal/bootstrap"
	"github.com/leemai/leemai/internal/config"
	"github.com/leemai/leemai/internal/metrics"
	"github.com/leemai/leemai/internal/server"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load(os.Getenv("LEEMAI_CONFIG"))
	if err != nil {
		return fmt.Errorf("config.Load() > %w", err)
	}
	if !cfg.HasCredential() {
		slog.Warn("HF_TOKEN environment variable is not set; every question will get a configuration message")
	}

	m := metrics.New()
	askHandler, closeClients, err := bootstrap.NewAskHandler(cfg, m)
	if err != nil {
		return fmt.Errorf("bootstrap.NewAskHandler() > %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           h2c.NewHandler(server.NewMux(askHandler, m), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	app := bootstrap.New()
	app.AddShutdownHook(func(ctx context.Context) error {
		return closeClients()
	})
	app.AddShutdownHook(func(ctx context.Context) error {
		slog.Info("Shutting down server")
		return httpServer.Shutdown(ctx)
	})

	return app.Run(context.Background(), func(ctx context.Context) error {
		slog.Info("Starting server", "address", cfg.Server.Address, "candidates", len(cfg.Candidates))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}
