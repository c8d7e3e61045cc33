// Package handler is the serverless function entry point for the ask endpoint.
package handler

import (
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/leemai/leemai/internal/bootstrap"
	"github.com/leemai/leemai/internal/config"
	"github.com/leemai/leemai/internal/server"
)

var (
	once       sync.Once
	askHandler http.Handler
)

// load builds the handler on the first request of a cold start.
func load() http.Handler {
	once.Do(func() {
		cfg, err := config.Load(os.Getenv("LEEMAI_CONFIG"))
		if err != nil {
			slog.Default().Error("failed to load configuration", "error", err)
			askHandler = server.NewFailedStartupHandler("*")
			return
		}
		// Clients live as long as the function instance and are never closed.
		h, _, err := bootstrap.NewAskHandler(cfg, nil)
		if err != nil {
			slog.Default().Error("failed to build ask handler", "error", err)
			askHandler = server.NewFailedStartupHandler(cfg.Server.AllowedOrigin)
			return
		}
		askHandler = h
	})
	return askHandler
}

// Handler is the platform entry point.
func Handler(w http.ResponseWriter, r *http.Request) {
	server.WithRequestID(load()).ServeHTTP(w, r)
}
