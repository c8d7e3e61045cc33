package server

import (
	"net/http"

	"github.com/leemai/leemai/internal/metrics"
)

// AskPath is the route of the ask handler on the long-running server.
const AskPath = "/api/ask"

// NewMux wires the ask handler with health and metrics endpoints.
func NewMux(ask http.Handler, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(AskPath, ask)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	return WithRequestID(WithAccessLog(mux))
}
