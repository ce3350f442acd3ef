// Package console exposes the operational HTTP surface of the daemon:
// health, metrics and a JSON status snapshot. It never faces game clients.
package console

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/MaxxisHub/game-server-wol/internal/app/logger/logging"
	"github.com/MaxxisHub/game-server-wol/internal/metrics"
	"github.com/MaxxisHub/game-server-wol/internal/proxy"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func init() {
	metrics.Init()
}

type Console struct {
	Addr    string
	Manager *proxy.Manager
}

func NewConsole(addr string, manager *proxy.Manager) *Console {
	return &Console{Addr: addr, Manager: manager}
}

func (c *Console) HttpRouter() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Throttle(100))

	{ // Meta routes (readiness, liveness, metrics).
		mux.Get("/_health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			renderJSON(w, map[string]string{
				"status": "OK",
				"state":  c.Manager.State().String(),
			})
		})
		mux.Get("/_metrics", promhttp.Handler().ServeHTTP)
	}

	{ // Status snapshot, CORS'd for dashboards.
		status := chi.NewRouter()
		status.Use(cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         7200,
		}).Handler)
		status.Get("/", func(w http.ResponseWriter, r *http.Request) {
			renderJSON(w, c.Manager.Snapshot())
		})
		mux.Mount("/status", status)
	}

	return mux
}

// Handlers returns the start and shutdown functions for the HTTP server.
func (c *Console) Handlers() (start, shutdown func(ctx context.Context) error) {
	httpServer := &http.Server{
		Addr:         c.Addr,
		Handler:      h2c.NewHandler(c.HttpRouter(), &http2.Server{}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	start = func(ctx context.Context) error {
		slog.Info("Console server is running", "addr", c.Addr)
		return httpServer.ListenAndServe()
	}

	shutdown = func(ctx context.Context) error {
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down the console server", logging.Error(err))
			return err
		}
		return nil
	}

	return start, shutdown
}

func renderJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", logging.Error(err))
	}
}
