package main

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/levelcrush/gateway/gateway/internal/handlers"
	"github.com/levelcrush/gateway/gateway/internal/middleware"
	"github.com/levelcrush/gateway/internal/config"
)

// createRouter sets up the HTTP router with all routes and middleware
func createRouter(cfg *config.Config, h *handlers.Handler, log *slog.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Metrics)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// Probes and metrics
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/ping", h.Ping).Methods("GET")
	if cfg.Server.MetricsPort == 0 {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	if cfg.Server.AssetsPath != "" {
		router.PathPrefix("/assets/").Handler(
			http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.Server.AssetsPath))))
	}

	router.HandleFunc("/", h.Home).Methods("GET")
	router.HandleFunc("/profile/get", h.ProfileGet).Methods("GET")

	// Provider flows
	router.Handle("/{platform}/login", limiter.Middleware(http.HandlerFunc(h.Login))).Methods("GET")
	router.Handle("/{platform}/validate", limiter.Middleware(http.HandlerFunc(h.Validate))).Methods("GET")
	router.HandleFunc("/{platform}/unlink", h.Unlink).Methods("POST")

	var handler http.Handler = router
	handler = middleware.CORS(cfg.CORS.Origins)(handler)
	handler = middleware.LogRequest(log)(handler)
	handler = middleware.Recover(log)(handler)
	return handler
}
