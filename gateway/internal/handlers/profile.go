package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ProfileGet handles GET /profile/get: the linked display name per platform
// for the session's user. Unanchored sessions get an empty map.
func (h *Handler) ProfileGet(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Get(r)
	if !s.IsAnchored() {
		h.writeJSON(w, http.StatusOK, apiResponse{Success: true, Response: map[string]string{}, Errors: []string{}})
		return
	}

	summary, err := h.profiles.Summary(r.Context(), s.User())
	if err != nil {
		h.log.Error("failed to load profile summary", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	h.writeJSON(w, http.StatusOK, apiResponse{Success: true, Response: summary, Errors: []string{}})
}

// Home handles GET / with the configured platforms
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	platforms := make([]string, 0)
	for _, p := range h.providers.Platforms() {
		platforms = append(platforms, string(p))
	}
	h.writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Response: map[string]any{
			"anchor":    string(h.anchor.Platform()),
			"platforms": platforms,
		},
		Errors: []string{},
	})
}

// Ping handles GET /ping
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.HealthCheck(ctx); err != nil {
			h.log.Warn("health check failed", slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
