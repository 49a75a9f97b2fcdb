// Package handlers is the HTTP surface of the gateway: the per-provider
// login, callback and unlink endpoints plus the profile summary.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/levelcrush/gateway/gateway/internal/session"
	"github.com/levelcrush/gateway/internal/auth/oauth"
	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/domain/services"
	"github.com/levelcrush/gateway/internal/pkg/urlutil"
)

// Options holds the deployment-specific URLs and tokens
type Options struct {
	PublicURL    string   // gateway base URL; empty derives it from the request
	FrontendURL  string   // fallback destination for every flow
	Application  string   // stored in the session next to the user token
	AllowedHosts []string // extra hosts callers may be redirected to
}

// Handler holds dependencies for all gateway handlers
type Handler struct {
	providers    *oauth.Registry
	anchor       *services.AnchorService
	links        *services.LinkService
	profiles     *services.ProfileService
	sessions     *session.Manager
	states       *session.StateSigner
	health       repositories.HealthChecker
	opts         Options
	allowedHosts []string
	log          *slog.Logger
}

// New creates a new handler with dependencies
func New(
	providers *oauth.Registry,
	anchor *services.AnchorService,
	links *services.LinkService,
	profiles *services.ProfileService,
	sessions *session.Manager,
	states *session.StateSigner,
	health repositories.HealthChecker,
	opts Options,
	logger *slog.Logger,
) *Handler {
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")

	allowed := append([]string{}, opts.AllowedHosts...)
	for _, u := range []string{opts.FrontendURL, opts.PublicURL} {
		if host := urlutil.HostOf(u); host != "" {
			allowed = append(allowed, host)
		}
	}

	return &Handler{
		providers:    providers,
		anchor:       anchor,
		links:        links,
		profiles:     profiles,
		sessions:     sessions,
		states:       states,
		health:       health,
		opts:         opts,
		allowedHosts: allowed,
		log:          logger.With(slog.String("component", "gateway_handler")),
	}
}

// apiResponse is the JSON envelope shared with the account service
type apiResponse struct {
	Success  bool     `json:"success"`
	Response any      `json:"response"`
	Errors   []string `json:"errors"`
}

// redirectResponse answers XHR callers of a login entry
type redirectResponse struct {
	Success  bool     `json:"success"`
	Redirect string   `json:"redirect"`
	Errors   []string `json:"errors"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, apiResponse{Success: false, Response: map[string]any{}, Errors: []string{msg}})
}

// isXHR mirrors the X-Requested-With convention used by browser clients
func isXHR(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

// publicURL returns the externally visible gateway base URL
func (h *Handler) publicURL(r *http.Request) string {
	if h.opts.PublicURL != "" {
		return h.opts.PublicURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// allowedFor adds the request host when the public URL is derived from it
func (h *Handler) allowedFor(r *http.Request) []string {
	if h.opts.PublicURL != "" {
		return h.allowedHosts
	}
	return append(append([]string{}, h.allowedHosts...), strings.ToLower(r.Host))
}

// returnURL is where a finished or failed flow sends the browser
func (h *Handler) returnURL(s *session.Session) string {
	if u := s.ReturnURL(); u != "" {
		return u
	}
	return h.opts.FrontendURL
}

// provider resolves the {platform} route variable
func (h *Handler) provider(r *http.Request) (oauth.Provider, error) {
	platform, err := entities.ParsePlatform(mux.Vars(r)["platform"])
	if err != nil {
		return nil, oauth.ErrUnknownProvider
	}
	return h.providers.Get(platform)
}

// respond saves the session, then redirects or, for XHR callers, returns the
// target as JSON
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, s *session.Session, target string) {
	if err := s.Save(r, w); err != nil {
		h.log.Error("failed to save session", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	if isXHR(r) {
		h.writeJSON(w, http.StatusOK, redirectResponse{Success: true, Redirect: target, Errors: []string{}})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}
