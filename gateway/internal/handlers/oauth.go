package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/levelcrush/gateway/gateway/internal/session"
	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/domain/services"
	"github.com/levelcrush/gateway/internal/pkg/metrics"
	"github.com/levelcrush/gateway/internal/pkg/urlutil"
)

// Callback outcomes
const (
	outcomeProviderError = "provider_error"
	outcomeMissingCode   = "missing_code"
	outcomeInvalidState  = "invalid_state"
	outcomeChained       = "chained"
	outcomeExchangeError = "exchange_error"
	outcomeProfileError  = "profile_error"
	outcomeRejected      = "rejected"
	outcomePersistence   = "persistence_error"
	outcomeAnchored      = "anchored"
	outcomeLinked        = "linked"
)

// Login handles GET /{platform}/login.
// A secondary platform requested without an anchored session is first sent
// through the anchor login, which then replays this request.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	provider, err := h.provider(r)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "unknown platform")
		return
	}
	platform := provider.Name()
	public := h.publicURL(r)
	s := h.sessions.Get(r)

	target := urlutil.SanitizeRedirect(r.URL.Query().Get("redirect"), h.allowedFor(r), h.opts.FrontendURL)
	s.SetReturnURL(target)

	if platform != h.anchor.Platform() && !s.IsAnchored() {
		replay := urlutil.LoginURL(public, string(platform)) + "?" + url.Values{"redirect": {target}}.Encode()
		h.respond(w, r, s, urlutil.ChainRedirectURL(public, string(h.anchor.Platform()), replay))
		return
	}

	state, nonce, err := h.states.Issue(string(platform))
	if err != nil {
		h.log.Error("failed to issue oauth state",
			slog.String("platform", string(platform)),
			slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to start login")
		return
	}
	s.SetState(nonce)

	h.respond(w, r, s, provider.AuthorizationURL(urlutil.CallbackURL(public, string(platform)), state))
}

// Validate handles GET /{platform}/validate, the provider callback.
// Every failure redirects to the stored return URL without touching the link
// store, except persistence failures which surface as 500.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	provider, err := h.provider(r)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "unknown platform")
		return
	}
	platform := provider.Name()
	public := h.publicURL(r)
	log := h.log.With(slog.String("platform", string(platform)))
	s := h.sessions.Get(r)
	returnURL := h.returnURL(s)
	q := r.URL.Query()

	fail := func(outcome string) {
		metrics.CallbackOutcomes.WithLabelValues(string(platform), outcome).Inc()
		h.respond(w, r, s, returnURL)
	}

	if e := q.Get("error"); e != "" {
		log.Info("provider returned error", slog.String("error", e), slog.String("description", q.Get("error_description")))
		fail(outcomeProviderError)
		return
	}
	code := q.Get("code")
	if code == "" {
		fail(outcomeMissingCode)
		return
	}
	if err := h.states.Verify(q.Get("state"), string(platform), s.State()); err != nil {
		log.Warn("rejected oauth state", slog.String("error", err.Error()))
		fail(outcomeInvalidState)
		return
	}
	s.ClearState()

	if platform != h.anchor.Platform() && !s.IsAnchored() {
		replay := urlutil.LoginURL(public, string(platform)) + "?" + url.Values{"redirect": {returnURL}}.Encode()
		metrics.CallbackOutcomes.WithLabelValues(string(platform), outcomeChained).Inc()
		h.respond(w, r, s, urlutil.ChainRedirectURL(public, string(h.anchor.Platform()), replay))
		return
	}

	ctx := r.Context()
	token, err := provider.Exchange(ctx, code, urlutil.CallbackURL(public, string(platform)))
	if err != nil {
		log.Warn("code exchange failed", slog.String("error", err.Error()))
		fail(outcomeExchangeError)
		return
	}
	profile, err := provider.FetchProfile(ctx, token)
	if err != nil {
		log.Warn("profile fetch failed", slog.String("error", err.Error()))
		fail(outcomeProfileError)
		return
	}

	if platform == h.anchor.Platform() {
		res, err := h.anchor.Resolve(ctx, token, profile)
		if err != nil {
			h.callbackError(w, r, s, log, platform, returnURL, err)
			return
		}
		s.SetUser(res.User, h.opts.Application)
		metrics.CallbackOutcomes.WithLabelValues(string(platform), outcomeAnchored).Inc()
		h.respond(w, r, s, returnURL)
		return
	}

	if _, err := h.links.Reconcile(ctx, s.User(), platform, token, profile); err != nil {
		h.callbackError(w, r, s, log, platform, returnURL, err)
		return
	}
	metrics.CallbackOutcomes.WithLabelValues(string(platform), outcomeLinked).Inc()
	h.respond(w, r, s, returnURL)
}

func (h *Handler) callbackError(w http.ResponseWriter, r *http.Request, s *session.Session, log *slog.Logger, platform entities.Platform, returnURL string, err error) {
	if services.IsLinkPersistence(err) {
		metrics.CallbackOutcomes.WithLabelValues(string(platform), outcomePersistence).Inc()
		log.Error("failed to persist link", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to save link")
		return
	}

	outcome := outcomeRejected
	if !errors.Is(err, services.ErrAnchorRejected) {
		outcome = outcomeExchangeError
	}
	metrics.CallbackOutcomes.WithLabelValues(string(platform), outcome).Inc()
	log.Warn("login not completed", slog.String("error", err.Error()))
	h.respond(w, r, s, returnURL)
}

// Unlink handles POST /{platform}/unlink. The answer is success whether or
// not a link existed.
func (h *Handler) Unlink(w http.ResponseWriter, r *http.Request) {
	provider, err := h.provider(r)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "unknown platform")
		return
	}
	platform := provider.Name()
	if platform == h.anchor.Platform() {
		h.writeError(w, http.StatusBadRequest, "the login platform cannot be unlinked")
		return
	}

	s := h.sessions.Get(r)
	if s.IsAnchored() {
		if _, err := h.links.Unlink(r.Context(), s.User(), platform); err != nil {
			h.log.Warn("unlink failed",
				slog.String("platform", string(platform)),
				slog.String("error", err.Error()))
		}
	}

	h.writeJSON(w, http.StatusOK, apiResponse{Success: true, Response: map[string]any{}, Errors: []string{}})
}
