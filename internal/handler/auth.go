package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/ecoquest/internal/i18n"
	"github.com/dukerupert/ecoquest/internal/identity"
	"github.com/dukerupert/ecoquest/internal/middleware"
	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/profile"
)

type AuthHandler struct {
	identity      *identity.Provider
	profiles      *profile.Service
	sessionTTL    time.Duration
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(idp *identity.Provider, ps *profile.Service, sessionTTL time.Duration, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity:      idp,
		profiles:      ps,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	School      string `json:"school"`
	ClassName   string `json:"class_name"`
	Role        string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token   string             `json:"token"`
	Guest   bool               `json:"guest"`
	Profile *model.UserProfile `json:"profile"`
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies || r.TLS != nil,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// federatedCookieName holds the nonce of a federated sign-in in progress.
const federatedCookieName = "ecoquest_federated"

const federatedCookiePath = "/auth/federated"

// signedIn loads the profile of a new session and answers with both.
func (h *AuthHandler) signedIn(w http.ResponseWriter, r *http.Request, status int, id *model.Identity) {
	p, err := h.profiles.SignedIn(r.Context(), *id)
	if err != nil {
		respondError(w, r, h.logger, "load profile after sign-in", err)
		return
	}
	h.setSessionCookie(w, r, id.Token)
	writeJSON(w, status, sessionResponse{Token: id.Token, Guest: id.Guest, Profile: p})
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
		return
	}

	id, err := h.identity.Register(r.Context(), req.Email, req.Password, model.ProfileInput{
		DisplayName: strings.TrimSpace(req.DisplayName),
		School:      strings.TrimSpace(req.School),
		ClassName:   strings.TrimSpace(req.ClassName),
		Role:        model.Role(req.Role),
	})
	if err != nil {
		respondError(w, r, h.logger, "register", err)
		return
	}

	h.logger.Info("user registered", "user_id", id.UserID, "role", id.Role)
	h.signedIn(w, r, http.StatusCreated, id)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
		return
	}

	id, err := h.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, h.logger, "sign in", err)
		return
	}
	h.signedIn(w, r, http.StatusOK, id)
}

// Reauthenticate handles POST /auth/reauthenticate. It refreshes the
// recent-login time of the current session.
func (h *AuthHandler) Reauthenticate(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
		return
	}

	id, err := h.identity.Reauthenticate(r.Context(), middleware.Token(r), req.Password)
	if err != nil {
		respondError(w, r, h.logger, "reauthenticate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reauthenticated": true, "user_id": id.UserID})
}

// Guest handles POST /auth/guest
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	id := h.identity.SignInGuest()
	h.signedIn(w, r, http.StatusCreated, id)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.Token(r); token != "" {
		if err := h.identity.SignOut(r.Context(), token); err != nil {
			h.logger.Error("sign out", "error", err)
		}
	}
	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Federated handles GET /auth/federated by redirecting to the provider. The
// nonce cookie ties the callback to the browser that started the sign-in.
func (h *AuthHandler) Federated(w http.ResponseWriter, r *http.Request) {
	url, nonce, err := h.identity.FederatedURL()
	if err != nil {
		respondError(w, r, h.logger, "federated url", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     federatedCookieName,
		Value:    nonce,
		Path:     federatedCookiePath,
		MaxAge:   int(h.identity.StateTTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies || r.TLS != nil,
	})
	http.Redirect(w, r, url, http.StatusFound)
}

// FederatedCallback handles GET /auth/federated/callback
func (h *AuthHandler) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	var nonce string
	if c, err := r.Cookie(federatedCookieName); err == nil {
		nonce = c.Value
	}
	http.SetCookie(w, &http.Cookie{
		Name:     federatedCookieName,
		Value:    "",
		Path:     federatedCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
	})

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.logger.Warn("federated sign-in declined", "error", e)
		writeError(w, r, http.StatusBadRequest, "federated_failed", i18n.FederatedFailed)
		return
	}

	id, err := h.identity.CompleteFederated(r.Context(), q.Get("state"), nonce, q.Get("code"))
	if err != nil {
		switch {
		case isMapped(err):
			respondError(w, r, h.logger, "federated sign-in", err)
		default:
			h.logger.Warn("federated sign-in failed", "error", err)
			writeError(w, r, http.StatusBadGateway, "federated_failed", i18n.FederatedFailed)
		}
		return
	}

	if _, err := h.profiles.SignedIn(r.Context(), *id); err != nil {
		respondError(w, r, h.logger, "load profile after federated sign-in", err)
		return
	}
	h.setSessionCookie(w, r, id.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
