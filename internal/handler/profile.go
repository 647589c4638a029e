package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/ecoquest/internal/auth"
	"github.com/dukerupert/ecoquest/internal/catalog"
	"github.com/dukerupert/ecoquest/internal/middleware"
	"github.com/dukerupert/ecoquest/internal/profile"
)

type ProfileHandler struct {
	profiles *profile.Service
	logger   *slog.Logger
}

func NewProfileHandler(ps *profile.Service, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: ps, logger: logger}
}

// Get handles GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	p, err := h.profiles.Profile(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Dashboard handles GET /api/dashboard
func (h *ProfileHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	d, err := h.profiles.Dashboard(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteAccount handles DELETE /api/account. A stale login is answered with
// 401 requires_recent_login so the client can ask for the password again.
func (h *ProfileHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.DeleteAccount(r.Context(), middleware.Token(r)); err != nil {
		respondError(w, r, h.logger, "delete account", err)
		return
	}
	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type catalogResponse struct {
	Categories []catalog.Category `json:"categories"`
	Badges     []catalog.Badge    `json:"badges"`
}

// Catalog handles GET /api/catalog
func Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{
		Categories: catalog.Categories(),
		Badges:     catalog.Badges(),
	})
}
