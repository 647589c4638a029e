package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/ecoquest/internal/i18n"
	"github.com/dukerupert/ecoquest/internal/identity"
	"github.com/dukerupert/ecoquest/internal/photo"
	"github.com/dukerupert/ecoquest/internal/profile"
	"github.com/dukerupert/ecoquest/internal/review"
	"github.com/dukerupert/ecoquest/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError writes a localized error body. code is stable for clients,
// key selects the message shown to the user.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, key string, args ...any) {
	writeJSON(w, status, errorResponse{
		Error:   code,
		Message: i18n.T(i18n.FromContext(r.Context()), key, args...),
	})
}

type errorMapping struct {
	target error
	status int
	code   string
	key    string
}

var errorMappings = []errorMapping{
	{identity.ErrInvalidEmail, http.StatusBadRequest, "invalid_email", i18n.InvalidEmail},
	{identity.ErrWeakPassword, http.StatusBadRequest, "weak_password", i18n.WeakPassword},
	{identity.ErrEmailTaken, http.StatusConflict, "email_taken", i18n.EmailTaken},
	{identity.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", i18n.InvalidCredentials},
	{identity.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", i18n.SignInRequired},
	{identity.ErrRequiresRecentLogin, http.StatusUnauthorized, "requires_recent_login", i18n.RequiresRecentLogin},
	{identity.ErrFederatedDisabled, http.StatusServiceUnavailable, "federated_unavailable", i18n.FederatedUnavailable},
	{identity.ErrInvalidState, http.StatusBadRequest, "federated_failed", i18n.FederatedFailed},
	{profile.ErrGuest, http.StatusForbidden, "guest", i18n.GuestCannotSubmit},
	{profile.ErrCategoryRequired, http.StatusBadRequest, "category_required", i18n.CategoryRequired},
	{profile.ErrNotFound, http.StatusNotFound, "not_found", i18n.NotFound},
	{photo.ErrInvalidPhoto, http.StatusBadRequest, "invalid_photo", i18n.InvalidPhoto},
	{review.ErrForbidden, http.StatusForbidden, "forbidden", i18n.TeacherOnly},
	{review.ErrInvalidPoints, http.StatusBadRequest, "invalid_points", i18n.NegativePoints},
	{store.ErrNotPending, http.StatusConflict, "not_pending", i18n.AlreadyReviewed},
	{store.ErrNotFound, http.StatusNotFound, "not_found", i18n.NotFound},
}

// respondError maps a service error to its status and localized message.
// Anything unexpected is logged and reported as a 500.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.target == identity.ErrWeakPassword {
				writeError(w, r, m.status, m.code, m.key, identity.MinPasswordLength)
				return
			}
			writeError(w, r, m.status, m.code, m.key)
			return
		}
	}
	logger.Error(op, "error", err)
	writeError(w, r, http.StatusInternalServerError, "internal", i18n.Internal)
}

func isMapped(err error) bool {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return true
		}
	}
	return false
}
