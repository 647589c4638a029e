package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/ecoquest/internal/auth"
	"github.com/dukerupert/ecoquest/internal/i18n"
	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/push"
	"github.com/dukerupert/ecoquest/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
		return
	}

	sub, err := h.pushStore.CreateSubscription(r.Context(), id.UserID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		respondError(w, r, h.logger, "create push subscription", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	subID, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", i18n.InvalidRequest)
		return
	}

	if err := h.pushStore.DeleteSubscription(r.Context(), subID, id.UserID); err != nil {
		respondError(w, r, h.logger, "delete push subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	subs, err := h.pushStore.ListByUser(r.Context(), id.UserID)
	if err != nil {
		respondError(w, r, h.logger, "list push subscriptions", err)
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}
