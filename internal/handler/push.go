package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jonocairns/tskr/internal/auth"
	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/push"
	"github.com/jonocairns/tskr/internal/reminder"
	"github.com/jonocairns/tskr/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	notifier  reminder.Notifier
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, notifier reminder.Notifier, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, notifier: notifier, logger: logger.With("component", "push")}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint" validate:"required,url"`
	P256dh     string `json:"p256dh" validate:"required"`
	Auth       string `json:"auth" validate:"required"`
	DeviceName string `json:"device_name" validate:"max=100"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, err := h.pushStore.CreateSubscription(auth.UserID(r.Context()), auth.HouseholdID(r.Context()),
		req.Endpoint, req.P256dh, req.Auth, strings.TrimSpace(req.DeviceName))
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.pushStore.DeleteSubscription(id, auth.UserID(r.Context()), auth.HouseholdID(r.Context())); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByUser(auth.UserID(r.Context()), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"public_key": h.service.VAPIDPublicKey(),
		"enabled":    h.service.Enabled(),
	})
}

// TestNotification handles POST /api/push/test
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}

	msg := reminder.Message{
		Title: "Test notification",
		Body:  "Push notifications are working!",
		URL:   "/settings",
		Icon:  reminder.DefaultIcon,
		Badge: reminder.DefaultBadge,
	}
	sent, err := h.notifier.BroadcastPush(r.Context(), msg, reminder.Target{
		UserID:      auth.UserID(r.Context()),
		HouseholdID: auth.HouseholdID(r.Context()),
	})
	if err != nil {
		h.logger.Warn("test push", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
