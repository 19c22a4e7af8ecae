package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonocairns/tskr/internal/auth"
	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/store"
	"github.com/jonocairns/tskr/internal/websocket"
)

type PointHandler struct {
	points  *store.PointLogStore
	members *store.HouseholdStore
	hub     *websocket.Hub
	logger  *slog.Logger
	now     func() time.Time
}

func NewPointHandler(ps *store.PointLogStore, hs *store.HouseholdStore, hub *websocket.Hub, logger *slog.Logger) *PointHandler {
	return &PointHandler{
		points:  ps,
		members: hs,
		hub:     hub,
		logger:  logger.With("component", "points"),
		now:     time.Now,
	}
}

func (h *PointHandler) broadcast(householdID int64, ev websocket.Event) {
	if h.hub != nil {
		h.hub.Broadcast(householdID, ev)
	}
}

func (h *PointHandler) load(w http.ResponseWriter, r *http.Request) (*model.PointLog, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	entry, err := h.points.GetByID(r.Context(), id, auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("get point log", "point_log_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get point log")
		return nil, false
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "point log not found")
		return nil, false
	}
	return entry, true
}

// Pending handles GET /api/points/pending
func (h *PointHandler) Pending(w http.ResponseWriter, r *http.Request) {
	logs, err := h.points.ListPending(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list pending", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list pending points")
		return
	}
	if logs == nil {
		logs = []model.PointLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// Approve handles POST /api/points/{id}/approve
func (h *PointHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, model.StatusApproved, "approved")
}

// Reject handles POST /api/points/{id}/reject
func (h *PointHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, model.StatusRejected, "rejected")
}

func (h *PointHandler) review(w http.ResponseWriter, r *http.Request, status model.PointLogStatus, action string) {
	entry, ok := h.load(w, r)
	if !ok {
		return
	}

	reviewerID := auth.UserID(r.Context())
	if entry.UserID == reviewerID {
		writeError(w, http.StatusForbidden, "you cannot review your own points")
		return
	}

	updated, err := h.points.Review(r.Context(), entry.ID, entry.HouseholdID, reviewerID, status, h.now())
	if errors.Is(err, store.ErrNotReviewable) {
		writeError(w, http.StatusConflict, "point log is not pending")
		return
	}
	if err != nil {
		h.logger.Error("review point log", "point_log_id", entry.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to review point log")
		return
	}

	h.broadcast(updated.HouseholdID, websocket.NewEvent("point", action, updated.ID, updated.UserID, nil))
	writeJSON(w, http.StatusOK, updated)
}

// Revert handles POST /api/points/{id}/revert. Members may revert their own
// logs; dictators may revert any.
func (h *PointHandler) Revert(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.load(w, r)
	if !ok {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	if entry.UserID != ac.UserID && ac.Role != model.RoleDictator {
		writeError(w, http.StatusForbidden, "you can only revert your own points")
		return
	}

	updated, err := h.points.Revert(r.Context(), entry.ID, entry.HouseholdID, h.now())
	if err != nil {
		h.logger.Error("revert point log", "point_log_id", entry.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to revert point log")
		return
	}

	h.broadcast(updated.HouseholdID, websocket.NewEvent("point", "reverted", updated.ID, updated.UserID, nil))
	writeJSON(w, http.StatusOK, updated)
}

// Balance handles GET /api/points/balance
func (h *PointHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	balance, err := h.points.Balance(r.Context(), userID, auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("point balance", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"user_id": userID, "balance": int64(balance)})
}

type adjustRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	Points int    `json:"points" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// Adjust handles POST /api/points/adjust, a manual approved grant or
// deduction. Manual logs never count as task activity.
func (h *PointHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	householdID := auth.HouseholdID(r.Context())
	member, err := h.members.GetMember(householdID, req.UserID)
	if err != nil {
		h.logger.Error("get member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check member")
		return
	}
	if member == nil {
		writeError(w, http.StatusBadRequest, "user is not a household member")
		return
	}

	entry, err := h.points.Create(r.Context(), store.PointLogInput{
		HouseholdID: householdID,
		UserID:      req.UserID,
		Kind:        model.KindManual,
		Points:      req.Points,
		Status:      model.StatusApproved,
		Note:        strings.TrimSpace(req.Note),
		CreatedAt:   h.now(),
	})
	if err != nil {
		h.logger.Error("adjust points", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to adjust points")
		return
	}

	h.broadcast(householdID, websocket.NewEvent("point", "adjusted", entry.ID, entry.UserID, map[string]any{"points": entry.Points}))
	writeJSON(w, http.StatusCreated, entry)
}
