package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonocairns/tskr/internal/auth"
	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/reminder"
	"github.com/jonocairns/tskr/internal/store"
)

const sendLogPageSize = 50

type ReminderHandler struct {
	reminders *store.ReminderStore
	logger    *slog.Logger
	now       func() time.Time
}

func NewReminderHandler(rs *store.ReminderStore, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{
		reminders: rs,
		logger:    logger.With("component", "reminders"),
		now:       time.Now,
	}
}

type householdConfigRequest struct {
	DailyEnabled    bool   `json:"daily_enabled"`
	DailyTime       string `json:"daily_time" validate:"clock"`
	WeeklyEnabled   bool   `json:"weekly_enabled"`
	WeeklyDay       int    `json:"weekly_day" validate:"min=0,max=6"`
	WeeklyTime      string `json:"weekly_time" validate:"clock"`
	IntervalEnabled bool   `json:"interval_enabled"`
	IntervalDays    int    `json:"interval_days" validate:"min=1,max=365"`
	EventEnabled    bool   `json:"event_enabled"`
	EventDays       int    `json:"event_days" validate:"min=1,max=365"`
}

// GetHousehold handles GET /api/reminders/household
func (h *ReminderHandler) GetHousehold(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.reminders.GetHouseholdConfig(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("get reminder config", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateHousehold handles PUT /api/reminders/household
func (h *ReminderHandler) UpdateHousehold(w http.ResponseWriter, r *http.Request) {
	var req householdConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := h.reminders.UpsertHouseholdConfig(r.Context(), model.HouseholdReminderConfig{
		HouseholdID:     auth.HouseholdID(r.Context()),
		DailyEnabled:    req.DailyEnabled,
		DailyTime:       req.DailyTime,
		WeeklyEnabled:   req.WeeklyEnabled,
		WeeklyDay:       req.WeeklyDay,
		WeeklyTime:      req.WeeklyTime,
		IntervalEnabled: req.IntervalEnabled,
		IntervalDays:    req.IntervalDays,
		EventEnabled:    req.EventEnabled,
		EventDays:       req.EventDays,
	})
	if err != nil {
		h.logger.Error("update reminder config", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update reminder config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// overrideRequest fields are tri-state: null inherits the household value.
type overrideRequest struct {
	DailyEnabled    *bool   `json:"daily_enabled"`
	DailyTime       *string `json:"daily_time" validate:"omitnil,clock"`
	WeeklyEnabled   *bool   `json:"weekly_enabled"`
	WeeklyDay       *int    `json:"weekly_day" validate:"omitnil,min=0,max=6"`
	WeeklyTime      *string `json:"weekly_time" validate:"omitnil,clock"`
	IntervalEnabled *bool   `json:"interval_enabled"`
	IntervalDays    *int    `json:"interval_days" validate:"omitnil,min=1,max=365"`
	EventEnabled    *bool   `json:"event_enabled"`
	EventDays       *int    `json:"event_days" validate:"omitnil,min=1,max=365"`
}

func (h *ReminderHandler) override(r *http.Request) (*model.UserReminderOverride, error) {
	userID := auth.UserID(r.Context())
	householdID := auth.HouseholdID(r.Context())
	o, err := h.reminders.GetOverride(r.Context(), userID, householdID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		o = &model.UserReminderOverride{UserID: userID, HouseholdID: householdID}
	}
	return o, nil
}

// GetMine handles GET /api/reminders/me
func (h *ReminderHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	o, err := h.override(r)
	if err != nil {
		h.logger.Error("get reminder override", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder settings")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// UpdateMine handles PUT /api/reminders/me. Pause state is not changed here.
func (h *ReminderHandler) UpdateMine(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.reminders.UpsertOverride(r.Context(), model.UserReminderOverride{
		UserID:          auth.UserID(r.Context()),
		HouseholdID:     auth.HouseholdID(r.Context()),
		DailyEnabled:    req.DailyEnabled,
		DailyTime:       req.DailyTime,
		WeeklyEnabled:   req.WeeklyEnabled,
		WeeklyDay:       req.WeeklyDay,
		WeeklyTime:      req.WeeklyTime,
		IntervalEnabled: req.IntervalEnabled,
		IntervalDays:    req.IntervalDays,
		EventEnabled:    req.EventEnabled,
		EventDays:       req.EventDays,
	})
	if err != nil {
		h.logger.Error("update reminder override", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update reminder settings")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Effective handles GET /api/reminders/me/effective
func (h *ReminderHandler) Effective(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.reminders.GetHouseholdConfig(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("get reminder config", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve reminder settings")
		return
	}
	o, err := h.reminders.GetOverride(r.Context(), auth.UserID(r.Context()), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("get reminder override", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve reminder settings")
		return
	}

	var pausedUntil *time.Time
	if o != nil && o.IsPaused {
		pausedUntil = o.PausedUntil
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"effective":    reminder.Resolve(*cfg, o),
		"paused":       reminder.IsPaused(o, h.now()),
		"paused_until": pausedUntil,
	})
}

// Pause handles POST /api/reminders/me/pause with an optional
// {"until": RFC3339}. Without until the pause lasts until resumed.
func (h *ReminderHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Until *time.Time `json:"until"`
	}
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.Until != nil && !req.Until.After(h.now()) {
		writeError(w, http.StatusBadRequest, "until must be in the future")
		return
	}

	o, err := h.reminders.SetPause(r.Context(), auth.UserID(r.Context()), auth.HouseholdID(r.Context()), true, req.Until)
	if err != nil {
		h.logger.Error("pause reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to pause reminders")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Resume handles POST /api/reminders/me/resume
func (h *ReminderHandler) Resume(w http.ResponseWriter, r *http.Request) {
	o, err := h.reminders.SetPause(r.Context(), auth.UserID(r.Context()), auth.HouseholdID(r.Context()), false, nil)
	if err != nil {
		h.logger.Error("resume reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resume reminders")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Logs handles GET /api/reminders/logs
func (h *ReminderHandler) Logs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.reminders.ListSendLogs(r.Context(), auth.UserID(r.Context()), auth.HouseholdID(r.Context()), sendLogPageSize)
	if err != nil {
		h.logger.Error("list send logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	if logs == nil {
		logs = []model.ReminderSendLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// Snooze handles POST /api/reminders/logs/{id}/snooze
func (h *ReminderHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, model.SendStatusSnoozed)
}

// Dismiss handles POST /api/reminders/logs/{id}/dismiss
func (h *ReminderHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, model.SendStatusDismissed)
}

func (h *ReminderHandler) setStatus(w http.ResponseWriter, r *http.Request, status model.SendStatus) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	l, err := h.reminders.UpdateSendStatus(r.Context(), id, auth.UserID(r.Context()), status)
	if err != nil {
		h.logger.Error("update send status", "send_log_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update reminder")
		return
	}
	if l == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}
