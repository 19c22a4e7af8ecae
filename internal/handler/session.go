package handler

import (
	"log/slog"
	"net/http"

	"github.com/jonocairns/tskr/internal/auth"
	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/store"
)

type SessionHandler struct {
	users      *store.UserStore
	households *store.HouseholdStore
	sessions   *store.SessionStore
	cookieName string
	logger     *slog.Logger
}

func NewSessionHandler(us *store.UserStore, hs *store.HouseholdStore, ss *store.SessionStore, cookieName string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		users:      us,
		households: hs,
		sessions:   ss,
		cookieName: cookieName,
		logger:     logger.With("component", "session"),
	}
}

// Me handles GET /api/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	user, err := h.users.GetByID(r.Context(), ac.UserID)
	if err != nil || user == nil {
		h.logger.Error("get user", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	households, err := h.households.ListHouseholdsForUser(ac.UserID)
	if err != nil {
		h.logger.Error("list households", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list households")
		return
	}
	if households == nil {
		households = []model.Household{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":         user,
		"household_id": ac.HouseholdID,
		"role":         ac.Role,
		"households":   households,
	})
}

// SwitchHousehold handles POST /api/households/{id}/switch
func (h *SessionHandler) SwitchHousehold(w http.ResponseWriter, r *http.Request) {
	householdID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	ac, _ := auth.FromContext(r.Context())
	member, err := h.households.GetMember(householdID, ac.UserID)
	if err != nil {
		h.logger.Error("get member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to switch household")
		return
	}
	if member == nil {
		writeError(w, http.StatusForbidden, "not a member of that household")
		return
	}

	if err := h.sessions.UpdateHouseholdID(ac.SessionID, householdID); err != nil {
		h.logger.Error("switch household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to switch household")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"household_id": householdID, "role": member.Role})
}

// Logout handles POST /api/logout. With ?all=true every session of the
// user is removed.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var err error
	if r.URL.Query().Get("all") == "true" {
		err = h.sessions.DeleteByUserID(ac.UserID)
	} else {
		err = h.sessions.Delete(ac.SessionID)
	}
	if err != nil {
		h.logger.Error("logout", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
