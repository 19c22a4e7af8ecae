package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonocairns/tskr/internal/auth"
	"github.com/jonocairns/tskr/internal/model"
)

const testCookie = "test_session"

func (e *testEnv) sessionHandler() *SessionHandler {
	return NewSessionHandler(e.users, e.households, e.sessions, testCookie, discardLogger())
}

// doSession is do with a real session behind the request.
func (e *testEnv) doSession(t *testing.T, h http.HandlerFunc, m member, sess *model.Session, pattern, target string) *httptest.ResponseRecorder {
	t.Helper()
	method, _, _ := strings.Cut(pattern, " ")
	req := httptest.NewRequest(method, target, nil)
	ctx := auth.WithAuth(req.Context(), auth.AuthContext{
		UserID:      m.id,
		HouseholdID: sess.HouseholdID,
		Role:        m.role,
		SessionID:   sess.ID,
	})
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func (e *testEnv) newSession(t *testing.T, m member) *model.Session {
	t.Helper()
	sess, err := e.sessions.Create(m.id, e.householdID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func TestSessionMe(t *testing.T) {
	env := newTestEnv(t)
	h := env.sessionHandler()

	rec := env.doSession(t, h.Me, env.approver, env.newSession(t, env.approver), "GET /api/me", "/api/me")
	expectStatus(t, rec, http.StatusOK)

	type meResponse struct {
		User        model.User        `json:"user"`
		HouseholdID int64             `json:"household_id"`
		Role        model.Role        `json:"role"`
		Households  []model.Household `json:"households"`
	}
	got := decode[meResponse](t, rec)
	if got.User.ID != env.approver.id || got.User.Email != "abe@example.com" {
		t.Errorf("user = %+v", got.User)
	}
	if got.HouseholdID != env.householdID || got.Role != model.RoleApprover {
		t.Errorf("household_id = %d role = %q", got.HouseholdID, got.Role)
	}
	if len(got.Households) != 1 {
		t.Errorf("households = %d, want 1", len(got.Households))
	}
}

func TestSessionSwitchHousehold(t *testing.T) {
	env := newTestEnv(t)
	h := env.sessionHandler()

	other, err := env.households.Create("Cabin")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := env.households.AddMember(other.ID, env.doer.id, model.RoleDictator); err != nil {
		t.Fatalf("add member: %v", err)
	}
	sess := env.newSession(t, env.doer)

	rec := env.doSession(t, h.SwitchHousehold, env.approver, env.newSession(t, env.approver),
		"POST /api/households/{id}/switch", "/api/households/"+itoa(other.ID)+"/switch")
	expectStatus(t, rec, http.StatusForbidden)

	rec = env.doSession(t, h.SwitchHousehold, env.doer, sess,
		"POST /api/households/{id}/switch", "/api/households/"+itoa(other.ID)+"/switch")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec); got["role"] != string(model.RoleDictator) {
		t.Errorf("role = %v", got["role"])
	}

	stored, err := env.sessions.GetByToken(sess.Token)
	if err != nil || stored == nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.HouseholdID != other.ID {
		t.Errorf("session household = %d, want %d", stored.HouseholdID, other.ID)
	}
}

func TestSessionLogout(t *testing.T) {
	env := newTestEnv(t)
	h := env.sessionHandler()

	first := env.newSession(t, env.doer)
	second := env.newSession(t, env.doer)

	rec := env.doSession(t, h.Logout, env.doer, first, "POST /api/logout", "/api/logout")
	expectStatus(t, rec, http.StatusNoContent)
	if sess, _ := env.sessions.GetByToken(first.Token); sess != nil {
		t.Error("first session still valid")
	}
	if sess, _ := env.sessions.GetByToken(second.Token); sess == nil {
		t.Error("second session removed by single logout")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != testCookie || cookies[0].MaxAge >= 0 {
		t.Errorf("cookies = %+v", cookies)
	}

	third := env.newSession(t, env.doer)
	rec = env.doSession(t, h.Logout, env.doer, third, "POST /api/logout", "/api/logout?all=true")
	expectStatus(t, rec, http.StatusNoContent)
	for _, s := range []*model.Session{second, third} {
		if sess, _ := env.sessions.GetByToken(s.Token); sess != nil {
			t.Errorf("session %d still valid after logout all", s.ID)
		}
	}
}
