package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/jonocairns/tskr/internal/config"
	"github.com/jonocairns/tskr/internal/database"
	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/push"
	"github.com/jonocairns/tskr/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:              "http://localhost:8080",
		RemindersEnabled:     true,
		ReminderPollInterval: time.Minute,
		SendLogRetention:     90 * 24 * time.Hour,
		CompleteRateLimit:    1,
		CompleteRateWindow:   time.Minute,
		BackupInterval:       24 * time.Hour,
	}
}

type fixture struct {
	srv      *Server
	handler  http.Handler
	tokens   map[model.Role]string
	userIDs  map[model.Role]int64
	sessions *store.SessionStore
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	households := store.NewHouseholdStore(db)
	sessions := store.NewSessionStore(db)

	h, err := households.Create("Home")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}

	f := &fixture{tokens: map[model.Role]string{}, userIDs: map[model.Role]int64{}, sessions: sessions}
	for _, role := range []model.Role{model.RoleDictator, model.RoleApprover, model.RoleDoer} {
		u, err := users.Create(context.Background(), string(role)+"@example.com", string(role))
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		if _, err := households.AddMember(h.ID, u.ID, role); err != nil {
			t.Fatalf("add member: %v", err)
		}
		sess, err := sessions.Create(u.ID, h.ID)
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		f.tokens[role] = sess.Token
		f.userIDs[role] = u.ID
	}

	f.srv = New(db, cfg, testLogger())
	f.handler = f.srv.Router()
	return f
}

func (f *fixture) request(t *testing.T, role model.Role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token := f.tokens[role]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.request(t, "", http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "ok" || got["push"] != false || got["reminders"] != false {
		t.Errorf("health = %v", got)
	}
	if b, ok := got["backup"].(map[string]any); !ok || b["enabled"] != false {
		t.Errorf("health backup = %v", got["backup"])
	}
}

func TestRouterRequiresAuth(t *testing.T) {
	f := newFixture(t, testConfig())

	for _, path := range []string{"/api/me", "/api/tasks", "/api/reminders/me", "/ws"} {
		rec := f.request(t, "", http.MethodGet, path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus token = %d, want 401", rec.Code)
	}
}

func TestRouterRoleGates(t *testing.T) {
	f := newFixture(t, testConfig())

	task := map[string]any{
		"assignee_id":              f.userIDs[model.RoleDoer],
		"title":                    "Feed the cat",
		"points":                   5,
		"cadence_target":           1,
		"cadence_interval_minutes": 1440,
		"is_recurring":             true,
	}

	tests := []struct {
		role   model.Role
		method string
		path   string
		body   any
		want   int
	}{
		{model.RoleDoer, http.MethodPost, "/api/tasks", task, http.StatusForbidden},
		{model.RoleApprover, http.MethodPost, "/api/tasks", task, http.StatusForbidden},
		{model.RoleDictator, http.MethodPost, "/api/tasks", task, http.StatusCreated},
		{model.RoleDoer, http.MethodGet, "/api/points/pending", nil, http.StatusForbidden},
		{model.RoleApprover, http.MethodGet, "/api/points/pending", nil, http.StatusOK},
		{model.RoleApprover, http.MethodPut, "/api/reminders/household", map[string]any{}, http.StatusForbidden},
		{model.RoleDoer, http.MethodGet, "/api/reminders/me/effective", nil, http.StatusOK},
		{model.RoleDoer, http.MethodGet, "/api/push/vapid-key", nil, http.StatusOK},
	}
	for _, tt := range tests {
		rec := f.request(t, tt.role, tt.method, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s %s %s = %d, want %d (%s)", tt.role, tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
		}
	}
}

func TestRouterPushRoutesNeedKeys(t *testing.T) {
	f := newFixture(t, testConfig())
	rec := f.request(t, model.RoleDoer, http.MethodGet, "/api/push/subscriptions", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("subscriptions without VAPID = %d, want 404", rec.Code)
	}

	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	cfg := testConfig()
	cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey = pub, priv
	f = newFixture(t, cfg)
	rec = f.request(t, model.RoleDoer, http.MethodGet, "/api/push/subscriptions", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("subscriptions with VAPID = %d, want 200", rec.Code)
	}
}

func TestRouterCompleteRateLimited(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.request(t, model.RoleDictator, http.MethodPost, "/api/tasks", map[string]any{
		"assignee_id":              f.userIDs[model.RoleDoer],
		"title":                    "Water plants",
		"points":                   2,
		"cadence_target":           3,
		"cadence_interval_minutes": 1440,
		"is_recurring":             true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task = %d: %s", rec.Code, rec.Body.String())
	}
	var task model.AssignedTask
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}

	path := "/api/tasks/" + strconv.FormatInt(task.ID, 10) + "/complete"
	rec = f.request(t, model.RoleDoer, http.MethodPost, path, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first complete = %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.request(t, model.RoleDoer, http.MethodPost, path, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second complete = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.request(t, model.RoleDoer, http.MethodPost, "/api/logout", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", rec.Code)
	}
	rec = f.request(t, model.RoleDoer, http.MethodGet, "/api/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("me after logout = %d, want 401", rec.Code)
	}
}

func TestStartWithoutPushSkipsScheduler(t *testing.T) {
	f := newFixture(t, testConfig())

	f.srv.Start(context.Background())
	defer f.srv.Stop()

	if !f.srv.registry.Running(MaintenanceName) {
		t.Error("maintenance loop not running")
	}
	if f.srv.registry.Running(SchedulerName) {
		t.Error("scheduler running without VAPID keys")
	}
	if f.srv.registry.Running(BackupName) {
		t.Error("backup loop running without storage")
	}
}

func TestStartWithPushRunsScheduler(t *testing.T) {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	cfg := testConfig()
	cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey = pub, priv
	f := newFixture(t, cfg)

	f.srv.Start(context.Background())
	if !f.srv.Scheduler().Running() {
		t.Error("scheduler not running")
	}
	f.srv.Stop()
	if f.srv.Scheduler().Running() {
		t.Error("scheduler still running after Stop")
	}
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, testConfig())
	// Cleanup must not disturb live sessions.
	f.srv.Cleanup(context.Background())

	rec := f.request(t, model.RoleDoer, http.MethodGet, "/api/me", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("me after cleanup = %d, want 200", rec.Code)
	}
}
