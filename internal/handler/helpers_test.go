package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonocairns/tskr/internal/auth"
	"github.com/jonocairns/tskr/internal/chore"
	"github.com/jonocairns/tskr/internal/database"
	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/store"
	"github.com/jonocairns/tskr/internal/websocket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type member struct {
	id   int64
	role model.Role
}

// testEnv is one household with a dictator, an approver, and a doer.
type testEnv struct {
	householdID int64
	dictator    member
	approver    member
	doer        member

	users      *store.UserStore
	households *store.HouseholdStore
	sessions   *store.SessionStore
	tasks      *store.TaskStore
	points     *store.PointLogStore
	reminders  *store.ReminderStore
	pushStore  *store.PushStore
	hub        *websocket.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		users:      store.NewUserStore(db),
		households: store.NewHouseholdStore(db),
		sessions:   store.NewSessionStore(db),
		tasks:      store.NewTaskStore(db),
		points:     store.NewPointLogStore(db),
		reminders:  store.NewReminderStore(db),
		pushStore:  store.NewPushStore(db),
		hub:        websocket.NewHub(discardLogger()),
	}

	h, err := env.households.Create("Test Household")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	env.householdID = h.ID

	env.dictator = env.addMember(t, "dee@example.com", model.RoleDictator)
	env.approver = env.addMember(t, "abe@example.com", model.RoleApprover)
	env.doer = env.addMember(t, "dan@example.com", model.RoleDoer)
	return env
}

func (e *testEnv) addMember(t *testing.T, email string, role model.Role) member {
	t.Helper()
	return e.addMemberTo(t, e.householdID, email, role)
}

func (e *testEnv) taskHandler(now time.Time) *TaskHandler {
	h := NewTaskHandler(e.tasks, e.points, e.households, chore.NewCalculator(time.UTC, discardLogger()), e.hub, discardLogger())
	h.now = func() time.Time { return now }
	return h
}

func (e *testEnv) pointHandler(now time.Time) *PointHandler {
	h := NewPointHandler(e.points, e.households, e.hub, discardLogger())
	h.now = func() time.Time { return now }
	return h
}

func (e *testEnv) createTask(t *testing.T, in store.TaskInput) *model.AssignedTask {
	t.Helper()
	task, err := e.tasks.Create(e.householdID, e.dictator.id, in)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

// do runs h for a request made by m. pattern is the mux pattern used to
// populate path values, e.g. "POST /api/tasks/{id}/complete".
func (e *testEnv) do(t *testing.T, h http.HandlerFunc, m member, pattern, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	method, _, _ := strings.Cut(pattern, " ")
	req := httptest.NewRequest(method, target, reader)
	ctx := auth.WithAuth(req.Context(), auth.AuthContext{UserID: m.id, HouseholdID: e.householdID, Role: m.role})
	req = req.WithContext(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func completionTimes(t *testing.T, e *testEnv, taskID int64) []time.Time {
	t.Helper()
	times, err := e.points.ListCompletionTimes(context.Background(), taskID)
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	return times
}

func (e *testEnv) addMemberTo(t *testing.T, householdID int64, email string, role model.Role) member {
	t.Helper()
	u, err := e.users.Create(context.Background(), email, email)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := e.households.AddMember(householdID, u.ID, role); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return member{id: u.ID, role: role}
}

// doIn is do for a member acting in another household.
func (e *testEnv) doIn(t *testing.T, householdID int64, h http.HandlerFunc, m member, pattern, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	saved := e.householdID
	e.householdID = householdID
	defer func() { e.householdID = saved }()
	return e.do(t, h, m, pattern, target, body)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func taskPath(id int64, suffix string) string {
	return "/api/tasks/" + itoa(id) + suffix
}

func pointPath(id int64, suffix string) string {
	return "/api/points/" + itoa(id) + suffix
}
