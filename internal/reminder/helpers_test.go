package reminder

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jonocairns/tskr/internal/database"
	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNotifier struct {
	mu      sync.Mutex
	calls   []Target
	msgs    []Message
	devices int
	err     error
}

func (n *fakeNotifier) BroadcastPush(_ context.Context, msg Message, target Target) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, target)
	n.msgs = append(n.msgs, msg)
	return n.devices, n.err
}

func (n *fakeNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// testEnv is a household with two members, alice and bob, wired to a
// finder and sender backed by an in-memory database.
type testEnv struct {
	db          *sql.DB
	reminders   *store.ReminderStore
	points      *store.PointLogStore
	householdID int64
	aliceID     int64
	bobID       int64
	notifier    *fakeNotifier
	finder      *Finder
	sender      *Sender
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hs := store.NewHouseholdStore(db)
	us := store.NewUserStore(db)
	h, err := hs.Create("Test Household")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	alice, _ := us.Create(context.Background(), "alice@example.com", "Alice")
	bob, _ := us.Create(context.Background(), "bob@example.com", "Bob")
	if _, err := hs.AddMember(h.ID, alice.ID, model.RoleDictator); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := hs.AddMember(h.ID, bob.ID, model.RoleDoer); err != nil {
		t.Fatalf("add member: %v", err)
	}

	env := &testEnv{
		db:          db,
		reminders:   store.NewReminderStore(db),
		points:      store.NewPointLogStore(db),
		householdID: h.ID,
		aliceID:     alice.ID,
		bobID:       bob.ID,
		notifier:    &fakeNotifier{devices: 1},
	}
	env.finder = NewFinder(env.reminders, env.points, discardLogger())
	env.sender = NewSender(env.reminders, env.notifier, discardLogger())
	return env
}

func (e *testEnv) configure(t *testing.T, mutate func(c *model.HouseholdReminderConfig)) {
	t.Helper()
	cfg := *store.DefaultReminderConfig(e.householdID)
	mutate(&cfg)
	if _, err := e.reminders.UpsertHouseholdConfig(context.Background(), cfg); err != nil {
		t.Fatalf("upsert config: %v", err)
	}
}

func (e *testEnv) override(t *testing.T, o model.UserReminderOverride) {
	t.Helper()
	o.HouseholdID = e.householdID
	if _, err := e.reminders.UpsertOverride(context.Background(), o); err != nil {
		t.Fatalf("upsert override: %v", err)
	}
}

func (e *testEnv) sendLogCount(t *testing.T) int {
	t.Helper()
	var n int
	if err := e.db.QueryRow(`SELECT COUNT(*) FROM reminder_send_logs`).Scan(&n); err != nil {
		t.Fatalf("count send logs: %v", err)
	}
	return n
}

func users(due []Eligible) map[int64]bool {
	out := make(map[int64]bool, len(due))
	for _, d := range due {
		out[d.UserID] = true
	}
	return out
}
