package store

import (
	"context"
	"testing"
	"time"
)

// setupSessionTestDB returns stores and the id of a fresh household.
func setupSessionTestDB(t *testing.T) (*SessionStore, *UserStore, *HouseholdStore, int64) {
	t.Helper()
	db := openTestDB(t)
	hs := NewHouseholdStore(db)
	h, err := hs.Create("Home")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return NewSessionStore(db), NewUserStore(db), hs, h.ID
}

func TestSessionCreate(t *testing.T) {
	ss, us, _, hid := setupSessionTestDB(t)

	u, err := us.Create(context.Background(), "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	sess, err := ss.Create(u.ID, hid)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Token == "" {
		t.Error("expected non-empty token")
	}
	if len(sess.Token) != 64 { // 32 bytes hex-encoded
		t.Errorf("token length = %d, want 64", len(sess.Token))
	}
	if sess.UserID != u.ID {
		t.Errorf("user_id = %d, want %d", sess.UserID, u.ID)
	}
	if sess.HouseholdID != hid {
		t.Errorf("household_id = %d, want %d", sess.HouseholdID, hid)
	}
}

func TestSessionGetByToken(t *testing.T) {
	ss, us, _, hid := setupSessionTestDB(t)

	u, _ := us.Create(context.Background(), "alice@example.com", "Alice")
	created, _ := ss.Create(u.ID, hid)

	sess, err := ss.GetByToken(created.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.ID != created.ID {
		t.Errorf("id = %d, want %d", sess.ID, created.ID)
	}
}

func TestSessionGetByTokenNotFound(t *testing.T) {
	ss, _, _, _ := setupSessionTestDB(t)

	sess, err := ss.GetByToken("nonexistent")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for nonexistent token")
	}
}

func TestSessionDelete(t *testing.T) {
	ss, us, _, hid := setupSessionTestDB(t)

	u, _ := us.Create(context.Background(), "alice@example.com", "Alice")
	created, _ := ss.Create(u.ID, hid)

	if err := ss.Delete(created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	sess, err := ss.GetByToken(created.Token)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if sess != nil {
		t.Error("expected nil after delete")
	}
}

func TestSessionDeleteByUserID(t *testing.T) {
	ss, us, _, hid := setupSessionTestDB(t)

	u, _ := us.Create(context.Background(), "alice@example.com", "Alice")
	ss.Create(u.ID, hid)
	ss.Create(u.ID, hid)

	if err := ss.DeleteByUserID(u.ID); err != nil {
		t.Fatalf("delete by user id: %v", err)
	}

	// Both sessions should be gone
	var count int
	ss.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, u.ID).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 sessions, got %d", count)
	}
}

func TestSessionUpdateHouseholdID(t *testing.T) {
	ss, us, hs, hid := setupSessionTestDB(t)

	u, _ := us.Create(context.Background(), "alice@example.com", "Alice")
	h2, _ := hs.Create("Second Household")
	created, _ := ss.Create(u.ID, hid)

	if err := ss.UpdateHouseholdID(created.ID, h2.ID); err != nil {
		t.Fatalf("update household id: %v", err)
	}

	sess, err := ss.GetByToken(created.Token)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if sess.HouseholdID != h2.ID {
		t.Errorf("household_id = %d, want %d", sess.HouseholdID, h2.ID)
	}
}

func TestSessionDeleteExpired(t *testing.T) {
	ss, us, _, hid := setupSessionTestDB(t)

	u, _ := us.Create(context.Background(), "alice@example.com", "Alice")
	live, _ := ss.Create(u.ID, hid)
	stale, _ := ss.Create(u.ID, hid)
	ss.db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`, time.Now().UTC().Add(-time.Hour), stale.ID)

	n, err := ss.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	if sess, _ := ss.GetByToken(live.Token); sess == nil {
		t.Error("expected live session to survive")
	}
}
