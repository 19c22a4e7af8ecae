package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jonocairns/tskr/internal/database"
	"github.com/jonocairns/tskr/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture is a household with a dictator and a doer.
type fixture struct {
	db          *sql.DB
	householdID int64
	dictatorID  int64
	doerID      int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)
	hs := NewHouseholdStore(db)
	us := NewUserStore(db)

	h, err := hs.Create("Test Household")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	dictator, err := us.Create(context.Background(), "dictator@example.com", "Dee")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	doer, err := us.Create(context.Background(), "doer@example.com", "Dan")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := hs.AddMember(h.ID, dictator.ID, model.RoleDictator); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := hs.AddMember(h.ID, doer.ID, model.RoleDoer); err != nil {
		t.Fatalf("add member: %v", err)
	}

	return &fixture{db: db, householdID: h.ID, dictatorID: dictator.ID, doerID: doer.ID}
}
