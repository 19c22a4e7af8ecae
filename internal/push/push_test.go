package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jonocairns/tskr/internal/database"
	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/reminder"
	"github.com/jonocairns/tskr/internal/store"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	if pub == "" {
		t.Error("expected non-empty public key")
	}
	if priv == "" {
		t.Error("expected non-empty private key")
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	// Generate again, should be different
	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(Config{})
	if svc.Enabled() {
		t.Error("expected service without keys to be disabled")
	}
	if svc.subject != DefaultSubject {
		t.Errorf("subject = %q, want %q", svc.subject, DefaultSubject)
	}
}

// subscriptionKeys returns browser-style p256dh and auth keys.
func subscriptionKeys(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate subscription key: %v", err)
	}
	auth := make([]byte, 16)
	rand.Read(auth)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()), base64.RawURLEncoding.EncodeToString(auth)
}

type broadcastEnv struct {
	subs        *store.PushStore
	broadcaster *Broadcaster
	householdID int64
	aliceID     int64
	bobID       int64
	server      *httptest.Server
	hits        atomic.Int32
}

func newBroadcastEnv(t *testing.T) *broadcastEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hs := store.NewHouseholdStore(db)
	us := store.NewUserStore(db)
	h, _ := hs.Create("Home")
	alice, _ := us.Create(context.Background(), "alice@example.com", "Alice")
	bob, _ := us.Create(context.Background(), "bob@example.com", "Bob")
	hs.AddMember(h.ID, alice.ID, model.RoleDictator)
	hs.AddMember(h.ID, bob.ID, model.RoleDoer)

	env := &broadcastEnv{subs: store.NewPushStore(db), householdID: h.ID, aliceID: alice.ID, bobID: bob.ID}
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.hits.Add(1)
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(env.server.Close)

	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.broadcaster = NewBroadcaster(NewService(Config{VAPIDPublicKey: pub, VAPIDPrivateKey: priv}), env.subs, logger)
	return env
}

func (e *broadcastEnv) subscribe(t *testing.T, userID int64, path string) {
	t.Helper()
	p256dh, auth := subscriptionKeys(t)
	if _, err := e.subs.CreateSubscription(userID, e.householdID, e.server.URL+path, p256dh, auth, path); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
}

func TestBroadcastToUser(t *testing.T) {
	env := newBroadcastEnv(t)
	env.subscribe(t, env.bobID, "/bob-phone")
	env.subscribe(t, env.bobID, "/gone")
	env.subscribe(t, env.aliceID, "/alice-phone")

	sent, err := env.broadcaster.BroadcastPush(context.Background(),
		reminder.Message{Title: "Daily check-in", Body: "hi"},
		reminder.Target{UserID: env.bobID, HouseholdID: env.householdID},
	)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if hits := env.hits.Load(); hits != 2 {
		t.Errorf("push service hits = %d, want 2", hits)
	}

	subs, _ := env.subs.ListByUser(env.bobID, env.householdID)
	if len(subs) != 1 || subs[0].DeviceName != "/bob-phone" {
		t.Errorf("bob subs = %+v, want expired subscription removed", subs)
	}
}

func TestBroadcastToHouseholdExcludesUser(t *testing.T) {
	env := newBroadcastEnv(t)
	env.subscribe(t, env.bobID, "/bob-phone")
	env.subscribe(t, env.aliceID, "/alice-phone")

	sent, err := env.broadcaster.BroadcastPush(context.Background(),
		reminder.Message{Title: "Task done"},
		reminder.Target{HouseholdID: env.householdID, ExcludeUserID: env.aliceID},
	)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if sent != 1 || env.hits.Load() != 1 {
		t.Errorf("sent = %d hits = %d, want 1 and 1", sent, env.hits.Load())
	}
}

func TestBroadcastDisabledService(t *testing.T) {
	env := newBroadcastEnv(t)
	env.subscribe(t, env.bobID, "/bob-phone")
	b := NewBroadcaster(NewService(Config{}), env.subs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sent, err := b.BroadcastPush(context.Background(), reminder.Message{}, reminder.Target{UserID: env.bobID, HouseholdID: env.householdID})
	if err != nil || sent != 0 {
		t.Errorf("sent = %d err = %v, want 0 and nil", sent, err)
	}
	if env.hits.Load() != 0 {
		t.Error("expected no push service calls without VAPID keys")
	}
}
