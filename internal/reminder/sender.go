package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/store"
)

// Message is the notification shown to a member.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
}

// Target selects recipients: one member's devices when UserID is set,
// otherwise every device in the household except ExcludeUserID's.
type Target struct {
	UserID        int64
	HouseholdID   int64
	ExcludeUserID int64
}

// Notifier delivers a message and reports how many devices it reached.
type Notifier interface {
	BroadcastPush(ctx context.Context, msg Message, target Target) (int, error)
}

const messageURL = "/"

// Icon and badge paths shown with every notification.
const (
	DefaultIcon  = "/static/icons/icon-192.png"
	DefaultBadge = "/static/icons/badge-72.png"
)

// MessageFor builds the notification text for a due reminder.
func MessageFor(e Eligible) Message {
	msg := Message{URL: messageURL, Icon: DefaultIcon, Badge: DefaultBadge}
	switch e.Type {
	case model.ReminderDaily:
		msg.Title = "Daily check-in"
		msg.Body = "Log today's chores to keep your streak going."
	case model.ReminderWeekly:
		msg.Title = "Weekly check-in"
		msg.Body = "Review this week's chores and points."
	case model.ReminderInterval:
		msg.Title = "Chore reminder"
		msg.Body = fmt.Sprintf("It's been %d days since your last reminder.", e.Days)
	case model.ReminderEvent:
		msg.Title = "We miss you"
		msg.Body = fmt.Sprintf("No chores logged in the last %d days.", e.Days)
	}
	return msg
}

// LockKey is the send log key that allows one delivery per member,
// household, type and UTC date.
func LockKey(e Eligible, now time.Time) string {
	return fmt.Sprintf("%d:%d:%s:%s", e.UserID, e.HouseholdID, e.Type, now.UTC().Format(time.DateOnly))
}

// SendResult tallies a batch of sends.
type SendResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// maxConcurrentSends bounds the goroutines SendMany runs at once.
const maxConcurrentSends = 16

// Sender claims a send log row for each due reminder and then pushes the
// notification to the member's devices.
type Sender struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
}

// NewSender creates a sender that records sends in s and delivers through n.
func NewSender(s Store, n Notifier, logger *slog.Logger) *Sender {
	return &Sender{
		store:    s,
		notifier: n,
		logger:   logger.With("component", "reminder_sender"),
	}
}

// Send delivers one reminder and reports whether a notification reached at
// least one device. The send log row is committed before the transport is
// called, so a reminder is never delivered twice for the same lock key. A
// transport failure still consumes the key. at is the time of the pass that
// found e; it picks the lock key date and the pause check, so a pass that
// straddles midnight keys every send to the day it started. Errors and
// panics are logged, never returned.
func (s *Sender) Send(ctx context.Context, e Eligible, at time.Time) (sent bool) {
	log := s.logger.With("user_id", e.UserID, "household_id", e.HouseholdID, "type", e.Type)
	defer func() {
		if r := recover(); r != nil {
			log.Error("reminder send panicked", "panic", r)
			sent = false
		}
	}()

	key := LockKey(e, at)

	result, _, err := s.store.ClaimSend(ctx, store.SendClaim{
		UserID:      e.UserID,
		HouseholdID: e.HouseholdID,
		Type:        e.Type,
		LockKey:     key,
		SentAt:      at,
	}, func(o *model.UserReminderOverride) bool {
		return IsPaused(o, at)
	})
	if err != nil {
		log.Error("claim reminder send", "lock_key", key, "error", err)
		return false
	}

	switch result {
	case store.ClaimDuplicate:
		log.Info("reminder already sent", "lock_key", key)
		return false
	case store.ClaimPaused:
		log.Info("reminder skipped, member paused", "lock_key", key)
		return false
	}

	n, err := s.notifier.BroadcastPush(ctx, MessageFor(e), Target{UserID: e.UserID, HouseholdID: e.HouseholdID})
	if err != nil {
		log.Error("deliver reminder", "lock_key", key, "error", err)
		return false
	}
	if n == 0 {
		log.Info("reminder reached no devices", "lock_key", key)
	}
	return n > 0
}

// SendMany sends every reminder found by the pass at time at concurrently.
// One failure never stops the others.
func (s *Sender) SendMany(ctx context.Context, due []Eligible, at time.Time) SendResult {
	var sent, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)
	for _, e := range due {
		g.Go(func() error {
			if s.Send(ctx, e, at) {
				sent.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	return SendResult{Sent: int(sent.Load()), Failed: int(failed.Load())}
}
