package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/reminder"
	"github.com/jonocairns/tskr/internal/store"
)

// Broadcaster fans a message out to the push subscriptions of a target.
type Broadcaster struct {
	service *Service
	subs    *store.PushStore
	logger  *slog.Logger
}

func NewBroadcaster(svc *Service, subs *store.PushStore, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		service: svc,
		subs:    subs,
		logger:  logger.With("component", "push"),
	}
}

func (b *Broadcaster) recipients(target reminder.Target) ([]model.PushSubscription, error) {
	if target.UserID != 0 {
		return b.subs.ListByUser(target.UserID, target.HouseholdID)
	}

	all, err := b.subs.ListByHousehold(target.HouseholdID)
	if err != nil {
		return nil, err
	}
	subs := all[:0]
	for _, sub := range all {
		if sub.UserID != target.ExcludeUserID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// BroadcastPush sends msg to every device of the target and returns how
// many accepted it. Expired subscriptions are removed. An error is returned
// only when no device was reached and at least one send failed.
func (b *Broadcaster) BroadcastPush(ctx context.Context, msg reminder.Message, target reminder.Target) (int, error) {
	if !b.service.Enabled() {
		return 0, nil
	}

	subs, err := b.recipients(target)
	if err != nil {
		return 0, fmt.Errorf("list push recipients: %w", err)
	}

	payload := Payload{Title: msg.Title, Body: msg.Body, URL: msg.URL, Icon: msg.Icon, Badge: msg.Badge}

	sent := 0
	var errs []error
	for _, sub := range subs {
		err := b.service.Send(ctx, &sub, payload)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrExpired):
			b.logger.Info("removing expired push subscription", "subscription_id", sub.ID, "user_id", sub.UserID)
			if err := b.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				b.logger.Error("delete expired push subscription", "error", err)
			}
		default:
			b.logger.Warn("push send failed", "subscription_id", sub.ID, "user_id", sub.UserID, "error", err)
			errs = append(errs, err)
		}
	}

	if sent == 0 && len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return sent, nil
}
