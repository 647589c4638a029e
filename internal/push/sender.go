package push

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/ecoquest/internal/store"
)

// Sender fans a payload out to every device a user subscribed and drops
// subscriptions the push service reports as gone.
type Sender struct {
	service *Service
	push    *store.PushStore
	logger  *slog.Logger
}

func NewSender(svc *Service, pushStore *store.PushStore, logger *slog.Logger) *Sender {
	return &Sender{service: svc, push: pushStore, logger: logger}
}

// SendToUser returns the number of devices that accepted the notification.
func (s *Sender) SendToUser(ctx context.Context, userID int64, payload Payload) int {
	if !s.service.Configured() {
		return 0
	}

	subs, err := s.push.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return 0
	}

	sent := 0
	for _, sub := range subs {
		if err := s.service.Send(ctx, &sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := s.push.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
					s.logger.Error("delete expired subscription", "error", err)
				}
			} else {
				s.logger.Warn("send push", "user_id", userID, "error", err)
			}
			continue
		}
		sent++
	}
	return sent
}
