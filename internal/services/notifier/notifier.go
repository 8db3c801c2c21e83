// Package notifier превращает доменные события из брокера в уведомления пользователям.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/referral-network/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/referral-network/internal/metrics"
	"github.com/magabrotheeeer/referral-network/internal/models"
)

// Sink доставляет уведомление получателю.
type Sink interface {
	Deliver(ctx context.Context, n models.Notification) error
}

// Service разбирает события и передаёт уведомления в Sink.
type Service struct {
	sink Sink
	log  *slog.Logger
}

// New создаёт Service.
func New(sink Sink, log *slog.Logger) *Service {
	return &Service{
		sink: sink,
		log:  log,
	}
}

// Handle обрабатывает одно событие. Нераспознанные и повреждённые события
// возвращаются с ErrDiscard, ошибки доставки можно повторить.
func (s *Service) Handle(ctx context.Context, routingKey string, body []byte) (err error) {
	const op = "services.notifier.Handle"
	defer func() { metrics.EventsConsumedTotal.WithLabelValues(routingKey, outcome(err)).Inc() }()

	var n *models.Notification
	switch routingKey {
	case models.EventUserRegistered:
		var e models.UserRegistered
		if err := json.Unmarshal(body, &e); err != nil {
			return fmt.Errorf("%s: %w: %w", op, rabbitmq.ErrDiscard, err)
		}
		if e.ReferredBy == nil {
			// корню некого уведомлять
			return nil
		}
		n = &models.Notification{
			RecipientID: *e.ReferredBy,
			Kind:        models.NotificationReferralJoined,
			Text:        fmt.Sprintf("%s joined using your referral code", e.Username),
			OccurredAt:  e.OccurredAt,
		}
	case models.EventCommissionCredited:
		var e models.CommissionCredited
		if err := json.Unmarshal(body, &e); err != nil {
			return fmt.Errorf("%s: %w: %w", op, rabbitmq.ErrDiscard, err)
		}
		n = &models.Notification{
			RecipientID: e.BeneficiaryID,
			Kind:        models.NotificationCommissionReceived,
			Text:        fmt.Sprintf("you received a %s commission of %.2f", e.Tier, e.Amount),
			OccurredAt:  e.OccurredAt,
		}
	default:
		return fmt.Errorf("%s: unknown event %q: %w", op, routingKey, rabbitmq.ErrDiscard)
	}

	if err := s.sink.Deliver(ctx, *n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug("notification delivered", slog.String("kind", n.Kind), slog.String("recipient_id", n.RecipientID))
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "delivered"
	}
	return "failed"
}

// LogSink пишет уведомления в лог.
type LogSink struct {
	Log *slog.Logger
}

// Deliver записывает уведомление в лог на уровне Info.
func (l LogSink) Deliver(_ context.Context, n models.Notification) error {
	l.Log.Info("notification",
		slog.String("recipient_id", n.RecipientID),
		slog.String("kind", n.Kind),
		slog.String("text", n.Text),
		slog.Time("occurred_at", n.OccurredAt),
	)
	return nil
}

var _ Sink = LogSink{}
