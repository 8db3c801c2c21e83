package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/referral-network/internal/lib/sl"
)

// ErrDiscard означает, что сообщение нельзя обработать никогда и его не нужно возвращать в очередь.
var ErrDiscard = errors.New("discard message")

// Handler обрабатывает тело сообщения с ключом маршрутизации routingKey.
type Handler func(ctx context.Context, routingKey string, body []byte) error

// Consume запускает чтение очереди queue и обработку сообщений не более чем
// в workers горутинах. Успешно обработанные сообщения подтверждаются,
// остальные возвращаются в очередь, кроме отброшенных через ErrDiscard.
// Чтение прекращается при отмене ctx или закрытии канала.
//
// Возвращаемый канал закрывается, когда чтение остановлено и все начатые
// обработчики подтвердили свои сообщения. Канал AMQP можно закрывать только после этого.
func Consume(ctx context.Context, ch *amqp.Channel, queue string, workers int, log *slog.Logger, handler Handler) (<-chan struct{}, error) {
	const op = "rabbitmq.Consume"
	delivery, err := ch.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("op", op), slog.String("queue", queue))
	sem := make(chan struct{}, max(workers, 1))
	done := make(chan struct{})
	go func() {
		var inflight sync.WaitGroup
		defer func() {
			inflight.Wait()
			close(done)
		}()
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				sem <- struct{}{}
				inflight.Add(1)
				go func(d amqp.Delivery) {
					defer func() {
						<-sem
						inflight.Done()
					}()
					settle(ctx, log, d, handler)
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done, nil
}

func settle(ctx context.Context, log *slog.Logger, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.RoutingKey, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack message", sl.Err(ackErr))
		}
	case errors.Is(err, ErrDiscard):
		log.Warn("message discarded", slog.String("routing_key", d.RoutingKey), sl.Err(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
	default:
		log.Error("failed to handle message", slog.String("routing_key", d.RoutingKey), sl.Err(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
	}
}
