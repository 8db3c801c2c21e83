// Package notifier собирает фоновый процесс, который читает доменные события
// из RabbitMQ и рассылает уведомления участникам сети.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/referral-network/internal/config"
	"github.com/magabrotheeeer/referral-network/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/referral-network/internal/lib/sl"
	notifierservice "github.com/magabrotheeeer/referral-network/internal/services/notifier"
)

type App struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	service *notifierservice.Service
	workers int
	logger  *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.notifier.New"
	if !cfg.RabbitMQ.Enabled {
		return nil, fmt.Errorf("%s: %w", op, errors.New("rabbitmq is disabled in config"))
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.ConnectRetries, cfg.ConnectDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := rabbitmq.SetupChannel(conn, cfg.Exchange, rabbitmq.EventQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &App{
		conn:    conn,
		ch:      ch,
		service: notifierservice.New(notifierservice.LogSink{Log: logger}, logger),
		workers: cfg.Workers,
		logger:  logger,
	}, nil
}

// Run читает все очереди событий до отмены ctx. Перед закрытием канала
// дожидается, пока начатые обработчики подтвердят сообщения.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stopped []<-chan struct{}
	for _, q := range rabbitmq.EventQueues() {
		done, err := rabbitmq.Consume(ctx, a.ch, q.QueueName, a.workers, a.logger, a.service.Handle)
		if err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", q.QueueName), sl.Err(err))
			cancel()
			wait(stopped)
			a.close()
			return err
		}
		stopped = append(stopped, done)
		a.logger.Info("consumer started", slog.String("queue", q.QueueName))
	}

	<-ctx.Done()
	a.logger.Info("notifier shutting down gracefully")
	wait(stopped)
	a.close()
	return nil
}

func wait(stopped []<-chan struct{}) {
	for _, done := range stopped {
		<-done
	}
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
}
