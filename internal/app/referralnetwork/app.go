package referralnetwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/referral-network/internal/cache"
	"github.com/magabrotheeeer/referral-network/internal/config"
	"github.com/magabrotheeeer/referral-network/internal/lib/jwt"
	"github.com/magabrotheeeer/referral-network/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/referral-network/internal/lib/refcode"
	"github.com/magabrotheeeer/referral-network/internal/lib/sl"
	"github.com/magabrotheeeer/referral-network/internal/migrations"
	"github.com/magabrotheeeer/referral-network/internal/services/auth"
	"github.com/magabrotheeeer/referral-network/internal/services/commission"
	"github.com/magabrotheeeer/referral-network/internal/services/family"
	"github.com/magabrotheeeer/referral-network/internal/services/referral"
	"github.com/magabrotheeeer/referral-network/internal/storage/memory"
	"github.com/magabrotheeeer/referral-network/internal/storage/mongodb"
	"github.com/magabrotheeeer/referral-network/internal/storage/postgresql"
)

const shutdownTimeout = 15 * time.Second

// Store объединяет всё, что сервисы приложения требуют от хранилища.
type Store interface {
	referral.Store
	commission.Store
	family.Store
	Ping(ctx context.Context) error
	io.Closer
}

// ViewCache это кэш представлений с явным закрытием.
type ViewCache interface {
	family.Cache
	io.Closer
}

// EventBus публикует события и закрывается вместе с приложением.
type EventBus interface {
	referral.EventPublisher
	io.Closer
}

type App struct {
	server *http.Server
	logger *slog.Logger
	store  Store
	cache  ViewCache
	events EventBus
}

// New открывает хранилище и внешние подключения и собирает HTTP-сервер.
// Redis и RabbitMQ необязательны: без них кэш и события отключаются.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.referralnetwork.New"

	store, err := OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	viewCache, err := openCache(ctx, cfg.RedisConnection, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	events, err := openEvents(cfg.RabbitMQ, logger)
	if err != nil {
		_ = viewCache.Close()
		_ = store.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	referralService := referral.New(store, refcode.Generator{}, events, logger, cfg.CodeAttempts)
	services := Services{
		Auth:       auth.New(referralService, store, jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)),
		Commission: commission.New(store, events, logger),
		Family:     family.New(store, viewCache, logger),
		Health:     store,
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, services)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		store:  store,
		cache:  viewCache,
		events: events,
	}, nil
}

// Handler возвращает корневой HTTP-обработчик приложения.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run обслуживает запросы до отмены ctx, затем останавливает сервер и закрывает подключения.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}

	a.Close()
	return err
}

// Close закрывает хранилище, кэш и публикатор событий.
func (a *App) Close() {
	for name, c := range map[string]io.Closer{"events": a.events, "cache": a.cache, "store": a.store} {
		if err := c.Close(); err != nil {
			a.logger.Error("failed to close", slog.String("resource", name), sl.Err(err))
		}
	}
}

// OpenStore открывает хранилище выбранного драйвера. Для PostgreSQL применяются миграции.
func OpenStore(ctx context.Context, cfg config.Storage, logger *slog.Logger) (Store, error) {
	const op = "app.referralnetwork.OpenStore"

	openCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	switch cfg.Driver {
	case config.DriverPostgres:
		st, err := postgresql.New(openCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := migrations.Run(st.DB, cfg.MigrationsPath); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("storage opened", slog.String("driver", cfg.Driver))
		return st, nil
	case config.DriverMongo:
		st, err := mongodb.New(openCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("storage opened", slog.String("driver", cfg.Driver), slog.String("database", cfg.MongoDatabase))
		return st, nil
	case config.DriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%s: unknown driver %q", op, cfg.Driver)
	}
}

func openCache(ctx context.Context, cfg config.RedisConnection, logger *slog.Logger) (ViewCache, error) {
	if cfg.AddressRedis == "" {
		logger.Info("redis address is empty, view cache disabled")
		return cache.Nop{}, nil
	}
	c, err := cache.InitServer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func openEvents(cfg config.RabbitMQ, logger *slog.Logger) (EventBus, error) {
	if !cfg.Enabled {
		logger.Info("rabbitmq disabled, events are discarded")
		return rabbitmq.Discard{}, nil
	}
	p, err := rabbitmq.NewPublisher(cfg.URL, cfg.Exchange, cfg.ConnectRetries, cfg.ConnectDelay)
	if err != nil {
		return nil, err
	}
	return p, nil
}
