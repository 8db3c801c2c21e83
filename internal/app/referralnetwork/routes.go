// Package referralnetwork собирает HTTP-приложение реферальной сети.
package referralnetwork

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/referral-network/internal/config"
	"github.com/magabrotheeeer/referral-network/internal/http/handlers/health"
	"github.com/magabrotheeeer/referral-network/internal/http/handlers/transactions/create"
	"github.com/magabrotheeeer/referral-network/internal/http/handlers/users/children"
	"github.com/magabrotheeeer/referral-network/internal/http/handlers/users/login"
	"github.com/magabrotheeeer/referral-network/internal/http/handlers/users/me"
	"github.com/magabrotheeeer/referral-network/internal/http/handlers/users/parent"
	"github.com/magabrotheeeer/referral-network/internal/http/handlers/users/signup"
	"github.com/magabrotheeeer/referral-network/internal/http/middlewarectx"
	"github.com/magabrotheeeer/referral-network/internal/services/auth"
	"github.com/magabrotheeeer/referral-network/internal/services/commission"
	"github.com/magabrotheeeer/referral-network/internal/services/family"
)

// Services содержит сервисы, которые обслуживают маршруты.
type Services struct {
	Auth       *auth.Service
	Commission *commission.Service
	Family     *family.Service
	Health     health.Pinger
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, svc Services) {
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middlewarectx.MetricsMiddleware,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.RPS, cfg.Burst))

		r.Post("/users/signup", signup.New(logger, svc.Auth).ServeHTTP)
		r.Post("/users/login", login.New(logger, svc.Auth, cfg.TokenTTL).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(svc.Auth, logger))
			r.Get("/users/me", me.New(logger, svc.Family).ServeHTTP)
			r.Get("/users/parent", parent.New(logger, svc.Family).ServeHTTP)
			r.Get("/users/children", children.New(logger, svc.Family).ServeHTTP)
			r.Post("/transactions", create.New(logger, svc.Commission).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, svc.Health, cfg.Storage.Timeout).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
}
