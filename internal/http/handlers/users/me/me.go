// Package me реализует HTTP-обработчик, возвращающий данные текущего пользователя.
package me

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/referral-network/internal/http/middlewarectx"
	"github.com/magabrotheeeer/referral-network/internal/http/response"
	"github.com/magabrotheeeer/referral-network/internal/lib/sl"
	"github.com/magabrotheeeer/referral-network/internal/models"
)

// Service читает данные пользователя.
type Service interface {
	Self(ctx context.Context, userID string) (*models.SelfView, error)
}

// Handler обрабатывает GET /users/me.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.me"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user identification missing")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	self, err := h.service.Self(r.Context(), userID)
	if err != nil {
		log.Error("failed to read user", slog.String("user_id", userID), sl.Err(err))
		status, body := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(self))
}
