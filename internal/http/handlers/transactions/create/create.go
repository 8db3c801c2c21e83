// Package create реализует HTTP-обработчик записи транзакции текущего пользователя.
//
// В ответ возвращается квитанция: сама транзакция и исходы начисления комиссий
// по уровням. Если транзакция записана, а часть комиссий нет, квитанция
// отдаётся вместе со статусом 500.
package create

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/referral-network/internal/http/middlewarectx"
	"github.com/magabrotheeeer/referral-network/internal/http/response"
	"github.com/magabrotheeeer/referral-network/internal/lib/sl"
	"github.com/magabrotheeeer/referral-network/internal/models"
)

// Request содержит сумму транзакции.
type Request struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// Service записывает транзакцию и начисляет комиссии.
type Service interface {
	RecordTransaction(ctx context.Context, userID string, amount float64) (*models.Receipt, error)
}

// Handler обрабатывает POST /transactions.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.transactions.create"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Info("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		render.JSON(w, r, response.Error("invalid request"))
		return
	}

	receipt, err := h.service.RecordTransaction(r.Context(), userID, req.Amount)
	if err != nil {
		status, body := response.FromError(err)
		switch {
		case models.IsValidation(err):
			log.Info("transaction rejected", sl.Err(err))
		case receipt != nil:
			log.Error("transaction recorded with failed payouts",
				slog.String("transaction_id", receipt.Transaction.ID),
				slog.Int("failed", len(receipt.Failed())),
				sl.Err(err),
			)
			body.Data = receipt
		default:
			log.Error("failed to record transaction", sl.Err(err))
		}
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	log.Info("transaction recorded", slog.String("transaction_id", receipt.Transaction.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(receipt))
}
