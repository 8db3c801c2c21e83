// Package signup реализует HTTP-обработчик регистрации пользователя,
// в том числе по реферальному коду пригласившего.
package signup

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/referral-network/internal/http/response"
	"github.com/magabrotheeeer/referral-network/internal/lib/refcode"
	"github.com/magabrotheeeer/referral-network/internal/lib/sl"
	"github.com/magabrotheeeer/referral-network/internal/models"
)

// Request содержит входные данные для регистрации.
type Request struct {
	Username     string `json:"username" validate:"required,min=3,max=50"`
	Password     string `json:"password" validate:"required,min=6,max=72"`
	ReferralCode string `json:"referral_code" validate:"omitempty,refcode"`
}

// Service регистрирует пользователя.
type Service interface {
	Signup(ctx context.Context, username, password, referralCode string) (*models.User, error)
}

// Handler обрабатывает POST /users/signup.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	validate := validator.New()
	_ = validate.RegisterValidation("refcode", func(fl validator.FieldLevel) bool {
		return refcode.Valid(fl.Field().String())
	})
	return &Handler{
		log:      log,
		service:  service,
		validate: validate,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.signup"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Info("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	req.ReferralCode = strings.ToUpper(strings.TrimSpace(req.ReferralCode))

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

	user, err := h.service.Signup(r.Context(), req.Username, req.Password, req.ReferralCode)
	if err != nil {
		status, body := response.FromError(err)
		if models.IsValidation(err) {
			log.Info("registration rejected", slog.String("username", req.Username), sl.Err(err))
		} else {
			log.Error("registration failed", sl.Err(err))
		}
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	log.Info("user registered", slog.String("user_id", user.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"id":            user.ID,
		"username":      user.Username,
		"referral_code": user.ReferralCode,
		"referred_by":   user.ReferredBy,
	}))
}
