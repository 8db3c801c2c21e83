// Package response формирует единые JSON-ответы HTTP-обработчиков
// и переводит ошибки сервисов в HTTP-статусы.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/referral-network/internal/models"
)

// Response описывает стандартную структуру JSON-ответа.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

const (
	// StatusOK — значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError — значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError собирает нарушения валидации в одно сообщение через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "alphanum":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only numbers and letters", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is too short", err.Field()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is too long", err.Field()))
		case "gt":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be greater than %s", err.Field(), err.Param()))
		case "refcode":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid referral code", err.Field()))
		case "len":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be exactly %s characters", err.Field(), err.Param()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}

// FromError выбирает HTTP-статус и тело ответа для ошибки сервиса.
// Внутренние подробности сбоев в тело не попадают.
func FromError(err error) (int, Response) {
	switch {
	case errors.Is(err, models.ErrInvalidAmount):
		return http.StatusBadRequest, Error(models.ErrInvalidAmount.Error())
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized, Error(models.ErrInvalidCredentials.Error())
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, Error(models.ErrNotFound.Error())
	case errors.Is(err, models.ErrNoParent):
		return http.StatusNotFound, Error(models.ErrNoParent.Error())
	case errors.Is(err, models.ErrDuplicateUsername):
		return http.StatusConflict, Error(models.ErrDuplicateUsername.Error())
	case errors.Is(err, models.ErrInvalidReferralCode):
		return http.StatusUnprocessableEntity, Error(models.ErrInvalidReferralCode.Error())
	case errors.Is(err, models.ErrReferralLimitReached):
		return http.StatusUnprocessableEntity, Error(models.ErrReferralLimitReached.Error())
	case errors.Is(err, models.ErrPartialCommission):
		return http.StatusInternalServerError, Error(models.ErrPartialCommission.Error())
	case errors.Is(err, models.ErrBrokenAncestry):
		return http.StatusInternalServerError, Error("internal error")
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, Error("service temporarily unavailable")
	default:
		return http.StatusInternalServerError, Error("internal error")
	}
}
