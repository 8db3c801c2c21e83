package models

import "errors"

// Ожидаемые исходы операций ядра. Проверяются через errors.Is.
var (
	ErrDuplicateUsername    = errors.New("username already exists")
	ErrInvalidReferralCode  = errors.New("invalid referral code")
	ErrReferralLimitReached = errors.New("referral limit reached")
	ErrInvalidAmount        = errors.New("amount must be a positive number")
	ErrNoParent             = errors.New("no parent referral found")
	ErrNotFound             = errors.New("user not found")
	ErrInvalidCredentials   = errors.New("invalid username or password")
)

// Сбои, которые не являются ошибкой запроса.
var (
	// ErrStoreUnavailable — временный сбой хранилища, запрос можно повторить целиком.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrBrokenAncestry — ссылка ReferredBy указывает на несуществующего пользователя.
	ErrBrokenAncestry = errors.New("referral ancestry is broken")
	// ErrPartialCommission — транзакция записана, но часть комиссий не начислена.
	ErrPartialCommission = errors.New("commission partially applied")
)

// IsValidation сообщает, относится ли ошибка к ожидаемым исходам запроса.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrDuplicateUsername),
		errors.Is(err, ErrInvalidReferralCode),
		errors.Is(err, ErrReferralLimitReached),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrNoParent),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidCredentials):
		return true
	}
	return false
}
