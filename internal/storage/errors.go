// Package storage объявляет ошибки, общие для всех реализаций хранилища
// пользователей и транзакций (PostgreSQL, MongoDB, память).
package storage

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrReferralCodeTaken = errors.New("referral code already taken")
	ErrReferralLimit     = errors.New("referrer has no free referral slots")
)
