// Package auth выдаёт и проверяет сессии пользователей реферальной сети.
// Пароли хешируются здесь, ядро регистрации получает уже готовый хеш.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/referral-network/internal/lib/jwt"
	"github.com/magabrotheeeer/referral-network/internal/lib/password"
	"github.com/magabrotheeeer/referral-network/internal/models"
	"github.com/magabrotheeeer/referral-network/internal/storage"
)

// Registrar встраивает нового пользователя в дерево.
type Registrar interface {
	RegisterUser(ctx context.Context, username, passwordHash, referralCode string) (*models.User, error)
}

// UserReader ищет пользователя по имени.
type UserReader interface {
	UserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Service отвечает за регистрацию, вход и проверку токенов.
type Service struct {
	registrar Registrar
	users     UserReader
	jwtMaker  jwt.Maker
}

// New создаёт Service.
func New(registrar Registrar, users UserReader, jwtMaker jwt.Maker) *Service {
	return &Service{
		registrar: registrar,
		users:     users,
		jwtMaker:  jwtMaker,
	}
}

// Signup хеширует пароль и регистрирует пользователя под владельцем referralCode.
func (s *Service) Signup(ctx context.Context, username, rawPassword, referralCode string) (*models.User, error) {
	const op = "services.auth.Signup"
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, err := s.registrar.RegisterUser(ctx, username, hashed, referralCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// Login проверяет пароль и выпускает JWT.
// Неизвестное имя и неверный пароль неразличимы для вызывающего.
func (s *Service) Login(ctx context.Context, username, rawPassword string) (string, *models.User, error) {
	const op = "services.auth.Login"
	user, err := s.users.UserByUsername(ctx, username)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		return "", nil, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
	case err != nil:
		return "", nil, fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
	}

	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
	}

	token, err := s.jwtMaker.GenerateToken(user.ID, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, user, nil
}

// ValidateToken проверяет JWT и возвращает его claims.
func (s *Service) ValidateToken(_ context.Context, token string) (*jwt.CustomClaims, error) {
	const op = "services.auth.ValidateToken"
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}
