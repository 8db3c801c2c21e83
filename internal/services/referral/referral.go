// Package referral регистрирует пользователей и встраивает их в реферальное дерево.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/referral-network/internal/lib/sl"
	"github.com/magabrotheeeer/referral-network/internal/metrics"
	"github.com/magabrotheeeer/referral-network/internal/models"
	"github.com/magabrotheeeer/referral-network/internal/storage"
)

// MaxReferrals ограничивает число прямых рефералов у одного пользователя.
const MaxReferrals = 8

// Store описывает часть хранилища, нужную для регистрации.
type Store interface {
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByReferralCode(ctx context.Context, code string) (*models.User, error)
	CreateUser(ctx context.Context, user models.User, maxReferrals int) (*models.User, error)
}

// CodeGenerator выдаёт новые реферальные коды.
type CodeGenerator interface {
	Generate() string
}

// EventPublisher публикует доменные события.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Service реализует регистрацию пользователей.
type Service struct {
	store        Store
	codes        CodeGenerator
	events       EventPublisher
	log          *slog.Logger
	codeAttempts int
}

// New создаёт Service. codeAttempts ограничивает число попыток сгенерировать свободный код.
func New(store Store, codes CodeGenerator, events EventPublisher, log *slog.Logger, codeAttempts int) *Service {
	if codeAttempts < 1 {
		codeAttempts = 1
	}
	return &Service{
		store:        store,
		codes:        codes,
		events:       events,
		log:          log,
		codeAttempts: codeAttempts,
	}
}

// RegisterUser создаёт пользователя. Если referralCode не пуст, пользователь
// становится прямым рефералом владельца кода.
func (s *Service) RegisterUser(ctx context.Context, username, passwordHash, referralCode string) (user *models.User, err error) {
	const op = "services.referral.RegisterUser"
	log := s.log.With(slog.String("op", op), slog.String("username", username))
	defer func() { metrics.ObserveRegistration(err) }()

	_, err = s.store.UserByUsername(ctx, username)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%s: %w", op, models.ErrDuplicateUsername)
	case !errors.Is(err, storage.ErrUserNotFound):
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
	}

	var referrer *models.User
	if code := strings.ToUpper(strings.TrimSpace(referralCode)); code != "" {
		referrer, err = s.store.UserByReferralCode(ctx, code)
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidReferralCode)
		case err != nil:
			return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
		}
		if len(referrer.Referrals) >= MaxReferrals {
			return nil, fmt.Errorf("%s: %w", op, models.ErrReferralLimitReached)
		}
	}

	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		candidate := models.User{
			Username:     username,
			PasswordHash: passwordHash,
			ReferralCode: s.codes.Generate(),
		}
		if referrer != nil {
			parentID := referrer.ID
			candidate.ReferredBy = &parentID
		}

		user, err = s.store.CreateUser(ctx, candidate, MaxReferrals)
		switch {
		case err == nil:
			log.Info("user registered", slog.String("user_id", user.ID))
			s.publish(ctx, log, user)
			return user, nil
		case errors.Is(err, storage.ErrReferralCodeTaken):
			log.Warn("referral code collision, regenerating", slog.Int("attempt", attempt))
			continue
		case errors.Is(err, storage.ErrUsernameTaken):
			return nil, fmt.Errorf("%s: %w", op, models.ErrDuplicateUsername)
		case errors.Is(err, storage.ErrReferralLimit):
			return nil, fmt.Errorf("%s: %w", op, models.ErrReferralLimitReached)
		case errors.Is(err, storage.ErrUserNotFound):
			return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidReferralCode)
		default:
			return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
		}
	}

	err = fmt.Errorf("%s: %w: no free referral code after %d attempts", op, models.ErrStoreUnavailable, s.codeAttempts)
	log.Error("failed to register user", sl.Err(err))
	return nil, err
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, user *models.User) {
	event := models.UserRegistered{
		UserID:     user.ID,
		Username:   user.Username,
		ReferredBy: user.ReferredBy,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, models.EventUserRegistered, event); err != nil {
		log.Warn("failed to publish event", slog.String("event", models.EventUserRegistered), sl.Err(err))
	}
}
