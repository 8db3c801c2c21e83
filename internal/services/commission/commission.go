// Package commission записывает транзакции и начисляет комиссии двум уровням рефереров.
package commission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/magabrotheeeer/referral-network/internal/lib/sl"
	"github.com/magabrotheeeer/referral-network/internal/metrics"
	"github.com/magabrotheeeer/referral-network/internal/models"
	"github.com/magabrotheeeer/referral-network/internal/storage"
)

// Store описывает часть хранилища, нужную для записи транзакций.
type Store interface {
	UserByID(ctx context.Context, id string) (*models.User, error)
	CreateTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error)
	AddDirectEarnings(ctx context.Context, id string, delta float64) error
	AddIndirectEarnings(ctx context.Context, id string, delta float64) error
}

// EventPublisher публикует доменные события.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Service реализует запись транзакций.
type Service struct {
	store  Store
	events EventPublisher
	log    *slog.Logger
}

// New создаёт Service.
func New(store Store, events EventPublisher, log *slog.Logger) *Service {
	return &Service{
		store:  store,
		events: events,
		log:    log,
	}
}

// RecordTransaction сохраняет транзакцию пользователя userID и начисляет комиссии
// родителю и деду, если сумма превышает порог.
//
// Если транзакция записана, но часть начислений не удалась, возвращается и квитанция,
// и ошибка, оборачивающая ErrPartialCommission.
func (s *Service) RecordTransaction(ctx context.Context, userID string, amount float64) (*models.Receipt, error) {
	const op = "services.commission.RecordTransaction"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))

	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidAmount)
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, lookupError(op, err, models.ErrNotFound)
	}

	// предки разрешаются до любой записи
	var parent, grandparent *models.User
	if Qualifies(amount) && user.ReferredBy != nil {
		parent, err = s.store.UserByID(ctx, *user.ReferredBy)
		if err != nil {
			return nil, lookupError(op, err, models.ErrBrokenAncestry)
		}
		if parent.ReferredBy != nil {
			grandparent, err = s.store.UserByID(ctx, *parent.ReferredBy)
			if err != nil {
				return nil, lookupError(op, err, models.ErrBrokenAncestry)
			}
		}
	}

	tx, err := s.store.CreateTransaction(ctx, models.Transaction{UserID: user.ID, Amount: amount})
	if err != nil {
		return nil, lookupError(op, err, models.ErrNotFound)
	}
	log.Info("transaction recorded", slog.String("transaction_id", tx.ID), slog.Float64("amount", amount))

	receipt := &models.Receipt{Transaction: *tx}
	var errs []error
	for _, step := range []struct {
		tier        models.Tier
		beneficiary *models.User
		credit      func(context.Context, string, float64) error
	}{
		{tier: models.TierDirect, beneficiary: parent, credit: s.store.AddDirectEarnings},
		{tier: models.TierIndirect, beneficiary: grandparent, credit: s.store.AddIndirectEarnings},
	} {
		payout, err := s.credit(ctx, log, tx, step.tier, step.beneficiary, step.credit)
		receipt.Payouts = append(receipt.Payouts, payout)
		if err != nil {
			errs = append(errs, err)
		}
	}
	metrics.ObserveReceipt(receipt)

	if len(errs) > 0 {
		return receipt, fmt.Errorf("%s: %w: %w: %w", op, models.ErrPartialCommission, models.ErrStoreUnavailable, errors.Join(errs...))
	}
	return receipt, nil
}

func (s *Service) credit(
	ctx context.Context,
	log *slog.Logger,
	tx *models.Transaction,
	tier models.Tier,
	beneficiary *models.User,
	apply func(context.Context, string, float64) error,
) (models.Payout, error) {
	payout := models.Payout{Tier: tier, Status: models.PayoutSkipped}
	if beneficiary == nil || !Qualifies(tx.Amount) {
		return payout, nil
	}

	payout.BeneficiaryID = beneficiary.ID
	payout.Amount = Payout(tx.Amount, tier)
	if err := apply(ctx, beneficiary.ID, payout.Amount); err != nil {
		payout.Status = models.PayoutFailed
		log.Error("failed to credit commission",
			slog.String("tier", tier.String()),
			slog.String("beneficiary_id", beneficiary.ID),
			slog.Float64("amount", payout.Amount),
			sl.Err(err),
		)
		return payout, fmt.Errorf("tier %s: %w", tier, err)
	}
	payout.Status = models.PayoutCredited

	event := models.CommissionCredited{
		TransactionID: tx.ID,
		BeneficiaryID: beneficiary.ID,
		Tier:          tier,
		Amount:        payout.Amount,
		OccurredAt:    time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, models.EventCommissionCredited, event); err != nil {
		log.Warn("failed to publish event", slog.String("event", models.EventCommissionCredited), sl.Err(err))
	}
	return payout, nil
}

// lookupError переводит ErrUserNotFound в kind, остальное считает сбоем хранилища.
func lookupError(op string, err error, kind error) error {
	if errors.Is(err, storage.ErrUserNotFound) {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}
