package postgresql

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/referral-network/internal/models"
)

// CreateTransaction сохраняет транзакцию пользователя.
func (s *Storage) CreateTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error) {
	const op = "storage.postgresql.CreateTransaction"

	out := tx
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO transactions (user_uid, amount)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		tx.UserID, tx.Amount,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return &out, nil
}
