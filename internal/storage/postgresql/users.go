package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/referral-network/internal/models"
	"github.com/magabrotheeeer/referral-network/internal/storage"
)

const selectUser = `
	SELECT u.uid, u.username, u.password_hash, u.referral_code, u.referred_by,
	       u.direct_earnings, u.indirect_earnings, u.created_at,
	       COALESCE((SELECT string_agg(c.uid::text, ',' ORDER BY c.seq)
	                 FROM users c WHERE c.referred_by = u.uid), '')
	FROM users u`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u          models.User
		referredBy sql.NullString
		referrals  string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.ReferralCode, &referredBy,
		&u.DirectEarnings, &u.IndirectEarnings, &u.CreatedAt, &referrals); err != nil {
		return nil, err
	}
	if referredBy.Valid {
		u.ReferredBy = &referredBy.String
	}
	if referrals != "" {
		u.Referrals = strings.Split(referrals, ",")
	}
	return &u, nil
}

// UserByUsername возвращает пользователя по имени.
func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.postgresql.UserByUsername"

	u, err := scanUser(s.DB.QueryRowContext(ctx, selectUser+` WHERE u.username = $1`, username))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return u, nil
}

// UserByReferralCode возвращает пользователя по реферальному коду.
func (s *Storage) UserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	const op = "storage.postgresql.UserByReferralCode"

	u, err := scanUser(s.DB.QueryRowContext(ctx, selectUser+` WHERE u.referral_code = $1`, code))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return u, nil
}

// UserByID возвращает пользователя по его UID.
func (s *Storage) UserByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.postgresql.UserByID"

	u, err := scanUser(s.DB.QueryRowContext(ctx, selectUser+` WHERE u.uid = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return u, nil
}

// UsersByReferredBy возвращает пользователей, приглашённых любым из ids, в порядке регистрации.
func (s *Storage) UsersByReferredBy(ctx context.Context, ids []string) ([]*models.User, error) {
	const op = "storage.postgresql.UsersByReferredBy"
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.DB.QueryContext(ctx, selectUser+` WHERE u.referred_by = ANY($1::uuid[]) ORDER BY u.seq`, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateUser в одной транзакции блокирует строку реферера, проверяет лимит
// прямых рефералов и вставляет нового пользователя.
func (s *Storage) CreateUser(ctx context.Context, user models.User, maxReferrals int) (*models.User, error) {
	const op = "storage.postgresql.CreateUser"

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var referredBy any
	if user.ReferredBy != nil {
		referredBy = *user.ReferredBy

		var parentID string
		err := tx.QueryRowContext(ctx, `SELECT uid FROM users WHERE uid = $1 FOR UPDATE`, referredBy).Scan(&parentID)
		if err != nil {
			return nil, fmt.Errorf("%s: referrer: %w", op, mapError(err))
		}

		var count int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE referred_by = $1`, referredBy).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if count >= maxReferrals {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrReferralLimit)
		}
	}

	created := models.User{
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		ReferralCode: user.ReferralCode,
		ReferredBy:   user.ReferredBy,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, referral_code, referred_by)
		VALUES ($1, $2, $3, $4)
		RETURNING uid, created_at`,
		user.Username, user.PasswordHash, user.ReferralCode, referredBy,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &created, nil
}

// AddDirectEarnings увеличивает прямой доход пользователя на delta.
func (s *Storage) AddDirectEarnings(ctx context.Context, id string, delta float64) error {
	const op = "storage.postgresql.AddDirectEarnings"
	return s.addEarnings(ctx, op, `UPDATE users SET direct_earnings = direct_earnings + $1 WHERE uid = $2`, id, delta)
}

// AddIndirectEarnings увеличивает косвенный доход пользователя на delta.
func (s *Storage) AddIndirectEarnings(ctx context.Context, id string, delta float64) error {
	const op = "storage.postgresql.AddIndirectEarnings"
	return s.addEarnings(ctx, op, `UPDATE users SET indirect_earnings = indirect_earnings + $1 WHERE uid = $2`, id, delta)
}

func (s *Storage) addEarnings(ctx context.Context, op, query, id string, delta float64) error {
	res, err := s.DB.ExecContext(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return nil
}
