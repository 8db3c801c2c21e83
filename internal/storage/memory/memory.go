// Package memory реализует хранилище пользователей и транзакций в памяти процесса.
// Безопасно для конкурентного использования; предназначено для тестов и локального запуска.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/referral-network/internal/models"
	"github.com/magabrotheeeer/referral-network/internal/storage"
)

// Store хранит пользователей и транзакции в картах под одним RWMutex.
type Store struct {
	mu           sync.RWMutex
	users        map[string]models.User
	order        []string
	byUsername   map[string]string
	byCode       map[string]string
	transactions map[string]models.Transaction
	now          func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		users:        make(map[string]models.User),
		byUsername:   make(map[string]string),
		byCode:       make(map[string]string),
		transactions: make(map[string]models.Transaction),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Ping нужен для совместимости с остальными хранилищами.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close ничего не освобождает.
func (s *Store) Close() error {
	return nil
}

// UserByUsername возвращает пользователя по имени.
func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.memory.UserByUsername"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return s.cloneLocked(id), nil
}

// UserByReferralCode возвращает пользователя по реферальному коду.
func (s *Store) UserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	const op = "storage.memory.UserByReferralCode"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return s.cloneLocked(id), nil
}

// UserByID возвращает пользователя по идентификатору.
func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.memory.UserByID"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[id]; !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return s.cloneLocked(id), nil
}

// UsersByReferredBy возвращает пользователей, чей реферер входит в ids, в порядке регистрации.
func (s *Store) UsersByReferredBy(ctx context.Context, ids []string) ([]*models.User, error) {
	const op = "storage.memory.UsersByReferredBy"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.User
	for _, id := range s.order {
		u := s.users[id]
		if u.ReferredBy == nil {
			continue
		}
		if _, ok := set[*u.ReferredBy]; ok {
			result = append(result, s.cloneLocked(id))
		}
	}
	return result, nil
}

// CreateUser атомарно создаёт пользователя и добавляет его в рефералы родителя,
// если у родителя меньше maxReferrals прямых рефералов.
func (s *Store) CreateUser(ctx context.Context, user models.User, maxReferrals int) (*models.User, error) {
	const op = "storage.memory.CreateUser"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[user.Username]; ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUsernameTaken)
	}
	if _, ok := s.byCode[user.ReferralCode]; ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrReferralCodeTaken)
	}

	var parent models.User
	if user.ReferredBy != nil {
		var ok bool
		parent, ok = s.users[*user.ReferredBy]
		if !ok {
			return nil, fmt.Errorf("%s: referrer %s: %w", op, *user.ReferredBy, storage.ErrUserNotFound)
		}
		if len(parent.Referrals) >= maxReferrals {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrReferralLimit)
		}
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Referrals = nil
	user.DirectEarnings = 0
	user.IndirectEarnings = 0
	user.CreatedAt = s.now()
	if user.ReferredBy != nil {
		parentID := *user.ReferredBy
		user.ReferredBy = &parentID
	}

	s.users[user.ID] = user
	s.order = append(s.order, user.ID)
	s.byUsername[user.Username] = user.ID
	s.byCode[user.ReferralCode] = user.ID

	if user.ReferredBy != nil {
		parent.Referrals = append(append([]string(nil), parent.Referrals...), user.ID)
		s.users[parent.ID] = parent
	}

	return s.cloneLocked(user.ID), nil
}

// AddDirectEarnings увеличивает прямой доход пользователя на delta.
func (s *Store) AddDirectEarnings(ctx context.Context, id string, delta float64) error {
	const op = "storage.memory.AddDirectEarnings"
	return s.addEarnings(ctx, op, id, func(u *models.User) { u.DirectEarnings += delta })
}

// AddIndirectEarnings увеличивает косвенный доход пользователя на delta.
func (s *Store) AddIndirectEarnings(ctx context.Context, id string, delta float64) error {
	const op = "storage.memory.AddIndirectEarnings"
	return s.addEarnings(ctx, op, id, func(u *models.User) { u.IndirectEarnings += delta })
}

func (s *Store) addEarnings(ctx context.Context, op, id string, apply func(*models.User)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	apply(&u)
	s.users[id] = u
	return nil
}

// CreateTransaction сохраняет транзакцию, присваивая ей идентификатор и время создания.
func (s *Store) CreateTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error) {
	const op = "storage.memory.CreateTransaction"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[tx.UserID]; !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	tx.ID = uuid.NewString()
	tx.CreatedAt = s.now()
	s.transactions[tx.ID] = tx

	out := tx
	return &out, nil
}

// TransactionsByUser возвращает транзакции пользователя.
func (s *Store) TransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	const op = "storage.memory.TransactionsByUser"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (s *Store) cloneLocked(id string) *models.User {
	u := s.users[id]
	if u.ReferredBy != nil {
		parentID := *u.ReferredBy
		u.ReferredBy = &parentID
	}
	u.Referrals = append([]string(nil), u.Referrals...)
	return &u
}
