// Package family отвечает на запросы пользователя о его месте в реферальном дереве:
// собственные данные, родитель с дедом, рефералы первого и второго уровня.
package family

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/referral-network/internal/cache"
	"github.com/magabrotheeeer/referral-network/internal/lib/sl"
	"github.com/magabrotheeeer/referral-network/internal/models"
	"github.com/magabrotheeeer/referral-network/internal/storage"
)

// Store описывает часть хранилища, нужную для чтения дерева.
type Store interface {
	UserByID(ctx context.Context, id string) (*models.User, error)
	UsersByReferredBy(ctx context.Context, ids []string) ([]*models.User, error)
}

// Cache хранит готовые представления.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// Service реализует чтение семьи пользователя.
type Service struct {
	store Store
	cache Cache
	log   *slog.Logger
}

// New создаёт Service.
func New(store Store, cache Cache, log *slog.Logger) *Service {
	return &Service{
		store: store,
		cache: cache,
		log:   log,
	}
}

// Self возвращает данные пользователя без обхода дерева.
func (s *Service) Self(ctx context.Context, userID string) (*models.SelfView, error) {
	const op = "services.family.Self"

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, lookupError(op, err, models.ErrNotFound)
	}

	referrals := append(make([]string, 0, len(user.Referrals)), user.Referrals...)
	return &models.SelfView{
		Username:         user.Username,
		ReferralCode:     user.ReferralCode,
		DirectEarnings:   user.DirectEarnings,
		IndirectEarnings: user.IndirectEarnings,
		ReferredBy:       user.ReferredBy,
		Referrals:        referrals,
	}, nil
}

// Parent возвращает родителя пользователя и деда, если он есть.
// Для корня дерева возвращается ErrNoParent.
//
// Связь с родителем не меняется после регистрации, поэтому результат кэшируется.
func (s *Service) Parent(ctx context.Context, userID string) (*models.ParentView, error) {
	const op = "services.family.Parent"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))
	key := cache.ParentKey(userID)

	var cached models.ParentView
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warn("cache read failed", sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, lookupError(op, err, models.ErrNotFound)
	}
	if user.IsRoot() {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNoParent)
	}

	parent, err := s.store.UserByID(ctx, *user.ReferredBy)
	if err != nil {
		return nil, lookupError(op, err, models.ErrBrokenAncestry)
	}
	view := &models.ParentView{Parent: parent.Node()}

	if !parent.IsRoot() {
		grandparent, err := s.store.UserByID(ctx, *parent.ReferredBy)
		if err != nil {
			return nil, lookupError(op, err, models.ErrBrokenAncestry)
		}
		node := grandparent.Node()
		view.Grandparent = &node
	}

	if err := s.cache.Set(ctx, key, view); err != nil {
		log.Warn("cache write failed", sl.Err(err))
	}
	return view, nil
}

// Children возвращает прямых рефералов в порядке регистрации и рефералов второго уровня,
// упорядоченных сначала по порядку их родителя, затем по порядку регистрации.
func (s *Service) Children(ctx context.Context, userID string) (*models.ChildrenView, error) {
	const op = "services.family.Children"

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, lookupError(op, err, models.ErrNotFound)
	}

	view := &models.ChildrenView{
		Children:      []models.NodeView{},
		Grandchildren: []models.NodeView{},
	}
	if len(user.Referrals) == 0 {
		return view, nil
	}

	children, err := s.store.UsersByReferredBy(ctx, []string{user.ID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
	}
	children = orderBy(user.Referrals, children)

	var childIDs []string
	for _, c := range children {
		view.Children = append(view.Children, c.Node())
		childIDs = append(childIDs, c.ID)
	}

	grandchildren, err := s.store.UsersByReferredBy(ctx, childIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
	}

	byParent := make(map[string][]*models.User, len(children))
	for _, g := range grandchildren {
		byParent[*g.ReferredBy] = append(byParent[*g.ReferredBy], g)
	}
	for _, c := range children {
		for _, g := range orderBy(c.Referrals, byParent[c.ID]) {
			view.Grandchildren = append(view.Grandchildren, g.Node())
		}
	}
	return view, nil
}

// orderBy расставляет users в порядке ids. Пользователи, которых нет в ids,
// идут в конце в том порядке, в котором их вернуло хранилище.
func orderBy(ids []string, users []*models.User) []*models.User {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}

	ordered := make([]*models.User, len(ids))
	var rest []*models.User
	for _, u := range users {
		i, ok := pos[u.ID]
		if !ok || ordered[i] != nil {
			rest = append(rest, u)
			continue
		}
		ordered[i] = u
	}

	result := make([]*models.User, 0, len(users))
	for _, u := range ordered {
		if u != nil {
			result = append(result, u)
		}
	}
	return append(result, rest...)
}

func lookupError(op string, err error, kind error) error {
	if errors.Is(err, storage.ErrUserNotFound) {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}
