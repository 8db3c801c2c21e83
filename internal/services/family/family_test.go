package family

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/referral-network/internal/cache"
	"github.com/magabrotheeeer/referral-network/internal/config"
	"github.com/magabrotheeeer/referral-network/internal/models"
	"github.com/magabrotheeeer/referral-network/internal/storage"
	"github.com/magabrotheeeer/referral-network/internal/storage/memory"
)

type StoreMock struct{ mock.Mock }

func (m *StoreMock) UserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *StoreMock) UsersByReferredBy(ctx context.Context, ids []string) ([]*models.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(ctx context.Context, key string, value any) error {
	return m.Called(ctx, key, value).Error(0)
}

func NewNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type network struct {
	store *memory.Store
	users map[string]*models.User
}

// add регистрирует пользователя name под parent ("" для корня).
func (n *network) add(t *testing.T, name, parent string) *models.User {
	t.Helper()
	u := models.User{Username: name, ReferralCode: fmt.Sprintf("%-8s", name)[:8]}
	if parent != "" {
		u.ReferredBy = &n.users[parent].ID
	}
	created, err := n.store.CreateUser(context.Background(), u, 8)
	require.NoError(t, err)
	n.users[name] = created
	return created
}

func newNetwork() *network {
	return &network{store: memory.New(), users: make(map[string]*models.User)}
}

func names(nodes []models.NodeView) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Username)
	}
	return out
}

func TestService_Self(t *testing.T) {
	ctx := context.Background()
	n := newNetwork()
	root := n.add(t, "root", "")
	a := n.add(t, "a", "root")
	b := n.add(t, "b", "root")
	require.NoError(t, n.store.AddDirectEarnings(ctx, root.ID, 75))
	require.NoError(t, n.store.AddIndirectEarnings(ctx, root.ID, 20))

	svc := New(n.store, cache.Nop{}, NewNoopLogger())

	self, err := svc.Self(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "root", self.Username)
	assert.Equal(t, root.ReferralCode, self.ReferralCode)
	assert.Equal(t, 75.0, self.DirectEarnings)
	assert.Equal(t, 20.0, self.IndirectEarnings)
	assert.Nil(t, self.ReferredBy)
	assert.Equal(t, []string{a.ID, b.ID}, self.Referrals)

	self, err = svc.Self(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, self.ReferredBy)
	assert.Equal(t, root.ID, *self.ReferredBy)
	assert.NotNil(t, self.Referrals)
	assert.Empty(t, self.Referrals)

	_, err = svc.Self(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_Parent(t *testing.T) {
	ctx := context.Background()
	n := newNetwork()
	n.add(t, "root", "")
	n.add(t, "a", "root")
	n.add(t, "aa", "a")

	svc := New(n.store, cache.Nop{}, NewNoopLogger())

	tests := []struct {
		name            string
		user            string
		wantParent      string
		wantGrandparent string
		wantErr         error
	}{
		{name: "root has no parent", user: "root", wantErr: models.ErrNoParent},
		{name: "child of root", user: "a", wantParent: "root"},
		{name: "grandchild", user: "aa", wantParent: "a", wantGrandparent: "root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := svc.Parent(ctx, n.users[tt.user].ID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, view)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantParent, view.Parent.Username)
			assert.Equal(t, n.users[tt.wantParent].ReferralCode, view.Parent.ReferralCode)
			if tt.wantGrandparent == "" {
				assert.Nil(t, view.Grandparent)
			} else {
				require.NotNil(t, view.Grandparent)
				assert.Equal(t, tt.wantGrandparent, view.Grandparent.Username)
			}
		})
	}

	_, err := svc.Parent(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_Children(t *testing.T) {
	ctx := context.Background()
	n := newNetwork()
	n.add(t, "root", "")
	n.add(t, "a", "root")
	n.add(t, "b", "root")
	n.add(t, "b1", "b")
	n.add(t, "a1", "a")
	n.add(t, "c", "root")
	n.add(t, "a2", "a")
	n.add(t, "a11", "a1")

	svc := New(n.store, cache.Nop{}, NewNoopLogger())

	view, err := svc.Children(ctx, n.users["root"].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names(view.Children))
	assert.Equal(t, []string{"a1", "a2", "b1"}, names(view.Grandchildren))

	view, err = svc.Children(ctx, n.users["a11"].ID)
	require.NoError(t, err)
	assert.NotNil(t, view.Children)
	assert.NotNil(t, view.Grandchildren)
	assert.Empty(t, view.Children)
	assert.Empty(t, view.Grandchildren)

	_, err = svc.Children(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_ChildrenIgnoresStoreOrder(t *testing.T) {
	ctx := context.Background()
	store := &StoreMock{}
	rootID, aID, bID := "r", "a", "b"
	root := &models.User{ID: rootID, Username: "root", Referrals: []string{aID, bID}}
	a := &models.User{ID: aID, Username: "a", ReferredBy: &rootID, Referrals: []string{"a1", "a2"}}
	b := &models.User{ID: bID, Username: "b", ReferredBy: &rootID}
	a1 := &models.User{ID: "a1", Username: "a1", ReferredBy: &aID}
	a2 := &models.User{ID: "a2", Username: "a2", ReferredBy: &aID}

	store.On("UserByID", mock.Anything, rootID).Return(root, nil)
	store.On("UsersByReferredBy", mock.Anything, []string{rootID}).Return([]*models.User{b, a}, nil)
	store.On("UsersByReferredBy", mock.Anything, []string{aID, bID}).Return([]*models.User{a2, a1}, nil)

	svc := New(store, cache.Nop{}, NewNoopLogger())
	view, err := svc.Children(ctx, rootID)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(view.Children))
	assert.Equal(t, []string{"a1", "a2"}, names(view.Grandchildren))
	store.AssertExpectations(t)
}

func TestService_StoreFailures(t *testing.T) {
	ctx := context.Background()
	dangling := "gone"

	tests := []struct {
		name    string
		call    func(*Service) error
		setup   func(*StoreMock)
		wantErr error
	}{
		{
			name: "self store down",
			setup: func(m *StoreMock) {
				m.On("UserByID", mock.Anything, "u").Return(nil, errors.New("timeout"))
			},
			call: func(s *Service) error {
				_, err := s.Self(ctx, "u")
				return err
			},
			wantErr: models.ErrStoreUnavailable,
		},
		{
			name: "dangling parent",
			setup: func(m *StoreMock) {
				m.On("UserByID", mock.Anything, "u").Return(&models.User{ID: "u", ReferredBy: &dangling}, nil)
				m.On("UserByID", mock.Anything, dangling).Return(nil, storage.ErrUserNotFound)
			},
			call: func(s *Service) error {
				_, err := s.Parent(ctx, "u")
				return err
			},
			wantErr: models.ErrBrokenAncestry,
		},
		{
			name: "children query fails",
			setup: func(m *StoreMock) {
				m.On("UserByID", mock.Anything, "u").Return(&models.User{ID: "u", Referrals: []string{"c"}}, nil)
				m.On("UsersByReferredBy", mock.Anything, []string{"u"}).Return(nil, errors.New("timeout"))
			},
			call: func(s *Service) error {
				_, err := s.Children(ctx, "u")
				return err
			},
			wantErr: models.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &StoreMock{}
			tt.setup(store)
			err := tt.call(New(store, cache.Nop{}, NewNoopLogger()))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_ParentUsesCache(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisCache, err := cache.InitServer(ctx, config.RedisConnection{AddressRedis: mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisCache.Close() })

	rootID := "r"
	store := &StoreMock{}
	store.On("UserByID", mock.Anything, "u").Return(&models.User{ID: "u", Username: "u", ReferredBy: &rootID}, nil).Once()
	store.On("UserByID", mock.Anything, rootID).Return(&models.User{ID: rootID, Username: "root", ReferralCode: "ROOTCODE"}, nil).Once()

	svc := New(store, redisCache, NewNoopLogger())

	first, err := svc.Parent(ctx, "u")
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.ParentKey("u")))

	second, err := svc.Parent(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	store.AssertExpectations(t)
}

func TestService_ParentCacheErrorFallsThrough(t *testing.T) {
	ctx := context.Background()
	n := newNetwork()
	n.add(t, "root", "")
	a := n.add(t, "a", "root")

	c := &CacheMock{}
	c.On("Get", mock.Anything, cache.ParentKey(a.ID), mock.Anything).Return(false, errors.New("redis down"))
	c.On("Set", mock.Anything, cache.ParentKey(a.ID), mock.Anything).Return(errors.New("redis down"))

	svc := New(n.store, c, NewNoopLogger())
	view, err := svc.Parent(ctx, a.ID)

	require.NoError(t, err)
	assert.Equal(t, "root", view.Parent.Username)
	c.AssertExpectations(t)
}

func TestService_RepeatedQueriesAreStable(t *testing.T) {
	n := newNetwork()
	n.add(t, "root", "")
	n.add(t, "c1", "root")
	n.add(t, "c2", "root")
	n.add(t, "gc1", "c1")
	svc := New(n.store, cache.Nop{}, NewNoopLogger())
	ctx := context.Background()

	tests := []struct {
		name  string
		query func(id string) (any, error)
	}{
		{
			name:  "self",
			query: func(id string) (any, error) { return svc.Self(ctx, id) },
		},
		{
			name:  "parent",
			query: func(id string) (any, error) { return svc.Parent(ctx, id) },
		},
		{
			name:  "children",
			query: func(id string) (any, error) { return svc.Children(ctx, id) },
		},
	}

	for _, tt := range tests {
		for _, user := range []string{"root", "c1", "gc1"} {
			t.Run(tt.name+"/"+user, func(t *testing.T) {
				id := n.users[user].ID

				first, firstErr := tt.query(id)
				second, secondErr := tt.query(id)

				assert.Equal(t, firstErr, secondErr)
				assert.Equal(t, first, second)
			})
		}
	}

	_, err := svc.Parent(ctx, n.users["root"].ID)
	assert.ErrorIs(t, err, models.ErrNoParent)
}
