package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/referral-network/internal/models"
	"github.com/magabrotheeeer/referral-network/internal/storage"
)

func createUser(t *testing.T, s *Store, username, code string, parent *models.User) *models.User {
	t.Helper()
	u := models.User{Username: username, PasswordHash: "hash", ReferralCode: code}
	if parent != nil {
		u.ReferredBy = &parent.ID
	}
	created, err := s.CreateUser(context.Background(), u, 8)
	require.NoError(t, err)
	return created
}

func TestStore_CreateUser(t *testing.T) {
	ctx := context.Background()
	s := New()

	root := createUser(t, s, "root", "ROOTCODE", nil)
	assert.NotEmpty(t, root.ID)
	assert.Nil(t, root.ReferredBy)
	assert.False(t, root.CreatedAt.IsZero())

	child := createUser(t, s, "child", "CHILDCDE", root)
	require.NotNil(t, child.ReferredBy)
	assert.Equal(t, root.ID, *child.ReferredBy)

	gotRoot, err := s.UserByID(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{child.ID}, gotRoot.Referrals)

	byName, err := s.UserByUsername(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, child.ID, byName.ID)

	byCode, err := s.UserByReferralCode(ctx, "ROOTCODE")
	require.NoError(t, err)
	assert.Equal(t, root.ID, byCode.ID)
}

func TestStore_CreateUserErrors(t *testing.T) {
	ctx := context.Background()
	s := New()
	root := createUser(t, s, "root", "ROOTCODE", nil)
	missing := "missing"

	tests := []struct {
		name    string
		user    models.User
		wantErr error
	}{
		{
			name:    "duplicate username",
			user:    models.User{Username: "root", ReferralCode: "OTHERCDE"},
			wantErr: storage.ErrUsernameTaken,
		},
		{
			name:    "duplicate referral code",
			user:    models.User{Username: "other", ReferralCode: "ROOTCODE"},
			wantErr: storage.ErrReferralCodeTaken,
		},
		{
			name:    "unknown referrer",
			user:    models.User{Username: "other", ReferralCode: "OTHERCDE", ReferredBy: &missing},
			wantErr: storage.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateUser(ctx, tt.user, 8)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	got, err := s.UserByID(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Referrals)
}

func TestStore_ReferralLimitUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := New()
	root := createUser(t, s, "root", "ROOTCODE", nil)

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var created, limited int

	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateUser(ctx, models.User{
				Username:     fmt.Sprintf("user%d", i),
				ReferralCode: fmt.Sprintf("CODE%04d", i),
				ReferredBy:   &root.ID,
			}, 8)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, storage.ErrReferralLimit):
				limited++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, created)
	assert.Equal(t, attempts-8, limited)

	got, err := s.UserByID(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, got.Referrals, 8)
}

func TestStore_UsersByReferredBy(t *testing.T) {
	ctx := context.Background()
	s := New()
	root := createUser(t, s, "root", "ROOTCODE", nil)
	c1 := createUser(t, s, "c1", "CCCCCCC1", root)
	c2 := createUser(t, s, "c2", "CCCCCCC2", root)
	gc1 := createUser(t, s, "gc1", "GGGGGGG1", c1)

	children, err := s.UsersByReferredBy(ctx, []string{root.ID})
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, c1.ID, children[0].ID)
	assert.Equal(t, c2.ID, children[1].ID)

	grandchildren, err := s.UsersByReferredBy(ctx, []string{c1.ID, c2.ID})
	require.NoError(t, err)
	require.Len(t, grandchildren, 1)
	assert.Equal(t, gc1.ID, grandchildren[0].ID)

	none, err := s.UsersByReferredBy(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_EarningsAndTransactions(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := createUser(t, s, "root", "ROOTCODE", nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AddDirectEarnings(ctx, u.ID, 2))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AddIndirectEarnings(ctx, u.ID, 1))
		}()
	}
	wg.Wait()

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.DirectEarnings)
	assert.Equal(t, 50.0, got.IndirectEarnings)

	assert.ErrorIs(t, s.AddDirectEarnings(ctx, "missing", 1), storage.ErrUserNotFound)

	tx, err := s.CreateTransaction(ctx, models.Transaction{UserID: u.ID, Amount: 1500})
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.False(t, tx.CreatedAt.IsZero())
	txs, err := s.TransactionsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID, txs[0].ID)

	_, err = s.CreateTransaction(ctx, models.Transaction{UserID: "missing", Amount: 1})
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	root := createUser(t, s, "root", "ROOTCODE", nil)
	createUser(t, s, "child", "CHILDCDE", root)

	got, err := s.UserByID(ctx, root.ID)
	require.NoError(t, err)
	got.Referrals[0] = "tampered"
	got.DirectEarnings = 1000

	again, err := s.UserByID(ctx, root.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", again.Referrals[0])
	assert.Zero(t, again.DirectEarnings)
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()

	_, err := s.UserByID(ctx, "any")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.TransactionsByUser(ctx, "any")
	assert.ErrorIs(t, err, context.Canceled)
}
