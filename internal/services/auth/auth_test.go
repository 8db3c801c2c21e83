package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	customjwt "github.com/magabrotheeeer/referral-network/internal/lib/jwt"
	"github.com/magabrotheeeer/referral-network/internal/lib/password"
	"github.com/magabrotheeeer/referral-network/internal/models"
	"github.com/magabrotheeeer/referral-network/internal/services/auth"
	"github.com/magabrotheeeer/referral-network/internal/storage"
)

type RegistrarMock struct{ mock.Mock }

func (m *RegistrarMock) RegisterUser(ctx context.Context, username, passwordHash, referralCode string) (*models.User, error) {
	args := m.Called(ctx, username, passwordHash, referralCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type UserReaderMock struct{ mock.Mock }

func (m *UserReaderMock) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type JwtMakerMock struct{ mock.Mock }

func (m *JwtMakerMock) GenerateToken(userID, username string) (string, error) {
	args := m.Called(userID, username)
	return args.String(0), args.Error(1)
}

func (m *JwtMakerMock) ParseToken(token string) (*customjwt.CustomClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customjwt.CustomClaims), args.Error(1)
}

func TestService_Signup(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(r *RegistrarMock)
		wantErr    error
	}{
		{
			name: "password is hashed before registration",
			setupMocks: func(r *RegistrarMock) {
				r.On("RegisterUser", mock.Anything, "alice", mock.MatchedBy(func(hash string) bool {
					return password.CompareHash(hash, "secret123") == nil
				}), "ABCDEFGH").Return(&models.User{ID: "id-1", Username: "alice"}, nil).Once()
			},
		},
		{
			name: "registration error is kept",
			setupMocks: func(r *RegistrarMock) {
				r.On("RegisterUser", mock.Anything, "alice", mock.Anything, "ABCDEFGH").
					Return(nil, models.ErrReferralLimitReached).Once()
			},
			wantErr: models.ErrReferralLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registrar := new(RegistrarMock)
			tt.setupMocks(registrar)
			svc := auth.New(registrar, new(UserReaderMock), new(JwtMakerMock))

			user, err := svc.Signup(context.Background(), "alice", "secret123", "ABCDEFGH")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "id-1", user.ID)
			}
			registrar.AssertExpectations(t)
		})
	}
}

func TestService_Login(t *testing.T) {
	hash, err := password.GetHash("correctpassword")
	require.NoError(t, err)
	stored := &models.User{ID: "id-1", Username: "alice", PasswordHash: hash}

	tests := []struct {
		name       string
		password   string
		setupMocks func(u *UserReaderMock, j *JwtMakerMock)
		wantToken  string
		wantErr    error
	}{
		{
			name:     "success",
			password: "correctpassword",
			setupMocks: func(u *UserReaderMock, j *JwtMakerMock) {
				u.On("UserByUsername", mock.Anything, "alice").Return(stored, nil).Once()
				j.On("GenerateToken", "id-1", "alice").Return("token", nil).Once()
			},
			wantToken: "token",
		},
		{
			name:     "wrong password",
			password: "wrong",
			setupMocks: func(u *UserReaderMock, _ *JwtMakerMock) {
				u.On("UserByUsername", mock.Anything, "alice").Return(stored, nil).Once()
			},
			wantErr: models.ErrInvalidCredentials,
		},
		{
			name:     "unknown user",
			password: "correctpassword",
			setupMocks: func(u *UserReaderMock, _ *JwtMakerMock) {
				u.On("UserByUsername", mock.Anything, "alice").Return(nil, storage.ErrUserNotFound).Once()
			},
			wantErr: models.ErrInvalidCredentials,
		},
		{
			name:     "store down",
			password: "correctpassword",
			setupMocks: func(u *UserReaderMock, _ *JwtMakerMock) {
				u.On("UserByUsername", mock.Anything, "alice").Return(nil, errors.New("timeout")).Once()
			},
			wantErr: models.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(UserReaderMock)
			maker := new(JwtMakerMock)
			tt.setupMocks(users, maker)
			svc := auth.New(new(RegistrarMock), users, maker)

			token, user, err := svc.Login(context.Background(), "alice", tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantToken, token)
				assert.Equal(t, "id-1", user.ID)
			}
			users.AssertExpectations(t)
			maker.AssertExpectations(t)
		})
	}
}

func TestService_ValidateToken(t *testing.T) {
	maker := customjwt.NewJWTMaker("secret", time.Hour)
	svc := auth.New(new(RegistrarMock), new(UserReaderMock), maker)

	token, err := maker.GenerateToken("id-1", "alice")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "id-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = svc.ValidateToken(context.Background(), "garbage")
	assert.ErrorIs(t, err, customjwt.ErrInvalidToken)
}
