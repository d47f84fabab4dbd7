package service

import (
	"testing"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/pricing"
	"dealdesk/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUserService(t *testing.T) {
	f := newFixture(t)
	secret := []byte("test-secret")
	users := NewUserService(repository.NewUserRepository(f.db), f.txManager, secret, zap.NewNop())

	created, err := users.CreateUser(f.ctx, CreateUserRequest{
		Username: "keiko",
		Email:    "keiko@example.com",
		Password: "s3cret!",
		Role:     lifecycle.RoleAccounting,
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RoleAccounting, created.Role)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := users.CreateUser(f.ctx, CreateUserRequest{
			Username: "keiko2",
			Email:    "keiko@example.com",
			Password: "s3cret!",
			Role:     lifecycle.RoleStaff,
		})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := users.CreateUser(f.ctx, CreateUserRequest{
			Username: "bob",
			Email:    "bob@example.com",
			Password: "s3cret!",
			Role:     "owner",
		})
		var ve *pricing.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "role", ve.Field)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := users.Login(f.ctx, LoginUserRequest{Email: "keiko@example.com", Password: "nope"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("login carries the role claim", func(t *testing.T) {
		tokens, err := users.Login(f.ctx, LoginUserRequest{Email: "keiko@example.com", Password: "s3cret!"})
		require.NoError(t, err)

		claims := jwt.MapClaims{}
		_, err = jwt.ParseWithClaims(tokens.Token, claims, func(*jwt.Token) (any, error) { return secret, nil })
		require.NoError(t, err)
		assert.Equal(t, created.ID.String(), claims["sub"])
		assert.Equal(t, lifecycle.RoleAccounting, claims["role"])

		t.Run("refresh rotates the token", func(t *testing.T) {
			next, err := users.RefreshToken(f.ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
			require.NoError(t, err)
			assert.NotEqual(t, tokens.RefreshToken, next.RefreshToken)

			_, err = users.RefreshToken(f.ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
			assert.ErrorIs(t, err, ErrInvalidToken)

			require.NoError(t, users.Logout(f.ctx, next.RefreshToken))
			_, err = users.RefreshToken(f.ctx, RefreshTokenRequest{RefreshToken: next.RefreshToken})
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	})
}

func TestUserService_BootstrapAdmin(t *testing.T) {
	f := newFixture(t)
	users := NewUserService(repository.NewUserRepository(f.db), f.txManager, []byte("test-secret"), zap.NewNop())

	first, err := users.BootstrapAdmin(f.ctx, CreateUserRequest{
		Username: "root",
		Email:    "root@example.com",
		Password: "s3cret!",
		Role:     lifecycle.RoleStaff,
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RoleAdmin, first.Role)

	_, err = users.BootstrapAdmin(f.ctx, CreateUserRequest{
		Username: "second",
		Email:    "second@example.com",
		Password: "s3cret!",
	})
	assert.ErrorIs(t, err, ErrBootstrapClosed)
}
