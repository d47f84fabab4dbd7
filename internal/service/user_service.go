package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/model"
	"dealdesk/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	AccessTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
}

type UpdateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         UserResponse `json:"user"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	BootstrapAdmin(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string) error
}

type userService struct {
	repo      repository.UserRepository
	txManager repository.TransactionManager
	secret    []byte
	log       *zap.Logger
	now       func() time.Time
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, txManager repository.TransactionManager, secret []byte, log *zap.Logger) UserService {
	return &userService{repo: repo, txManager: txManager, secret: secret, log: log, now: time.Now}
}

func validateRole(role string) error {
	if !slices.Contains(lifecycle.Roles(), role) {
		return invalid("role", "must be one of: %s", strings.Join(lifecycle.Roles(), ", "))
	}
	return nil
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	if err := validateRole(req.Role); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, invalid("email", "invalid email format")
	}
	if len(req.Password) < 6 {
		return nil, invalid("password", "must be at least 6 characters")
	}

	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username %w", ErrAlreadyExists)
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email %w", ErrAlreadyExists)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: string(hashedPassword),
		Role:     req.Role,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapToResponse(user), nil
}

// ErrBootstrapClosed is returned once any user exists.
var ErrBootstrapClosed = errors.New("bootstrap is only available before the first user exists")

// BootstrapAdmin creates the first admin of an empty installation.
func (s *userService) BootstrapAdmin(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	req.Role = lifecycle.RoleAdmin
	var res *UserResponse
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		_, total, err := s.repo.List(txCtx, 1, 1)
		if err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}
		if total > 0 {
			return ErrBootstrapClosed
		}
		res, err = s.CreateUser(txCtx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("bootstrap admin created", zap.String("user_id", res.ID.String()))
	return res, nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	var res *TokenResponse
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if n, err := s.repo.DeleteExpiredRefreshTokens(txCtx, s.now()); err != nil {
			return fmt.Errorf("failed to prune refresh tokens: %w", err)
		} else if n > 0 {
			s.log.Debug("pruned expired refresh tokens", zap.Int64("count", n))
		}
		res, err = s.issueTokens(txCtx, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("role", user.Role))
	return res, nil
}

// RefreshToken rotates a refresh token: the presented one is consumed and a
// fresh access/refresh pair is issued.
func (s *userService) RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	var res *TokenResponse
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		stored, err := s.repo.FindRefreshToken(txCtx, req.RefreshToken)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return fmt.Errorf("failed to look up refresh token: %w", err)
		}
		if err := s.repo.DeleteRefreshToken(txCtx, req.RefreshToken); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		if stored.ExpiresAt.Before(s.now()) {
			return ErrInvalidToken
		}

		user, err := s.repo.GetByID(txCtx, stored.UserID.String())
		if err != nil {
			return ErrInvalidToken
		}
		res, err = s.issueTokens(txCtx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *userService) issueTokens(ctx context.Context, user *model.User) (*TokenResponse, error) {
	now := s.now()
	expiresAt := now.Add(AccessTokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	refresh := &model.RefreshToken{
		UserID:    user.ID,
		Token:     hex.EncodeToString(raw),
		ExpiresAt: now.Add(RefreshTokenTTL),
	}
	if err := s.repo.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenResponse{
		Token:        tokenString,
		RefreshToken: refresh.Token,
		ExpiresAt:    expiresAt,
		User:         *mapToResponse(user),
	}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}

	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "user")
	}

	if req.Role != "" {
		if err := validateRole(req.Role); err != nil {
			return nil, err
		}
		user.Role = req.Role
	}

	if req.Username != "" && req.Username != user.Username {
		if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
			return nil, fmt.Errorf("username %w", ErrAlreadyExists)
		}
		user.Username = req.Username
	}

	if req.Email != "" && req.Email != user.Email {
		if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
			return nil, fmt.Errorf("email %w", ErrAlreadyExists)
		}
		user.Email = req.Email
	}

	if req.Phone != "" {
		user.Phone = req.Phone
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return notFound(err, "user")
	}
	return s.repo.Delete(ctx, id)
}
