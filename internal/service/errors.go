package service

import (
	"errors"
	"fmt"

	"dealdesk/internal/pricing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) idPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

func invalid(field, format string, args ...any) error {
	return &pricing.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalid(field, "must be a valid UUID")
	}
	return id, nil
}

// notFound turns gorm's missing-row error into ErrNotFound and wraps anything else.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to fetch %s: %w", what, err)
}
