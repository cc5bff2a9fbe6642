package user

import (
	"context"
	"errors"
	"strings"
)

// Common errors
var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidEmail = errors.New("a valid email address is required")
)

// Resolver is the identity contract consumed by the sync reconciler: resolve
// an email address to an account, creating one on first sight.
type Resolver interface {
	ResolveOrCreateByEmail(ctx context.Context, email string) (*User, error)
}

// Service handles user business logic
type Service struct {
	repo *Repository
}

// NewService creates a new user service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// GetByID retrieves a user by ID
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ResolveOrCreateByEmail finds or creates the account behind an email address.
func (s *Service) ResolveOrCreateByEmail(ctx context.Context, email string) (*User, error) {
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	return s.repo.UpsertByEmail(ctx, email)
}
