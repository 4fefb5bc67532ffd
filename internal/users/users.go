// Package users is the thin user directory SignDrop needs: signer existence
// checks and contact lookup for notifications.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/repository"
)

// CreateInput describes a new user.
type CreateInput struct {
	Name  string     `json:"name" validate:"required,max=200"`
	Email string     `json:"email" validate:"required,email,max=320"`
	Role  model.Role `json:"role" validate:"required,oneof=user manager admin"`
}

// Service manages the directory.
type Service struct {
	repo     repository.Users
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo repository.Users) *Service {
	return &Service{repo: repo, validate: validator.New(), now: time.Now}
}

// Create adds a user on behalf of an admin.
func (s *Service) Create(ctx context.Context, in CreateInput, caller model.Identity) (*model.User, error) {
	if caller.Role != model.RoleAdmin {
		return nil, apperr.Forbidden("only admins can create users")
	}
	return s.Register(ctx, in)
}

// Register adds a user without an authorization check. It backs the CLI
// bootstrap of the first admin.
func (s *Service) Register(ctx context.Context, in CreateInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Validation("invalid user: %v", err)
	}
	user := &model.User{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Role:      in.Role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("email %s is already registered", in.Email)
		}
		return nil, apperr.Storage("create user", err)
	}
	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user %s", id)
		}
		return nil, apperr.Storage("get user", err)
	}
	return user, nil
}

// List returns the directory. Only elevated roles may list it.
func (s *Service) List(ctx context.Context, caller model.Identity) ([]model.User, error) {
	if !caller.Role.Elevated() {
		return nil, apperr.Forbidden("listing users requires an elevated role")
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, apperr.Storage("list users", err)
	}
	return users, nil
}
