package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/SignDrop/internal/model"
)

// UserRepository wraps the SQL of the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository constructs a repository.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a user. A taken email returns ErrDuplicate.
func (r *UserRepository) CreateUser(ctx context.Context, user *model.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, name, email, role, created_at) VALUES ($1,$2,$3,$4,$5)
	`, user.ID, user.Name, user.Email, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns a user by id.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx, `SELECT id, name, email, role, created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("select user: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// ListUsers returns every user ordered by name.
func (r *UserRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, email, role, created_at FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
