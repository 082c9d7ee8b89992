package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/refermarket/referral-backend/internal/models"
)

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

// UserRepository отвечает за работу с таблицей users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, name, password_hash, role, verified, companies)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		user.Email, user.Name, user.PasswordHash, user.Role, user.Verified, user.Companies,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("user repository: create %w", err)
	}
	return nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = $1`, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by email %w", err)
	}
	return &user, nil
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}
	return &user, nil
}

// UpdateLastLoginAt отмечает время последнего входа.
func (r *UserRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`, userID,
	); err != nil {
		return fmt.Errorf("user repository: update last login %w", err)
	}
	return nil
}

// SetVerified выставляет флаг верификации реферера.
func (r *UserRepository) SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET verified = $2, updated_at = NOW() WHERE id = $1`, userID, verified,
	); err != nil {
		return fmt.Errorf("user repository: set verified %w", err)
	}
	return nil
}

// UpdateCompanies обновляет список компаний реферера.
func (r *UserRepository) UpdateCompanies(ctx context.Context, userID uuid.UUID, companies []string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET companies = $2, updated_at = NOW() WHERE id = $1`,
		userID, pq.StringArray(companies),
	); err != nil {
		return fmt.Errorf("user repository: update companies %w", err)
	}
	return nil
}
