package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/refermarket/referral-backend/internal/models"
)

var (
	// ErrReferralNotFound возвращается, когда запрос не найден.
	ErrReferralNotFound = errors.New("referral request not found")
	// ErrReferralNotPending возвращается, когда запрос уже вышел из статуса pending.
	ErrReferralNotPending = errors.New("referral request is not pending")
)

// ReferralRepository отвечает за работу с таблицей referral_requests.
type ReferralRepository struct {
	db *sqlx.DB
}

// NewReferralRepository создаёт экземпляр репозитория.
func NewReferralRepository(db *sqlx.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// Create создаёт новый реферальный запрос в статусе pending.
func (r *ReferralRepository) Create(ctx context.Context, req *models.ReferralRequest) error {
	query := `
		INSERT INTO referral_requests (seeker_id, company, role, skills, description, amount, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		RETURNING id, status, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		req.SeekerID, req.Company, req.Role, req.Skills, req.Description, req.Amount, req.ExpiresAt,
	).Scan(&req.ID, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return fmt.Errorf("referral repository: create %w", err)
	}
	return nil
}

// GetByID возвращает запрос по идентификатору.
func (r *ReferralRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReferralRequest, error) {
	var req models.ReferralRequest
	if err := r.db.GetContext(ctx, &req, `SELECT * FROM referral_requests WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("referral repository: get by id %w", err)
	}
	return &req, nil
}

// AcceptIfPending атомарно переводит запрос в accepted, только если он всё ещё
// pending. Исход арбитража читается из результата самой записи, а не из
// предварительного чтения: при любом количестве конкурентных вызовов условие
// выполнится ровно у одного. Проигравший получает ErrReferralNotPending, если
// запрос существует, и ErrReferralNotFound, если нет.
func (r *ReferralRepository) AcceptIfPending(ctx context.Context, id, referrerID uuid.UUID, acceptedAt time.Time) (*models.ReferralRequest, error) {
	var req models.ReferralRequest
	err := r.db.GetContext(ctx, &req, `
		UPDATE referral_requests
		SET status = 'accepted', accepted_by = $2, accepted_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, id, referrerID, acceptedAt)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("referral repository: accept %w", err)
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrReferralNotPending
}

// UpdateStatusIf переводит запрос из fromStatus в toStatus тем же условным
// обновлением, что и AcceptIfPending.
func (r *ReferralRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) (*models.ReferralRequest, error) {
	var req models.ReferralRequest
	err := r.db.GetContext(ctx, &req, `
		UPDATE referral_requests
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING *
	`, id, fromStatus, toStatus)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("referral repository: update status %w", err)
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrReferralNotPending
}

// SetChatRoomID сохраняет ссылку на созданный чат.
func (r *ReferralRepository) SetChatRoomID(ctx context.Context, id, roomID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE referral_requests SET chat_room_id = $2, updated_at = NOW() WHERE id = $1`,
		id, roomID,
	); err != nil {
		return fmt.Errorf("referral repository: set chat room %w", err)
	}
	return nil
}

// ListBySeeker возвращает запросы соискателя.
func (r *ReferralRepository) ListBySeeker(ctx context.Context, seekerID uuid.UUID, limit, offset int) ([]models.ReferralRequest, error) {
	var reqs []models.ReferralRequest
	err := r.db.SelectContext(ctx, &reqs, `
		SELECT * FROM referral_requests WHERE seeker_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, seekerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("referral repository: list by seeker %w", err)
	}
	return reqs, nil
}

// ListPendingByCompany возвращает открытые запросы по компании —
// то, что видит реферер этой компании.
func (r *ReferralRepository) ListPendingByCompany(ctx context.Context, company string, limit, offset int) ([]models.ReferralRequest, error) {
	var reqs []models.ReferralRequest
	err := r.db.SelectContext(ctx, &reqs, `
		SELECT * FROM referral_requests
		WHERE status = 'pending' AND LOWER(company) = LOWER($1) AND expires_at > NOW()
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, company, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("referral repository: list pending by company %w", err)
	}
	return reqs, nil
}

// ListByReferrer возвращает запросы, принятые реферером.
func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]models.ReferralRequest, error) {
	var reqs []models.ReferralRequest
	err := r.db.SelectContext(ctx, &reqs, `
		SELECT * FROM referral_requests WHERE accepted_by = $1
		ORDER BY accepted_at DESC LIMIT $2 OFFSET $3
	`, referrerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("referral repository: list by referrer %w", err)
	}
	return reqs, nil
}
