package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/refermarket/referral-backend/internal/logger"
	"github.com/refermarket/referral-backend/internal/models"
	"github.com/refermarket/referral-backend/internal/repository"
)

// DefaultHoldDuration — срок удержания средств по запросу. Если за это время
// сделка не завершена, sweeper возвращает деньги соискателю.
const DefaultHoldDuration = 72 * time.Hour

var (
	// ErrReferralTaken возвращается проигравшим арбитраж за запрос.
	ErrReferralTaken = errors.New("referral service: запрос уже принят другим реферером")
	// ErrNotEligible возвращается, когда реферер не может принять запрос:
	// не подтверждён или не работает в нужной компании.
	ErrNotEligible = errors.New("referral service: вы не можете принять этот запрос")
)

// ReferralStore описывает взаимодействие координатора с хранилищем запросов.
type ReferralStore interface {
	Create(ctx context.Context, req *models.ReferralRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ReferralRequest, error)
	AcceptIfPending(ctx context.Context, id, referrerID uuid.UUID, acceptedAt time.Time) (*models.ReferralRequest, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) (*models.ReferralRequest, error)
	SetChatRoomID(ctx context.Context, id, roomID uuid.UUID) error
	ListBySeeker(ctx context.Context, seekerID uuid.UUID, limit, offset int) ([]models.ReferralRequest, error)
	ListPendingByCompany(ctx context.Context, company string, limit, offset int) ([]models.ReferralRequest, error)
	ListByReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]models.ReferralRequest, error)
}

// EscrowManager описывает минимальный контракт с сервисом кошельков.
type EscrowManager interface {
	LockToEscrow(ctx context.Context, referralID, seekerID, referrerID uuid.UUID, amount float64) (*models.Escrow, error)
	ReleaseEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error)
	RefundEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error)
	GetEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error)
}

// ChatRoomStore описывает минимальный контракт с хранилищем чатов.
type ChatRoomStore interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom, systemText string) error
	GetRoomByReferralID(ctx context.Context, referralID uuid.UUID) (*models.ChatRoom, error)
}

// UserDirectory описывает минимальный контракт для получения пользователей.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Notifier описывает доставку событий пользователям.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data any) (*models.Notification, error)
	NotifyGroup(group string, event string, data any)
}

// ReferralService — координатор жизненного цикла реферального запроса.
// Арбитраж конкурентных принятий двухслойный: локальный маркер отсекает
// гонки внутри процесса до похода в базу, а исход определяет условная
// запись AcceptIfPending. Маркер — оптимизация, не источник истины.
type ReferralService struct {
	repo     ReferralStore
	wallet   EscrowManager
	chats    ChatRoomStore
	users    UserDirectory
	notifier Notifier
	guard    *AcceptGuard

	holdDuration time.Duration
}

// NewReferralService создаёт координатор запросов.
func NewReferralService(repo ReferralStore, wallet EscrowManager, chats ChatRoomStore, users UserDirectory, notifier Notifier, guard *AcceptGuard, holdDuration time.Duration) *ReferralService {
	if guard == nil {
		guard = NewAcceptGuard(DefaultClaimTTL)
	}
	if holdDuration <= 0 {
		holdDuration = DefaultHoldDuration
	}
	return &ReferralService{
		repo:         repo,
		wallet:       wallet,
		chats:        chats,
		users:        users,
		notifier:     notifier,
		guard:        guard,
		holdDuration: holdDuration,
	}
}

// RequestReferralInput описывает входные данные нового запроса.
type RequestReferralInput struct {
	SeekerID    uuid.UUID
	Company     string
	Role        string
	Skills      []string
	Description string
	Amount      float64
}

// RequestReferral создаёт запрос и замораживает вознаграждение в escrow.
// При нехватке средств запрос отменяется и не попадает в ленты рефереров.
func (s *ReferralService) RequestReferral(ctx context.Context, in RequestReferralInput) (*models.ReferralRequest, error) {
	if in.Company == "" {
		return nil, fmt.Errorf("referral service: компания не может быть пустой")
	}
	if in.Role == "" {
		return nil, fmt.Errorf("referral service: должность не может быть пустой")
	}
	if in.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}

	req := &models.ReferralRequest{
		SeekerID:    in.SeekerID,
		Company:     in.Company,
		Role:        in.Role,
		Skills:      in.Skills,
		Description: in.Description,
		Amount:      in.Amount,
		ExpiresAt:   time.Now().Add(s.holdDuration),
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	// Реферер на этом этапе неизвестен, escrow создаётся без получателя.
	if _, err := s.wallet.LockToEscrow(ctx, req.ID, in.SeekerID, uuid.Nil, in.Amount); err != nil {
		if _, cancelErr := s.repo.UpdateStatusIf(ctx, req.ID, models.ReferralStatusPending, models.ReferralStatusCancelled); cancelErr != nil {
			logger.Log.WithError(cancelErr).WithField("referral_id", req.ID).Error("referral service: не удалось отменить запрос без escrow")
		}
		return nil, err
	}

	s.notifier.NotifyGroup(companyGroup(in.Company), models.EventReferralReceived, map[string]any{
		"referral_id": req.ID,
		"company":     req.Company,
		"role":        req.Role,
		"amount":      req.Amount,
	})

	return req, nil
}

// AcceptReferral принимает запрос от имени реферера.
// Побеждает ровно один вызов: проигравшие получают ErrReferralTaken
// независимо от того, на каком слое арбитража они проиграли.
func (s *ReferralService) AcceptReferral(ctx context.Context, referralID, referrerID uuid.UUID) (*models.ReferralRequest, error) {
	if !s.guard.TryClaim(referralID, referrerID) {
		return nil, ErrReferralTaken
	}

	req, err := s.repo.GetByID(ctx, referralID)
	if err != nil {
		s.guard.Release(referralID, referrerID)
		return nil, err
	}
	if req.Status != models.ReferralStatusPending {
		s.guard.Release(referralID, referrerID)
		return nil, ErrReferralTaken
	}
	if req.SeekerID == referrerID {
		s.guard.Release(referralID, referrerID)
		return nil, fmt.Errorf("referral service: нельзя принять собственный запрос")
	}

	referrer, err := s.users.GetByID(ctx, referrerID)
	if err != nil {
		s.guard.Release(referralID, referrerID)
		return nil, err
	}
	if !s.eligible(referrer, req.Company) {
		s.guard.Release(referralID, referrerID)
		return nil, ErrNotEligible
	}

	accepted, err := s.repo.AcceptIfPending(ctx, referralID, referrerID, time.Now())
	if err != nil {
		s.guard.Release(referralID, referrerID)
		if errors.Is(err, repository.ErrReferralNotPending) {
			return nil, ErrReferralTaken
		}
		return nil, err
	}

	// Статус уже зафиксирован, дальше только побочные эффекты.
	// Их сбой не откатывает принятие: недостающее достраивается при чтении.
	if _, err := s.wallet.LockToEscrow(ctx, referralID, accepted.SeekerID, referrerID, accepted.Amount); err != nil {
		logger.Log.WithError(err).WithField("referral_id", referralID).Error("referral service: не удалось назначить получателя escrow")
	}

	if room, err := s.ensureChatRoom(ctx, accepted); err != nil {
		logger.Log.WithError(err).WithField("referral_id", referralID).Error("referral service: не удалось создать чат")
	} else {
		accepted.ChatRoomID = &room.ID
	}

	if _, err := s.notifier.Notify(ctx, accepted.SeekerID, models.EventReferralConfirmed, map[string]any{
		"referral_id": referralID,
		"referrer":    referrer.AnonDisplay(),
	}); err != nil {
		logger.Log.WithError(err).WithField("referral_id", referralID).Warn("referral service: не удалось уведомить соискателя")
	}

	s.notifier.NotifyGroup(companyGroup(accepted.Company), models.EventReferralClosed, map[string]any{
		"referral_id": referralID,
	})

	s.guard.Release(referralID, referrerID)
	return accepted, nil
}

// MarkInProgress переводит принятый запрос в работу.
func (s *ReferralService) MarkInProgress(ctx context.Context, referralID, referrerID uuid.UUID) (*models.ReferralRequest, error) {
	return s.advance(ctx, referralID, referrerID, models.ReferralStatusAccepted, models.ReferralStatusInProgress)
}

// MarkReferred фиксирует, что рекомендация передана в компанию.
func (s *ReferralService) MarkReferred(ctx context.Context, referralID, referrerID uuid.UUID) (*models.ReferralRequest, error) {
	req, err := s.advance(ctx, referralID, referrerID, models.ReferralStatusInProgress, models.ReferralStatusReferred)
	if err != nil {
		return nil, err
	}

	if _, err := s.notifier.Notify(ctx, req.SeekerID, models.EventReferralConfirmed, map[string]any{
		"referral_id": referralID,
		"status":      req.Status,
	}); err != nil {
		logger.Log.WithError(err).WithField("referral_id", referralID).Warn("referral service: не удалось уведомить соискателя")
	}
	return req, nil
}

// advance переводит запрос между рабочими статусами от имени реферера.
func (s *ReferralService) advance(ctx context.Context, referralID, referrerID uuid.UUID, from, to string) (*models.ReferralRequest, error) {
	req, err := s.repo.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if req.AcceptedBy == nil || *req.AcceptedBy != referrerID {
		return nil, fmt.Errorf("referral service: запрос принят другим реферером")
	}

	updated, err := s.repo.UpdateStatusIf(ctx, referralID, from, to)
	if err != nil {
		if errors.Is(err, repository.ErrReferralNotPending) {
			return nil, fmt.Errorf("referral service: запрос в статусе %s, перевод в %s невозможен", req.Status, to)
		}
		return nil, err
	}
	return updated, nil
}

// CompleteReferral подтверждает итог от имени соискателя и выплачивает escrow рефереру.
func (s *ReferralService) CompleteReferral(ctx context.Context, referralID, seekerID uuid.UUID) (*models.ReferralRequest, error) {
	req, err := s.repo.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if req.SeekerID != seekerID {
		return nil, fmt.Errorf("referral service: подтвердить итог может только автор запроса")
	}
	if !req.IsHolding() || req.Status == models.ReferralStatusPending {
		return nil, fmt.Errorf("referral service: запрос в статусе %s нельзя завершить", req.Status)
	}

	updated, err := s.repo.UpdateStatusIf(ctx, referralID, req.Status, models.ReferralStatusCompleted)
	if err != nil {
		return nil, err
	}

	escrow, err := s.wallet.ReleaseEscrow(ctx, referralID)
	if err != nil {
		// Статус не откатываем: зависшую выплату доведёт sweeper
		// при следующем обходе.
		logger.Log.WithError(err).WithField("referral_id", referralID).Error("referral service: не удалось выплатить escrow")
		return updated, err
	}

	if escrow.ReferrerID != nil {
		if _, err := s.notifier.Notify(ctx, *escrow.ReferrerID, models.EventPaymentReleased, map[string]any{
			"referral_id": referralID,
			"amount":      escrow.Amount,
		}); err != nil {
			logger.Log.WithError(err).WithField("referral_id", referralID).Warn("referral service: не удалось уведомить реферера")
		}
	}

	return updated, nil
}

// CancelReferral отменяет ещё не принятый запрос и возвращает средства.
func (s *ReferralService) CancelReferral(ctx context.Context, referralID, seekerID uuid.UUID) (*models.ReferralRequest, error) {
	req, err := s.repo.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if req.SeekerID != seekerID {
		return nil, fmt.Errorf("referral service: отменить запрос может только автор")
	}

	updated, err := s.repo.UpdateStatusIf(ctx, referralID, models.ReferralStatusPending, models.ReferralStatusCancelled)
	if err != nil {
		if errors.Is(err, repository.ErrReferralNotPending) {
			return nil, fmt.Errorf("referral service: запрос уже принят, отмена невозможна")
		}
		return nil, err
	}

	escrow, err := s.wallet.RefundEscrow(ctx, referralID)
	if err != nil {
		// Зависший возврат доведёт sweeper при следующем обходе.
		logger.Log.WithError(err).WithField("referral_id", referralID).Error("referral service: не удалось вернуть escrow")
		return updated, err
	}

	if _, err := s.notifier.Notify(ctx, seekerID, models.EventPaymentRefunded, map[string]any{
		"referral_id": referralID,
		"amount":      escrow.Amount,
	}); err != nil {
		logger.Log.WithError(err).WithField("referral_id", referralID).Warn("referral service: не удалось уведомить соискателя")
	}

	return updated, nil
}

// DeclineReferral — отказ реферера от уже принятого запроса.
// Средства возвращаются соискателю, запрос закрывается.
func (s *ReferralService) DeclineReferral(ctx context.Context, referralID, referrerID uuid.UUID) (*models.ReferralRequest, error) {
	req, err := s.repo.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if req.AcceptedBy == nil || *req.AcceptedBy != referrerID {
		return nil, fmt.Errorf("referral service: запрос принят другим реферером")
	}
	if req.Status != models.ReferralStatusAccepted && req.Status != models.ReferralStatusInProgress {
		return nil, fmt.Errorf("referral service: запрос в статусе %s нельзя отклонить", req.Status)
	}

	updated, err := s.repo.UpdateStatusIf(ctx, referralID, req.Status, models.ReferralStatusCancelled)
	if err != nil {
		return nil, err
	}

	if _, err := s.wallet.RefundEscrow(ctx, referralID); err != nil {
		// Зависший возврат доведёт sweeper при следующем обходе.
		logger.Log.WithError(err).WithField("referral_id", referralID).Error("referral service: не удалось вернуть escrow")
		return updated, err
	}

	if _, err := s.notifier.Notify(ctx, req.SeekerID, models.EventReferralDeclined, map[string]any{
		"referral_id": referralID,
	}); err != nil {
		logger.Log.WithError(err).WithField("referral_id", referralID).Warn("referral service: не удалось уведомить соискателя")
	}

	return updated, nil
}

// GetReferral возвращает запрос. Если принятие прошло, а чат по какой-то
// причине не был создан, достраивает его на чтении.
func (s *ReferralService) GetReferral(ctx context.Context, referralID uuid.UUID) (*models.ReferralRequest, error) {
	req, err := s.repo.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}

	if req.ChatRoomID == nil && req.AcceptedBy != nil && req.IsHolding() {
		if room, err := s.ensureChatRoom(ctx, req); err != nil {
			logger.Log.WithError(err).WithField("referral_id", referralID).Warn("referral service: не удалось достроить чат")
		} else {
			req.ChatRoomID = &room.ID
		}
	}

	return req, nil
}

// GetReferrerDisplay возвращает обезличенное представление принявшего реферера.
func (s *ReferralService) GetReferrerDisplay(ctx context.Context, referralID uuid.UUID) (*models.ReferrerDisplay, error) {
	req, err := s.repo.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if req.AcceptedBy == nil {
		return nil, fmt.Errorf("referral service: запрос ещё никто не принял")
	}

	referrer, err := s.users.GetByID(ctx, *req.AcceptedBy)
	if err != nil {
		return nil, err
	}
	display := referrer.AnonDisplay()
	return &display, nil
}

// ListMyRequests возвращает запросы соискателя.
func (s *ReferralService) ListMyRequests(ctx context.Context, seekerID uuid.UUID, limit, offset int) ([]models.ReferralRequest, error) {
	limit, offset = normalizePage(limit, offset)
	return s.repo.ListBySeeker(ctx, seekerID, limit, offset)
}

// ListOpenForReferrer возвращает открытые запросы по компаниям реферера.
func (s *ReferralService) ListOpenForReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]models.ReferralRequest, error) {
	referrer, err := s.users.GetByID(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	if !referrer.Verified {
		return nil, ErrNotEligible
	}

	limit, offset = normalizePage(limit, offset)
	var result []models.ReferralRequest
	for _, company := range referrer.Companies {
		reqs, err := s.repo.ListPendingByCompany(ctx, company, limit, offset)
		if err != nil {
			return nil, err
		}
		result = append(result, reqs...)
		if len(result) >= limit {
			result = result[:limit]
			break
		}
	}
	return result, nil
}

// ListAccepted возвращает запросы, принятые реферером.
func (s *ReferralService) ListAccepted(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]models.ReferralRequest, error) {
	limit, offset = normalizePage(limit, offset)
	return s.repo.ListByReferrer(ctx, referrerID, limit, offset)
}

// ensureChatRoom создаёт (или возвращает существующий) чат по запросу
// и привязывает его к записи запроса.
func (s *ReferralService) ensureChatRoom(ctx context.Context, req *models.ReferralRequest) (*models.ChatRoom, error) {
	if req.AcceptedBy == nil {
		return nil, fmt.Errorf("referral service: у запроса нет реферера")
	}

	room := &models.ChatRoom{
		ReferralID: req.ID,
		SeekerID:   req.SeekerID,
		ReferrerID: *req.AcceptedBy,
		Anonymous:  true,
	}
	if err := s.chats.CreateRoom(ctx, room, "Запрос принят. Общение анонимно до завершения сделки."); err != nil {
		return nil, err
	}
	if err := s.repo.SetChatRoomID(ctx, req.ID, room.ID); err != nil {
		return nil, err
	}
	return room, nil
}

// eligible проверяет, что реферер подтверждён и работает в компании запроса.
func (s *ReferralService) eligible(referrer *models.User, company string) bool {
	if referrer.Role != models.RoleReferrer || !referrer.Verified {
		return false
	}
	for _, c := range referrer.Companies {
		if strings.EqualFold(c, company) {
			return true
		}
	}
	return false
}

func companyGroup(company string) string {
	return "company:" + strings.ToLower(company)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
