package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/refermarket/referral-backend/internal/goroutine"
	"github.com/refermarket/referral-backend/internal/logger"
	"github.com/refermarket/referral-backend/internal/models"
	"github.com/refermarket/referral-backend/internal/repository"
)

// DefaultSweepInterval — период обхода просроченных удержаний.
const DefaultSweepInterval = 5 * time.Minute

// EscrowSweepStore описывает операции хранилища, нужные sweeper'у:
// выборки просроченных и зависших удержаний плюс денежные операции по ним.
type EscrowSweepStore interface {
	ListExpiredEscrows(ctx context.Context, lockedBefore time.Time) ([]models.Escrow, error)
	ListStrandedEscrows(ctx context.Context) ([]models.Escrow, error)
	LockToEscrow(ctx context.Context, referralID, seekerID, referrerID uuid.UUID, amount float64) (*models.Escrow, error)
	ReleaseEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error)
	RefundEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error)
}

// EscrowSweeper возвращает средства по запросам, не завершённым за срок
// удержания, и доводит до конца денежные операции, оборвавшиеся после смены
// статуса запроса. Каждый escrow обрабатывается независимо: сбой на одном не
// останавливает обход остальных.
type EscrowSweeper struct {
	repo     EscrowSweepStore
	requests ReferralStore
	notifier Notifier

	interval time.Duration
	hold     time.Duration
}

// NewEscrowSweeper создаёт sweeper просроченных удержаний.
func NewEscrowSweeper(repo EscrowSweepStore, requests ReferralStore, notifier Notifier, interval, hold time.Duration) *EscrowSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if hold <= 0 {
		hold = DefaultHoldDuration
	}
	return &EscrowSweeper{
		repo:     repo,
		requests: requests,
		notifier: notifier,
		interval: interval,
		hold:     hold,
	}
}

// Start запускает периодический обход. Останавливается по отмене контекста.
func (s *EscrowSweeper) Start(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	})
}

// SweepOnce выполняет один обход и возвращает количество закрытых удержаний.
func (s *EscrowSweeper) SweepOnce(ctx context.Context) int {
	recovered := 0

	cutoff := time.Now().Add(-s.hold)
	expired, err := s.repo.ListExpiredEscrows(ctx, cutoff)
	if err != nil {
		logger.Log.WithError(err).Error("escrow sweeper: не удалось получить просроченные удержания")
	} else {
		for _, escrow := range expired {
			refunded, err := s.expire(ctx, escrow)
			if err != nil {
				logger.Log.WithError(err).WithField("referral_id", escrow.ReferralID).Error("escrow sweeper: не удалось вернуть удержание")
				continue
			}
			if refunded {
				recovered++
			}
		}
	}

	stranded, err := s.repo.ListStrandedEscrows(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("escrow sweeper: не удалось получить зависшие удержания")
	} else {
		for _, escrow := range stranded {
			done, err := s.reconcile(ctx, escrow)
			if err != nil {
				logger.Log.WithError(err).WithField("referral_id", escrow.ReferralID).Error("escrow sweeper: не удалось закрыть зависшее удержание")
				continue
			}
			if done {
				recovered++
			}
		}
	}

	if recovered > 0 {
		logger.Log.WithField("count", recovered).Info("escrow sweeper: удержания закрыты")
	}
	return recovered
}

// expire закрывает один просроченный запрос: сначала перевод статуса, затем
// возврат средств. Запрос, принятый между выборкой и переводом, не трогаем.
// Возвращает true только при фактическом возврате.
func (s *EscrowSweeper) expire(ctx context.Context, escrow models.Escrow) (bool, error) {
	req, err := s.requests.GetByID(ctx, escrow.ReferralID)
	if err != nil {
		return false, err
	}
	if !req.IsHolding() {
		return false, nil
	}

	if _, err := s.requests.UpdateStatusIf(ctx, req.ID, req.Status, models.ReferralStatusCancelled); err != nil {
		if errors.Is(err, repository.ErrReferralNotPending) {
			// Статус сменился под ногами, этим запросом займётся следующий обход.
			return false, nil
		}
		return false, err
	}

	if _, err := s.repo.RefundEscrow(ctx, escrow.ReferralID); err != nil {
		if errors.Is(err, repository.ErrEscrowAlreadyProcessed) {
			return false, nil
		}
		return false, err
	}

	s.notifyRefund(ctx, escrow, "срок удержания истёк")
	return true, nil
}

// reconcile доводит до конца денежную операцию, не завершившуюся вместе со
// сменой статуса запроса: возврат по отменённому, выплату по завершённому.
// Пока удержание не закрыто, оно попадает в каждый следующий обход.
func (s *EscrowSweeper) reconcile(ctx context.Context, escrow models.Escrow) (bool, error) {
	req, err := s.requests.GetByID(ctx, escrow.ReferralID)
	if err != nil {
		return false, err
	}

	switch req.Status {
	case models.ReferralStatusCancelled:
		if _, err := s.repo.RefundEscrow(ctx, escrow.ReferralID); err != nil {
			if errors.Is(err, repository.ErrEscrowAlreadyProcessed) {
				return false, nil
			}
			return false, err
		}
		s.notifyRefund(ctx, escrow, "запрос отменён")
		return true, nil

	case models.ReferralStatusCompleted:
		// Если при принятии не успели назначить получателя, назначаем его
		// идемпотентной блокировкой перед выплатой.
		if escrow.ReferrerID == nil && req.AcceptedBy != nil {
			if _, err := s.repo.LockToEscrow(ctx, req.ID, escrow.SeekerID, *req.AcceptedBy, escrow.Amount); err != nil {
				return false, err
			}
		}
		released, err := s.repo.ReleaseEscrow(ctx, escrow.ReferralID)
		if err != nil {
			if errors.Is(err, repository.ErrEscrowAlreadyProcessed) {
				return false, nil
			}
			return false, err
		}
		if s.notifier != nil && released.ReferrerID != nil {
			if _, err := s.notifier.Notify(ctx, *released.ReferrerID, models.EventPaymentReleased, map[string]any{
				"referral_id": escrow.ReferralID,
				"amount":      released.Amount,
			}); err != nil {
				logger.Log.WithError(err).WithField("referral_id", escrow.ReferralID).Warn("escrow sweeper: не удалось уведомить реферера")
			}
		}
		return true, nil
	}

	return false, nil
}

func (s *EscrowSweeper) notifyRefund(ctx context.Context, escrow models.Escrow, reason string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, escrow.SeekerID, models.EventPaymentRefunded, map[string]any{
		"referral_id": escrow.ReferralID,
		"amount":      escrow.Amount,
		"reason":      reason,
	}); err != nil {
		logger.Log.WithError(err).WithField("referral_id", escrow.ReferralID).Warn("escrow sweeper: не удалось уведомить соискателя")
	}
}
