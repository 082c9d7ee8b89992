package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/refermarket/referral-backend/internal/models"
)

func (f *fakeEscrowManager) ListExpiredEscrows(ctx context.Context, lockedBefore time.Time) ([]models.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Escrow
	for _, e := range f.escrows {
		if e.Status == models.EscrowStatusLocked && e.LockedAt.Before(lockedBefore) {
			out = append(out, *e)
		}
	}
	return out, nil
}

// ListStrandedEscrows отдаёт все ещё заблокированные удержания: статус
// запроса sweeper перепроверяет сам, поэтому фильтр по нему здесь не нужен.
func (f *fakeEscrowManager) ListStrandedEscrows(ctx context.Context) ([]models.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Escrow
	for _, e := range f.escrows {
		if e.Status == models.EscrowStatusLocked {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEscrowManager) backdate(referralID uuid.UUID, lockedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.escrows[referralID]; ok {
		e.LockedAt = lockedAt
	}
}

func TestEscrowSweeper_RefundsExpired(t *testing.T) {
	svc, store, wallet, _, _, notifier := newTestReferralService(t)
	ctx := context.Background()
	seekerID := uuid.New()

	req, err := svc.RequestReferral(ctx, RequestReferralInput{
		SeekerID: seekerID, Company: "Acme", Role: "Backend Engineer", Amount: 3000,
	})
	require.NoError(t, err)
	wallet.backdate(req.ID, time.Now().Add(-100*time.Hour))

	sweeper := NewEscrowSweeper(wallet, store, notifier, DefaultSweepInterval, DefaultHoldDuration)
	refunded := sweeper.SweepOnce(ctx)
	assert.Equal(t, 1, refunded)

	escrow, err := wallet.GetEscrow(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, escrow.Status)

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusCancelled, got.Status)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.direct, models.EventPaymentRefunded)
}

func TestEscrowSweeper_SkipsFresh(t *testing.T) {
	svc, store, wallet, _, _, notifier := newTestReferralService(t)
	ctx := context.Background()

	req, err := svc.RequestReferral(ctx, RequestReferralInput{
		SeekerID: uuid.New(), Company: "Acme", Role: "Backend Engineer", Amount: 3000,
	})
	require.NoError(t, err)

	sweeper := NewEscrowSweeper(wallet, store, notifier, DefaultSweepInterval, DefaultHoldDuration)
	refunded := sweeper.SweepOnce(ctx)
	assert.Equal(t, 0, refunded)

	escrow, err := wallet.GetEscrow(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusLocked, escrow.Status)
}

func TestEscrowSweeper_ExpiredAcceptedIsAlsoRefunded(t *testing.T) {
	svc, store, wallet, _, users, notifier := newTestReferralService(t)
	ctx := context.Background()
	referrerID := addReferrer(users, "Acme")

	req, err := svc.RequestReferral(ctx, RequestReferralInput{
		SeekerID: uuid.New(), Company: "Acme", Role: "Backend Engineer", Amount: 3000,
	})
	require.NoError(t, err)
	_, err = svc.AcceptReferral(ctx, req.ID, referrerID)
	require.NoError(t, err)
	wallet.backdate(req.ID, time.Now().Add(-100*time.Hour))

	sweeper := NewEscrowSweeper(wallet, store, notifier, DefaultSweepInterval, DefaultHoldDuration)
	refunded := sweeper.SweepOnce(ctx)
	assert.Equal(t, 1, refunded)

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusCancelled, got.Status)
}

func TestEscrowSweeper_FailureOnOneDoesNotStopOthers(t *testing.T) {
	svc, store, wallet, _, _, notifier := newTestReferralService(t)
	ctx := context.Background()

	first, err := svc.RequestReferral(ctx, RequestReferralInput{
		SeekerID: uuid.New(), Company: "Acme", Role: "Backend Engineer", Amount: 1000,
	})
	require.NoError(t, err)
	second, err := svc.RequestReferral(ctx, RequestReferralInput{
		SeekerID: uuid.New(), Company: "Acme", Role: "Backend Engineer", Amount: 2000,
	})
	require.NoError(t, err)

	wallet.backdate(first.ID, time.Now().Add(-100*time.Hour))
	wallet.backdate(second.ID, time.Now().Add(-100*time.Hour))

	// Ломаем один запрос: удаляем его из хранилища, возврат по нему невозможен.
	store.mu.Lock()
	delete(store.requests, first.ID)
	store.mu.Unlock()

	sweeper := NewEscrowSweeper(wallet, store, notifier, DefaultSweepInterval, DefaultHoldDuration)
	refunded := sweeper.SweepOnce(ctx)
	assert.Equal(t, 1, refunded)

	escrow, err := wallet.GetEscrow(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, escrow.Status)
}

func TestEscrowSweeper_RecoversRefundAfterFailedCancel(t *testing.T) {
	svc, store, wallet, _, _, notifier := newTestReferralService(t)
	ctx := context.Background()
	seekerID := uuid.New()

	req, err := svc.RequestReferral(ctx, RequestReferralInput{
		SeekerID: seekerID, Company: "Acme", Role: "Backend Engineer", Amount: 3000,
	})
	require.NoError(t, err)

	// Статус успевает стать cancelled, возврат срывается.
	wallet.failNextRefund = true
	_, err = svc.CancelReferral(ctx, req.ID, seekerID)
	require.Error(t, err)

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusCancelled, got.Status)
	escrow, err := wallet.GetEscrow(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusLocked, escrow.Status)

	// Повторная отмена отклоняется: запрос уже не pending.
	_, err = svc.CancelReferral(ctx, req.ID, seekerID)
	require.Error(t, err)

	sweeper := NewEscrowSweeper(wallet, store, notifier, DefaultSweepInterval, DefaultHoldDuration)
	assert.Equal(t, 1, sweeper.SweepOnce(ctx))

	escrow, err = wallet.GetEscrow(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, escrow.Status)
	assert.Contains(t, notifier.eventsFor(seekerID), models.EventPaymentRefunded)
}

func TestEscrowSweeper_RecoversPayoutAfterFailedComplete(t *testing.T) {
	svc, store, wallet, _, users, notifier := newTestReferralService(t)
	ctx := context.Background()
	seekerID := uuid.New()
	referrerID := addReferrer(users, "Acme")

	req, err := svc.RequestReferral(ctx, RequestReferralInput{
		SeekerID: seekerID, Company: "Acme", Role: "Backend Engineer", Amount: 3000,
	})
	require.NoError(t, err)
	_, err = svc.AcceptReferral(ctx, req.ID, referrerID)
	require.NoError(t, err)
	_, err = svc.MarkInProgress(ctx, req.ID, referrerID)
	require.NoError(t, err)
	_, err = svc.MarkReferred(ctx, req.ID, referrerID)
	require.NoError(t, err)

	wallet.failNextRelease = true
	_, err = svc.CompleteReferral(ctx, req.ID, seekerID)
	require.Error(t, err)

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusCompleted, got.Status)
	escrow, err := wallet.GetEscrow(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusLocked, escrow.Status)

	sweeper := NewEscrowSweeper(wallet, store, notifier, DefaultSweepInterval, DefaultHoldDuration)
	assert.Equal(t, 1, sweeper.SweepOnce(ctx))

	escrow, err = wallet.GetEscrow(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, escrow.Status)
	assert.Contains(t, notifier.eventsFor(referrerID), models.EventPaymentReleased)
}

func TestEscrowSweeper_RecoveryFailureRetriedNextSweep(t *testing.T) {
	svc, store, wallet, _, _, notifier := newTestReferralService(t)
	ctx := context.Background()
	seekerID := uuid.New()

	req, err := svc.RequestReferral(ctx, RequestReferralInput{
		SeekerID: seekerID, Company: "Acme", Role: "Backend Engineer", Amount: 3000,
	})
	require.NoError(t, err)

	wallet.failNextRefund = true
	_, err = svc.CancelReferral(ctx, req.ID, seekerID)
	require.Error(t, err)

	// Первый обход тоже срывается и ничего не засчитывает.
	wallet.failNextRefund = true
	sweeper := NewEscrowSweeper(wallet, store, notifier, DefaultSweepInterval, DefaultHoldDuration)
	assert.Equal(t, 0, sweeper.SweepOnce(ctx))

	escrow, err := wallet.GetEscrow(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusLocked, escrow.Status)

	assert.Equal(t, 1, sweeper.SweepOnce(ctx))
	escrow, err = wallet.GetEscrow(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, escrow.Status)
}

func TestEscrowSweeper_ExpireSkipsNonHoldingWithoutCounting(t *testing.T) {
	svc, store, wallet, _, _, notifier := newTestReferralService(t)
	ctx := context.Background()

	req, err := svc.RequestReferral(ctx, RequestReferralInput{
		SeekerID: uuid.New(), Company: "Acme", Role: "Backend Engineer", Amount: 3000,
	})
	require.NoError(t, err)
	wallet.backdate(req.ID, time.Now().Add(-100*time.Hour))

	// Запрос закрылся между выборкой и обработкой.
	store.mu.Lock()
	store.requests[req.ID].Status = models.ReferralStatusCompleted
	store.mu.Unlock()

	sweeper := NewEscrowSweeper(wallet, store, notifier, DefaultSweepInterval, DefaultHoldDuration)
	escrow, err := wallet.GetEscrow(ctx, req.ID)
	require.NoError(t, err)

	refunded, err := sweeper.expire(ctx, *escrow)
	require.NoError(t, err)
	assert.False(t, refunded)

	escrow, err = wallet.GetEscrow(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusLocked, escrow.Status)
}

func TestEscrowSweeper_StartStopsOnContextCancel(t *testing.T) {
	_, store, wallet, _, _, notifier := newTestReferralService(t)

	sweeper := NewEscrowSweeper(wallet, store, notifier, 10*time.Millisecond, DefaultHoldDuration)
	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
}
