package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/refermarket/referral-backend/internal/models"
	"github.com/refermarket/referral-backend/internal/repository"
)

type mockWalletRepo struct {
	mock.Mock
}

func (m *mockWalletRepo) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWalletRepo) AddFunds(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.Wallet, error) {
	args := m.Called(ctx, userID, amount, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWalletRepo) Withdraw(ctx context.Context, userID uuid.UUID, amount float64) (*models.Wallet, error) {
	args := m.Called(ctx, userID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWalletRepo) LockToEscrow(ctx context.Context, referralID, seekerID, referrerID uuid.UUID, amount float64) (*models.Escrow, error) {
	args := m.Called(ctx, referralID, seekerID, referrerID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Escrow), args.Error(1)
}

func (m *mockWalletRepo) ReleaseEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error) {
	args := m.Called(ctx, referralID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Escrow), args.Error(1)
}

func (m *mockWalletRepo) RefundEscrow(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error) {
	args := m.Called(ctx, referralID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Escrow), args.Error(1)
}

func (m *mockWalletRepo) GetEscrowByReferralID(ctx context.Context, referralID uuid.UUID) (*models.Escrow, error) {
	args := m.Called(ctx, referralID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Escrow), args.Error(1)
}

func (m *mockWalletRepo) ListExpiredEscrows(ctx context.Context, lockedBefore time.Time) ([]models.Escrow, error) {
	args := m.Called(ctx, lockedBefore)
	return args.Get(0).([]models.Escrow), args.Error(1)
}

func (m *mockWalletRepo) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.WalletTransaction), args.Error(1)
}

func TestWalletService_GetWallet(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.Wallet{UserID: userID, TotalBalance: 1500, FreeBalance: 1000, LockedBalance: 500}
	repo.On("GetWallet", ctx, userID).Return(expected, nil)

	wallet, err := svc.GetWallet(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, expected, wallet)
	repo.AssertExpectations(t)
}

func TestWalletService_AddFunds_Success(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.Wallet{UserID: userID, TotalBalance: 1000, FreeBalance: 1000}
	repo.On("AddFunds", ctx, userID, float64(1000), "Пополнение кошелька").Return(expected, nil)

	wallet, err := svc.AddFunds(ctx, userID, 1000, "")
	assert.NoError(t, err)
	assert.Equal(t, expected, wallet)
}

func TestWalletService_AddFunds_InvalidAmount(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.AddFunds(ctx, userID, 0, "")
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = svc.AddFunds(ctx, userID, -100, "")
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
}

func TestWalletService_TopUp_WithProofRef(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.Wallet{UserID: userID, TotalBalance: 2500, FreeBalance: 2500}
	repo.On("AddFunds", ctx, userID, float64(2500), "Пополнение по подтверждению UPI1234567890").Return(expected, nil)

	wallet, err := svc.TopUp(ctx, userID, 2500, "UPI1234567890")
	assert.NoError(t, err)
	assert.Equal(t, expected, wallet)
}

func TestWalletService_TopUp_BadProofRef(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()

	_, err := svc.TopUp(ctx, uuid.New(), 1000, "нет")
	assert.Error(t, err)
	repo.AssertNotCalled(t, "AddFunds", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWalletService_Withdraw_InsufficientFunds(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("Withdraw", ctx, userID, float64(5000)).Return(nil, models.ErrInsufficientFunds)

	_, err := svc.Withdraw(ctx, userID, 5000)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestWalletService_LockToEscrow_Success(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()

	referralID := uuid.New()
	seekerID := uuid.New()

	expected := &models.Escrow{ID: uuid.New(), Amount: 5000, Status: models.EscrowStatusLocked}
	repo.On("LockToEscrow", ctx, referralID, seekerID, uuid.Nil, float64(5000)).Return(expected, nil)

	escrow, err := svc.LockToEscrow(ctx, referralID, seekerID, uuid.Nil, 5000)
	assert.NoError(t, err)
	assert.Equal(t, expected, escrow)
}

func TestWalletService_LockToEscrow_InvalidAmount(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()

	_, err := svc.LockToEscrow(ctx, uuid.New(), uuid.New(), uuid.Nil, 0)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
}

func TestWalletService_ReleaseEscrow(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	referralID := uuid.New()

	expected := &models.Escrow{Status: models.EscrowStatusReleased}
	repo.On("ReleaseEscrow", ctx, referralID).Return(expected, nil)

	escrow, err := svc.ReleaseEscrow(ctx, referralID)
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, escrow.Status)
}

func TestWalletService_ReleaseEscrow_AlreadyProcessed(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	referralID := uuid.New()

	repo.On("ReleaseEscrow", ctx, referralID).Return(nil, repository.ErrEscrowAlreadyProcessed)

	_, err := svc.ReleaseEscrow(ctx, referralID)
	assert.ErrorIs(t, err, repository.ErrEscrowAlreadyProcessed)
}

func TestWalletService_RefundEscrow(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	referralID := uuid.New()

	expected := &models.Escrow{Status: models.EscrowStatusRefunded}
	repo.On("RefundEscrow", ctx, referralID).Return(expected, nil)

	escrow, err := svc.RefundEscrow(ctx, referralID)
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, escrow.Status)
}

func TestWalletService_GetEscrow_NotFound(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	referralID := uuid.New()

	repo.On("GetEscrowByReferralID", ctx, referralID).Return(nil, repository.ErrEscrowNotFound)

	_, err := svc.GetEscrow(ctx, referralID)
	assert.ErrorIs(t, err, repository.ErrEscrowNotFound)
}

func TestWalletService_ListTransactions_DefaultLimit(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("ListTransactions", ctx, userID, 20, 0).Return([]models.WalletTransaction{}, nil)

	_, err := svc.ListTransactions(ctx, userID, 0, -5)
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestWalletService_ListTransactions(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()
	userID := uuid.New()

	expected := []models.WalletTransaction{{ID: uuid.New()}, {ID: uuid.New()}}
	repo.On("ListTransactions", ctx, userID, 50, 10).Return(expected, nil)

	txs, err := svc.ListTransactions(ctx, userID, 50, 10)
	assert.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestWalletService_InvalidAmountIsNotPersisted(t *testing.T) {
	repo := new(mockWalletRepo)
	svc := NewWalletService(repo)
	ctx := context.Background()

	_, err := svc.Withdraw(ctx, uuid.New(), -1)
	assert.True(t, errors.Is(err, models.ErrInvalidAmount))
	repo.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything, mock.Anything)
}
