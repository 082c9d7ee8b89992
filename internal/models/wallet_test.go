package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertBalances(t *testing.T, w *Wallet, total, free, locked float64) {
	t.Helper()
	assert.InDelta(t, total, w.TotalBalance, 1e-9)
	assert.InDelta(t, free, w.FreeBalance, 1e-9)
	assert.InDelta(t, locked, w.LockedBalance, 1e-9)
	assert.NoError(t, w.Validate())
}

func TestWallet_CreditThenLock(t *testing.T) {
	w := NewWallet(uuid.New())
	assertBalances(t, w, 0, 0, 0)

	require.NoError(t, w.Credit(500))
	assertBalances(t, w, 500, 500, 0)

	require.NoError(t, w.Lock(500))
	assertBalances(t, w, 500, 0, 500)
}

func TestWallet_ReleaseLocked(t *testing.T) {
	w := NewWallet(uuid.New())
	require.NoError(t, w.Credit(500))
	require.NoError(t, w.Lock(500))

	require.NoError(t, w.ReleaseLocked(500))
	assertBalances(t, w, 0, 0, 0)
}

func TestWallet_Unlock_RestoresFreeBalance(t *testing.T) {
	w := NewWallet(uuid.New())
	require.NoError(t, w.Credit(500))
	require.NoError(t, w.Lock(500))

	require.NoError(t, w.Unlock(500))
	// Возврат не меняет общий баланс
	assertBalances(t, w, 500, 500, 0)
}

func TestWallet_Debit_InsufficientFunds(t *testing.T) {
	w := NewWallet(uuid.New())
	require.NoError(t, w.Credit(50))

	err := w.Debit(100)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	// Кошелёк не изменился
	assertBalances(t, w, 50, 50, 0)
}

func TestWallet_Lock_InsufficientFunds(t *testing.T) {
	w := NewWallet(uuid.New())
	require.NoError(t, w.Credit(100))
	require.NoError(t, w.Lock(80))

	err := w.Lock(50)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assertBalances(t, w, 100, 20, 80)
}

func TestWallet_InvalidAmounts(t *testing.T) {
	w := NewWallet(uuid.New())

	assert.ErrorIs(t, w.Credit(0), ErrInvalidAmount)
	assert.ErrorIs(t, w.Credit(-10), ErrInvalidAmount)
	assert.ErrorIs(t, w.Debit(0), ErrInvalidAmount)
	assert.ErrorIs(t, w.Lock(-1), ErrInvalidAmount)
	assert.ErrorIs(t, w.Unlock(0), ErrInvalidAmount)
	assert.ErrorIs(t, w.ReleaseLocked(0), ErrInvalidAmount)
	assertBalances(t, w, 0, 0, 0)
}

func TestWallet_UnlockMoreThanLocked_Integrity(t *testing.T) {
	w := NewWallet(uuid.New())
	require.NoError(t, w.Credit(100))
	require.NoError(t, w.Lock(40))

	assert.ErrorIs(t, w.Unlock(50), ErrIntegrity)
	assert.ErrorIs(t, w.ReleaseLocked(50), ErrIntegrity)
	assertBalances(t, w, 100, 60, 40)
}

func TestWallet_InvariantHoldsAcrossSequence(t *testing.T) {
	// Для любой последовательности операций после каждой из них
	// total == free + locked и все поля неотрицательны.
	w := NewWallet(uuid.New())
	ops := []func() error{
		func() error { return w.Credit(1000) },
		func() error { return w.Lock(300) },
		func() error { return w.Unlock(100) },
		func() error { return w.Debit(200) },
		func() error { return w.Lock(500) },
		func() error { return w.ReleaseLocked(450) },
		func() error { return w.Credit(75.50) },
		func() error { return w.Unlock(250) },
	}
	for i, op := range ops {
		require.NoError(t, op(), "операция %d", i)
		require.NoError(t, w.Validate(), "инвариант после операции %d", i)
	}
}

func TestWallet_ValidateDetectsCorruption(t *testing.T) {
	w := NewWallet(uuid.New())
	require.NoError(t, w.Credit(100))

	w.LockedBalance = 40 // прямое повреждение в обход методов
	assert.ErrorIs(t, w.Validate(), ErrIntegrity)

	w.LockedBalance = 0
	w.FreeBalance = -1
	w.TotalBalance = -1
	assert.ErrorIs(t, w.Validate(), ErrIntegrity)
}

func TestUser_AnonDisplay(t *testing.T) {
	u := &User{ID: uuid.MustParse("a7f43e21-0b1c-4d5e-8f90-123456789abc"), Companies: []string{"acme", "globex"}}
	d := u.AnonDisplay()
	assert.Equal(t, 2, d.Experience)
	assert.Equal(t, "REF_9abc", d.AnonID)
}
