package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAcceptGuard_SingleWinner(t *testing.T) {
	g := NewAcceptGuard(time.Second)
	referralID := uuid.New()

	first := uuid.New()
	second := uuid.New()

	assert.True(t, g.TryClaim(referralID, first))
	assert.False(t, g.TryClaim(referralID, second))
	// Повторная попытка держателя не теряет маркер
	assert.True(t, g.TryClaim(referralID, first))
}

func TestAcceptGuard_ReleaseFreesClaim(t *testing.T) {
	g := NewAcceptGuard(time.Second)
	referralID := uuid.New()
	first := uuid.New()
	second := uuid.New()

	assert.True(t, g.TryClaim(referralID, first))

	// Чужой Release не освобождает маркер
	g.Release(referralID, second)
	assert.False(t, g.TryClaim(referralID, second))

	g.Release(referralID, first)
	assert.True(t, g.TryClaim(referralID, second))
}

func TestAcceptGuard_ExpiredClaimIsFree(t *testing.T) {
	g := NewAcceptGuard(20 * time.Millisecond)
	referralID := uuid.New()

	assert.True(t, g.TryClaim(referralID, uuid.New()))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, g.TryClaim(referralID, uuid.New()))
}

func TestAcceptGuard_ConcurrentClaims(t *testing.T) {
	g := NewAcceptGuard(time.Second)
	referralID := uuid.New()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryClaim(referralID, uuid.New()) {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestAcceptGuard_IndependentReferrals(t *testing.T) {
	g := NewAcceptGuard(time.Second)
	holder := uuid.New()

	assert.True(t, g.TryClaim(uuid.New(), holder))
	assert.True(t, g.TryClaim(uuid.New(), holder))
}
