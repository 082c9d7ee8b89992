package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultClaimTTL — срок жизни маркера принятия. Должен с запасом превышать
// длительность шага подтверждения в БД, иначе легитимный победитель рискует
// потерять маркер до завершения побочных эффектов.
const DefaultClaimTTL = 10 * time.Second

// AcceptGuard — локальный для процесса арбитражный слой принятия запросов.
// Хранит короткоживущие маркеры по идентификатору запроса: из N конкурентных
// попыток принять один запрос маркер достаётся ровно одной, остальные
// отсекаются без похода в БД. Это оптимизация задержки, а не механизм
// корректности: источником истины служит условное обновление статуса
// в ReferralRepository.
type AcceptGuard struct {
	mu     sync.Mutex
	claims map[uuid.UUID]claim
	ttl    time.Duration
}

type claim struct {
	holderID  uuid.UUID
	expiresAt time.Time
}

// NewAcceptGuard создаёт арбитражный слой и запускает фоновую очистку
// просроченных маркеров.
func NewAcceptGuard(ttl time.Duration) *AcceptGuard {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	g := &AcceptGuard{
		claims: make(map[uuid.UUID]claim),
		ttl:    ttl,
	}
	go g.cleanup()
	return g
}

// TryClaim пытается захватить маркер по идентификатору запроса.
// Возвращает true, если маркер достался вызывающему. Просроченный маркер
// считается свободным — страховка на случай упавшего держателя.
func (g *AcceptGuard) TryClaim(referralID, holderID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if c, ok := g.claims[referralID]; ok && now.Before(c.expiresAt) {
		return c.holderID == holderID
	}

	g.claims[referralID] = claim{holderID: holderID, expiresAt: now.Add(g.ttl)}
	return true
}

// Release освобождает маркер. Освободить чужой маркер нельзя.
func (g *AcceptGuard) Release(referralID, holderID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.claims[referralID]; ok && c.holderID == holderID {
		delete(g.claims, referralID)
	}
}

// cleanup периодически убирает просроченные маркеры.
func (g *AcceptGuard) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		g.mu.Lock()
		now := time.Now()
		for id, c := range g.claims {
			if now.After(c.expiresAt) {
				delete(g.claims, id)
			}
		}
		g.mu.Unlock()
	}
}
