// Package governor реализует глобальный интервал между исходящими постами.
// Независимые периодические задачи не знают друг о друге, поэтому единственный
// общий таймштамп — то, что не даёт двум задачам запостить в одну минуту.
package governor

import (
	"sync"
	"time"

	"x-agent-bot/internal/domain"
)

// DefaultMinGap — минимальный промежуток между любыми двумя постами.
const DefaultMinGap = 3 * time.Minute

// Governor хранит время последнего поста процесса. Один экземпляр
// передаётся каждому продюсеру при сборке.
type Governor struct {
	mu       sync.Mutex
	lastSent time.Time
	minGap   time.Duration
	clock    domain.Clock
}

// New создаёт Governor. Нулевое lastSent означает, что первый пост разрешён.
func New(minGap time.Duration, clock domain.Clock) *Governor {
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Governor{minGap: minGap, clock: clock}
}

// Allow сообщает, прошло ли достаточно времени с последнего поста.
func (g *Governor) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clock.Now().Sub(g.lastSent) >= g.minGap
}

// MarkSent фиксирует «сейчас» как время последнего поста. Каждый продюсер
// обязан вызывать его сразу после успешной отправки.
func (g *Governor) MarkSent() {
	g.mu.Lock()
	g.lastSent = g.clock.Now()
	g.mu.Unlock()
}

// Restore подставляет сохранённое время последнего поста (после перезапуска).
func (g *Governor) Restore(lastSent time.Time) {
	g.mu.Lock()
	g.lastSent = lastSent
	g.mu.Unlock()
}

// Wait возвращает, сколько осталось ждать до следующего разрешённого поста.
// Ноль тогда и только тогда, когда Allow() истинно.
func (g *Governor) Wait() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := g.minGap - g.clock.Now().Sub(g.lastSent)
	if remaining < 0 {
		return 0
	}
	return remaining
}
