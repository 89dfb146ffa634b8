// Package postqueue реализует ограниченную очередь исходящих постов с
// приоритетами. Очередь держит собственное скользящее окно отправок (сверх
// глобального интервала governor) и единственную политику retry/backoff:
// задачи, которым нужен повтор с ожиданием, идут через очередь, а не
// изобретают свои циклы sleep/retry.
package postqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
)

const (
	// DefaultCapacity — вместимость очереди; дальше вытесняется низший приоритет.
	DefaultCapacity = 50
	// DefaultWindow — ширина скользящего окна отправок.
	DefaultWindow = 15 * time.Minute
	// DefaultWindowQuota — максимум отправок внутри окна (базовый тариф X API).
	DefaultWindowQuota = 17
	// DefaultCooldown — пауза между соседними отправками (~17 за 15 минут).
	DefaultCooldown = 55 * time.Second
	// DefaultStaleAfter — возраст, после которого пост отправлять поздно.
	DefaultStaleAfter = 30 * time.Minute
	// minRateLimitSleep — нижняя граница ожидания после 429.
	minRateLimitSleep = 10 * time.Second
)

// Stats — моментальный снимок счётчиков очереди.
type Stats struct {
	Posted    int `json:"ok"`
	Failed    int `json:"fail"`
	Dropped   int `json:"dropped"`
	QueueSize int `json:"queue_size"`
}

// Options настраивают очередь. Нулевые поля получают значения по умолчанию.
type Options struct {
	Capacity    int
	Window      time.Duration
	WindowQuota int
	Cooldown    time.Duration
	StaleAfter  time.Duration
	Clock       domain.Clock
	// Sleep подменяется в тестах, чтобы не ждать реального времени.
	Sleep func(time.Duration)
}

// Queue — ограниченная очередь с приоритетным порядком и единственным
// drain-циклом. Enqueue никогда не возвращает ошибку: переполнение решается
// вытеснением, а не отказом вызывающему.
type Queue struct {
	mu      sync.Mutex
	items   []domain.PendingReply
	posting bool
	stamps  []time.Time
	stats   Stats

	poster   domain.Poster
	onPosted func(externalID string, item domain.PendingReply)

	capacity    int
	window      time.Duration
	windowQuota int
	cooldown    time.Duration
	staleAfter  time.Duration

	clock domain.Clock
	sleep func(time.Duration)
	ctx   context.Context
	log   zerolog.Logger
}

// New создаёт очередь. onPosted вызывается после каждой успешной отправки
// (запись в журнал, регистрация на отложенную оценку); может быть nil.
func New(poster domain.Poster, onPosted func(string, domain.PendingReply), logger zerolog.Logger, opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.WindowQuota <= 0 {
		opts.WindowQuota = DefaultWindowQuota
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock()
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Queue{
		poster:      poster,
		onPosted:    onPosted,
		capacity:    opts.Capacity,
		window:      opts.Window,
		windowQuota: opts.WindowQuota,
		cooldown:    opts.Cooldown,
		staleAfter:  opts.StaleAfter,
		clock:       opts.Clock,
		sleep:       opts.Sleep,
		ctx:         context.Background(),
		log:         logger,
	}
}

// Bind привязывает очередь к контексту процесса: после его отмены drain-цикл
// останавливается на ближайшей границе элемента. Если к моменту привязки в
// очереди уже есть элементы, а цикл простаивает, он запускается.
func (q *Queue) Bind(ctx context.Context) {
	q.mu.Lock()
	q.ctx = ctx
	start := len(q.items) > 0 && !q.posting && ctx.Err() == nil
	if start {
		q.posting = true
	}
	q.mu.Unlock()
	if start {
		go q.drain()
	}
}

// Enqueue ставит пост в очередь. При переполнении вытесняется элемент с
// наименьшим приоритетом (полной сортировкой, не FIFO). Если drain-цикл
// простаивает, он запускается.
func (q *Queue) Enqueue(item domain.PendingReply) {
	if item.Priority <= 0 {
		item.Priority = 1
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = q.clock.Now()
	}

	q.mu.Lock()
	if len(q.items) >= q.capacity {
		sortByPriority(q.items)
		dropped := q.items[len(q.items)-1]
		q.items = q.items[:len(q.items)-1]
		q.stats.Dropped++
		metrics.QueueDropped.Inc()
		q.log.Warn().Str("author", dropped.Author).Msg("queue: очередь полна, вытеснен пост с низшим приоритетом")
	}
	q.items = append(q.items, item)
	sortByPriority(q.items)
	metrics.QueueDepth.Set(float64(len(q.items)))
	start := !q.posting
	if start {
		q.posting = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// PriorityFor подбирает приоритет ответа по числу прошлых взаимодействий.
func PriorityFor(interactionCount int) int {
	switch {
	case interactionCount > 5:
		return 3
	case interactionCount > 1:
		return 2
	default:
		return 1
	}
}

// Stats возвращает снимок счётчиков.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	snapshot := q.stats
	snapshot.QueueSize = len(q.items)
	return snapshot
}

// drain — единственный цикл отправки; никогда не запускается дважды
// одновременно (флаг posting под мьютексом).
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 || q.ctx.Err() != nil {
			q.posting = false
			metrics.QueueDepth.Set(float64(len(q.items)))
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		metrics.QueueDepth.Set(float64(len(q.items)))
		ctx := q.ctx
		q.mu.Unlock()

		now := q.clock.Now()
		if now.Sub(item.EnqueuedAt) > q.staleAfter {
			q.mu.Lock()
			q.stats.Dropped++
			q.mu.Unlock()
			metrics.QueueDropped.Inc()
			q.log.Warn().
				Str("author", item.Author).
				Dur("age", now.Sub(item.EnqueuedAt)).
				Msg("queue: пост устарел, отправка отменена")
			continue
		}

		if wait := q.windowWait(now); wait > 0 {
			q.log.Info().Dur("wait", wait).Msg("queue: окно отправок исчерпано, ждём")
			q.sleep(wait)
		}

		result, err := q.poster.Post(ctx, item.Text, item.ReplyToID)
		switch {
		case err == nil:
			q.mu.Lock()
			q.stats.Posted++
			q.stamps = append(q.stamps, q.clock.Now())
			q.mu.Unlock()
			metrics.QueuePosted.Inc()
			if q.onPosted != nil {
				q.onPosted(result.ID, item)
			}
			q.log.Info().Str("id", result.ID).Str("kind", string(item.Kind)).Msg("queue: пост отправлен")
			q.sleep(q.cooldown)
		default:
			if rl, ok := domain.AsRateLimited(err); ok {
				// Возвращаем элемент в голову: после паузы он уйдёт первым.
				q.mu.Lock()
				q.items = append([]domain.PendingReply{item}, q.items...)
				metrics.QueueDepth.Set(float64(len(q.items)))
				q.mu.Unlock()
				pause := time.Minute
				if !rl.Reset.IsZero() {
					pause = rl.Reset.Sub(q.clock.Now()) + 2*time.Second
				}
				if pause < minRateLimitSleep {
					pause = minRateLimitSleep
				}
				q.log.Warn().Dur("pause", pause).Msg("queue: 429 от платформы, пауза")
				q.sleep(pause)
				continue
			}
			q.mu.Lock()
			q.stats.Failed++
			q.mu.Unlock()
			metrics.QueueFailed.Inc()
			q.log.Error().Err(err).Str("author", item.Author).Msg("queue: отправка не удалась")
		}
	}
}

// windowWait возвращает, сколько ждать до освобождения скользящего окна.
func (q *Queue) windowWait(now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.stamps[:0]
	for _, t := range q.stamps {
		if now.Sub(t) < q.window {
			kept = append(kept, t)
		}
	}
	q.stamps = kept
	if len(q.stamps) < q.windowQuota {
		return 0
	}
	oldest := q.stamps[0]
	return oldest.Add(q.window).Sub(now) + time.Second
}

// sortByPriority упорядочивает по убыванию приоритета, сохраняя порядок
// вставки среди равных.
func sortByPriority(items []domain.PendingReply) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority > items[j].Priority
	})
}
