// Package analytics замыкает цикл обратной связи: что было отправлено и как
// оно сработало. Проверка метрик отложена, чтобы не тормозить путь отправки,
// и выполняется ровно один раз на пост.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
)

const (
	// DefaultCheckDelay — возраст поста, после которого метрики имеют смысл.
	DefaultCheckDelay = 30 * time.Minute
	// DefaultFetchPause — пауза между запросами метрик (лимиты самого API).
	DefaultFetchPause = 1500 * time.Millisecond
)

// Options настраивают сервис. Нулевые поля получают значения по умолчанию.
type Options struct {
	CheckDelay time.Duration
	FetchPause time.Duration
	Clock      domain.Clock
	Sleep      func(time.Duration)
}

// Service ведёт набор постов, ожидающих оценки, и сохраняет результаты.
// Ожидающие посты дублируются в durable-хранилище, чтобы пережить перезапуск.
type Service struct {
	mu      sync.Mutex
	pending []domain.TrackedPost

	fetcher domain.MetricsFetcher
	perf    domain.PerformanceRepo
	tracked domain.TrackedPostRepo

	checkDelay time.Duration
	fetchPause time.Duration
	clock      domain.Clock
	sleep      func(time.Duration)
	log        zerolog.Logger
}

// NewService создаёт сервис аналитики.
func NewService(fetcher domain.MetricsFetcher, perf domain.PerformanceRepo, tracked domain.TrackedPostRepo, logger zerolog.Logger, opts Options) *Service {
	if opts.CheckDelay <= 0 {
		opts.CheckDelay = DefaultCheckDelay
	}
	if opts.FetchPause <= 0 {
		opts.FetchPause = DefaultFetchPause
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock()
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Service{
		fetcher:    fetcher,
		perf:       perf,
		tracked:    tracked,
		checkDelay: opts.CheckDelay,
		fetchPause: opts.FetchPause,
		clock:      opts.Clock,
		sleep:      opts.Sleep,
		log:        logger,
	}
}

// Restore загружает ожидающие оценки посты из хранилища после перезапуска.
func (s *Service) Restore(ctx context.Context) error {
	items, err := s.tracked.ListTracked(ctx)
	if err != nil {
		return fmt.Errorf("загрузка отложенных оценок: %w", err)
	}
	s.mu.Lock()
	s.pending = items
	s.mu.Unlock()
	if len(items) > 0 {
		s.log.Info().Int("count", len(items)).Msg("analytics: восстановлены отложенные оценки")
	}
	return nil
}

// Track регистрирует отправленный пост для отложенной оценки. Дубликаты
// externalId допустимы: запись результата идёт через upsert по тому же ключу.
func (s *Service) Track(ctx context.Context, post domain.TrackedPost) {
	if post.ExternalID == "" {
		return
	}
	if post.PostedAt.IsZero() {
		post.PostedAt = s.clock.Now()
	}
	post.Text = clipRunes(post.Text, 200)
	s.mu.Lock()
	s.pending = append(s.pending, post)
	s.mu.Unlock()
	if err := s.tracked.SaveTracked(ctx, post); err != nil {
		s.log.Error().Err(err).Str("id", post.ExternalID).Msg("analytics: не удалось сохранить отложенную оценку")
	}
	s.log.Debug().Str("id", post.ExternalID).Str("kind", string(post.Kind)).Msg("analytics: пост поставлен на оценку")
}

// Score — детерминированная функция вовлечённости. Репост разносит пост
// по чужим лентам и стоит втрое дороже лайка, ответ поддерживает разговор
// и стоит вдвое. Показы в счёт не идут.
func Score(m domain.PostMetrics) float64 {
	return float64(m.Likes + 3*m.Reposts + 2*m.Replies)
}

// Tick обрабатывает посты, чей возраст пересёк порог оценки. Метрики
// запрашиваются последовательно с паузой; недоступные метрики — потеря
// одного замера, не ошибка, повторных попыток нет.
func (s *Service) Tick(ctx context.Context) {
	now := s.clock.Now()
	ready := make([]domain.TrackedPost, 0)
	s.mu.Lock()
	remaining := s.pending[:0]
	for _, item := range s.pending {
		if now.Sub(item.PostedAt) >= s.checkDelay {
			ready = append(ready, item)
		} else {
			remaining = append(remaining, item)
		}
	}
	s.pending = remaining
	s.mu.Unlock()
	if len(ready) == 0 {
		return
	}

	s.log.Info().Int("count", len(ready)).Msg("analytics: проверяем метрики постов")
	for i, item := range ready {
		if ctx.Err() != nil {
			// Непроверенный хвост возвращается в очередь: посты не должны
			// ждать перезапуска процесса ради одного прерванного тика.
			s.mu.Lock()
			s.pending = append(s.pending, ready[i:]...)
			s.mu.Unlock()
			return
		}
		s.sleep(s.fetchPause)

		m, err := s.fetcher.PostMetrics(ctx, item.ExternalID)
		if err != nil || m == nil {
			if err != nil {
				s.log.Warn().Err(err).Str("id", item.ExternalID).Msg("analytics: метрики недоступны")
			}
			metrics.EvaluationsLost.Inc()
			s.discard(ctx, item.ExternalID)
			continue
		}

		perf := domain.PostPerformance{
			ExternalID:      item.ExternalID,
			Kind:            item.Kind,
			Text:            item.Text,
			TargetUsername:  item.TargetUsername,
			TargetFollowers: item.TargetFollowers,
			PostedAt:        item.PostedAt,
			CheckedAt:       now,
			Metrics:         *m,
			Score:           Score(*m),
		}
		if err := s.perf.UpsertPerformance(ctx, perf); err != nil {
			s.log.Error().Err(err).Str("id", item.ExternalID).Msg("analytics: не удалось сохранить результат")
			s.discard(ctx, item.ExternalID)
			continue
		}
		metrics.EvaluationsDone.Inc()
		s.discard(ctx, item.ExternalID)

		if perf.Score > 5 {
			s.log.Info().
				Str("kind", string(item.Kind)).
				Float64("score", perf.Score).
				Int("likes", m.Likes).
				Int("reposts", m.Reposts).
				Int("replies", m.Replies).
				Msg("analytics: пост зашёл")
		}
	}
}

func (s *Service) discard(ctx context.Context, externalID string) {
	if err := s.tracked.DeleteTracked(ctx, externalID); err != nil {
		s.log.Error().Err(err).Str("id", externalID).Msg("analytics: не удалось снять пост с оценки")
	}
}

// PendingCount возвращает число постов, ожидающих оценки.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// TopPerformers возвращает лучшие посты, опционально по типу.
func (s *Service) TopPerformers(ctx context.Context, kind domain.PostKind, limit int) ([]domain.PostPerformance, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.perf.TopPerformers(ctx, kind, limit)
}

// Breakdown возвращает агрегаты по типам постов.
func (s *Service) Breakdown(ctx context.Context) ([]domain.KindBreakdown, error) {
	return s.perf.KindBreakdown(ctx)
}

// Report строит текстовый отчёт по результатам.
func (s *Service) Report(ctx context.Context) (string, error) {
	breakdown, err := s.Breakdown(ctx)
	if err != nil {
		return "", fmt.Errorf("агрегаты по типам: %w", err)
	}
	top, err := s.TopPerformers(ctx, "", 10)
	if err != nil {
		return "", fmt.Errorf("лучшие посты: %w", err)
	}

	var b strings.Builder
	b.WriteString("ОТЧЁТ ПО ПОСТАМ\n\n")
	if len(breakdown) > 0 {
		b.WriteString("ПО ТИПАМ:\n")
		for _, row := range breakdown {
			fmt.Fprintf(&b, "  %s: %d постов, средний балл %.1f, лучший %.0f, лайков %d, репостов %d\n",
				row.Kind, row.Count, row.AvgScore, row.BestScore, row.TotalLikes, row.TotalReposts)
		}
		b.WriteString("\n")
	}
	if len(top) > 0 {
		b.WriteString("ЛУЧШИЕ:\n")
		for _, t := range top {
			text := clipRunes(t.Text, 80)
			fmt.Fprintf(&b, "  [%s] балл %.0f | %d лайков %d репостов %d ответов | %q\n",
				t.Kind, t.Score, t.Metrics.Likes, t.Metrics.Reposts, t.Metrics.Replies, text)
		}
	}
	return b.String(), nil
}

func clipRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
