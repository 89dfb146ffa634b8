// Package scheduler владеет реестром именованных периодических задач.
// Логика «сколько прошло с последнего запуска» централизована здесь один раз:
// каждая задача сохраняет метку запуска в durable KV и после перезапуска
// процесса не срабатывает раньше своего интервала.
package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"x-agent-bot/internal/domain"
)

const lastRunKeyPrefix = "last_run:"

// Task — периодическая задача.
type Task struct {
	Name string
	// Every — интервал между запусками.
	Every time.Duration
	// InitialDelay — пауза перед первым запуском, когда прошлых запусков
	// не было или они старше интервала.
	InitialDelay time.Duration
	Run          func(ctx context.Context)
}

// Scheduler запускает задачи по расписанию.
type Scheduler struct {
	stats domain.StatRepo
	clock domain.Clock
	log   zerolog.Logger

	mu    sync.Mutex
	tasks []Task
}

// New создаёт планировщик.
func New(stats domain.StatRepo, clock domain.Clock, logger zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Scheduler{stats: stats, clock: clock, log: logger}
}

// Register добавляет задачу в реестр. Задачи с недоступными зависимостями
// сюда просто не попадают: об этом решает сборка процесса.
func (s *Scheduler) Register(task Task) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	s.log.Info().Str("task", task.Name).Dur("every", task.Every).Msg("scheduler: задача зарегистрирована")
}

// StartDelay вычисляет паузу перед первым запуском задачи с учётом
// сохранённой метки прошлого запуска. Если последний запуск свежее
// интервала, задача ждёт остаток; иначе действует InitialDelay.
func (s *Scheduler) StartDelay(ctx context.Context, task Task) time.Duration {
	raw, err := s.stats.GetStat(ctx, lastRunKeyPrefix+task.Name)
	if err != nil || raw == "" {
		return task.InitialDelay
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return task.InitialDelay
	}
	elapsed := s.clock.Now().Sub(time.UnixMilli(millis))
	if elapsed < 0 {
		return task.Every
	}
	if elapsed < task.Every {
		return task.Every - elapsed
	}
	return task.InitialDelay
}

// Start запускает все зарегистрированные задачи и блокируется до отмены
// контекста. Каждая задача живёт в своём цикле; общего порядка между
// задачами нет — за «один голос за раз» отвечает governor.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	tasks := make([]Task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			s.runLoop(ctx, task)
		}(task)
	}
	wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, task Task) {
	delay := s.StartDelay(ctx, task)
	if delay > 0 {
		s.log.Info().Str("task", task.Name).Dur("delay", delay).Msg("scheduler: ожидание первого запуска")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	s.runOnce(ctx, task)
	ticker := time.NewTicker(task.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, task)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, task Task) {
	runID := uuid.NewString()
	logger := s.log.With().Str("task", task.Name).Str("run_id", runID).Logger()
	logger.Debug().Msg("scheduler: запуск задачи")

	start := s.clock.Now()
	task.Run(ctx)

	if err := s.stats.SetStat(ctx, lastRunKeyPrefix+task.Name, strconv.FormatInt(start.UnixMilli(), 10)); err != nil {
		logger.Error().Err(err).Msg("scheduler: не удалось сохранить метку запуска")
	}
	logger.Debug().Dur("took", s.clock.Now().Sub(start)).Msg("scheduler: задача завершена")
}
