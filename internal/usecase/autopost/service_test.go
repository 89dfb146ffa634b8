package autopost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/adapters/generator"
	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/usecase/analytics"
	"x-agent-bot/internal/usecase/governor"
)

type stubPoster struct {
	sent []string
	err  error
}

func (s *stubPoster) Post(_ context.Context, text, _ string) (domain.PostResult, error) {
	if s.err != nil {
		return domain.PostResult{}, s.err
	}
	s.sent = append(s.sent, text)
	return domain.PostResult{ID: "post-1"}, nil
}

type stubGen struct {
	reply string
	err   error
	calls int
}

func (s *stubGen) Generate(_ context.Context, _, _ string, _ int, _ float64) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type stubStats struct {
	values map[string]string
}

func newStubStats() *stubStats { return &stubStats{values: map[string]string{}} }

func (s *stubStats) SetStat(_ context.Context, key, value string) error {
	s.values[key] = value
	return nil
}

func (s *stubStats) GetStat(_ context.Context, key string) (string, error) {
	return s.values[key], nil
}

type stubPostLog struct {
	items []domain.PostedItem
}

func (s *stubPostLog) RecordPost(_ context.Context, item domain.PostedItem) error {
	s.items = append(s.items, item)
	return nil
}

type stubPerfRepo struct{}

func (stubPerfRepo) UpsertPerformance(context.Context, domain.PostPerformance) error { return nil }
func (stubPerfRepo) TopPerformers(context.Context, domain.PostKind, int) ([]domain.PostPerformance, error) {
	return nil, nil
}
func (stubPerfRepo) KindBreakdown(context.Context) ([]domain.KindBreakdown, error) { return nil, nil }

type stubTrackedRepo struct {
	saved []domain.TrackedPost
}

func (s *stubTrackedRepo) SaveTracked(_ context.Context, post domain.TrackedPost) error {
	s.saved = append(s.saved, post)
	return nil
}
func (s *stubTrackedRepo) DeleteTracked(context.Context, string) error { return nil }
func (s *stubTrackedRepo) ListTracked(context.Context) ([]domain.TrackedPost, error) {
	return nil, nil
}

type nilFetcher struct{}

func (nilFetcher) PostMetrics(context.Context, string) (*domain.PostMetrics, error) {
	return nil, nil
}

func newTestService(poster *stubPoster, gen *stubGen, postLog *stubPostLog, tracked *stubTrackedRepo, gov *governor.Governor) *Service {
	clock := domain.ClockFunc(func() time.Time { return time.Unix(1700000000, 0) })
	analyticsSvc := analytics.NewService(nilFetcher{}, stubPerfRepo{}, tracked, zerolog.Nop(), analytics.Options{Clock: clock})
	templates := generator.NewTemplates(newStubStats(), 1, zerolog.Nop())
	return NewService(poster, gen, templates, analyticsSvc, postLog, newStubStats(), gov, clock, zerolog.Nop())
}

func TestRunSkipsWhenGovernorBlocks(t *testing.T) {
	poster := &stubPoster{}
	gov := governor.New(time.Hour, nil)
	gov.MarkSent()
	svc := newTestService(poster, &stubGen{reply: "banger"}, &stubPostLog{}, &stubTrackedRepo{}, gov)

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(poster.sent) != 0 {
		t.Fatalf("при запрете отправок быть не должно: %v", poster.sent)
	}
}

func TestRunPostsRecordsAndTracks(t *testing.T) {
	poster := &stubPoster{}
	postLog := &stubPostLog{}
	tracked := &stubTrackedRepo{}
	gov := governor.New(time.Minute, nil)
	svc := newTestService(poster, &stubGen{reply: "fresh banger from the trenches"}, postLog, tracked, gov)

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(poster.sent) != 1 {
		t.Fatalf("ожидали одну отправку, получили %v", poster.sent)
	}
	if len(postLog.items) != 1 || postLog.items[0].Kind != domain.PostKindAutopost {
		t.Fatalf("пост должен попасть в журнал: %+v", postLog.items)
	}
	if len(tracked.saved) != 1 || tracked.saved[0].ExternalID != "post-1" {
		t.Fatalf("пост должен встать на отложенную оценку: %+v", tracked.saved)
	}
	if gov.Allow() {
		t.Fatalf("после отправки интервал должен быть занят")
	}
}

func TestRunFallsBackToTemplateOnGeneratorFailure(t *testing.T) {
	poster := &stubPoster{}
	gen := &stubGen{err: errors.New("llm down")}
	svc := newTestService(poster, gen, &stubPostLog{}, &stubTrackedRepo{}, governor.New(time.Minute, nil))

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(poster.sent) != 1 || poster.sent[0] == "" {
		t.Fatalf("при отказе модели должен уйти шаблон: %v", poster.sent)
	}
}

func TestRunShortGenerationRejected(t *testing.T) {
	poster := &stubPoster{}
	gen := &stubGen{reply: "gm"}
	svc := newTestService(poster, gen, &stubPostLog{}, &stubTrackedRepo{}, governor.New(time.Minute, nil))

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(poster.sent) != 1 || len(poster.sent[0]) <= minPostLen {
		t.Fatalf("слишком короткая генерация должна заменяться шаблоном: %v", poster.sent)
	}
}

func TestRunPostFailureReturnsError(t *testing.T) {
	poster := &stubPoster{err: errors.New("api down")}
	svc := newTestService(poster, &stubGen{reply: "doomed banger text here"}, &stubPostLog{}, &stubTrackedRepo{}, governor.New(time.Minute, nil))

	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("ошибка публикации должна подниматься наверх")
	}
}
