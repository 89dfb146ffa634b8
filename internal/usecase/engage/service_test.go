package engage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/usecase/governor"
	"x-agent-bot/internal/usecase/postqueue"
)

type stubSearcher struct {
	found []domain.Mention
	err   error
	calls int
}

func (s *stubSearcher) SearchRecent(_ context.Context, _ string, _ int) ([]domain.Mention, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.found, nil
}

type stubDedup struct {
	processed map[string]bool
}

func newStubDedup() *stubDedup { return &stubDedup{processed: map[string]bool{}} }

func (s *stubDedup) IsProcessed(_ context.Context, id string) (bool, error) {
	return s.processed[id], nil
}

func (s *stubDedup) MarkProcessed(_ context.Context, id string) error {
	s.processed[id] = true
	return nil
}

func (s *stubDedup) LastProcessedID(_ context.Context) (string, error) { return "", nil }

type stubGen struct {
	reply string
	calls int
}

func (s *stubGen) Generate(_ context.Context, _, _ string, _ int, _ float64) (string, error) {
	s.calls++
	return s.reply, nil
}

type nopPoster struct{}

func (nopPoster) Post(_ context.Context, _, _ string) (domain.PostResult, error) {
	return domain.PostResult{ID: "id"}, nil
}

func stoppedQueue() *postqueue.Queue {
	q := postqueue.New(nopPoster{}, nil, zerolog.Nop(), postqueue.Options{Sleep: func(time.Duration) {}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Bind(ctx)
	return q
}

func allowingGovernor() *governor.Governor {
	return governor.New(time.Minute, nil)
}

func blockedGovernor() *governor.Governor {
	g := governor.New(time.Hour, nil)
	g.MarkSent()
	return g
}

func TestRunEnqueuesReplyToFirstFreshCandidate(t *testing.T) {
	searcher := &stubSearcher{found: []domain.Mention{
		{ID: "seen", Author: "old"},
		{ID: "fresh", Author: "kol"},
	}}
	dedup := newStubDedup()
	dedup.processed["seen"] = true
	q := stoppedQueue()

	svc := NewService(searcher, dedup, &stubGen{reply: "witty"}, q, allowingGovernor(), zerolog.Nop())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if q.Stats().QueueSize != 1 {
		t.Fatalf("ожидали один ответ в очереди, получили %d", q.Stats().QueueSize)
	}
	if !dedup.processed["fresh"] {
		t.Fatalf("кандидат должен быть помечен обработанным")
	}
}

func TestRunSkipsWhenGovernorBlocks(t *testing.T) {
	searcher := &stubSearcher{found: []domain.Mention{{ID: "1", Author: "a"}}}
	svc := NewService(searcher, newStubDedup(), &stubGen{reply: "x"}, stoppedQueue(), blockedGovernor(), zerolog.Nop())

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if searcher.calls != 0 {
		t.Fatalf("при запрете поиска быть не должно")
	}
}

func TestRunTreatsSearchRateLimitAsSkip(t *testing.T) {
	searcher := &stubSearcher{err: &domain.ErrRateLimited{}}
	svc := NewService(searcher, newStubDedup(), &stubGen{reply: "x"}, stoppedQueue(), allowingGovernor(), zerolog.Nop())

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("429 на поиске должен пропускать цикл без ошибки: %v", err)
	}
}

func TestRunSkipsCandidatesWithoutAuthor(t *testing.T) {
	searcher := &stubSearcher{found: []domain.Mention{
		{ID: "1", Author: ""},
		{ID: "2", Author: "named"},
	}}
	gen := &stubGen{reply: "reply"}
	q := stoppedQueue()

	svc := NewService(searcher, newStubDedup(), gen, q, allowingGovernor(), zerolog.Nop())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("генерация должна идти только для кандидата с автором")
	}
	if q.Stats().QueueSize != 1 {
		t.Fatalf("ожидали один ответ в очереди")
	}
}
