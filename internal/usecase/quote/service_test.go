package quote

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/usecase/governor"
	"x-agent-bot/internal/usecase/postqueue"
)

type stubSearcher struct {
	found []domain.Mention
}

func (s *stubSearcher) SearchRecent(_ context.Context, _ string, _ int) ([]domain.Mention, error) {
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
	err   error
	seen  []string
}

func (s *stubGen) Generate(_ context.Context, prompt, _ string, _ int, _ float64) (string, error) {
	s.seen = append(s.seen, prompt)
	return s.reply, s.err
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

func TestRunQuotesMostLikedCandidate(t *testing.T) {
	searcher := &stubSearcher{found: []domain.Mention{
		{ID: "1", Author: "kol", Text: "the market is doing the market things again", Likes: 5},
		{ID: "2", Author: "kol", Text: "everyone is wrong about this cycle and here is why", Likes: 40},
		{ID: "3", Author: "kol", Text: "gm", Likes: 100},
	}}
	dedup := newStubDedup()
	gen := &stubGen{reply: "жму лайк из окопа"}
	q := stoppedQueue()

	svc := NewService(searcher, dedup, gen, q, governor.New(time.Minute, nil), zerolog.Nop())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// Короткий "gm" отсеян, из оставшихся побеждает более залайканный.
	if !dedup.processed["2"] {
		t.Fatalf("цитируемый пост должен помечаться: %v", dedup.processed)
	}
	if dedup.processed["1"] || dedup.processed["3"] {
		t.Fatalf("остальные кандидаты не должны помечаться: %v", dedup.processed)
	}
	if q.Stats().QueueSize != 1 {
		t.Fatalf("цитата должна попасть в очередь")
	}
}

func TestRunSkipsAlreadyQuoted(t *testing.T) {
	searcher := &stubSearcher{found: []domain.Mention{
		{ID: "1", Author: "kol", Text: "a perfectly reasonable take on perps", Likes: 50},
	}}
	dedup := newStubDedup()
	dedup.processed["1"] = true
	q := stoppedQueue()

	svc := NewService(searcher, dedup, &stubGen{reply: "x"}, q, governor.New(time.Minute, nil), zerolog.Nop())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if q.Stats().QueueSize != 0 {
		t.Fatalf("повторная цитата не должна ставиться в очередь")
	}
}

func TestRunIgnoresLowEngagementAndRetweets(t *testing.T) {
	searcher := &stubSearcher{found: []domain.Mention{
		{ID: "1", Author: "kol", Text: "barely anyone saw this but it is long enough", Likes: 1},
		{ID: "2", Author: "kol", Text: "RT someone else already said this better", Likes: 90},
	}}
	q := stoppedQueue()

	svc := NewService(searcher, newStubDedup(), &stubGen{reply: "x"}, q, governor.New(time.Minute, nil), zerolog.Nop())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if q.Stats().QueueSize != 0 {
		t.Fatalf("слабые кандидаты и репосты не цитируются")
	}
}

func TestRunSkipsWhenGovernorBlocks(t *testing.T) {
	searcher := &stubSearcher{found: []domain.Mention{
		{ID: "1", Author: "kol", Text: "a take worth quoting any day of the week", Likes: 30},
	}}
	gov := governor.New(time.Hour, nil)
	gov.MarkSent()
	q := stoppedQueue()

	svc := NewService(searcher, newStubDedup(), &stubGen{reply: "x"}, q, gov, zerolog.Nop())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if q.Stats().QueueSize != 0 {
		t.Fatalf("при недавнем посте цикл пропускается")
	}
}

func TestGenerateTakeFallsBackOnModelFailure(t *testing.T) {
	target := domain.Mention{ID: "1", Author: "kol", Text: "model is down again somewhere"}
	svc := NewService(&stubSearcher{}, newStubDedup(), &stubGen{err: context.DeadlineExceeded}, stoppedQueue(), governor.New(time.Minute, nil), zerolog.Nop())

	take := svc.generateTake(context.Background(), target)
	if take == "" {
		t.Fatalf("при сбое модели должна браться запасная реплика")
	}
}

func TestQuoteTextEndsWithTargetLink(t *testing.T) {
	searcher := &stubSearcher{found: []domain.Mention{
		{ID: "777", Author: "kol", Text: "quoting this should append the link", Likes: 25},
	}}
	var mu sync.Mutex
	var posted []domain.PendingReply
	q := postqueue.New(nopPoster{}, func(_ string, item domain.PendingReply) {
		mu.Lock()
		posted = append(posted, item)
		mu.Unlock()
	}, zerolog.Nop(), postqueue.Options{Sleep: func(time.Duration) {}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Bind(ctx)

	svc := NewService(searcher, newStubDedup(), &stubGen{reply: "верная мысль"}, q, governor.New(time.Minute, nil), zerolog.Nop())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	q.Bind(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(posted)
		mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("не дождались отправки цитаты: %+v", q.Stats())
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	item := posted[0]
	mu.Unlock()
	if !strings.HasSuffix(item.Text, "https://x.com/kol/status/777") {
		t.Fatalf("цитата должна завершаться ссылкой на пост: %q", item.Text)
	}
	if item.Kind != domain.PostKindQuote {
		t.Fatalf("цитата должна иметь тип quote, получили %q", item.Kind)
	}
}
