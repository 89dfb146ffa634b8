package postqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/domain"
)

type stubPoster struct {
	mu    sync.Mutex
	sent  []domain.PendingReply
	errs  []error
	calls int
}

func (s *stubPoster) Post(_ context.Context, text, replyToID string) (domain.PostResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return domain.PostResult{}, err
		}
	}
	s.sent = append(s.sent, domain.PendingReply{Text: text, ReplyToID: replyToID})
	return domain.PostResult{ID: "id-" + text}, nil
}

func (s *stubPoster) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, item := range s.sent {
		out = append(out, item.Text)
	}
	return out
}

func testOptions(clock domain.Clock) Options {
	return Options{
		Clock: clock,
		Sleep: func(time.Duration) {},
	}
}

func waitStats(t *testing.T, q *Queue, check func(Stats) bool) Stats {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stats := q.Stats()
		if check(stats) {
			return stats
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("не дождались нужного состояния очереди: %+v", q.Stats())
	return Stats{}
}

func TestDrainOrderByPriority(t *testing.T) {
	poster := &stubPoster{}
	q := New(poster, nil, zerolog.Nop(), testOptions(nil))

	stopped, cancel := context.WithCancel(context.Background())
	cancel()
	q.Bind(stopped)

	for i, pr := range []int{1, 3, 2, 3, 1} {
		q.Enqueue(domain.PendingReply{Text: string(rune('a' + i)), Priority: pr})
	}

	q.Bind(context.Background())
	waitStats(t, q, func(s Stats) bool { return s.Posted == 5 })

	got := poster.sentTexts()
	expected := []string{"b", "d", "c", "a", "e"}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("ожидали порядок %v, получили %v", expected, got)
		}
	}
}

func TestEnqueueEvictsLowestPriorityWhenFull(t *testing.T) {
	poster := &stubPoster{}
	q := New(poster, nil, zerolog.Nop(), Options{
		Capacity: 3,
		Clock:    nil,
		Sleep:    func(time.Duration) {},
	})
	stopped, cancel := context.WithCancel(context.Background())
	cancel()
	q.Bind(stopped)

	q.Enqueue(domain.PendingReply{Text: "low", Priority: 1})
	q.Enqueue(domain.PendingReply{Text: "mid", Priority: 2})
	q.Enqueue(domain.PendingReply{Text: "high", Priority: 3})
	q.Enqueue(domain.PendingReply{Text: "newcomer", Priority: 2})

	stats := q.Stats()
	if stats.Dropped != 1 {
		t.Fatalf("ожидали 1 вытеснение, получили %d", stats.Dropped)
	}
	if stats.QueueSize != 3 {
		t.Fatalf("ожидали размер 3, получили %d", stats.QueueSize)
	}

	q.Bind(context.Background())
	waitStats(t, q, func(s Stats) bool { return s.Posted == 3 })
	for _, text := range poster.sentTexts() {
		if text == "low" {
			t.Fatalf("пост с низшим приоритетом должен был быть вытеснен")
		}
	}
}

func TestDrainDropsStaleItems(t *testing.T) {
	now := time.Now()
	clock := domain.ClockFunc(func() time.Time { return now })
	poster := &stubPoster{}
	q := New(poster, nil, zerolog.Nop(), testOptions(clock))

	stopped, cancel := context.WithCancel(context.Background())
	cancel()
	q.Bind(stopped)
	q.Enqueue(domain.PendingReply{Text: "old", EnqueuedAt: now.Add(-31 * time.Minute)})
	q.Enqueue(domain.PendingReply{Text: "fresh"})

	q.Bind(context.Background())
	stats := waitStats(t, q, func(s Stats) bool { return s.Posted+s.Dropped == 2 })

	if stats.Posted != 1 || stats.Dropped != 1 {
		t.Fatalf("ожидали 1 отправку и 1 сброс, получили %+v", stats)
	}
	if got := poster.sentTexts(); len(got) != 1 || got[0] != "fresh" {
		t.Fatalf("ожидали отправку только свежего поста, получили %v", got)
	}
}

func TestRateLimitedItemReturnsToFront(t *testing.T) {
	now := time.Now()
	clock := domain.ClockFunc(func() time.Time { return now })
	poster := &stubPoster{errs: []error{&domain.ErrRateLimited{Reset: now.Add(30 * time.Second)}}}

	var slept []time.Duration
	var mu sync.Mutex
	q := New(poster, nil, zerolog.Nop(), Options{
		Clock: clock,
		Sleep: func(d time.Duration) {
			mu.Lock()
			slept = append(slept, d)
			mu.Unlock()
		},
	})

	stopped, cancel := context.WithCancel(context.Background())
	cancel()
	q.Bind(stopped)
	q.Enqueue(domain.PendingReply{Text: "retry-me"})

	q.Bind(context.Background())
	stats := waitStats(t, q, func(s Stats) bool { return s.Posted == 1 })

	if stats.Failed != 0 {
		t.Fatalf("429 не должен считаться неудачей: %+v", stats)
	}
	if got := poster.sentTexts(); len(got) != 1 || got[0] != "retry-me" {
		t.Fatalf("ожидали повторную отправку того же поста, получили %v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(slept) == 0 {
		t.Fatalf("ожидали паузу после 429")
	}
	if slept[0] != 32*time.Second {
		t.Fatalf("ожидали паузу reset+2s = 32s, получили %v", slept[0])
	}
}

func TestRateLimitedPauseNeverBelowMinimum(t *testing.T) {
	now := time.Now()
	clock := domain.ClockFunc(func() time.Time { return now })
	poster := &stubPoster{errs: []error{&domain.ErrRateLimited{Reset: now.Add(time.Second)}}}

	var slept []time.Duration
	var mu sync.Mutex
	q := New(poster, nil, zerolog.Nop(), Options{
		Clock: clock,
		Sleep: func(d time.Duration) {
			mu.Lock()
			slept = append(slept, d)
			mu.Unlock()
		},
	})

	stopped, cancel := context.WithCancel(context.Background())
	cancel()
	q.Bind(stopped)
	q.Enqueue(domain.PendingReply{Text: "x"})
	q.Bind(context.Background())
	waitStats(t, q, func(s Stats) bool { return s.Posted == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(slept) == 0 || slept[0] != 10*time.Second {
		t.Fatalf("ожидали минимальную паузу 10s, получили %v", slept)
	}
}

func TestFailedPostCountsAsFailure(t *testing.T) {
	poster := &stubPoster{errs: []error{errors.New("boom")}}
	q := New(poster, nil, zerolog.Nop(), testOptions(nil))
	q.Bind(context.Background())
	q.Enqueue(domain.PendingReply{Text: "doomed"})

	stats := waitStats(t, q, func(s Stats) bool { return s.Failed == 1 })
	if stats.Posted != 0 {
		t.Fatalf("ожидали 0 отправок, получили %+v", stats)
	}
}

func TestOnPostedHookReceivesItem(t *testing.T) {
	poster := &stubPoster{}
	var mu sync.Mutex
	var gotID string
	var gotItem domain.PendingReply
	q := New(poster, func(id string, item domain.PendingReply) {
		mu.Lock()
		gotID = id
		gotItem = item
		mu.Unlock()
	}, zerolog.Nop(), testOptions(nil))
	q.Bind(context.Background())
	q.Enqueue(domain.PendingReply{Text: "hello", Kind: domain.PostKindReply, Author: "ser"})

	waitStats(t, q, func(s Stats) bool { return s.Posted == 1 })
	mu.Lock()
	defer mu.Unlock()
	if gotID != "id-hello" {
		t.Fatalf("ожидали id-hello, получили %s", gotID)
	}
	if gotItem.Kind != domain.PostKindReply || gotItem.Author != "ser" {
		t.Fatalf("хук получил не тот элемент: %+v", gotItem)
	}
}

func TestPriorityFor(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 5: 2, 6: 3, 100: 3}
	for count, expected := range cases {
		if got := PriorityFor(count); got != expected {
			t.Fatalf("для %d взаимодействий ожидали приоритет %d, получили %d", count, expected, got)
		}
	}
}

func TestWindowWaitAfterQuotaExhausted(t *testing.T) {
	now := time.Now()
	clock := domain.ClockFunc(func() time.Time { return now })
	q := New(&stubPoster{}, nil, zerolog.Nop(), Options{
		Window:      15 * time.Minute,
		WindowQuota: 2,
		Clock:       clock,
		Sleep:       func(time.Duration) {},
	})
	q.stamps = []time.Time{now.Add(-10 * time.Minute), now.Add(-time.Minute)}

	wait := q.windowWait(now)
	if wait != 5*time.Minute+time.Second {
		t.Fatalf("ожидали ожидание 5m1s, получили %v", wait)
	}

	q.stamps = []time.Time{now.Add(-16 * time.Minute), now.Add(-time.Minute)}
	if wait := q.windowWait(now); wait != 0 {
		t.Fatalf("старая метка должна была выпасть из окна, получили %v", wait)
	}
}
