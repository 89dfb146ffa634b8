package governor

import (
	"testing"
	"time"

	"x-agent-bot/internal/domain"
)

func TestAllowBeforeFirstPost(t *testing.T) {
	g := New(3*time.Minute, nil)
	if !g.Allow() {
		t.Fatalf("первый пост должен быть разрешён")
	}
	if g.Wait() != 0 {
		t.Fatalf("ожидание перед первым постом должно быть нулевым")
	}
}

func TestMarkSentBlocksUntilGapPasses(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := domain.ClockFunc(func() time.Time { return now })
	g := New(3*time.Minute, clock)

	g.MarkSent()
	if g.Allow() {
		t.Fatalf("сразу после поста второй должен быть запрещён")
	}
	if g.Wait() != 3*time.Minute {
		t.Fatalf("ожидали 3m ожидания, получили %v", g.Wait())
	}

	now = now.Add(2 * time.Minute)
	if g.Allow() {
		t.Fatalf("через 2m из 3m пост всё ещё запрещён")
	}
	if g.Wait() != time.Minute {
		t.Fatalf("ожидали 1m ожидания, получили %v", g.Wait())
	}

	now = now.Add(time.Minute)
	if !g.Allow() {
		t.Fatalf("по истечении интервала пост должен быть разрешён")
	}
	if g.Wait() != 0 {
		t.Fatalf("ожидание после истечения интервала должно быть нулевым")
	}
}

func TestWaitZeroExactlyWhenAllowed(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := domain.ClockFunc(func() time.Time { return now })
	g := New(time.Minute, clock)
	g.MarkSent()

	steps := []time.Duration{0, 30 * time.Second, 59 * time.Second, time.Minute, 2 * time.Minute}
	base := now
	for _, step := range steps {
		now = base.Add(step)
		allowed := g.Allow()
		wait := g.Wait()
		if allowed != (wait == 0) {
			t.Fatalf("на шаге %v Allow=%v, но Wait=%v", step, allowed, wait)
		}
	}
}

func TestRestoreSurvivesRestart(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := domain.ClockFunc(func() time.Time { return now })
	g := New(3*time.Minute, clock)

	g.Restore(now.Add(-time.Minute))
	if g.Allow() {
		t.Fatalf("после восстановления свежей метки пост должен быть запрещён")
	}
	if g.Wait() != 2*time.Minute {
		t.Fatalf("ожидали 2m ожидания, получили %v", g.Wait())
	}
}
