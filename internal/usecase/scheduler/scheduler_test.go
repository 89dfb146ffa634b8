package scheduler

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/domain"
)

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

func TestStartDelayWithoutHistory(t *testing.T) {
	now := time.Unix(1700000000, 0)
	sched := New(newStubStats(), domain.ClockFunc(func() time.Time { return now }), zerolog.Nop())

	task := Task{Name: "autopost", Every: 15 * time.Minute, InitialDelay: time.Minute}
	if delay := sched.StartDelay(context.Background(), task); delay != time.Minute {
		t.Fatalf("без истории ожидали InitialDelay, получили %v", delay)
	}
}

func TestStartDelayAfterFreshRestart(t *testing.T) {
	now := time.Unix(1700000000, 0)
	stats := newStubStats()
	lastRun := now.Add(-2 * time.Minute)
	stats.values["last_run:autopost"] = strconv.FormatInt(lastRun.UnixMilli(), 10)

	sched := New(stats, domain.ClockFunc(func() time.Time { return now }), zerolog.Nop())
	task := Task{Name: "autopost", Every: 15 * time.Minute, InitialDelay: time.Minute}

	if delay := sched.StartDelay(context.Background(), task); delay != 13*time.Minute {
		t.Fatalf("после рестарта через 2m из 15m ожидали 13m, получили %v", delay)
	}
}

func TestStartDelayAfterLongDowntime(t *testing.T) {
	now := time.Unix(1700000000, 0)
	stats := newStubStats()
	stats.values["last_run:autopost"] = strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10)

	sched := New(stats, domain.ClockFunc(func() time.Time { return now }), zerolog.Nop())
	task := Task{Name: "autopost", Every: 15 * time.Minute, InitialDelay: time.Minute}

	if delay := sched.StartDelay(context.Background(), task); delay != time.Minute {
		t.Fatalf("после долгого простоя ожидали InitialDelay, получили %v", delay)
	}
}

func TestStartDelayIgnoresGarbageValue(t *testing.T) {
	now := time.Unix(1700000000, 0)
	stats := newStubStats()
	stats.values["last_run:autopost"] = "не число"

	sched := New(stats, domain.ClockFunc(func() time.Time { return now }), zerolog.Nop())
	task := Task{Name: "autopost", Every: 15 * time.Minute, InitialDelay: time.Minute}

	if delay := sched.StartDelay(context.Background(), task); delay != time.Minute {
		t.Fatalf("нечитаемая метка должна игнорироваться, получили %v", delay)
	}
}

func TestStartDelayClampsFutureTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	stats := newStubStats()
	stats.values["last_run:autopost"] = strconv.FormatInt(now.Add(time.Hour).UnixMilli(), 10)

	sched := New(stats, domain.ClockFunc(func() time.Time { return now }), zerolog.Nop())
	task := Task{Name: "autopost", Every: 15 * time.Minute, InitialDelay: time.Minute}

	if delay := sched.StartDelay(context.Background(), task); delay != 15*time.Minute {
		t.Fatalf("метка из будущего должна давать полный интервал, получили %v", delay)
	}
}

func TestRunOncePersistsLastRun(t *testing.T) {
	now := time.Unix(1700000000, 0)
	stats := newStubStats()
	sched := New(stats, domain.ClockFunc(func() time.Time { return now }), zerolog.Nop())

	ran := false
	task := Task{Name: "mentions", Every: 20 * time.Second, Run: func(context.Context) { ran = true }}
	sched.runOnce(context.Background(), task)

	if !ran {
		t.Fatalf("задача должна была выполниться")
	}
	expected := strconv.FormatInt(now.UnixMilli(), 10)
	if stats.values["last_run:mentions"] != expected {
		t.Fatalf("ожидали метку %s, получили %s", expected, stats.values["last_run:mentions"])
	}
}
