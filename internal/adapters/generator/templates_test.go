package generator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
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

func totalTemplates() int {
	total := 0
	for _, c := range allCategories {
		total += len(c.pool)
	}
	return total
}

func TestPickNeverRepeatsUntilExhaustion(t *testing.T) {
	tpl := NewTemplates(newStubStats(), 42, zerolog.Nop())

	seen := map[string]bool{}
	for i := 0; i < totalTemplates(); i++ {
		picked := tpl.Pick(context.Background())
		if picked == "" {
			t.Fatalf("пустой шаблон на шаге %d", i)
		}
		if seen[picked] {
			// Допустимо только после исчерпания категории: проверяем,
			// что её пул целиком был выдан раньше.
			exhausted := false
			for _, c := range allCategories {
				inPool := false
				for _, s := range c.pool {
					if s == picked {
						inPool = true
						break
					}
				}
				if !inPool {
					continue
				}
				exhausted = true
				for _, s := range c.pool {
					if !seen[s] {
						exhausted = false
						break
					}
				}
			}
			if !exhausted {
				t.Fatalf("повтор %q до исчерпания категории", picked)
			}
		}
		seen[picked] = true
	}
}

func TestPickPersistsUsedSet(t *testing.T) {
	stats := newStubStats()
	tpl := NewTemplates(stats, 7, zerolog.Nop())

	first := tpl.Pick(context.Background())

	raw := stats.values[usedTemplatesKey]
	if raw == "" {
		t.Fatalf("использованные шаблоны должны сохраняться")
	}
	var saved []string
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		t.Fatalf("не ожидали ошибку разбора: %v", err)
	}
	if len(saved) != 1 || saved[0] != first {
		t.Fatalf("ожидали сохранение %q, получили %v", first, saved)
	}
}

func TestRestoreSkipsAlreadyUsed(t *testing.T) {
	stats := newStubStats()
	first := NewTemplates(stats, 7, zerolog.Nop())
	used := map[string]bool{}
	for i := 0; i < 10; i++ {
		used[first.Pick(context.Background())] = true
	}

	second := NewTemplates(stats, 7, zerolog.Nop())
	second.Restore(context.Background())
	if len(second.used) != len(used) {
		t.Fatalf("ожидали восстановление %d шаблонов, получили %d", len(used), len(second.used))
	}
}

func TestCleanReply(t *testing.T) {
	cases := map[string]string{
		`"quoted"`:        "quoted",
		`'single'`:        "single",
		`""double""`:      "double",
		"  plain  ":       "plain",
		`"mixed' inside`:  `"mixed' inside`,
		`he said "sup"`:   `he said "sup"`,
	}
	for input, expected := range cases {
		if got := CleanReply(input); got != expected {
			t.Fatalf("для %q ожидали %q, получили %q", input, expected, got)
		}
	}
}

func TestClipWordsCutsAtWordBoundary(t *testing.T) {
	text := "the trenches reveal character and my character is filing reports"
	got := ClipWords(text, 30)
	if len([]rune(got)) > 30 {
		t.Fatalf("превышен лимит: %q", got)
	}
	if got[len(got)-1] == ' ' {
		t.Fatalf("обрезка не должна оставлять хвостовой пробел: %q", got)
	}
	// Обрезаем по границе слова, а не посреди него.
	if got != "the trenches reveal character" {
		t.Fatalf("ожидали обрезку по слову, получили %q", got)
	}

	if ClipWords("short", 30) != "short" {
		t.Fatalf("короткий текст не должен меняться")
	}
}
