package news

import "testing"

func TestIsAITitle(t *testing.T) {
	positives := []string{
		"Anthropic ships a new model",
		"Why LLM inference is getting cheaper",
		"Show HN: training a neural net on my fridge",
	}
	for _, title := range positives {
		if !isAITitle(title) {
			t.Fatalf("заголовок %q должен считаться AI-тематикой", title)
		}
	}

	if isAITitle("Rust 2.0 released") {
		t.Fatalf("заголовок без AI-маркеров не должен проходить фильтр")
	}
}
