package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessageRespectsLimit(t *testing.T) {
	var builder strings.Builder
	builder.WriteString(strings.Repeat("a", 3000))
	builder.WriteString("\n\n")
	builder.WriteString(strings.Repeat("b", 2000))
	builder.WriteString("\n")
	builder.WriteString(strings.Repeat("c", 500))

	parts := SplitMessage(builder.String())
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if length := len([]rune(part)); length > messageLimit {
			t.Fatalf("часть %d превышает лимит: %d", i, length)
		}
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatalf("неожиданное содержимое первой части")
	}
	if !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatalf("вторая часть должна заканчиваться блоком 'c'")
	}
}

func TestSplitMessageShortText(t *testing.T) {
	text := "отчёт за сутки"
	parts := SplitMessage(text)
	if len(parts) != 1 || parts[0] != text {
		t.Fatalf("короткий текст должен остаться одной частью: %v", parts)
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   \n  "); len(parts) != 0 {
		t.Fatalf("пустой ввод не должен давать частей: %v", parts)
	}
}
