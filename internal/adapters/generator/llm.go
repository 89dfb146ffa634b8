// Package generator — генерация текста постов: LLM через OpenRouter плюс
// пул готовых шаблонов на случай отказа модели.
package generator

import (
	"context"
	"strings"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/openai"
)

// LLM реализует domain.TextGenerator поверх клиента OpenRouter.
type LLM struct {
	client *openai.Client
	model  string
}

var _ domain.TextGenerator = (*LLM)(nil)

func NewLLM(client *openai.Client, model string) *LLM {
	return &LLM{client: client, model: model}
}

func (g *LLM) Generate(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64) (string, error) {
	messages := make([]openai.ChatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, openai.ChatMessage{Role: "user", Content: prompt})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return CleanReply(resp.Choices[0].Message.Content), nil
}

// CleanReply снимает кавычки, в которые модель любит заворачивать ответ.
func CleanReply(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}

// ClipWords обрезает текст до max рун по границе слова.
func ClipWords(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	clipped := string(runes[:max])
	if idx := strings.LastIndex(clipped, " "); idx > max/2 {
		clipped = clipped[:idx]
	}
	return strings.TrimSpace(clipped)
}
