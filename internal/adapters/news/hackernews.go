// Package news отдаёт свежие AI-сюжеты для контент-конвейера.
// Единственный источник — Hacker News: публичный API без ключей.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
)

const hackerNewsBase = "https://hacker-news.firebaseio.com"

// topStoriesScan — сколько верхних сюжетов просматривается за цикл.
const topStoriesScan = 30

// aiKeywords — маркеры AI-тематики в заголовке.
var aiKeywords = []string{
	"ai", "anthropic", "openai", "claude", "gpt", "llm", "deepseek", "grok",
	"machine learning", "neural", "model", "training", "inference", "artificial",
}

// HackerNews — клиент Firebase API Hacker News.
type HackerNews struct {
	http *http.Client
	base string
}

var _ domain.NewsSource = (*HackerNews)(nil)

// NewHackerNews создаёт клиента.
func NewHackerNews(timeout time.Duration) *HackerNews {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HackerNews{
		http: &http.Client{Timeout: timeout},
		base: hackerNewsBase,
	}
}

type hnItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
}

// TopStories возвращает до limit AI-сюжетов из верхушки Hacker News,
// в порядке ранжирования самого HN. Сетевой сбой — пустой список без ошибки.
func (h *HackerNews) TopStories(ctx context.Context, limit int) ([]domain.Story, error) {
	if limit <= 0 {
		limit = 5
	}
	var ids []int
	if !h.getJSON(ctx, h.base+"/v0/topstories.json", "hn_topstories", &ids) {
		return nil, nil
	}
	if len(ids) > topStoriesScan {
		ids = ids[:topStoriesScan]
	}

	stories := make([]domain.Story, 0, limit)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		var item hnItem
		if !h.getJSON(ctx, fmt.Sprintf("%s/v0/item/%d.json", h.base, id), "hn_item", &item) {
			continue
		}
		if item.Title == "" || !isAITitle(item.Title) {
			continue
		}
		stories = append(stories, domain.Story{
			ID:       strconv.Itoa(item.ID),
			Title:    item.Title,
			URL:      item.URL,
			Score:    item.Score,
			Comments: item.Descendants,
		})
		if len(stories) >= limit {
			break
		}
	}
	return stories, nil
}

func isAITitle(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range aiKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (h *HackerNews) getJSON(ctx context.Context, endpoint, operation string, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	start := time.Now()
	resp, err := h.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("news", operation, "", start, err)
		return false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		metrics.ObserveNetworkRequest("news", operation, "", start, fmt.Errorf("status %d", resp.StatusCode))
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.ObserveNetworkRequest("news", operation, "", start, err)
		return false
	}
	metrics.ObserveNetworkRequest("news", operation, "", start, nil)
	return true
}
