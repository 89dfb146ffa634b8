// Package site публикует статьи на внешнем сайте через его REST API.
package site

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
)

// Client — клиент API сайта.
type Client struct {
	http   *http.Client
	apiURL string
	apiKey string
}

var _ domain.ArticlePublisher = (*Client)(nil)

// NewClient создаёт клиента. apiURL — полный адрес эндпоинта статей.
func NewClient(apiURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
	}
}

type articleRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
	Slug  string `json:"slug"`
}

// Publish отправляет статью на сайт. Неуспешный статус — ошибка: без живой
// статьи анонс в ленте вести некуда.
func (c *Client) Publish(ctx context.Context, article domain.Article) error {
	payload, err := json.Marshal(articleRequest{
		Title: article.Title,
		Body:  article.Body,
		Tag:   article.Tag,
		Slug:  article.Slug,
	})
	if err != nil {
		return fmt.Errorf("site: marshal article: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("site: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("site", "publish", "articles", start, err)
		return fmt.Errorf("site: publish request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("site: publish status %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("site", "publish", "articles", start, err)
		return err
	}
	metrics.ObserveNetworkRequest("site", "publish", "articles", start, nil)
	return nil
}
