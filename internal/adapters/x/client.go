// Package x реализует клиента X API v2: публикация постов (OAuth 1.0a),
// упоминания, метрики и поиск (Bearer).
package x

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
)

const apiBase = "https://api.twitter.com"

// Credentials — ключи доступа к X API.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
	BearerToken    string
	UserID         string
}

// Valid сообщает, достаточно ли ключей для постинга.
func (c Credentials) Valid() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// CanPoll сообщает, достаточно ли ключей для чтения упоминаний и поиска.
func (c Credentials) CanPoll() bool {
	return c.BearerToken != "" && c.UserID != ""
}

// Client — HTTP клиент X API.
type Client struct {
	http  *http.Client
	creds Credentials
	base  string
	clock domain.Clock
}

var _ domain.Poster = (*Client)(nil)
var _ domain.MentionSource = (*Client)(nil)
var _ domain.MetricsFetcher = (*Client)(nil)
var _ domain.Searcher = (*Client)(nil)

// NewClient создаёт клиента.
func NewClient(creds Credentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:  &http.Client{Timeout: timeout},
		creds: creds,
		base:  apiBase,
		clock: domain.SystemClock(),
	}
}

type postRequest struct {
	Text  string         `json:"text"`
	Reply *postReplyInfo `json:"reply,omitempty"`
}

type postReplyInfo struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type postResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Post публикует пост, опционально как ответ. 429 от платформы возвращается
// как *domain.ErrRateLimited с подсказкой о сбросе лимита.
func (c *Client) Post(ctx context.Context, text, replyToID string) (domain.PostResult, error) {
	endpoint := c.base + "/2/tweets"
	payload := postRequest{Text: text}
	if replyToID != "" {
		payload.Reply = &postReplyInfo{InReplyToTweetID: replyToID}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.PostResult{}, fmt.Errorf("x: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.PostResult{}, fmt.Errorf("x: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.oauthHeader(http.MethodPost, endpoint, nil))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("x", "post", "tweets", start, err)
		return domain.PostResult{}, fmt.Errorf("x: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveNetworkRequest("x", "post", "tweets", start, err)
		return domain.PostResult{}, fmt.Errorf("x: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		rl := &domain.ErrRateLimited{Reset: parseRateLimitReset(resp.Header)}
		metrics.ObserveNetworkRequest("x", "post", "tweets", start, rl)
		return domain.PostResult{}, rl
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("x: unexpected status %d: %s", resp.StatusCode, clipBytes(respBody, 100))
		metrics.ObserveNetworkRequest("x", "post", "tweets", start, err)
		return domain.PostResult{}, err
	}

	var parsed postResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		metrics.ObserveNetworkRequest("x", "post", "tweets", start, err)
		return domain.PostResult{}, fmt.Errorf("x: decode response: %w", err)
	}
	if parsed.Data.ID == "" {
		err = fmt.Errorf("x: пустой идентификатор в ответе")
		metrics.ObserveNetworkRequest("x", "post", "tweets", start, err)
		return domain.PostResult{}, err
	}
	metrics.ObserveNetworkRequest("x", "post", "tweets", start, nil)
	return domain.PostResult{ID: parsed.Data.ID}, nil
}

type mentionsResponse struct {
	Data []struct {
		ID            string `json:"id"`
		AuthorID      string `json:"author_id"`
		Text          string `json:"text"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			LikeCount int `json:"like_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// MentionsSince возвращает упоминания новее sinceID, старые первыми.
func (c *Client) MentionsSince(ctx context.Context, sinceID string) ([]domain.Mention, error) {
	if c.creds.BearerToken == "" || c.creds.UserID == "" {
		return nil, fmt.Errorf("x: bearer token или user id не заданы")
	}
	query := url.Values{}
	query.Set("max_results", "10")
	query.Set("tweet.fields", "created_at,author_id")
	query.Set("expansions", "author_id")
	query.Set("user.fields", "username")
	if sinceID != "" {
		query.Set("since_id", sinceID)
	}
	endpoint := fmt.Sprintf("%s/2/users/%s/mentions?%s", c.base, c.creds.UserID, query.Encode())

	var parsed mentionsResponse
	if err := c.bearerGet(ctx, endpoint, "mentions", &parsed); err != nil {
		return nil, err
	}

	usernames := make(map[string]string, len(parsed.Includes.Users))
	for _, u := range parsed.Includes.Users {
		usernames[u.ID] = u.Username
	}

	mentions := make([]domain.Mention, 0, len(parsed.Data))
	// API отдаёт новые первыми; обрабатывать удобнее от старых к новым.
	for i := len(parsed.Data) - 1; i >= 0; i-- {
		raw := parsed.Data[i]
		created, _ := time.Parse(time.RFC3339, raw.CreatedAt)
		author := usernames[raw.AuthorID]
		if author == "" {
			author = "anon"
		}
		mentions = append(mentions, domain.Mention{
			ID:        raw.ID,
			AuthorID:  raw.AuthorID,
			Author:    author,
			Text:      raw.Text,
			CreatedAt: created,
		})
	}
	return mentions, nil
}

type metricsResponse struct {
	Data struct {
		PublicMetrics struct {
			LikeCount       int `json:"like_count"`
			RetweetCount    int `json:"retweet_count"`
			ReplyCount      int `json:"reply_count"`
			ImpressionCount int `json:"impression_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

// PostMetrics возвращает счётчики вовлечённости поста. nil без ошибки —
// метрики недоступны (пост удалён, защищён и т.п.).
func (c *Client) PostMetrics(ctx context.Context, externalID string) (*domain.PostMetrics, error) {
	endpoint := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=public_metrics", c.base, url.PathEscape(externalID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("x: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.BearerToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("x", "get", "tweet_metrics", start, err)
		return nil, nil
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		metrics.ObserveNetworkRequest("x", "get", "tweet_metrics", start, err)
		return nil, nil
	}
	var parsed metricsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		metrics.ObserveNetworkRequest("x", "get", "tweet_metrics", start, err)
		return nil, nil
	}
	metrics.ObserveNetworkRequest("x", "get", "tweet_metrics", start, nil)
	pm := parsed.Data.PublicMetrics
	return &domain.PostMetrics{
		Likes:       pm.LikeCount,
		Reposts:     pm.RetweetCount,
		Replies:     pm.ReplyCount,
		Impressions: pm.ImpressionCount,
	}, nil
}

// SearchRecent ищет свежие посты по запросу.
func (c *Client) SearchRecent(ctx context.Context, query string, limit int) ([]domain.Mention, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	values := url.Values{}
	values.Set("query", query)
	values.Set("max_results", strconv.Itoa(limit))
	values.Set("tweet.fields", "created_at,author_id,public_metrics")
	values.Set("expansions", "author_id")
	values.Set("user.fields", "username")
	endpoint := c.base + "/2/tweets/search/recent?" + values.Encode()

	var parsed mentionsResponse
	if err := c.bearerGet(ctx, endpoint, "search_recent", &parsed); err != nil {
		return nil, err
	}
	usernames := make(map[string]string, len(parsed.Includes.Users))
	for _, u := range parsed.Includes.Users {
		usernames[u.ID] = u.Username
	}
	found := make([]domain.Mention, 0, len(parsed.Data))
	for _, raw := range parsed.Data {
		created, _ := time.Parse(time.RFC3339, raw.CreatedAt)
		found = append(found, domain.Mention{
			ID:        raw.ID,
			AuthorID:  raw.AuthorID,
			Author:    usernames[raw.AuthorID],
			Text:      raw.Text,
			Likes:     raw.PublicMetrics.LikeCount,
			CreatedAt: created,
		})
	}
	return found, nil
}

func (c *Client) bearerGet(ctx context.Context, endpoint, operation string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("x: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.BearerToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("x", "get", operation, start, err)
		return fmt.Errorf("x: do request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveNetworkRequest("x", "get", operation, start, err)
		return fmt.Errorf("x: read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		rl := &domain.ErrRateLimited{Reset: parseRateLimitReset(resp.Header)}
		metrics.ObserveNetworkRequest("x", "get", operation, start, rl)
		return rl
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("x: unexpected status %d: %s", resp.StatusCode, clipBytes(respBody, 100))
		metrics.ObserveNetworkRequest("x", "get", operation, start, err)
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		metrics.ObserveNetworkRequest("x", "get", operation, start, err)
		return fmt.Errorf("x: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("x", "get", operation, start, nil)
	return nil
}

// oauthHeader строит заголовок OAuth 1.0a (HMAC-SHA1) для запросов записи.
func (c *Client) oauthHeader(method, rawURL string, extra url.Values) string {
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)
	params := map[string]string{
		"oauth_consumer_key":     c.creds.ConsumerKey,
		"oauth_nonce":            hex.EncodeToString(nonce),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(c.clock.Now().Unix(), 10),
		"oauth_token":            c.creds.AccessToken,
		"oauth_version":          "1.0",
	}

	all := make(map[string]string, len(params)+len(extra))
	for k, v := range params {
		all[k] = v
	}
	for k := range extra {
		all[k] = extra.Get(k)
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(all[k]))
	}
	base := method + "&" + percentEncode(rawURL) + "&" + percentEncode(strings.Join(pairs, "&"))
	signingKey := percentEncode(c.creds.ConsumerSecret) + "&" + percentEncode(c.creds.AccessSecret)

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(base))
	params["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	headerKeys := make([]string, 0, len(params))
	for k := range params {
		headerKeys = append(headerKeys, k)
	}
	sort.Strings(headerKeys)
	headerPairs := make([]string, 0, len(headerKeys))
	for _, k := range headerKeys {
		headerPairs = append(headerPairs, fmt.Sprintf("%s=%q", percentEncode(k), percentEncode(params[k])))
	}
	return "OAuth " + strings.Join(headerPairs, ", ")
}

// percentEncode кодирует строку по RFC 3986 (как требует подпись OAuth).
func percentEncode(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func parseRateLimitReset(h http.Header) time.Time {
	raw := h.Get("x-rate-limit-reset")
	if raw == "" {
		return time.Time{}
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

func clipBytes(b []byte, limit int) string {
	if len(b) > limit {
		b = b[:limit]
	}
	return string(b)
}
