package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.DedupRepo = (*DedupScope)(nil)
var _ domain.PostLogRepo = (*Postgres)(nil)
var _ domain.TrackedPostRepo = (*Postgres)(nil)
var _ domain.PerformanceRepo = (*Postgres)(nil)
var _ domain.StatRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS processed_posts (
    origin       TEXT NOT NULL,
    external_id  TEXT NOT NULL,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (origin, external_id)
);
CREATE TABLE IF NOT EXISTS posted_items (
    external_id TEXT PRIMARY KEY,
    text        TEXT NOT NULL,
    kind        TEXT NOT NULL,
    posted_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS pending_checks (
    external_id      TEXT PRIMARY KEY,
    kind             TEXT NOT NULL,
    text             TEXT NOT NULL DEFAULT '',
    target_username  TEXT NOT NULL DEFAULT '',
    target_followers INTEGER NOT NULL DEFAULT 0,
    posted_at        TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS post_performance (
    external_id      TEXT PRIMARY KEY,
    kind             TEXT NOT NULL,
    text             TEXT NOT NULL DEFAULT '',
    target_username  TEXT NOT NULL DEFAULT '',
    target_followers INTEGER NOT NULL DEFAULT 0,
    posted_at        TIMESTAMPTZ NOT NULL,
    checked_at       TIMESTAMPTZ NOT NULL,
    likes            INTEGER NOT NULL DEFAULT 0,
    reposts          INTEGER NOT NULL DEFAULT 0,
    replies          INTEGER NOT NULL DEFAULT 0,
    impressions      INTEGER NOT NULL DEFAULT 0,
    score            DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_perf_kind ON post_performance(kind);
CREATE INDEX IF NOT EXISTS idx_perf_score ON post_performance(score DESC);
CREATE TABLE IF NOT EXISTS stats (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "all", start, err)
	if err != nil {
		return fmt.Errorf("создание схемы: %w", err)
	}
	return nil
}

// Источники дедупликации. У каждого потребителя свой namespace: отметки
// одного не двигают курсор другого.
const (
	OriginMention = "mention"
	OriginEngage  = "engage"
	OriginArticle = "article"
	OriginQuote   = "quote"
)

// DedupScope — срез processed_posts для одного источника.
type DedupScope struct {
	p      *Postgres
	origin string
}

// Dedup возвращает хранилище дедупликации для источника origin.
func (p *Postgres) Dedup(origin string) *DedupScope {
	return &DedupScope{p: p, origin: origin}
}

// IsProcessed реализует domain.DedupRepo.
func (d *DedupScope) IsProcessed(ctx context.Context, externalID string) (bool, error) {
	ctx, cancel := d.p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	var one int
	err := d.p.pool.QueryRow(ctx, `
SELECT 1 FROM processed_posts WHERE origin = $1 AND external_id = $2
`, d.origin, externalID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "processed_select", "processed_posts", start, nil)
		return false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "processed_select", "processed_posts", start, err)
	if err != nil {
		return false, fmt.Errorf("проверка обработанного поста: %w", err)
	}
	return true, nil
}

// MarkProcessed реализует domain.DedupRepo. Повторная вставка — no-op.
func (d *DedupScope) MarkProcessed(ctx context.Context, externalID string) error {
	ctx, cancel := d.p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := d.p.pool.Exec(ctx, `
INSERT INTO processed_posts (origin, external_id) VALUES ($1, $2)
ON CONFLICT (origin, external_id) DO NOTHING
`, d.origin, externalID)
	metrics.ObserveNetworkRequest("postgres", "processed_insert", "processed_posts", start, err)
	if err != nil {
		return fmt.Errorf("отметка обработанного поста: %w", err)
	}
	return nil
}

// LastProcessedID возвращает старший обработанный идентификатор источника для
// возобновления курсора после перезапуска. Идентификаторы X — десятичные
// snowflake, поэтому числовой порядок равен порядку (длина, строка).
func (d *DedupScope) LastProcessedID(ctx context.Context) (string, error) {
	ctx, cancel := d.p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	var id string
	err := d.p.pool.QueryRow(ctx, `
SELECT external_id FROM processed_posts
WHERE origin = $1
ORDER BY char_length(external_id) DESC, external_id DESC
LIMIT 1
`, d.origin).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "processed_last", "processed_posts", start, nil)
		return "", nil
	}
	metrics.ObserveNetworkRequest("postgres", "processed_last", "processed_posts", start, err)
	if err != nil {
		return "", fmt.Errorf("последний обработанный пост: %w", err)
	}
	return id, nil
}

// RecordPost реализует domain.PostLogRepo.
func (p *Postgres) RecordPost(ctx context.Context, item domain.PostedItem) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	if item.PostedAt.IsZero() {
		item.PostedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO posted_items (external_id, text, kind, posted_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (external_id) DO NOTHING
`, item.ExternalID, item.Text, string(item.Kind), item.PostedAt)
	metrics.ObserveNetworkRequest("postgres", "posted_insert", "posted_items", start, err)
	if err != nil {
		return fmt.Errorf("журнал исходящих постов: %w", err)
	}
	return nil
}

// SaveTracked реализует domain.TrackedPostRepo.
func (p *Postgres) SaveTracked(ctx context.Context, post domain.TrackedPost) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO pending_checks (external_id, kind, text, target_username, target_followers, posted_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (external_id) DO UPDATE SET
    kind = excluded.kind,
    text = excluded.text,
    target_username = excluded.target_username,
    target_followers = excluded.target_followers,
    posted_at = excluded.posted_at
`, post.ExternalID, string(post.Kind), post.Text, post.TargetUsername, post.TargetFollowers, post.PostedAt)
	metrics.ObserveNetworkRequest("postgres", "tracked_upsert", "pending_checks", start, err)
	if err != nil {
		return fmt.Errorf("сохранение отложенной оценки: %w", err)
	}
	return nil
}

// DeleteTracked реализует domain.TrackedPostRepo.
func (p *Postgres) DeleteTracked(ctx context.Context, externalID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM pending_checks WHERE external_id = $1`, externalID)
	metrics.ObserveNetworkRequest("postgres", "tracked_delete", "pending_checks", start, err)
	if err != nil {
		return fmt.Errorf("снятие отложенной оценки: %w", err)
	}
	return nil
}

// ListTracked реализует domain.TrackedPostRepo.
func (p *Postgres) ListTracked(ctx context.Context) ([]domain.TrackedPost, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT external_id, kind, text, target_username, target_followers, posted_at
FROM pending_checks
ORDER BY posted_at
`)
	metrics.ObserveNetworkRequest("postgres", "tracked_list", "pending_checks", start, err)
	if err != nil {
		return nil, fmt.Errorf("список отложенных оценок: %w", err)
	}
	defer rows.Close()

	var items []domain.TrackedPost
	for rows.Next() {
		var item domain.TrackedPost
		var kind string
		if err := rows.Scan(&item.ExternalID, &kind, &item.Text, &item.TargetUsername, &item.TargetFollowers, &item.PostedAt); err != nil {
			return nil, fmt.Errorf("чтение отложенной оценки: %w", err)
		}
		item.Kind = domain.PostKind(kind)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход отложенных оценок: %w", err)
	}
	return items, nil
}

// UpsertPerformance реализует domain.PerformanceRepo. Повторная оценка
// перезаписывает запись целиком: балл никогда не расходится со счётчиками.
func (p *Postgres) UpsertPerformance(ctx context.Context, perf domain.PostPerformance) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO post_performance
    (external_id, kind, text, target_username, target_followers, posted_at, checked_at, likes, reposts, replies, impressions, score)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (external_id) DO UPDATE SET
    kind = excluded.kind,
    text = excluded.text,
    target_username = excluded.target_username,
    target_followers = excluded.target_followers,
    posted_at = excluded.posted_at,
    checked_at = excluded.checked_at,
    likes = excluded.likes,
    reposts = excluded.reposts,
    replies = excluded.replies,
    impressions = excluded.impressions,
    score = excluded.score
`, perf.ExternalID, string(perf.Kind), perf.Text, perf.TargetUsername, perf.TargetFollowers,
		perf.PostedAt, perf.CheckedAt, perf.Metrics.Likes, perf.Metrics.Reposts, perf.Metrics.Replies,
		perf.Metrics.Impressions, perf.Score)
	metrics.ObserveNetworkRequest("postgres", "performance_upsert", "post_performance", start, err)
	if err != nil {
		return fmt.Errorf("сохранение результата оценки: %w", err)
	}
	return nil
}

// TopPerformers реализует domain.PerformanceRepo. Пустой kind — все типы.
func (p *Postgres) TopPerformers(ctx context.Context, kind domain.PostKind, limit int) ([]domain.PostPerformance, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 5
	}
	query := `
SELECT external_id, kind, text, target_username, target_followers, posted_at, checked_at,
       likes, reposts, replies, impressions, score
FROM post_performance
`
	args := []any{}
	if kind != "" {
		query += `WHERE kind = $1
ORDER BY score DESC
LIMIT $2`
		args = append(args, string(kind), limit)
	} else {
		query += `ORDER BY score DESC
LIMIT $1`
		args = append(args, limit)
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "performance_top", "post_performance", start, err)
	if err != nil {
		return nil, fmt.Errorf("лучшие посты: %w", err)
	}
	defer rows.Close()

	var out []domain.PostPerformance
	for rows.Next() {
		var perf domain.PostPerformance
		var kindRaw string
		if err := rows.Scan(&perf.ExternalID, &kindRaw, &perf.Text, &perf.TargetUsername, &perf.TargetFollowers,
			&perf.PostedAt, &perf.CheckedAt, &perf.Metrics.Likes, &perf.Metrics.Reposts, &perf.Metrics.Replies,
			&perf.Metrics.Impressions, &perf.Score); err != nil {
			return nil, fmt.Errorf("чтение результата оценки: %w", err)
		}
		perf.Kind = domain.PostKind(kindRaw)
		out = append(out, perf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход результатов оценки: %w", err)
	}
	return out, nil
}

// KindBreakdown реализует domain.PerformanceRepo.
func (p *Postgres) KindBreakdown(ctx context.Context) ([]domain.KindBreakdown, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT kind, COUNT(*), AVG(score), MAX(score), COALESCE(SUM(likes), 0), COALESCE(SUM(reposts), 0)
FROM post_performance
GROUP BY kind
ORDER BY kind
`)
	metrics.ObserveNetworkRequest("postgres", "performance_breakdown", "post_performance", start, err)
	if err != nil {
		return nil, fmt.Errorf("агрегаты по типам: %w", err)
	}
	defer rows.Close()

	var out []domain.KindBreakdown
	for rows.Next() {
		var row domain.KindBreakdown
		var kindRaw string
		if err := rows.Scan(&kindRaw, &row.Count, &row.AvgScore, &row.BestScore, &row.TotalLikes, &row.TotalReposts); err != nil {
			return nil, fmt.Errorf("чтение агрегата: %w", err)
		}
		row.Kind = domain.PostKind(kindRaw)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход агрегатов: %w", err)
	}
	return out, nil
}

// SetStat реализует domain.StatRepo.
func (p *Postgres) SetStat(ctx context.Context, key, value string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO stats (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = excluded.value
`, key, value)
	metrics.ObserveNetworkRequest("postgres", "stat_upsert", "stats", start, err)
	if err != nil {
		return fmt.Errorf("сохранение счётчика %s: %w", key, err)
	}
	return nil
}

// GetStat реализует domain.StatRepo. Отсутствующий ключ — пустая строка.
func (p *Postgres) GetStat(ctx context.Context, key string) (string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM stats WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "stat_select", "stats", start, nil)
		return "", nil
	}
	metrics.ObserveNetworkRequest("postgres", "stat_select", "stats", start, err)
	if err != nil {
		return "", fmt.Errorf("чтение счётчика %s: %w", key, err)
	}
	return value, nil
}
