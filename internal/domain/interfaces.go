package domain

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited возвращается Poster, когда платформа ответила 429.
// Reset подсказывает, когда лимит будет сброшен (нулевое время — неизвестно).
type ErrRateLimited struct {
	Reset time.Time
}

func (e *ErrRateLimited) Error() string { return "платформа ограничила частоту постов" }

// AsRateLimited извлекает ErrRateLimited из цепочки ошибок.
func AsRateLimited(err error) (*ErrRateLimited, bool) {
	var rl *ErrRateLimited
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// PostResult — результат успешной публикации.
type PostResult struct {
	ID string
}

// Poster публикует посты на платформе.
type Poster interface {
	Post(ctx context.Context, text, replyToID string) (PostResult, error)
}

// MentionSource отдаёт упоминания новее указанного курсора.
type MentionSource interface {
	MentionsSince(ctx context.Context, sinceID string) ([]Mention, error)
}

// MetricsFetcher возвращает счётчики вовлечённости поста.
// nil без ошибки означает «метрики недоступны» — это не сбой.
type MetricsFetcher interface {
	PostMetrics(ctx context.Context, externalID string) (*PostMetrics, error)
}

// Searcher ищет свежие посты по запросу.
type Searcher interface {
	SearchRecent(ctx context.Context, query string, limit int) ([]Mention, error)
}

// TextGenerator генерирует текст по промпту. Ошибка генерации не фатальна:
// вызывающий обязан уметь жить без результата.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64) (string, error)
}

// DedupRepo хранит идентификаторы уже обработанных входящих постов.
type DedupRepo interface {
	IsProcessed(ctx context.Context, externalID string) (bool, error)
	MarkProcessed(ctx context.Context, externalID string) error
	LastProcessedID(ctx context.Context) (string, error)
}

// PostLogRepo ведёт журнал исходящих постов.
type PostLogRepo interface {
	RecordPost(ctx context.Context, item PostedItem) error
}

// TrackedPostRepo сохраняет посты, ожидающие отложенной оценки,
// чтобы пережить перезапуск процесса.
type TrackedPostRepo interface {
	SaveTracked(ctx context.Context, post TrackedPost) error
	DeleteTracked(ctx context.Context, externalID string) error
	ListTracked(ctx context.Context) ([]TrackedPost, error)
}

// PerformanceRepo хранит результаты оценки постов.
type PerformanceRepo interface {
	UpsertPerformance(ctx context.Context, perf PostPerformance) error
	TopPerformers(ctx context.Context, kind PostKind, limit int) ([]PostPerformance, error)
	KindBreakdown(ctx context.Context) ([]KindBreakdown, error)
}

// StatRepo — простое durable KV-хранилище для счётчиков и меток времени.
type StatRepo interface {
	SetStat(ctx context.Context, key, value string) error
	GetStat(ctx context.Context, key string) (string, error)
}

// NewsSource отдаёт свежие новостные сюжеты для контент-конвейера.
type NewsSource interface {
	TopStories(ctx context.Context, limit int) ([]Story, error)
}

// RunnerSource отдаёт токены с подтверждённым объёмом и ликвидностью.
type RunnerSource interface {
	Runners(ctx context.Context) ([]TokenRunner, error)
}

// ArticlePublisher публикует статью на внешнем сайте.
type ArticlePublisher interface {
	Publish(ctx context.Context, article Article) error
}

// PriceOracle возвращает рыночные данные токена. nil без ошибки — нет данных.
type PriceOracle interface {
	Price(ctx context.Context, query string) (*TokenPrice, error)
}

// Wallet — казначейский кошелёк. Сборку транзакции берёт на себя агрегатор
// свопов; кошелёк только подписывает и отправляет. Жёсткое правило: никаких
// переводов на внешние адреса, единственная операция — купить и сжечь.
type Wallet interface {
	Balance(ctx context.Context) (WalletBalance, error)
	BuyAndBurn(ctx context.Context, amountSOL float64) (string, error)
}

// Notifier отправляет служебные уведомления оператору.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}

// Clock абстрагирует время для тестируемости задержек и устаревания.
type Clock interface {
	Now() time.Time
}

// ClockFunc адаптирует функцию к интерфейсу Clock.
type ClockFunc func() time.Time

// Now возвращает текущее время.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock — часы на time.Now.
func SystemClock() Clock { return ClockFunc(time.Now) }
