package domain

import "time"

// PostKind описывает тип исходящего поста. Набор закрыт: аналитика и
// отчётность обязаны покрывать каждое значение.
type PostKind string

const (
	// PostKindAutopost органический пост автопостера.
	PostKindAutopost PostKind = "autopost"
	// PostKindReply ответ на упоминание.
	PostKindReply PostKind = "reply"
	// PostKindEngage ответ в чужом треде, найденном поиском.
	PostKindEngage PostKind = "engage"
	// PostKindQuote цитирование чужого поста.
	PostKindQuote PostKind = "quote"
	// PostKindArticle анонс статьи контент-конвейера.
	PostKindArticle PostKind = "article"
	// PostKindBurn анонс сжигания токенов казначейством.
	PostKindBurn PostKind = "burn"
)

// PostKinds перечисляет все типы постов.
func PostKinds() []PostKind {
	return []PostKind{
		PostKindAutopost,
		PostKindReply,
		PostKindEngage,
		PostKindQuote,
		PostKindArticle,
		PostKindBurn,
	}
}

// PendingReply представляет исходящий пост, ожидающий отправки в очереди.
type PendingReply struct {
	Text       string
	ReplyToID  string
	Priority   int
	Author     string
	Kind       PostKind
	EnqueuedAt time.Time
}

// Mention описывает входящее упоминание бота или найденный поиском пост.
type Mention struct {
	ID        string
	AuthorID  string
	Author    string
	Text      string
	Likes     int
	CreatedAt time.Time
}

// PostedItem хранит запись об успешно отправленном посте.
type PostedItem struct {
	ExternalID string
	Text       string
	Kind       PostKind
	PostedAt   time.Time
}

// TrackedPost — отправленный пост, ожидающий отложенной оценки вовлечённости.
type TrackedPost struct {
	ExternalID      string
	Kind            PostKind
	Text            string
	TargetUsername  string
	TargetFollowers int
	PostedAt        time.Time
}

// PostMetrics содержит сырые счётчики вовлечённости поста.
type PostMetrics struct {
	Likes       int
	Reposts     int
	Replies     int
	Impressions int
}

// PostPerformance — сохранённый результат оценки поста.
type PostPerformance struct {
	ExternalID      string
	Kind            PostKind
	Text            string
	TargetUsername  string
	TargetFollowers int
	PostedAt        time.Time
	CheckedAt       time.Time
	Metrics         PostMetrics
	Score           float64
}

// KindBreakdown агрегирует результаты по типу поста.
type KindBreakdown struct {
	Kind         PostKind
	Count        int
	AvgScore     float64
	BestScore    float64
	TotalLikes   int
	TotalReposts int
}

// TokenPrice описывает рыночные данные токена.
type TokenPrice struct {
	Name      string
	Symbol    string
	PriceUSD  float64
	MarketCap float64
	Change24h float64
	Volume24h float64
}

// WalletBalance — состояние казначейского кошелька.
type WalletBalance struct {
	SOL    float64
	Tokens float64
}

// Story — новостной сюжет, кандидат для контент-конвейера.
type Story struct {
	ID       string
	Title    string
	URL      string
	Score    int
	Comments int
}

// TokenRunner — токен с реальным объёмом, найденный сканером рынка.
type TokenRunner struct {
	Name         string
	Symbol       string
	MarketCap    float64
	Volume24h    float64
	Change24h    float64
	LiquidityUSD float64
	Buys24h      int
	Sells24h     int
	URL          string
}

// Article — статья, готовая к публикации на сайте.
type Article struct {
	Title string
	Body  string
	Tag   string
	Slug  string
}
