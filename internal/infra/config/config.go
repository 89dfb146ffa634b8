package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	X struct {
		ConsumerKey    string `envconfig:"X_CONSUMER_KEY"`
		ConsumerSecret string `envconfig:"X_CONSUMER_SECRET"`
		AccessToken    string `envconfig:"X_ACCESS_TOKEN"`
		AccessSecret   string `envconfig:"X_ACCESS_SECRET"`
		BearerToken    string `envconfig:"X_BEARER_TOKEN"`
		UserID         string `envconfig:"X_USER_ID"`
	} `envconfig:""`

	OpenRouter struct {
		APIKey  string        `envconfig:"OPENROUTER_API_KEY"`
		BaseURL string        `envconfig:"OPENROUTER_BASE_URL"`
		Model   string        `envconfig:"OPENROUTER_MODEL" default:"anthropic/claude-sonnet-4"`
		Timeout time.Duration `envconfig:"OPENROUTER_TIMEOUT" default:"60s"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Telegram struct {
		Token     string `envconfig:"TG_BOT_TOKEN"`
		AdminChat int64  `envconfig:"TG_ADMIN_CHAT_ID"`
	} `envconfig:""`

	Solana struct {
		RPCURL     string  `envconfig:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
		WalletKey  string  `envconfig:"SOLANA_PRIVATE_KEY"`
		TokenMint  string  `envconfig:"TOKEN_CA"`
		TokenName  string  `envconfig:"TOKEN_NAME" default:"CLUD"`
		MinReserve float64 `envconfig:"TREASURY_MIN_RESERVE_SOL" default:"1.5"`
		MinBuy     float64 `envconfig:"TREASURY_MIN_BUY_SOL" default:"0.1"`
	} `envconfig:""`

	Site struct {
		APIURL  string `envconfig:"SITE_API_URL"`
		APIKey  string `envconfig:"SITE_API_KEY"`
		BaseURL string `envconfig:"SITE_BASE_URL" default:"https://clud.wtf"`
	} `envconfig:""`

	Posting struct {
		MinGap       time.Duration `envconfig:"POST_MIN_GAP" default:"3m"`
		AutopostEach time.Duration `envconfig:"AUTOPOST_INTERVAL" default:"15m"`
		MentionsEach time.Duration `envconfig:"MENTIONS_POLL_INTERVAL" default:"20s"`
		EngageEach   time.Duration `envconfig:"ENGAGE_INTERVAL" default:"20m"`
		QuoteEach    time.Duration `envconfig:"QUOTE_INTERVAL" default:"30m"`
		PipelineEach time.Duration `envconfig:"PIPELINE_INTERVAL" default:"45m"`
		TreasuryEach time.Duration `envconfig:"TREASURY_INTERVAL" default:"10m"`
		ReportEach   time.Duration `envconfig:"REPORT_INTERVAL" default:"24h"`
		QueueSize    int           `envconfig:"POST_QUEUE_SIZE" default:"50"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
