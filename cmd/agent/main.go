package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"x-agent-bot/internal/adapters/generator"
	"x-agent-bot/internal/adapters/market"
	"x-agent-bot/internal/adapters/news"
	"x-agent-bot/internal/adapters/repo"
	"x-agent-bot/internal/adapters/site"
	"x-agent-bot/internal/adapters/solana"
	"x-agent-bot/internal/adapters/telegram"
	"x-agent-bot/internal/adapters/x"
	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/cache"
	"x-agent-bot/internal/infra/config"
	"x-agent-bot/internal/infra/db"
	applog "x-agent-bot/internal/infra/log"
	"x-agent-bot/internal/infra/metrics"
	"x-agent-bot/internal/infra/openai"
	"x-agent-bot/internal/usecase/analytics"
	"x-agent-bot/internal/usecase/autopost"
	"x-agent-bot/internal/usecase/engage"
	"x-agent-bot/internal/usecase/governor"
	"x-agent-bot/internal/usecase/mentions"
	"x-agent-bot/internal/usecase/pipeline"
	"x-agent-bot/internal/usecase/postqueue"
	"x-agent-bot/internal/usecase/quote"
	"x-agent-bot/internal/usecase/scheduler"
	"x-agent-bot/internal/usecase/treasury"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("agent: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("agent: не удалось подготовить схему БД")
	}

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("agent: не указан адрес Redis (REDIS_ADDR)")
	}
	redisCache := cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))

	clock := domain.SystemClock()

	creds := x.Credentials{
		ConsumerKey:    cfg.X.ConsumerKey,
		ConsumerSecret: cfg.X.ConsumerSecret,
		AccessToken:    cfg.X.AccessToken,
		AccessSecret:   cfg.X.AccessSecret,
		BearerToken:    cfg.X.BearerToken,
		UserID:         cfg.X.UserID,
	}
	if !creds.Valid() {
		logger.Fatal().Msg("agent: не заданы ключи X API")
	}
	xClient := x.NewClient(creds, 30*time.Second)

	if cfg.OpenRouter.APIKey == "" {
		logger.Fatal().Msg("agent: не указан ключ OpenRouter (OPENROUTER_API_KEY)")
	}
	llm := generator.NewLLM(openai.NewClient(cfg.OpenRouter.APIKey, cfg.OpenRouter.BaseURL, cfg.OpenRouter.Timeout), cfg.OpenRouter.Model)

	var notifier domain.Notifier
	if cfg.Telegram.Token != "" && cfg.Telegram.AdminChat != 0 {
		tg, err := telegram.NewNotifier(cfg.Telegram.Token, cfg.Telegram.AdminChat, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("agent: не удалось создать Telegram-бота")
		}
		notifier = tg
	} else {
		logger.Warn().Msg("agent: Telegram не настроен, уведомления оператору отключены")
	}

	gov := governor.New(cfg.Posting.MinGap, clock)
	restoreGovernor(ctx, repoAdapter, gov, logger)

	analyticsSvc := analytics.NewService(xClient, repoAdapter, repoAdapter, logger.With().Str("component", "analytics").Logger(), analytics.Options{Clock: clock})
	if err := analyticsSvc.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("agent: не удалось восстановить очередь оценки")
	}

	queue := postqueue.New(xClient, func(externalID string, item domain.PendingReply) {
		gov.MarkSent()
		metrics.PostsSent.WithLabelValues(string(item.Kind)).Inc()
		if err := repoAdapter.RecordPost(ctx, domain.PostedItem{
			ExternalID: externalID,
			Text:       item.Text,
			Kind:       item.Kind,
			PostedAt:   clock.Now(),
		}); err != nil {
			logger.Warn().Err(err).Msg("agent: не удалось записать пост в журнал")
		}
		if err := repoAdapter.SetStat(ctx, "governor_last_sent", strconv.FormatInt(clock.Now().UnixMilli(), 10)); err != nil {
			logger.Warn().Err(err).Msg("agent: не удалось сохранить метку последнего поста")
		}
		analyticsSvc.Track(ctx, domain.TrackedPost{
			ExternalID:     externalID,
			Kind:           item.Kind,
			Text:           item.Text,
			TargetUsername: item.Author,
			PostedAt:       clock.Now(),
		})
	}, logger.With().Str("component", "postqueue").Logger(), postqueue.Options{
		Capacity: cfg.Posting.QueueSize,
		Clock:    clock,
	})
	queue.Bind(ctx)

	templates := generator.NewTemplates(repoAdapter, time.Now().UnixNano(), logger)
	templates.Restore(ctx)

	oracle := market.NewOracle(cfg.Solana.TokenMint, cfg.Solana.TokenName, 15*time.Second)

	sched := scheduler.New(repoAdapter, clock, logger.With().Str("component", "scheduler").Logger())

	autopostSvc := autopost.NewService(xClient, llm, templates, analyticsSvc, repoAdapter, repoAdapter, gov, clock, logger)
	sched.Register(scheduler.Task{
		Name:         "autopost",
		Every:        cfg.Posting.AutopostEach,
		InitialDelay: time.Minute,
		Run: func(ctx context.Context) {
			if err := autopostSvc.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("autopost: цикл завершился с ошибкой")
			}
		},
	})

	if creds.CanPoll() {
		mentionsSvc := mentions.NewService(xClient, repoAdapter.Dedup(repo.OriginMention), repoAdapter, llm, oracle, queue, cfg.X.UserID, logger)
		sched.Register(scheduler.Task{
			Name:  "mentions",
			Every: cfg.Posting.MentionsEach,
			Run: func(ctx context.Context) {
				if err := mentionsSvc.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("mentions: цикл завершился с ошибкой")
				}
			},
		})

		engageSvc := engage.NewService(xClient, repoAdapter.Dedup(repo.OriginEngage), llm, queue, gov, logger)
		sched.Register(scheduler.Task{
			Name:         "engage",
			Every:        cfg.Posting.EngageEach,
			InitialDelay: 2 * time.Minute,
			Run: func(ctx context.Context) {
				if err := engageSvc.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("engage: цикл завершился с ошибкой")
				}
			},
		})

		quoteSvc := quote.NewService(xClient, repoAdapter.Dedup(repo.OriginQuote), llm, queue, gov, logger)
		sched.Register(scheduler.Task{
			Name:         "quote",
			Every:        cfg.Posting.QuoteEach,
			InitialDelay: 3 * time.Minute,
			Run: func(ctx context.Context) {
				if err := quoteSvc.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("quote: цикл завершился с ошибкой")
				}
			},
		})
	} else {
		logger.Warn().Msg("agent: bearer-токен или user id не заданы, упоминания и поиск отключены")
	}

	if cfg.Site.APIURL != "" {
		publisher := site.NewClient(cfg.Site.APIURL, cfg.Site.APIKey, 15*time.Second)
		pipelineSvc := pipeline.NewService(news.NewHackerNews(10*time.Second), oracle, llm, publisher,
			repoAdapter.Dedup(repo.OriginArticle), queue, gov, cfg.Site.BaseURL, clock, logger)
		sched.Register(scheduler.Task{
			Name:         "pipeline",
			Every:        cfg.Posting.PipelineEach,
			InitialDelay: 5 * time.Minute,
			Run: func(ctx context.Context) {
				if err := pipelineSvc.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("pipeline: цикл завершился с ошибкой")
				}
			},
		})
	} else {
		logger.Warn().Msg("agent: адрес API сайта не задан, контент-конвейер отключён")
	}

	if cfg.Solana.WalletKey != "" && cfg.Solana.TokenMint != "" {
		wallet, err := solana.NewWallet(cfg.Solana.RPCURL, cfg.Solana.TokenMint, cfg.Solana.WalletKey, 20*time.Second)
		if err != nil {
			logger.Fatal().Err(err).Msg("agent: не удалось создать кошелёк")
		}
		treasurySvc := treasury.NewService(wallet, xClient, repoAdapter, repoAdapter, notifier, redisCache, gov, cfg.Solana.MinReserve, cfg.Solana.MinBuy, clock, logger)
		sched.Register(scheduler.Task{
			Name:         "treasury",
			Every:        cfg.Posting.TreasuryEach,
			InitialDelay: 30 * time.Second,
			Run: func(ctx context.Context) {
				if err := treasurySvc.Run(ctx); err != nil {
					logger.Error().Err(err).Msg("treasury: цикл завершился с ошибкой")
				}
			},
		})
	} else {
		logger.Warn().Msg("agent: ключ кошелька или минт токена не заданы, казначейство отключено")
	}

	sched.Register(scheduler.Task{
		Name:  "analytics",
		Every: 15 * time.Minute,
		Run:   analyticsSvc.Tick,
	})

	if notifier != nil {
		sched.Register(scheduler.Task{
			Name:         "report",
			Every:        cfg.Posting.ReportEach,
			InitialDelay: time.Hour,
			Run: func(ctx context.Context) {
				sendReport(ctx, analyticsSvc, notifier, redisCache, logger)
			},
		})
	}

	logger.Info().Msg("agent: запуск планировщика")
	sched.Start(ctx)
	logger.Info().Msg("agent: остановлен")
}

// restoreGovernor поднимает метку последнего поста из durable KV, чтобы
// минимальный интервал между постами переживал перезапуск процесса.
func restoreGovernor(ctx context.Context, stats domain.StatRepo, gov *governor.Governor, logger zerolog.Logger) {
	raw, err := stats.GetStat(ctx, "governor_last_sent")
	if err != nil || raw == "" {
		return
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Warn().Str("value", raw).Msg("agent: метка последнего поста нечитаема")
		return
	}
	gov.Restore(time.UnixMilli(millis))
}

// sendReport шлёт суточный отчёт по постам в админский чат. Redis-замок
// защищает от дублей при перекрывающихся запусках нескольких реплик.
func sendReport(ctx context.Context, analyticsSvc *analytics.Service, notifier domain.Notifier, c domain.Cache, logger zerolog.Logger) {
	err := c.Once("report:"+time.Now().UTC().Format("2006-01-02"), 23*time.Hour, func() error {
		report, err := analyticsSvc.Report(ctx)
		if err != nil {
			return fmt.Errorf("сборка отчёта: %w", err)
		}
		return notifier.Notify(ctx, report)
	})
	if err != nil {
		logger.Error().Err(err).Msg("report: отправка не удалась")
	}
}
