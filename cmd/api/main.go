package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"x-agent-bot/internal/adapters/repo"
	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/config"
	"x-agent-bot/internal/infra/db"
	httpinfra "x-agent-bot/internal/infra/http"
	"x-agent-bot/internal/infra/metrics"
	"x-agent-bot/internal/usecase/analytics"
)

func main() {
	cfg := config.Load()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	analyticsSvc := analytics.NewService(nil, repoAdapter, repoAdapter, log.With().Str("component", "analytics").Logger(), analytics.Options{})

	server := httpinfra.NewServer(log.With().Str("component", "http").Logger())

	server.Router.Get("/api/v1/performance/top", func(w http.ResponseWriter, r *http.Request) {
		kind := domain.PostKind(r.URL.Query().Get("kind"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 50 {
			limit = 10
		}
		top, err := analyticsSvc.TopPerformers(r.Context(), kind, limit)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]any{"items": top})
	})

	server.Router.Get("/api/v1/performance/breakdown", func(w http.ResponseWriter, r *http.Request) {
		breakdown, err := analyticsSvc.Breakdown(r.Context())
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]any{"kinds": breakdown})
	})

	server.Router.Get("/api/v1/report", func(w http.ResponseWriter, r *http.Request) {
		report, err := analyticsSvc.Report(r.Context())
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]any{"report": report})
	})

	server.Router.Get("/api/v1/stats/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		value, err := repoAdapter.GetStat(r.Context(), key)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]string{"key": key, "value": value})
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("api: остановка сервера")
		}
	}()

	addr := ":" + strconv.Itoa(cfg.Port)
	if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("api: сервер завершился с ошибкой")
	}
	log.Info().Msg("api: остановлен")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("api: сериализация ответа")
	}
}

func httpError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("api: обработка запроса")
	http.Error(w, "internal error", http.StatusInternalServerError)
}
