package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	QueuePosted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "post_queue_ok_total",
		Help: "Успешно отправленные из очереди посты",
	})
	QueueFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "post_queue_fail_total",
		Help: "Неудачные попытки отправки из очереди",
	})
	QueueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "post_queue_dropped_total",
		Help: "Посты, выброшенные из очереди (переполнение или устаревание)",
	})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "post_queue_depth",
		Help: "Текущая длина очереди постов",
	})

	GovernorSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "governor_skips_total",
		Help: "Циклы задач, пропущенные из-за глобального интервала постинга",
	}, []string{"job"})

	PostsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_sent_total",
		Help: "Отправленные посты по типам",
	}, []string{"kind"})

	EvaluationsDone = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evaluations_done_total",
		Help: "Завершённые отложенные оценки постов",
	})
	EvaluationsLost = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evaluations_lost_total",
		Help: "Оценки, отброшенные из-за недоступных метрик",
	})

	ArticlesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "articles_published_total",
		Help: "Статьи, опубликованные контент-конвейером",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		QueuePosted,
		QueueFailed,
		QueueDropped,
		QueueDepth,
		GovernorSkips,
		PostsSent,
		EvaluationsDone,
		EvaluationsLost,
		ArticlesPublished,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}
