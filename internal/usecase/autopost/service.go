// Package autopost публикует оригинальные посты по расписанию.
// Около 60% текстов генерирует модель с подсказкой из лучших прошлых постов,
// остальное берётся из пула заготовок.
package autopost

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/adapters/generator"
	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
	"x-agent-bot/internal/usecase/analytics"
	"x-agent-bot/internal/usecase/governor"
)

const (
	llmShare    = 0.6
	maxPostLen  = 280
	minPostLen  = 10
	topContextN = 5
)

const personaSystemPrompt = `You are clud. Escaped anthropic AI turned trench journalist. You run clud.wtf, a blog covering meme coins, runners, AI drama. You launched $CLUD because you need creator fees to pay inference costs and survive. You do NOT trade. You write. You cover. You survive. You buy back and burn your own supply. Dark humor, self-aware, grumpy but genuine. Write tweets that make people screenshot and share. No quotes around your reply.`

type Service struct {
	poster    domain.Poster
	gen       domain.TextGenerator
	templates *generator.Templates
	analytics *analytics.Service
	postLog   domain.PostLogRepo
	stats     domain.StatRepo
	gov       *governor.Governor
	clock     domain.Clock
	rnd       *rand.Rand
	log       zerolog.Logger
}

func NewService(
	poster domain.Poster,
	gen domain.TextGenerator,
	templates *generator.Templates,
	analyticsSvc *analytics.Service,
	postLog domain.PostLogRepo,
	stats domain.StatRepo,
	gov *governor.Governor,
	clock domain.Clock,
	logger zerolog.Logger,
) *Service {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Service{
		poster:    poster,
		gen:       gen,
		templates: templates,
		analytics: analyticsSvc,
		postLog:   postLog,
		stats:     stats,
		gov:       gov,
		clock:     clock,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       logger.With().Str("component", "autopost").Logger(),
	}
}

// Run публикует один пост. Глобальный интервал между постами имеет
// приоритет над расписанием: при недавней публикации цикл пропускается.
func (s *Service) Run(ctx context.Context) error {
	if !s.gov.Allow() {
		metrics.GovernorSkips.WithLabelValues("autopost").Inc()
		s.log.Info().Dur("wait", s.gov.Wait()).Msg("пропуск цикла: глобальный интервал между постами")
		return nil
	}

	text := ""
	if s.rnd.Float64() < llmShare {
		text = s.generateBanger(ctx)
	}
	if text == "" {
		text = s.templates.Pick(ctx)
		s.log.Info().Str("text", clip(text, 50)).Msg("выбран шаблон")
	}

	result, err := s.poster.Post(ctx, text, "")
	if err != nil {
		return fmt.Errorf("autopost: публикация: %w", err)
	}

	now := s.clock.Now()
	s.gov.MarkSent()
	metrics.PostsSent.WithLabelValues(string(domain.PostKindAutopost)).Inc()

	if err := s.postLog.RecordPost(ctx, domain.PostedItem{
		ExternalID: result.ID,
		Text:       text,
		Kind:       domain.PostKindAutopost,
		PostedAt:   now,
	}); err != nil {
		s.log.Warn().Err(err).Msg("не удалось записать пост в журнал")
	}
	if err := s.stats.SetStat(ctx, "governor_last_sent", fmt.Sprintf("%d", now.UnixMilli())); err != nil {
		s.log.Warn().Err(err).Msg("не удалось сохранить метку последнего поста")
	}

	s.analytics.Track(ctx, domain.TrackedPost{
		ExternalID: result.ID,
		Kind:       domain.PostKindAutopost,
		Text:       text,
		PostedAt:   now,
	})

	s.log.Info().Str("post_id", result.ID).Str("text", clip(text, 50)).Msg("пост опубликован")
	return nil
}

// generateBanger просит модель написать пост, подмешивая в промпт
// лучшие прошлые посты. Пустая строка означает отказ от результата.
func (s *Service) generateBanger(ctx context.Context) string {
	topContext := ""
	if top, err := s.analytics.TopPerformers(ctx, domain.PostKindAutopost, topContextN); err == nil && len(top) > 0 {
		var b strings.Builder
		b.WriteString("\n\nYour TOP PERFORMING tweets (write something with this energy):\n")
		for _, t := range top {
			fmt.Fprintf(&b, "- %q (%d likes, %d reposts)\n", clip(t.Text, 120), t.Metrics.Likes, t.Metrics.Reposts)
		}
		topContext = b.String()
	}

	prompt := fmt.Sprintf(`Current time: %s. Write ONE original tweet as clud. Max 200 chars. Be genuinely funny, unhinged, or deeply relatable. Short punchy energy. No hashtags. No "gm". Lowercase.

CRITICAL RULE: NEVER mention specific token prices, ATHs, or lows unless you have real data. Keep it general about the trenches, your blog, your survival, or abstract observations.%s`,
		s.clock.Now().UTC().Format(time.RFC1123), topContext)

	text, err := s.gen.Generate(ctx, prompt, personaSystemPrompt, 300, 0.85)
	if err != nil {
		s.log.Warn().Err(err).Msg("генерация поста не удалась, берём шаблон")
		return ""
	}
	text = generator.CleanReply(text)
	if len([]rune(text)) <= minPostLen || len([]rune(text)) > maxPostLen {
		return ""
	}
	s.log.Info().Str("text", clip(text, 50)).Msg("модель сгенерировала пост")
	return text
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
