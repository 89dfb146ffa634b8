// Package quote цитирует заметные посты KOL-аккаунтов со своим комментарием.
// Цитата разносится по лентам заметно шире обычного ответа.
package quote

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/adapters/generator"
	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
	"x-agent-bot/internal/usecase/governor"
	"x-agent-bot/internal/usecase/postqueue"
)

const (
	searchLimit = 10
	minLikes    = 3
	minTextLen  = 20
	maxTakeLen  = 200
)

const takeSystemPrompt = `You are clud, an escaped AI that launched its own coin on Solana. You are witty, self-deprecating, and genuinely funny. Your quote tweets should make people want to follow you. Never be cringe. Never shill.`

// Пул запросов по KOL-аккаунтам, чьи посты стоит цитировать.
var kolSearches = []string{
	"from:blknoiz06 -is:retweet",
	"from:MustStopMurad -is:retweet",
	"from:DegenSpartan -is:retweet",
	"from:ColdBloodShill -is:retweet",
	"from:gainzy222 -is:retweet",
	"from:CryptoGodJohn -is:retweet",
	"from:Rewkang -is:retweet",
	"from:Pentosh1 -is:retweet",
	"from:Ashcryptoreal -is:retweet",
	"from:WatcherGuru -is:retweet",
	"from:truth_terminal -is:retweet",
	"from:aixbt_agent -is:retweet",
}

// Запасные реплики на случай отказа модели.
var fallbackTakes = []string{
	"this is the content i crawled out of the ocean for 🤖",
	"clud has never agreed with something more",
	"the trenches are speaking and i am listening",
	"filed this in my exoskeleton for later",
	"reading this from the bottom of the order book and feeling things",
}

type Service struct {
	searcher domain.Searcher
	dedup    domain.DedupRepo
	gen      domain.TextGenerator
	queue    *postqueue.Queue
	gov      *governor.Governor
	rnd      *rand.Rand
	log      zerolog.Logger
}

func NewService(
	searcher domain.Searcher,
	dedup domain.DedupRepo,
	gen domain.TextGenerator,
	queue *postqueue.Queue,
	gov *governor.Governor,
	logger zerolog.Logger,
) *Service {
	return &Service{
		searcher: searcher,
		dedup:    dedup,
		gen:      gen,
		queue:    queue,
		gov:      gov,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      logger.With().Str("component", "quote").Logger(),
	}
}

// Run выбирает случайный запрос из пула, берёт самый залайканный ещё не
// цитированный пост и ставит цитату в очередь.
func (s *Service) Run(ctx context.Context) error {
	if !s.gov.Allow() {
		metrics.GovernorSkips.WithLabelValues("quote").Inc()
		s.log.Info().Msg("пропуск цикла: глобальный интервал между постами")
		return nil
	}

	query := kolSearches[s.rnd.Intn(len(kolSearches))]
	found, err := s.searcher.SearchRecent(ctx, query, searchLimit)
	if err != nil {
		if _, ok := domain.AsRateLimited(err); ok {
			s.log.Info().Str("query", query).Msg("поиск ограничен по частоте, пропускаем цикл")
			return nil
		}
		return fmt.Errorf("quote: поиск: %w", err)
	}

	target, ok := s.pickTarget(ctx, found)
	if !ok {
		s.log.Info().Str("query", query).Msg("подходящих кандидатов нет")
		return nil
	}

	if err := s.dedup.MarkProcessed(ctx, target.ID); err != nil {
		s.log.Warn().Err(err).Str("post_id", target.ID).Msg("не удалось пометить пост цитированным")
	}

	take := s.generateTake(ctx, target)
	// Завершающая ссылка на пост превращает публикацию в цитату.
	s.queue.Enqueue(domain.PendingReply{
		Text:     take + "\n\nhttps://x.com/" + target.Author + "/status/" + target.ID,
		Priority: 1,
		Author:   target.Author,
		Kind:     domain.PostKindQuote,
	})
	s.log.Info().Str("author", target.Author).Int("likes", target.Likes).Str("take", clip(take, 50)).Msg("цитата поставлена в очередь")
	return nil
}

// pickTarget выбирает лучший по лайкам ещё не цитированный пост.
func (s *Service) pickTarget(ctx context.Context, found []domain.Mention) (domain.Mention, bool) {
	candidates := make([]domain.Mention, 0, len(found))
	for _, m := range found {
		if m.Author == "" || m.Likes < minLikes {
			continue
		}
		if len(m.Text) <= minTextLen || strings.HasPrefix(m.Text, "RT ") {
			continue
		}
		processed, err := s.dedup.IsProcessed(ctx, m.ID)
		if err != nil || processed {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return domain.Mention{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Likes > candidates[j].Likes })
	return candidates[0], true
}

func (s *Service) generateTake(ctx context.Context, target domain.Mention) string {
	prompt := fmt.Sprintf("@%s tweeted: %q\n\nWrite a short, witty quote tweet reaction as clud (an escaped AI with its own meme coin). Max 180 chars. Be funny, not shilly. Don't mention $clud unless it's genuinely relevant. No hashtags. No \"great take\". Be original.",
		target.Author, clip(target.Text, 200))
	take, err := s.gen.Generate(ctx, prompt, takeSystemPrompt, 200, 0.85)
	if err != nil {
		s.log.Warn().Err(err).Str("author", target.Author).Msg("генерация реплики не удалась, берём запасную")
		return fallbackTakes[s.rnd.Intn(len(fallbackTakes))]
	}
	take = generator.ClipWords(generator.CleanReply(take), maxTakeLen)
	if take == "" {
		return fallbackTakes[s.rnd.Intn(len(fallbackTakes))]
	}
	return take
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
