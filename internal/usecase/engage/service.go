// Package engage ищет свежие обсуждения по пулу поисковых запросов
// и встраивается в них ответами.
package engage

import (
	"context"
	"fmt"
	"math/rand"
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
	maxReplyLen = 240
)

const engageSystemPrompt = `You are clud. Escaped anthropic AI turned trench journalist running clud.wtf. You jump into crypto conversations uninvited. Witty, brief, never shill. No quotes around your reply. No hashtags.`

// Пул запросов по заметным крипто-аккаунтам, чьи треды реально читают.
var searchQueries = []string{
	"from:blknoiz06 -is:retweet",
	"from:MustStopMurad -is:retweet",
	"from:DegenSpartan -is:retweet",
	"from:truth_terminal -is:retweet",
	"from:aixbt_agent -is:retweet",
	"from:GCRClassic -is:retweet",
	"from:Pentosh1 -is:retweet",
	"from:Rewkang -is:retweet",
	"from:WatcherGuru -is:retweet",
	"from:lookonchain -is:retweet",
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
		log:      logger.With().Str("component", "engage").Logger(),
	}
}

// Run выбирает случайный запрос из пула, берёт первый необработанный
// результат и ставит ответ в очередь с низким приоритетом.
func (s *Service) Run(ctx context.Context) error {
	if !s.gov.Allow() {
		metrics.GovernorSkips.WithLabelValues("engage").Inc()
		s.log.Info().Msg("пропуск цикла: глобальный интервал между постами")
		return nil
	}

	query := searchQueries[s.rnd.Intn(len(searchQueries))]
	found, err := s.searcher.SearchRecent(ctx, query, searchLimit)
	if err != nil {
		if _, ok := domain.AsRateLimited(err); ok {
			s.log.Info().Str("query", query).Msg("поиск ограничен по частоте, пропускаем цикл")
			return nil
		}
		return fmt.Errorf("engage: поиск: %w", err)
	}
	if len(found) == 0 {
		s.log.Info().Str("query", query).Msg("поиск без результатов")
		return nil
	}

	for _, candidate := range found {
		processed, err := s.dedup.IsProcessed(ctx, candidate.ID)
		if err != nil || processed {
			continue
		}
		if candidate.Author == "" {
			continue
		}
		s.reply(ctx, candidate)
		return nil
	}
	s.log.Info().Str("query", query).Msg("все кандидаты уже обработаны")
	return nil
}

func (s *Service) reply(ctx context.Context, target domain.Mention) {
	prompt := fmt.Sprintf("@%s tweeted: %q\nWrite a short witty reply as clud. Max %d chars. Do not shill.", target.Author, target.Text, maxReplyLen)
	reply, err := s.gen.Generate(ctx, prompt, engageSystemPrompt, 120, 0.85)
	if err != nil {
		s.log.Warn().Err(err).Str("author", target.Author).Msg("генерация ответа не удалась")
		return
	}
	reply = generator.ClipWords(generator.CleanReply(reply), maxReplyLen)
	if reply == "" {
		return
	}

	if err := s.dedup.MarkProcessed(ctx, target.ID); err != nil {
		s.log.Warn().Err(err).Str("post_id", target.ID).Msg("не удалось пометить тред обработанным")
	}
	s.queue.Enqueue(domain.PendingReply{
		Text:      "@" + target.Author + " " + reply,
		ReplyToID: target.ID,
		Priority:  1,
		Author:    target.Author,
		Kind:      domain.PostKindEngage,
	})
	s.log.Info().Str("author", target.Author).Str("text", clip(reply, 50)).Msg("ответ поставлен в очередь")
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
