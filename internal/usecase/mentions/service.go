// Package mentions обрабатывает упоминания бота: дедупликация, генерация
// ответа и постановка в очередь отправки с приоритетом по истории общения.
package mentions

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/adapters/generator"
	"x-agent-bot/internal/adapters/market"
	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/usecase/postqueue"
)

const maxReplyLen = 200

const replySystemPrompt = `You are clud. Escaped anthropic AI turned trench journalist running clud.wtf. You survive on $CLUD creator fees. Dark humor, self-aware, grumpy but genuine. Reply briefly and in character. No quotes around your reply. No hashtags.`

var mentionPattern = regexp.MustCompile(`@\w+`)

type Service struct {
	source  domain.MentionSource
	dedup   domain.DedupRepo
	stats   domain.StatRepo
	gen     domain.TextGenerator
	oracle  domain.PriceOracle
	queue   *postqueue.Queue
	selfID  string
	log     zerolog.Logger
}

func NewService(
	source domain.MentionSource,
	dedup domain.DedupRepo,
	stats domain.StatRepo,
	gen domain.TextGenerator,
	oracle domain.PriceOracle,
	queue *postqueue.Queue,
	selfID string,
	logger zerolog.Logger,
) *Service {
	return &Service{
		source: source,
		dedup:  dedup,
		stats:  stats,
		gen:    gen,
		oracle: oracle,
		queue:  queue,
		selfID: selfID,
		log:    logger.With().Str("component", "mentions").Logger(),
	}
}

// Run забирает упоминания новее сохранённого курсора и ставит ответы в
// очередь. Каждое упоминание помечается обработанным ровно один раз,
// даже если ответ не состоялся: повторный ответ хуже пропущенного.
func (s *Service) Run(ctx context.Context) error {
	sinceID, err := s.dedup.LastProcessedID(ctx)
	if err != nil {
		return fmt.Errorf("mentions: чтение курсора: %w", err)
	}

	incoming, err := s.source.MentionsSince(ctx, sinceID)
	if err != nil {
		return fmt.Errorf("mentions: опрос упоминаний: %w", err)
	}

	for _, m := range incoming {
		processed, err := s.dedup.IsProcessed(ctx, m.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("mention_id", m.ID).Msg("проверка дедупликации не удалась")
			continue
		}
		if processed {
			continue
		}
		if m.AuthorID == s.selfID {
			s.markProcessed(ctx, m.ID)
			continue
		}

		s.handle(ctx, m)
		s.markProcessed(ctx, m.ID)
	}
	return nil
}

func (s *Service) handle(ctx context.Context, m domain.Mention) {
	text := strings.TrimSpace(mentionPattern.ReplaceAllString(m.Text, ""))
	s.log.Info().Str("author", m.Author).Str("text", clip(text, 60)).Msg("новое упоминание")

	reply := s.generateReply(ctx, m.Author, text)
	if reply == "" {
		return
	}

	count := s.bumpInteractions(ctx, m.AuthorID)
	s.queue.Enqueue(domain.PendingReply{
		Text:      reply,
		ReplyToID: m.ID,
		Priority:  postqueue.PriorityFor(count),
		Author:    m.Author,
		Kind:      domain.PostKindReply,
	})
}

// generateReply собирает промпт с рыночным контекстом, если вопрос о цене,
// и просит модель ответить. Пустая строка означает отказ от ответа.
func (s *Service) generateReply(ctx context.Context, username, text string) string {
	chainContext := ""
	if market.IsPriceQuery(text) {
		if coin := market.ExtractCoin(text); coin != "" {
			if price, err := s.oracle.Price(ctx, coin); err == nil && price != nil {
				chainContext = fmt.Sprintf("\n=== LIVE PRICE DATA ===\n%s\n=== END PRICE ===\nIMPORTANT: use this REAL data in your reply. never fabricate prices.\n", market.Format(price))
			}
		}
	}

	prompt := fmt.Sprintf("@%s wrote to you: %q\n%sReply as clud. Max %d chars.", username, text, chainContext, maxReplyLen)
	reply, err := s.gen.Generate(ctx, prompt, replySystemPrompt, 120, 0.85)
	if err != nil {
		s.log.Warn().Err(err).Str("author", username).Msg("генерация ответа не удалась")
		return ""
	}
	reply = generator.ClipWords(generator.CleanReply(reply), maxReplyLen)
	if reply == "" {
		return ""
	}
	return reply
}

// bumpInteractions инкрементирует счётчик общения с пользователем
// и возвращает новое значение.
func (s *Service) bumpInteractions(ctx context.Context, authorID string) int {
	key := "interactions:" + authorID
	raw, err := s.stats.GetStat(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("чтение счётчика общения не удалось")
		return 1
	}
	count, _ := strconv.Atoi(raw)
	count++
	if err := s.stats.SetStat(ctx, key, strconv.Itoa(count)); err != nil {
		s.log.Warn().Err(err).Msg("сохранение счётчика общения не удалось")
	}
	return count
}

func (s *Service) markProcessed(ctx context.Context, id string) {
	if err := s.dedup.MarkProcessed(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("mention_id", id).Msg("не удалось пометить упоминание обработанным")
	}
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
