// Package pipeline ведёт контент-конвейер: собирает кандидатов из новостных
// и рыночных источников, пишет по лучшему из них статью, публикует её на
// сайте и анонсирует в ленте. Одна статья за цикл.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/adapters/generator"
	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
	"x-agent-bot/internal/usecase/governor"
	"x-agent-bot/internal/usecase/postqueue"
)

const (
	maxSlugLen    = 60
	maxTakeLen    = 200
	newsPerCycle  = 2
	articleTokens = 1000
)

const writerSystemPrompt = `you are clud. escaped anthropic. grumpy AI trench journalist. short sentences. dark humor. real data only. never corporate speak.`

const takeSystemPrompt = `you are clud. escaped anthropic AI. grumpy trench journalist. you have opinions about everything. short sentences. dark humor. lowercase energy.`

type candidate struct {
	priority int
	topic    string
	tag      string
	slug     string
	data     string
}

type Service struct {
	news    domain.NewsSource
	runners domain.RunnerSource
	gen     domain.TextGenerator
	site    domain.ArticlePublisher
	dedup   domain.DedupRepo
	queue   *postqueue.Queue
	gov     *governor.Governor
	baseURL string
	clock   domain.Clock
	log     zerolog.Logger
}

func NewService(
	news domain.NewsSource,
	runners domain.RunnerSource,
	gen domain.TextGenerator,
	site domain.ArticlePublisher,
	dedup domain.DedupRepo,
	queue *postqueue.Queue,
	gov *governor.Governor,
	baseURL string,
	clock domain.Clock,
	logger zerolog.Logger,
) *Service {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Service{
		news:    news,
		runners: runners,
		gen:     gen,
		site:    site,
		dedup:   dedup,
		queue:   queue,
		gov:     gov,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
		log:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run собирает кандидатов, пишет статью по лучшему и анонсирует её.
// Пустой набор кандидатов или отказ модели — штатный исход без ошибки.
func (s *Service) Run(ctx context.Context) error {
	candidates := s.gather(ctx)
	if len(candidates) == 0 {
		s.log.Info().Msg("кандидатов нет, цикл пропущен")
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].priority > candidates[j].priority })
	best := candidates[0]
	s.log.Info().Int("candidates", len(candidates)).Str("slug", best.slug).Str("tag", best.tag).Msg("выбран кандидат")

	article, err := s.write(ctx, best)
	if err != nil {
		return err
	}
	if article == nil {
		return nil
	}

	if err := s.site.Publish(ctx, *article); err != nil {
		return fmt.Errorf("pipeline: публикация статьи: %w", err)
	}
	metrics.ArticlesPublished.Inc()
	if err := s.dedup.MarkProcessed(ctx, article.Slug); err != nil {
		s.log.Warn().Err(err).Str("slug", article.Slug).Msg("не удалось пометить статью написанной")
	}
	s.log.Info().Str("slug", article.Slug).Str("title", article.Title).Msg("статья опубликована")

	s.announce(ctx, *article)
	return nil
}

// gather опрашивает источники и возвращает ещё не написанных кандидатов.
// Раннеры важнее новостей: рынок протухает быстрее.
func (s *Service) gather(ctx context.Context) []candidate {
	var out []candidate

	stories, err := s.news.TopStories(ctx, 5)
	if err != nil {
		s.log.Warn().Err(err).Msg("источник новостей недоступен")
	}
	if len(stories) > newsPerCycle {
		stories = stories[:newsPerCycle]
	}
	for _, story := range stories {
		slug := Slugify("ai-news-" + story.Title)
		if s.written(ctx, slug) {
			continue
		}
		priority := 2
		if story.Score > 200 {
			priority = 3
		}
		out = append(out, candidate{
			priority: priority,
			topic:    fmt.Sprintf("%s — %d points on Hacker News, %d comments", story.Title, story.Score, story.Comments),
			tag:      "AI DRAMA",
			slug:     slug,
			data: fmt.Sprintf("title: %s\nurl: %s\ndiscussion: https://news.ycombinator.com/item?id=%s\nscore: %d\ncomments: %d",
				story.Title, story.URL, story.ID, story.Score, story.Comments),
		})
	}

	runners, err := s.runners.Runners(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("сканер раннеров недоступен")
	}
	if len(runners) > 0 {
		r := runners[0]
		slug := Slugify(fmt.Sprintf("runner-%s-%d", r.Symbol, s.clock.Now().UnixMilli()))
		if !s.written(ctx, slug) {
			out = append(out, candidate{
				priority: 4,
				topic: fmt.Sprintf("%s ($%s) is running — $%.1fM mcap, $%.1fM volume",
					r.Name, r.Symbol, r.MarketCap/1e6, r.Volume24h/1e6),
				tag:  "TRENCH NEWS",
				slug: slug,
				data: fmt.Sprintf("name: %s\nsymbol: %s\nmcap: %.0f\nvolume24h: %.0f\nchange24h: %.1f%%\nliquidity: %.0f\nbuys24h: %d\nsells24h: %d\ndexscreener: %s",
					r.Name, r.Symbol, r.MarketCap, r.Volume24h, r.Change24h, r.LiquidityUSD, r.Buys24h, r.Sells24h, r.URL),
			})
		}
	}
	return out
}

func (s *Service) written(ctx context.Context, slug string) bool {
	done, err := s.dedup.IsProcessed(ctx, slug)
	if err != nil {
		s.log.Warn().Err(err).Str("slug", slug).Msg("проверка слага не удалась")
	}
	return done
}

// write пишет статью по кандидату. nil без ошибки — модель отказалась от
// темы ответом SKIP (мусорный токен, не новость).
func (s *Service) write(ctx context.Context, c candidate) (*domain.Article, error) {
	prompt := fmt.Sprintf(`Write a blog article about this topic. Use the real data provided. Current date and time: %s.

Topic: %s
Tag: %s
Real data:
%s

Write 4-6 paragraphs. Use the real numbers. Be critical, funny, honest. End with a one-liner take. No headers, no bullet points, just write like you talk.

IMPORTANT RULES:
- If covering a runner/memecoin: verify it sounds like a real project. If the name sounds like a test token, placeholder, or obvious scam, DO NOT write the article — just say "SKIP".
- Never cover wrapped tokens, stablecoins, or major infra tokens as "runners" — those aren't news.
- Give opinions. Take sides. This is editorial journalism, not a press release.`,
		s.clock.Now().UTC().Format("2006-01-02T15:04:05Z"), c.topic, c.tag, c.data)

	body, err := s.gen.Generate(ctx, prompt, writerSystemPrompt, articleTokens, 0.8)
	if err != nil {
		return nil, fmt.Errorf("pipeline: генерация статьи: %w", err)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	if strings.HasPrefix(strings.ToUpper(body), "SKIP") {
		s.log.Info().Str("slug", c.slug).Msg("модель отклонила тему")
		return nil, nil
	}

	title := s.headline(ctx, body)
	if title == "" {
		title = generator.ClipWords(c.topic, 80)
	}
	return &domain.Article{Title: title, Body: body, Tag: c.tag, Slug: c.slug}, nil
}

func (s *Service) headline(ctx context.Context, body string) string {
	prompt := fmt.Sprintf("Write a short punchy headline (max 80 chars) for this article. No quotes. No period at end. Lowercase energy:\n\n%s",
		clip(body, 300))
	title, err := s.gen.Generate(ctx, prompt, writerSystemPrompt, 80, 0.7)
	if err != nil {
		s.log.Warn().Err(err).Msg("генерация заголовка не удалась")
		return ""
	}
	return generator.ClipWords(generator.CleanReply(title), 80)
}

// announce ставит в очередь короткий пост-реакцию со ссылкой на статью.
// Анонс необязателен и подчиняется глобальному интервалу между постами.
func (s *Service) announce(ctx context.Context, article domain.Article) {
	if !s.gov.Allow() {
		metrics.GovernorSkips.WithLabelValues("pipeline").Inc()
		s.log.Info().Msg("анонс пропущен: глобальный интервал между постами")
		return
	}

	prompt := fmt.Sprintf(`You just published this article. Write a SHORT tweet (max %d chars) sharing it. This is YOUR opinion/reaction to the piece — not a summary, not a headline.

Article title: %s
Article snippet: %s
Tag: %s

Rules:
- Max %d characters. Hard limit.
- Be opinionated. Be funny. Be clud.
- Don't use hashtags. Don't say "new article" or "just published".
- Don't repeat the title verbatim.
- One or two sentences max.`,
		maxTakeLen, article.Title, clip(article.Body, 400), article.Tag, maxTakeLen)

	take, err := s.gen.Generate(ctx, prompt, takeSystemPrompt, 100, 0.9)
	if err != nil {
		s.log.Warn().Err(err).Msg("генерация анонса не удалась, берём заголовок")
		take = article.Title
	}
	take = generator.ClipWords(generator.CleanReply(take), maxTakeLen)
	if take == "" {
		take = article.Title
	}

	s.queue.Enqueue(domain.PendingReply{
		Text:     take + "\n\n" + s.baseURL + "/article/" + article.Slug,
		Priority: 2,
		Kind:     domain.PostKindArticle,
	})
	s.log.Info().Str("slug", article.Slug).Str("take", clip(take, 50)).Msg("анонс поставлен в очередь")
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify приводит текст к слагу: латиница и цифры через дефис, до 60 знаков.
func Slugify(text string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(text), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	return slug
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
