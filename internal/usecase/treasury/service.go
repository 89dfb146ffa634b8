// Package treasury следит за балансом кошелька и сжигает излишек:
// всё сверх резерва свопается в собственный токен с зачислением на
// инсинератор. Единственная разрешённая операция кошелька.
package treasury

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
	"x-agent-bot/internal/usecase/governor"
)

const (
	totalBoughtKey = "treasury_total_bought"
	burnOnceTTL    = 30 * time.Minute
)

type Service struct {
	wallet     domain.Wallet
	poster     domain.Poster
	postLog    domain.PostLogRepo
	stats      domain.StatRepo
	notifier   domain.Notifier
	cache      domain.Cache
	gov        *governor.Governor
	minReserve float64
	minBuy     float64
	clock      domain.Clock
	log        zerolog.Logger
}

func NewService(
	wallet domain.Wallet,
	poster domain.Poster,
	postLog domain.PostLogRepo,
	stats domain.StatRepo,
	notifier domain.Notifier,
	cache domain.Cache,
	gov *governor.Governor,
	minReserve, minBuy float64,
	clock domain.Clock,
	logger zerolog.Logger,
) *Service {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Service{
		wallet:     wallet,
		poster:     poster,
		postLog:    postLog,
		stats:      stats,
		notifier:   notifier,
		cache:      cache,
		gov:        gov,
		minReserve: minReserve,
		minBuy:     minBuy,
		clock:      clock,
		log:        logger.With().Str("component", "treasury").Logger(),
	}
}

// Run проверяет баланс и при достаточном излишке выполняет покупку со
// сжиганием. Redis-замок не даёт повторить сжигание при перекрывающихся
// запусках или быстром рестарте.
func (s *Service) Run(ctx context.Context) error {
	balance, err := s.wallet.Balance(ctx)
	if err != nil {
		return fmt.Errorf("treasury: баланс кошелька: %w", err)
	}
	surplus := balance.SOL - s.minReserve
	s.log.Info().Float64("sol", balance.SOL).Float64("surplus", surplus).Msg("проверка казначейства")

	if surplus < s.minBuy {
		return nil
	}

	err = s.cache.Once("treasury:burn", burnOnceTTL, func() error {
		return s.buyAndBurn(ctx, surplus)
	})
	if err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	return nil
}

func (s *Service) buyAndBurn(ctx context.Context, amountSOL float64) error {
	signature, err := s.wallet.BuyAndBurn(ctx, amountSOL)
	if err != nil {
		s.notify(ctx, fmt.Sprintf("⚠️ Казначейство: покупка со сжиганием не удалась: %v", err))
		return fmt.Errorf("покупка со сжиганием: %w", err)
	}
	s.log.Info().Float64("sol", amountSOL).Str("signature", signature).Msg("излишек сожжён")

	total := s.bumpTotal(ctx, amountSOL)
	s.notify(ctx, fmt.Sprintf("🔥 Казначейство: сожжён излишек %.3f SOL (всего %.3f SOL)\nhttps://solscan.io/tx/%s", amountSOL, total, signature))
	s.announce(ctx, amountSOL, signature)
	return nil
}

// announce публикует пост о сжигании. Пост необязателен и подчиняется
// глобальному интервалу: при недавней публикации анонс просто пропускается.
func (s *Service) announce(ctx context.Context, amountSOL float64, signature string) {
	if !s.gov.Allow() {
		metrics.GovernorSkips.WithLabelValues("treasury").Inc()
		s.log.Info().Msg("анонс сжигания пропущен: глобальный интервал между постами")
		return
	}
	text := fmt.Sprintf("🔥 BUY & BURN 🔥\n\nbought $CLUD with %.3f SOL from creator fees and sent it straight to the incinerator\n\nclud eats its own supply.\n\ntx: https://solscan.io/tx/%s", amountSOL, signature)

	result, err := s.poster.Post(ctx, text, "")
	if err != nil {
		s.log.Warn().Err(err).Msg("анонс сжигания не опубликован")
		return
	}
	s.gov.MarkSent()
	metrics.PostsSent.WithLabelValues(string(domain.PostKindBurn)).Inc()
	if err := s.stats.SetStat(ctx, "governor_last_sent", strconv.FormatInt(s.clock.Now().UnixMilli(), 10)); err != nil {
		s.log.Warn().Err(err).Msg("не удалось сохранить метку последнего поста")
	}
	if err := s.postLog.RecordPost(ctx, domain.PostedItem{
		ExternalID: result.ID,
		Text:       text,
		Kind:       domain.PostKindBurn,
		PostedAt:   s.clock.Now(),
	}); err != nil {
		s.log.Warn().Err(err).Msg("не удалось записать анонс в журнал")
	}
}

func (s *Service) bumpTotal(ctx context.Context, amountSOL float64) float64 {
	raw, err := s.stats.GetStat(ctx, totalBoughtKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("чтение итога казначейства не удалось")
	}
	total, _ := strconv.ParseFloat(raw, 64)
	total += amountSOL
	if err := s.stats.SetStat(ctx, totalBoughtKey, strconv.FormatFloat(total, 'f', -1, 64)); err != nil {
		s.log.Warn().Err(err).Msg("сохранение итога казначейства не удалось")
	}
	return total
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.log.Warn().Err(err).Msg("уведомление оператору не отправлено")
	}
}
