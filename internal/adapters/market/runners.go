package market

import (
	"context"
	"sort"
	"strings"

	"x-agent-bot/internal/domain"
)

// Пороги «настоящего» раннера: без капитализации, объёма и ликвидности
// одновременно токен в новости не попадает.
const (
	runnerMinMarketCap = 1_000_000
	runnerMinVolume    = 300_000
	runnerMinLiquidity = 50_000
	runnerLimit        = 10
)

// Обёртки, стейблы и инфраструктурные токены — не новость.
var runnerBlacklist = map[string]bool{
	"SOL": true, "WSOL": true, "USDC": true, "USDT": true,
	"RAY": true, "JUP": true, "BONK": true, "JTO": true, "PYTH": true,
	"WIF": true, "TEST": true, "TESTCOIN": true, "WRAPPED": true,
}

var runnerBlacklistNames = []string{"wrapped", "test", "bridged", "wormhole", "staked"}

var _ domain.RunnerSource = (*Oracle)(nil)

// Runners возвращает Solana-токены с реальным объёмом, лучшие по объёму
// первыми. Сетевой сбой — пустой список без ошибки.
func (o *Oracle) Runners(ctx context.Context) ([]domain.TokenRunner, error) {
	// Пары против SOL покрывают почти весь живой объём сети.
	var parsed dexPairsResponse
	endpoint := o.dexBase + "/latest/dex/tokens/So11111111111111111111111111111111111111112"
	if !o.getJSON(ctx, endpoint, "dex_runners", &parsed) {
		return nil, nil
	}

	runners := make([]domain.TokenRunner, 0, runnerLimit)
	for _, p := range parsed.Pairs {
		if p.ChainID != "solana" {
			continue
		}
		if !runnerEligible(p) {
			continue
		}
		mcap := p.MarketCap
		if mcap == 0 {
			mcap = p.FDV
		}
		runners = append(runners, domain.TokenRunner{
			Name:         p.BaseToken.Name,
			Symbol:       p.BaseToken.Symbol,
			MarketCap:    mcap,
			Volume24h:    p.Volume.H24,
			Change24h:    p.PriceChange.H24,
			LiquidityUSD: p.Liquidity.USD,
			Buys24h:      p.Txns.H24.Buys,
			Sells24h:     p.Txns.H24.Sells,
			URL:          p.URL,
		})
	}
	sort.Slice(runners, func(i, j int) bool { return runners[i].Volume24h > runners[j].Volume24h })
	if len(runners) > runnerLimit {
		runners = runners[:runnerLimit]
	}
	return runners, nil
}

func runnerEligible(p dexPair) bool {
	sym := strings.ToUpper(p.BaseToken.Symbol)
	if runnerBlacklist[sym] {
		return false
	}
	name := strings.ToLower(p.BaseToken.Name)
	for _, bad := range runnerBlacklistNames {
		if strings.Contains(name, bad) {
			return false
		}
	}
	mcap := p.MarketCap
	if mcap == 0 {
		mcap = p.FDV
	}
	if mcap < runnerMinMarketCap || p.Volume.H24 < runnerMinVolume || p.Liquidity.USD < runnerMinLiquidity {
		return false
	}
	// Идущий дамп: почти все сделки за сутки — продажи.
	buys, sells := p.Txns.H24.Buys, p.Txns.H24.Sells
	if buys+sells > 100 && float64(sells)/float64(buys+sells) > 0.85 {
		return false
	}
	return true
}
