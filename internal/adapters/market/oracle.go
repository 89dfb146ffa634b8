// Package market отдаёт рыночные данные токенов: Dexscreener для своего
// токена и поиска, Coingecko для мажоров.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"x-agent-bot/internal/domain"
	"x-agent-bot/internal/infra/metrics"
)

const (
	dexscreenerBase = "https://api.dexscreener.com"
	coingeckoBase   = "https://api.coingecko.com"
)

// majorCoins сопоставляет тикеры идентификаторам Coingecko.
var majorCoins = map[string]string{
	"bitcoin":  "bitcoin",
	"btc":      "bitcoin",
	"ethereum": "ethereum",
	"eth":      "ethereum",
	"solana":   "solana",
	"sol":      "solana",
	"bonk":     "bonk",
	"wif":      "dogwifcoin",
	"pepe":     "pepe",
	"doge":     "dogecoin",
}

// Oracle — клиент ценовых API. Любой сбой сети резолвится в nil без ошибки:
// отсутствие цены — штатный исход, вызывающий живёт без неё.
type Oracle struct {
	http      *http.Client
	dexBase   string
	geckoBase string
	tokenCA   string
	tokenName string
}

var _ domain.PriceOracle = (*Oracle)(nil)

// NewOracle создаёт клиента. tokenCA — адрес контракта собственного токена.
func NewOracle(tokenCA, tokenName string, timeout time.Duration) *Oracle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Oracle{
		http:      &http.Client{Timeout: timeout},
		dexBase:   dexscreenerBase,
		geckoBase: coingeckoBase,
		tokenCA:   tokenCA,
		tokenName: strings.ToLower(tokenName),
	}
}

// Price возвращает рыночные данные по запросу (тикер, название, $TICKER).
func (o *Oracle) Price(ctx context.Context, query string) (*domain.TokenPrice, error) {
	lower := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(query), "$"))

	if o.tokenName != "" && lower == o.tokenName && o.tokenCA != "" {
		return o.dexTokenPrice(ctx, o.tokenCA)
	}
	if cgID, ok := majorCoins[lower]; ok {
		if price := o.geckoPrice(ctx, cgID, lower); price != nil {
			return price, nil
		}
	}
	return o.dexSearch(ctx, query)
}

type dexPairsResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID   string  `json:"chainId"`
	URL       string  `json:"url"`
	PriceUSD  string  `json:"priceUsd"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
	BaseToken struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"baseToken"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Txns struct {
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
}

func (o *Oracle) dexTokenPrice(ctx context.Context, ca string) (*domain.TokenPrice, error) {
	var parsed dexPairsResponse
	if !o.getJSON(ctx, o.dexBase+"/latest/dex/tokens/"+url.PathEscape(ca), "dex_tokens", &parsed) {
		return nil, nil
	}
	if len(parsed.Pairs) == 0 {
		return nil, nil
	}
	return pairToPrice(parsed.Pairs[0]), nil
}

func (o *Oracle) dexSearch(ctx context.Context, query string) (*domain.TokenPrice, error) {
	var parsed dexPairsResponse
	endpoint := o.dexBase + "/latest/dex/search?q=" + url.QueryEscape(query)
	if !o.getJSON(ctx, endpoint, "dex_search", &parsed) {
		return nil, nil
	}
	if len(parsed.Pairs) == 0 {
		return nil, nil
	}
	return pairToPrice(parsed.Pairs[0]), nil
}

func (o *Oracle) geckoPrice(ctx context.Context, cgID, ticker string) *domain.TokenPrice {
	endpoint := fmt.Sprintf(
		"%s/api/v3/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true&include_market_cap=true",
		o.geckoBase, url.QueryEscape(cgID))
	var parsed map[string]struct {
		USD          float64 `json:"usd"`
		USDMarketCap float64 `json:"usd_market_cap"`
		USD24hChange float64 `json:"usd_24h_change"`
	}
	if !o.getJSON(ctx, endpoint, "gecko_price", &parsed) {
		return nil
	}
	coin, ok := parsed[cgID]
	if !ok {
		return nil
	}
	return &domain.TokenPrice{
		Name:      cgID,
		Symbol:    "$" + strings.ToUpper(ticker),
		PriceUSD:  coin.USD,
		MarketCap: coin.USDMarketCap,
		Change24h: coin.USD24hChange,
	}
}

func (o *Oracle) getJSON(ctx context.Context, endpoint, operation string, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", "x-agent-bot/1.0")
	start := time.Now()
	resp, err := o.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("market", operation, "", start, err)
		return false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		metrics.ObserveNetworkRequest("market", operation, "", start, fmt.Errorf("status %d", resp.StatusCode))
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.ObserveNetworkRequest("market", operation, "", start, err)
		return false
	}
	metrics.ObserveNetworkRequest("market", operation, "", start, nil)
	return true
}

func pairToPrice(p dexPair) *domain.TokenPrice {
	price, _ := strconv.ParseFloat(p.PriceUSD, 64)
	mcap := p.MarketCap
	if mcap == 0 {
		mcap = p.FDV
	}
	symbol := p.BaseToken.Symbol
	if symbol != "" {
		symbol = "$" + symbol
	}
	return &domain.TokenPrice{
		Name:      p.BaseToken.Name,
		Symbol:    symbol,
		PriceUSD:  price,
		MarketCap: mcap,
		Change24h: p.PriceChange.H24,
		Volume24h: p.Volume.H24,
	}
}

// Format печатает цену в формате для вставки в пост или промпт.
func Format(p *domain.TokenPrice) string {
	if p == nil {
		return ""
	}
	var priceStr string
	switch {
	case p.PriceUSD >= 1:
		priceStr = fmt.Sprintf("$%.2f", p.PriceUSD)
	case p.PriceUSD >= 0.001:
		priceStr = fmt.Sprintf("$%.4f", p.PriceUSD)
	default:
		priceStr = fmt.Sprintf("$%.2e", p.PriceUSD)
	}

	var mcapStr string
	switch {
	case p.MarketCap >= 1e9:
		mcapStr = fmt.Sprintf(" | mcap: $%.1fB", p.MarketCap/1e9)
	case p.MarketCap >= 1e6:
		mcapStr = fmt.Sprintf(" | mcap: $%.1fM", p.MarketCap/1e6)
	case p.MarketCap >= 1e3:
		mcapStr = fmt.Sprintf(" | mcap: $%.1fK", p.MarketCap/1e3)
	}

	var changeStr string
	if p.Change24h != 0 {
		changeStr = fmt.Sprintf(" | 24h: %+.1f%%", p.Change24h)
	}
	return fmt.Sprintf("%s: %s%s%s", p.Symbol, priceStr, mcapStr, changeStr)
}

// IsPriceQuery определяет, спрашивает ли текст о цене.
func IsPriceQuery(text string) bool {
	lower := strings.ToLower(text)
	hasPriceWord := strings.Contains(lower, "price") ||
		strings.Contains(lower, "how much") ||
		strings.Contains(lower, "worth") ||
		strings.Contains(lower, "trading at")
	if !hasPriceWord {
		return false
	}
	for ticker := range majorCoins {
		if strings.Contains(lower, ticker) {
			return true
		}
	}
	return strings.Contains(lower, "$")
}

// ExtractCoin вытаскивает из текста тикер или $TICKER.
func ExtractCoin(text string) string {
	lower := strings.ToLower(text)
	for _, coin := range []string{"bitcoin", "btc", "ethereum", "eth", "solana", "sol", "bonk", "wif", "pepe", "doge"} {
		if strings.Contains(lower, coin) {
			return coin
		}
	}
	for _, field := range strings.Fields(text) {
		if !strings.HasPrefix(field, "$") || len(field) < 3 {
			continue
		}
		ticker := strings.TrimFunc(field[1:], func(r rune) bool {
			return !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
		})
		if len(ticker) >= 2 && len(ticker) <= 10 {
			return ticker
		}
	}
	return ""
}
