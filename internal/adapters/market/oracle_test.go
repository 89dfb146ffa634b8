package market

import (
	"strings"
	"testing"

	"x-agent-bot/internal/domain"
)

func TestFormatPriceTiers(t *testing.T) {
	cases := []struct {
		price    float64
		expected string
	}{
		{65432.1, "$65432.10"},
		{1.5, "$1.50"},
		{0.0042, "$0.0042"},
		{0.0000042, "$4.20e-06"},
	}
	for _, c := range cases {
		got := Format(&domain.TokenPrice{Symbol: "$X", PriceUSD: c.price})
		if !strings.Contains(got, c.expected) {
			t.Fatalf("для цены %v ожидали %q в %q", c.price, c.expected, got)
		}
	}
}

func TestFormatMarketCapTiers(t *testing.T) {
	cases := []struct {
		mcap     float64
		expected string
	}{
		{2.5e9, "$2.5B"},
		{42e6, "$42.0M"},
		{950e3, "$950.0K"},
	}
	for _, c := range cases {
		got := Format(&domain.TokenPrice{Symbol: "$X", PriceUSD: 1, MarketCap: c.mcap})
		if !strings.Contains(got, c.expected) {
			t.Fatalf("для mcap %v ожидали %q в %q", c.mcap, c.expected, got)
		}
	}

	got := Format(&domain.TokenPrice{Symbol: "$X", PriceUSD: 1, MarketCap: 500})
	if strings.Contains(got, "mcap") {
		t.Fatalf("мелкий mcap не должен печататься: %q", got)
	}
}

func TestFormatChange(t *testing.T) {
	got := Format(&domain.TokenPrice{Symbol: "$X", PriceUSD: 1, Change24h: 12.34})
	if !strings.Contains(got, "+12.3%") {
		t.Fatalf("ожидали знак плюса у роста: %q", got)
	}
	got = Format(&domain.TokenPrice{Symbol: "$X", PriceUSD: 1, Change24h: -7.6})
	if !strings.Contains(got, "-7.6%") {
		t.Fatalf("ожидали падение со знаком: %q", got)
	}
	if Format(nil) != "" {
		t.Fatalf("nil должен форматироваться в пустую строку")
	}
}

func TestIsPriceQuery(t *testing.T) {
	positive := []string{
		"what's the price of btc?",
		"how much is sol worth",
		"$PEPE price??",
		"what is eth trading at",
	}
	for _, text := range positive {
		if !IsPriceQuery(text) {
			t.Fatalf("ожидали ценовой вопрос: %q", text)
		}
	}

	negative := []string{
		"gm ser",
		"price of freedom",
		"btc is dead",
	}
	for _, text := range negative {
		if IsPriceQuery(text) {
			t.Fatalf("не ожидали ценовой вопрос: %q", text)
		}
	}
}

func TestExtractCoin(t *testing.T) {
	cases := map[string]string{
		"what is bitcoin doing":  "bitcoin",
		"sol price?":             "sol",
		"how much is $WIF worth": "wif",
		"check $MYTOKEN please":  "MYTOKEN",
		"check $MYTOKEN, please": "MYTOKEN",
		"no coins here":          "",
		"$a too short":           "",
	}
	for text, expected := range cases {
		if got := ExtractCoin(text); got != expected {
			t.Fatalf("для %q ожидали %q, получили %q", text, expected, got)
		}
	}
}
