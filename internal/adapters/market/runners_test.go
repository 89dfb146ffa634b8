package market

import "testing"

func eligiblePair() dexPair {
	var p dexPair
	p.ChainID = "solana"
	p.BaseToken.Name = "clud"
	p.BaseToken.Symbol = "CLUD"
	p.MarketCap = 2_000_000
	p.Volume.H24 = 500_000
	p.Liquidity.USD = 100_000
	p.Txns.H24.Buys = 300
	p.Txns.H24.Sells = 200
	return p
}

func TestRunnerEligible(t *testing.T) {
	if !runnerEligible(eligiblePair()) {
		t.Fatalf("пара с капитализацией, объёмом и ликвидностью должна проходить")
	}
}

func TestRunnerEligibleRejectsBlacklist(t *testing.T) {
	p := eligiblePair()
	p.BaseToken.Symbol = "USDC"
	if runnerEligible(p) {
		t.Fatalf("стейбл не должен считаться раннером")
	}

	p = eligiblePair()
	p.BaseToken.Name = "Wrapped Ether"
	if runnerEligible(p) {
		t.Fatalf("обёрнутый токен не должен считаться раннером")
	}
}

func TestRunnerEligibleRejectsThinMarkets(t *testing.T) {
	p := eligiblePair()
	p.MarketCap = 500_000
	p.FDV = 0
	if runnerEligible(p) {
		t.Fatalf("мелкая капитализация должна отсекаться")
	}

	p = eligiblePair()
	p.Liquidity.USD = 10_000
	if runnerEligible(p) {
		t.Fatalf("тонкая ликвидность должна отсекаться")
	}
}

func TestRunnerEligibleRejectsDump(t *testing.T) {
	p := eligiblePair()
	p.Txns.H24.Buys = 10
	p.Txns.H24.Sells = 190
	if runnerEligible(p) {
		t.Fatalf("пара с почти одними продажами должна отсекаться")
	}
}

func TestRunnerEligibleUsesFDVFallback(t *testing.T) {
	p := eligiblePair()
	p.MarketCap = 0
	p.FDV = 1_500_000
	if !runnerEligible(p) {
		t.Fatalf("при нулевой капитализации должен использоваться FDV")
	}
}
