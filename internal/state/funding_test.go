package state_test

import (
	"testing"

	"PerpCore/internal/state"
)

func TestNextFundingRate_IdempotentAtZeroTimeDiff(t *testing.T) {
	m := btcMarket()
	m.FundingRate = 7
	m.LastFundingTime = 1_000

	rate, changed, err := state.NextFundingRate(m, 1200, 1_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Error("no time elapsed, rate should not change")
	}
	if rate != 7 {
		t.Errorf("got %d, want existing rate 7", rate)
	}
}

func TestNextFundingRate_PriceDeviationTimesElapsed(t *testing.T) {
	m := btcMarket()
	m.LastFundingTime = 1_000

	// (1050-1000)/10 * 10s = 50, no OI skew.
	rate, changed, err := state.NextFundingRate(m, 1050, 1_010)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("rate should change after elapsed time")
	}
	if rate != 50 {
		t.Errorf("got %d, want 50", rate)
	}
}

func TestNextFundingRate_NegativeWhenMarkBelowIndex(t *testing.T) {
	m := btcMarket()
	m.LastFundingTime = 1_000

	rate, _, err := state.NextFundingRate(m, 900, 1_005)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != -50 {
		t.Errorf("got %d, want -50", rate)
	}
}

func TestNextFundingRate_OISkewClamped(t *testing.T) {
	m := btcMarket()
	m.LastFundingTime = 1_000
	m.OpenInterestLong = 500_000
	m.OpenInterestShort = 0

	// Skew term 500000/100 = 5000 clamps to 1000.
	rate, _, err := state.NextFundingRate(m, 1000, 1_001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 1000 {
		t.Errorf("got %d, want clamped 1000", rate)
	}

	m.OpenInterestLong = 0
	m.OpenInterestShort = 500_000
	rate, _, err = state.NextFundingRate(m, 1000, 1_001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != -1000 {
		t.Errorf("got %d, want clamped -1000", rate)
	}
}

func TestFundingPayment_SizeTimesRate(t *testing.T) {
	pos := &state.Position{Size: 50, Side: state.SideLong}

	got, err := state.FundingPayment(pos, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2_500 {
		t.Errorf("got %d, want 2500", got)
	}

	// Negative rate flips the flow for every position.
	got, err = state.FundingPayment(pos, -50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != -2_500 {
		t.Errorf("got %d, want -2500", got)
	}
}
