package persistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"PerpCore/internal/engine"
	"PerpCore/internal/persistence"
	"PerpCore/internal/state"
)

func TestMemoryStore_CommitOnSuccess(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx engine.Tx) error {
		return tx.CreateMarket(&state.Market{MarketID: "BTC-PERP", BaseSymbol: "BTC", QuoteAsset: "USDT"})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	err = s.InTx(ctx, func(tx engine.Tx) error {
		m, err := tx.Market("BTC-PERP")
		if err != nil {
			return err
		}
		if m.BaseSymbol != "BTC" {
			t.Errorf("base symbol: got %q, want %q", m.BaseSymbol, "BTC")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read tx: %v", err)
	}
}

func TestMemoryStore_DiscardsOnError(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()
	owner := uuid.New()
	boom := errors.New("boom")

	if err := s.InTx(ctx, func(tx engine.Tx) error {
		return tx.CreateMarket(&state.Market{MarketID: "BTC-PERP"})
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	err := s.InTx(ctx, func(tx engine.Tx) error {
		m, err := tx.Market("BTC-PERP")
		if err != nil {
			return err
		}
		m.OpenInterestLong = 99
		if err := tx.SaveMarket(m); err != nil {
			return err
		}
		p, err := tx.Position(owner, "BTC-PERP")
		if err != nil {
			return err
		}
		p.Collateral = 500
		if err := tx.SavePosition(p); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	err = s.InTx(ctx, func(tx engine.Tx) error {
		m, err := tx.Market("BTC-PERP")
		if err != nil {
			return err
		}
		if m.OpenInterestLong != 0 {
			t.Errorf("aborted write leaked: open interest %d", m.OpenInterestLong)
		}
		p, err := tx.Position(owner, "BTC-PERP")
		if err != nil {
			return err
		}
		if p.Collateral != 0 {
			t.Errorf("aborted write leaked: collateral %d", p.Collateral)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read tx: %v", err)
	}
}

func TestMemoryStore_UnknownMarket(t *testing.T) {
	s := persistence.NewMemoryStore()

	err := s.InTx(context.Background(), func(tx engine.Tx) error {
		_, err := tx.Market("NOPE")
		return err
	})
	if !errors.Is(err, engine.ErrMarketNotFound) {
		t.Errorf("got %v, want ErrMarketNotFound", err)
	}
}

func TestMemoryStore_VersionAdvancesPerCommit(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()

	if err := s.InTx(ctx, func(tx engine.Tx) error {
		return tx.CreateMarket(&state.Market{MarketID: "BTC-PERP"})
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.InTx(ctx, func(tx engine.Tx) error {
			m, err := tx.Market("BTC-PERP")
			if err != nil {
				return err
			}
			return tx.SaveMarket(m)
		}); err != nil {
			t.Fatalf("tx %d: %v", i, err)
		}
	}

	err := s.InTx(ctx, func(tx engine.Tx) error {
		m, err := tx.Market("BTC-PERP")
		if err != nil {
			return err
		}
		if m.Version != 4 {
			t.Errorf("version: got %d, want 4", m.Version)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read tx: %v", err)
	}
}

func TestMemoryStore_ScanHelpers(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()
	owner := uuid.New()

	err := s.InTx(ctx, func(tx engine.Tx) error {
		if err := tx.CreateMarket(&state.Market{MarketID: "BTC-PERP"}); err != nil {
			return err
		}
		p, err := tx.Position(owner, "BTC-PERP")
		if err != nil {
			return err
		}
		p.Size = 10
		p.Side = state.SideLong
		if err := tx.SavePosition(p); err != nil {
			return err
		}
		b, err := tx.Bracket(owner, "BTC-PERP")
		if err != nil {
			return err
		}
		b.Size = 10
		b.Side = state.SideLong
		return tx.SaveBracket(b)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	ids, err := s.MarketIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "BTC-PERP" {
		t.Errorf("market ids: got %v (%v)", ids, err)
	}
	owners, err := s.OpenPositionOwners(ctx, "BTC-PERP")
	if err != nil || len(owners) != 1 || owners[0] != owner {
		t.Errorf("open position owners: got %v (%v)", owners, err)
	}
	armed, err := s.ArmedBracketOwners(ctx, "BTC-PERP")
	if err != nil || len(armed) != 1 || armed[0] != owner {
		t.Errorf("armed bracket owners: got %v (%v)", armed, err)
	}
}
