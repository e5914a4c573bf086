package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpCore/internal/custody"
	"PerpCore/internal/engine"
	"PerpCore/internal/oracle"
	"PerpCore/internal/persistence"
	"PerpCore/internal/server"
)

type fixture struct {
	t         *testing.T
	srv       *httptest.Server
	eng       *engine.Engine
	prices    *oracle.MemoryOracle
	authority uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		prices:    oracle.NewMemoryOracle(),
		authority: uuid.New(),
	}
	eng, err := engine.New(engine.Config{
		Store:   persistence.NewMemoryStore(),
		Oracle:  f.prices,
		Custody: custody.NewVaultRecorder(),
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	f.eng = eng
	f.srv = httptest.NewServer(server.New(eng, zerolog.Nop(), nil).Routes())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) post(path string, body any) *http.Response {
	f.t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		f.t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		f.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (f *fixture) get(path string) *http.Response {
	f.t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		f.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (f *fixture) decode(resp *http.Response, v any) {
	f.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		f.t.Fatalf("decode response: %v", err)
	}
}

func (f *fixture) createMarket(marketID string) {
	f.t.Helper()
	resp := f.post("/api/markets", map[string]any{
		"market_id":   marketID,
		"base_symbol": "BTC",
		"quote_asset": "USDT",
		"authority":   f.authority,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		f.t.Fatalf("create market: got status %d, want %d", resp.StatusCode, http.StatusCreated)
	}
}

func (f *fixture) setPrice(marketID string, price int64, asOf time.Time) {
	f.t.Helper()
	err := f.prices.SetPrice(context.Background(), marketID, oracle.Quote{Price: price, AsOf: asOf})
	if err != nil {
		f.t.Fatalf("set price: %v", err)
	}
}

// ============================================================
// Health
// ============================================================

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp := f.get("/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(server.New(f.eng, zerolog.Nop(), func() bool { return false }).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

// ============================================================
// Markets
// ============================================================

func TestInitializeMarket_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")

	resp := f.post("/api/markets", map[string]any{
		"market_id":   "BTC-PERP",
		"base_symbol": "BTC",
		"quote_asset": "USDT",
		"authority":   f.authority,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestGetMarket(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")

	resp := f.get("/api/markets/BTC-PERP")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body struct {
		MarketID   string `json:"market_id"`
		QuoteAsset string `json:"quote_asset"`
		IndexPrice int64  `json:"index_price"`
	}
	f.decode(resp, &body)
	if body.MarketID != "BTC-PERP" {
		t.Errorf("market_id: got %q, want %q", body.MarketID, "BTC-PERP")
	}
	if body.QuoteAsset != "USDT" {
		t.Errorf("quote_asset: got %q, want %q", body.QuoteAsset, "USDT")
	}
	if body.IndexPrice != 1000 {
		t.Errorf("index_price: got %d, want 1000", body.IndexPrice)
	}
}

func TestGetMarket_Unknown(t *testing.T) {
	f := newFixture(t)
	resp := f.get("/api/markets/NOPE-PERP")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestUpdateFundingRate_WrongAuthority(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")
	f.setPrice("BTC-PERP", 1050, time.Now())

	resp := f.post("/api/markets/BTC-PERP/funding-rate", map[string]any{
		"authority": uuid.New(),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

// ============================================================
// Collateral
// ============================================================

func TestDepositAndGetPosition(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")
	owner := uuid.New()

	resp := f.post("/api/collateral/deposit", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"asset":     "USDT",
		"amount":    10_000,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit: got status %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp = f.get(fmt.Sprintf("/api/positions/BTC-PERP/%s", owner))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get position: got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body struct {
		Collateral int64  `json:"collateral"`
		Size       int64  `json:"size"`
		Side       string `json:"side"`
	}
	f.decode(resp, &body)
	if body.Collateral != 10_000 {
		t.Errorf("collateral: got %d, want 10000", body.Collateral)
	}
	if body.Size != 0 {
		t.Errorf("size: got %d, want 0", body.Size)
	}
}

func TestDeposit_WrongAsset(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")

	resp := f.post("/api/collateral/deposit", map[string]any{
		"owner":     uuid.New(),
		"market_id": "BTC-PERP",
		"asset":     "USDC",
		"amount":    10_000,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestWithdraw_ExceedsBalance(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")
	owner := uuid.New()

	resp := f.post("/api/collateral/deposit", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"asset":     "USDT",
		"amount":    5_000,
	})
	resp.Body.Close()

	resp = f.post("/api/collateral/withdraw", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"asset":     "USDT",
		"amount":    6_000,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

// ============================================================
// Positions
// ============================================================

func TestOpenPosition(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")
	f.setPrice("BTC-PERP", 1000, time.Now())
	owner := uuid.New()

	resp := f.post("/api/collateral/deposit", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"asset":     "USDT",
		"amount":    10_000,
	})
	resp.Body.Close()

	resp = f.post("/api/positions/open", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"size":      50,
		"is_long":   true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open: got status %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp = f.get(fmt.Sprintf("/api/positions/BTC-PERP/%s", owner))
	var body struct {
		Size       int64  `json:"size"`
		Side       string `json:"side"`
		EntryPrice int64  `json:"entry_price"`
	}
	f.decode(resp, &body)
	if body.Size != 50 {
		t.Errorf("size: got %d, want 50", body.Size)
	}
	if body.Side != "Long" {
		t.Errorf("side: got %q, want %q", body.Side, "Long")
	}
	if body.EntryPrice != 1000 {
		t.Errorf("entry_price: got %d, want 1000", body.EntryPrice)
	}
}

func TestOpenPosition_StaleQuote(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")
	f.setPrice("BTC-PERP", 1000, time.Now().Add(-61*time.Second))
	owner := uuid.New()

	resp := f.post("/api/collateral/deposit", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"asset":     "USDT",
		"amount":    10_000,
	})
	resp.Body.Close()

	resp = f.post("/api/positions/open", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"size":      50,
		"is_long":   true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestClosePosition_NoPosition(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")
	f.setPrice("BTC-PERP", 1000, time.Now())

	resp := f.post("/api/positions/close", map[string]any{
		"owner":     uuid.New(),
		"market_id": "BTC-PERP",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestLiquidate_HealthyPosition(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")
	f.setPrice("BTC-PERP", 1000, time.Now())
	owner := uuid.New()

	resp := f.post("/api/collateral/deposit", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"asset":     "USDT",
		"amount":    10_000,
	})
	resp.Body.Close()
	resp = f.post("/api/positions/open", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"size":      50,
		"is_long":   true,
	})
	resp.Body.Close()

	resp = f.post("/api/positions/liquidate", map[string]any{
		"liquidator": uuid.New(),
		"owner":      owner,
		"market_id":  "BTC-PERP",
		"size":       50,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

// ============================================================
// Orders
// ============================================================

func TestBracketLifecycle(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")
	f.setPrice("BTC-PERP", 1000, time.Now())
	owner := uuid.New()

	resp := f.post("/api/collateral/deposit", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"asset":     "USDT",
		"amount":    10_000,
	})
	resp.Body.Close()
	resp = f.post("/api/positions/open", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
		"size":      50,
		"is_long":   true,
	})
	resp.Body.Close()

	resp = f.post("/api/orders/bracket", map[string]any{
		"owner":             owner,
		"market_id":         "BTC-PERP",
		"stop_loss_price":   900,
		"take_profit_price": 1200,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place bracket: got status %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp = f.get(fmt.Sprintf("/api/orders/bracket/BTC-PERP/%s", owner))
	var body struct {
		StopLossPrice   int64 `json:"stop_loss_price"`
		TakeProfitPrice int64 `json:"take_profit_price"`
		Armed           bool  `json:"armed"`
	}
	f.decode(resp, &body)
	if !body.Armed {
		t.Error("bracket not armed after placement")
	}
	if body.StopLossPrice != 900 || body.TakeProfitPrice != 1200 {
		t.Errorf("legs: got %d/%d, want 900/1200", body.StopLossPrice, body.TakeProfitPrice)
	}

	// Neither leg met at the current mark.
	resp = f.post("/api/orders/bracket/trigger", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("trigger in band: got status %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	resp = f.post("/api/orders/bracket/cancel", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("cancel: got status %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// Cancelled order is gone.
	resp = f.post("/api/orders/bracket/cancel", map[string]any{
		"owner":     owner,
		"market_id": "BTC-PERP",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("double cancel: got status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestPlaceStop_WithoutPosition(t *testing.T) {
	f := newFixture(t)
	f.createMarket("BTC-PERP")
	f.setPrice("BTC-PERP", 1000, time.Now())

	resp := f.post("/api/orders/stop", map[string]any{
		"owner":          uuid.New(),
		"market_id":      "BTC-PERP",
		"trigger_price":  1200,
		"is_take_profit": true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Post(f.srv.URL+"/api/positions/open", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
