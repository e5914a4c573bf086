package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"PerpCore/internal/engine"
	"PerpCore/internal/event"
	"PerpCore/internal/state"
)

// PostgresStore is the durable Store. Every operation runs in one
// database transaction; records are read with SELECT ... FOR UPDATE so
// concurrent operations on the same market or position serialize on row
// locks. Racing liquidators therefore observe either the reduced size or
// the recovered margin, never a stale snapshot.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(engine.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	pt := &pgTx{ctx: ctx, tx: tx}
	if err := fn(pt); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

const marketColumns = `market_id, base_symbol, quote_asset, authority, fee_vault, insurance_vault,
	maintenance_margin_ratio_bps, base_margin_ratio_bps, auto_deleverage_enabled, auction_discount_bps,
	funding_rate, last_funding_time, index_price, open_interest_long, open_interest_short, version`

func (t *pgTx) Market(id string) (*state.Market, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+marketColumns+` FROM markets WHERE market_id = $1 FOR UPDATE`, id)

	var m state.Market
	err := row.Scan(
		&m.MarketID, &m.BaseSymbol, &m.QuoteAsset, &m.Authority, &m.FeeVault, &m.InsuranceVault,
		&m.MaintenanceMarginRatioBps, &m.BaseMarginRatioBps, &m.AutoDeleverageEnabled, &m.AuctionDiscountBps,
		&m.FundingRate, &m.LastFundingTime, &m.IndexPrice, &m.OpenInterestLong, &m.OpenInterestShort, &m.Version,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("market %s: %w", id, engine.ErrMarketNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select market %s: %w", id, err)
	}
	return &m, nil
}

func (t *pgTx) Position(owner uuid.UUID, marketID string) (*state.Position, error) {
	// First touch inserts the zero row so FOR UPDATE always has a row to
	// lock. Positions are never deleted, only zeroed.
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO positions (owner, market_id) VALUES ($1, $2)
		 ON CONFLICT (owner, market_id) DO NOTHING`, owner, marketID)
	if err != nil {
		return nil, fmt.Errorf("ensure position row: %w", err)
	}

	row := t.tx.QueryRowContext(t.ctx,
		`SELECT owner, market_id, collateral, size, side, entry_price, unrealized_pnl, version
		 FROM positions WHERE owner = $1 AND market_id = $2 FOR UPDATE`, owner, marketID)

	var p state.Position
	err = row.Scan(&p.Owner, &p.MarketID, &p.Collateral, &p.Size, &p.Side, &p.EntryPrice, &p.UnrealizedPnL, &p.Version)
	if err != nil {
		return nil, fmt.Errorf("select position %s/%s: %w", owner, marketID, err)
	}
	return &p, nil
}

func (t *pgTx) Bracket(owner uuid.UUID, marketID string) (*state.BracketOrder, error) {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO bracket_orders (owner, market_id) VALUES ($1, $2)
		 ON CONFLICT (owner, market_id) DO NOTHING`, owner, marketID)
	if err != nil {
		return nil, fmt.Errorf("ensure bracket row: %w", err)
	}

	row := t.tx.QueryRowContext(t.ctx,
		`SELECT owner, market_id, stop_loss_price, take_profit_price, size, side, version
		 FROM bracket_orders WHERE owner = $1 AND market_id = $2 FOR UPDATE`, owner, marketID)

	var b state.BracketOrder
	err = row.Scan(&b.Owner, &b.MarketID, &b.StopLossPrice, &b.TakeProfitPrice, &b.Size, &b.Side, &b.Version)
	if err != nil {
		return nil, fmt.Errorf("select bracket %s/%s: %w", owner, marketID, err)
	}
	return &b, nil
}

func (t *pgTx) Stop(owner uuid.UUID, marketID string) (*state.StopOrder, error) {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO stop_orders (owner, market_id) VALUES ($1, $2)
		 ON CONFLICT (owner, market_id) DO NOTHING`, owner, marketID)
	if err != nil {
		return nil, fmt.Errorf("ensure stop row: %w", err)
	}

	row := t.tx.QueryRowContext(t.ctx,
		`SELECT owner, market_id, trigger_price, is_take_profit, size, side, version
		 FROM stop_orders WHERE owner = $1 AND market_id = $2 FOR UPDATE`, owner, marketID)

	var s state.StopOrder
	err = row.Scan(&s.Owner, &s.MarketID, &s.TriggerPrice, &s.IsTakeProfit, &s.Size, &s.Side, &s.Version)
	if err != nil {
		return nil, fmt.Errorf("select stop %s/%s: %w", owner, marketID, err)
	}
	return &s, nil
}

func (t *pgTx) OpposingPositions(marketID string, side state.Side) ([]*state.Position, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT owner, market_id, collateral, size, side, entry_price, unrealized_pnl, version
		 FROM positions
		 WHERE market_id = $1 AND side = $2 AND size > 0
		 ORDER BY owner
		 FOR UPDATE`, marketID, side)
	if err != nil {
		return nil, fmt.Errorf("select opposing positions: %w", err)
	}
	defer rows.Close()

	var out []*state.Position
	for rows.Next() {
		var p state.Position
		if err := rows.Scan(&p.Owner, &p.MarketID, &p.Collateral, &p.Size, &p.Side, &p.EntryPrice, &p.UnrealizedPnL, &p.Version); err != nil {
			return nil, fmt.Errorf("scan opposing position: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (t *pgTx) CreateMarket(m *state.Market) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO markets (`+marketColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)`,
		m.MarketID, m.BaseSymbol, m.QuoteAsset, m.Authority, m.FeeVault, m.InsuranceVault,
		m.MaintenanceMarginRatioBps, m.BaseMarginRatioBps, m.AutoDeleverageEnabled, m.AuctionDiscountBps,
		m.FundingRate, m.LastFundingTime, m.IndexPrice, m.OpenInterestLong, m.OpenInterestShort,
	)
	if err != nil {
		return fmt.Errorf("insert market %s: %w", m.MarketID, err)
	}
	return nil
}

func (t *pgTx) SaveMarket(m *state.Market) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE markets SET
			maintenance_margin_ratio_bps = $2, base_margin_ratio_bps = $3,
			auto_deleverage_enabled = $4, auction_discount_bps = $5,
			funding_rate = $6, last_funding_time = $7, index_price = $8,
			open_interest_long = $9, open_interest_short = $10,
			version = version + 1
		 WHERE market_id = $1`,
		m.MarketID,
		m.MaintenanceMarginRatioBps, m.BaseMarginRatioBps,
		m.AutoDeleverageEnabled, m.AuctionDiscountBps,
		m.FundingRate, m.LastFundingTime, m.IndexPrice,
		m.OpenInterestLong, m.OpenInterestShort,
	)
	if err != nil {
		return fmt.Errorf("update market %s: %w", m.MarketID, err)
	}
	return nil
}

func (t *pgTx) SavePosition(p *state.Position) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE positions SET
			collateral = $3, size = $4, side = $5, entry_price = $6, unrealized_pnl = $7,
			version = version + 1
		 WHERE owner = $1 AND market_id = $2`,
		p.Owner, p.MarketID, p.Collateral, p.Size, p.Side, p.EntryPrice, p.UnrealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("update position %s/%s: %w", p.Owner, p.MarketID, err)
	}
	return nil
}

func (t *pgTx) SaveBracket(b *state.BracketOrder) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE bracket_orders SET
			stop_loss_price = $3, take_profit_price = $4, size = $5, side = $6,
			version = version + 1
		 WHERE owner = $1 AND market_id = $2`,
		b.Owner, b.MarketID, b.StopLossPrice, b.TakeProfitPrice, b.Size, b.Side,
	)
	if err != nil {
		return fmt.Errorf("update bracket %s/%s: %w", b.Owner, b.MarketID, err)
	}
	return nil
}

func (t *pgTx) SaveStop(s *state.StopOrder) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE stop_orders SET
			trigger_price = $3, is_take_profit = $4, size = $5, side = $6,
			version = version + 1
		 WHERE owner = $1 AND market_id = $2`,
		s.Owner, s.MarketID, s.TriggerPrice, s.IsTakeProfit, s.Size, s.Side,
	)
	if err != nil {
		return fmt.Errorf("update stop %s/%s: %w", s.Owner, s.MarketID, err)
	}
	return nil
}

func (t *pgTx) AppendEvent(evt event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.EventType(), err)
	}
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO event_log (event_type, market_id, payload) VALUES ($1, $2, $3)`,
		evt.EventType().String(), evt.MarketID(), payload,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", evt.EventType(), err)
	}
	return nil
}

// OpenPositionOwners returns owners with exposure in a market, used by
// the keeper to scan liquidation and funding candidates outside any
// operation transaction.
func (s *PostgresStore) OpenPositionOwners(ctx context.Context, marketID string) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner FROM positions WHERE market_id = $1 AND size > 0`, marketID)
	if err != nil {
		return nil, fmt.Errorf("select open position owners: %w", err)
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var o uuid.UUID
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// ArmedBracketOwners returns owners with an armed bracket order in a
// market.
func (s *PostgresStore) ArmedBracketOwners(ctx context.Context, marketID string) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner FROM bracket_orders WHERE market_id = $1 AND size > 0`, marketID)
	if err != nil {
		return nil, fmt.Errorf("select armed bracket owners: %w", err)
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var o uuid.UUID
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// MarketIDs returns all market identifiers.
func (s *PostgresStore) MarketIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT market_id FROM markets ORDER BY market_id`)
	if err != nil {
		return nil, fmt.Errorf("select markets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan market id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
