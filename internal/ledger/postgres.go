package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/socialfi/market-ledger/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Commit runs one transaction. Every guarded UPDATE carries
// "AND version = $expected"; zero rows affected means another writer got
// there first and the whole transaction rolls back with ErrVersionConflict.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const marketCols = `id, post_ref, total_supply::TEXT, price_current::TEXT, total_volume::TEXT,
	fees_collected::TEXT, liquidity_pool::TEXT, creator_earnings::TEXT,
	is_frozen, version, created_at, last_trade_at`

const tradeCols = `id, market_id, user_id, type, shares::TEXT, price_per_share::TEXT,
	total_amount::TEXT, fee_amount::TEXT, supply_before::TEXT, supply_after::TEXT,
	version, created_at`

// --- Market reads ---

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) GetMarketByPost(ctx context.Context, postRef string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE post_ref = $1`, postRef)
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market by post %s: %w", postRef, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

// --- Balance and position reads ---

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (*model.Balance, error) {
	var b model.Balance
	var amount string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, amount::TEXT, version, updated_at
		 FROM balances WHERE user_id = $1`, userID).
		Scan(&b.UserID, &amount, &b.Version, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get balance %s: %w", userID, err)
	}

	b.Amount, _ = decimal.NewFromString(amount)
	return &b, nil
}

func (s *PostgresStore) TopBalances(ctx context.Context, limit int) ([]model.Balance, error) {
	query := `SELECT user_id, amount::TEXT, version, updated_at
	          FROM balances ORDER BY amount DESC, user_id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []model.Balance
	for rows.Next() {
		var b model.Balance
		var amount string
		if err := rows.Scan(&b.UserID, &amount, &b.Version, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Amount, _ = decimal.NewFromString(amount)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (s *PostgresStore) GetPosition(ctx context.Context, userID, marketID string) (*model.Position, error) {
	var p model.Position
	var shares, avgPrice string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, market_id, shares_owned::TEXT, avg_buy_price::TEXT, version, updated_at
		 FROM positions WHERE user_id = $1 AND market_id = $2`, userID, marketID).
		Scan(&p.UserID, &p.MarketID, &shares, &avgPrice, &p.Version, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Absent position reads as an empty Version-0 record, which a
		// write set commits as an insert.
		return &model.Position{
			UserID:      userID,
			MarketID:    marketID,
			SharesOwned: decimal.Zero,
			AvgBuyPrice: decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s: %w", userID, marketID, err)
	}

	p.SharesOwned, _ = decimal.NewFromString(shares)
	p.AvgBuyPrice, _ = decimal.NewFromString(avgPrice)
	return &p, nil
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, market_id, shares_owned::TEXT, avg_buy_price::TEXT, version, updated_at
		 FROM positions WHERE user_id = $1 ORDER BY market_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var shares, avgPrice string
		if err := rows.Scan(&p.UserID, &p.MarketID, &shares, &avgPrice, &p.Version, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.SharesOwned, _ = decimal.NewFromString(shares)
		p.AvgBuyPrice, _ = decimal.NewFromString(avgPrice)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) UserExposures(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.post_ref, p.shares_owned::TEXT
		 FROM positions p JOIN markets m ON m.id = p.market_id
		 WHERE p.user_id = $1 AND p.shares_owned > 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("user exposures %s: %w", userID, err)
	}
	defer rows.Close()

	exposures := make(map[string]decimal.Decimal)
	for rows.Next() {
		var postRef, shares string
		if err := rows.Scan(&postRef, &shares); err != nil {
			return nil, err
		}
		owned, _ := decimal.NewFromString(shares)
		exposures[postRef] = exposures[postRef].Add(owned)
	}
	return exposures, rows.Err()
}

// --- Trade log reads ---

func (s *PostgresStore) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeCols+` FROM trades WHERE id = $1`, id)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) ListTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades WHERE market_id = $1 ORDER BY created_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryTrades(ctx, query, marketID)
}

func (s *PostgresStore) ListTradesByUser(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades WHERE user_id = $1 ORDER BY created_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryTrades(ctx, query, userID)
}

func (s *PostgresStore) queryTrades(ctx context.Context, query string, args ...interface{}) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// --- Inserts ---

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	ct, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, post_ref, total_supply, price_current, total_volume,
		                      fees_collected, liquidity_pool, creator_earnings,
		                      is_frozen, version, created_at, last_trade_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC,
		         $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, 1, $10, $11)
		 ON CONFLICT DO NOTHING`,
		m.ID, m.PostRef,
		m.TotalSupply.String(), m.PriceCurrent.String(), m.TotalVolume.String(),
		m.FeesCollected.String(), m.LiquidityPool.String(), m.CreatorEarnings.String(),
		m.IsFrozen, m.CreatedAt, m.LastTradeAt,
	)
	if err != nil {
		return fmt.Errorf("create market %s: %w", m.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	m.Version = 1
	return nil
}

func (s *PostgresStore) CreateBalance(ctx context.Context, b *model.Balance) error {
	ct, err := s.pool.Exec(ctx,
		`INSERT INTO balances (user_id, amount, version, updated_at)
		 VALUES ($1, $2::NUMERIC, 1, $3)
		 ON CONFLICT (user_id) DO NOTHING`,
		b.UserID, b.Amount.String(), b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create balance %s: %w", b.UserID, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	b.Version = 1
	return nil
}

// --- Atomic commit ---

func (s *PostgresStore) Commit(ctx context.Context, ws *WriteSet) error {
	if ws == nil {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	if mw := ws.Market; mw != nil {
		m := mw.Market
		ct, err := tx.Exec(ctx,
			`UPDATE markets
			 SET total_supply = $2::NUMERIC, price_current = $3::NUMERIC,
			     total_volume = $4::NUMERIC, fees_collected = $5::NUMERIC,
			     liquidity_pool = $6::NUMERIC, creator_earnings = $7::NUMERIC,
			     is_frozen = $8, last_trade_at = $9, version = version + 1
			 WHERE id = $1 AND version = $10`,
			m.ID,
			m.TotalSupply.String(), m.PriceCurrent.String(),
			m.TotalVolume.String(), m.FeesCollected.String(),
			m.LiquidityPool.String(), m.CreatorEarnings.String(),
			m.IsFrozen, m.LastTradeAt, mw.ExpectedVersion,
		)
		if err != nil {
			return fmt.Errorf("commit market %s: %w", m.ID, err)
		}
		if ct.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	}

	for i := range ws.Balances {
		bw := &ws.Balances[i]
		b := bw.Balance

		var ct pgconn.CommandTag
		if bw.ExpectedVersion == 0 {
			ct, err = tx.Exec(ctx,
				`INSERT INTO balances (user_id, amount, version, updated_at)
				 VALUES ($1, $2::NUMERIC, 1, $3)
				 ON CONFLICT (user_id) DO NOTHING`,
				b.UserID, b.Amount.String(), b.UpdatedAt,
			)
		} else {
			ct, err = tx.Exec(ctx,
				`UPDATE balances
				 SET amount = $2::NUMERIC, updated_at = $3, version = version + 1
				 WHERE user_id = $1 AND version = $4`,
				b.UserID, b.Amount.String(), b.UpdatedAt, bw.ExpectedVersion,
			)
		}
		if err != nil {
			return fmt.Errorf("commit balance %s: %w", b.UserID, err)
		}
		if ct.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	}

	if pw := ws.Position; pw != nil {
		p := pw.Position

		var ct pgconn.CommandTag
		if pw.ExpectedVersion == 0 {
			ct, err = tx.Exec(ctx,
				`INSERT INTO positions (user_id, market_id, shares_owned, avg_buy_price, version, updated_at)
				 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, 1, $5)
				 ON CONFLICT (user_id, market_id) DO NOTHING`,
				p.UserID, p.MarketID, p.SharesOwned.String(), p.AvgBuyPrice.String(), p.UpdatedAt,
			)
		} else {
			ct, err = tx.Exec(ctx,
				`UPDATE positions
				 SET shares_owned = $3::NUMERIC, avg_buy_price = $4::NUMERIC,
				     updated_at = $5, version = version + 1
				 WHERE user_id = $1 AND market_id = $2 AND version = $6`,
				p.UserID, p.MarketID, p.SharesOwned.String(), p.AvgBuyPrice.String(),
				p.UpdatedAt, pw.ExpectedVersion,
			)
		}
		if err != nil {
			return fmt.Errorf("commit position %s/%s: %w", p.UserID, p.MarketID, err)
		}
		if ct.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	}

	if t := ws.Trade; t != nil {
		_, err := tx.Exec(ctx,
			`INSERT INTO trades (id, market_id, user_id, type, shares, price_per_share,
			                     total_amount, fee_amount, supply_before, supply_after,
			                     version, created_at)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC,
			         $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11, $12)
			 ON CONFLICT (id) DO NOTHING`,
			t.ID, t.MarketID, t.UserID, t.Type,
			t.Shares.String(), t.PricePerShare.String(),
			t.TotalAmount.String(), t.FeeAmount.String(),
			t.SupplyBefore.String(), t.SupplyAfter.String(),
			t.Version, t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("commit trade %s: %w", t.ID, err)
		}
	}

	if r := ws.Resolve; r != nil {
		// No-rows here is fine: the reservation may have been swept.
		_, err := tx.Exec(ctx,
			`UPDATE idempotency_keys SET status = $2, trade_id = $3
			 WHERE key = $1 AND status = $4`,
			r.Key, model.IdempotencyCommitted, r.TradeID, model.IdempotencyReserved,
		)
		if err != nil {
			return fmt.Errorf("commit idempotency %s: %w", r.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	// Committed. Advance versions through the caller's pointers.
	if ws.Market != nil {
		ws.Market.Market.Version = ws.Market.ExpectedVersion + 1
	}
	for i := range ws.Balances {
		ws.Balances[i].Balance.Version = ws.Balances[i].ExpectedVersion + 1
	}
	if ws.Position != nil {
		ws.Position.Position.Version = ws.Position.ExpectedVersion + 1
	}
	return nil
}

// --- Idempotency protocol ---

func (s *PostgresStore) ReserveIdempotency(ctx context.Context, rec *model.IdempotencyRecord) error {
	ct, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, user_id, status, trade_id, reason, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (key) DO NOTHING`,
		rec.Key, rec.UserID, rec.Status, rec.TradeID, rec.Reason, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("reserve idempotency %s: %w", rec.Key, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrKeyReserved
	}
	return nil
}

func (s *PostgresStore) LookupIdempotency(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord

	err := s.pool.QueryRow(ctx,
		`SELECT key, user_id, status, trade_id, reason, created_at, expires_at
		 FROM idempotency_keys WHERE key = $1`, key).
		Scan(&rec.Key, &rec.UserID, &rec.Status, &rec.TradeID, &rec.Reason,
			&rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency %s: %w", key, err)
	}
	return &rec, nil
}

func (s *PostgresStore) ReleaseIdempotency(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE key = $1 AND status = $2`,
		key, model.IdempotencyReserved,
	)
	if err != nil {
		return fmt.Errorf("release idempotency %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) RejectIdempotency(ctx context.Context, key, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE idempotency_keys SET status = $2, reason = $3
		 WHERE key = $1 AND status = $4`,
		key, model.IdempotencyRejected, reason, model.IdempotencyReserved,
	)
	if err != nil {
		return fmt.Errorf("reject idempotency %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int, error) {
	ct, err := s.pool.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

// --- Row scanning ---

// pgxRow covers both pgx.Row and pgx.Rows for single-record scans.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanMarket(row pgxRow) (*model.Market, error) {
	var m model.Market
	var supply, price, volume, fees, liquidity, earnings string

	if err := row.Scan(&m.ID, &m.PostRef, &supply, &price, &volume,
		&fees, &liquidity, &earnings,
		&m.IsFrozen, &m.Version, &m.CreatedAt, &m.LastTradeAt); err != nil {
		return nil, err
	}

	m.TotalSupply, _ = decimal.NewFromString(supply)
	m.PriceCurrent, _ = decimal.NewFromString(price)
	m.TotalVolume, _ = decimal.NewFromString(volume)
	m.FeesCollected, _ = decimal.NewFromString(fees)
	m.LiquidityPool, _ = decimal.NewFromString(liquidity)
	m.CreatorEarnings, _ = decimal.NewFromString(earnings)

	return &m, nil
}

func scanTrade(row pgxRow) (*model.Trade, error) {
	var t model.Trade
	var shares, pricePer, total, fee, supplyBefore, supplyAfter string

	if err := row.Scan(&t.ID, &t.MarketID, &t.UserID, &t.Type, &shares, &pricePer,
		&total, &fee, &supplyBefore, &supplyAfter,
		&t.Version, &t.CreatedAt); err != nil {
		return nil, err
	}

	t.Shares, _ = decimal.NewFromString(shares)
	t.PricePerShare, _ = decimal.NewFromString(pricePer)
	t.TotalAmount, _ = decimal.NewFromString(total)
	t.FeeAmount, _ = decimal.NewFromString(fee)
	t.SupplyBefore, _ = decimal.NewFromString(supplyBefore)
	t.SupplyAfter, _ = decimal.NewFromString(supplyAfter)

	return &t, nil
}
