// Package model defines the core domain types shared across the market ledger.
// All monetary values use shopspring/decimal — never float64 for money.
//
// Market, Balance, and Position are versioned records: every committed write
// increments Version by exactly one, and writers must present the version they
// read. Trade is append-only and its version never moves past 1.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade types.
const (
	TradeTypeBuy  = "buy"
	TradeTypeSell = "sell"
)

// Idempotency record states.
const (
	IdempotencyReserved  = "reserved"
	IdempotencyCommitted = "committed"
	IdempotencyRejected  = "rejected"
)

// Market is the shared state of one post's attention market: a bonding-curve
// AMM with a running supply, derived spot price, and fee accumulators.
type Market struct {
	ID              string          `json:"id" db:"id"`
	PostRef         string          `json:"post_ref" db:"post_ref"` // "{network}:{source_id}", unique
	TotalSupply     decimal.Decimal `json:"total_supply" db:"total_supply"`
	PriceCurrent    decimal.Decimal `json:"price_current" db:"price_current"`
	TotalVolume     decimal.Decimal `json:"total_volume" db:"total_volume"` // credits traded pre-fee, monotone
	FeesCollected   decimal.Decimal `json:"fees_collected" db:"fees_collected"`
	LiquidityPool   decimal.Decimal `json:"liquidity_pool" db:"liquidity_pool"`
	CreatorEarnings decimal.Decimal `json:"creator_earnings" db:"creator_earnings"`
	IsFrozen        bool            `json:"is_frozen" db:"is_frozen"`
	Version         int64           `json:"version" db:"version"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	LastTradeAt     time.Time       `json:"last_trade_at" db:"last_trade_at"`
}

// Balance is a user's spendable credit balance. Amount never goes negative.
type Balance struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Version   int64           `json:"version" db:"version"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Position is a user's holding in one market. SharesOwned never goes
// negative; a fully sold position is zeroed in place, not deleted.
// AvgBuyPrice is volume-weighted over pre-fee cost and unchanged by sells.
type Position struct {
	UserID      string          `json:"user_id" db:"user_id"`
	MarketID    string          `json:"market_id" db:"market_id"`
	SharesOwned decimal.Decimal `json:"shares_owned" db:"shares_owned"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price" db:"avg_buy_price"`
	Version     int64           `json:"version" db:"version"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Trade is an immutable record of one executed trade. Once committed these
// are never modified or deleted. ID is derived deterministically from the
// caller's idempotency key, so a replayed request yields the same ID.
type Trade struct {
	ID            string          `json:"id" db:"id"`
	MarketID      string          `json:"market_id" db:"market_id"`
	UserID        string          `json:"user_id" db:"user_id"`
	Type          string          `json:"type" db:"type"` // "buy" or "sell"
	Shares        decimal.Decimal `json:"shares" db:"shares"`
	PricePerShare decimal.Decimal `json:"price_per_share" db:"price_per_share"` // pre-fee average
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`       // buy: debited incl fee; sell: credited net of fee
	FeeAmount     decimal.Decimal `json:"fee_amount" db:"fee_amount"`
	SupplyBefore  decimal.Decimal `json:"supply_before" db:"supply_before"`
	SupplyAfter   decimal.Decimal `json:"supply_after" db:"supply_after"`
	Version       int64           `json:"version" db:"version"` // always 1, append-only
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// IdempotencyRecord maps a caller-supplied idempotency key to the outcome it
// produced. Reserved records mark an execution in flight; committed records
// point at the Trade, rejected records carry the deterministic reason.
// Records expire after a retention window and are swept periodically.
type IdempotencyRecord struct {
	Key       string    `json:"key" db:"key"` // scoped "{user_id}:{caller_key}"
	UserID    string    `json:"user_id" db:"user_id"`
	Status    string    `json:"status" db:"status"`
	TradeID   string    `json:"trade_id,omitempty" db:"trade_id"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// Quote is a priced preview of a prospective trade against a market
// snapshot. It carries no identity and is never persisted.
type Quote struct {
	MarketID       string          `json:"market_id"`
	Type           string          `json:"type"`
	Shares         decimal.Decimal `json:"shares"`
	PriceBeforeFee decimal.Decimal `json:"price_before_fee"` // integral cost/revenue pre-fee
	Fee            decimal.Decimal `json:"fee"`
	Total          decimal.Decimal `json:"total"` // buy: pre-fee + fee; sell: pre-fee - fee
	AvgPrice       decimal.Decimal `json:"avg_price"`
	NewSupply      decimal.Decimal `json:"new_supply"`
	NewPrice       decimal.Decimal `json:"new_price"`
}

// PortfolioEntry is one position enriched with live market data for
// portfolio display.
type PortfolioEntry struct {
	Position      Position        `json:"position"`
	PostRef       string          `json:"post_ref"`
	PriceCurrent  decimal.Decimal `json:"price_current"`
	CurrentValue  decimal.Decimal `json:"current_value"` // sharesOwned * priceCurrent
	CostBasis     decimal.Decimal `json:"cost_basis"`    // sharesOwned * avgBuyPrice
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Portfolio aggregates a user's cash balance and all open positions.
type Portfolio struct {
	UserID      string           `json:"user_id"`
	CashBalance decimal.Decimal  `json:"cash_balance"`
	Entries     []PortfolioEntry `json:"entries"`
	TotalValue  decimal.Decimal  `json:"total_value"` // cash + Σ current values
	TotalPnL    decimal.Decimal  `json:"total_pnl"`
}
