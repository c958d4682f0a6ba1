// Package ledger defines the persistence interface for the market ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache for query paths), and in-memory (for testing and single-node dev).
//
// The write side is a single primitive: Commit applies a multi-record write
// set atomically, guarded by the version each record carried when it was
// read. Either every write in the set applies, each version advancing by
// exactly one, or none do and ErrVersionConflict is returned. There is no
// partial application and no other way to mutate market, balance, or
// position records.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/socialfi/market-ledger/internal/model"
)

var (
	ErrMarketNotFound  = errors.New("ledger: market not found")
	ErrBalanceNotFound = errors.New("ledger: balance not found")
	ErrTradeNotFound   = errors.New("ledger: trade not found")

	// ErrAlreadyExists is returned by insert-only operations when the
	// record is already present.
	ErrAlreadyExists = errors.New("ledger: record already exists")

	// ErrVersionConflict is returned by Commit when any record in the
	// write set was modified after it was read. The caller reloads fresh
	// state and rebuilds the write set.
	ErrVersionConflict = errors.New("ledger: version conflict")

	// ErrKeyReserved is returned when reserving an idempotency key that
	// is already held.
	ErrKeyReserved = errors.New("ledger: idempotency key already reserved")

	// ErrKeyNotFound is returned when looking up an idempotency key with
	// no record.
	ErrKeyNotFound = errors.New("ledger: idempotency key not found")
)

// MarketWrite is one versioned market update in a write set. The Market
// carries the new field values; ExpectedVersion is the version the record
// had when read.
type MarketWrite struct {
	Market          *model.Market
	ExpectedVersion int64
}

// BalanceWrite is one versioned balance update. ExpectedVersion 0 means
// the balance must not exist yet and is inserted.
type BalanceWrite struct {
	Balance         *model.Balance
	ExpectedVersion int64
}

// PositionWrite is one versioned position update. ExpectedVersion 0 means
// the position must not exist yet and is inserted.
type PositionWrite struct {
	Position        *model.Position
	ExpectedVersion int64
}

// IdempotencyResolve marks a reserved idempotency key committed, binding it
// to the trade it produced. Resolving a key that is no longer reserved is a
// no-op: reservations outlive commit attempts by hours while executions
// take milliseconds.
type IdempotencyResolve struct {
	Key     string
	TradeID string
}

// WriteSet is the atomic unit of ledger mutation. Any field may be nil or
// empty; whatever is present commits together or not at all. On success
// each written record's Version field is set to ExpectedVersion+1 in place.
type WriteSet struct {
	Market   *MarketWrite
	Balances []BalanceWrite
	Position *PositionWrite
	Trade    *model.Trade
	Resolve  *IdempotencyResolve
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer for the read-only query paths.
type Store interface {
	// --- Market reads ---

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// GetMarketByPost retrieves a market by its post reference.
	GetMarketByPost(ctx context.Context, postRef string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// --- Balance and position reads ---

	// GetBalance retrieves a user's credit balance.
	GetBalance(ctx context.Context, userID string) (*model.Balance, error)

	// TopBalances returns the highest balances, for the leaderboard.
	TopBalances(ctx context.Context, limit int) ([]model.Balance, error)

	// GetPosition retrieves a user's position in a market. An absent
	// position is returned as a zeroed record with Version 0, which a
	// write set treats as insert-if-absent.
	GetPosition(ctx context.Context, userID, marketID string) (*model.Position, error)

	// ListPositionsByUser returns all positions with nonzero history for
	// a user, including zeroed ones.
	ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error)

	// UserExposures returns the user's held shares keyed by market post
	// ref. Zeroed positions are omitted. The executor feeds this to the
	// exposure limiter before pricing a buy.
	UserExposures(ctx context.Context, userID string) (map[string]decimal.Decimal, error)

	// --- Trade log reads ---

	// GetTrade retrieves one trade by ID.
	GetTrade(ctx context.Context, id string) (*model.Trade, error)

	// ListTradesByMarket returns a market's trades, newest first.
	// limit <= 0 means no limit.
	ListTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.Trade, error)

	// ListTradesByUser returns a user's trades, newest first.
	// limit <= 0 means no limit.
	ListTradesByUser(ctx context.Context, userID string, limit int) ([]model.Trade, error)

	// --- Inserts ---

	// CreateMarket persists a new market at Version 1.
	// A market for the same post is ErrAlreadyExists.
	CreateMarket(ctx context.Context, market *model.Market) error

	// CreateBalance persists a new balance at Version 1.
	CreateBalance(ctx context.Context, balance *model.Balance) error

	// --- Atomic commit ---

	// Commit applies the write set atomically under version guards.
	Commit(ctx context.Context, ws *WriteSet) error

	// --- Idempotency protocol ---

	// ReserveIdempotency claims a key for an in-flight execution.
	ReserveIdempotency(ctx context.Context, rec *model.IdempotencyRecord) error

	// LookupIdempotency retrieves a key's record, reserved or resolved.
	LookupIdempotency(ctx context.Context, key string) (*model.IdempotencyRecord, error)

	// ReleaseIdempotency drops a reservation whose execution aborted
	// before any commit attempt.
	ReleaseIdempotency(ctx context.Context, key string) error

	// RejectIdempotency resolves a reserved key to a deterministic
	// rejection, replayed to retries of the same key.
	RejectIdempotency(ctx context.Context, key, reason string) error

	// PurgeExpiredIdempotency deletes records past their expiry and
	// returns how many were removed.
	PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int, error)
}
