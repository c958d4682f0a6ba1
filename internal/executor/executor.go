// Package executor runs the trade state machine: validate, quote, build a
// write set, and commit it under optimistic concurrency with bounded retry.
// Every execution is made idempotent by a caller-supplied key, so a retried
// request replays its recorded outcome instead of trading twice.
//
// All monetary values use shopspring/decimal — never float64 for money.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/socialfi/market-ledger/internal/curve"
	"github.com/socialfi/market-ledger/internal/events"
	"github.com/socialfi/market-ledger/internal/fees"
	"github.com/socialfi/market-ledger/internal/ledger"
	"github.com/socialfi/market-ledger/internal/metrics"
	"github.com/socialfi/market-ledger/internal/model"
	"github.com/socialfi/market-ledger/internal/quote"
	"github.com/socialfi/market-ledger/internal/resource"
	"github.com/socialfi/market-ledger/internal/risk"
)

var (
	ErrInvalidQuantity     = errors.New("executor: share quantity invalid or below minimum")
	ErrInsufficientBalance = errors.New("executor: insufficient credit balance")
	ErrInsufficientShares  = errors.New("executor: insufficient shares in position")
	ErrInsufficientSupply  = errors.New("executor: cannot sell more than outstanding supply")
	ErrMarketFrozen        = errors.New("executor: market is frozen")
	ErrExposureLimit       = errors.New("executor: position would exceed exposure limits")
	ErrMarketNotFound      = errors.New("executor: market not found")
	ErrAccountNotFound     = errors.New("executor: account not found")

	// ErrContention is returned when a trade exhausts its commit retries.
	// The idempotency key is released, so the caller may retry later.
	ErrContention = errors.New("executor: market too contended, retry later")

	// ErrDuplicateInFlight is returned when another request holding the
	// same idempotency key has not finished yet.
	ErrDuplicateInFlight = errors.New("executor: request with this idempotency key is in flight")

	errMissingKey = errors.New("executor: idempotency key is required")
)

// Rejection reasons recorded on idempotency records and replayed to
// retries of the same key.
const (
	reasonInvalidQuantity     = "invalid_quantity"
	reasonMarketFrozen        = "market_frozen"
	reasonInsufficientSupply  = "insufficient_supply"
	reasonInsufficientBalance = "insufficient_balance"
	reasonInsufficientShares  = "insufficient_shares"
	reasonExposureLimit       = "exposure_limit"
)

var reasonErrors = map[string]error{
	reasonInvalidQuantity:     ErrInvalidQuantity,
	reasonMarketFrozen:        ErrMarketFrozen,
	reasonInsufficientSupply:  ErrInsufficientSupply,
	reasonInsufficientBalance: ErrInsufficientBalance,
	reasonInsufficientShares:  ErrInsufficientShares,
	reasonExposureLimit:       ErrExposureLimit,
}

// tradeNamespace scopes the UUIDv5 trade IDs derived from idempotency
// keys. Deriving the ID from the key means a replayed request produces
// the same trade ID it would have produced the first time.
var tradeNamespace = uuid.MustParse("8a4b1ec6-31f5-4af2-9d6e-70c5b8e3d914")

// Config carries the executor's tunables. Zero fields fall back to
// DefaultConfig values.
type Config struct {
	MaxRetries        int
	MinBackoff        time.Duration
	MaxBackoff        time.Duration
	StartingBalance   decimal.Decimal
	SeedSupply        decimal.Decimal
	IdempotencyTTL    time.Duration
	CreatorFeeAccount string
	PlatformAccount   string
}

// DefaultConfig returns the standard executor configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        5,
		MinBackoff:        5 * time.Millisecond,
		MaxBackoff:        250 * time.Millisecond,
		StartingBalance:   decimal.NewFromInt(1000),
		SeedSupply:        decimal.NewFromInt(100),
		IdempotencyTTL:    24 * time.Hour,
		CreatorFeeAccount: "escrow",
		PlatformAccount:   "platform",
	}
}

// TradeRequest is one caller's intent to trade.
type TradeRequest struct {
	UserID         string
	MarketID       string
	Type           string // "buy" or "sell"
	Shares         decimal.Decimal
	IdempotencyKey string
}

// TradeResult is the committed outcome of a trade: the immutable record
// plus the trader's balance and position as of the commit. Replayed is
// true when the result came from an idempotency record rather than a
// fresh execution.
type TradeResult struct {
	Trade    *model.Trade
	Balance  *model.Balance
	Position *model.Position
	Replayed bool
}

// Executor coordinates trade execution over the primary ledger store.
// The store must not be a read-through cache: version-guarded commits
// need fresh reads.
type Executor struct {
	store    ledger.Store
	quoter   *quote.Builder
	splitter *fees.Splitter
	limiter  *risk.ExposureLimiter // optional; nil disables exposure limits
	cfg      Config
	bus      *events.Bus // optional; nil disables event publishing
}

// New creates an executor. Pass nil for limiter to trade without exposure
// limits, and nil for bus if event publishing is not needed.
func New(store ledger.Store, quoter *quote.Builder, splitter *fees.Splitter, limiter *risk.ExposureLimiter, cfg Config, bus *events.Bus) *Executor {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.StartingBalance.LessThanOrEqual(decimal.Zero) {
		cfg.StartingBalance = def.StartingBalance
	}
	if cfg.SeedSupply.LessThanOrEqual(decimal.Zero) {
		cfg.SeedSupply = def.SeedSupply
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = def.IdempotencyTTL
	}
	if cfg.CreatorFeeAccount == "" {
		cfg.CreatorFeeAccount = def.CreatorFeeAccount
	}
	if cfg.PlatformAccount == "" {
		cfg.PlatformAccount = def.PlatformAccount
	}
	return &Executor{
		store:    store,
		quoter:   quoter,
		splitter: splitter,
		limiter:  limiter,
		cfg:      cfg,
		bus:      bus,
	}
}

// --- Trade execution ---

// ExecuteTrade runs one trade to a terminal state. Commit conflicts are
// retried against fresh state up to MaxRetries times with randomized
// backoff; exhaustion returns ErrContention with the idempotency key
// released. Rejections (bad quantity, frozen market, insufficient funds
// or shares, exposure limits) are recorded on the key and replayed to
// retries.
func (e *Executor) ExecuteTrade(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	start := time.Now()

	if req.IdempotencyKey == "" {
		return nil, errMissingKey
	}
	key := req.UserID + ":" + req.IdempotencyKey

	// Fast path: a key seen before replays its outcome.
	if rec, err := e.store.LookupIdempotency(ctx, key); err == nil {
		return e.replay(ctx, rec)
	} else if !errors.Is(err, ledger.ErrKeyNotFound) {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	now := time.Now().UTC()
	rec := &model.IdempotencyRecord{
		Key:       key,
		UserID:    req.UserID,
		Status:    model.IdempotencyReserved,
		CreatedAt: now,
		ExpiresAt: now.Add(e.cfg.IdempotencyTTL),
	}
	if err := e.store.ReserveIdempotency(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrKeyReserved) {
			// Lost the reservation race. The winner may already have
			// resolved; otherwise the duplicate is still in flight.
			if cur, lerr := e.store.LookupIdempotency(ctx, key); lerr == nil && cur.Status != model.IdempotencyReserved {
				return e.replay(ctx, cur)
			}
			return nil, ErrDuplicateInFlight
		}
		return nil, fmt.Errorf("idempotency reserve: %w", err)
	}

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				e.release(ctx, key)
				return nil, ctx.Err()
			case <-time.After(e.backoff(attempt)):
			}
		}

		res, err := e.attempt(ctx, key, req)
		if errors.Is(err, ledger.ErrVersionConflict) {
			metrics.CommitConflicts.Inc()
			slog.Debug("commit conflict, retrying",
				"market", req.MarketID, "user", req.UserID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.TradesTotal.WithLabelValues(req.Type).Inc()
		metrics.TradeLatency.WithLabelValues(req.Type).Observe(time.Since(start).Seconds())
		return res, nil
	}

	e.release(ctx, key)
	metrics.ContentionAborts.Inc()
	slog.Warn("trade abandoned after max retries",
		"market", req.MarketID, "user", req.UserID, "retries", e.cfg.MaxRetries)
	return nil, ErrContention
}

// attempt makes one pass through the state machine against fresh reads.
// A ledger.ErrVersionConflict return leaves the reservation in place for
// the caller's retry loop; every other return path has resolved or
// released the key.
func (e *Executor) attempt(ctx context.Context, key string, req TradeRequest) (*TradeResult, error) {
	market, err := e.store.GetMarket(ctx, req.MarketID)
	if err != nil {
		e.release(ctx, key)
		if errors.Is(err, ledger.ErrMarketNotFound) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("load market: %w", err)
	}

	balance, err := e.store.GetBalance(ctx, req.UserID)
	if err != nil {
		e.release(ctx, key)
		if errors.Is(err, ledger.ErrBalanceNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load balance: %w", err)
	}

	position, err := e.store.GetPosition(ctx, req.UserID, req.MarketID)
	if err != nil {
		e.release(ctx, key)
		return nil, fmt.Errorf("load position: %w", err)
	}

	q, err := e.quoter.Build(market, req.Type, req.Shares)
	if err != nil {
		reason, mapped := classifyQuoteError(err)
		if reason == "" {
			e.release(ctx, key)
			return nil, mapped
		}
		e.reject(ctx, key, reason)
		return nil, mapped
	}

	// Exposure limits apply to buys only; sells reduce exposure.
	if e.limiter != nil && req.Type == model.TradeTypeBuy {
		exposures, err := e.store.UserExposures(ctx, req.UserID)
		if err != nil {
			e.release(ctx, key)
			return nil, fmt.Errorf("load exposures: %w", err)
		}
		if err := e.limiter.CheckBuy(market.PostRef, req.Shares, exposures); err != nil {
			slog.Info("trade rejected by exposure limits",
				"market", req.MarketID, "user", req.UserID, "cause", err)
			e.reject(ctx, key, reasonExposureLimit)
			return nil, ErrExposureLimit
		}
	}

	if req.Type == model.TradeTypeBuy {
		if balance.Amount.LessThan(q.Total) {
			e.reject(ctx, key, reasonInsufficientBalance)
			return nil, ErrInsufficientBalance
		}
	} else {
		if position.SharesOwned.LessThan(req.Shares) {
			e.reject(ctx, key, reasonInsufficientShares)
			return nil, ErrInsufficientShares
		}
	}

	ws, result, err := e.buildWriteSet(ctx, key, req, market, balance, position, q)
	if err != nil {
		e.release(ctx, key)
		return nil, err
	}

	// Last cancellation point. Once the commit is issued it runs to
	// success or conflict even if the caller goes away.
	select {
	case <-ctx.Done():
		e.release(ctx, key)
		return nil, ctx.Err()
	default:
	}

	if err := e.store.Commit(context.WithoutCancel(ctx), ws); err != nil {
		if errors.Is(err, ledger.ErrVersionConflict) {
			return nil, err
		}
		e.release(ctx, key)
		return nil, fmt.Errorf("commit: %w", err)
	}

	slog.Info("trade executed",
		"trade_id", result.Trade.ID,
		"market", market.ID,
		"user", req.UserID,
		"type", req.Type,
		"shares", req.Shares.String(),
		"total", q.Total.String(),
		"fee", q.Fee.String(),
		"new_supply", market.TotalSupply.String(),
		"new_price", market.PriceCurrent.String(),
	)

	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type:   events.TradeExecuted,
			Market: *market,
			Trade:  result.Trade,
		})
	}
	return result, nil
}

// buildWriteSet turns a validated quote into the atomic write set: market
// accumulators, balance deltas merged per account, the trader's position,
// the immutable trade record, and the idempotency resolution.
func (e *Executor) buildWriteSet(ctx context.Context, key string, req TradeRequest, market *model.Market, balance *model.Balance, position *model.Position, q *model.Quote) (*ledger.WriteSet, *TradeResult, error) {
	now := time.Now().UTC()
	supplyBefore := market.TotalSupply

	alloc, err := e.splitter.Split(q.Fee)
	if err != nil {
		return nil, nil, fmt.Errorf("split fee: %w", err)
	}

	marketVersion := market.Version
	market.TotalSupply = q.NewSupply
	market.PriceCurrent = q.NewPrice
	market.TotalVolume = market.TotalVolume.Add(q.PriceBeforeFee)
	market.FeesCollected = market.FeesCollected.Add(q.Fee)
	market.LiquidityPool = market.LiquidityPool.Add(alloc.Liquidity)
	market.CreatorEarnings = market.CreatorEarnings.Add(alloc.Creator)
	market.LastTradeAt = now

	// Balance deltas, merged per account: the trader may itself be a fee
	// recipient, and an account must appear in the write set only once.
	deltas := make(map[string]decimal.Decimal)
	if req.Type == model.TradeTypeBuy {
		deltas[req.UserID] = q.Total.Neg()
	} else {
		deltas[req.UserID] = q.Total
	}
	if alloc.Creator.IsPositive() {
		deltas[e.cfg.CreatorFeeAccount] = deltas[e.cfg.CreatorFeeAccount].Add(alloc.Creator)
	}
	if alloc.Platform.IsPositive() {
		deltas[e.cfg.PlatformAccount] = deltas[e.cfg.PlatformAccount].Add(alloc.Platform)
	}

	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	writes := make([]ledger.BalanceWrite, 0, len(ids))
	for _, id := range ids {
		rec := balance
		if id != req.UserID {
			rec, err = e.loadOrZeroBalance(ctx, id)
			if err != nil {
				return nil, nil, fmt.Errorf("load fee account %s: %w", id, err)
			}
		}
		rec.Amount = rec.Amount.Add(deltas[id])
		rec.UpdatedAt = now
		writes = append(writes, ledger.BalanceWrite{Balance: rec, ExpectedVersion: rec.Version})
	}

	positionVersion := position.Version
	if req.Type == model.TradeTypeBuy {
		// Weighted average over pre-fee cost; sells leave it unchanged.
		newShares := position.SharesOwned.Add(req.Shares)
		basis := position.SharesOwned.Mul(position.AvgBuyPrice).Add(q.PriceBeforeFee)
		position.AvgBuyPrice = basis.Div(newShares).Round(curve.Scale)
		position.SharesOwned = newShares
	} else {
		// A fully sold position is zeroed in place, not deleted.
		position.SharesOwned = position.SharesOwned.Sub(req.Shares)
	}
	position.UpdatedAt = now

	trade := &model.Trade{
		ID:            uuid.NewSHA1(tradeNamespace, []byte(key)).String(),
		MarketID:      market.ID,
		UserID:        req.UserID,
		Type:          req.Type,
		Shares:        req.Shares,
		PricePerShare: q.AvgPrice,
		TotalAmount:   q.Total,
		FeeAmount:     q.Fee,
		SupplyBefore:  supplyBefore,
		SupplyAfter:   q.NewSupply,
		Version:       1,
		CreatedAt:     now,
	}

	ws := &ledger.WriteSet{
		Market:   &ledger.MarketWrite{Market: market, ExpectedVersion: marketVersion},
		Balances: writes,
		Position: &ledger.PositionWrite{Position: position, ExpectedVersion: positionVersion},
		Trade:    trade,
		Resolve:  &ledger.IdempotencyResolve{Key: key, TradeID: trade.ID},
	}
	result := &TradeResult{Trade: trade, Balance: balance, Position: position}
	return ws, result, nil
}

// replay answers a request from its resolved idempotency record.
func (e *Executor) replay(ctx context.Context, rec *model.IdempotencyRecord) (*TradeResult, error) {
	switch rec.Status {
	case model.IdempotencyCommitted:
		metrics.IdempotentReplays.Inc()
		trade, err := e.store.GetTrade(ctx, rec.TradeID)
		if err != nil {
			return nil, fmt.Errorf("replay trade %s: %w", rec.TradeID, err)
		}
		balance, err := e.store.GetBalance(ctx, trade.UserID)
		if err != nil {
			return nil, fmt.Errorf("replay balance %s: %w", trade.UserID, err)
		}
		position, err := e.store.GetPosition(ctx, trade.UserID, trade.MarketID)
		if err != nil {
			return nil, fmt.Errorf("replay position: %w", err)
		}
		slog.Info("trade replayed", "trade_id", trade.ID, "key", rec.Key)
		return &TradeResult{Trade: trade, Balance: balance, Position: position, Replayed: true}, nil

	case model.IdempotencyRejected:
		metrics.IdempotentReplays.Inc()
		return nil, rejectionError(rec.Reason)

	default:
		return nil, ErrDuplicateInFlight
	}
}

// --- Quotes ---

// GetQuote prices a prospective trade against current market state
// without reserving anything.
func (e *Executor) GetQuote(ctx context.Context, marketID, tradeType string, shares decimal.Decimal) (*model.Quote, error) {
	market, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		if errors.Is(err, ledger.ErrMarketNotFound) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("load market: %w", err)
	}

	q, err := e.quoter.Build(market, tradeType, shares)
	if err != nil {
		_, mapped := classifyQuoteError(err)
		return nil, mapped
	}
	return q, nil
}

// --- Market lifecycle ---

// CreateMarket lists a market for a post at the configured seed supply.
// Listing an already-listed post returns the existing market with
// created false.
func (e *Executor) CreateMarket(ctx context.Context, postRef string) (*model.Market, bool, error) {
	ref, err := resource.ParseRef(postRef)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	market := &model.Market{
		ID:           uuid.New().String(),
		PostRef:      ref.Ref,
		TotalSupply:  e.cfg.SeedSupply,
		PriceCurrent: e.quoter.Params().Price(e.cfg.SeedSupply),
		CreatedAt:    now,
		LastTradeAt:  now,
	}

	if err := e.store.CreateMarket(ctx, market); err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			existing, gerr := e.store.GetMarketByPost(ctx, ref.Ref)
			if gerr != nil {
				return nil, false, fmt.Errorf("load existing market: %w", gerr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create market: %w", err)
	}

	metrics.ActiveMarkets.Inc()
	slog.Info("market created",
		"id", market.ID,
		"post", ref.Ref,
		"seed_supply", market.TotalSupply.String(),
		"price", market.PriceCurrent.String(),
	)

	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.MarketCreated, Market: *market})
	}
	return market, true, nil
}

// SetMarketFrozen toggles a market's frozen flag through the same
// version-guarded commit path trades use.
func (e *Executor) SetMarketFrozen(ctx context.Context, marketID string, frozen bool) (*model.Market, error) {
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.backoff(attempt)):
			}
		}

		market, err := e.store.GetMarket(ctx, marketID)
		if err != nil {
			if errors.Is(err, ledger.ErrMarketNotFound) {
				return nil, ErrMarketNotFound
			}
			return nil, fmt.Errorf("load market: %w", err)
		}
		if market.IsFrozen == frozen {
			return market, nil
		}

		market.IsFrozen = frozen
		ws := &ledger.WriteSet{
			Market: &ledger.MarketWrite{Market: market, ExpectedVersion: market.Version},
		}
		err = e.store.Commit(context.WithoutCancel(ctx), ws)
		if errors.Is(err, ledger.ErrVersionConflict) {
			metrics.CommitConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("commit freeze: %w", err)
		}

		slog.Info("market freeze toggled", "id", marketID, "frozen", frozen)
		if e.bus != nil {
			evType := events.MarketFrozen
			if !frozen {
				evType = events.MarketUnfrozen
			}
			e.bus.Publish(events.Event{Type: evType, Market: *market})
		}
		return market, nil
	}

	metrics.ContentionAborts.Inc()
	return nil, ErrContention
}

// --- Accounts ---

// EnsureAccount provisions a balance with the starting credits. Calling
// it for an existing account returns the current balance unchanged, with
// created false.
func (e *Executor) EnsureAccount(ctx context.Context, userID string) (*model.Balance, bool, error) {
	balance := &model.Balance{
		UserID:    userID,
		Amount:    e.cfg.StartingBalance,
		UpdatedAt: time.Now().UTC(),
	}
	err := e.store.CreateBalance(ctx, balance)
	if errors.Is(err, ledger.ErrAlreadyExists) {
		existing, gerr := e.store.GetBalance(ctx, userID)
		return existing, false, gerr
	}
	if err != nil {
		return nil, false, fmt.Errorf("create balance: %w", err)
	}

	slog.Info("account provisioned", "user", userID, "starting_balance", balance.Amount.String())
	return balance, true, nil
}

// --- Maintenance ---

// PurgeExpiredIdempotency removes idempotency records past their
// retention window. The cron sweeper calls this periodically.
func (e *Executor) PurgeExpiredIdempotency(ctx context.Context) (int, error) {
	purged, err := e.store.PurgeExpiredIdempotency(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge idempotency: %w", err)
	}
	if purged > 0 {
		metrics.IdempotencyPurged.Add(float64(purged))
		slog.Info("idempotency records purged", "count", purged)
	}
	return purged, nil
}

// --- Helpers ---

func (e *Executor) loadOrZeroBalance(ctx context.Context, userID string) (*model.Balance, error) {
	b, err := e.store.GetBalance(ctx, userID)
	if errors.Is(err, ledger.ErrBalanceNotFound) {
		// Fee accounts are provisioned lazily at zero.
		return &model.Balance{UserID: userID, Amount: decimal.Zero}, nil
	}
	return b, err
}

// reject resolves a reservation to a recorded rejection.
func (e *Executor) reject(ctx context.Context, key, reason string) {
	if err := e.store.RejectIdempotency(context.WithoutCancel(ctx), key, reason); err != nil {
		slog.Error("idempotency reject failed", "key", key, "err", err)
	}
	metrics.TradeRejections.WithLabelValues(reason).Inc()
}

// release drops a reservation whose execution did not reach a commit.
func (e *Executor) release(ctx context.Context, key string) {
	if err := e.store.ReleaseIdempotency(context.WithoutCancel(ctx), key); err != nil {
		slog.Error("idempotency release failed", "key", key, "err", err)
	}
}

// backoff returns the sleep before retry attempt (1-based): exponential
// from MinBackoff, capped at MaxBackoff, with full jitter so conflicting
// writers do not re-collide in lockstep.
func (e *Executor) backoff(attempt int) time.Duration {
	d := e.cfg.MinBackoff << uint(attempt-1)
	if d > e.cfg.MaxBackoff || d <= 0 {
		d = e.cfg.MaxBackoff
	}
	return time.Duration(rand.Int63n(int64(d)))
}

// classifyQuoteError maps quote and curve errors to the executor's error
// taxonomy plus the rejection reason to record. An empty reason marks an
// error that is not a deterministic rejection.
func classifyQuoteError(err error) (string, error) {
	switch {
	case errors.Is(err, quote.ErrMarketFrozen):
		return reasonMarketFrozen, ErrMarketFrozen
	case errors.Is(err, quote.ErrBelowMinimum),
		errors.Is(err, quote.ErrInvalidType),
		errors.Is(err, curve.ErrInvalidQuantity):
		return reasonInvalidQuantity, ErrInvalidQuantity
	case errors.Is(err, curve.ErrInsufficientSupply):
		return reasonInsufficientSupply, ErrInsufficientSupply
	default:
		return "", err
	}
}

// rejectionError maps a recorded rejection reason back to its sentinel.
func rejectionError(reason string) error {
	if err, ok := reasonErrors[reason]; ok {
		return err
	}
	return fmt.Errorf("executor: rejected: %s", reason)
}
