package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/socialfi/market-ledger/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Only the read-only query surface belongs behind this wrapper. The trade
// executor must read from the primary store directly: its version-guarded
// commits need fresh reads, and a cached version would only buy it a
// guaranteed conflict.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetMarketByPost(ctx context.Context, postRef string) (*model.Market, error) {
	// Try cache via post→marketID mapping.
	marketID, err := s.rdb.Get(ctx, postKey(postRef)).Result()
	if err == nil {
		return s.GetMarket(ctx, marketID)
	}

	m, err := s.primary.GetMarketByPost(ctx, postRef)
	if err != nil {
		return nil, err
	}

	// Cache both the market and the post→ID mapping.
	s.cacheMarket(ctx, m)
	s.rdb.Set(ctx, postKey(postRef), m.ID, s.ttl)
	return m, nil
}

func (s *CachedStore) GetBalance(ctx context.Context, userID string) (*model.Balance, error) {
	data, err := s.rdb.Get(ctx, balanceKey(userID)).Bytes()
	if err == nil {
		var b model.Balance
		if json.Unmarshal(data, &b) == nil {
			return &b, nil
		}
	}

	b, err := s.primary.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(b); err == nil {
		s.rdb.Set(ctx, balanceKey(userID), data, s.ttl)
	}
	return b, nil
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(userID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) TopBalances(ctx context.Context, limit int) ([]model.Balance, error) {
	return s.primary.TopBalances(ctx, limit)
}

func (s *CachedStore) GetPosition(ctx context.Context, userID, marketID string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userID, marketID)
}

func (s *CachedStore) UserExposures(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	return s.primary.UserExposures(ctx, userID)
}

func (s *CachedStore) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	return s.primary.GetTrade(ctx, id)
}

func (s *CachedStore) ListTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.Trade, error) {
	return s.primary.ListTradesByMarket(ctx, marketID, limit)
}

func (s *CachedStore) ListTradesByUser(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	return s.primary.ListTradesByUser(ctx, userID, limit)
}

// --- Writes (forward to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	s.rdb.Set(ctx, postKey(m.PostRef), m.ID, s.ttl)
	return nil
}

func (s *CachedStore) CreateBalance(ctx context.Context, b *model.Balance) error {
	if err := s.primary.CreateBalance(ctx, b); err != nil {
		return err
	}
	// Invalidate rather than populate; next read re-caches.
	s.rdb.Del(ctx, balanceKey(b.UserID))
	return nil
}

func (s *CachedStore) Commit(ctx context.Context, ws *WriteSet) error {
	if err := s.primary.Commit(ctx, ws); err != nil {
		return err
	}
	if ws == nil {
		return nil
	}

	// Invalidate everything the write set touched; next read re-populates.
	var keys []string
	if ws.Market != nil {
		keys = append(keys, marketKey(ws.Market.Market.ID))
	}
	for i := range ws.Balances {
		keys = append(keys, balanceKey(ws.Balances[i].Balance.UserID))
	}
	if ws.Position != nil {
		keys = append(keys, positionsKey(ws.Position.Position.UserID))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// --- Idempotency passthrough (never cached) ---

func (s *CachedStore) ReserveIdempotency(ctx context.Context, rec *model.IdempotencyRecord) error {
	return s.primary.ReserveIdempotency(ctx, rec)
}

func (s *CachedStore) LookupIdempotency(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	return s.primary.LookupIdempotency(ctx, key)
}

func (s *CachedStore) ReleaseIdempotency(ctx context.Context, key string) error {
	return s.primary.ReleaseIdempotency(ctx, key)
}

func (s *CachedStore) RejectIdempotency(ctx context.Context, key, reason string) error {
	return s.primary.RejectIdempotency(ctx, key, reason)
}

func (s *CachedStore) PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int, error) {
	return s.primary.PurgeExpiredIdempotency(ctx, now)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func marketKey(id string) string      { return fmt.Sprintf("market:%s", id) }
func postKey(ref string) string       { return fmt.Sprintf("post:%s", ref) }
func balanceKey(uid string) string    { return fmt.Sprintf("balance:%s", uid) }
func positionsKey(uid string) string  { return fmt.Sprintf("positions:%s", uid) }
