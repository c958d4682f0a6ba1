package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/socialfi/market-ledger/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Commit holds one mutex across the whole write set: guards are checked
// first, then all writes apply. That gives the same all-or-nothing
// semantics the Postgres implementation gets from a transaction.
type MemoryStore struct {
	mu            sync.RWMutex
	markets       map[string]*model.Market
	marketsByPost map[string]string // post_ref -> market id
	balances      map[string]*model.Balance
	positions     map[string]*model.Position // posKey(user, market)
	trades        map[string]*model.Trade
	tradeLog      []string // trade IDs in commit order
	idem          map[string]*model.IdempotencyRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:       make(map[string]*model.Market),
		marketsByPost: make(map[string]string),
		balances:      make(map[string]*model.Balance),
		positions:     make(map[string]*model.Position),
		trades:        make(map[string]*model.Trade),
		idem:          make(map[string]*model.IdempotencyRecord),
	}
}

func posKey(userID, marketID string) string {
	return userID + "\x00" + marketID
}

// --- Market reads ---

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, ErrMarketNotFound
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) GetMarketByPost(_ context.Context, postRef string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.marketsByPost[postRef]
	if !ok {
		return nil, ErrMarketNotFound
	}
	copy := *s.markets[id]
	return &copy, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool {
		if !markets[i].CreatedAt.Equal(markets[j].CreatedAt) {
			return markets[i].CreatedAt.After(markets[j].CreatedAt)
		}
		return markets[i].ID < markets[j].ID
	})
	return markets, nil
}

// --- Balance and position reads ---

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (*model.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[userID]
	if !ok {
		return nil, ErrBalanceNotFound
	}
	copy := *b
	return &copy, nil
}

func (s *MemoryStore) TopBalances(_ context.Context, limit int) ([]model.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balances := make([]model.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		balances = append(balances, *b)
	}
	sort.Slice(balances, func(i, j int) bool {
		if c := balances[i].Amount.Cmp(balances[j].Amount); c != 0 {
			return c > 0
		}
		return balances[i].UserID < balances[j].UserID
	})
	if limit > 0 && len(balances) > limit {
		balances = balances[:limit]
	}
	return balances, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, userID, marketID string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[posKey(userID, marketID)]
	if !ok {
		// Absent position reads as an empty Version-0 record, which a
		// write set commits as an insert.
		return &model.Position{
			UserID:      userID,
			MarketID:    marketID,
			SharesOwned: decimal.Zero,
			AvgBuyPrice: decimal.Zero,
		}, nil
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].MarketID < positions[j].MarketID
	})
	return positions, nil
}

func (s *MemoryStore) UserExposures(_ context.Context, userID string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exposures := make(map[string]decimal.Decimal)
	for _, p := range s.positions {
		if p.UserID != userID || !p.SharesOwned.IsPositive() {
			continue
		}
		m, ok := s.markets[p.MarketID]
		if !ok {
			continue
		}
		exposures[m.PostRef] = exposures[m.PostRef].Add(p.SharesOwned)
	}
	return exposures, nil
}

// --- Trade log reads ---

func (s *MemoryStore) GetTrade(_ context.Context, id string) (*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[id]
	if !ok {
		return nil, ErrTradeNotFound
	}
	copy := *t
	return &copy, nil
}

func (s *MemoryStore) ListTradesByMarket(_ context.Context, marketID string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectTrades(limit, func(t *model.Trade) bool { return t.MarketID == marketID }), nil
}

func (s *MemoryStore) ListTradesByUser(_ context.Context, userID string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectTrades(limit, func(t *model.Trade) bool { return t.UserID == userID }), nil
}

// collectTrades walks the commit log newest first. Caller holds the lock.
func (s *MemoryStore) collectTrades(limit int, match func(*model.Trade) bool) []model.Trade {
	var result []model.Trade
	for i := len(s.tradeLog) - 1; i >= 0; i-- {
		t := s.trades[s.tradeLog[i]]
		if !match(t) {
			continue
		}
		result = append(result, *t)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

// --- Inserts ---

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := s.marketsByPost[m.PostRef]; ok {
		return ErrAlreadyExists
	}
	m.Version = 1
	copy := *m
	s.markets[m.ID] = &copy
	s.marketsByPost[m.PostRef] = m.ID
	return nil
}

func (s *MemoryStore) CreateBalance(_ context.Context, b *model.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.balances[b.UserID]; ok {
		return ErrAlreadyExists
	}
	b.Version = 1
	copy := *b
	s.balances[b.UserID] = &copy
	return nil
}

// --- Atomic commit ---

func (s *MemoryStore) Commit(_ context.Context, ws *WriteSet) error {
	if ws == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Phase one: check every version guard before touching anything.
	// A missing record has no version, so it fails the guard too.
	if ws.Market != nil {
		cur, ok := s.markets[ws.Market.Market.ID]
		if !ok || cur.Version != ws.Market.ExpectedVersion {
			return ErrVersionConflict
		}
	}
	for i := range ws.Balances {
		bw := &ws.Balances[i]
		cur, ok := s.balances[bw.Balance.UserID]
		if bw.ExpectedVersion == 0 {
			if ok {
				return ErrVersionConflict
			}
			continue
		}
		if !ok || cur.Version != bw.ExpectedVersion {
			return ErrVersionConflict
		}
	}
	if ws.Position != nil {
		pw := ws.Position
		cur, ok := s.positions[posKey(pw.Position.UserID, pw.Position.MarketID)]
		if pw.ExpectedVersion == 0 {
			if ok {
				return ErrVersionConflict
			}
		} else if !ok || cur.Version != pw.ExpectedVersion {
			return ErrVersionConflict
		}
	}

	// Phase two: apply. Each record's Version advances to expected+1,
	// written back through the caller's pointers.
	if ws.Market != nil {
		ws.Market.Market.Version = ws.Market.ExpectedVersion + 1
		copy := *ws.Market.Market
		s.markets[copy.ID] = &copy
	}
	for i := range ws.Balances {
		bw := &ws.Balances[i]
		bw.Balance.Version = bw.ExpectedVersion + 1
		copy := *bw.Balance
		s.balances[copy.UserID] = &copy
	}
	if ws.Position != nil {
		ws.Position.Position.Version = ws.Position.ExpectedVersion + 1
		copy := *ws.Position.Position
		s.positions[posKey(copy.UserID, copy.MarketID)] = &copy
	}
	if ws.Trade != nil {
		copy := *ws.Trade
		if _, ok := s.trades[copy.ID]; !ok {
			s.tradeLog = append(s.tradeLog, copy.ID)
		}
		s.trades[copy.ID] = &copy
	}
	if ws.Resolve != nil {
		if rec, ok := s.idem[ws.Resolve.Key]; ok && rec.Status == model.IdempotencyReserved {
			copy := *rec
			copy.Status = model.IdempotencyCommitted
			copy.TradeID = ws.Resolve.TradeID
			s.idem[copy.Key] = &copy
		}
	}
	return nil
}

// --- Idempotency protocol ---

func (s *MemoryStore) ReserveIdempotency(_ context.Context, rec *model.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.idem[rec.Key]; ok {
		return ErrKeyReserved
	}
	copy := *rec
	s.idem[copy.Key] = &copy
	return nil
}

func (s *MemoryStore) LookupIdempotency(_ context.Context, key string) (*model.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.idem[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	copy := *rec
	return &copy, nil
}

func (s *MemoryStore) ReleaseIdempotency(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Only reservations are releasable. Committed and rejected records
	// stay for replay until the sweeper expires them.
	if rec, ok := s.idem[key]; ok && rec.Status == model.IdempotencyReserved {
		delete(s.idem, key)
	}
	return nil
}

func (s *MemoryStore) RejectIdempotency(_ context.Context, key, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.idem[key]
	if !ok || rec.Status != model.IdempotencyReserved {
		return nil
	}
	copy := *rec
	copy.Status = model.IdempotencyRejected
	copy.Reason = reason
	s.idem[key] = &copy
	return nil
}

func (s *MemoryStore) PurgeExpiredIdempotency(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, rec := range s.idem {
		if rec.ExpiresAt.Before(now) {
			delete(s.idem, key)
			purged++
		}
	}
	return purged, nil
}
