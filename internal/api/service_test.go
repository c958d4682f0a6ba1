package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/socialfi/market-ledger/internal/api"
	"github.com/socialfi/market-ledger/internal/curve"
	"github.com/socialfi/market-ledger/internal/executor"
	"github.com/socialfi/market-ledger/internal/fees"
	"github.com/socialfi/market-ledger/internal/ledger"
	"github.com/socialfi/market-ledger/internal/model"
	"github.com/socialfi/market-ledger/internal/quote"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates an API service over an in-memory store with the
// default curve and fee split, mounted on a chi router.
func newTestEnv(t *testing.T) (*ledger.MemoryStore, chi.Router) {
	t.Helper()
	ms := ledger.NewMemoryStore()
	ex := executor.New(ms, quote.NewBuilder(curve.DefaultParams()), fees.DefaultSplitter(), nil, executor.DefaultConfig(), nil)
	svc := api.NewService(ex, ms, 0)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		svc.Mount(r)
	})
	return ms, r
}

func doPost(t *testing.T, router chi.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doGet(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// seedMarket creates a market directly in the store at supply 100.
func seedMarket(t *testing.T, ms *ledger.MemoryStore, id, postRef string, createdAt time.Time) *model.Market {
	t.Helper()
	market := &model.Market{
		ID:           id,
		PostRef:      postRef,
		TotalSupply:  d(100),
		PriceCurrent: d(10),
		CreatedAt:    createdAt,
	}
	if err := ms.CreateMarket(context.Background(), market); err != nil {
		t.Fatalf("failed to seed market: %v", err)
	}
	return market
}

func seedAccount(t *testing.T, ms *ledger.MemoryStore, userID string, amount decimal.Decimal) {
	t.Helper()
	b := &model.Balance{UserID: userID, Amount: amount, UpdatedAt: time.Now().UTC()}
	if err := ms.CreateBalance(context.Background(), b); err != nil {
		t.Fatalf("failed to seed balance: %v", err)
	}
}

func tradeBody(user, market, typ string, shares float64, key string) api.TradeBody {
	return api.TradeBody{
		UserID:         user,
		MarketID:       market,
		Type:           typ,
		Shares:         d(shares),
		IdempotencyKey: key,
	}
}

// --- Account tests ---

func TestCreateAccount(t *testing.T) {
	_, router := newTestEnv(t)

	w := doPost(t, router, "/api/v1/accounts", api.CreateAccountRequest{UserID: "alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var balance model.Balance
	json.Unmarshal(w.Body.Bytes(), &balance)
	if !balance.Amount.Equal(d(1000)) {
		t.Errorf("expected starting balance 1000, got %s", balance.Amount)
	}

	// Provisioning twice is idempotent: 200 with the current balance.
	w = doPost(t, router, "/api/v1/accounts", api.CreateAccountRequest{UserID: "alice"})
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for existing account, got %d", w.Code)
	}

	w = doPost(t, router, "/api/v1/accounts", api.CreateAccountRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing user_id, got %d", w.Code)
	}
}

func TestGetBalance(t *testing.T) {
	ms, router := newTestEnv(t)
	seedAccount(t, ms, "alice", d(750))

	w := doGet(t, router, "/api/v1/accounts/alice/balance")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var balance model.Balance
	json.Unmarshal(w.Body.Bytes(), &balance)
	if !balance.Amount.Equal(d(750)) {
		t.Errorf("expected balance 750, got %s", balance.Amount)
	}

	w = doGet(t, router, "/api/v1/accounts/nobody/balance")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown account, got %d", w.Code)
	}
}

// --- Trade execution tests ---

func TestExecuteTrade_HTTP(t *testing.T) {
	ms, router := newTestEnv(t)
	seedMarket(t, ms, "m1", "reddit:abc123", time.Now().UTC())
	seedAccount(t, ms, "alice", d(1000))

	w := doPost(t, router, "/api/v1/trade", tradeBody("alice", "m1", "buy", 10, "k1"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.TradeResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	want, _ := curve.DefaultParams().BuyCost(d(100), d(10))
	if resp.Trade == nil || resp.Trade.ID == "" {
		t.Fatal("expected trade in response")
	}
	if !resp.Trade.TotalAmount.Equal(want.Total) {
		t.Errorf("expected total %s, got %s", want.Total, resp.Trade.TotalAmount)
	}
	if !resp.Balance.Equal(d(1000).Sub(want.Total)) {
		t.Errorf("expected balance %s, got %s", d(1000).Sub(want.Total), resp.Balance)
	}
	if resp.Position == nil || !resp.Position.SharesOwned.Equal(d(10)) {
		t.Errorf("expected position of 10 shares, got %+v", resp.Position)
	}
	if resp.Replayed {
		t.Error("fresh trade should not be marked replayed")
	}

	// Same idempotency key: same trade, flagged as a replay.
	w = doPost(t, router, "/api/v1/trade", tradeBody("alice", "m1", "buy", 10, "k1"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for replay, got %d: %s", w.Code, w.Body.String())
	}
	var replay api.TradeResponse
	json.Unmarshal(w.Body.Bytes(), &replay)
	if !replay.Replayed {
		t.Error("expected replayed flag on duplicate key")
	}
	if replay.Trade.ID != resp.Trade.ID {
		t.Errorf("replay should return the same trade: %s != %s", replay.Trade.ID, resp.Trade.ID)
	}
}

func TestExecuteTrade_Validation(t *testing.T) {
	ms, router := newTestEnv(t)
	seedMarket(t, ms, "m1", "reddit:abc123", time.Now().UTC())
	seedAccount(t, ms, "alice", d(1000))

	tests := []struct {
		name string
		body api.TradeBody
	}{
		{"missing user_id", tradeBody("", "m1", "buy", 5, "k1")},
		{"missing market_id", tradeBody("alice", "", "buy", 5, "k1")},
		{"bad type", tradeBody("alice", "m1", "hold", 5, "k1")},
		{"missing idempotency_key", tradeBody("alice", "m1", "buy", 5, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doPost(t, router, "/api/v1/trade", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestExecuteTrade_ErrorStatuses(t *testing.T) {
	ms, router := newTestEnv(t)
	seedMarket(t, ms, "m1", "reddit:abc123", time.Now().UTC())
	seedAccount(t, ms, "alice", d(1000))
	seedAccount(t, ms, "pauper", d(1))

	tests := []struct {
		name string
		body api.TradeBody
		want int
	}{
		{"insufficient balance", tradeBody("pauper", "m1", "buy", 50, "e1"), http.StatusPaymentRequired},
		{"insufficient shares", tradeBody("alice", "m1", "sell", 5, "e2"), http.StatusConflict},
		{"zero shares", tradeBody("alice", "m1", "buy", 0, "e3"), http.StatusBadRequest},
		{"unknown market", tradeBody("alice", "missing", "buy", 5, "e4"), http.StatusNotFound},
		{"unknown account", tradeBody("ghost", "m1", "buy", 5, "e5"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doPost(t, router, "/api/v1/trade", tt.body); w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

// --- Market tests ---

func TestCreateMarket_HTTP(t *testing.T) {
	_, router := newTestEnv(t)

	w := doPost(t, router, "/api/v1/markets", api.CreateMarketRequest{PostRef: "farcaster:0xabc:cast:7"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var market model.Market
	json.Unmarshal(w.Body.Bytes(), &market)
	if !market.TotalSupply.Equal(d(100)) {
		t.Errorf("expected seed supply 100, got %s", market.TotalSupply)
	}

	// Listing the same post again returns the existing market with 200.
	w = doPost(t, router, "/api/v1/markets", api.CreateMarketRequest{PostRef: "farcaster:0xabc:cast:7"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate listing, got %d", w.Code)
	}
	var again model.Market
	json.Unmarshal(w.Body.Bytes(), &again)
	if again.ID != market.ID {
		t.Errorf("duplicate listing should return same market: %s != %s", again.ID, market.ID)
	}

	w = doPost(t, router, "/api/v1/markets", api.CreateMarketRequest{PostRef: "not a ref"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid ref, got %d", w.Code)
	}
	w = doPost(t, router, "/api/v1/markets", api.CreateMarketRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing post_ref, got %d", w.Code)
	}
}

func TestListMarkets_SortAndLimit(t *testing.T) {
	ms, router := newTestEnv(t)
	now := time.Now().UTC()

	oldest := seedMarket(t, ms, "m1", "reddit:aaa", now.Add(-2*time.Hour))
	middle := seedMarket(t, ms, "m2", "reddit:bbb", now.Add(-time.Hour))
	newest := seedMarket(t, ms, "m3", "reddit:ccc", now)

	// Distinct prices and volumes, out of creation order.
	bump := func(m *model.Market, price, volume float64) {
		m.PriceCurrent = d(price)
		m.TotalVolume = d(volume)
		ws := &ledger.WriteSet{Market: &ledger.MarketWrite{Market: m, ExpectedVersion: m.Version}}
		if err := ms.Commit(context.Background(), ws); err != nil {
			t.Fatalf("failed to set market state: %v", err)
		}
	}
	bump(oldest, 30, 100)
	bump(middle, 10, 900)
	bump(newest, 20, 500)

	get := func(path string) []model.Market {
		w := doGet(t, router, path)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, w.Code)
		}
		var markets []model.Market
		json.Unmarshal(w.Body.Bytes(), &markets)
		return markets
	}

	byNew := get("/api/v1/markets")
	if len(byNew) != 3 || byNew[0].ID != "m3" || byNew[2].ID != "m1" {
		t.Errorf("expected newest-first order m3..m1, got %v", marketIDs(byNew))
	}

	byPrice := get("/api/v1/markets?sort=price")
	if byPrice[0].ID != "m1" || byPrice[1].ID != "m3" {
		t.Errorf("expected price order m1,m3,m2, got %v", marketIDs(byPrice))
	}

	byVolume := get("/api/v1/markets?sort=volume&limit=2")
	if len(byVolume) != 2 || byVolume[0].ID != "m2" || byVolume[1].ID != "m3" {
		t.Errorf("expected volume order m2,m3, got %v", marketIDs(byVolume))
	}

	if w := doGet(t, router, "/api/v1/markets?sort=sideways"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown sort, got %d", w.Code)
	}
}

func marketIDs(markets []model.Market) []string {
	ids := make([]string, len(markets))
	for i, m := range markets {
		ids[i] = m.ID
	}
	return ids
}

func TestGetMarketQuote_HTTP(t *testing.T) {
	ms, router := newTestEnv(t)
	seedMarket(t, ms, "m1", "reddit:abc123", time.Now().UTC())

	w := doGet(t, router, "/api/v1/markets/m1/quote?type=buy&shares=10")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var q model.Quote
	json.Unmarshal(w.Body.Bytes(), &q)
	want, _ := curve.DefaultParams().BuyCost(d(100), d(10))
	if !q.Total.Equal(want.Total) {
		t.Errorf("expected total %s, got %s", want.Total, q.Total)
	}

	if w := doGet(t, router, "/api/v1/markets/m1/quote?type=maybe&shares=10"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad type, got %d", w.Code)
	}
	if w := doGet(t, router, "/api/v1/markets/m1/quote?type=buy&shares=ten"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad shares, got %d", w.Code)
	}
	if w := doGet(t, router, "/api/v1/markets/none/quote?type=buy&shares=10"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown market, got %d", w.Code)
	}
}

func TestGetMarketTrades_Feed(t *testing.T) {
	ms, router := newTestEnv(t)
	seedMarket(t, ms, "m1", "reddit:abc123", time.Now().UTC())
	seedAccount(t, ms, "alice", d(1000))

	doPost(t, router, "/api/v1/trade", tradeBody("alice", "m1", "buy", 5, "k1"))
	doPost(t, router, "/api/v1/trade", tradeBody("alice", "m1", "sell", 2, "k2"))

	w := doGet(t, router, "/api/v1/markets/m1/trades")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var trades []model.Trade
	json.Unmarshal(w.Body.Bytes(), &trades)
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Type != "sell" {
		t.Errorf("feed should be newest first, got %s first", trades[0].Type)
	}

	w = doGet(t, router, "/api/v1/markets/m1/trades?limit=1")
	json.Unmarshal(w.Body.Bytes(), &trades)
	if len(trades) != 1 {
		t.Errorf("expected 1 trade with limit=1, got %d", len(trades))
	}
}

// --- Portfolio tests ---

func TestGetPortfolio_HTTP(t *testing.T) {
	ms, router := newTestEnv(t)
	seedMarket(t, ms, "m1", "reddit:abc123", time.Now().UTC())
	seedAccount(t, ms, "alice", d(1000))

	doPost(t, router, "/api/v1/trade", tradeBody("alice", "m1", "buy", 10, "k1"))

	w := doGet(t, router, "/api/v1/accounts/alice/portfolio")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var portfolio model.Portfolio
	json.Unmarshal(w.Body.Bytes(), &portfolio)
	if len(portfolio.Entries) != 1 {
		t.Fatalf("expected 1 portfolio entry, got %d", len(portfolio.Entries))
	}

	entry := portfolio.Entries[0]
	if entry.PostRef != "reddit:abc123" {
		t.Errorf("expected post ref on entry, got %s", entry.PostRef)
	}
	wantValue := entry.Position.SharesOwned.Mul(entry.PriceCurrent).Round(curve.Scale)
	if !entry.CurrentValue.Equal(wantValue) {
		t.Errorf("expected current value %s, got %s", wantValue, entry.CurrentValue)
	}
	if !entry.UnrealizedPnL.Equal(entry.CurrentValue.Sub(entry.CostBasis)) {
		t.Errorf("PnL should be value minus basis, got %s", entry.UnrealizedPnL)
	}
	if !portfolio.TotalValue.Equal(portfolio.CashBalance.Add(entry.CurrentValue)) {
		t.Errorf("total value should be cash plus positions, got %s", portfolio.TotalValue)
	}

	if w := doGet(t, router, "/api/v1/accounts/nobody/portfolio"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown account, got %d", w.Code)
	}
}

// --- Leaderboard tests ---

func TestGetLeaderboard(t *testing.T) {
	ms, router := newTestEnv(t)
	seedAccount(t, ms, "rich", d(5000))
	seedAccount(t, ms, "mid", d(1000))
	seedAccount(t, ms, "poor", d(10))

	w := doGet(t, router, "/api/v1/leaderboard?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var balances []model.Balance
	json.Unmarshal(w.Body.Bytes(), &balances)
	if len(balances) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(balances))
	}
	if balances[0].UserID != "rich" || balances[1].UserID != "mid" {
		t.Errorf("expected rich,mid order, got %s,%s", balances[0].UserID, balances[1].UserID)
	}
}

// --- Admin tests ---

func TestFreezeUnfreeze(t *testing.T) {
	ms, router := newTestEnv(t)
	seedMarket(t, ms, "m1", "reddit:abc123", time.Now().UTC())
	seedAccount(t, ms, "alice", d(1000))

	w := doPost(t, router, "/api/v1/admin/markets/m1/freeze", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("freeze failed: %d %s", w.Code, w.Body.String())
	}
	var market model.Market
	json.Unmarshal(w.Body.Bytes(), &market)
	if !market.IsFrozen {
		t.Error("expected market to be frozen")
	}

	if w := doPost(t, router, "/api/v1/trade", tradeBody("alice", "m1", "buy", 5, "k1")); w.Code != http.StatusConflict {
		t.Errorf("expected 409 trading a frozen market, got %d", w.Code)
	}

	w = doPost(t, router, "/api/v1/admin/markets/m1/unfreeze", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unfreeze failed: %d", w.Code)
	}
	if w := doPost(t, router, "/api/v1/trade", tradeBody("alice", "m1", "buy", 5, "k2")); w.Code != http.StatusOK {
		t.Errorf("expected 200 after unfreeze, got %d: %s", w.Code, w.Body.String())
	}

	if w := doPost(t, router, "/api/v1/admin/markets/none/freeze", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 freezing unknown market, got %d", w.Code)
	}
}
