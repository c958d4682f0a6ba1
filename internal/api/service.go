// Package api provides the HTTP surface of the market ledger: accounts,
// market listing and queries, quotes, trade execution, portfolios, the
// leaderboard, and admin freeze controls.
//
// Handlers are thin: execution goes through the executor, queries go
// through the store (the cached store when Redis is configured). All
// monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/socialfi/market-ledger/internal/curve"
	"github.com/socialfi/market-ledger/internal/executor"
	"github.com/socialfi/market-ledger/internal/ledger"
	"github.com/socialfi/market-ledger/internal/model"
	"github.com/socialfi/market-ledger/internal/resource"
)

const defaultListLimit = 50

// Service handles HTTP requests. Writes go through the executor against
// the primary store; reads go through queries, which may be the Redis
// cached store.
type Service struct {
	exec          *executor.Executor
	queries       ledger.Store
	throttleLimit int
}

// NewService creates an API service. throttleLimit caps concurrent trade
// executions; <= 0 uses the default of 100.
func NewService(exec *executor.Executor, queries ledger.Store, throttleLimit int) *Service {
	if throttleLimit <= 0 {
		throttleLimit = 100
	}
	return &Service{
		exec:          exec,
		queries:       queries,
		throttleLimit: throttleLimit,
	}
}

// Mount attaches all API routes to the given router. The caller mounts
// this under its version prefix.
func (s *Service) Mount(r chi.Router) {
	r.Post("/accounts", s.CreateAccount)
	r.Get("/accounts/{userID}/balance", s.GetBalance)
	r.Get("/accounts/{userID}/portfolio", s.GetPortfolio)
	r.Get("/accounts/{userID}/trades", s.GetUserTrades)

	r.Post("/markets", s.CreateMarket)
	r.Get("/markets", s.ListMarkets)
	r.Get("/markets/{marketID}", s.GetMarket)
	r.Get("/markets/{marketID}/trades", s.GetMarketTrades)
	r.Get("/markets/{marketID}/quote", s.GetMarketQuote)

	// Trade execution is throttled: the commit path retries on conflict,
	// so unbounded concurrency just burns retries.
	r.With(middleware.Throttle(s.throttleLimit)).Post("/trade", s.ExecuteTrade)

	r.Get("/leaderboard", s.GetLeaderboard)

	r.Post("/admin/markets/{marketID}/freeze", s.FreezeMarket)
	r.Post("/admin/markets/{marketID}/unfreeze", s.UnfreezeMarket)
}

// --- Request/Response types ---

// CreateAccountRequest is the JSON body for account creation.
type CreateAccountRequest struct {
	UserID string `json:"user_id"`
}

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	PostRef string `json:"post_ref"` // {network}:{source_id}
}

// TradeBody is the JSON body for POST /trade.
type TradeBody struct {
	UserID         string          `json:"user_id"`
	MarketID       string          `json:"market_id"`
	Type           string          `json:"type"` // "buy" or "sell"
	Shares         decimal.Decimal `json:"shares"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// TradeResponse is the JSON body returned from POST /trade.
type TradeResponse struct {
	Trade    *model.Trade    `json:"trade"`
	Balance  decimal.Decimal `json:"balance"`
	Position *model.Position `json:"position"`
	Replayed bool            `json:"replayed,omitempty"`
}

// --- Account handlers ---

// CreateAccount handles POST /accounts
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	balance, created, err := s.exec.EnsureAccount(r.Context(), req.UserID)
	if err != nil {
		writeError(w, "failed to provision account", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, balance)
}

// GetBalance handles GET /accounts/{userID}/balance
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	balance, err := s.queries.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// GetPortfolio handles GET /accounts/{userID}/portfolio
// Returns cash, open positions marked to the current price, and PnL.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx := r.Context()

	balance, err := s.queries.GetBalance(ctx, userID)
	if err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}

	positions, err := s.queries.ListPositionsByUser(ctx, userID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	portfolio := model.Portfolio{
		UserID:      userID,
		CashBalance: balance.Amount,
		Entries:     []model.PortfolioEntry{},
		TotalValue:  balance.Amount,
		TotalPnL:    decimal.Zero,
	}

	for _, p := range positions {
		if !p.SharesOwned.IsPositive() {
			continue
		}
		market, err := s.queries.GetMarket(ctx, p.MarketID)
		if err != nil {
			continue
		}

		value := p.SharesOwned.Mul(market.PriceCurrent).Round(curve.Scale)
		basis := p.SharesOwned.Mul(p.AvgBuyPrice).Round(curve.Scale)
		portfolio.Entries = append(portfolio.Entries, model.PortfolioEntry{
			Position:      p,
			PostRef:       market.PostRef,
			PriceCurrent:  market.PriceCurrent,
			CurrentValue:  value,
			CostBasis:     basis,
			UnrealizedPnL: value.Sub(basis),
		})
		portfolio.TotalValue = portfolio.TotalValue.Add(value)
		portfolio.TotalPnL = portfolio.TotalPnL.Add(value.Sub(basis))
	}

	writeJSON(w, http.StatusOK, portfolio)
}

// GetUserTrades handles GET /accounts/{userID}/trades?limit=
func (s *Service) GetUserTrades(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	trades, err := s.queries.ListTradesByUser(r.Context(), userID, queryLimit(r))
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// --- Market handlers ---

// CreateMarket handles POST /markets
// Listing an already-listed post returns the existing market with 200.
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PostRef == "" {
		writeError(w, "post_ref is required", http.StatusBadRequest)
		return
	}

	market, created, err := s.exec.CreateMarket(r.Context(), req.PostRef)
	if err != nil {
		if errors.Is(err, resource.ErrInvalidRef) || errors.Is(err, resource.ErrInvalidNetwork) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, "failed to create market", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, market)
}

// ListMarkets handles GET /markets?sort=new|price|volume&limit=
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.queries.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	// Default order is newest first, straight from the store.
	switch r.URL.Query().Get("sort") {
	case "", "new":
	case "price":
		sort.SliceStable(markets, func(i, j int) bool {
			return markets[i].PriceCurrent.GreaterThan(markets[j].PriceCurrent)
		})
	case "volume":
		sort.SliceStable(markets, func(i, j int) bool {
			return markets[i].TotalVolume.GreaterThan(markets[j].TotalVolume)
		})
	default:
		writeError(w, "sort must be new, price, or volume", http.StatusBadRequest)
		return
	}

	if limit := queryLimit(r); limit > 0 && limit < len(markets) {
		markets = markets[:limit]
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	market, err := s.queries.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// GetMarketTrades handles GET /markets/{marketID}/trades?limit=
// Returns the market's trade feed, newest first.
func (s *Service) GetMarketTrades(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	trades, err := s.queries.ListTradesByMarket(r.Context(), marketID, queryLimit(r))
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetMarketQuote handles GET /markets/{marketID}/quote?type=buy&shares=10
// Prices a prospective trade without executing it.
func (s *Service) GetMarketQuote(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	tradeType := r.URL.Query().Get("type")
	if tradeType != model.TradeTypeBuy && tradeType != model.TradeTypeSell {
		writeError(w, "type must be buy or sell", http.StatusBadRequest)
		return
	}
	shares, err := decimal.NewFromString(r.URL.Query().Get("shares"))
	if err != nil {
		writeError(w, "shares must be a decimal number", http.StatusBadRequest)
		return
	}

	q, err := s.exec.GetQuote(r.Context(), marketID, tradeType, shares)
	if err != nil {
		writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// --- Trade execution ---

// ExecuteTrade handles POST /trade
// Runs the trade through the executor and returns the committed trade,
// the trader's new balance, and the updated position.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var body TradeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if body.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if body.MarketID == "" {
		writeError(w, "market_id is required", http.StatusBadRequest)
		return
	}
	if body.Type != model.TradeTypeBuy && body.Type != model.TradeTypeSell {
		writeError(w, "type must be buy or sell", http.StatusBadRequest)
		return
	}
	if body.IdempotencyKey == "" {
		writeError(w, "idempotency_key is required", http.StatusBadRequest)
		return
	}

	res, err := s.exec.ExecuteTrade(r.Context(), executor.TradeRequest{
		UserID:         body.UserID,
		MarketID:       body.MarketID,
		Type:           body.Type,
		Shares:         body.Shares,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		writeExecError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TradeResponse{
		Trade:    res.Trade,
		Balance:  res.Balance.Amount,
		Position: res.Position,
		Replayed: res.Replayed,
	})
}

// --- Leaderboard ---

// GetLeaderboard handles GET /leaderboard?limit=
// Returns the richest accounts by credit balance.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	balances, err := s.queries.TopBalances(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	if balances == nil {
		balances = []model.Balance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

// --- Admin handlers ---

// FreezeMarket handles POST /admin/markets/{marketID}/freeze
func (s *Service) FreezeMarket(w http.ResponseWriter, r *http.Request) {
	s.setFrozen(w, r, true)
}

// UnfreezeMarket handles POST /admin/markets/{marketID}/unfreeze
func (s *Service) UnfreezeMarket(w http.ResponseWriter, r *http.Request) {
	s.setFrozen(w, r, false)
}

func (s *Service) setFrozen(w http.ResponseWriter, r *http.Request, frozen bool) {
	marketID := chi.URLParam(r, "marketID")

	market, err := s.exec.SetMarketFrozen(r.Context(), marketID, frozen)
	if err != nil {
		writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// --- Helpers ---

// queryLimit parses ?limit=. Absent or unparseable values fall back to
// the default; 0 means no limit; values above 500 are capped.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return defaultListLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// writeExecError maps executor errors onto HTTP status codes.
func writeExecError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, executor.ErrInvalidQuantity):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, executor.ErrInsufficientBalance):
		writeError(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, executor.ErrInsufficientShares),
		errors.Is(err, executor.ErrInsufficientSupply),
		errors.Is(err, executor.ErrMarketFrozen),
		errors.Is(err, executor.ErrExposureLimit),
		errors.Is(err, executor.ErrDuplicateInFlight):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, executor.ErrMarketNotFound),
		errors.Is(err, executor.ErrAccountNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, executor.ErrContention):
		w.Header().Set("Retry-After", "1")
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
