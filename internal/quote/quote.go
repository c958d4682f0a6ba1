// Package quote prices prospective trades against a market snapshot.
// A quote is a pure computation over the snapshot it was built from; it
// carries no reservation and holds no lock, so by the time a trade commits
// the market may have moved and the executor re-quotes against fresh state.
package quote

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/socialfi/market-ledger/internal/curve"
	"github.com/socialfi/market-ledger/internal/model"
)

var (
	// ErrMarketFrozen is returned when quoting against a frozen market.
	ErrMarketFrozen = errors.New("quote: market is frozen")

	// ErrBelowMinimum is returned when the requested shares are smaller
	// than MinTradeSize.
	ErrBelowMinimum = errors.New("quote: trade below minimum size")

	// ErrInvalidType is returned for a trade type other than buy or sell.
	ErrInvalidType = errors.New("quote: trade type must be buy or sell")
)

// MinTradeSize is the smallest tradable share quantity.
var MinTradeSize = decimal.NewFromFloat(0.01)

// Builder prices buys and sells with a fixed set of curve parameters.
type Builder struct {
	params curve.Params
}

// NewBuilder creates a Builder over the given curve parameters.
func NewBuilder(params curve.Params) *Builder {
	return &Builder{params: params}
}

// Params returns the curve parameters quotes are priced with.
func (b *Builder) Params() curve.Params { return b.params }

// Build prices a trade of the given type against the market snapshot.
func (b *Builder) Build(market *model.Market, tradeType string, shares decimal.Decimal) (*model.Quote, error) {
	switch tradeType {
	case model.TradeTypeBuy:
		return b.Buy(market, shares)
	case model.TradeTypeSell:
		return b.Sell(market, shares)
	default:
		return nil, ErrInvalidType
	}
}

// Buy prices a buy of shares at the market's current supply.
func (b *Builder) Buy(market *model.Market, shares decimal.Decimal) (*model.Quote, error) {
	if err := b.validate(market, shares); err != nil {
		return nil, err
	}

	bq, err := b.params.BuyCost(market.TotalSupply, shares)
	if err != nil {
		return nil, err
	}

	return &model.Quote{
		MarketID:       market.ID,
		Type:           model.TradeTypeBuy,
		Shares:         shares,
		PriceBeforeFee: bq.CostBeforeFee,
		Fee:            bq.Fee,
		Total:          bq.Total,
		AvgPrice:       bq.AvgPrice,
		NewSupply:      bq.NewSupply,
		NewPrice:       bq.NewPrice,
	}, nil
}

// Sell prices a sell of shares at the market's current supply.
func (b *Builder) Sell(market *model.Market, shares decimal.Decimal) (*model.Quote, error) {
	if err := b.validate(market, shares); err != nil {
		return nil, err
	}

	sq, err := b.params.SellRevenue(market.TotalSupply, shares)
	if err != nil {
		return nil, err
	}

	return &model.Quote{
		MarketID:       market.ID,
		Type:           model.TradeTypeSell,
		Shares:         shares,
		PriceBeforeFee: sq.RevenueBeforeFee,
		Fee:            sq.Fee,
		Total:          sq.Net,
		AvgPrice:       sq.AvgPrice,
		NewSupply:      sq.NewSupply,
		NewPrice:       sq.NewPrice,
	}, nil
}

func (b *Builder) validate(market *model.Market, shares decimal.Decimal) error {
	if market.IsFrozen {
		return ErrMarketFrozen
	}
	if shares.LessThan(MinTradeSize) {
		return ErrBelowMinimum
	}
	return nil
}
