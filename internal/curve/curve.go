// Package curve implements the power-law bonding curve that prices a post's
// attention shares as a deterministic function of outstanding supply.
//
//	price(s)    = base * s^exponent
//	buyCost(s,x)  = base/(exponent+1) * ((s+x)^(exponent+1) - s^(exponent+1))
//	sellRev(s,x)  = base/(exponent+1) * (s^(exponent+1) - (s-x)^(exponent+1))
//
// The cost functions are the definite integral of price over the supply
// interval, so cost is path-independent: buying x then y costs the same as
// buying x+y at once (before fees).
//
// All monetary values use shopspring/decimal — never float64 for money.
// The fractional power is computed in float64 (exact decimal powers do not
// exist for non-integer exponents) with the result immediately converted to
// decimal and rounded to Scale. Inputs are validated non-negative first, so
// math.Pow never sees a domain error.
package curve

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidParams is returned when curve parameters fail validation.
	ErrInvalidParams = errors.New("curve: base and exponent must be positive and fee rate in [0, 1)")

	// ErrInvalidQuantity is returned when a trade quantity is zero or negative.
	ErrInvalidQuantity = errors.New("curve: share quantity must be positive")

	// ErrNegativeSupply is returned when a cost function is called with
	// negative supply. Committed markets never hold negative supply; this
	// guards direct callers.
	ErrNegativeSupply = errors.New("curve: supply cannot be negative")

	// ErrInsufficientSupply is returned when a sell would drive supply
	// below zero.
	ErrInsufficientSupply = errors.New("curve: cannot sell more shares than outstanding supply")

	// Scale is the number of decimal places for all price and credit
	// rounding. Rounding is half-up and applied to every computed value
	// before it is returned.
	Scale int32 = 6
)

// Params holds the immutable parameters of one bonding curve. Construct with
// NewParams; the zero value is not usable.
type Params struct {
	base     decimal.Decimal
	exponent decimal.Decimal
	feeRate  decimal.Decimal
}

// NewParams creates validated curve parameters.
// base > 0, exponent > 0, 0 <= feeRate < 1.
func NewParams(base, exponent, feeRate decimal.Decimal) (Params, error) {
	if base.LessThanOrEqual(decimal.Zero) || exponent.LessThanOrEqual(decimal.Zero) {
		return Params{}, ErrInvalidParams
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Params{}, ErrInvalidParams
	}
	return Params{base: base, exponent: exponent, feeRate: feeRate}, nil
}

// DefaultParams returns the standard curve: base 0.01, exponent 1.5,
// fee rate 2%.
func DefaultParams() Params {
	return Params{
		base:     decimal.NewFromFloat(0.01),
		exponent: decimal.NewFromFloat(1.5),
		feeRate:  decimal.NewFromFloat(0.02),
	}
}

// Base returns the base price coefficient.
func (p Params) Base() decimal.Decimal { return p.base }

// Exponent returns the supply exponent.
func (p Params) Exponent() decimal.Decimal { return p.exponent }

// FeeRate returns the proportional fee rate.
func (p Params) FeeRate() decimal.Decimal { return p.feeRate }

// BuyQuote is the priced breakdown of a prospective buy.
type BuyQuote struct {
	CostBeforeFee decimal.Decimal // integral of price over (supply, supply+shares]
	Fee           decimal.Decimal // costBeforeFee * feeRate
	Total         decimal.Decimal // costBeforeFee + fee, debited from the buyer
	AvgPrice      decimal.Decimal // costBeforeFee / shares
	NewSupply     decimal.Decimal
	NewPrice      decimal.Decimal
}

// SellQuote is the priced breakdown of a prospective sell.
type SellQuote struct {
	RevenueBeforeFee decimal.Decimal // integral of price over (supply-shares, supply]
	Fee              decimal.Decimal // revenueBeforeFee * feeRate
	Net              decimal.Decimal // revenueBeforeFee - fee, credited to the seller
	AvgPrice         decimal.Decimal // revenueBeforeFee / shares
	NewSupply        decimal.Decimal
	NewPrice         decimal.Decimal
}

// Price returns the instantaneous spot price at the given supply:
//
//	price(s) = base * s^exponent
//
// Monotonically non-decreasing for s >= 0, with price(0) = 0. Negative
// supply is clamped to zero.
func (p Params) Price(supply decimal.Decimal) decimal.Decimal {
	if supply.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero.Round(Scale)
	}
	bf := p.base.InexactFloat64()
	sf := supply.InexactFloat64()
	ef := p.exponent.InexactFloat64()

	return decimal.NewFromFloat(bf * math.Pow(sf, ef)).Round(Scale)
}

// integral computes base/(exponent+1) * (hi^(exponent+1) - lo^(exponent+1)),
// the exact pre-fee credit amount for moving supply from lo to hi.
// Callers guarantee 0 <= lo <= hi.
func (p Params) integral(lo, hi decimal.Decimal) decimal.Decimal {
	bf := p.base.InexactFloat64()
	ef := p.exponent.InexactFloat64() + 1
	lof := lo.InexactFloat64()
	hif := hi.InexactFloat64()

	amount := bf / ef * (math.Pow(hif, ef) - math.Pow(lof, ef))
	return decimal.NewFromFloat(amount).Round(Scale)
}

// BuyCost prices a buy of shares at the given supply. The cost is the
// curve integral from supply to supply+shares, plus the proportional fee.
func (p Params) BuyCost(supply, shares decimal.Decimal) (*BuyQuote, error) {
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidQuantity
	}
	if supply.IsNegative() {
		return nil, ErrNegativeSupply
	}

	newSupply := supply.Add(shares)
	cost := p.integral(supply, newSupply)
	fee := cost.Mul(p.feeRate).Round(Scale)

	return &BuyQuote{
		CostBeforeFee: cost,
		Fee:           fee,
		Total:         cost.Add(fee),
		AvgPrice:      cost.Div(shares).Round(Scale),
		NewSupply:     newSupply,
		NewPrice:      p.Price(newSupply),
	}, nil
}

// SellRevenue prices a sell of shares at the given supply. The revenue is
// the curve integral from supply-shares to supply, minus the proportional
// fee. Selling more than the outstanding supply is ErrInsufficientSupply.
func (p Params) SellRevenue(supply, shares decimal.Decimal) (*SellQuote, error) {
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidQuantity
	}
	if supply.IsNegative() {
		return nil, ErrNegativeSupply
	}
	if shares.GreaterThan(supply) {
		return nil, ErrInsufficientSupply
	}

	newSupply := supply.Sub(shares)
	revenue := p.integral(newSupply, supply)
	fee := revenue.Mul(p.feeRate).Round(Scale)

	return &SellQuote{
		RevenueBeforeFee: revenue,
		Fee:              fee,
		Net:              revenue.Sub(fee),
		AvgPrice:         revenue.Div(shares).Round(Scale),
		NewSupply:        newSupply,
		NewPrice:         p.Price(newSupply),
	}, nil
}
