// Package fees splits trade fees between the post creator, the platform,
// and the market's liquidity pool.
//
// The split is pure arithmetic: it never touches the ledger. The executor
// folds the resulting shares into the same atomic write set as the trade
// itself, so fee credits can never be applied without the trade committing.
package fees

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSplit is returned when the three proportions are negative
	// or do not sum to exactly 1.
	ErrInvalidSplit = errors.New("fees: split proportions must be non-negative and sum to 1")

	// ErrNegativeFee is returned when a negative fee is passed to Split.
	ErrNegativeFee = errors.New("fees: fee cannot be negative")

	// Scale is the rounding scale for fee shares, matching credit precision.
	Scale int32 = 6
)

// Splitter divides a fee into creator, platform, and liquidity shares.
type Splitter struct {
	// CreatorPct is the proportion credited to the post creator's
	// recipient account.
	CreatorPct decimal.Decimal

	// PlatformPct is the proportion credited to the platform account.
	PlatformPct decimal.Decimal

	// LiquidityPct is the proportion retained in the market's liquidity
	// pool.
	LiquidityPct decimal.Decimal
}

// Allocation is the result of splitting one fee. The three shares always
// sum to exactly the input fee.
type Allocation struct {
	Creator   decimal.Decimal
	Platform  decimal.Decimal
	Liquidity decimal.Decimal
}

// NewSplitter creates a splitter with the given proportions. The three
// values must be non-negative and sum to exactly 1.
func NewSplitter(creatorPct, platformPct, liquidityPct decimal.Decimal) (*Splitter, error) {
	if creatorPct.IsNegative() || platformPct.IsNegative() || liquidityPct.IsNegative() {
		return nil, ErrInvalidSplit
	}
	if !creatorPct.Add(platformPct).Add(liquidityPct).Equal(decimal.NewFromInt(1)) {
		return nil, ErrInvalidSplit
	}
	return &Splitter{
		CreatorPct:   creatorPct,
		PlatformPct:  platformPct,
		LiquidityPct: liquidityPct,
	}, nil
}

// DefaultSplitter returns the standard 50/30/20 creator/platform/liquidity
// split.
func DefaultSplitter() *Splitter {
	s, _ := NewSplitter(
		decimal.NewFromFloat(0.5),
		decimal.NewFromFloat(0.3),
		decimal.NewFromFloat(0.2),
	)
	return s
}

// Split divides fee into the three shares. Creator and platform shares are
// rounded to Scale; the liquidity share takes the exact remainder, so
// Creator + Platform + Liquidity == fee with no credits created or lost.
// If rounding makes the first two shares overshoot the fee (possible only
// at microcredit scale), the platform share absorbs the difference.
func (s *Splitter) Split(fee decimal.Decimal) (Allocation, error) {
	if fee.IsNegative() {
		return Allocation{}, ErrNegativeFee
	}

	creator := fee.Mul(s.CreatorPct).Round(Scale)
	platform := fee.Mul(s.PlatformPct).Round(Scale)
	liquidity := fee.Sub(creator).Sub(platform)

	if liquidity.IsNegative() {
		platform = platform.Add(liquidity)
		liquidity = decimal.Zero
	}

	return Allocation{
		Creator:   creator,
		Platform:  platform,
		Liquidity: liquidity,
	}, nil
}
