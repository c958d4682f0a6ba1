// Package risk enforces exposure limits across attention markets.
//
// Markets sourced from the same social network fail together: a platform
// outage, a ban wave, or a feed-algorithm change moves every post on that
// network at once. A user buying into thirty Farcaster markets holds
// correlated risk, not thirty independent bets. This package caps both the
// position in a single market and the aggregate shares held across one
// network, grouping markets by the network component of their post refs.
package risk

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMarketLimitExceeded is returned when a buy would push the user's
	// position in a single market beyond the per-market maximum.
	ErrMarketLimitExceeded = errors.New("risk: per-market position limit exceeded")

	// ErrNetworkLimitExceeded is returned when a buy would push the user's
	// aggregate shares across markets on the same network beyond the
	// per-network maximum.
	ErrNetworkLimitExceeded = errors.New("risk: network exposure limit exceeded")
)

// ExposureLimiter caps a user's share holdings per market and per source
// network. Only buys are checked; sells reduce exposure and always pass.
//
// Post refs carry their network as the component before the first colon
// ("reddit:t3_9x8yz" belongs to the "reddit" group), so correlation
// grouping is a prefix match on the ref, no lookup required.
type ExposureLimiter struct {
	// MaxPerMarket is the maximum shares held in any single market.
	// Zero or negative disables the per-market check.
	MaxPerMarket decimal.Decimal

	// MaxPerNetwork is the maximum aggregate shares held across all
	// markets whose posts come from the same network. Zero or negative
	// disables the per-network check.
	MaxPerNetwork decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given per-market and
// per-network share caps.
func NewExposureLimiter(maxPerMarket, maxPerNetwork decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{
		MaxPerMarket:  maxPerMarket,
		MaxPerNetwork: maxPerNetwork,
	}
}

// CheckBuy validates whether buying `shares` in the market for targetRef
// respects the exposure limits, given the user's current holdings keyed
// by post ref. Returns nil if the buy is within limits.
func (l *ExposureLimiter) CheckBuy(
	targetRef string,
	shares decimal.Decimal,
	exposures map[string]decimal.Decimal,
) error {
	// 1. Per-market limit.
	newHolding := exposures[targetRef].Add(shares)

	if l.MaxPerMarket.IsPositive() && newHolding.GreaterThan(l.MaxPerMarket) {
		return ErrMarketLimitExceeded
	}

	// 2. Network exposure: sum shares across markets sharing the network.
	if !l.MaxPerNetwork.IsPositive() {
		return nil
	}

	targetNetwork := refNetwork(targetRef)
	totalOnNetwork := newHolding

	for ref, owned := range exposures {
		if ref == targetRef {
			continue // already counted via newHolding above
		}
		if refNetwork(ref) == targetNetwork {
			totalOnNetwork = totalOnNetwork.Add(owned)
		}
	}

	if totalOnNetwork.GreaterThan(l.MaxPerNetwork) {
		return ErrNetworkLimitExceeded
	}

	return nil
}

// refNetwork returns the network component of a post ref, the part before
// the first colon.
func refNetwork(ref string) string {
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		return ref[:i]
	}
	return ref
}
