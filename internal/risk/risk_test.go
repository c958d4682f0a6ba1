package risk

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckBuy_WithinLimits(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000))

	err := limiter.CheckBuy("reddit:t3_9x8yz", d(100), nil)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckBuy_PerMarketExceeded(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000))

	// Existing holding of 950 + new 100 = 1050 > 1000.
	existing := map[string]decimal.Decimal{
		"reddit:t3_9x8yz": d(950),
	}

	err := limiter.CheckBuy("reddit:t3_9x8yz", d(100), existing)
	if !errors.Is(err, ErrMarketLimitExceeded) {
		t.Errorf("expected ErrMarketLimitExceeded, got %v", err)
	}
}

func TestCheckBuy_PerMarketNotExceeded(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000))

	existing := map[string]decimal.Decimal{
		"reddit:t3_9x8yz": d(500),
	}

	err := limiter.CheckBuy("reddit:t3_9x8yz", d(100), existing)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckBuy_NetworkExceeded(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(2000))

	existing := map[string]decimal.Decimal{
		"reddit:t3_aaa": d(800),
		"reddit:t3_bbb": d(800),
		"reddit:t3_ccc": d(300),
	}

	// New buy of 200 in another reddit market:
	// total = 200 + 800 + 800 + 300 = 2100 > 2000
	err := limiter.CheckBuy("reddit:t3_ddd", d(200), existing)
	if !errors.Is(err, ErrNetworkLimitExceeded) {
		t.Errorf("expected ErrNetworkLimitExceeded, got %v", err)
	}
}

func TestCheckBuy_OtherNetworksIgnored(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(2000))

	existing := map[string]decimal.Decimal{
		"reddit:t3_aaa":         d(800),
		"farcaster:0xab:cast:9": d(900), // different network, excluded
	}

	// Reddit total = 500 + 800 = 1300 < 2000.
	err := limiter.CheckBuy("reddit:t3_bbb", d(500), existing)
	if err != nil {
		t.Errorf("other networks should be ignored, got %v", err)
	}
}

func TestCheckBuy_ZeroCapsDisabled(t *testing.T) {
	limiter := NewExposureLimiter(decimal.Zero, decimal.Zero)

	existing := map[string]decimal.Decimal{
		"reddit:t3_aaa": d(1e9),
	}

	if err := limiter.CheckBuy("reddit:t3_aaa", d(1e9), existing); err != nil {
		t.Errorf("zero caps should disable all checks, got %v", err)
	}
}

func TestCheckBuy_ViralPileOn(t *testing.T) {
	// A post going viral drags the whole network with it: 15 reddit
	// markets at 200 shares each is 3000 aggregate. One more buy of 100
	// anywhere on reddit crosses the 3000 network cap.
	limiter := NewExposureLimiter(d(500), d(3000))

	existing := make(map[string]decimal.Decimal)
	for i := 0; i < 15; i++ {
		existing[fmt.Sprintf("reddit:t3_%03d", i)] = d(200)
	}

	err := limiter.CheckBuy("reddit:t3_new", d(100), existing)
	if !errors.Is(err, ErrNetworkLimitExceeded) {
		t.Errorf("expected network limit exceeded for pile-on, got %v", err)
	}
}

func TestCheckBuy_NilExposures(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000))

	err := limiter.CheckBuy("x:1234567890", d(500), nil)
	if err != nil {
		t.Errorf("nil exposures should be treated as empty, got %v", err)
	}
}
