package curve

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Constructor tests ---

func TestNewParams_Valid(t *testing.T) {
	p, err := NewParams(d(0.01), d(1.5), d(0.02))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Base().Equal(d(0.01)) {
		t.Errorf("expected base=0.01, got %s", p.Base())
	}
	if !p.Exponent().Equal(d(1.5)) {
		t.Errorf("expected exponent=1.5, got %s", p.Exponent())
	}
	if !p.FeeRate().Equal(d(0.02)) {
		t.Errorf("expected fee rate=0.02, got %s", p.FeeRate())
	}
}

func TestNewParams_Invalid(t *testing.T) {
	tests := []struct {
		name                    string
		base, exponent, feeRate float64
	}{
		{"zero base", 0, 1.5, 0.02},
		{"negative base", -0.01, 1.5, 0.02},
		{"zero exponent", 0.01, 0, 0.02},
		{"negative exponent", 0.01, -1, 0.02},
		{"negative fee rate", 0.01, 1.5, -0.01},
		{"fee rate of one", 0.01, 1.5, 1},
		{"fee rate above one", 0.01, 1.5, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParams(d(tt.base), d(tt.exponent), d(tt.feeRate))
			if err != ErrInvalidParams {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestNewParams_ZeroFeeAllowed(t *testing.T) {
	if _, err := NewParams(d(3), d(2), decimal.Zero); err != nil {
		t.Errorf("zero fee rate should be valid, got %v", err)
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if !p.Base().Equal(d(0.01)) || !p.Exponent().Equal(d(1.5)) || !p.FeeRate().Equal(d(0.02)) {
		t.Errorf("unexpected defaults: base=%s exponent=%s fee=%s",
			p.Base(), p.Exponent(), p.FeeRate())
	}
}

// --- Price tests ---

func TestPrice_ZeroSupply(t *testing.T) {
	p := DefaultParams()
	if !p.Price(decimal.Zero).IsZero() {
		t.Errorf("price at zero supply should be 0, got %s", p.Price(decimal.Zero))
	}
}

func TestPrice_NegativeSupplyClamped(t *testing.T) {
	p := DefaultParams()
	if !p.Price(d(-5)).IsZero() {
		t.Errorf("price at negative supply should clamp to 0, got %s", p.Price(d(-5)))
	}
}

func TestPrice_KnownValues(t *testing.T) {
	p := DefaultParams()

	tests := []struct {
		supply, want float64
	}{
		{1, 0.01},      // 0.01 * 1^1.5
		{4, 0.08},      // 0.01 * 8
		{100, 10},      // 0.01 * 1000
		{10000, 10000}, // 0.01 * 1e6
	}
	for _, tt := range tests {
		got := p.Price(d(tt.supply))
		if !got.Equal(d(tt.want)) {
			t.Errorf("price(%g): expected %g, got %s", tt.supply, tt.want, got)
		}
	}
}

func TestPrice_MonotonicallyNonDecreasing(t *testing.T) {
	p := DefaultParams()

	supplies := []float64{0, 0.5, 1, 2, 10, 99.99, 100, 101, 1000, 50000}
	prev := decimal.NewFromInt(-1)
	for _, s := range supplies {
		price := p.Price(d(s))
		if price.LessThan(prev) {
			t.Errorf("price decreased at supply %g: %s < %s", s, price, prev)
		}
		prev = price
	}
}

// --- BuyCost tests ---

func TestBuyCost_KnownScenario(t *testing.T) {
	// Supply 100, buy 10 at default params:
	//   cost = 0.01/2.5 * (110^2.5 - 100^2.5) ≈ 107.623483
	p := DefaultParams()

	q, err := p.BuyCost(d(100), d(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tolerance := d(0.00001)
	if q.CostBeforeFee.Sub(d(107.623483)).Abs().GreaterThan(tolerance) {
		t.Errorf("expected cost ≈ 107.623483, got %s", q.CostBeforeFee)
	}
	if q.Fee.Sub(d(2.15247)).Abs().GreaterThan(tolerance) {
		t.Errorf("expected fee ≈ 2.15247, got %s", q.Fee)
	}
	if !q.Total.Equal(q.CostBeforeFee.Add(q.Fee)) {
		t.Errorf("total should equal cost+fee: total=%s cost=%s fee=%s",
			q.Total, q.CostBeforeFee, q.Fee)
	}
	if !q.NewSupply.Equal(d(110)) {
		t.Errorf("expected new supply 110, got %s", q.NewSupply)
	}
	// new price = 0.01 * 110^1.5 ≈ 11.536897
	if q.NewPrice.Sub(d(11.536897)).Abs().GreaterThan(tolerance) {
		t.Errorf("expected new price ≈ 11.536897, got %s", q.NewPrice)
	}
}

func TestBuyCost_ExactQuadratic(t *testing.T) {
	// exponent 2 makes the integral an exact cube difference:
	// base 3 → cost = hi^3 - lo^3 with no float residue.
	p, err := NewParams(d(3), d(2), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q, err := p.BuyCost(d(1), d(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.CostBeforeFee.Equal(d(26)) { // 3^3 - 1^3
		t.Errorf("expected exact cost 26, got %s", q.CostBeforeFee)
	}
	if !q.Fee.IsZero() {
		t.Errorf("expected zero fee, got %s", q.Fee)
	}
	if !q.Total.Equal(d(26)) {
		t.Errorf("expected total 26, got %s", q.Total)
	}
	if !q.AvgPrice.Equal(d(13)) {
		t.Errorf("expected avg price 13, got %s", q.AvgPrice)
	}
}

func TestBuyCost_FromZeroSupply(t *testing.T) {
	p := DefaultParams()

	q, err := p.BuyCost(decimal.Zero, d(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// cost = 0.01/2.5 * 1^2.5 = 0.004
	if !q.CostBeforeFee.Equal(d(0.004)) {
		t.Errorf("expected cost 0.004, got %s", q.CostBeforeFee)
	}
	if !q.NewPrice.Equal(d(0.01)) {
		t.Errorf("expected new price 0.01, got %s", q.NewPrice)
	}
}

func TestBuyCost_InvalidQuantity(t *testing.T) {
	p := DefaultParams()

	if _, err := p.BuyCost(d(100), decimal.Zero); err != ErrInvalidQuantity {
		t.Errorf("expected ErrInvalidQuantity for zero shares, got %v", err)
	}
	if _, err := p.BuyCost(d(100), d(-5)); err != ErrInvalidQuantity {
		t.Errorf("expected ErrInvalidQuantity for negative shares, got %v", err)
	}
}

func TestBuyCost_NegativeSupply(t *testing.T) {
	p := DefaultParams()

	if _, err := p.BuyCost(d(-1), d(10)); err != ErrNegativeSupply {
		t.Errorf("expected ErrNegativeSupply, got %v", err)
	}
}

func TestBuyCost_ResultsRoundedToScale(t *testing.T) {
	p := DefaultParams()

	q, err := p.BuyCost(d(33.333333), d(7.777777))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for name, v := range map[string]decimal.Decimal{
		"cost":      q.CostBeforeFee,
		"fee":       q.Fee,
		"total":     q.Total,
		"avg_price": q.AvgPrice,
		"new_price": q.NewPrice,
	} {
		if !v.Equal(v.Round(Scale)) {
			t.Errorf("%s not rounded to scale: %s", name, v)
		}
	}
}

// --- SellRevenue tests ---

func TestSellRevenue_InverseOfBuy(t *testing.T) {
	// Selling the shares just bought, at the post-buy supply, covers the
	// same supply interval, so pre-fee amounts match exactly.
	p := DefaultParams()

	buy, err := p.BuyCost(d(100), d(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sell, err := p.SellRevenue(d(110), d(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !sell.RevenueBeforeFee.Equal(buy.CostBeforeFee) {
		t.Errorf("inverse violated: buy cost=%s sell revenue=%s",
			buy.CostBeforeFee, sell.RevenueBeforeFee)
	}
	if !sell.NewSupply.Equal(d(100)) {
		t.Errorf("expected supply back to 100, got %s", sell.NewSupply)
	}
}

func TestSellRevenue_FeeSubtracted(t *testing.T) {
	p := DefaultParams()

	q, err := p.SellRevenue(d(110), d(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Net.Equal(q.RevenueBeforeFee.Sub(q.Fee)) {
		t.Errorf("net should equal revenue-fee: net=%s revenue=%s fee=%s",
			q.Net, q.RevenueBeforeFee, q.Fee)
	}
	if q.Net.GreaterThanOrEqual(q.RevenueBeforeFee) {
		t.Errorf("net %s should be below pre-fee revenue %s", q.Net, q.RevenueBeforeFee)
	}
}

func TestSellRevenue_EntireSupply(t *testing.T) {
	p := DefaultParams()

	q, err := p.SellRevenue(d(100), d(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.NewSupply.IsZero() {
		t.Errorf("expected new supply 0, got %s", q.NewSupply)
	}
	if !q.NewPrice.IsZero() {
		t.Errorf("expected new price 0 at zero supply, got %s", q.NewPrice)
	}
	// revenue = 0.01/2.5 * 100^2.5 = 400
	if !q.RevenueBeforeFee.Equal(d(400)) {
		t.Errorf("expected revenue 400, got %s", q.RevenueBeforeFee)
	}
}

func TestSellRevenue_MoreThanSupply(t *testing.T) {
	p := DefaultParams()

	if _, err := p.SellRevenue(d(100), d(100.000001)); err != ErrInsufficientSupply {
		t.Errorf("expected ErrInsufficientSupply, got %v", err)
	}
}

func TestSellRevenue_InvalidQuantity(t *testing.T) {
	p := DefaultParams()

	if _, err := p.SellRevenue(d(100), decimal.Zero); err != ErrInvalidQuantity {
		t.Errorf("expected ErrInvalidQuantity for zero shares, got %v", err)
	}
	if _, err := p.SellRevenue(d(100), d(-1)); err != ErrInvalidQuantity {
		t.Errorf("expected ErrInvalidQuantity for negative shares, got %v", err)
	}
}
