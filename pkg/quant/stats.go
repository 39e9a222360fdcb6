package quant

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Accumulator grows a price window one value at a time while keeping the
// running sums and a sorted copy needed by the channel math.
// Zero value is ready to use.
type Accumulator struct {
	sum    decimal.Decimal
	sumSq  decimal.Decimal
	sorted []decimal.Decimal
}

// NewAccumulator pre-allocates room for capacity values.
func NewAccumulator(capacity int) *Accumulator {
	return &Accumulator{sorted: make([]decimal.Decimal, 0, capacity)}
}

// Add appends a value to the window.
func (a *Accumulator) Add(x decimal.Decimal) {
	a.sum = a.sum.Add(x)
	a.sumSq = a.sumSq.Add(x.Mul(x))

	i := sort.Search(len(a.sorted), func(i int) bool { return a.sorted[i].GreaterThan(x) })
	a.sorted = append(a.sorted, decimal.Zero)
	copy(a.sorted[i+1:], a.sorted[i:])
	a.sorted[i] = x
}

// Len returns the number of values added so far.
func (a *Accumulator) Len() int { return len(a.sorted) }

// Sum returns Σx.
func (a *Accumulator) Sum() decimal.Decimal { return a.sum }

// ScaledVariance returns n·Σx² − (Σx)², which equals n²·σ² for the population variance σ².
// Kept unscaled so threshold checks stay exact.
func (a *Accumulator) ScaledVariance() decimal.Decimal {
	n := decimal.NewFromInt(int64(len(a.sorted)))
	v := n.Mul(a.sumSq).Sub(a.sum.Mul(a.sum))
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// StdDev returns the population standard deviation. Float precision, for reporting only.
func (a *Accumulator) StdDev() float64 {
	n := len(a.sorted)
	if n == 0 {
		return 0
	}
	v := a.ScaledVariance().InexactFloat64()
	return math.Sqrt(v) / float64(n)
}

// Quantile returns the linearly interpolated p-quantile of the window.
func (a *Accumulator) Quantile(p decimal.Decimal) decimal.Decimal {
	return QuantileSorted(a.sorted, p)
}

// QuantileSorted returns the p-quantile of an ascending slice using linear
// interpolation between closest ranks (index p·(n−1)).
func QuantileSorted(sorted []decimal.Decimal, p decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if n == 1 || !p.IsPositive() {
		return sorted[0]
	}

	pos := p.Mul(decimal.NewFromInt(int64(n - 1)))
	lo := int(pos.IntPart())
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos.Sub(decimal.NewFromInt(int64(lo)))
	return sorted[lo].Add(frac.Mul(sorted[lo+1].Sub(sorted[lo])))
}
