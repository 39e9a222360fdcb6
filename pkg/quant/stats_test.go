package quant

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_SortedAndSums(t *testing.T) {
	acc := NewAccumulator(5)
	for _, v := range []string{"98", "102", "99", "101", "100"} {
		acc.Add(d(v))
	}

	require.Equal(t, 5, acc.Len())
	assert.True(t, acc.Sum().Equal(d("500")))

	// population variance of 98..102 is 2, scaled by n² = 25
	assert.True(t, acc.ScaledVariance().Equal(d("50")), acc.ScaledVariance().String())
	assert.InDelta(t, 1.41421356, acc.StdDev(), 1e-6)
}

func TestQuantileSorted(t *testing.T) {
	sorted := []decimal.Decimal{d("98"), d("99"), d("100"), d("101"), d("102")}

	assert.Equal(t, "98.04", QuantileSorted(sorted, d("0.01")).String())
	assert.Equal(t, "101.96", QuantileSorted(sorted, d("0.99")).String())
	assert.Equal(t, "100", QuantileSorted(sorted, d("0.5")).String())
	assert.Equal(t, "102", QuantileSorted(sorted, d("1")).String())
	assert.Equal(t, "98", QuantileSorted(sorted, d("0")).String())
}

func TestQuantileSorted_Edges(t *testing.T) {
	assert.True(t, QuantileSorted(nil, d("0.5")).IsZero())
	assert.Equal(t, "7", QuantileSorted([]decimal.Decimal{d("7")}, d("0.99")).String())
}

func TestAccumulator_ConstantWindowHasNoVariance(t *testing.T) {
	var acc Accumulator
	for i := 0; i < 4; i++ {
		acc.Add(d("3.3"))
	}
	assert.True(t, acc.ScaledVariance().IsZero())
	assert.Equal(t, 0.0, acc.StdDev())
}
