package strategy

import "github.com/shopspring/decimal"

// IsEvenlyDistributed rejects trending windows.
// Each value is classified above or below the mean (equal is undetermined);
// a crossing is counted whenever a determined class differs from the previous determined one.
// The window passes when crossings/len >= ratio.
func IsEvenlyDistributed(window []decimal.Decimal, ratio decimal.Decimal) bool {
	n := len(window)
	if n == 0 {
		return false
	}

	sum := decimal.Zero
	for _, x := range window {
		sum = sum.Add(x)
	}
	count := decimal.NewFromInt(int64(n))

	// x > mean  <=>  x·n > Σx
	prev := 0
	switched := 0
	for _, x := range window {
		cls := x.Mul(count).Cmp(sum)
		if cls == 0 {
			continue
		}
		if prev != 0 && cls != prev {
			switched++
		}
		prev = cls
	}

	return decimal.NewFromInt(int64(switched)).GreaterThanOrEqual(ratio.Mul(count))
}
