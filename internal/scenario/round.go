package scenario

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Round2 rounds x to 2 decimal places, half to even, judged on the exact
// binary value of x. 0.125 rounds to 0.12 while 2.675 (stored just below)
// rounds to 2.67.
func Round2(x float64) float64 {
	// 30 places is enough to tell any non-tie float apart from a tie.
	d, err := decimal.NewFromString(strconv.FormatFloat(x, 'f', 30, 64))
	if err != nil {
		return x
	}
	return d.RoundBank(2).InexactFloat64()
}

// SumRound2 sums values in order and rounds the total to 2 places.
func SumRound2(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return Round2(total)
}
