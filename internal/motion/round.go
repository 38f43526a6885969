package motion

import "math"

// Round rounds v to the given number of decimal digits, halves away from zero.
// The scaled product is rounded, not the exact decimal expansion, so results
// match recorded classifier output bit-for-bit at the same precision. A
// negative precision disables rounding.
func Round(v float64, precision int) float64 {
	if precision < 0 {
		return v
	}
	d := math.Pow(10, float64(precision))
	return math.Round(v*d) / d
}

// rounder binds a precision so the pipeline can round after every step
// without threading the precision through each call.
type rounder int

func (r rounder) round(v float64) float64 { return Round(v, int(r)) }
