package motion

import "math"

// Sample is one raw accelerometer reading in units of g.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsFinite reports whether every component is a finite number.
func (s Sample) IsFinite() bool {
	return isFinite(s.X) && isFinite(s.Y) && isFinite(s.Z)
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// LowPass applies one step of a one-pole low-pass filter. factor is the
// percentage weight given to the previous filtered value; it is not range
// checked. The result is rounded to precision.
func LowPass(raw, previous, factor float64, precision int) float64 {
	// The conversions stop the compiler fusing the multiply-add, which would
	// change results on FMA-capable architectures.
	return Round(float64(previous*(factor/100))+float64(raw*(1-factor/100)), precision)
}

// Magnitude returns the Euclidean norm of a filtered vector. Each square is
// rounded before summing and the root is rounded again. Non-finite input
// yields NaN or +Inf; callers treat that as an upstream data-quality fault.
func Magnitude(x, y, z float64, precision int) float64 {
	r := rounder(precision)
	sum := r.round(x*x) + r.round(y*y) + r.round(z*z)
	return r.round(math.Sqrt(sum))
}

// filterState carries the previous filtered value per axis. Until primed the
// filter runs against zero.
type filterState struct {
	x, y, z float64
	primed  bool
}

// apply filters s against the stored history and replaces the history with
// the new filtered values.
func (f *filterState) apply(s Sample, factor float64, precision int) (x, y, z float64) {
	var px, py, pz float64
	if f.primed {
		px, py, pz = f.x, f.y, f.z
	}
	r := rounder(precision)
	f.x = LowPass(r.round(s.X), px, factor, precision)
	f.y = LowPass(r.round(s.Y), py, factor, precision)
	f.z = LowPass(r.round(s.Z), pz, factor, precision)
	f.primed = true
	return f.x, f.y, f.z
}

func (f *filterState) reset() { *f = filterState{} }

func (f *filterState) finite() bool {
	return isFinite(f.x) && isFinite(f.y) && isFinite(f.z)
}
