package motion

import (
	"gonum.org/v1/gonum/stat"
)

// windowSpan is the configured time covered by one window.
const windowSpan = 1.0

// WindowStats summarises one completed window.
type WindowStats struct {
	// Samples is the number of magnitudes that were buffered.
	Samples int
	// Mean and Variance are computed with rounding after every step.
	Mean     float64
	Variance float64
	// ReferenceVariance is the unrounded population variance of the same
	// magnitudes. It is diagnostic only and never drives classification.
	ReferenceVariance float64
}

// Window buffers magnitudes until one configured time unit has elapsed.
// Completion is decided by an elapsed-time accumulator advanced by the
// sampling interval on every Add, not by counting samples. The accumulator
// completes once it is within half an interval of the span, so accumulated
// float error (ten steps of 0.1 sum to 0.9999999999999999) never adds a sample.
type Window struct {
	interval float64
	r        rounder

	values  []float64
	total   float64
	elapsed float64
}

// NewWindow returns an empty window. capacity is a sizing hint, normally the
// configured samples-per-window.
func NewWindow(interval float64, capacity, precision int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		interval: interval,
		r:        rounder(precision),
		values:   make([]float64, 0, capacity),
	}
}

// Add appends a magnitude and reports whether the window is now complete.
func (w *Window) Add(magnitude float64) bool {
	w.values = append(w.values, magnitude)
	w.total += magnitude
	w.elapsed += w.interval
	return w.elapsed > windowSpan-w.interval/2
}

// Len returns the number of buffered magnitudes.
func (w *Window) Len() int { return len(w.values) }

// Elapsed returns the configured time accumulated since the last evaluation.
func (w *Window) Elapsed() float64 { return w.elapsed }

// Evaluate computes the window statistics and clears the window. Calling it
// on an empty window returns zero stats.
func (w *Window) Evaluate() WindowStats {
	n := len(w.values)
	if n == 0 {
		w.Reset()
		return WindowStats{}
	}
	count := float64(n)
	mean := w.r.round(w.total / count)

	var sumSq float64
	for _, m := range w.values {
		d := m - mean
		sumSq += w.r.round(d * d)
	}
	sumSq = w.r.round(sumSq)

	_, ref := stat.PopMeanVariance(w.values, nil)
	st := WindowStats{
		Samples:           n,
		Mean:              mean,
		Variance:          w.r.round(sumSq / count),
		ReferenceVariance: ref,
	}
	w.Reset()
	return st
}

// Reset discards buffered magnitudes and the elapsed accumulator.
func (w *Window) Reset() {
	w.values = w.values[:0]
	w.total = 0
	w.elapsed = 0
}
