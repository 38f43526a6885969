// Package motion classifies pedestrian activity from a periodic 3-axis
// accelerometer stream.
//
// Each sample is low-pass filtered per axis, reduced to the Euclidean norm of
// the filtered vector and buffered into a window spanning one configured time
// unit. When the window completes, the variance of the buffered magnitudes is
// compared against two thresholds to produce Stopped, SlowWalking or
// FastWalking. Every arithmetic step is rounded to the configured precision.
package motion

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/motion.report/internal/monitoring"
)

var (
	// ErrConcurrentIngest is the panic value raised when Ingest is re-entered
	// or called from two goroutines at once.
	ErrConcurrentIngest = errors.New("motion: concurrent or re-entrant Ingest")
	// ErrNonFiniteSample is returned by IngestChecked for NaN or infinite input.
	ErrNonFiniteSample = errors.New("motion: non-finite sample")
)

// Evaluation is delivered to the observer once per completed window.
type Evaluation struct {
	// Seq numbers windows from 1 since construction or the last Reset.
	Seq   uint64 `json:"seq"`
	State State  `json:"state"`
	WindowStats
}

// Observer receives the result of every completed window, including windows
// whose state did not change. It is called synchronously from Ingest and must
// not call back into the classifier.
type Observer interface {
	OnStateEvaluated(Evaluation)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Evaluation)

func (f ObserverFunc) OnStateEvaluated(ev Evaluation) { f(ev) }

// Observers fans one evaluation out to several observers in order.
type Observers []Observer

func (o Observers) OnStateEvaluated(ev Evaluation) {
	for _, obs := range o {
		if obs != nil {
			obs.OnStateEvaluated(ev)
		}
	}
}

// Classifier owns the filter history and window for one sample stream.
//
// A Classifier is not safe for concurrent use. The caller must serialise
// Ingest, IngestChecked, Reset and ResetFilter; overlapping calls panic with
// ErrConcurrentIngest.
type Classifier struct {
	cfg      Config
	observer Observer

	busy atomic.Bool

	filter    filterState
	window    *Window
	seq       uint64
	state     State
	nonFinite bool
}

// New validates cfg and returns a classifier that reports to obs. A zero
// SamplesPerWindow is derived from the sampling interval. obs may be nil.
func New(cfg Config, obs Observer) (*Classifier, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	return &Classifier{
		cfg:      cfg,
		observer: obs,
		window:   NewWindow(cfg.SampleInterval, cfg.SamplesPerWindow, cfg.Precision),
	}, nil
}

// Config returns the normalised configuration.
func (c *Classifier) Config() Config { return c.cfg }

// State returns the state of the most recent window, or Unknown before the
// first window completes. It reads unguarded state, so call it only from the
// goroutine that serialises Ingest, or from an Observer callback.
func (c *Classifier) State() State { return c.state }

// Buffered returns the number of magnitudes in the current window. The same
// serialisation rule as State applies.
func (c *Classifier) Buffered() int { return c.window.Len() }

// Windows returns the number of windows evaluated since New or Reset. The
// same serialisation rule as State applies.
func (c *Classifier) Windows() uint64 { return c.seq }

// HistoryFinite reports whether the stored filter history is finite. Once a
// non-finite sample has entered the filter it stays non-finite, and every
// later window is Unknown until ResetFilter or Reset is called. The same
// serialisation rule as State applies.
func (c *Classifier) HistoryFinite() bool { return c.filter.finite() }

// Ingest consumes one sample. When the sample completes a window the observer
// is notified before Ingest returns.
//
// Non-finite components are not rejected: they propagate as NaN through the
// magnitude and variance and the window is reported as Unknown. Use
// IngestChecked to refuse them instead.
func (c *Classifier) Ingest(s Sample) {
	c.acquire()
	defer c.release()
	c.ingest(s)
}

// IngestChecked is Ingest with input validation. Samples with NaN or infinite
// components are rejected and leave the classifier untouched.
func (c *Classifier) IngestChecked(s Sample) error {
	c.acquire()
	defer c.release()
	if !s.IsFinite() {
		return fmt.Errorf("%w: %+v", ErrNonFiniteSample, s)
	}
	c.ingest(s)
	return nil
}

// Reset clears filter history and the current window. The next sample filters
// against zero and window numbering restarts.
func (c *Classifier) Reset() {
	c.acquire()
	defer c.release()
	c.filter.reset()
	c.window.Reset()
	c.seq = 0
	c.state = Unknown
	c.nonFinite = false
}

// ResetFilter clears the filter history only. The current window and the
// window numbering are kept, so the next sample filters against zero.
func (c *Classifier) ResetFilter() {
	c.acquire()
	defer c.release()
	c.filter.reset()
}

func (c *Classifier) acquire() {
	if !c.busy.CompareAndSwap(false, true) {
		panic(ErrConcurrentIngest)
	}
}

func (c *Classifier) release() { c.busy.Store(false) }

func (c *Classifier) ingest(s Sample) {
	if !s.IsFinite() && !c.nonFinite {
		c.nonFinite = true
		monitoring.Logf("motion: non-finite sample %+v, window %d will be unclassifiable", s, c.seq+1)
	}

	x, y, z := c.filter.apply(s, c.cfg.SmoothingFactor, c.cfg.Precision)
	m := Magnitude(x, y, z, c.cfg.Precision)

	if !c.window.Add(m) {
		return
	}

	stats := c.window.Evaluate()
	c.seq++
	c.nonFinite = false
	c.state = Classify(stats.Variance, c.cfg.StationaryThreshold, c.cfg.SlowWalkThreshold)
	if c.state == Unknown {
		monitoring.Logf("motion: window %d unclassifiable (mean=%v variance=%v)", c.seq, stats.Mean, stats.Variance)
	}
	if c.observer != nil {
		c.observer.OnStateEvaluated(Evaluation{Seq: c.seq, State: c.state, WindowStats: stats})
	}
}
