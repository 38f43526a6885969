// Package sensor turns device output into motion samples and feeds them to a
// classifier one at a time.
package sensor

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/serialmux"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

// Source yields samples in arrival order. Next blocks until a sample is
// available, the source is exhausted (io.EOF) or ctx is done.
type Source interface {
	Next(ctx context.Context) (motion.Sample, error)
}

// Status summarises what a source has seen from the device.
type Status struct {
	// LastStatus is the most recent non-sample line, such as a firmware
	// banner or command acknowledgement.
	LastStatus   string    `json:"last_status,omitempty"`
	LastStatusAt time.Time `json:"last_status_at,omitzero"`
	Samples      uint64    `json:"samples"`
	StatusLines  uint64    `json:"status_lines"`
}

// SerialSource reads samples from a serial mux subscription.
type SerialSource struct {
	mux   serialmux.SerialMuxInterface
	clock timeutil.Clock
	id    string
	lines chan string

	mu     sync.Mutex
	status Status
}

// NewSerialSource subscribes to mux. Call Close to unsubscribe.
func NewSerialSource(mux serialmux.SerialMuxInterface, clock timeutil.Clock) *SerialSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	id, lines := mux.Subscribe()
	return &SerialSource{mux: mux, clock: clock, id: id, lines: lines}
}

func (s *SerialSource) Next(ctx context.Context) (motion.Sample, error) {
	for {
		select {
		case <-ctx.Done():
			return motion.Sample{}, ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				return motion.Sample{}, io.EOF
			}
			kind, sample := ClassifyLine(line)
			s.mu.Lock()
			switch kind {
			case LineSample:
				s.status.Samples++
				s.mu.Unlock()
				return sample, nil
			case LineStatus:
				s.status.StatusLines++
				s.status.LastStatus = line
				s.status.LastStatusAt = s.clock.Now()
			}
			s.mu.Unlock()
		}
	}
}

// Status returns a snapshot of the lines seen so far.
func (s *SerialSource) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SerialSource) Close() error {
	s.mux.Unsubscribe(s.id)
	return nil
}

// ReplaySource emits recorded samples paced by a clock ticker, as a device
// would at its configured rate.
type ReplaySource struct {
	samples []motion.Sample
	ticker  timeutil.Ticker
	loop    bool

	mu  sync.Mutex
	pos int
}

// NewReplaySource plays samples once every interval. With loop set it starts
// over at the end instead of returning io.EOF.
func NewReplaySource(samples []motion.Sample, interval time.Duration, clock timeutil.Clock, loop bool) (*ReplaySource, error) {
	if len(samples) == 0 {
		return nil, errors.New("replay source needs at least one sample")
	}
	if interval <= 0 {
		return nil, errors.New("replay interval must be positive")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ReplaySource{
		samples: samples,
		ticker:  clock.NewTicker(interval),
		loop:    loop,
	}, nil
}

func (r *ReplaySource) Next(ctx context.Context) (motion.Sample, error) {
	r.mu.Lock()
	if r.pos >= len(r.samples) {
		if !r.loop {
			r.mu.Unlock()
			return motion.Sample{}, io.EOF
		}
		r.pos = 0
	}
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return motion.Sample{}, ctx.Err()
	case <-r.ticker.C():
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.samples[r.pos]
	r.pos++
	return s, nil
}

func (r *ReplaySource) Close() error {
	r.ticker.Stop()
	return nil
}

// Pump feeds every sample from src into c until src is exhausted or ctx is
// done. It is the only caller of Ingest, which keeps calls serialised. With
// strict set, non-finite samples are dropped and logged instead of ingested.
// Without strict, a non-finite sample poisons the filter; once the window it
// landed in has been reported the filter history is cleared so the following
// windows classify again. A source reaching io.EOF ends the pump without error.
func Pump(ctx context.Context, src Source, c *motion.Classifier, strict bool) error {
	var rejected uint64
	for {
		s, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !strict {
			c.Ingest(s)
			if c.Buffered() == 0 && !c.HistoryFinite() {
				c.ResetFilter()
				monitoring.Logf("sensor: filter history non-finite after window %d, resetting filter", c.Windows())
			}
			continue
		}
		if err := c.IngestChecked(s); err != nil {
			rejected++
			monitoring.Logf("sensor: dropped sample %d: %v", rejected, err)
		}
	}
}
