// Package report keeps recent classifier evaluations in memory and renders
// them for the HTTP API.
package report

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

// Record is one evaluation as kept by the Recorder.
type Record struct {
	motion.Evaluation
	At time.Time `json:"at"`
}

// Counts tallies evaluations per state since the recorder started.
type Counts map[motion.State]uint64

// ByName keys the tallies by state name for JSON output.
func (c Counts) ByName() map[string]uint64 {
	out := make(map[string]uint64, len(c))
	for state, n := range c {
		out[state.String()] = n
	}
	return out
}

// Recorder is a motion.Observer that retains the most recent evaluations in a
// fixed-size ring. It is safe to read from HTTP handlers while the sample
// pump writes to it.
type Recorder struct {
	session uuid.UUID
	clock   timeutil.Clock
	started time.Time

	mu     sync.RWMutex
	ring   []Record
	next   int
	full   bool
	counts Counts
	total  uint64
}

// NewRecorder keeps up to size evaluations. A size below one keeps one.
func NewRecorder(size int, clock timeutil.Clock) *Recorder {
	if size < 1 {
		size = 1
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{
		session: uuid.New(),
		clock:   clock,
		started: clock.Now(),
		ring:    make([]Record, size),
		counts:  make(Counts),
	}
}

// Session identifies this run of the classifier.
func (r *Recorder) Session() uuid.UUID { return r.session }

// Started is when the recorder was created.
func (r *Recorder) Started() time.Time { return r.started }

func (r *Recorder) OnStateEvaluated(ev motion.Evaluation) {
	rec := Record{Evaluation: ev, At: r.clock.Now()}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[r.next] = rec
	r.next = (r.next + 1) % len(r.ring)
	if r.next == 0 {
		r.full = true
	}
	r.counts[ev.State]++
	r.total++
}

// Latest returns the most recent record, if any.
func (r *Recorder) Latest() (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.total == 0 {
		return Record{}, false
	}
	i := (r.next - 1 + len(r.ring)) % len(r.ring)
	return r.ring[i], true
}

// History returns up to limit records, oldest first. A limit of zero or less
// returns everything retained.
func (r *Recorder) History(limit int) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	if r.full {
		out = append(out, r.ring[r.next:]...)
	}
	out = append(out, r.ring[:r.next]...)

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Counts returns a copy of the per-state tallies.
func (r *Recorder) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(Counts, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// Total is the number of evaluations observed.
func (r *Recorder) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

var _ motion.Observer = (*Recorder)(nil)
