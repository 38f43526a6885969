// Package publish forwards classifier evaluations to a Kafka topic.
//
// The classifier notifies observers synchronously from Ingest, so the
// Publisher only enqueues there; a separate goroutine (Run) does the network
// writes. When the queue is full the evaluation is dropped and logged rather
// than stalling the sample pump.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

// DefaultQueueSize bounds the evaluations waiting to be written.
const DefaultQueueSize = 64

// Event is the JSON document written for each evaluation.
type Event struct {
	Session   string       `json:"session"`
	Seq       uint64       `json:"seq"`
	State     motion.State `json:"state"`
	Label     string       `json:"label"`
	Moving    bool         `json:"moving"`
	Variance  float64      `json:"variance"`
	Mean      float64      `json:"mean"`
	Samples   int          `json:"samples"`
	Timestamp time.Time    `json:"timestamp"`
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a motion.Observer that publishes evaluations asynchronously.
type Publisher struct {
	session uuid.UUID
	writer  messageWriter
	clock   timeutil.Clock
	queue   chan Event
	timeout time.Duration

	dropped uint64
}

// NewKafkaWriter builds the writer used in production.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
}

// New creates a Kafka publisher for the given session.
func New(brokers []string, topic string, session uuid.UUID) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("publish: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("publish: topic is required")
	}
	return newPublisher(NewKafkaWriter(brokers, topic), session, nil, DefaultQueueSize), nil
}

func newPublisher(w messageWriter, session uuid.UUID, clock timeutil.Clock, queueSize int) *Publisher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Publisher{
		session: session,
		writer:  w,
		clock:   clock,
		queue:   make(chan Event, queueSize),
		timeout: 5 * time.Second,
	}
}

// OnStateEvaluated enqueues ev without blocking. Only the sample pump calls
// it, so the drop counter needs no locking.
func (p *Publisher) OnStateEvaluated(ev motion.Evaluation) {
	e := Event{
		Session:   p.session.String(),
		Seq:       ev.Seq,
		State:     ev.State,
		Label:     ev.State.Label(),
		Moving:    ev.State.Moving(),
		Variance:  ev.Variance,
		Mean:      ev.Mean,
		Samples:   ev.Samples,
		Timestamp: p.clock.Now().UTC(),
	}
	select {
	case p.queue <- e:
	default:
		p.dropped++
		monitoring.Logf("publish: queue full, dropped evaluation %d (%d dropped)", ev.Seq, p.dropped)
	}
}

// Run writes queued events until ctx is done, then drains what is already
// queued and closes the writer. Write failures are logged and skipped.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.writer.Close()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-p.queue:
					p.write(context.Background(), e)
				default:
					return nil
				}
			}
		case e := <-p.queue:
			p.write(ctx, e)
		}
	}
}

func (p *Publisher) write(ctx context.Context, e Event) {
	msg, err := encode(e)
	if err != nil {
		monitoring.Logf("publish: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		monitoring.Logf("publish: failed to write evaluation %d: %v", e.Seq, err)
	}
}

func encode(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode evaluation %d: %w", e.Seq, err)
	}
	return kafka.Message{
		Key:   []byte(e.Session),
		Value: value,
		Time:  e.Timestamp,
	}, nil
}

var _ motion.Observer = (*Publisher)(nil)
