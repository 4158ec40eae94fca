// Package bus carries authenticated telemetry from the ingestion
// producers (HTTP handler, MQTT subscriber) to the single persistence
// consumer. The queue is bounded: a full bus blocks producers rather
// than growing without limit, so a stalled storage cluster surfaces
// as backpressure instead of memory growth.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// DefaultCapacity bounds the in-flight envelope count when no
// explicit capacity is configured.
const DefaultCapacity = 100

// ErrBusClosed is returned when publishing to a closed IngestBus.
var ErrBusClosed = errors.New("ingest bus closed")

// IngestBus is a multi-producer, single-consumer queue of envelopes.
// Channel send/receive provides the per-enqueue synchronization;
// producers hold no other shared state.
type IngestBus struct {
	envelopes chan Envelope
	done      chan struct{}
	closed    atomic.Bool
}

func NewIngestBus(capacity int) *IngestBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &IngestBus{
		envelopes: make(chan Envelope, capacity),
		done:      make(chan struct{}),
	}
}

// Publish enqueues one envelope. It blocks while the bus is full and
// fails only when the bus is closed or the caller's context ends.
func (b *IngestBus) Publish(ctx context.Context, env Envelope) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.envelopes <- env:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume dequeues one envelope, blocking until one is available. The
// second return value is false when the bus is closed or the context
// ends.
func (b *IngestBus) Consume(ctx context.Context) (Envelope, bool) {
	select {
	case env := <-b.envelopes:
		return env, true
	case <-b.done:
		// Drain what producers managed to enqueue before the close.
		select {
		case env := <-b.envelopes:
			return env, true
		default:
			return Envelope{}, false
		}
	case <-ctx.Done():
		return Envelope{}, false
	}
}

// Closed reports whether Close has been called. The consumer uses it
// to tell a closed bus apart from an idle-timeout receive.
func (b *IngestBus) Closed() bool {
	return b.closed.Load()
}

// Pending reports the number of enqueued envelopes not yet consumed.
func (b *IngestBus) Pending() int {
	return len(b.envelopes)
}

// Close stops the bus. Idempotent; concurrent publishers fail with
// ErrBusClosed, the consumer drains remaining envelopes and then
// sees closed.
func (b *IngestBus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}
