// Package queue provides the bounded, in-memory FIFO queues that connect
// the middleware's components. Every hop between components (message
// handler to dispatcher, dispatcher to transport, and so on) goes through
// one of these, deliberately with no flow control beyond the fixed bound:
// Push simply blocks the producer once a queue fills rather than dropping
// or growing without limit.
package queue

import (
	"context"

	"github.com/oceanic-systems/s2c-middleware/metrics"
)

// DefaultCapacity is the buffer size used by every queue in the
// middleware: a fixed bound of 32 pending items.
const DefaultCapacity = 32

// Bounded is a fixed-capacity FIFO built on a buffered channel, with a
// name used to label its Prometheus depth gauge.
type Bounded[T any] struct {
	name string
	ch   chan T
}

// New creates a Bounded queue of the given name and capacity. name is used
// as the "queue" label on the middleware_queue_depth gauge.
func New[T any](name string, capacity int) *Bounded[T] {
	return &Bounded[T]{
		name: name,
		ch:   make(chan T, capacity),
	}
}

// NewDefault creates a Bounded queue with DefaultCapacity.
func NewDefault[T any](name string) *Bounded[T] {
	return New[T](name, DefaultCapacity)
}

// Push enqueues v, blocking if the queue is full, until either the push
// succeeds or ctx is done. It returns ctx.Err() in the latter case.
func (q *Bounded[T]) Push(ctx context.Context, v T) error {
	select {
	case q.ch <- v:
		metrics.QueueDepth.WithLabelValues(q.name).Set(float64(len(q.ch)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes and returns the oldest queued value, blocking until one is
// available or ctx is done. ok is false only when ctx ended first.
func (q *Bounded[T]) Pop(ctx context.Context) (v T, ok bool) {
	select {
	case v = <-q.ch:
		metrics.QueueDepth.WithLabelValues(q.name).Set(float64(len(q.ch)))
		return v, true
	case <-ctx.Done():
		return v, false
	}
}

// Len reports the number of values currently buffered.
func (q *Bounded[T]) Len() int {
	return len(q.ch)
}

// Chan exposes the underlying channel for components that must select
// across several queues and timers at once (the File Handler, which
// feeds retry/ack timers into its own loop rather than a callback on
// another goroutine). Callers that read from Chan directly should call
// Observe afterward to keep the depth gauge current.
func (q *Bounded[T]) Chan() chan T {
	return q.ch
}

// Observe refreshes the depth gauge from the channel's current length.
// Push and Pop already do this; call it manually after a direct Chan read.
func (q *Bounded[T]) Observe() {
	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(len(q.ch)))
}

// Name returns the queue's label.
func (q *Bounded[T]) Name() string {
	return q.name
}
