// Package sinks provides the in-process façades the Fetch Pipeline
// writes pages and media through. The real relational-store,
// object-store, and analyzer integrations are out-of-scope external
// collaborators (spec.md §1); these channel-backed adapters buffer and
// retry against an injected Backend on their behalf.
package sinks

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/use-agent/noctipede/models"
)

// PageSink persists a fetched Page.
type PageSink interface {
	Store(ctx context.Context, p *models.Page) error
}

// MediaQueue accepts discovered media for the analysis adapters.
type MediaQueue interface {
	Enqueue(ctx context.Context, m models.MediaRef) error
}

// PageBackend is the real persistence integration a ChannelPageSink
// drains into.
type PageBackend interface {
	StorePage(ctx context.Context, p *models.Page) error
}

// MediaBackend is the real analysis-queue integration a
// ChannelMediaQueue drains into.
type MediaBackend interface {
	AcceptMedia(ctx context.Context, m models.MediaRef) error
}

// retryDelays mirrors webhook.DeliverAsync's retry schedule: immediate,
// then 1s, 5s, 30s.
var retryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// ChannelPageSink buffers pages on a bounded channel and drains them to
// Backend from one background goroutine, retrying a failed store with
// webhook.DeliverAsync's backoff schedule.
type ChannelPageSink struct {
	backend PageBackend
	ch      chan *models.Page
	done    chan struct{}
}

// NewChannelPageSink starts the drain goroutine and returns a sink with
// the given channel capacity.
func NewChannelPageSink(backend PageBackend, capacity int) *ChannelPageSink {
	s := &ChannelPageSink{
		backend: backend,
		ch:      make(chan *models.Page, capacity),
		done:    make(chan struct{}),
	}
	go s.drain()
	return s
}

// Store enqueues p, blocking while the buffer is full so channel capacity
// is the backpressure mechanism spec.md §4.H describes ("the Fetch
// Pipeline blocks when the sink is full, providing natural rate
// limiting"). It returns ErrSinkUnavailable only if ctx is cancelled or
// the sink is closed before room frees up.
func (s *ChannelPageSink) Store(ctx context.Context, p *models.Page) error {
	select {
	case s.ch <- p:
		return nil
	case <-s.done:
		return models.NewCrawlError(models.ErrSinkUnavailable, "page sink closed", nil)
	case <-ctx.Done():
		return models.NewCrawlError(models.ErrSinkUnavailable, "page sink store cancelled", ctx.Err())
	}
}

func (s *ChannelPageSink) drain() {
	for {
		select {
		case <-s.done:
			return
		case p := <-s.ch:
			s.storeWithRetry(p)
		}
	}
}

func (s *ChannelPageSink) storeWithRetry(p *models.Page) {
	for attempt, delay := range retryDelays {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.backend.StorePage(ctx, p)
		cancel()
		if err == nil {
			return
		}
		slog.Warn("page sink store failed", "url", p.URL, "attempt", attempt+1, "error", err)
	}
	slog.Error("page sink gave up after retries", "url", p.URL)
}

// Close stops the drain goroutine.
func (s *ChannelPageSink) Close() {
	close(s.done)
}

// ChannelMediaQueue buffers MediaRefs on a bounded channel, draining to
// Backend. Overflow policy is drop-oldest with an atomic counter, per
// spec.md §4.H.
type ChannelMediaQueue struct {
	backend MediaBackend
	ch      chan models.MediaRef
	done    chan struct{}
	dropped atomic.Int64
}

// NewChannelMediaQueue starts the drain goroutine and returns a queue
// with the given channel capacity (AI_QUEUE_MAX_SIZE).
func NewChannelMediaQueue(backend MediaBackend, capacity int) *ChannelMediaQueue {
	q := &ChannelMediaQueue{
		backend: backend,
		ch:      make(chan models.MediaRef, capacity),
		done:    make(chan struct{}),
	}
	go q.drain()
	return q
}

// Enqueue admits m, dropping the oldest buffered entry to make room when
// the channel is full rather than blocking the Fetch Pipeline.
func (q *ChannelMediaQueue) Enqueue(ctx context.Context, m models.MediaRef) error {
	select {
	case q.ch <- m:
		return nil
	default:
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
		select {
		case q.ch <- m:
			return nil
		default:
			q.dropped.Add(1)
			return nil
		}
	}
}

// Dropped reports how many MediaRefs have been evicted by the
// drop-oldest overflow policy.
func (q *ChannelMediaQueue) Dropped() int64 {
	return q.dropped.Load()
}

func (q *ChannelMediaQueue) drain() {
	for {
		select {
		case <-q.done:
			return
		case m := <-q.ch:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := q.backend.AcceptMedia(ctx, m); err != nil {
				slog.Warn("media queue enqueue failed", "url", m.URL, "error", err)
			}
			cancel()
		}
	}
}

// Close stops the drain goroutine.
func (q *ChannelMediaQueue) Close() {
	close(q.done)
}
