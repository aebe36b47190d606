package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueDepth   = 64
	defaultMaxRetries   = 3
	defaultRetryBackoff = 250 * time.Millisecond

	// blockPollInterval is how often a blocked producer re-checks the queue.
	blockPollInterval = 10 * time.Millisecond
)

// ErrSinkClosed is returned by Enqueue after Close has been called.
var ErrSinkClosed = errors.New("persistence sink closed")

// WithQueueDepth sets the number of batches the sink buffers before the
// overflow policy applies.
func WithQueueDepth(n int) func(*Sink) {
	return func(s *Sink) {
		if n > 0 {
			s.queueDepth = n
		}
	}
}

// WithBlockOnFull makes Enqueue block until queue space frees instead of
// dropping the oldest queued batch.
func WithBlockOnFull() func(*Sink) {
	return func(s *Sink) {
		s.blockOnFull = true
	}
}

// WithRetry sets the retry budget for failed writes: up to retries extra
// attempts, starting at backoff and doubling per attempt.
func WithRetry(retries int, backoff time.Duration) func(*Sink) {
	return func(s *Sink) {
		if retries >= 0 {
			s.maxRetries = retries
		}
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// WithOnOverflow installs a hook invoked once per batch evicted by the
// drop-oldest policy. The hook must not call back into the sink.
func WithOnOverflow(fn func(dropped *Batch)) func(*Sink) {
	return func(s *Sink) {
		s.onOverflow = fn
	}
}

// WithOnWriteFailure installs a hook invoked once per batch abandoned after
// retry exhaustion. The hook must not call back into the sink.
func WithOnWriteFailure(fn func(batch *Batch, err error)) func(*Sink) {
	return func(s *Sink) {
		s.onWriteFailure = fn
	}
}

// WithMirror forwards every persisted batch to a GreptimeDB mirror.
// Mirror writes are best-effort and never retried.
func WithMirror(m *Mirror) func(*Sink) {
	return func(s *Sink) {
		s.mirror = m
	}
}

// Sink is the bounded asynchronous writer between the ingestion pipeline
// and the mission store. Batches are queued up to a configured depth and
// written by a single consumer goroutine; when the queue is full the sink
// either evicts the oldest batch (default) or blocks the producer. Failed
// writes are retried with exponential backoff; a batch that exhausts its
// retries is dropped and reported, and ingestion continues.
type Sink struct {
	store     Store
	missionID string
	logger    *slog.Logger
	mirror    *Mirror

	queueDepth   int
	blockOnFull  bool
	maxRetries   int
	retryBackoff time.Duration

	onOverflow     func(*Batch)
	onWriteFailure func(*Batch, error)

	mu     sync.Mutex
	queue  chan *Batch
	closed bool

	closing chan struct{}
	done    chan struct{}

	writeCtx    context.Context
	writeCancel context.CancelFunc

	persisted atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewSink creates a sink writing to store under the given mission and
// starts its consumer goroutine.
func NewSink(store Store, missionID string, logger *slog.Logger, options ...func(*Sink)) *Sink {
	s := &Sink{
		store:        store,
		missionID:    missionID,
		logger:       logger,
		queueDepth:   defaultQueueDepth,
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}

	for _, option := range options {
		option(s)
	}

	s.queue = make(chan *Batch, s.queueDepth)
	s.writeCtx, s.writeCancel = context.WithCancel(context.Background())

	go s.run()
	return s
}

// Enqueue hands a batch to the sink. Under the drop-oldest policy it never
// blocks: a full queue evicts its oldest batch, which is counted and
// reported through the overflow hook. Under the block policy it waits for
// queue space. Empty batches are ignored.
func (s *Sink) Enqueue(batch *Batch) error {
	if batch == nil || batch.Empty() {
		return nil
	}
	if s.blockOnFull {
		return s.enqueueBlocking(batch)
	}
	return s.enqueueDropOldest(batch)
}

func (s *Sink) enqueueBlocking(batch *Batch) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrSinkClosed
		}
		select {
		case s.queue <- batch:
			s.mu.Unlock()
			return nil
		default:
		}
		s.mu.Unlock()

		select {
		case <-s.closing:
			return ErrSinkClosed
		case <-time.After(blockPollInterval):
		}
	}
}

func (s *Sink) enqueueDropOldest(batch *Batch) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}

	var evicted []*Batch
	for {
		select {
		case s.queue <- batch:
			s.mu.Unlock()
			for _, d := range evicted {
				s.dropped.Add(1)
				s.logger.Warn("persistence queue full, dropped oldest batch", "rows", d.Len())
				if s.onOverflow != nil {
					s.onOverflow(d)
				}
			}
			return nil
		default:
		}

		select {
		case d := <-s.queue:
			evicted = append(evicted, d)
		default:
			// Consumer drained the queue between attempts; retry the send.
		}
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for {
		select {
		case batch := <-s.queue:
			s.write(batch)
		case <-s.closing:
			for {
				select {
				case batch := <-s.queue:
					s.write(batch)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(batch *Batch) {
	backoff := s.retryBackoff
	for attempt := 0; ; attempt++ {
		err := s.store.WriteBatch(s.writeCtx, s.missionID, batch)
		if err == nil {
			s.persisted.Add(1)
			if s.mirror != nil {
				if mErr := s.mirror.WriteBatch(s.writeCtx, s.missionID, batch); mErr != nil {
					s.logger.Warn("mirror write failed", "rows", batch.Len(), "error", mErr)
				}
			}
			return
		}

		aborted := errors.Is(err, context.Canceled)
		if attempt >= s.maxRetries || aborted {
			s.failed.Add(1)
			s.logger.Error("abandoning batch after write failure",
				"rows", batch.Len(), "attempts", attempt+1, "error", err)
			if s.onWriteFailure != nil {
				s.onWriteFailure(batch, err)
			}
			return
		}

		s.logger.Warn("batch write failed, retrying",
			"attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-s.writeCtx.Done():
		}
		backoff *= 2
	}
}

// Close stops accepting batches and drains everything already accepted,
// bounded by ctx. On timeout the in-flight write is aborted and remaining
// batches are abandoned; each is reported through the write failure hook.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.closing)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		// Abort the in-flight write; the consumer then fails fast through
		// the remaining queue, counting and reporting each batch.
		s.writeCancel()
		<-s.done
		return fmt.Errorf("persistence drain aborted: %w", ctx.Err())
	}
}

// Persisted returns the number of batches successfully written.
func (s *Sink) Persisted() uint64 { return s.persisted.Load() }

// Dropped returns the number of batches evicted by the overflow policy.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Failed returns the number of batches abandoned after write failures.
func (s *Sink) Failed() uint64 { return s.failed.Load() }
