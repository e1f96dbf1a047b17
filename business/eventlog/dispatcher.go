// Package eventlog persists decisioning events off the hot path. Events are
// queued, written in batches with retries, and routed to a dead-letter
// writer when they cannot be persisted. Nothing is dropped silently.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"adDecisioning/domain"
	"adDecisioning/pkg/logger"
)

var ErrClosed = errors.New("eventlog: dispatcher closed")

// Writer persists a batch of events atomically.
type Writer interface {
	WriteEvents(ctx context.Context, events []domain.Event) error
}

type DeadLetterWriter interface {
	WriteDeadLetters(ctx context.Context, letters []domain.DeadLetter) error
}

type Options struct {
	QueueSize     int
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	MaxAttempts   int
	BaseBackoff   time.Duration
	WriteTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		QueueSize:     10000,
		Workers:       2,
		BatchSize:     100,
		FlushInterval: 500 * time.Millisecond,
		MaxAttempts:   3,
		BaseBackoff:   50 * time.Millisecond,
		WriteTimeout:  5 * time.Second,
	}
}

type Dispatcher struct {
	writer Writer
	dlq    DeadLetterWriter
	opts   Options

	mu     sync.RWMutex
	closed bool
	queue  chan domain.Event

	wg       sync.WaitGroup
	overflow sync.WaitGroup
}

func NewDispatcher(writer Writer, dlq DeadLetterWriter, opts Options) *Dispatcher {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = def.FlushInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	return &Dispatcher{
		writer: writer,
		dlq:    dlq,
		opts:   opts,
		queue:  make(chan domain.Event, opts.QueueSize),
	}
}

// Start launches the workers. They drain the queue until Close.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Publish enqueues events without blocking. When the queue is full or the
// dispatcher is closed the events go straight to the dead-letter writer.
func (d *Dispatcher) Publish(events ...domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var rejected []domain.Event
	reason := "queue full"
	for _, ev := range events {
		if d.closed {
			rejected = append(rejected, ev)
			reason = ErrClosed.Error()
			continue
		}
		select {
		case d.queue <- ev:
			eventsQueued.WithLabelValues(ev.EventKind()).Inc()
		default:
			rejected = append(rejected, ev)
		}
	}
	if len(rejected) == 0 {
		return
	}

	d.overflow.Add(1)
	go func() {
		defer d.overflow.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.WriteTimeout)
		defer cancel()
		d.deadLetter(ctx, rejected, 0, errors.New(reason))
	}()
}

// Close stops intake and waits for queued events to be written.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		d.overflow.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("eventlog drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]domain.Event, 0, d.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		d.write(context.WithoutCancel(ctx), batch)
		batch = make([]domain.Event, 0, d.opts.BatchSize)
	}

	for {
		select {
		case ev, ok := <-d.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// write retries with exponential backoff and dead-letters on exhaustion.
func (d *Dispatcher) write(ctx context.Context, batch []domain.Event) {
	var err error
	backoff := d.opts.BaseBackoff
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		wctx, cancel := context.WithTimeout(ctx, d.opts.WriteTimeout)
		err = d.writer.WriteEvents(wctx, batch)
		cancel()
		if err == nil {
			eventsWritten.Add(float64(len(batch)))
			return
		}

		logger.Warn("eventlog_write_failed", "attempt", attempt, "events", len(batch), "error", err)
		if attempt < d.opts.MaxAttempts && backoff > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	dctx, cancel := context.WithTimeout(ctx, d.opts.WriteTimeout)
	defer cancel()
	d.deadLetter(dctx, batch, d.opts.MaxAttempts, err)
}

func (d *Dispatcher) deadLetter(ctx context.Context, events []domain.Event, attempts int, cause error) {
	letters := make([]domain.DeadLetter, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			payload = []byte(fmt.Sprintf("%q", fmt.Sprintf("%+v", ev)))
		}
		letters = append(letters, domain.DeadLetter{
			EventID:   ev.EventKey(),
			Kind:      ev.EventKind(),
			Payload:   payload,
			Error:     cause.Error(),
			Attempts:  attempts,
			CreatedAt: time.Now(),
		})
	}

	eventsDeadLettered.Add(float64(len(letters)))
	if d.dlq != nil {
		err := d.dlq.WriteDeadLetters(ctx, letters)
		if err == nil {
			return
		}
		logger.Error("eventlog_dead_letter_failed", "events", len(letters), "error", err)
	}

	// last resort: the payload lands in the log so it can be replayed
	for _, l := range letters {
		logger.Error("eventlog_event_lost",
			"event_id", l.EventID,
			"kind", l.Kind,
			"payload", string(l.Payload),
			"cause", l.Error,
		)
	}
}
