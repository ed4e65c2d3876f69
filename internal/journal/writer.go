package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const (
	DefaultBufferSize    = 1024
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
)

// Writer is a Recorder that buffers events and flushes them to a Store in
// batches from a background loop.
type Writer struct {
	store         Store
	buffer        chan Event
	batchSize     int
	flushInterval time.Duration
	logger        log.Logger

	dropped atomic.Uint64
	closeMu sync.RWMutex
	closed  bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBuffer sets the number of events held before Record starts dropping.
func WithBuffer(size int) WriterOption {
	return func(w *Writer) {
		if size > 0 {
			w.buffer = make(chan Event, size)
		}
	}
}

// WithBatch sets the flush batch size and interval.
func WithBatch(size int, interval time.Duration) WriterOption {
	return func(w *Writer) {
		if size > 0 {
			w.batchSize = size
		}
		if interval > 0 {
			w.flushInterval = interval
		}
	}
}

func WithWriterLogger(l log.Logger) WriterOption {
	return func(w *Writer) { w.logger = l }
}

// NewWriter creates a writer over store. Call Run to start flushing.
func NewWriter(store Store, opts ...WriterOption) *Writer {
	w := &Writer{
		store:         store,
		buffer:        make(chan Event, DefaultBufferSize),
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		logger:        log.Root(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record queues e. When the buffer is full the event is dropped and counted
// so that a slow store never stalls a ledger operation.
func (w *Writer) Record(e Event) {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.buffer <- e:
	default:
		n := w.dropped.Add(1)
		w.logger.Warn("Journal buffer full, dropping event", "ledger", e.Ledger, "kind", e.Kind, "dropped", n)
	}
}

// Dropped returns how many events were discarded.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Run flushes queued events until ctx is cancelled, then drains what is
// left in the buffer and returns.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, w.batchSize)
	for {
		select {
		case <-ctx.Done():
			w.close()
			for e := range w.buffer {
				batch = append(batch, e)
			}
			// The parent context is gone; give the final flush its own deadline
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flush(flushCtx, batch)
			cancel()
			return nil
		case e := <-w.buffer:
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				batch = w.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = w.flush(ctx, batch)
		}
	}
}

func (w *Writer) close() {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.buffer)
	}
}

func (w *Writer) flush(ctx context.Context, batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	if err := w.store.Append(ctx, batch); err != nil {
		w.logger.Error("Failed to flush journal batch", "events", len(batch), "err", err)
		// Keep the batch for the next tick unless it keeps growing unbounded
		if len(batch) < cap(w.buffer) {
			return batch
		}
		w.dropped.Add(uint64(len(batch)))
		return batch[:0]
	}
	w.logger.Debug("Flushed journal batch", "events", len(batch))
	return batch[:0]
}
