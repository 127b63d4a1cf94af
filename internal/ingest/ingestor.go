package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"example.com/shopcatalog/internal/eventlog"
	"example.com/shopcatalog/internal/logger"
	"example.com/shopcatalog/internal/metrics"
)

const flushTimeout = 5 * time.Second

// Ingestor buffers accepted events and appends them to the event log in
// batches, bounded by size and by time.
type Ingestor struct {
	queue        chan nostr.Event
	log          eventlog.Log
	batchMaxSize int
	batchMaxWait time.Duration
	metrics      *metrics.Metrics
	logger       *logger.Entry
	done         chan struct{}

	// mu guards stopped. Enqueue holds the read side across its send, so
	// once the loop has set stopped every accepted event is in the queue.
	mu      sync.RWMutex
	stopped bool
}

func NewIngestor(log eventlog.Log, queueMaxSize, batchMaxSize int, batchMaxWait time.Duration, m *metrics.Metrics, lg *logger.Entry) *Ingestor {
	if lg == nil {
		lg = logger.Discard()
	}
	return &Ingestor{
		queue:        make(chan nostr.Event, queueMaxSize),
		log:          log,
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
		metrics:      m,
		logger:       lg.WithComponent("ingest"),
		done:         make(chan struct{}),
	}
}

// Start runs the batching loop until ctx is cancelled. Whatever is queued
// at that point is flushed before Done is closed.
func (ig *Ingestor) Start(ctx context.Context) {
	go func() {
		defer close(ig.done)

		batch := make([]nostr.Event, 0, ig.batchMaxSize)
		t := time.NewTimer(ig.batchMaxWait)
		defer t.Stop()

		resetTimer := func() {
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(ig.batchMaxWait)
		}

		// Writes are detached from ctx: the final flush runs after it is cancelled.
		writeCtx := context.WithoutCancel(ctx)
		flush := func() {
			if len(batch) == 0 {
				resetTimer()
				return
			}
			fctx, cancel := context.WithTimeout(writeCtx, flushTimeout)
			added, err := ig.log.Append(fctx, batch)
			cancel()
			ig.metrics.Flushed(added, len(batch), err)
			if err != nil {
				ig.logger.WithError(err).WithFields(logger.Fields{"dropped": len(batch)}).Error("batch append failed")
			} else {
				ig.logger.WithFields(logger.Fields{"added": added, "size": len(batch)}).Debug("batch appended")
			}
			batch = batch[:0]
			resetTimer()
		}

		for {
			select {
			case <-ctx.Done():
				ig.mu.Lock()
				ig.stopped = true
				ig.mu.Unlock()
			drain:
				for {
					select {
					case ev := <-ig.queue:
						batch = append(batch, ev)
						if len(batch) >= ig.batchMaxSize {
							flush()
						}
					default:
						break drain
					}
				}
				flush()
				return
			case ev := <-ig.queue:
				batch = append(batch, ev)
				if len(batch) >= ig.batchMaxSize {
					flush()
				}
			case <-t.C:
				flush()
			}
		}
	}()
}

// Enqueue reports false when the queue is full or the loop has stopped.
func (ig *Ingestor) Enqueue(ev nostr.Event) bool {
	ig.mu.RLock()
	defer ig.mu.RUnlock()
	if ig.stopped {
		return false
	}
	select {
	case ig.queue <- ev:
		ig.metrics.Queued(1)
		return true
	default:
		return false
	}
}

// Done is closed once the loop has exited and flushed.
func (ig *Ingestor) Done() <-chan struct{} { return ig.done }
