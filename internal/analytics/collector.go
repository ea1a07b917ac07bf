package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
)

// Publisher writes a batch of events to the event bus.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers chat events and publishes them in batches from a
// background goroutine. Track never blocks the request path.
type Collector struct {
	publisher     Publisher
	eventCh       chan ChatEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
	closeOnce     sync.Once
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan ChatEvent, bufferSize),
		batchSize:     100,
		flushInterval: time.Second,
		logger:        logger.WithComponent("analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. On ctx cancellation or Close the
// remaining buffered events are flushed with a short deadline.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(batch)
					return
				}
				batch = append(batch, kafka.Event{Key: event.SessionID, Value: event})
				if len(batch) >= c.batchSize {
					c.flush(batch)
					batch = batch[:0]
				}
			case <-ticker.C:
				c.flush(batch)
				batch = batch[:0]
			case <-ctx.Done():
				c.flush(c.drain(batch))
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event, dropping it when the buffer is full.
func (c *Collector) Track(event ChatEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "session_id", event.SessionID)
	}
}

// Close stops accepting events and waits for the final flush. Track must
// not be called after Close.
func (c *Collector) Close() {
	c.closeOnce.Do(func() { close(c.eventCh) })
	<-c.done
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, kafka.Event{Key: event.SessionID, Value: event})
		default:
			return batch
		}
	}
}

func (c *Collector) flush(batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
		return
	}
	c.logger.Debug("analytics events published", "count", len(batch))
}
