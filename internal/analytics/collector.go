// Package analytics buffers rerank events in-process and publishes them to
// Kafka on a background goroutine, so event delivery never adds latency to
// the request path. Events are dropped, with a warning, when the buffer is
// full or the broker is down; the rerank response is never affected.
package analytics

import (
	"context"
	"log/slog"

	"github.com/rerankd/rerankd/pkg/kafka"
)

// Collector accepts events from request handlers and drains them to Kafka.
type Collector struct {
	producer *kafka.Producer
	eventCh  chan RerankEvent
	logger   *slog.Logger
	done     chan struct{}
}

// NewCollector creates a Collector with the given buffer size.
func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan RerankEvent, bufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		done:     make(chan struct{}),
	}
}

// Start launches the publisher goroutine. It drains whatever is buffered
// when ctx is cancelled, then exits.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event without blocking the caller.
func (c *Collector) Track(event RerankEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the publisher to finish.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event RerankEvent) {
	err := c.producer.Publish(ctx, kafka.Event{
		Key:   event.Outcome,
		Value: event,
	})
	if err != nil {
		c.logger.Error("failed to publish rerank event", "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
