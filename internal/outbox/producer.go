package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventProducer fans outbox batches out to Kafka, one writer per topic.
// Records carry partition keys (tenant-scoped for creations, the activity ID
// for status changes), so the hash balancer keeps each activity's lifecycle
// events in order on a single partition.
type EventProducer struct {
	brokers []string

	mu      sync.RWMutex
	writers map[string]*kafka.Writer
}

// NewEventProducer creates a producer for the given broker list. Writers are
// opened lazily on first write to a topic.
func NewEventProducer(brokers []string) *EventProducer {
	return &EventProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages delivers a batch to the topic, opening a writer if needed.
func (p *EventProducer) WriteMessages(ctx context.Context, topic string, records ...kafka.Message) error {
	return p.writer(topic).WriteMessages(ctx, records...)
}

func (p *EventProducer) writer(topic string) *kafka.Writer {
	p.mu.RLock()
	writer, ok := p.writers[topic]
	p.mu.RUnlock()
	if ok {
		return writer
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	// The dispatcher already delivers in small polled batches, so the
	// writer's batching window stays short.
	writer = &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 100 * time.Millisecond,
	}
	p.writers[topic] = writer
	return writer
}

// Close shuts down every open writer.
func (p *EventProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing writer for %s: %w", topic, err))
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
