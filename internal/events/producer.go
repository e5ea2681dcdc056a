package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic, lazily creating one writer per topic.
type KafkaPublisher struct {
	brokers   []string
	topic     string
	newWriter func(brokers []string, topic string) messageWriter

	mu      sync.Mutex
	writers map[string]messageWriter
}

// NewKafkaPublisher creates a KafkaPublisher for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		brokers:   brokers,
		topic:     topic,
		newWriter: newKafkaWriter,
		writers:   make(map[string]messageWriter),
	}
}

func newKafkaWriter(brokers []string, topic string) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
}

// Publish encodes the payload as JSON and writes it keyed by the record pk, so
// all events of one record land on the same partition in order.
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", evt.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.RecordPK),
		Value: body,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(evt.ID)},
			{Key: HeaderEventType, Value: []byte(evt.Type)},
			{Key: HeaderRecordPK, Value: []byte(evt.RecordPK)},
			{Key: HeaderRecordSK, Value: []byte(evt.RecordSK)},
			{Key: HeaderSubject, Value: []byte(evt.Subject)},
		},
	}
	return p.writerForTopic(p.topic).WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) writerForTopic(topic string) messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}
	writer := p.newWriter(p.brokers, topic)
	p.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
