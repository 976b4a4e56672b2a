package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of kafka-go's Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic.
type KafkaPublisher struct {
	writer   messageWriter
	topic    string
	clientID string
}

// KafkaConfig configures the publisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
}

// NewKafkaPublisher builds a publisher over a kafka-go Writer. The writer
// connects lazily on first write.
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error("kafka writer: " + fmt.Sprintf(msg, args...))
		}),
	}
	return newKafkaPublisher(writer, cfg.Topic, cfg.ClientID)
}

func newKafkaPublisher(writer messageWriter, topic, clientID string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic, clientID: clientID}
}

// Publish serializes {type, payload} and writes it keyed by event.Key.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	event = event.stamped()
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafkago.Message{
		Topic: p.topic,
		Key:   []byte(event.Key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-id", Value: []byte(event.ID)},
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "producer", Value: []byte(p.clientID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
