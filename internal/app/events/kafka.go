package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/system"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

var _ system.Service = (*KafkaPublisher)(nil)
var _ Publisher = (*KafkaPublisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by order id, so every event
// for one order lands on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *logging.Logger
}

// NewKafkaPublisher creates a publisher for brokers/topic.
func NewKafkaPublisher(brokers []string, topic string, log *logging.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
		},
		topic: topic,
		log:   log,
	}, nil
}

func (k *KafkaPublisher) Name() string { return "kafka-publisher" }

func (k *KafkaPublisher) Start(ctx context.Context) error {
	k.log.WithField("topic", k.topic).Info("kafka publisher ready")
	return nil
}

// Stop flushes pending writes.
func (k *KafkaPublisher) Stop(ctx context.Context) error {
	return k.writer.Close()
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Type, k.topic, err)
	}
	return nil
}
