package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

// Header names attached to every Kafka record
const (
	HeaderEventType = "aibom-event-type"
	HeaderSequence  = "aibom-sequence"
)

// deliveryTimeout bounds one synchronous hand-off to an external broker so a
// slow broker cannot stall registry commits indefinitely.
const deliveryTimeout = 5 * time.Second

// --- Redis pub/sub ---

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes each event as JSON on a Redis channel. Pub/sub is
// fire-and-forget; consumers that miss messages resume from the event log.
type RedisSink struct {
	client  redisPublisher
	channel string
}

func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Deliver(ctx context.Context, ev models.RegistryEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", ev.Sequence, err)
	}
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", s.channel, err)
	}
	return nil
}

// Close leaves the shared Redis client open
func (s *RedisSink) Close() {}

// --- Kafka ---

type kafkaProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaSink produces each event to a topic, keyed by model id so that events
// of one record stay in one partition and keep their relative order.
type KafkaSink struct {
	producer kafkaProducer
}

// NewKafkaSink connects a franz-go producer to brokers
func NewKafkaSink(brokers []string, topic, clientID string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
	}
	if clientID != "" {
		opts = append(opts, kgo.ClientID(clientID))
	}
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{producer: cl}, nil
}

func (s *KafkaSink) Deliver(ctx context.Context, ev models.RegistryEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", ev.Sequence, err)
	}
	rec := &kgo.Record{
		Key:   []byte(strconv.FormatUint(ev.ModelID, 10)),
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(ev.Type)},
			{Key: HeaderSequence, Value: []byte(strconv.FormatUint(ev.Sequence, 10))},
		},
	}
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	if err := s.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() { s.producer.Close() }
