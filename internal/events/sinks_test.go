package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisSink_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := &RedisSink{client: pub, channel: "aibom.events"}

	ev := event(4)
	require.NoError(t, sink.Deliver(context.Background(), ev))
	assert.Equal(t, "aibom.events", pub.channel)

	var got models.RegistryEvent
	require.NoError(t, json.Unmarshal(pub.message, &got))
	assert.Equal(t, ev.Sequence, got.Sequence)
	assert.Equal(t, ev.Type, got.Type)
}

func TestRedisSink_PropagatesError(t *testing.T) {
	sink := &RedisSink{client: &fakePublisher{err: errors.New("connection reset")}, channel: "c"}
	err := sink.Deliver(context.Background(), event(1))
	assert.ErrorContains(t, err, "connection reset")
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var out kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func (f *fakeProducer) Close() { f.closed = true }

func TestKafkaSink_KeysByModel(t *testing.T) {
	p := &fakeProducer{}
	sink := &KafkaSink{producer: p}

	ev := event(9)
	ev.ModelID = 42
	require.NoError(t, sink.Deliver(context.Background(), ev))
	require.Len(t, p.records, 1)

	rec := p.records[0]
	assert.Equal(t, "42", string(rec.Key))
	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, string(ev.Type), headers[HeaderEventType])
	assert.Equal(t, "9", headers[HeaderSequence])

	sink.Close()
	assert.True(t, p.closed)
}

func TestKafkaSink_PropagatesError(t *testing.T) {
	sink := &KafkaSink{producer: &fakeProducer{err: errors.New("not leader")}}
	assert.ErrorContains(t, sink.Deliver(context.Background(), event(1)), "not leader")
}

func TestNewKafkaSink_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaSink(nil, "t", "")
	assert.Error(t, err)
}
