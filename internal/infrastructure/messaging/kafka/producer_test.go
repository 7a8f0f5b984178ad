package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/turtacn/AgriBot-NLU/pkg/errors"
)

type mockKafkaWriter struct {
	mu        sync.Mutex
	written   []kafka.Message
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closed    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	m.written = append(m.written, msgs...)
	m.mu.Unlock()
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed++
	return nil
}

func (m *mockKafkaWriter) messages() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.written...)
}

func newTestProducer(w WriterInterface) *Producer {
	return newProducerWithWriter(w, ProducerConfig{Brokers: []string{"localhost:9092"}}, nil)
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b"}, MaxRetries: -1}))

	err := ValidateProducerConfig(ProducerConfig{
		Brokers:  []string{"b"},
		Security: SecurityConfig{SASLMechanism: "PLAIN"},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func TestNewProducer_BuildsWriter(t *testing.T) {
	p, err := NewProducer(ProducerConfig{
		Brokers:          []string{"localhost:9092"},
		Acks:             "all",
		CompressionCodec: "snappy",
		Security:         SecurityConfig{SASLMechanism: "SCRAM-SHA-512", SASLUsername: "u", SASLPassword: "p"},
	}, nil)
	require.NoError(t, err)
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.Equal(t, kafka.Snappy, w.Compression)
	assert.Equal(t, 4, w.MaxAttempts)
	require.NoError(t, p.Close())
}

func TestPublish_Success(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), &ProducerMessage{
		Topic:   "t",
		Key:     []byte("k"),
		Value:   []byte("v"),
		Headers: map[string]string{"h": "x"},
	})
	require.NoError(t, err)

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "t", msgs[0].Topic)
	assert.Equal(t, []byte("k"), msgs[0].Key)
	assert.Equal(t, []kafka.Header{{Key: "h", Value: []byte("x")}}, msgs[0].Headers)
	assert.False(t, msgs[0].Time.IsZero())

	st := p.Stats()
	assert.Equal(t, int64(1), st.Sent)
	assert.Equal(t, int64(1), st.Bytes)
	assert.WithinDuration(t, time.Now(), st.LastSentAt, time.Minute)
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx, nil))
	assert.Error(t, p.Publish(ctx, &ProducerMessage{Value: []byte("v")}))
	assert.Error(t, p.Publish(ctx, &ProducerMessage{Topic: "t"}))

	big := make([]byte, 1024*1024+1)
	err := p.Publish(ctx, &ProducerMessage{Topic: "t", Value: big})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func TestPublish_WriteError(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return errors.New("broker down")
	}}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeExternalService))
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestPublish_AfterClose(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)

	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.ErrorIs(t, err, ErrProducerClosed)
}

func TestPublishEvent_SetsKeyAndHeaders(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)
	env, err := NewEventEnvelope(EventTypeAnalysis, EventSourceNLU, AnalysisCompletedPayload{MessageID: "m1"})
	require.NoError(t, err)

	require.NoError(t, p.PublishEvent(context.Background(), TopicAnalysisCompleted, "conv-1", env))

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("conv-1"), msgs[0].Key)
	headers := map[string]string{}
	for _, h := range msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, EventTypeAnalysis, headers[HeaderEventType])
	assert.Equal(t, CurrentEventSchemaVersion, headers[HeaderSchemaVersion])
}

func TestCompressionAndAcks(t *testing.T) {
	assert.Equal(t, kafka.Gzip, compressionCodec("gzip"))
	assert.Equal(t, kafka.Lz4, compressionCodec("lz4"))
	assert.Equal(t, kafka.Zstd, compressionCodec("zstd"))
	assert.Equal(t, kafka.Compression(0), compressionCodec(""))
	assert.Equal(t, kafka.Compression(0), compressionCodec("brotli"))
	assert.Equal(t, kafka.RequireNone, requiredAcks("none"))
	assert.Equal(t, kafka.RequireOne, requiredAcks(""))
}

//Personal.AI order the ending
