package kafka

import (
	"context"
	"time"
)

// Message is a record fetched from a topic.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMessage is a record to be written. Partition is ignored unless the
// writer's balancer honours it.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
	Partition int
}

// MessageHandler processes one message. A returned error triggers the
// consumer's retry policy.
type MessageHandler func(ctx context.Context, msg *Message) error

// TopicConfig describes a topic created by TopicManager.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
	CleanupPolicy     string
	MaxMessageBytes   int
	Configs           map[string]string
}

// Publisher is the write side used by the application layer and the
// consumer's dead-letter path.
type Publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// MessageRecorder observes message outcomes, usually backed by Prometheus.
type MessageRecorder interface {
	RecordMessage(topic, status string, duration time.Duration)
}

// Message outcome labels passed to MessageRecorder.
const (
	StatusProcessed    = "processed"
	StatusDeadLettered = "dead_lettered"
	StatusDropped      = "dropped"
	StatusUnhandled    = "unhandled"
)

type noopRecorder struct{}

func (noopRecorder) RecordMessage(string, string, time.Duration) {}

//Personal.AI order the ending
