package bootstrap

import (
	"github.com/turtacn/AgriBot-NLU/internal/config"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/messaging/kafka"
)

// SecurityConfig maps the SASL/TLS settings.
func SecurityConfig(k config.KafkaConfig) kafka.SecurityConfig {
	return kafka.SecurityConfig{
		SASLMechanism: k.SASLMechanism,
		SASLUsername:  k.SASLUsername,
		SASLPassword:  k.SASLPassword,
		TLSEnabled:    k.TLSEnabled,
		TLSCAPath:     k.TLSCAPath,
	}
}

// ProducerConfig maps the event-bus settings onto the producer. Events are
// acknowledged by all in-sync replicas.
func ProducerConfig(k config.KafkaConfig) kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:          k.Brokers,
		Acks:             "all",
		MaxRetries:       k.MaxRetries,
		BatchTimeout:     k.BatchTimeout,
		CompressionCodec: k.Compression,
		WriteTimeout:     k.WriteTimeout,
		Security:         SecurityConfig(k),
	}
}

// ConsumerConfig maps the event-bus settings onto a consumer of the chat
// input topic.
func ConsumerConfig(k config.KafkaConfig) kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:         k.Brokers,
		GroupID:         k.GroupID,
		Topics:          []string{k.InputTopic},
		AutoOffsetReset: k.AutoOffsetReset,
		Security:        SecurityConfig(k),
		RetryConfig: kafka.RetryConfig{
			MaxRetries:      k.MaxRetries,
			RetryBackoff:    k.RetryBackoff,
			MaxRetryBackoff: k.MaxRetryBackoff,
		},
	}
}

//Personal.AI order the ending
