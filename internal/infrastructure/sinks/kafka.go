package sinks

import (
	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/sink"
	"github.com/akave-ai/logreader/internal/sink/kafka"
)

func init() {
	GlobalRegistry.Register(&KafkaFactory{})
}

// KafkaFactory creates Kafka producer sinks. Registers as "kafka".
type KafkaFactory struct{}

func (f *KafkaFactory) Name() string { return "kafka" }

func (f *KafkaFactory) ConfigSpec() SinkTypeInfo {
	return SinkTypeInfo{
		Type:        "kafka",
		Description: "Synchronous Kafka producer, leader acks. Messages are keyed by account/table.",
		Fields: []ConfigField{
			{Name: "sink.kafka.brokers", Type: "list", Required: true, Description: "Bootstrap brokers", Example: "kafka-1:9092,kafka-2:9092"},
			{Name: "sink.kafka.topic", Type: "string", Required: true, Description: "Target topic", Example: "service-logs"},
			{Name: "sink.kafka.batch_timeout", Type: "duration", Description: "Writer batch flush interval", Example: "100ms"},
		},
	}
}

func (f *KafkaFactory) Create(cfg config.SinkConfig, deps Deps) (sink.Sink, error) {
	return kafka.New(kafka.Config{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		BatchTimeout: cfg.Kafka.BatchTimeout,
	}, deps.Logger)
}
