package sinks

import (
	"errors"
	"net/url"

	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/sink"
	"github.com/akave-ai/logreader/internal/sink/aggregator"
)

func init() {
	GlobalRegistry.Register(&AggregatorFactory{})
}

// AggregatorFactory creates HTTP aggregator sinks. Registers as "aggregator".
type AggregatorFactory struct{}

func (f *AggregatorFactory) Name() string { return "aggregator" }

func (f *AggregatorFactory) ConfigSpec() SinkTypeInfo {
	return SinkTypeInfo{
		Type:        "aggregator",
		Description: "POSTs JSON arrays of {topic, sender, level, document} envelopes. Failures are not retried; the cursor stays behind the undelivered events.",
		Fields: []ConfigField{
			{Name: "sink.aggregator.url", Type: "string", Required: true, Description: "Endpoint URL", Example: "https://aggregator.internal/api/logs"},
			{Name: "sink.aggregator.topic", Type: "string", Description: "Envelope topic", Example: "logreader"},
			{Name: "sink.aggregator.sender", Type: "string", Description: "Envelope sender", Example: "logreader"},
			{Name: "sink.aggregator.batch_size", Type: "number", Description: "Envelopes per POST", Example: "100"},
			{Name: "sink.aggregator.timeout", Type: "duration", Description: "HTTP timeout", Example: "10s"},
			{Name: "sink.aggregator.headers", Type: "object", Description: "Extra request headers"},
		},
	}
}

func (f *AggregatorFactory) ValidateConfig(cfg config.SinkConfig) error {
	if cfg.Aggregator.URL == "" {
		return errors.New("sink.aggregator.url is required")
	}
	u, err := url.Parse(cfg.Aggregator.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("sink.aggregator.url must be an absolute URL")
	}
	return nil
}

func (f *AggregatorFactory) Create(cfg config.SinkConfig, deps Deps) (sink.Sink, error) {
	ac := cfg.Aggregator
	opts := []aggregator.Option{
		aggregator.WithTopic(ac.Topic),
		aggregator.WithBatchSize(ac.BatchSize),
		aggregator.WithTimeout(ac.Timeout),
		aggregator.WithHeaders(ac.Headers),
		aggregator.WithLogger(deps.Logger),
	}
	if ac.Sender != "" {
		opts = append(opts, aggregator.WithSender(ac.Sender))
	}
	return aggregator.New(ac.URL, opts...), nil
}
