package sinks

import (
	"errors"
	"net"
	"strconv"

	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/sink"
	"github.com/akave-ai/logreader/internal/sink/stream"
)

func init() {
	GlobalRegistry.Register(&StreamFactory{})
}

// StreamFactory creates TCP line-delimited JSON sinks. Registers as "stream".
type StreamFactory struct{}

func (f *StreamFactory) Name() string { return "stream" }

func (f *StreamFactory) ConfigSpec() SinkTypeInfo {
	return SinkTypeInfo{
		Type:        "stream",
		Description: "Persistent TCP connection, one JSON document per line. Reconnects and resends on failure; the connection is recycled after max_lifetime.",
		Fields: []ConfigField{
			{Name: "sink.stream.host", Type: "string", Required: true, Description: "Receiver host", Example: "logstash.internal"},
			{Name: "sink.stream.port", Type: "number", Required: true, Description: "Receiver port", Example: "5044"},
			{Name: "sink.stream.retry_delay", Type: "duration", Description: "Pause before reconnecting after a failure", Example: "2s"},
			{Name: "sink.stream.max_lifetime", Type: "duration", Description: "Connection age after which it is closed following the next write", Example: "10m"},
			{Name: "sink.stream.dial_timeout", Type: "duration", Description: "Connect timeout", Example: "10s"},
			{Name: "sink.stream.write_timeout", Type: "duration", Description: "Per-line write deadline, unset for none", Example: "5s"},
		},
	}
}

func (f *StreamFactory) ValidateConfig(cfg config.SinkConfig) error {
	if cfg.Stream.Host == "" {
		return errors.New("sink.stream.host is required")
	}
	if cfg.Stream.Port <= 0 || cfg.Stream.Port > 65535 {
		return errors.New("sink.stream.port must be between 1 and 65535")
	}
	return nil
}

func (f *StreamFactory) Create(cfg config.SinkConfig, deps Deps) (sink.Sink, error) {
	sc := cfg.Stream
	return stream.New(stream.Options{
		Addr:         net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port)),
		RetryDelay:   sc.RetryDelay,
		MaxLifetime:  sc.MaxLifetime,
		DialTimeout:  sc.DialTimeout,
		WriteTimeout: sc.WriteTimeout,
		Clock:        deps.Clock,
		Logger:       deps.Logger,
	}), nil
}
