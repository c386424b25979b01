package sinks

import (
	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/clock"
	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/sink"
)

// Deps are the shared collaborators handed to every factory.
type Deps struct {
	Logger zerolog.Logger
	Clock  clock.Clock
}

// Factory creates one kind of sink from the sink config section.
// Factories may also implement ValidateConfig(config.SinkConfig) error,
// which Registry.Create runs first.
type Factory interface {
	Name() string
	ConfigSpec() SinkTypeInfo
	Create(cfg config.SinkConfig, deps Deps) (sink.Sink, error)
}
