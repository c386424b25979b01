package sinks

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/sink"
	"github.com/akave-ai/logreader/internal/sink/multi"
)

// Registry holds sink factories. The built-in kinds register themselves
// in GlobalRegistry from init().
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var GlobalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory, replacing any with the same name.
func (r *Registry) Register(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.Name()] = factory
}

func (r *Registry) lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Create validates cfg for the named kind and builds the sink.
func (r *Registry) Create(name string, cfg config.SinkConfig, deps Deps) (sink.Sink, error) {
	factory, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown sink type: %s", name)
	}
	if err := r.ValidateConfig(name, cfg); err != nil {
		return nil, fmt.Errorf("%s sink config: %w", name, err)
	}
	return factory.Create(cfg, deps)
}

// ValidateConfig runs the factory's optional validator. Returns nil if the
// type is unknown or has no validator.
func (r *Registry) ValidateConfig(name string, cfg config.SinkConfig) error {
	factory, ok := r.lookup(name)
	if !ok {
		return nil
	}
	if v, ok := factory.(interface {
		ValidateConfig(config.SinkConfig) error
	}); ok {
		return v.ValidateConfig(cfg)
	}
	return nil
}

// Build creates every kind listed in cfg.Kinds. More than one kind is
// wrapped in a fan-out sink. On failure the sinks built so far are closed.
func (r *Registry) Build(cfg config.SinkConfig, deps Deps) (sink.Sink, error) {
	if len(cfg.Kinds) == 0 {
		return nil, errors.New("no sink kinds configured")
	}
	built := make([]sink.Sink, 0, len(cfg.Kinds))
	seen := make(map[string]bool, len(cfg.Kinds))
	for _, kind := range cfg.Kinds {
		if seen[kind] {
			continue
		}
		seen[kind] = true
		s, err := r.Create(kind, cfg, deps)
		if err != nil {
			for _, b := range built {
				_ = b.Close()
			}
			return nil, err
		}
		built = append(built, s)
	}
	if len(built) == 1 {
		return built[0], nil
	}
	return multi.New(built...), nil
}

// ListRegistered returns the registered type names, sorted.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTypeInfo returns the config spec for the given type. ok is false if
// the type is not registered.
func (r *Registry) GetTypeInfo(name string) (info SinkTypeInfo, ok bool) {
	factory, ok := r.lookup(name)
	if !ok {
		return SinkTypeInfo{}, false
	}
	return factory.ConfigSpec(), true
}

// AllTypesInfo returns config specs for all registered types, sorted by type.
func (r *Registry) AllTypesInfo() []SinkTypeInfo {
	names := r.ListRegistered()
	out := make([]SinkTypeInfo, 0, len(names))
	for _, name := range names {
		if info, ok := r.GetTypeInfo(name); ok {
			out = append(out, info)
		}
	}
	return out
}
