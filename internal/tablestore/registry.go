package tablestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownBackend is returned when no registered backend accepts a connection string.
var ErrUnknownBackend = errors.New("tablestore: no backend accepts connection string")

// Opener connects to one kind of table store.
type Opener interface {
	Name() string
	// Accepts reports whether connString is addressed to this backend.
	Accepts(connString string) bool
	Open(ctx context.Context, connString string) (Account, error)
}

// Registry holds registered backends.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// GlobalRegistry is where backend packages register themselves.
var GlobalRegistry = NewRegistry()

// Register adds or replaces a backend.
func (r *Registry) Register(o Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[o.Name()] = o
}

// Open connects to the account behind connString using the first backend,
// in name order, that accepts it.
func (r *Registry) Open(ctx context.Context, connString string) (Account, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	var opener Opener
	for _, name := range names {
		if r.openers[name].Accepts(connString) {
			opener = r.openers[name]
			break
		}
	}
	r.mu.RUnlock()
	if opener == nil {
		return nil, ErrUnknownBackend
	}
	acc, err := opener.Open(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("open %s account: %w", opener.Name(), err)
	}
	return acc, nil
}

// ListRegistered returns registered backend names.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
