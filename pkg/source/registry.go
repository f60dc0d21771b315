package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Factory creates a source instance from its raw JSON config block.
type Factory func(ctx context.Context, name string, config json.RawMessage) (Source, error)

// Registry maps source type names to factories.
type Registry interface {
	Register(sourceType string, factory Factory)
	Get(ctx context.Context, sourceType, name string, config json.RawMessage) (Source, error)
	Types() []string
}

type sourceRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty source registry. Adapter packages are
// registered by the caller, keeping this package free of their
// dependencies.
func NewRegistry() Registry {
	return &sourceRegistry{
		factories: make(map[string]Factory),
	}
}

func (r *sourceRegistry) Register(sourceType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[sourceType] = factory
}

func (r *sourceRegistry) Get(ctx context.Context, sourceType, name string, config json.RawMessage) (Source, error) {
	r.mu.RLock()
	factory, ok := r.factories[sourceType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoSource, sourceType)
	}

	return factory(ctx, name, config)
}

func (r *sourceRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}

	sort.Strings(types)

	return types
}
