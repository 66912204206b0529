package adapter

import (
	"sync"

	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/logger"
	"go.uber.org/zap"
)

// Registry manages adapter registration and lookup
type Registry struct {
	adapters map[connector.SystemType]*Adapter
	mu       sync.RWMutex
	logger   *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[connector.SystemType]*Adapter),
		logger:   logger.Get().With(zap.String("component", "adapter_registry")),
	}
}

// Register registers an adapter for its system type
func (r *Registry) Register(a *Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[a.System]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "adapter for system %s already registered", a.System)
	}

	r.adapters[a.System] = a
	r.logger.Info("adapter registered",
		zap.String("system", string(a.System)),
		zap.Int("tasks", len(a.Tasks)))
	return nil
}

// Get returns the adapter for a system type
func (r *Registry) Get(system connector.SystemType) (*Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.adapters[system]
	if !exists {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "adapter for system %s not found", system)
	}
	return a, nil
}

// RequiredKeySets returns the required-key-set alternatives declared by
// a system's adapter
func (r *Registry) RequiredKeySets(system connector.SystemType) ([]connector.KeySet, error) {
	a, err := r.Get(system)
	if err != nil {
		return nil, err
	}
	return a.RequiredKeySets, nil
}

// List returns the registered system types
func (r *Registry) List() []connector.SystemType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	systems := make([]connector.SystemType, 0, len(r.adapters))
	for system := range r.adapters {
		systems = append(systems, system)
	}
	return systems
}

// Has checks if a system has a registered adapter
func (r *Registry) Has(system connector.SystemType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.adapters[system]
	return exists
}

// Clear removes all registered adapters (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = make(map[connector.SystemType]*Adapter)
}

// Global registry functions

// Register registers an adapter in the global registry
func Register(a *Adapter) error {
	return globalRegistry.Register(a)
}

// MustRegister registers an adapter in the global registry and panics
// on conflict. Adapter packages call this from init, where a duplicate
// system registration is a programming error.
func MustRegister(a *Adapter) {
	if err := globalRegistry.Register(a); err != nil {
		panic(err)
	}
}

// Get returns an adapter from the global registry
func Get(system connector.SystemType) (*Adapter, error) {
	return globalRegistry.Get(system)
}

// RequiredKeySets returns required key sets from the global registry
func RequiredKeySets(system connector.SystemType) ([]connector.KeySet, error) {
	return globalRegistry.RequiredKeySets(system)
}

// List returns registered systems from the global registry
func List() []connector.SystemType {
	return globalRegistry.List()
}

// Has checks the global registry for a system
func Has(system connector.SystemType) bool {
	return globalRegistry.Has(system)
}

// GetRegistry returns the global registry instance.
// This is the primary way to access the adapter registry.
func GetRegistry() *Registry {
	return globalRegistry
}
