// Package registry keeps the connector factories available to the process.
// Connector packages register themselves from init functions.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/connector/core"
	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/logger"
)

type entry struct {
	factory  core.Factory
	metadata core.ConnectorMetadata
}

// Registry manages connector registration and instantiation
type Registry struct {
	connectors map[string]entry
	aliases    map[string]string
	mu         sync.RWMutex
	logger     *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]entry),
		aliases:    make(map[string]string),
		logger:     logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// Register registers a connector factory under its metadata name. Aliases
// are alternative lookup names, matched case-insensitively.
func (r *Registry) Register(metadata core.ConnectorMetadata, factory core.Factory, aliases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := metadata.Name
	if _, exists := r.connectors[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s already registered", name))
	}
	for _, alias := range aliases {
		if owner, taken := r.aliases[strings.ToLower(alias)]; taken {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("alias %s already used by %s", alias, owner))
		}
	}

	r.connectors[name] = entry{factory: factory, metadata: metadata}
	r.aliases[strings.ToLower(name)] = name
	for _, alias := range aliases {
		r.aliases[strings.ToLower(alias)] = name
	}
	r.logger.Debug("connector registered", zap.String("name", name), zap.Strings("aliases", aliases))
	return nil
}

// resolve maps a name or alias to a registered name. Callers hold mu.
func (r *Registry) resolve(name string) (string, bool) {
	if _, ok := r.connectors[name]; ok {
		return name, true
	}
	canonical, ok := r.aliases[strings.ToLower(name)]
	return canonical, ok
}

// Create creates a connector instance
func (r *Registry) Create(name string, deps core.Deps) (core.Wrapper, error) {
	r.mu.RLock()
	canonical, exists := r.resolve(name)
	e := r.connectors[canonical]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s not found", name))
	}

	w, err := e.factory(deps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create connector %s", canonical))
	}
	return w, nil
}

// Metadata returns the metadata of a registered connector
func (r *Registry) Metadata(name string) (core.ConnectorMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, exists := r.resolve(name)
	if !exists {
		return core.ConnectorMetadata{}, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s not found", name))
	}
	return r.connectors[canonical].metadata, nil
}

// List returns the metadata of every registered connector sorted by name
func (r *Registry) List() []core.ConnectorMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.ConnectorMetadata, 0, len(r.connectors))
	for _, e := range r.connectors {
		out = append(out, e.metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has checks if a connector is registered under name or an alias
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.resolve(name)
	return exists
}

// Clear removes all registered connectors (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connectors = make(map[string]entry)
	r.aliases = make(map[string]string)
}

// Global registry functions

// Register registers a connector in the global registry
func Register(metadata core.ConnectorMetadata, factory core.Factory, aliases ...string) error {
	return globalRegistry.Register(metadata, factory, aliases...)
}

// Create creates a connector from the global registry
func Create(name string, deps core.Deps) (core.Wrapper, error) {
	return globalRegistry.Create(name, deps)
}

// Metadata returns connector metadata from the global registry
func Metadata(name string) (core.ConnectorMetadata, error) {
	return globalRegistry.Metadata(name)
}

// List returns registered connectors from the global registry
func List() []core.ConnectorMetadata {
	return globalRegistry.List()
}

// Has checks if a connector is registered in the global registry
func Has(name string) bool {
	return globalRegistry.Has(name)
}

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}
