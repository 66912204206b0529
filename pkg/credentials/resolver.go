// Package credentials resolves a connector's typed key bag into the
// named parameters a system client constructor expects. The mapping is
// a static name lookup registered per system type; a key type without a
// mapping is a configuration error, not a runtime one.
package credentials

import (
	"fmt"
	"sync"

	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/errors"
)

// Params are the named string arguments handed to a client constructor
type Params map[string]string

// Get returns the value for a parameter name, or "" when absent
func (p Params) Get(name string) string {
	return p[name]
}

// Require returns the value for a parameter name, failing with a config
// error when the parameter is absent or empty.
func (p Params) Require(name string) (string, error) {
	v, ok := p[name]
	if !ok || v == "" {
		return "", errors.Newf(errors.ErrorTypeConfig, "missing required client parameter %q", name)
	}
	return v, nil
}

var (
	mu       sync.RWMutex
	mappings = make(map[connector.SystemType]map[connector.KeyType]string)
)

// RegisterMapping installs the key_type to parameter-name table for a
// system type. Called from adapter package init; re-registration for
// the same system is a programming error.
func RegisterMapping(system connector.SystemType, table map[connector.KeyType]string) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := mappings[system]; exists {
		panic(fmt.Sprintf("credentials: mapping for system %s already registered", system))
	}
	mappings[system] = table
}

// Resolve maps a connector's populated keys into client parameters.
// Keys with empty values are skipped; a populated key type missing from
// the system's table is a configuration error.
func Resolve(conn *connector.Connector) (Params, error) {
	if conn == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "connector is required")
	}

	mu.RLock()
	table, ok := mappings[conn.System]
	mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "no credential mapping registered for system %s", conn.System)
	}

	params := make(Params, len(conn.Keys))
	for _, key := range conn.Keys {
		if key.Value == "" {
			continue
		}
		name, ok := table[key.Type]
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig,
				"no client parameter mapping for key type %q on system %s", key.Type, conn.System)
		}
		params[name] = key.Value
	}

	return params, nil
}

// ResetMappings removes all registered mappings (mainly for testing)
func ResetMappings() {
	mu.Lock()
	defer mu.Unlock()
	mappings = make(map[connector.SystemType]map[connector.KeyType]string)
}
