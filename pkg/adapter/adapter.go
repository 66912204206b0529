// Package adapter defines the registration bundle for one external
// system's supported tasks and credential requirements, and the
// registry that maps system types to their adapters.
package adapter

import (
	"context"

	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/task"
)

// Handler executes one task against a live client. The client is
// whatever the adapter's factory produced; handlers type-assert it.
type Handler func(ctx context.Context, client interface{}, tr task.TimeRange, p *task.Payload) (*task.Raw, error)

// ClientFactory builds a live client from resolved credential
// parameters.
type ClientFactory func(ctx context.Context, params credentials.Params) (interface{}, error)

// ListerFactory builds the metadata listers used to crawl this
// system's catalog. Nil when the system publishes no metadata.
type ListerFactory func(client interface{}) []metasync.Lister

// TaskSpec describes one executable task type
type TaskSpec struct {
	Handler Handler
	Shape   task.ResultShape
}

// Adapter is the immutable registration bundle for one external
// system. Created at process start, never mutated afterwards.
type Adapter struct {
	System connector.SystemType

	// Tasks maps task type to its spec
	Tasks map[task.Type]TaskSpec

	// RequiredKeySets lists acceptable credential shapes; a connector
	// satisfying any one of them is usable. Empty means no key
	// requirements.
	RequiredKeySets []connector.KeySet

	// NewClient builds the live client used by this adapter's handlers
	NewClient ClientFactory

	// Listers builds metadata crawlers for this system's catalog;
	// nil when the system has nothing to publish
	Listers ListerFactory
}

// IsUsable reports whether a connector's populated key types satisfy at
// least one of the adapter's required key-set alternatives, or the
// connector declares a proxy bypass.
func IsUsable(conn *connector.Connector, a *Adapter) bool {
	if conn == nil {
		return false
	}
	if conn.ProxyBypass {
		return true
	}
	if len(a.RequiredKeySets) == 0 {
		return true
	}

	populated := conn.PopulatedKeyTypes()
	for _, required := range a.RequiredKeySets {
		if required.SubsetOf(populated) {
			return true
		}
	}
	return false
}
