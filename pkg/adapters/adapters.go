// Package adapters registers all built-in system adapters. Importing it
// for side effects wires every adapter and its credential mapping into
// the global registry.
package adapters

import (
	_ "github.com/opsmux/opsmux/pkg/adapters/bigquery"
	_ "github.com/opsmux/opsmux/pkg/adapters/chat"
	_ "github.com/opsmux/opsmux/pkg/adapters/kafka"
	_ "github.com/opsmux/opsmux/pkg/adapters/loki"
	_ "github.com/opsmux/opsmux/pkg/adapters/mongodb"
	_ "github.com/opsmux/opsmux/pkg/adapters/mysql"
	_ "github.com/opsmux/opsmux/pkg/adapters/postgres"
	_ "github.com/opsmux/opsmux/pkg/adapters/s3"
	_ "github.com/opsmux/opsmux/pkg/adapters/snowflake"
)
