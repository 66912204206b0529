// Package opsmux is a unified task-dispatch layer for operational
// systems. Callers submit typed tasks (queries, log searches, chat
// messages, admin commands) against a named connector; opsmux resolves
// the system's adapter and credentials, runs the task under a bounded
// timeout and returns a canonical, type-free result envelope.
//
// Alongside dispatch, opsmux keeps a central metadata registry fresh:
// each adapter can expose crawlers that paginate through the system's
// catalog (tables, topics, buckets, channels), accumulate entity
// attributes and publish them to the registry in bounded, idempotent
// chunks under a per-run refresh id.
//
// # Layout
//
//   - pkg/task: typed payloads and the canonical result envelope
//   - pkg/connector: connector credential bags and key sets
//   - pkg/adapter: the adapter registration bundle and registry
//   - pkg/executor: dispatch, credential resolution, bounded execution
//   - pkg/metasync: catalog crawling and batched metadata publication
//   - pkg/sanitize: filter-query repair and structural validation
//   - pkg/depgraph: bidirectional dependency graphs from intents
//   - pkg/adapters: the built-in system adapters
//
// The opsmux CLI under cmd/opsmux ties these together: "run" executes
// one task, "sync" refreshes a connector's metadata, "graph" builds a
// dependency graph from intent declarations.
package opsmux
