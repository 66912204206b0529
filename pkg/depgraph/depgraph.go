// Package depgraph turns one-directional service-intent declarations
// into a bidirectional dependency graph: every declared source→target
// edge becomes an upstream entry on the source and a downstream entry
// on the target.
package depgraph

import "sort"

// TargetKind distinguishes target reference forms
type TargetKind string

const (
	// TargetWorkload references a workload, optionally qualified as
	// name.namespace
	TargetWorkload TargetKind = "workload"
	// TargetService references an opaque named service; dotted names
	// are cluster-scoped, bare names are namespace-local
	TargetService TargetKind = "service"
)

// Target is one declared dependency of an intent's source workload
type Target struct {
	Kind TargetKind `yaml:"kind" json:"kind"`
	Name string     `yaml:"name" json:"name"`
}

// Intent declares that a source workload talks to zero or more targets
type Intent struct {
	Name      string   `yaml:"name" json:"name"`
	Namespace string   `yaml:"namespace" json:"namespace"`
	Targets   []Target `yaml:"targets" json:"targets"`
}

// Node is one workload or service observed as a source or target
type Node struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Namespace   string   `json:"namespace"`
	Upstreams   []string `json:"upstreams"`
	Downstreams []string `json:"downstreams"`
}

// Stats are aggregate counts over a built graph
type Stats struct {
	Nodes           int `json:"nodes"`
	UpstreamEdges   int `json:"upstream_edges"`
	DownstreamEdges int `json:"downstream_edges"`
	Namespaces      int `json:"namespaces"`
}

// Graph is the symmetric adjacency produced from intents
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Stats Stats            `json:"stats"`
}

// nodeRef is a resolved (name, namespace) pair. Cluster-scoped services
// have an empty namespace and their key is the bare name.
type nodeRef struct {
	name      string
	namespace string
}

func (r nodeRef) key() string {
	if r.namespace == "" {
		return r.name
	}
	return r.name + "." + r.namespace
}

// resolveTarget applies the namespace-resolution rule: workload targets
// inherit the source namespace unless explicitly qualified; service
// targets are cluster-scoped when dotted, namespace-local otherwise.
func resolveTarget(t Target, sourceNamespace string) nodeRef {
	dot := indexDot(t.Name)

	switch t.Kind {
	case TargetService:
		if dot >= 0 {
			return nodeRef{name: t.Name}
		}
		return nodeRef{name: t.Name, namespace: sourceNamespace}
	default:
		if dot >= 0 {
			return nodeRef{name: t.Name[:dot], namespace: t.Name[dot+1:]}
		}
		return nodeRef{name: t.Name, namespace: sourceNamespace}
	}
}

func indexDot(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// Build constructs the bidirectional graph from intents
func Build(intents []Intent) *Graph {
	refs := make(map[string]nodeRef)
	upstream := make(map[string]map[string]struct{})
	downstream := make(map[string]map[string]struct{})

	observe := func(r nodeRef) string {
		k := r.key()
		refs[k] = r
		return k
	}

	addEdge := func(m map[string]map[string]struct{}, from, to string) {
		set, ok := m[from]
		if !ok {
			set = make(map[string]struct{})
			m[from] = set
		}
		set[to] = struct{}{}
	}

	for _, intent := range intents {
		source := observe(nodeRef{name: intent.Name, namespace: intent.Namespace})

		for _, t := range intent.Targets {
			if t.Name == "" {
				continue
			}
			target := observe(resolveTarget(t, intent.Namespace))
			addEdge(upstream, source, target)
		}
	}

	// Downstream adjacency is the edge reversal of upstream.
	for source, targets := range upstream {
		for target := range targets {
			addEdge(downstream, target, source)
		}
	}

	graph := &Graph{Nodes: make(map[string]*Node, len(refs))}
	namespaces := make(map[string]struct{})

	for key, ref := range refs {
		node := &Node{
			Key:         key,
			Name:        ref.name,
			Namespace:   ref.namespace,
			Upstreams:   sortedKeys(upstream[key]),
			Downstreams: sortedKeys(downstream[key]),
		}
		graph.Nodes[key] = node

		graph.Stats.UpstreamEdges += len(node.Upstreams)
		graph.Stats.DownstreamEdges += len(node.Downstreams)
		if ref.namespace != "" {
			namespaces[ref.namespace] = struct{}{}
		}
	}

	graph.Stats.Nodes = len(graph.Nodes)
	graph.Stats.Namespaces = len(namespaces)
	return graph
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
