// Package connector defines the typed credential bag a caller supplies
// to address one configured external system.
package connector

// SystemType identifies an external system family (e.g. "postgres",
// "kafka", "loki").
type SystemType string

// KeyType identifies one credential entry inside a connector
// (e.g. "host", "api_token", "bot_token").
type KeyType string

// Key is a single typed credential entry
type Key struct {
	Type  KeyType `yaml:"type" json:"type"`
	Value string  `yaml:"value" json:"value"`
}

// Connector is a configured instance of credentials for one external
// system. Key types are unique within a connector; ordering is
// preserved from configuration.
type Connector struct {
	Name        string     `yaml:"name" json:"name"`
	System      SystemType `yaml:"system" json:"system"`
	Keys        []Key      `yaml:"keys" json:"keys"`
	ProxyBypass bool       `yaml:"proxy_bypass" json:"proxy_bypass"`
}

// KeySet is a set of key types. Required-key-set alternatives on an
// adapter are expressed as a list of KeySets, any one of which is
// sufficient.
type KeySet map[KeyType]struct{}

// NewKeySet builds a KeySet from key types
func NewKeySet(types ...KeyType) KeySet {
	s := make(KeySet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

// Contains reports whether the set holds the given key type
func (s KeySet) Contains(t KeyType) bool {
	_, ok := s[t]
	return ok
}

// SubsetOf reports whether every member of s is in other
func (s KeySet) SubsetOf(other KeySet) bool {
	for t := range s {
		if !other.Contains(t) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the connector carries no keys at all
func (c *Connector) IsEmpty() bool {
	return c == nil || len(c.Keys) == 0
}

// Value returns the value for a key type and whether it is present
func (c *Connector) Value(t KeyType) (string, bool) {
	if c == nil {
		return "", false
	}
	for _, k := range c.Keys {
		if k.Type == t {
			return k.Value, true
		}
	}
	return "", false
}

// PopulatedKeyTypes returns the set of key types carrying non-empty
// values. Keys configured with empty values do not count toward
// required-key-set checks.
func (c *Connector) PopulatedKeyTypes() KeySet {
	s := make(KeySet)
	if c == nil {
		return s
	}
	for _, k := range c.Keys {
		if k.Value != "" {
			s[k.Type] = struct{}{}
		}
	}
	return s
}
