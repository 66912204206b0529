// Package config provides configuration loading for opsmux. One YAML
// file declares the configured connectors, the metadata registry
// endpoint, and logging settings; ${VAR} references are substituted
// from the environment so credentials stay out of the file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/opsmux/opsmux/pkg/connector"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document
type Config struct {
	// Registry is the central metadata registry publish target
	Registry RegistryConfig `yaml:"registry"`

	// Logging controls the structured logger
	Logging LoggingConfig `yaml:"logging"`

	// Connectors are the configured external-system credential bags
	Connectors []connector.Connector `yaml:"connectors"`
}

// RegistryConfig addresses the metadata registry publish endpoint
type RegistryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

// LoggingConfig controls logger behavior
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	Encoding    string `yaml:"encoding"`
}

// Load loads a configuration from a YAML file, substituting ${VAR}
// environment references first.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Encoding == "" {
		cfg.Logging.Encoding = "json"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants: connector names are unique
// and key types are unique within each connector.
func (c *Config) Validate() error {
	names := make(map[string]struct{}, len(c.Connectors))
	for i := range c.Connectors {
		conn := &c.Connectors[i]
		if conn.Name == "" {
			return fmt.Errorf("connector %d has no name", i)
		}
		if conn.System == "" {
			return fmt.Errorf("connector %s has no system type", conn.Name)
		}
		if _, dup := names[conn.Name]; dup {
			return fmt.Errorf("duplicate connector name %s", conn.Name)
		}
		names[conn.Name] = struct{}{}

		seen := make(map[connector.KeyType]struct{}, len(conn.Keys))
		for _, key := range conn.Keys {
			if _, dup := seen[key.Type]; dup {
				return fmt.Errorf("connector %s: duplicate key type %s", conn.Name, key.Type)
			}
			seen[key.Type] = struct{}{}
		}
	}
	return nil
}

// FindConnector returns the named connector, or nil
func (c *Config) FindConnector(name string) *connector.Connector {
	for i := range c.Connectors {
		if c.Connectors[i].Name == name {
			return &c.Connectors[i]
		}
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
