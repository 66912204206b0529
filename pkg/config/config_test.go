package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opsmux.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "hunter2")

	path := writeConfig(t, `
registry:
  endpoint: https://registry.internal/v1/metadata
  token: ${TEST_PG_PASSWORD}

logging:
  level: debug

connectors:
  - name: prod-pg
    system: postgres
    keys:
      - type: host
        value: db.internal
      - type: password
        value: ${TEST_PG_PASSWORD}
  - name: ops-chat
    system: chat
    proxy_bypass: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://registry.internal/v1/metadata", cfg.Registry.Endpoint)
	assert.Equal(t, "hunter2", cfg.Registry.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Encoding)

	require.Len(t, cfg.Connectors, 2)
	pg := cfg.FindConnector("prod-pg")
	require.NotNil(t, pg)

	password, ok := pg.Value("password")
	assert.True(t, ok)
	assert.Equal(t, "hunter2", password)

	chat := cfg.FindConnector("ops-chat")
	require.NotNil(t, chat)
	assert.True(t, chat.ProxyBypass)

	assert.Nil(t, cfg.FindConnector("missing"))
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, `
connectors:
  - name: prod-pg
    system: postgres
    keys:
      - type: password
        value: ${DEFINITELY_UNSET_VAR_42}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	password, ok := cfg.Connectors[0].Value("password")
	assert.True(t, ok)
	assert.Equal(t, "", password)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "connectors: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "duplicate connector names",
			content: `
connectors:
  - name: dup
    system: postgres
  - name: dup
    system: mysql
`,
			wantErr: "duplicate connector name",
		},
		{
			name: "missing connector name",
			content: `
connectors:
  - system: postgres
`,
			wantErr: "has no name",
		},
		{
			name: "missing system type",
			content: `
connectors:
  - name: orphan
`,
			wantErr: "has no system type",
		},
		{
			name: "duplicate key types within a connector",
			content: `
connectors:
  - name: prod-pg
    system: postgres
    keys:
      - type: host
        value: a
      - type: host
        value: b
`,
			wantErr: "duplicate key type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
