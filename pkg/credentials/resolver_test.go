package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/errors"
)

func TestResolve(t *testing.T) {
	ResetMappings()
	RegisterMapping("dbsys", map[connector.KeyType]string{
		"host":     "host",
		"username": "user",
		"password": "password",
	})

	t.Run("maps populated keys", func(t *testing.T) {
		conn := &connector.Connector{
			Name:   "prod",
			System: "dbsys",
			Keys: []connector.Key{
				{Type: "host", Value: "db.internal"},
				{Type: "username", Value: "svc"},
				{Type: "password", Value: "hunter2"},
			},
		}

		params, err := Resolve(conn)
		require.NoError(t, err)
		assert.Equal(t, "db.internal", params.Get("host"))
		assert.Equal(t, "svc", params.Get("user"))
		assert.Equal(t, "hunter2", params.Get("password"))
	})

	t.Run("skips empty values", func(t *testing.T) {
		conn := &connector.Connector{
			Name:   "partial",
			System: "dbsys",
			Keys: []connector.Key{
				{Type: "host", Value: "db.internal"},
				{Type: "password", Value: ""},
			},
		}

		params, err := Resolve(conn)
		require.NoError(t, err)
		assert.Equal(t, "db.internal", params.Get("host"))
		assert.Equal(t, "", params.Get("password"))
	})

	t.Run("unmapped populated key is a config error", func(t *testing.T) {
		conn := &connector.Connector{
			Name:   "weird",
			System: "dbsys",
			Keys: []connector.Key{
				{Type: "telepathy", Value: "on"},
			},
		}

		_, err := Resolve(conn)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	})

	t.Run("unknown system", func(t *testing.T) {
		conn := &connector.Connector{Name: "x", System: "unregistered"}
		_, err := Resolve(conn)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	})

	t.Run("nil connector", func(t *testing.T) {
		_, err := Resolve(nil)
		require.Error(t, err)
	})
}

func TestRegisterMapping_PanicsOnDuplicate(t *testing.T) {
	ResetMappings()
	RegisterMapping("once", map[connector.KeyType]string{"k": "k"})

	assert.Panics(t, func() {
		RegisterMapping("once", map[connector.KeyType]string{"k": "k"})
	})
}

func TestParams_Require(t *testing.T) {
	p := Params{"host": "db.internal", "empty": ""}

	v, err := p.Require("host")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", v)

	_, err = p.Require("empty")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = p.Require("absent")
	require.Error(t, err)
}
