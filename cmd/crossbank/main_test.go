package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "transfer", "routes"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("stores"))
}

func TestTransferRequiresFlags(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"transfer", "--from", "alice"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestRoutesPrintsTable(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_URL", "")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"routes", "--stores", filepath.Join("testdata", "stores.toml")})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "ACCOUNT")
	assert.Contains(t, out.String(), "bob")
	assert.NotContains(t, out.String(), "alice")
}

func TestTransferPrintsOutcome(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_URL", "")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"transfer", "--stores", filepath.Join("testdata", "stores.toml"),
		"--from", "alice", "--to", "bob", "--amount", "250"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"status": "completed"`)

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"transfer", "--stores", filepath.Join("testdata", "stores.toml"),
		"--from", "alice", "--to", "bob", "--amount", "999999"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, out.String(), `"reason": "insufficient_funds"`)
}
