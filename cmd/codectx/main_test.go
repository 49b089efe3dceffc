package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	cmd := rootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "http", "index", "retrieve", "status", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "codectx version dev")
	assert.Contains(t, out.String(), "sqlite driver")
}

func TestConfigCommandRedactsKey(t *testing.T) {
	t.Setenv("CODECTX_EMBEDDING_API_KEY", "sk-secret")
	t.Setenv("CODECTX_DB_PATH", filepath.Join(t.TempDir(), "index.db"))

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--env", filepath.Join(t.TempDir(), "missing.env")})

	require.NoError(t, cmd.Execute())
	assert.NotContains(t, out.String(), "sk-secret")
	assert.Contains(t, out.String(), "********")
}

func TestIndexAndRetrieveCommands(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "greet.go"),
		[]byte("package greet\n\nfunc Hello() string {\n\treturn \"hello\"\n}\n"), 0o644))

	t.Setenv("CODECTX_WORKSPACES", root)
	t.Setenv("CODECTX_EMBEDDING_PROVIDER", "local")
	db := filepath.Join(t.TempDir(), "index.db")
	envFile := filepath.Join(t.TempDir(), "missing.env")

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"index", root, "--db", db, "--env", envFile})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"files_indexed": 1`)

	cmd = rootCmd()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"retrieve", "Hello", "--db", db, "--env", envFile})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "greet.go (1-5)")
	assert.Contains(t, out.String(), "Instructions")
}

func TestPathArg(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	got, err := pathArg(nil)
	require.NoError(t, err)
	assert.Equal(t, wd, got)

	got, err = pathArg([]string{"sub"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "sub"), got)
}
