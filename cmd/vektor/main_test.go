package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/vektor/internal/server"
)

func TestParseVector(t *testing.T) {
	vec, err := parseVector(" 0.5, -1 ,2 ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 2}, vec)

	vec, err = parseVector("[1, 0, 0]")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)

	for _, bad := range []string{"", "1,x,3", "[1, \"a\"]", "1,,2"} {
		_, err := parseVector(bad)
		assert.Error(t, err, bad)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vektor.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("dimension: 3\nm: 4\nm0: 8\nlevels: 3\nlog_level: error\n"), 0o644))
	base := []string{"--config", cfgPath, "--data-dir", filepath.Join(dir, "data"), "--env-file", ""}

	out, err := runCLI(t, append(base, "insert", "--id", "a", "--vector", "1,0,0", "--metadata", `{"n":1}`)...)
	require.NoError(t, err)
	assert.Contains(t, out, "inserted a")

	_, err = runCLI(t, append(base, "insert", "--id", "b", "--vector", "[0,1,0]", "--metadata", "")...)
	require.NoError(t, err)

	_, err = runCLI(t, append(base, "insert", "--id", "a", "--vector", "0,0,1", "--metadata", "")...)
	assert.Error(t, err)

	out, err = runCLI(t, append(base, "search", "--vector", "1,0,0", "--k", "1", "--include-metadata")...)
	require.NoError(t, err)
	var resp server.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a", resp.Results[0].ID)
	assert.Equal(t, map[string]any{"n": 1.0}, resp.Results[0].Metadata)

	out, err = runCLI(t, append(base, "delete", "--id", "a")...)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted a")

	_, err = runCLI(t, append(base, "delete", "--id", "a")...)
	assert.Error(t, err)

	out, err = runCLI(t, append(base, "optimize")...)
	require.NoError(t, err)
	assert.Contains(t, out, "optimization complete")

	out, err = runCLI(t, append(base, "stats")...)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 records)")
	assert.Contains(t, out, "dim=3 M=4 M0=8")
}
