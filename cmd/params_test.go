package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInputs_Pairs(t *testing.T) {
	inputs, err := buildInputs([]string{"name=world", "count=3", "enabled=true", "ratio=0.5", `quoted="3"`, "empty="}, "")
	require.NoError(t, err)

	assert.Equal(t, "world", inputs["name"])
	assert.Equal(t, 3, inputs["count"])
	assert.Equal(t, true, inputs["enabled"])
	assert.Equal(t, 0.5, inputs["ratio"])
	assert.Equal(t, "3", inputs["quoted"])
	assert.Equal(t, "", inputs["empty"])
}

func TestBuildInputs_ValueWithEquals(t *testing.T) {
	inputs, err := buildInputs([]string{"expr=a=b"}, "")
	require.NoError(t, err)
	assert.Equal(t, "a=b", inputs["expr"])
}

func TestBuildInputs_InvalidPair(t *testing.T) {
	_, err := buildInputs([]string{"novalue"}, "")
	assert.Error(t, err)

	_, err = buildInputs([]string{"=value"}, "")
	assert.Error(t, err)
}

func TestBuildInputs_FileAndOverrides(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: file\ntags:\n  - a\n  - b\nnested:\n  key: value\n"), 0o640))

	inputs, err := buildInputs([]string{"name=flag"}, file)
	require.NoError(t, err)

	assert.Equal(t, "flag", inputs["name"])
	assert.Equal(t, []interface{}{"a", "b"}, inputs["tags"])
	assert.Equal(t, map[string]interface{}{"key": "value"}, inputs["nested"])
}

func TestBuildInputs_MissingFile(t *testing.T) {
	_, err := buildInputs(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
