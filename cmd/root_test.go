package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"subflow/internal/api"
)

func TestSetVersion(t *testing.T) {
	original := GetVersion()
	defer SetVersion(original)

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "subflow", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)

	for _, flag := range []string{"config-path", "debug", "quiet"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "subflow version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})

	assert.NoError(t, testCmd.Execute())
	assert.Equal(t, "subflow version 1.0.0\n", buf.String())
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}
	for _, expected := range []string{"version", "run", "inspect", "validate"} {
		assert.True(t, found[expected], "missing subcommand %s", expected)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitCodeSuccess},
		{"generic", errors.New("boom"), ExitCodeError},
		{"resolution", api.NewResolutionError("x", "bad", nil), ExitCodeResolution},
		{"load", api.NewLoadError("file:///x", errors.New("missing")), ExitCodeLoad},
		{"invalid input", fmt.Errorf("wrapped: %w", api.NewInvalidInputError("name", "required")), ExitCodeInvalidInput},
		{"execution", &api.ExecutionFailure{Location: "file:///x", State: api.StateIdle}, ExitCodeExecution},
		{"concurrency", &api.ConcurrencyError{Location: "file:///x", Cause: context.Canceled}, ExitCodeCanceled},
		{"canceled", context.Canceled, ExitCodeCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}
