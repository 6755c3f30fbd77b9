package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join("..", "infra", "loader", "testdata", "corridor.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "constraints")
	assert.Contains(t, out, "lifetime")
	assert.Contains(t, out, "incentive")
}

func TestValidateCommandMissingInstance(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestHistoryCommandEmpty(t *testing.T) {
	t.Setenv("V2GPLAN_HISTORY__TYPE", "jsonl")
	t.Setenv("V2GPLAN_HISTORY__CONF__PATH", filepath.Join(t.TempDir(), "runs.jsonl"))
	out, err := execute(t, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "INSTANCE")
}
