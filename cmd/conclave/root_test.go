package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Conclave dev")
	assert.Contains(t, out, "Git Commit: unknown")
}

func TestPersonasCommand_DefaultRoster(t *testing.T) {
	out, err := execute(t, "personas")
	require.NoError(t, err)
	for _, name := range []string{"High Society", "The Technician", "Art Boy", "Programming Nerd"} {
		assert.Contains(t, out, name)
	}
}

func TestPersonasCommand_FromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "personas.yaml"), []byte(`
personas:
  - name: Historian
    domain: history
    tuning:
      - Cite primary sources
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conclave.yaml"), []byte("personas_file: personas.yaml\n"), 0o600))

	out, err := execute(t, "personas", "--config", filepath.Join(dir, "conclave.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Historian (history)\n  * Cite primary sources\n", out)
}

func TestAskCommand_RequiresQuestion(t *testing.T) {
	_, err := execute(t, "ask")
	require.Error(t, err)
}

func TestChatCommand_MissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("CONCLAVE_LLM_API_KEY", "")

	out, err := execute(t, "chat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING_CREDENTIAL")
	assert.NotContains(t, out, "Enter a question")
}
