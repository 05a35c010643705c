package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and XDG_CONFIG_HOME at temp directories and returns
// an empty project directory.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DOCRAG_LOG_LEVEL", "")
	t.Setenv("DOCRAG_INDEX_BACKEND", "")
	t.Setenv("DOCRAG_INDEX_DIR", "")
	return t.TempDir()
}

// run executes the root command with args against project dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--config-dir", dir}, args...))
	err := root.Execute()
	_ = stopLogging(nil, nil)
	return buf.String(), err
}

func writeEmail(t *testing.T, path, subject, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	msg := fmt.Sprintf("From: alice@example.com\r\nSubject: %s\r\nDate: Mon, 02 Mar 2026 10:00:00 +0000\r\n\r\n%s\r\n", subject, body)
	require.NoError(t, os.WriteFile(path, []byte(msg), 0o644))
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	// Given: the root command
	root := NewRootCmd()

	// Then: every subcommand is reachable
	for _, name := range []string{"ingest", "search", "ask", "stats", "reset", "serve", "config", "logs", "version"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	root := NewRootCmd()
	assert.NotNil(t, root.PersistentFlags().Lookup("config-dir"))
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestRootCmd_WritesLogFile(t *testing.T) {
	// Given: an isolated home
	dir := isolate(t)

	// When: running a command with --debug
	_, err := run(t, dir, "--debug", "stats")
	require.NoError(t, err)

	// Then: the log file exists under ~/.docrag/logs
	home := os.Getenv("HOME")
	assert.FileExists(t, filepath.Join(home, ".docrag", "logs", "docrag.log"))
}

func TestRootCmd_InvalidProjectConfig(t *testing.T) {
	// Given: a project config with an invalid backend
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docrag.yaml"), []byte("index:\n  backend: redis\n"), 0o644))

	// When
	_, err := run(t, dir, "stats")

	// Then: the error names the configuration
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration")
}

func TestServeCmd_Flags(t *testing.T) {
	cmd := newServeCmd()
	flag := cmd.Flags().Lookup("no-answer")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
