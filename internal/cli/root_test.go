package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pboyd/statushook"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "statushook version dev")
	assert.Contains(t, out, "Git commit: unknown")
}

func TestConfigCmd_Defaults(t *testing.T) {
	out, _, err := execute(t, "config")
	require.NoError(t, err)

	var cfg statushook.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, statushook.DefaultSentinelModule, cfg.SentinelModule)
	assert.Equal(t, uint64(statushook.DefaultFallbackSpan), cfg.FallbackSpan)
	assert.True(t, cfg.Verbose)
}

func TestConfigCmd_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statushook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sentinel_module: core\nfallback_span: 4096\n"), 0o600))
	t.Setenv(statushook.EnvLogLevel, "warn")

	out, _, err := execute(t, "config", "--config", path, "--quiet", "--log-level", "error")
	require.NoError(t, err)

	var cfg statushook.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "core", cfg.SentinelModule)
	assert.Equal(t, uint64(4096), cfg.FallbackSpan)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestConfigCmd_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statushook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fallback_span: [1"), 0o600))

	_, _, err := execute(t, "config", "-c", path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestRunCmd_BadFormat(t *testing.T) {
	_, _, err := execute(t, "run", "--format", "xml")
	assert.ErrorContains(t, err, "unsupported format: xml")
}
