package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func TestLoad_DefaultsWhenNoFiles(t *testing.T) {
	dir := t.TempDir()
	cfg, sources, err := Load(Options{Home: "/home/alice", SystemDir: filepath.Join(dir, "sys"), UserDir: filepath.Join(dir, "user"), Getenv: noEnv})
	require.NoError(t, err)
	assert.Empty(t, sources)
	assert.False(t, cfg.Recycle.Enabled)
	assert.Equal(t, DefaultRecycleRoot, cfg.Recycle.Root)
	assert.Equal(t, []string{DefaultLogDir, "/home/alice/.local/state/saferm/log"}, cfg.Audit.LogDirs)
	assert.Equal(t, []string{filepath.Join(dir, "sys", "protected.list"), filepath.Join(dir, "user", "protected.list")}, cfg.Policy.ProtectedFiles)
	assert.Empty(t, cfg.RmPath)
}

func TestLoad_UserLayerOverridesSystemLayer(t *testing.T) {
	dir := t.TempDir()
	sys := filepath.Join(dir, "sys")
	usr := filepath.Join(dir, "user")
	require.NoError(t, os.MkdirAll(sys, 0o755))
	require.NoError(t, os.MkdirAll(usr, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sys, "config.yml"), []byte(`
recycle:
  enabled: true
  root: /srv/recycle
audit:
  ignore_users: [backup]
alert:
  command: ["logger", "-t", "saferm", "{{.Title}}: {{.Message}}"]
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(usr, "config.toml"), []byte(`
[recycle]
root = "~/recycle"

[audit]
log_dirs = ["~/logs"]
`), 0o644))

	cfg, sources, err := Load(Options{Home: "/home/alice", SystemDir: sys, UserDir: usr, Getenv: noEnv})
	require.NoError(t, err)
	require.Len(t, sources, 2)
	for _, s := range sources {
		assert.True(t, s.Loaded, s.Path)
	}
	assert.True(t, cfg.Recycle.Enabled, "system layer value survives user layer")
	assert.Equal(t, "/home/alice/recycle", cfg.Recycle.Root)
	assert.Equal(t, []string{"/home/alice/logs"}, cfg.Audit.LogDirs)
	assert.True(t, cfg.IgnoresAuditFor("backup"))
	assert.False(t, cfg.IgnoresAlertFor("backup"))
	assert.Len(t, cfg.Alert.Command, 4)
}

func TestLoad_InvalidLayerIsSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("recycle: [unterminated"), 0o644))
	cfg, sources, err := Load(Options{SystemDir: dir, UserDir: filepath.Join(dir, "none"), Getenv: noEnv})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.False(t, sources[0].Loaded)
	assert.Error(t, sources[0].Err)
	assert.Equal(t, DefaultRecycleRoot, cfg.Recycle.Root)
}

func TestLoad_InvalidValueKeepsLowerLayer(t *testing.T) {
	dir := t.TempDir()
	sys := filepath.Join(dir, "sys")
	usr := filepath.Join(dir, "user")
	require.NoError(t, os.MkdirAll(sys, 0o755))
	require.NoError(t, os.MkdirAll(usr, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sys, "config.yml"), []byte("recycle:\n  ttl: 14d\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(usr, "config.yml"), []byte(`
recycle:
  enabled: true
  ttl: thirty-days
  quota: lots
audit:
  log_dirs: [/srv/log]
`), 0o644))

	cfg, sources, err := Load(Options{SystemDir: sys, UserDir: usr, Getenv: noEnv})
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Empty(t, sources[0].Rejected)
	assert.True(t, sources[1].Loaded)
	assert.NoError(t, sources[1].Err)
	require.Len(t, sources[1].Rejected, 2)
	assert.ErrorContains(t, sources[1].Rejected[0], "recycle.ttl")
	assert.ErrorContains(t, sources[1].Rejected[1], "recycle.quota")

	assert.Equal(t, "14d", cfg.Recycle.TTL, "the lower layer's value survives")
	assert.Equal(t, "5GB", cfg.Recycle.Quota)
	assert.True(t, cfg.Recycle.Enabled, "valid values of the same layer still apply")
	assert.Equal(t, []string{"/srv/log"}, cfg.Audit.LogDirs)
}

func TestLoad_InvalidEnvOverrideIsRejected(t *testing.T) {
	dir := t.TempDir()
	env := map[string]string{"SAFERM_RECYCLE_ROOT": "relative/bin", "SAFERM_RM_PATH": "rm"}
	cfg, sources, err := Load(Options{SystemDir: dir, UserDir: dir, Getenv: func(k string) string { return env[k] }})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, EnvSource, sources[0].Path)
	assert.Len(t, sources[0].Rejected, 2)
	assert.Equal(t, DefaultRecycleRoot, cfg.Recycle.Root)
	assert.Empty(t, cfg.RmPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"SAFERM_RECYCLE":      "true",
		"SAFERM_RECYCLE_ROOT": "/data/bin",
		"SAFERM_RM_PATH":      "/bin/rm",
		"SAFERM_DRY_RUN":      "1",
	}
	dir := t.TempDir()
	cfg, _, err := Load(Options{SystemDir: dir, UserDir: dir, Getenv: func(k string) string { return env[k] }})
	require.NoError(t, err)
	assert.True(t, cfg.Recycle.Enabled)
	assert.Equal(t, "/data/bin", cfg.Recycle.Root)
	assert.Equal(t, "/bin/rm", cfg.RmPath)
	assert.True(t, cfg.DryRun)
}

func TestLoad_ExplicitFileFromEnv(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("dry_run: true\n"), 0o644))
	cfg, sources, err := Load(Options{SystemDir: filepath.Join(dir, "a"), UserDir: filepath.Join(dir, "b"), Getenv: func(k string) string {
		if k == "SAFERM_CONFIG" {
			return explicit
		}
		return ""
	}})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.True(t, cfg.DryRun)
}

func TestLoadFromBytes_Validation(t *testing.T) {
	_, err := LoadFromBytes([]byte("recycle:\n  enabled: true\n  root: relative/dir\n"), "c.yml", "")
	require.Error(t, err)

	_, err = LoadFromBytes([]byte("rm_path: rm\n"), "c.yml", "")
	require.Error(t, err)

	_, err = LoadFromBytes([]byte("recycle:\n  quota: lots\n"), "c.yml", "")
	require.Error(t, err)

	cfg, err := LoadFromBytes([]byte("recycle:\n  enabled: true\n  root: ~/rb\n"), "c.yml", "/home/bob")
	require.NoError(t, err)
	assert.Equal(t, "/home/bob/rb", cfg.Recycle.Root)
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"512":    512,
		"10B":    10,
		"1KB":    1000,
		"1KiB":   1024,
		"5GB":    5 * 1000 * 1000 * 1000,
		"2MiB":   2 << 20,
		"1_000":  1000,
		" 3mb  ": 3 * 1000 * 1000,
	}
	for in, want := range cases {
		got, err := ParseByteSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "MB", "-1", "x1"} {
		_, err := ParseByteSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)
	d, err = ParseDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
	_, err = ParseDuration("xd")
	assert.Error(t, err)
}
