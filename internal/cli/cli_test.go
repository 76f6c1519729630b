package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	dir     string
	logDir  string
	recycle string
}

// newTestEnv isolates config, identity and log locations under a temp dir
// and writes extra YAML as the explicit config layer.
func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:     dir,
		logDir:  filepath.Join(dir, "log"),
		recycle: filepath.Join(dir, "recycle"),
	}
	cfg := "audit:\n  log_dirs: [" + env.logDir + "]\n" +
		"recycle:\n  root: " + env.recycle + "\n" + extra
	cfgPath := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	t.Setenv("SAFERM_CONFIG", cfgPath)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	t.Setenv("SAFERM_DEBUG", "")
	t.Setenv("SAFERM_DRY_RUN", "")
	t.Setenv("SAFERM_RECYCLE", "")
	t.Setenv("SAFERM_RECYCLE_ROOT", "")
	t.Setenv("SAFERM_RM_PATH", "")
	t.Setenv("SUDO_USER", "")
	t.Setenv("LOGNAME", "tester")
	t.Setenv("USER", "tester")
	return env
}

func (e *testEnv) logText(t *testing.T) string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(e.logDir, "*", "*"))
	require.NoError(t, err)
	var b strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		b.Write(data)
	}
	return b.String()
}

func run(args ...string) (string, string, error) {
	root := NewRoot("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code()
	}
	return -1
}

func TestArgsFor(t *testing.T) {
	assert.Equal(t, []string{"rm", "-rf", "x"}, ArgsFor("/usr/local/bin/rm", []string{"-rf", "x"}))
	assert.Equal(t, []string{"rm", "recycle"}, ArgsFor("rm", []string{"recycle"}))
	assert.Equal(t, []string{"recycle", "list"}, ArgsFor("saferm", []string{"recycle", "list"}))
}

func TestRmRemovesAndAudits(t *testing.T) {
	env := newTestEnv(t, "")
	f := filepath.Join(env.dir, "notes.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	out, _, err := run("rm", "-v", f)
	require.NoError(t, err)
	assert.NoFileExists(t, f)
	assert.Contains(t, out, "removed '"+f+"'")

	log := env.logText(t)
	assert.Contains(t, log, `"message":"rm -v `+f+`"`)
	assert.Contains(t, log, `"message_level":"Info"`)
}

func TestRmBlocksProtected(t *testing.T) {
	env := newTestEnv(t, "")
	keep := filepath.Join(env.dir, "project", "keep")
	require.NoError(t, os.MkdirAll(keep, 0o755))
	cfg := "audit:\n  log_dirs: [" + env.logDir + "]\npolicy:\n  protected: [" + keep + "]\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "config.yml"), []byte(cfg), 0o644))

	_, errOut, err := run("rm", "-rf", filepath.Join(env.dir, "project"))
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, errOut, "refusing to remove")
	assert.DirExists(t, keep)
	assert.Contains(t, env.logText(t), `"message_level":"Warning"`)
}

func TestRmMissingOperand(t *testing.T) {
	env := newTestEnv(t, "")

	_, errOut, err := run("rm")
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, errOut, "missing operand")
	assert.Equal(t, 1, strings.Count(env.logText(t), "\n"), "only the invocation line is logged")

	_, errOut, err = run("rm", "-f")
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, errOut, "missing operand")
}

func TestRmWithInvalidConfigValueStillRemovesAndAudits(t *testing.T) {
	env := newTestEnv(t, "  ttl: thirty-days\n")
	f := filepath.Join(env.dir, "notes.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	_, _, err := run("rm", f)
	require.NoError(t, err)
	assert.NoFileExists(t, f)
	assert.Contains(t, env.logText(t), `"message":"rm `+f+`"`)

	out, _, err := run("config", "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "ignored recycle.ttl")

	_, _, err = run("config", "validate")
	assert.ErrorContains(t, err, "recycle.ttl")
}

func TestRmHelpAndVersion(t *testing.T) {
	newTestEnv(t, "")

	out, _, err := run("rm", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage: rm")

	out, _, err = run("rm", "--version")
	require.NoError(t, err)
	assert.Equal(t, "saferm test\n", out)
}

func TestRmDryRun(t *testing.T) {
	env := newTestEnv(t, "")
	t.Setenv("SAFERM_DRY_RUN", "true")
	f := filepath.Join(env.dir, "keep.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	_, _, err := run("rm", f)
	require.NoError(t, err)
	assert.FileExists(t, f)
	assert.Contains(t, env.logText(t), "(virtual operation)")
}

func TestRmRecycleThenRestore(t *testing.T) {
	env := newTestEnv(t, "")
	data := filepath.Join(env.dir, "data")
	f := filepath.Join(data, "report.csv")
	require.NoError(t, os.MkdirAll(data, 0o755))
	require.NoError(t, os.WriteFile(f, []byte("a,b\n"), 0o644))
	cfg := "audit:\n  log_dirs: [" + env.logDir + "]\n" +
		"recycle:\n  enabled: true\n  root: " + env.recycle + "\n" +
		"policy:\n  recycle: [" + data + "]\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "config.yml"), []byte(cfg), 0o644))

	_, _, err := run("rm", f)
	require.NoError(t, err)
	assert.NoFileExists(t, f)
	assert.FileExists(t, filepath.Join(env.recycle, "tester", "report.csv"))

	out, _, err := run("recycle", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "report.csv")
	assert.Contains(t, out, f)

	out, _, err = run("recycle", "restore", "report.csv")
	require.NoError(t, err)
	assert.Contains(t, out, "restored to "+f)
	b, err := os.ReadFile(f)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(b))
}

func TestPolicyCheck(t *testing.T) {
	env := newTestEnv(t, "")
	hp := filepath.Join(env.dir, "honeypot")
	require.NoError(t, os.Mkdir(hp, 0o755))
	cfg := "audit:\n  log_dirs: [" + env.logDir + "]\npolicy:\n  honeypot: [honeypot]\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "config.yml"), []byte(cfg), 0o644))

	out, _, err := run("policy", "check", "/etc/passwd", hp)
	require.NoError(t, err)
	assert.Contains(t, out, "/etc/passwd\tblock")
	assert.Contains(t, out, hp+"\tdelete+alert")
	assert.DirExists(t, hp)
}

func TestConfigShow(t *testing.T) {
	env := newTestEnv(t, "rm_path: /bin/rm\n")

	out, _, err := run("config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "rm_path: /bin/rm")
	assert.Contains(t, out, env.recycle)

	out, _, err = run("config", "sources")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(env.dir, "config.yml")+"\tloaded")
}

func TestAuditQuery(t *testing.T) {
	env := newTestEnv(t, "")
	f := filepath.Join(env.dir, "gone.txt")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, _, err := run("rm", f)
	require.NoError(t, err)

	user := firstDir(t, env.logDir)
	out, _, err := run("audit", "query", "--user", user, "--grep", "gone.txt", "--asc")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "rm "+f)
	assert.Contains(t, lines[1], "removed '"+f+"'")
}

func firstDir(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	return entries[0].Name()
}
