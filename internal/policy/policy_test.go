package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelate(t *testing.T) {
	cases := []struct {
		target, candidate string
		want              Relation
	}{
		{"/etc", "/etc", Exact},
		{"/etc/", "/etc", Exact},
		{"/", "/etc", Contains},
		{"/home", "/home/alice/.ssh", Contains},
		{"/etc/passwd", "/etc", Within},
		{"/etcetera", "/etc", NoRelation},
		{"/etc", "/etcetera", NoRelation},
		{"/tmp/a.b", "/tmp/a*b", NoRelation},
		{"/tmp/x/../y", "/tmp/y", Exact},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Relate(c.target, c.candidate), "%s vs %s", c.target, c.candidate)
	}
}

func TestIsProtected_ExactBeatsContains(t *testing.T) {
	set := NewSet(Protected, []string{"/srv/data/keep", "/srv/data"})
	m := IsProtected("/srv/data", set)
	assert.Equal(t, Exact, m.Relation)
	assert.Equal(t, "/srv/data", m.Candidate)
	assert.Equal(t, "path is itself protected", m.Describe())

	m = IsProtected("/srv", set)
	assert.Equal(t, Contains, m.Relation)
	assert.Contains(t, m.Describe(), "beneath")

	m = IsProtected("/srv/other", set)
	assert.False(t, m.Matched())
}

func TestIsProtected_EtcPasswdBlockedByEtc(t *testing.T) {
	set := NewSet(Protected, []string{"/etc"})
	m := IsProtected("/etc/passwd", set)
	require.True(t, m.Matched())
	assert.Equal(t, Within, m.Relation)
}

func TestInsideOrEqual(t *testing.T) {
	set := NewSet(Recycle, []string{"/home/alice/.ssh"})
	ok, c := InsideOrEqual("/home/alice/.ssh/id_rsa", set)
	assert.True(t, ok)
	assert.Equal(t, "/home/alice/.ssh", c)
	ok, _ = InsideOrEqual("/home/alice/notes", set)
	assert.False(t, ok)
}

func TestNewSet_DedupesAndSorts(t *testing.T) {
	set := NewSet(Protected, []string{"/b", "/a/", "/b", "/a"})
	assert.Equal(t, []string{"/a", "/b"}, set.Entries())
	assert.Equal(t, 2, set.Len())
}

func TestReadPatternFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "protected.list")
	require.NoError(t, os.WriteFile(f, []byte("# header\n\n  /srv/a  \n/srv/b # trailing\n#/srv/c\n"), 0o644))
	lines, err := ReadPatternFile(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/a", "/srv/b"}, lines)
}

func TestLoad_ProtectedDropsMissingAndExpandsGlobs(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"keep", "logs/a", "logs/b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
	}
	list := filepath.Join(dir, "protected.list")
	require.NoError(t, os.WriteFile(list, []byte(filepath.Join(dir, "logs", "*")+"\n"+filepath.Join(dir, "keep")+"\n"), 0o644))

	set, warns := Load(Protected, Sources{
		Builtin: []string{filepath.Join(dir, "keep"), filepath.Join(dir, "missing")},
		Files:   []string{list, filepath.Join(dir, "absent.list")},
	}, "")
	assert.Empty(t, warns, "absent pattern files are not warnings")
	assert.Equal(t, []string{
		filepath.Join(dir, "keep"),
		filepath.Join(dir, "logs", "a"),
		filepath.Join(dir, "logs", "b"),
	}, set.Entries())
}

func TestLoad_TildeExpansion(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ssh"), 0o700))
	set, warns := Load(Recycle, Sources{Builtin: []string{"~/.ssh", "~/.gnupg"}}, home)
	assert.Empty(t, warns)
	assert.Equal(t, []string{filepath.Join(home, ".ssh")}, set.Entries())

	_, warns = Load(Recycle, Sources{Builtin: []string{"~/.ssh"}}, "")
	assert.Len(t, warns, 1)
}

func TestLoad_UnreadableFileIsWarning(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be scanned as a pattern file.
	set, warns := Load(Protected, Sources{Builtin: []string{dir}, Files: []string{dir}}, "")
	assert.Len(t, warns, 1)
	assert.Equal(t, []string{dir}, set.Entries())
}

func TestLoad_HoneypotKeepsAbsentEntries(t *testing.T) {
	set, warns := Load(Honeypot, Sources{Builtin: []string{"honeypot", "/nonexistent/trap", "*.bait", "relative/x"}}, "")
	assert.Len(t, warns, 1)
	assert.Equal(t, []string{"*.bait", "/nonexistent/trap", "honeypot"}, set.Entries())
}

func TestMatchHoneypot(t *testing.T) {
	dir := t.TempDir()
	pot := filepath.Join(dir, "honeypot")
	require.NoError(t, os.MkdirAll(pot, 0o755))
	parent := filepath.Join(dir, "parent")
	require.NoError(t, os.MkdirAll(parent, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secrets.bait"), nil, 0o644))
	deep := filepath.Join(dir, "deep", "nested")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(deep, "x.bait"), nil, 0o644))

	set := NewSet(Honeypot, []string{"honeypot", "*.bait", filepath.Join(dir, "trap", "*")})

	m := set.MatchHoneypot(pot)
	assert.Equal(t, Exact, m.Relation)
	assert.Equal(t, "honeypot", m.Candidate)

	m = set.MatchHoneypot(parent)
	assert.Equal(t, Contains, m.Relation)
	assert.Equal(t, "*.bait", m.Candidate)

	// Only immediate children are inspected.
	assert.False(t, set.MatchHoneypot(filepath.Join(dir, "deep")).Matched())

	m = set.MatchHoneypot(filepath.Join(dir, "trap", "anything"))
	assert.True(t, m.Matched())

	assert.False(t, set.MatchHoneypot(filepath.Join(dir, "plain")).Matched())
}

func TestMatchHoneypot_AbsoluteEntry(t *testing.T) {
	set := NewSet(Honeypot, []string{"/srv/canary/token"})
	assert.Equal(t, Exact, set.MatchHoneypot("/srv/canary/token").Relation)
	assert.Equal(t, Contains, set.MatchHoneypot("/srv").Relation)
}

func TestLoadStore(t *testing.T) {
	dir := t.TempDir()
	st, warns := LoadStore(
		Sources{Builtin: []string{dir}},
		Sources{Builtin: []string{"honeypot"}},
		Sources{Builtin: []string{filepath.Join(dir, "missing")}},
		"",
	)
	assert.Empty(t, warns)
	assert.Equal(t, 1, st.Set(Protected).Len())
	assert.Equal(t, 1, st.Set(Honeypot).Len())
	assert.Equal(t, 0, st.Set(Recycle).Len())
}
