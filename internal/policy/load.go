package policy

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sources are the raw inputs for one set: built-in patterns plus pattern
// files read one pattern per line.
type Sources struct {
	Builtin []string
	Files   []string
}

// Store holds the three policy sets for one invocation.
type Store struct {
	Protected *Set
	Honeypot  *Set
	Recycle   *Set
}

// Set returns the set of the given kind.
func (s *Store) Set(k Kind) *Set {
	switch k {
	case Protected:
		return s.Protected
	case Honeypot:
		return s.Honeypot
	default:
		return s.Recycle
	}
}

// LoadStore loads all three sets. Per-file read failures come back as
// warnings; they never prevent the store from being built.
func LoadStore(protected, honeypot, recycle Sources, home string) (*Store, []error) {
	var warns []error
	load := func(k Kind, src Sources) *Set {
		set, w := Load(k, src, home)
		warns = append(warns, w...)
		return set
	}
	st := &Store{
		Protected: load(Protected, protected),
		Honeypot:  load(Honeypot, honeypot),
		Recycle:   load(Recycle, recycle),
	}
	return st, warns
}

// Load merges built-in patterns with pattern files and resolves them: "~"
// is expanded with home, globs are expanded to their current matches, and
// the result is deduplicated and sorted. Protected and Recycle entries that
// do not exist are dropped; Honeypot entries are kept as written since they
// describe something to watch for.
func Load(kind Kind, src Sources, home string) (*Set, []error) {
	var warns []error
	patterns := append([]string(nil), src.Builtin...)
	for _, f := range src.Files {
		lines, err := ReadPatternFile(f)
		if err != nil {
			if !os.IsNotExist(err) {
				warns = append(warns, fmt.Errorf("%s patterns: %w", kind, err))
			}
			continue
		}
		patterns = append(patterns, lines...)
	}

	var resolved []string
	for _, p := range patterns {
		out, err := resolvePattern(kind, p, home)
		if err != nil {
			warns = append(warns, err)
			continue
		}
		resolved = append(resolved, out...)
	}
	return NewSet(kind, resolved), warns
}

// ReadPatternFile returns the patterns of one file: lines are trimmed, blank
// lines and lines starting with "#" are skipped, and a " #" sequence starts
// a trailing comment.
func ReadPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func resolvePattern(kind Kind, p, home string) ([]string, error) {
	p = expandTilde(p, home)
	if strings.HasPrefix(p, "~") {
		return nil, fmt.Errorf("%s pattern %q: home directory unknown", kind, p)
	}

	if kind == Honeypot {
		// Name fragments stay as written; absolute entries are cleaned
		// but never checked for existence.
		if !strings.Contains(p, "/") {
			return []string{p}, nil
		}
		if !filepath.IsAbs(p) {
			return nil, fmt.Errorf("%s pattern %q: must be absolute or a plain name", kind, p)
		}
		return []string{filepath.Clean(p)}, nil
	}

	if !filepath.IsAbs(p) {
		return nil, fmt.Errorf("%s pattern %q: must be absolute", kind, p)
	}
	if hasGlobMeta(p) {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("%s pattern %q: %w", kind, p, err)
		}
		return matches, nil
	}
	p = filepath.Clean(p)
	if _, err := os.Lstat(p); err != nil {
		return nil, nil
	}
	return []string{p}, nil
}

func expandTilde(p, home string) string {
	if home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.Contains(s, "/") {
			s = filepath.Clean(s)
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
