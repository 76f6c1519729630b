package policy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Kind names one of the three policy sets.
type Kind int

const (
	Protected Kind = iota
	Honeypot
	Recycle
)

func (k Kind) String() string {
	switch k {
	case Protected:
		return "protected"
	case Honeypot:
		return "honeypot"
	case Recycle:
		return "recycle"
	default:
		return "unknown"
	}
}

// Set is an immutable, sorted, duplicate-free list of resolved entries.
type Set struct {
	kind    Kind
	entries []string

	// honeypot only
	names     []nameRule
	pathGlobs []pathGlob
}

type nameRule struct {
	raw string
	g   glob.Glob // nil for literal names
}

type pathGlob struct {
	raw string
	g   glob.Glob
}

// NewSet builds a set from already-resolved entries. Entries are cleaned,
// deduplicated and sorted; nothing is checked against the filesystem.
func NewSet(kind Kind, entries []string) *Set {
	s := &Set{kind: kind}
	for _, e := range uniqueSorted(entries) {
		if kind == Honeypot {
			s.addHoneypot(e)
			continue
		}
		s.entries = append(s.entries, e)
	}
	return s
}

func (s *Set) addHoneypot(e string) {
	s.entries = append(s.entries, e)
	meta := hasGlobMeta(e)
	if !strings.Contains(e, "/") {
		r := nameRule{raw: e}
		if meta {
			if g, err := glob.Compile(e); err == nil {
				r.g = g
			}
		}
		s.names = append(s.names, r)
		return
	}
	if meta {
		if g, err := glob.Compile(e, '/'); err == nil {
			s.pathGlobs = append(s.pathGlobs, pathGlob{raw: e, g: g})
		}
	}
}

// Kind reports which policy the set implements.
func (s *Set) Kind() Kind { return s.kind }

// Entries returns a copy of the resolved entries.
func (s *Set) Entries() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.entries...)
}

// Len is the number of entries.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Match relates abs to the set's absolute entries. Exact beats Contains
// beats Within; ties go to the first entry in sorted order.
func (s *Set) Match(abs string) Match {
	if s == nil {
		return Match{}
	}
	best := Match{}
	for _, e := range s.entries {
		if !filepath.IsAbs(e) || (s.kind == Honeypot && hasGlobMeta(e)) {
			continue
		}
		r := Relate(abs, e)
		if r == NoRelation {
			continue
		}
		if best.Relation == NoRelation || rank(r) < rank(best.Relation) {
			best = Match{Relation: r, Candidate: e}
		}
		if r == Exact {
			break
		}
	}
	return best
}

func rank(r Relation) int {
	switch r {
	case Exact:
		return 0
	case Contains:
		return 1
	default:
		return 2
	}
}

// MatchHoneypot reports whether deleting abs touches a honeypot: the
// target's basename matches a name pattern, an immediate child of a
// directory target matches one, or the target relates to an absolute entry.
// Only immediate children are inspected.
func (s *Set) MatchHoneypot(abs string) Match {
	if s == nil || len(s.entries) == 0 {
		return Match{}
	}
	base := filepath.Base(abs)
	for _, r := range s.names {
		if r.matches(base) {
			return Match{Relation: Exact, Candidate: r.raw}
		}
	}
	for _, pg := range s.pathGlobs {
		if pg.g.Match(abs) {
			return Match{Relation: Exact, Candidate: pg.raw}
		}
	}
	if m := s.Match(abs); m.Matched() {
		return m
	}

	children, err := os.ReadDir(abs)
	if err != nil {
		return Match{}
	}
	for _, c := range children {
		for _, r := range s.names {
			if r.matches(c.Name()) {
				return Match{Relation: Contains, Candidate: r.raw}
			}
		}
		child := filepath.Join(abs, c.Name())
		for _, pg := range s.pathGlobs {
			if pg.g.Match(child) {
				return Match{Relation: Contains, Candidate: pg.raw}
			}
		}
	}
	return Match{}
}

func (r nameRule) matches(name string) bool {
	if r.g != nil {
		return r.g.Match(name)
	}
	return r.raw == name
}

func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[")
}
