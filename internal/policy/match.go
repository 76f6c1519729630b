package policy

import (
	"path/filepath"
	"strings"
)

// Relation describes how a deletion target relates to a policy entry.
type Relation int

const (
	NoRelation Relation = iota
	// Exact: the target is the entry.
	Exact
	// Contains: the entry lies beneath the target, so deleting the target
	// destroys it.
	Contains
	// Within: the target lies beneath the entry.
	Within
)

func (r Relation) String() string {
	switch r {
	case Exact:
		return "exact"
	case Contains:
		return "contains"
	case Within:
		return "within"
	default:
		return "none"
	}
}

// Match is the result of checking a target against a Set.
type Match struct {
	Relation  Relation
	Candidate string
}

// Matched reports whether any relation was found.
func (m Match) Matched() bool { return m.Relation != NoRelation }

// Describe renders the operator-facing reason for a match.
func (m Match) Describe() string {
	switch m.Relation {
	case Exact:
		return "path is itself protected"
	case Contains:
		return "protected data exists beneath this path: " + m.Candidate
	case Within:
		return "path is inside protected tree " + m.Candidate
	default:
		return ""
	}
}

// segments splits an absolute path into its components.
func segments(p string) []string {
	p = filepath.ToSlash(filepath.Clean(p))
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Relate compares two absolute paths component by component. No string
// prefix or regular expression is involved, so "/etc" never relates to
// "/etcetera" and metacharacters in names carry no meaning.
func Relate(target, candidate string) Relation {
	ts, cs := segments(target), segments(candidate)
	n := len(ts)
	if len(cs) < n {
		n = len(cs)
	}
	for i := 0; i < n; i++ {
		if ts[i] != cs[i] {
			return NoRelation
		}
	}
	switch {
	case len(ts) == len(cs):
		return Exact
	case len(ts) < len(cs):
		return Contains
	default:
		return Within
	}
}

// IsProtected checks abs against the protected set. An exact match wins
// over a containment match so the message names the most specific reason.
func IsProtected(abs string, protected *Set) Match {
	return protected.Match(abs)
}

// InsideOrEqual reports whether abs equals, contains or lies within a
// candidate of set, returning the candidate.
func InsideOrEqual(abs string, set *Set) (bool, string) {
	m := set.Match(abs)
	return m.Matched(), m.Candidate
}
