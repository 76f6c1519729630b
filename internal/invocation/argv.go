package invocation

import "strings"

// Argv is an argument vector split into option flags and path operands.
// Relative order within each group is preserved.
type Argv struct {
	Flags    []string
	Operands []string
}

// Split separates flags (tokens starting with "-") from operands. A lone "-"
// is an operand, and every token after "--" is an operand.
func Split(args []string) Argv {
	var a Argv
	operandsOnly := false
	for _, tok := range args {
		switch {
		case operandsOnly:
			a.Operands = append(a.Operands, tok)
		case tok == "--":
			operandsOnly = true
		case len(tok) > 1 && strings.HasPrefix(tok, "-"):
			a.Flags = append(a.Flags, tok)
		default:
			a.Operands = append(a.Operands, tok)
		}
	}
	return a
}

// FlagLine re-joins the flags with single spaces.
func (a Argv) FlagLine() string {
	return strings.Join(a.Flags, " ")
}

// Has reports whether a short or long option is present. Short options are
// matched inside clusters, so Has('f', "force") is true for "-rf".
func (a Argv) Has(short byte, long string) bool {
	for _, f := range a.Flags {
		if strings.HasPrefix(f, "--") {
			if long != "" && f[2:] == long {
				return true
			}
			continue
		}
		if short != 0 && strings.IndexByte(f[1:], short) >= 0 {
			return true
		}
	}
	return false
}
