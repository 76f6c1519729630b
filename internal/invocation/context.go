package invocation

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"
)

// Context describes the process invocation. It is built once at startup and
// passed explicitly to every component; nothing reads identity or clock
// state behind its back.
type Context struct {
	// User is the effective (acting) user name.
	User string
	// LoginUser is the human behind the session, e.g. the sudo caller.
	LoginUser string
	Host      string
	Cwd       string
	Home      string
	Started   time.Time

	// Args is the argument vector without the program name.
	Args []string
	// Program is the name used to invoke us ("rm" when run through a link).
	Program string
}

// FromEnvironment captures the current process identity.
func FromEnvironment(program string, args []string) Context {
	c := Context{
		Program: program,
		Args:    append([]string(nil), args...),
		Started: time.Now(),
	}
	if u, err := user.Current(); err == nil {
		c.User = u.Username
		c.Home = u.HomeDir
	}
	if c.User == "" {
		c.User = firstEnv("USER", "LOGNAME")
	}
	if h := os.Getenv("HOME"); h != "" {
		c.Home = h
	}
	c.LoginUser = loginUser(c.User)
	if h, err := os.Hostname(); err == nil {
		c.Host = h
	}
	if wd, err := os.Getwd(); err == nil {
		c.Cwd = wd
	}
	return c
}

func loginUser(acting string) string {
	if v := firstEnv("SUDO_USER", "LOGNAME", "USER"); v != "" {
		return v
	}
	return acting
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// CommandLine is the raw invocation line as recorded in the audit trail.
func (c Context) CommandLine() string {
	name := c.Program
	if name == "" {
		name = "rm"
	}
	if len(c.Args) == 0 {
		return name
	}
	return name + " " + strings.Join(c.Args, " ")
}

// Abs resolves p against the invocation's working directory. A literal
// "~" operand names a file called "~"; the shell expands home, not us.
func (c Context) Abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Cwd, p)
}

// ExpandHome replaces a leading "~" with the home directory when known.
func (c Context) ExpandHome(p string) string {
	if c.Home == "" || !strings.HasPrefix(p, "~") {
		return p
	}
	if p == "~" {
		return c.Home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(c.Home, p[2:])
	}
	return p
}

// RecycleUser is the name recycled data is filed under.
func (c Context) RecycleUser() string {
	if c.LoginUser != "" {
		return c.LoginUser
	}
	return c.User
}
