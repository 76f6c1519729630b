// Package remove performs the final deletion of one path, either directly
// through the os package or by running an external rm executable.
package remove

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"github.com/agentsh/saferm/internal/invocation"
)

// Remover deletes one path and reports an rm-style exit code. The error is
// set only when the removal could not be attempted at all.
type Remover interface {
	Remove(ctx context.Context, path string) (int, error)
}

// Direct removes paths in-process, honouring the rm flags it understands:
// -f, -r/-R, -d and -v. Other flags are ignored.
type Direct struct {
	Force     bool
	Recursive bool
	EmptyDirs bool
	Verbose   bool

	Stdout io.Writer
	Stderr io.Writer
}

func NewDirect(argv invocation.Argv, stdout, stderr io.Writer) *Direct {
	return &Direct{
		Force:     argv.Has('f', "force"),
		Recursive: argv.Has('r', "recursive") || argv.Has('R', ""),
		EmptyDirs: argv.Has('d', "dir"),
		Verbose:   argv.Has('v', "verbose"),
		Stdout:    stdout,
		Stderr:    stderr,
	}
}

func (d *Direct) Remove(_ context.Context, path string) (int, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && d.Force {
			return 0, nil
		}
		return d.fail(path, err)
	}

	switch {
	case !fi.IsDir():
		err = os.Remove(path)
	case d.Recursive:
		err = os.RemoveAll(path)
	case d.EmptyDirs:
		err = os.Remove(path)
	default:
		return d.fail(path, syscall.EISDIR)
	}
	if err != nil {
		return d.fail(path, err)
	}

	if d.Verbose && d.Stdout != nil {
		if fi.IsDir() {
			fmt.Fprintf(d.Stdout, "removed directory '%s'\n", path)
		} else {
			fmt.Fprintf(d.Stdout, "removed '%s'\n", path)
		}
	}
	return 0, nil
}

func (d *Direct) fail(path string, err error) (int, error) {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	if d.Stderr != nil {
		fmt.Fprintf(d.Stderr, "saferm: cannot remove '%s': %v\n", path, err)
	}
	return 1, nil
}

// Exec runs an external rm once per path as Path <flags> -- <path>. No
// shell is involved, so paths are never reinterpreted.
type Exec struct {
	Path  string
	Flags []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (e *Exec) Remove(ctx context.Context, path string) (int, error) {
	args := append(append([]string(nil), e.Flags...), "--", path)
	return e.run(ctx, args)
}

// Forward runs the executable with the flags alone, for invocations that
// name no paths (e.g. --help).
func (e *Exec) Forward(ctx context.Context) (int, error) {
	return e.run(ctx, append([]string(nil), e.Flags...))
}

// Argv is the command line Remove would run for path.
func (e *Exec) Argv(path string) []string {
	return append(append([]string{e.Path}, e.Flags...), "--", path)
}

func (e *Exec) run(ctx context.Context, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, e.Path, args...)
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), nil
	}
	return 1, fmt.Errorf("run %s: %w", e.Path, err)
}
