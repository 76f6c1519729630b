// Package engine decides, for each path of an rm invocation, whether to
// block, flag, recycle or delete it, and performs the side effects in that
// order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/agentsh/saferm/internal/diag"
	"github.com/agentsh/saferm/internal/invocation"
	"github.com/agentsh/saferm/internal/policy"
	"github.com/agentsh/saferm/internal/recycle"
	"github.com/agentsh/saferm/internal/remove"
	"github.com/agentsh/saferm/pkg/types"
)

var (
	// ErrMissingOperand is returned when an invocation names neither paths
	// nor flags, or only flags nobody can act on.
	ErrMissingOperand = errors.New("missing operand")
	// ErrNoUserRoot means no user name was available to file recycled data
	// under.
	ErrNoUserRoot = errors.New("no user to file recycled data under")
)

// Recorder is the audit and alert sink as seen by the engine.
type Recorder interface {
	Info(msg string)
	Warning(msg string)
	Alert(title, msg string)
}

// Forwarder runs the underlying rm for a flags-only invocation.
type Forwarder interface {
	Forward(ctx context.Context) (int, error)
}

// RecycleOptions configure the recycle step.
type RecycleOptions struct {
	Enabled        bool
	Root           string
	HashLimitBytes int64
	PreserveXattrs bool
}

// Options wire the engine to its policy and collaborators.
type Options struct {
	Policy    *policy.Store
	Recorder  Recorder
	Remover   remove.Remover
	Forwarder Forwarder
	Recycle   RecycleOptions
	DryRun    bool
	Diag      *diag.Logger
	// Warn shows a message to the operator; nil discards it.
	Warn func(msg string)
}

// Engine runs the per-path decision sequence.
type Engine struct {
	opts Options
}

// New fills in no-op defaults for the optional collaborators.
func New(opts Options) *Engine {
	if opts.Policy == nil {
		opts.Policy = &policy.Store{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Warn == nil {
		opts.Warn = func(string) {}
	}
	return &Engine{opts: opts}
}

// Outcome is what happened to one target.
type Outcome struct {
	Target string
	Abs    string
	Exists bool
	Action types.Action

	Protection policy.Match
	Honeypot   policy.Match
	RecycledTo string
	RecycleErr error

	Code int
	Err  error
}

// Report summarises an invocation.
type Report struct {
	Outcomes  []Outcome
	Forwarded bool
	Code      int
}

// Classification is the policy view of one absolute path.
type Classification struct {
	Abs        string
	Protection policy.Match
	Honeypot   policy.Match
	Recycle    policy.Match
}

// Classify matches abs against every set. A path whose parent directory
// goes through a symlink is also checked in its resolved form, so a link
// into a protected tree cannot be used to reach it.
func (e *Engine) Classify(abs string) Classification {
	c := Classification{Abs: abs}
	forms := []string{abs}
	if r := resolveParent(abs); r != abs {
		forms = append(forms, r)
	}
	for _, p := range forms {
		if !c.Protection.Matched() {
			c.Protection = policy.IsProtected(p, e.opts.Policy.Protected)
		}
		if !c.Honeypot.Matched() {
			c.Honeypot = e.opts.Policy.Honeypot.MatchHoneypot(p)
		}
		if !c.Recycle.Matched() {
			c.Recycle = e.opts.Policy.Recycle.Match(p)
		}
	}
	return c
}

// Run processes one invocation. The raw command line is always recorded
// first. Paths are handled one after another; a blocked or failed path
// never stops the ones after it.
func (e *Engine) Run(ctx context.Context, inv invocation.Context) (*Report, error) {
	e.opts.Recorder.Info(inv.CommandLine())

	argv := invocation.Split(inv.Args)
	if len(argv.Operands) == 0 {
		if len(argv.Flags) == 0 || e.opts.Forwarder == nil {
			return &Report{Code: 1}, ErrMissingOperand
		}
		e.opts.Diag.Command("forward", zap.String("flags", argv.FlagLine()))
		code, err := e.opts.Forwarder.Forward(ctx)
		return &Report{Forwarded: true, Code: code}, err
	}

	rep := &Report{}
	for _, target := range argv.Operands {
		rep.Outcomes = append(rep.Outcomes, e.process(ctx, inv, target))
	}
	rep.Code = exitCode(rep.Outcomes)
	return rep, nil
}

func (e *Engine) process(ctx context.Context, inv invocation.Context, target string) Outcome {
	o := Outcome{Target: target, Abs: inv.Abs(target)}

	if _, err := os.Lstat(o.Abs); err == nil {
		o.Exists = true
		c := e.Classify(o.Abs)

		if c.Protection.Matched() {
			o.Protection = c.Protection
			o.Action = types.ActionBlocked
			o.Code = 1
			msg := fmt.Sprintf("refusing to remove '%s': %s", o.Abs, c.Protection.Describe())
			e.opts.Warn(msg)
			e.opts.Recorder.Warning(msg)
			e.opts.Recorder.Alert("Protected path", msg)
			return o
		}

		if c.Honeypot.Matched() {
			o.Honeypot = c.Honeypot
			msg := fmt.Sprintf("honeypot '%s' hit by removal of '%s'", c.Honeypot.Candidate, o.Abs)
			e.opts.Recorder.Warning(msg)
			e.opts.Recorder.Alert("Honeypot", msg)
		}

		if e.opts.Recycle.Enabled && c.Recycle.Matched() {
			o.RecycledTo, o.RecycleErr = e.recycle(inv, o.Abs)
			if o.RecycleErr != nil {
				msg := fmt.Sprintf("recycle of '%s' failed: %v", o.Abs, o.RecycleErr)
				e.opts.Diag.Warn("recycle failed", zap.String("path", o.Abs), zap.Error(o.RecycleErr))
				e.opts.Recorder.Warning(msg)
			} else {
				e.opts.Recorder.Info(fmt.Sprintf("recycled '%s' to '%s'", o.Abs, o.RecycledTo))
			}
		}
	}

	if e.opts.DryRun {
		o.Action = types.ActionVirtual
		e.opts.Diag.Command("remove (dry run)", zap.String("path", o.Abs))
		e.opts.Recorder.Info(removed(o))
		return o
	}

	e.opts.Diag.Command("remove", zap.String("path", o.Abs))
	if e.opts.Remover == nil {
		o.Action, o.Code, o.Err = types.ActionFailed, 1, errors.New("no remover configured")
	} else {
		o.Code, o.Err = e.opts.Remover.Remove(ctx, o.Abs)
	}
	switch {
	case o.Err != nil:
		o.Action = types.ActionFailed
		if o.Code == 0 {
			o.Code = 1
		}
		e.opts.Warn(fmt.Sprintf("cannot remove '%s': %v", o.Abs, o.Err))
		e.opts.Recorder.Info(fmt.Sprintf("failed to remove '%s': %v", o.Abs, o.Err))
	case o.Code != 0:
		o.Action = types.ActionFailed
		e.opts.Recorder.Info(fmt.Sprintf("failed to remove '%s' (exit %d)", o.Abs, o.Code))
	default:
		o.Action = types.ActionDeleted
		e.opts.Recorder.Info(removed(o))
	}
	return o
}

// removed describes a successful delete step. Under -f a missing path
// succeeds without anything being removed.
func removed(o Outcome) string {
	if !o.Exists {
		return fmt.Sprintf("'%s' not present, nothing removed", o.Abs)
	}
	return fmt.Sprintf("removed '%s'", o.Abs)
}

func (e *Engine) recycle(inv invocation.Context, abs string) (string, error) {
	user := inv.RecycleUser()
	if user == "" {
		return "", ErrNoUserRoot
	}
	now := time.Now
	if !inv.Started.IsZero() {
		now = func() time.Time { return inv.Started }
	}
	out, err := recycle.Recycle(abs, recycle.Config{
		UserRoot:       recycle.UserRoot(e.opts.Recycle.Root, user),
		User:           user,
		Command:        inv.CommandLine(),
		HashLimitBytes: e.opts.Recycle.HashLimitBytes,
		PreserveXattrs: e.opts.Recycle.PreserveXattrs,
		Now:            now,
		DryRun:         e.opts.DryRun,
	})
	if err != nil {
		return "", err
	}
	return out.Destination, nil
}

// exitCode is 1 if anything was blocked, otherwise the last non-zero
// remover code, otherwise 0.
func exitCode(outcomes []Outcome) int {
	code := 0
	for _, o := range outcomes {
		if o.Action == types.ActionBlocked {
			return 1
		}
		if o.Code != 0 {
			code = o.Code
		}
	}
	return code
}

// resolveParent resolves symlinks in the parent directory of abs but not
// in abs itself: removing a link removes the link, not its target.
func resolveParent(abs string) string {
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return abs
	}
	return filepath.Join(dir, filepath.Base(abs))
}

type nopRecorder struct{}

func (nopRecorder) Info(string)          {}
func (nopRecorder) Warning(string)       {}
func (nopRecorder) Alert(string, string) {}
