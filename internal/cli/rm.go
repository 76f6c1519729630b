package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentsh/saferm/internal/audit"
	"github.com/agentsh/saferm/internal/config"
	"github.com/agentsh/saferm/internal/engine"
	"github.com/agentsh/saferm/internal/invocation"
	"github.com/agentsh/saferm/internal/remove"
)

const rmUsage = `Usage: rm [OPTION]... [FILE]...
Remove (unlink) the FILE(s), after checking them against the saferm policy.

  -f, --force           ignore nonexistent files
  -r, -R, --recursive   remove directories and their contents recursively
  -d, --dir             remove empty directories
  -v, --verbose         explain what is being done
      --help            display this help and exit
      --version         output version information and exit

Protected paths are refused, honeypots raise an alert, and paths on the
recycle list are copied to the recycle bin before removal.
`

func newRmCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:                "rm [OPTION]... [FILE]...",
		Short:              "Remove files through the safety layer",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRm(cmd, version, args)
		},
	}
}

func runRm(cmd *cobra.Command, version string, args []string) error {
	rt, err := loadRuntime(cmd, "rm", args)
	if err != nil {
		return exitf(1, "invalid configuration: %v", err)
	}
	defer rt.log.Sync()

	op := newOperator(cmd.ErrOrStderr())
	sink := audit.Open(rt.cfg, rt.inv, rt.dryRun, rt.log)
	defer sink.Close()

	hashLimit, _ := config.ParseByteSize(rt.cfg.Recycle.HashSmallFilesUnder)
	opts := engine.Options{
		Policy:   rt.loadPolicy(),
		Recorder: sink,
		Recycle: engine.RecycleOptions{
			Enabled:        rt.cfg.Recycle.Enabled,
			Root:           rt.cfg.Recycle.Root,
			HashLimitBytes: hashLimit,
			PreserveXattrs: rt.cfg.Recycle.PreserveXattrs,
		},
		DryRun: rt.dryRun,
		Diag:   rt.log,
		Warn:   op.Warn,
	}

	argv := invocation.Split(args)
	if rt.cfg.RmPath != "" {
		ex := &remove.Exec{
			Path:   rt.cfg.RmPath,
			Flags:  argv.Flags,
			Stdin:  cmd.InOrStdin(),
			Stdout: cmd.OutOrStdout(),
			Stderr: cmd.ErrOrStderr(),
		}
		opts.Remover, opts.Forwarder = ex, ex
	} else {
		opts.Remover = remove.NewDirect(argv, cmd.OutOrStdout(), cmd.ErrOrStderr())
		opts.Forwarder = &builtinFlags{argv: argv, version: version, out: cmd.OutOrStdout()}
	}

	rep, err := engine.New(opts).Run(cmd.Context(), rt.inv)
	switch {
	case errors.Is(err, engine.ErrMissingOperand):
		op.Usage("missing operand", "Try 'rm --help' for more information.")
		return &ExitError{code: 1}
	case err != nil:
		return exitf(1, "%v", err)
	case rep.Code != 0:
		return &ExitError{code: rep.Code}
	}
	return nil
}

// builtinFlags answers flags-only invocations when no external rm is
// configured.
type builtinFlags struct {
	argv    invocation.Argv
	version string
	out     io.Writer
}

func (b *builtinFlags) Forward(context.Context) (int, error) {
	switch {
	case b.argv.Has(0, "help"):
		fmt.Fprint(b.out, rmUsage)
		return 0, nil
	case b.argv.Has(0, "version"):
		fmt.Fprintf(b.out, "saferm %s\n", b.version)
		return 0, nil
	}
	return 1, engine.ErrMissingOperand
}
