package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "saferm",
		Short:         "saferm: a safety layer in front of rm",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("saferm {{.Version}}\n")

	cmd.AddCommand(newRmCmd(version))
	cmd.AddCommand(newRecycleCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newPolicyCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// ArgsFor maps the process argument vector onto root command arguments.
// Invoked through a link named rm, every argument belongs to the rm
// subcommand, including ones that look like saferm's own subcommands.
func ArgsFor(argv0 string, args []string) []string {
	if filepath.Base(argv0) == "rm" {
		return append([]string{"rm"}, args...)
	}
	return args
}
