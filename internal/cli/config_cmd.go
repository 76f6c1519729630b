package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show resolved config (after all layers and env overrides)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd, "saferm", nil)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd, rt.cfg)
			}
			return printYAML(cmd, rt.cfg)
		},
	}
	addConfigFlag(show)
	show.Flags().Bool("json", false, "print as JSON")

	sources := &cobra.Command{
		Use:   "sources",
		Short: "List the config files that were considered",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd, "saferm", nil)
			if err != nil {
				return err
			}
			if len(rt.sources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no config files found; using defaults")
			}
			for _, s := range rt.sources {
				status := "loaded"
				if s.Err != nil {
					status = "skipped: " + s.Err.Error()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Path, status)
				for _, r := range s.Rejected {
					fmt.Fprintf(cmd.OutOrStdout(), "  ignored %v\n", r)
				}
			}
			return nil
		},
	}
	addConfigFlag(sources)

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the merged config",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd, "saferm", nil)
			if err != nil {
				return err
			}
			for _, s := range rt.sources {
				if s.Err != nil {
					return s.Err
				}
				if len(s.Rejected) > 0 {
					return fmt.Errorf("%s: %w", s.Path, errors.Join(s.Rejected...))
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	addConfigFlag(validate)

	cmd.AddCommand(show, sources, validate)
	return cmd
}
