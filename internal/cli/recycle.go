package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agentsh/saferm/internal/config"
	"github.com/agentsh/saferm/internal/recycle"
)

func newRecycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recycle",
		Short: "Manage recycled copies of removed files",
	}
	cmd.AddCommand(newRecycleListCmd(), newRecycleRestoreCmd(), newRecyclePurgeCmd())
	return cmd
}

func addRecycleFlags(cmd *cobra.Command) {
	addConfigFlag(cmd)
	cmd.Flags().String("user", "", "recycle bin owner (defaults to the login user)")
}

// recycleUserRoot resolves <recycle_root>/<user> for the command.
func recycleUserRoot(cmd *cobra.Command, rt *runtime) (string, error) {
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = rt.inv.RecycleUser()
	}
	if user == "" {
		return "", fmt.Errorf("cannot determine user; pass --user")
	}
	return recycle.UserRoot(rt.cfg.Recycle.Root, user), nil
}

func newRecycleListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recycled entries, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd, "saferm", args)
			if err != nil {
				return err
			}
			root, err := recycleUserRoot(cmd, rt)
			if err != nil {
				return err
			}
			entries, err := recycle.List(root)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "recycle bin empty")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tORIGINAL\tSIZE\tRECYCLED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.OriginalPath, humanize.IBytes(uint64(e.Size)), humanize.Time(e.Created))
			}
			return tw.Flush()
		},
	}
	addRecycleFlags(cmd)
	cmd.Flags().Bool("json", false, "print manifests as JSON")
	return cmd
}

func newRecycleRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Restore a recycled entry by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd, "saferm", args)
			if err != nil {
				return err
			}
			root, err := recycleUserRoot(cmd, rt)
			if err != nil {
				return err
			}
			dest, _ := cmd.Flags().GetString("dest")
			force, _ := cmd.Flags().GetBool("force")
			path, err := recycle.Restore(root, args[0], dest, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored to %s\n", path)
			return nil
		},
	}
	addRecycleFlags(cmd)
	cmd.Flags().String("dest", "", "override restore destination")
	cmd.Flags().Bool("force", false, "overwrite destination if it exists")
	return cmd
}

func newRecyclePurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Purge recycled entries by TTL or quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd, "saferm", args)
			if err != nil {
				return err
			}
			root, err := recycleUserRoot(cmd, rt)
			if err != nil {
				return err
			}

			ttlStr := rt.cfg.Recycle.TTL
			if cmd.Flags().Changed("ttl") {
				ttlStr, _ = cmd.Flags().GetString("ttl")
			}
			quotaStr := rt.cfg.Recycle.Quota
			if cmd.Flags().Changed("quota") {
				quotaStr, _ = cmd.Flags().GetString("quota")
			}

			var ttl time.Duration
			if ttlStr != "" {
				ttl, err = config.ParseDuration(ttlStr)
				if err != nil {
					return fmt.Errorf("parse ttl: %w", err)
				}
			}
			var quota int64
			if quotaStr != "" {
				quota, err = config.ParseByteSize(quotaStr)
				if err != nil {
					return fmt.Errorf("parse quota: %w", err)
				}
			}

			if rt.dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "dry run: nothing purged")
				return nil
			}
			removed, err := recycle.Purge(root, recycle.PurgeOptions{TTL: ttl, QuotaBytes: quota})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entr(y/ies)\n", removed)
			return nil
		},
	}
	addRecycleFlags(cmd)
	cmd.Flags().String("ttl", "", "TTL (e.g. 7d, 24h); empty disables (defaults to recycle.ttl)")
	cmd.Flags().String("quota", "", "Quota cap (e.g. 5GB); empty disables (defaults to recycle.quota)")
	return cmd
}
