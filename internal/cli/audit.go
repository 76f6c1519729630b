package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentsh/saferm/internal/config"
	"github.com/agentsh/saferm/internal/store"
	"github.com/agentsh/saferm/internal/store/jsonl"
	"github.com/agentsh/saferm/internal/store/sqlite"
	"github.com/agentsh/saferm/pkg/types"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit log commands",
	}
	cmd.AddCommand(newAuditQueryCmd())
	return cmd
}

func newAuditQueryCmd() *cobra.Command {
	var (
		user   string
		level  string
		since  string
		grep   string
		limit  int
		asc    bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query audit records (from the sqlite index when configured, else the JSON log)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd, "saferm", args)
			if err != nil {
				return err
			}
			if user == "" {
				user = rt.inv.User
			}

			q := types.RecordQuery{User: user, TextLike: grep, Limit: limit, Asc: asc}
			switch level {
			case "":
			case "info", "Info":
				q.Level = types.LevelInfo
			case "warning", "Warning":
				q.Level = types.LevelWarning
			default:
				return fmt.Errorf("unknown level %q (info|warning)", level)
			}
			if since != "" {
				d, err := config.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("parse since: %w", err)
				}
				t := time.Now().Add(-d)
				q.Since = &t
			}

			st, err := openRecordStore(rt, user)
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.QueryRecords(cmd.Context(), q)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, recs)
			}
			for _, r := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", r.Time.Format(time.RFC3339), r.Level, r.User, r.Message)
			}
			return nil
		},
	}
	addConfigFlag(cmd)
	cmd.Flags().StringVar(&user, "user", "", "acting or login user (defaults to the current user)")
	cmd.Flags().StringVar(&level, "level", "", "info|warning")
	cmd.Flags().StringVar(&since, "since", "", "only records newer than this (e.g. 24h, 7d)")
	cmd.Flags().StringVar(&grep, "grep", "", "substring of the message")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum records")
	cmd.Flags().BoolVar(&asc, "asc", false, "oldest first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func openRecordStore(rt *runtime, user string) (store.RecordStore, error) {
	if rt.cfg.Audit.IndexPath != "" {
		return sqlite.Open(rt.cfg.Audit.IndexPath)
	}
	st, errs := jsonl.New(rt.cfg.Audit.LogDirs, user)
	if st == nil {
		if len(errs) > 0 {
			return nil, errs[len(errs)-1]
		}
		return nil, fmt.Errorf("no audit log available")
	}
	return st, nil
}
