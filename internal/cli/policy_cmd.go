package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentsh/saferm/internal/engine"
	"github.com/agentsh/saferm/internal/policy"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the resolved path policy",
	}
	cmd.AddCommand(newPolicyCheckCmd(), newPolicyListCmd())
	return cmd
}

type checkResult struct {
	Path      string `json:"path"`
	Protected string `json:"protected,omitempty"`
	Honeypot  string `json:"honeypot,omitempty"`
	Recycle   string `json:"recycle,omitempty"`
	Verdict   string `json:"verdict"`
}

func newPolicyCheckCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check <path>...",
		Short: "Show how each path would be treated, without removing anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd, "saferm", nil)
			if err != nil {
				return err
			}
			eng := engine.New(engine.Options{Policy: rt.loadPolicy()})

			var results []checkResult
			for _, p := range args {
				c := eng.Classify(rt.inv.Abs(p))
				r := checkResult{
					Path:      c.Abs,
					Protected: describeMatch(c.Protection),
					Honeypot:  describeMatch(c.Honeypot),
					Recycle:   describeMatch(c.Recycle),
				}
				switch {
				case c.Protection.Matched():
					r.Verdict = "block"
				case rt.cfg.Recycle.Enabled && c.Recycle.Matched():
					r.Verdict = "recycle"
				default:
					r.Verdict = "delete"
				}
				if c.Honeypot.Matched() {
					r.Verdict += "+alert"
				}
				results = append(results, r)
			}

			if asJSON {
				return printJSON(cmd, results)
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Path, r.Verdict)
				for _, line := range []string{r.Protected, r.Honeypot, r.Recycle} {
					if line != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", line)
					}
				}
			}
			return nil
		},
	}
	addConfigFlag(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func newPolicyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the resolved protected, honeypot and recycle sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd, "saferm", nil)
			if err != nil {
				return err
			}
			st := rt.loadPolicy()
			for _, k := range []policy.Kind{policy.Protected, policy.Honeypot, policy.Recycle} {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", k)
				for _, e := range st.Set(k).Entries() {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e)
				}
			}
			return nil
		},
	}
	addConfigFlag(cmd)
	return cmd
}

func describeMatch(m policy.Match) string {
	if !m.Matched() {
		return ""
	}
	return strings.Join([]string{m.Relation.String(), m.Candidate}, " ")
}
