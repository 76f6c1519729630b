package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentsh/saferm/internal/config"
	"github.com/agentsh/saferm/internal/diag"
	"github.com/agentsh/saferm/internal/invocation"
	"github.com/agentsh/saferm/internal/policy"
)

// runtime is everything a command needs that is fixed for the lifetime of
// the process.
type runtime struct {
	cfg     *config.Config
	sources []config.Source
	inv     invocation.Context
	log     *diag.Logger
	dryRun  bool
}

func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "additional config file (defaults to SAFERM_CONFIG)")
}

func loadRuntime(cmd *cobra.Command, program string, args []string) (*runtime, error) {
	log := diag.New(diag.LevelFromEnv(), cmd.OutOrStdout())
	inv := invocation.FromEnvironment(program, args)

	explicit, _ := cmd.Flags().GetString("config")
	cfg, sources, err := config.Load(config.Options{Home: inv.Home, Explicit: explicit})
	for _, s := range sources {
		if s.Err != nil {
			log.Warn("config layer skipped", zap.String("path", s.Path), zap.Error(s.Err))
			continue
		}
		for _, r := range s.Rejected {
			log.Warn("config value ignored", zap.String("path", s.Path), zap.Error(r))
		}
		log.Config("config layer", zap.String("path", s.Path))
	}
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:     cfg,
		sources: sources,
		inv:     inv,
		log:     log,
		dryRun:  cfg.DryRun || log.DryRun(),
	}, nil
}

// loadPolicy builds the three sets from the built-ins, inline patterns and
// pattern files. Unreadable files only produce warnings.
func (rt *runtime) loadPolicy() *policy.Store {
	p := rt.cfg.Policy
	st, warns := policy.LoadStore(
		policy.Sources{Builtin: merge(policy.BuiltinProtected, p.Protected), Files: p.ProtectedFiles},
		policy.Sources{Builtin: merge(policy.BuiltinHoneypot, p.Honeypot), Files: p.HoneypotFiles},
		policy.Sources{Builtin: merge(policy.BuiltinRecycle, p.Recycle), Files: p.RecycleFiles},
		rt.inv.Home,
	)
	for _, w := range warns {
		rt.log.Warn("pattern file skipped", zap.Error(w))
	}
	for _, k := range []policy.Kind{policy.Protected, policy.Honeypot, policy.Recycle} {
		rt.log.Config("policy set", zap.Stringer("kind", k), zap.Strings("entries", st.Set(k).Entries()))
	}
	return st
}

func merge(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}
