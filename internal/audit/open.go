package audit

import (
	"go.uber.org/zap"

	"github.com/agentsh/saferm/internal/alert"
	"github.com/agentsh/saferm/internal/config"
	"github.com/agentsh/saferm/internal/diag"
	"github.com/agentsh/saferm/internal/invocation"
	"github.com/agentsh/saferm/internal/store"
	"github.com/agentsh/saferm/internal/store/composite"
	"github.com/agentsh/saferm/internal/store/jsonl"
	"github.com/agentsh/saferm/internal/store/sqlite"
)

// Open wires the sink described by cfg: the per-user JSON log, the optional
// sqlite index and the configured notifiers. Components that cannot be set
// up are reported to diagnostics and left out.
func Open(cfg *config.Config, inv invocation.Context, dryRun bool, log *diag.Logger) *Sink {
	opts := Options{
		IgnoreAudit: cfg.IgnoresAuditFor(inv.User) || cfg.IgnoresAuditFor(inv.LoginUser),
		IgnoreAlert: cfg.IgnoresAlertFor(inv.User) || cfg.IgnoresAlertFor(inv.LoginUser),
		DryRun:      dryRun,
		Diag:        log,
	}
	if !opts.IgnoreAudit {
		opts.Store = openStore(cfg, inv, log)
	}
	if !opts.IgnoreAlert {
		if n := openNotifier(cfg, log); n != nil {
			opts.Notifier = n
		}
	}
	return New(inv, opts)
}

func openStore(cfg *config.Config, inv invocation.Context, log *diag.Logger) store.RecordStore {
	var stores []store.RecordStore
	js, errs := jsonl.New(cfg.Audit.LogDirs, inv.User)
	for _, err := range errs {
		log.Warn("audit log dir", zap.Error(err))
	}
	if js != nil {
		log.Config("audit log", zap.String("dir", js.Dir()))
		stores = append(stores, js)
	}
	if cfg.Audit.IndexPath != "" {
		db, err := sqlite.Open(cfg.Audit.IndexPath)
		if err != nil {
			log.Warn("audit index", zap.Error(err))
		} else {
			stores = append(stores, db)
		}
	}
	switch len(stores) {
	case 0:
		return nil
	case 1:
		return stores[0]
	default:
		return composite.New(stores[0], stores[1:]...)
	}
}

func openNotifier(cfg *config.Config, log *diag.Logger) alert.Notifier {
	var out alert.Fanout
	if len(cfg.Alert.Command) > 0 {
		n, err := alert.NewCommandNotifier(cfg.Alert.Command)
		if err != nil {
			log.Warn("alert command", zap.Error(err))
		} else {
			out = append(out, n)
		}
	}
	if cfg.Alert.Webhook.URL != "" {
		timeout, _ := config.ParseDuration(cfg.Alert.Webhook.Timeout)
		w, err := alert.NewWebhookNotifier(cfg.Alert.Webhook.URL, timeout, cfg.Alert.Webhook.Headers)
		if err != nil {
			log.Warn("alert webhook", zap.Error(err))
		} else {
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
