// Package audit records every deletion decision and raises alerts for
// sensitive ones. All of it is best-effort: nothing here can fail a
// deletion.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentsh/saferm/internal/alert"
	"github.com/agentsh/saferm/internal/diag"
	"github.com/agentsh/saferm/internal/invocation"
	"github.com/agentsh/saferm/internal/store"
	"github.com/agentsh/saferm/pkg/types"
)

// VirtualMarker is appended to every record and alert in dry-run mode.
const VirtualMarker = " (virtual operation)"

type Options struct {
	// Store receives records; nil drops them.
	Store store.RecordStore
	// Notifier receives alerts; nil drops them.
	Notifier alert.Notifier
	// IgnoreAudit and IgnoreAlert exempt the invoking user.
	IgnoreAudit bool
	IgnoreAlert bool
	DryRun      bool
	Diag        *diag.Logger
	Now         func() time.Time
}

// Sink stamps records with the invocation identity and hands them on.
type Sink struct {
	inv  invocation.Context
	opts Options
}

func New(inv invocation.Context, opts Options) *Sink {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sink{inv: inv, opts: opts}
}

// Info writes an Info record.
func (s *Sink) Info(msg string) { s.Record(types.LevelInfo, msg) }

// Warning writes a Warning record.
func (s *Sink) Warning(msg string) { s.Record(types.LevelWarning, msg) }

// Record appends one audit record. Failures are reported to diagnostics
// and otherwise swallowed.
func (s *Sink) Record(level types.Level, msg string) {
	if s == nil || s.opts.IgnoreAudit || s.opts.Store == nil {
		return
	}
	rec := types.Record{
		Time:      s.opts.Now(),
		Level:     level,
		User:      s.inv.User,
		LoginUser: s.inv.LoginUser,
		Host:      s.inv.Host,
		Cwd:       s.inv.Cwd,
		Message:   s.mark(msg),
	}
	if err := s.opts.Store.AppendRecord(context.Background(), rec); err != nil {
		s.opts.Diag.Warn("audit record dropped", zap.Error(err), zap.String("message", rec.Message))
	}
}

// Alert hands title and message to the notifier without waiting for
// delivery.
func (s *Sink) Alert(title, msg string) {
	if s == nil || s.opts.IgnoreAlert || s.opts.Notifier == nil {
		return
	}
	a := alert.Alert{
		Title:   title,
		Message: s.mark(msg),
		User:    s.inv.RecycleUser(),
		Host:    s.inv.Host,
		Time:    s.opts.Now(),
	}
	s.opts.Diag.Command("alert", zap.String("title", a.Title), zap.String("message", a.Message))
	if err := s.opts.Notifier.Notify(a); err != nil {
		s.opts.Diag.Warn("alert failed", zap.Error(err))
	}
}

// Close flushes pending alerts and closes the store.
func (s *Sink) Close() {
	if s == nil {
		return
	}
	if c, ok := s.opts.Notifier.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			s.opts.Diag.Warn("alert delivery", zap.Error(err))
		}
	}
	if s.opts.Store != nil {
		if err := s.opts.Store.Close(); err != nil {
			s.opts.Diag.Warn("close audit store", zap.Error(err))
		}
	}
}

func (s *Sink) mark(msg string) string {
	if s.opts.DryRun {
		return msg + VirtualMarker
	}
	return msg
}
