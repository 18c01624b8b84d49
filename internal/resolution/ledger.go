package resolution

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chatform/chatform/internal/audit"
	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/metrics"
	"github.com/chatform/chatform/internal/models"
)

// Ledger is the single writer of an application snapshot. Engines for
// different flags share one ledger; each commit is applied atomically.
type Ledger struct {
	mu     sync.RWMutex
	snap   *models.ApplicationSnapshot
	sink   audit.Sink
	logger *slog.Logger
}

// NewLedger takes ownership of snap. A nil sink disables auditing.
func NewLedger(snap *models.ApplicationSnapshot, sink audit.Sink) *Ledger {
	if snap == nil {
		snap = models.NewSnapshot(nil)
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Ledger{
		snap:   snap,
		sink:   sink,
		logger: slog.Default().With("component", "ledger"),
	}
}

// Snapshot returns a copy of the current application state
func (l *Ledger) Snapshot() *models.ApplicationSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.Clone()
}

// Commit applies a terminal action for rule and records it in the audit
// trail. An audit write failure is logged; the commit itself stands.
func (l *Ledger) Commit(ctx context.Context, rule models.RuleID, action models.ResolutionAction) (models.AuditRecord, error) {
	if !action.Terminal() {
		return models.AuditRecord{}, errors.InternalErrorf("cannot commit %s action", action.Kind)
	}
	if action.Field == "" {
		return models.AuditRecord{}, errors.ValidationError("action has no field")
	}

	rec := audit.NewRecord(rule, action.Kind, action.Field)
	rec.Escalated = action.Escalated

	l.mu.Lock()
	switch action.Kind {
	case models.ActionUpdate:
		c := l.snap.ApplyUpdate(action.Field, action.NewValue)
		rec.OldValue, rec.NewValue = c.OldValue, c.NewValue
	case models.ActionJustify:
		l.snap.ApplyJustification(action.Field, action.Explanation)
		rec.Explanation = action.Explanation
	}
	l.mu.Unlock()

	metrics.RecordResolution(string(rule), string(action.Kind))
	if err := l.sink.Record(ctx, rec); err != nil {
		l.logger.Warn("audit record not written", "rule", rule, "id", rec.ID, "error", err)
	}
	l.logger.Info("resolution committed",
		"rule", rule,
		"action", action.Kind,
		"field", action.Field,
		"escalated", action.Escalated,
	)
	return rec, nil
}
