// Package audit records every committed resolution (field correction or
// accepted justification) so compliance can review it later.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatform/chatform/internal/models"
)

// Sink stores audit records. Implementations are safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, rec models.AuditRecord) error
	// List returns up to limit records, oldest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]models.AuditRecord, error)
	Close() error
}

// Open creates the sink for format at path: "bolt", "jsonl" and "sqlite"
// take a file path, "postgres" a connection string. An empty path disables
// auditing.
func Open(format, path string) (Sink, error) {
	if path == "" {
		return Nop{}, nil
	}
	switch strings.ToLower(format) {
	case "", "bolt":
		return OpenBolt(path)
	case "jsonl":
		return NewJSONLSink(path), nil
	case "sqlite":
		return OpenSQLite(path)
	case "postgres":
		return OpenPostgres(path)
	default:
		return nil, fmt.Errorf("unknown audit format %q", format)
	}
}

// NewRecord fills in the id and commit time of a record
func NewRecord(rule models.RuleID, action models.ActionKind, field string) models.AuditRecord {
	return models.AuditRecord{
		ID:          uuid.NewString(),
		Rule:        rule,
		Action:      action,
		Field:       field,
		CommittedAt: time.Now().UTC(),
	}
}

// Nop discards records
type Nop struct{}

func (Nop) Record(ctx context.Context, rec models.AuditRecord) error { return nil }
func (Nop) List(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	return nil, nil
}
func (Nop) Close() error { return nil }

func tail(recs []models.AuditRecord, limit int) []models.AuditRecord {
	if limit > 0 && len(recs) > limit {
		return recs[len(recs)-limit:]
	}
	return recs
}
