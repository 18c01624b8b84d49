package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chatform/chatform/internal/models"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id TEXT PRIMARY KEY,
	rule TEXT NOT NULL,
	action TEXT NOT NULL,
	field TEXT NOT NULL,
	old_value TEXT NOT NULL DEFAULT 'null',
	new_value TEXT NOT NULL DEFAULT 'null',
	explanation TEXT NOT NULL DEFAULT '',
	escalated BOOLEAN NOT NULL DEFAULT FALSE,
	committed_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_records_committed ON audit_records (committed_at);
`

// SQLSink keeps records in an audit_records table, in SQLite for a single
// host or Postgres when several replicas share the trail.
type SQLSink struct {
	db *sqlx.DB
}

type auditRow struct {
	ID          string    `db:"id"`
	Rule        string    `db:"rule"`
	Action      string    `db:"action"`
	Field       string    `db:"field"`
	OldValue    string    `db:"old_value"`
	NewValue    string    `db:"new_value"`
	Explanation string    `db:"explanation"`
	Escalated   bool      `db:"escalated"`
	CommittedAt time.Time `db:"committed_at"`
}

// OpenSQLite opens or creates the database file at path
func OpenSQLite(path string) (*SQLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}
	db.Exec("PRAGMA journal_mode = WAL")
	return newSQLSink(db)
}

// OpenPostgres connects to the database at dsn
func OpenPostgres(dsn string) (*SQLSink, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return newSQLSink(db)
}

func newSQLSink(db *sqlx.DB) (*SQLSink, error) {
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &SQLSink{db: db}, nil
}

// Record stores rec. Recording the same id twice keeps the first copy.
func (s *SQLSink) Record(ctx context.Context, rec models.AuditRecord) error {
	oldValue, err := json.Marshal(rec.OldValue)
	if err != nil {
		return fmt.Errorf("encode old value: %w", err)
	}
	newValue, err := json.Marshal(rec.NewValue)
	if err != nil {
		return fmt.Errorf("encode new value: %w", err)
	}

	row := auditRow{
		ID:          rec.ID,
		Rule:        string(rec.Rule),
		Action:      string(rec.Action),
		Field:       rec.Field,
		OldValue:    string(oldValue),
		NewValue:    string(newValue),
		Explanation: rec.Explanation,
		Escalated:   rec.Escalated,
		CommittedAt: rec.CommittedAt.UTC(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO audit_records (id, rule, action, field, old_value, new_value,
			explanation, escalated, committed_at)
		VALUES (:id, :rule, :action, :field, :old_value, :new_value,
			:explanation, :escalated, :committed_at)
		ON CONFLICT (id) DO NOTHING
	`, row)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// List returns the newest limit records, oldest first
func (s *SQLSink) List(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	query := `SELECT id, rule, action, field, old_value, new_value, explanation, escalated, committed_at
		FROM audit_records ORDER BY committed_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}

	recs := make([]models.AuditRecord, len(rows))
	for i, row := range rows {
		rec := models.AuditRecord{
			ID:          row.ID,
			Rule:        models.RuleID(row.Rule),
			Action:      models.ActionKind(row.Action),
			Field:       row.Field,
			Explanation: row.Explanation,
			Escalated:   row.Escalated,
			CommittedAt: row.CommittedAt.UTC(),
		}
		if err := json.Unmarshal([]byte(row.OldValue), &rec.OldValue); err != nil {
			return nil, fmt.Errorf("decode audit record %s: %w", row.ID, err)
		}
		if err := json.Unmarshal([]byte(row.NewValue), &rec.NewValue); err != nil {
			return nil, fmt.Errorf("decode audit record %s: %w", row.ID, err)
		}
		recs[len(rows)-1-i] = rec
	}
	return recs, nil
}

// Close closes the database connection
func (s *SQLSink) Close() error {
	return s.db.Close()
}
