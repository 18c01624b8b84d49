package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatform/chatform/internal/models"
)

func sampleRecords() []models.AuditRecord {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	update := NewRecord(models.RuleEmployerVerification, models.ActionUpdate, "companyName")
	update.OldValue, update.NewValue = "SCB Bankk", "SCB Bank"
	update.CommittedAt = base

	justify := NewRecord(models.RuleDistance, models.ActionJustify, "companyAddress")
	justify.Explanation = "user works remote"
	justify.CommittedAt = base.Add(time.Minute)

	escalated := NewRecord(models.RuleSourceOfFunds, models.ActionJustify, "sourceOfFunds")
	escalated.Explanation = "I sell paintings. Sometimes."
	escalated.Escalated = true
	escalated.CommittedAt = base.Add(2 * time.Minute)

	return []models.AuditRecord{update, justify, escalated}
}

func exerciseSink(t *testing.T, sink Sink) {
	t.Helper()
	ctx := context.Background()
	recs := sampleRecords()

	for _, rec := range recs {
		require.NoError(t, sink.Record(ctx, rec))
	}

	all, err := sink.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, recs[0].ID, all[0].ID)
	assert.Equal(t, "SCB Bankk", all[0].OldValue)
	assert.True(t, all[2].Escalated)

	last, err := sink.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, recs[1].ID, last[0].ID)
	assert.Equal(t, recs[2].ID, last[1].ID)
}

func TestBoltSink(t *testing.T) {
	sink, err := OpenBolt(filepath.Join(t.TempDir(), "audit", "audit.db"))
	require.NoError(t, err)
	defer sink.Close()
	exerciseSink(t, sink)
}

func TestJSONLSink(t *testing.T) {
	sink := NewJSONLSink(filepath.Join(t.TempDir(), "audit", "audit.jsonl"))
	defer sink.Close()

	empty, err := sink.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	exerciseSink(t, sink)
}

func TestSQLiteSink(t *testing.T) {
	sink, err := OpenSQLite(filepath.Join(t.TempDir(), "audit", "audit.sqlite"))
	require.NoError(t, err)
	defer sink.Close()
	exerciseSink(t, sink)

	// a replayed record is stored once
	rec := sampleRecords()[0]
	rec.ID = "replayed"
	require.NoError(t, sink.Record(context.Background(), rec))
	require.NoError(t, sink.Record(context.Background(), rec))
	all, err := sink.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPostgresSink(t *testing.T) {
	dsn := os.Getenv("CHATFORM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHATFORM_TEST_POSTGRES_DSN not set")
	}
	sink, err := OpenPostgres(dsn)
	require.NoError(t, err)
	defer sink.Close()
	_, err = sink.db.Exec("DELETE FROM audit_records")
	require.NoError(t, err)
	exerciseSink(t, sink)
}

func TestOpen(t *testing.T) {
	sink, err := Open("bolt", "")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, sink)

	sink, err = Open("jsonl", filepath.Join(t.TempDir(), "a.jsonl"))
	require.NoError(t, err)
	assert.IsType(t, &JSONLSink{}, sink)

	sink, err = Open("sqlite", filepath.Join(t.TempDir(), "a.sqlite"))
	require.NoError(t, err)
	assert.IsType(t, &SQLSink{}, sink)
	require.NoError(t, sink.Close())

	_, err = Open("xml", filepath.Join(t.TempDir(), "a.xml"))
	assert.Error(t, err)
}

func TestNewRecord(t *testing.T) {
	a := NewRecord(models.RuleDistance, models.ActionJustify, "companyAddress")
	b := NewRecord(models.RuleDistance, models.ActionJustify, "companyAddress")
	assert.NotEqual(t, a.ID, b.ID)
	assert.WithinDuration(t, time.Now(), a.CommittedAt, time.Minute)
}
