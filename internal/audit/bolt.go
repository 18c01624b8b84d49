package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/chatform/chatform/internal/models"
)

const recordsBucket = "audit_records"

// BoltSink keeps records in a bbolt database, keyed by commit time so
// iteration is chronological.
type BoltSink struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path
func OpenBolt(path string) (*BoltSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open audit db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit bucket: %w", err)
	}
	return &BoltSink{db: db}, nil
}

func recordKey(rec models.AuditRecord) []byte {
	return []byte(rec.CommittedAt.UTC().Format("20060102T150405.000000000Z") + "/" + rec.ID)
}

// Record stores rec
func (s *BoltSink) Record(ctx context.Context, rec models.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).Put(recordKey(rec), data)
	})
}

// List returns the newest limit records, oldest first
func (s *BoltSink) List(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	var recs []models.AuditRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(recordsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(recs) == limit {
				break
			}
			var rec models.AuditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode audit record %s: %w", k, err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// Close closes the database
func (s *BoltSink) Close() error {
	return s.db.Close()
}
