package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chatform/chatform/internal/models"
)

// JSONLSink appends records to a JSON Lines file
type JSONLSink struct {
	path string
	mu   sync.Mutex
}

// NewJSONLSink creates a sink writing to path. The file and its directory
// are created on first write.
func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{path: path}
}

// Record appends rec as one line
func (s *JSONLSink) Record(ctx context.Context, rec models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(rec)
}

// List reads the file back
func (s *JSONLSink) List(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var recs []models.AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec models.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("audit log line %d: %w", line, err)
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return tail(recs, limit), nil
}

func (s *JSONLSink) Close() error { return nil }
