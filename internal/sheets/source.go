// Package sheets loads published spreadsheet CSV exports (employer allowlist,
// blacklist) behind a TTL cache.
package sheets

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chatform/chatform/internal/cache"
	"github.com/chatform/chatform/internal/metrics"
)

// Row is one CSV record keyed by trimmed header name
type Row map[string]string

// Get returns the value of column. A header that differs only in case
// matches when no header matches exactly.
func (r Row) Get(column string) string {
	if v, ok := r[column]; ok {
		return v
	}
	for k, v := range r {
		if strings.EqualFold(k, column) {
			return v
		}
	}
	return ""
}

// Source is a CSV sheet fetched over HTTP and cached for TTL.
// Safe for concurrent use; concurrent refreshes share one fetch.
type Source struct {
	name   string
	url    string
	ttl    time.Duration
	store  cache.Store
	client *http.Client
	group  singleflight.Group
	logger *slog.Logger

	mu    sync.RWMutex
	stale []Row // last successful fetch, served when a refresh fails
}

// NewSource creates a sheet source. An empty url yields an empty sheet.
func NewSource(name, url string, ttl time.Duration, store cache.Store) *Source {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &Source{
		name:   name,
		url:    url,
		ttl:    ttl,
		store:  store,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: slog.Default().With("component", "sheets", "sheet", name),
	}
}

// WithHTTPClient overrides the HTTP client
func (s *Source) WithHTTPClient(client *http.Client) *Source {
	s.client = client
	return s
}

// Name returns the sheet name
func (s *Source) Name() string { return s.name }

// Configured reports whether a URL is set
func (s *Source) Configured() bool { return s.url != "" }

// Rows returns the sheet contents, fetching when the cached copy expired.
// When a refresh fails the last good copy is returned along with the error.
func (s *Source) Rows(ctx context.Context) ([]Row, error) {
	if s.url == "" {
		return nil, nil
	}

	key := cache.Key("sheet", s.name)
	var rows []Row
	hit, err := s.store.Get(ctx, key, &rows)
	if err != nil {
		s.logger.Warn("sheet cache read failed", "error", err)
	}
	if hit {
		return rows, nil
	}

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		var cached []Row
		if hit, _ := s.store.Get(ctx, key, &cached); hit {
			return cached, nil
		}
		fetched, err := s.fetch(ctx)
		metrics.RecordSheetRefresh(s.name, err)
		if err != nil {
			return nil, err
		}
		if err := s.store.SetWithTTL(ctx, key, fetched, s.ttl); err != nil {
			s.logger.Warn("sheet cache write failed", "error", err)
		}
		s.mu.Lock()
		s.stale = fetched
		s.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		s.mu.RLock()
		stale := s.stale
		s.mu.RUnlock()
		s.logger.Warn("sheet refresh failed", "error", err, "stale_rows", len(stale))
		return stale, err
	}

	rows = v.([]Row)
	s.logger.Debug("sheet loaded", "rows", len(rows), "shared", shared)
	return rows, nil
}

// Column returns the set of values of column, transformed by normalize.
// The column name is matched as in Row.Get. Empty values are skipped.
func (s *Source) Column(ctx context.Context, column string, normalize func(string) string) (map[string]struct{}, error) {
	rows, err := s.Rows(ctx)
	set := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		v := row.Get(column)
		if normalize != nil {
			v = normalize(v)
		}
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set, err
}

// Invalidate drops the cached copy so the next read refetches
func (s *Source) Invalidate(ctx context.Context) error {
	return s.store.Delete(ctx, cache.Key("sheet", s.name))
}

func (s *Source) fetch(ctx context.Context) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s sheet request: %w", s.name, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s sheet: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s sheet: status %d", s.name, resp.StatusCode)
	}

	return ParseCSV(resp.Body)
}

// ParseCSV reads a CSV document whose first record is the header.
// Header names and values are trimmed.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		row := make(Row, len(header))
		for i, h := range header {
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
