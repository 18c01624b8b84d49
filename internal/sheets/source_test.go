package sheets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatform/chatform/internal/cache"
)

const allowlistCSV = "\ufeff company_name ,country\nSCB Bank, TH\n  PTT Public Company Limited ,TH\n,TH\n"

func TestParseCSV(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(allowlistCSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "SCB Bank", rows[0]["company_name"])
	assert.Equal(t, "PTT Public Company Limited", rows[1]["company_name"])
	assert.Equal(t, "TH", rows[1]["country"])

	rows, err = ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRowGet(t *testing.T) {
	row := Row{"First_name": "Somchai", "first_name": "other", "COMPANY_NAME": "SCB Bank"}
	assert.Equal(t, "Somchai", row.Get("First_name"))
	assert.Equal(t, "other", row.Get("first_name"))
	assert.Equal(t, "SCB Bank", row.Get("company_name"))
	assert.Empty(t, row.Get("country"))
}

func TestSource_ColumnIgnoresHeaderCase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Company_Name,Country\nSCB Bank,TH\n"))
	}))
	defer srv.Close()

	src := NewSource("allowlist", srv.URL, time.Hour, cache.NewMemoryStore())
	set, err := src.Column(context.Background(), "company_name", strings.ToLower)
	require.NoError(t, err)
	assert.Contains(t, set, "scb bank")
}

func TestSource_CachesAndDeduplicates(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(allowlistCSV))
	}))
	defer srv.Close()

	src := NewSource("allowlist", srv.URL, time.Hour, cache.NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := src.Column(context.Background(), "company_name", strings.ToLower)
			assert.NoError(t, err)
			assert.Len(t, set, 2)
		}()
	}
	wg.Wait()

	set, err := src.Column(context.Background(), "company_name", strings.ToLower)
	require.NoError(t, err)
	assert.Contains(t, set, "scb bank")
	assert.Equal(t, int32(1), hits.Load(), "concurrent readers share one fetch and later reads hit the cache")
}

func TestSource_ServesStaleOnFailure(t *testing.T) {
	fail := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(allowlistCSV))
	}))
	defer srv.Close()

	ctx := context.Background()
	src := NewSource("allowlist", srv.URL, time.Hour, cache.NewMemoryStore())
	rows, err := src.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	fail.Store(true)
	require.NoError(t, src.Invalidate(ctx))

	rows, err = src.Rows(ctx)
	assert.Error(t, err)
	assert.Len(t, rows, 3, "last good copy is still served")
}

func TestSource_Unconfigured(t *testing.T) {
	src := NewSource("blacklist", "", 0, nil)
	assert.False(t, src.Configured())

	rows, err := src.Rows(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, rows)
}
