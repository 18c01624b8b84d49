package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sheetRows struct {
	Names []string `json:"names"`
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var out sheetRows
	hit, err := store.Get(ctx, "missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	in := sheetRows{Names: []string{"scb bank", "ptt"}}
	require.NoError(t, store.SetWithTTL(ctx, Key("sheet", "allowlist"), in, time.Minute))

	hit, err = store.Get(ctx, Key("sheet", "allowlist"), &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in, out)

	// Mutating the read copy must not affect the cache
	out.Names[0] = "changed"
	var again sheetRows
	_, err = store.Get(ctx, Key("sheet", "allowlist"), &again)
	require.NoError(t, err)
	assert.Equal(t, "scb bank", again.Names[0])

	require.NoError(t, store.Delete(ctx, Key("sheet", "allowlist")))
	hit, _ = store.Get(ctx, Key("sheet", "allowlist"), &out)
	assert.False(t, hit)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SetWithTTL(ctx, "short", sheetRows{}, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	var out sheetRows
	hit, err := store.Get(ctx, "short", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestNew_FallsBackToMemory(t *testing.T) {
	store := New(context.Background(), "")
	_, ok := store.(*MemoryStore)
	assert.True(t, ok)

	store = New(context.Background(), "not a url")
	_, ok = store.(*MemoryStore)
	assert.True(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "chatform:sheet:blacklist", Key("sheet", "blacklist"))
}
