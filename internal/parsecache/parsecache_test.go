package parsecache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ledgerd/internal/extraction"
)

func testEntry(key, vendor string) *Entry {
	return &Entry{
		Key: key,
		Fields: extraction.FieldSet{
			Vendor:      vendor,
			TotalAmount: 120.00,
			Date:        "11/01/2025",
		},
		Method:     extraction.MethodTemplate,
		Confidence: 0.95,
		ComputedAt: time.Now().UTC(),
	}
}

func TestKey_IncludesExtractorVersion(t *testing.T) {
	k := Key("abc123")
	assert.Equal(t, "abc123:"+extraction.Version, k)
}

func TestMemoryCache_LookupMiss(t *testing.T) {
	c := NewMemoryCache()
	_, err := c.Lookup(context.Background(), Key("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCache_StoreThenLookup(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	stored, err := c.Store(ctx, testEntry(Key("abc"), "Amazon Web Services"))
	require.NoError(t, err)
	assert.Equal(t, "Amazon Web Services", stored.Fields.Vendor)

	got, err := c.Lookup(ctx, Key("abc"))
	require.NoError(t, err)
	assert.Equal(t, "Amazon Web Services", got.Fields.Vendor)
	assert.Equal(t, extraction.MethodTemplate, got.Method)
}

func TestMemoryCache_FirstWriterWins(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	first, err := c.Store(ctx, testEntry(Key("abc"), "first"))
	require.NoError(t, err)
	assert.Equal(t, "first", first.Fields.Vendor)

	// The second write on the same key loses and gets the winner back.
	second, err := c.Store(ctx, testEntry(Key("abc"), "second"))
	require.NoError(t, err)
	assert.Equal(t, "first", second.Fields.Vendor)

	got, err := c.Lookup(ctx, Key("abc"))
	require.NoError(t, err)
	assert.Equal(t, "first", got.Fields.Vendor)
}

func TestMemoryCache_ConcurrentStoreConverges(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	key := Key("contended")

	const writers = 16
	results := make([]*Entry, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := c.Store(ctx, testEntry(key, fmt.Sprintf("writer-%d", i)))
			assert.NoError(t, err)
			results[i] = e
		}(i)
	}
	wg.Wait()

	// Every writer observed the same canonical entry.
	winner := results[0].Fields.Vendor
	for _, e := range results {
		assert.Equal(t, winner, e.Fields.Vendor)
	}

	got, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, winner, got.Fields.Vendor)
}

func TestMemoryCache_ReturnedEntryIsACopy(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, err := c.Store(ctx, testEntry(Key("abc"), "vendor"))
	require.NoError(t, err)

	got, err := c.Lookup(ctx, Key("abc"))
	require.NoError(t, err)
	got.Fields.Vendor = "mutated"

	again, err := c.Lookup(ctx, Key("abc"))
	require.NoError(t, err)
	assert.Equal(t, "vendor", again.Fields.Vendor)
}
