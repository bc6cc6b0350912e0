package billing

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hblackburnRedev/SmartMeter/testutil"
)

func TestLedgerAppendAndReadBack(t *testing.T) {
	root := t.TempDir()
	store := NewLedgerStore(testutil.NewTestLogger(), root)

	now := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	entries := []LedgerEntry{
		{Reading: 100, UnitPrice: 0.25, Total: 25, Timestamp: now},
		{Reading: 50.5, UnitPrice: 0.25, Total: 12.625, Timestamp: now.Add(time.Minute)},
		{Reading: 0, UnitPrice: 0.25, Total: 0, Timestamp: now.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, store.Append("client-1", e))
	}

	got, err := store.ReadForDate("client-1", now)
	require.NoError(t, err)
	require.Len(t, got, len(entries))
	for i, e := range entries {
		require.Equal(t, e.Reading, got[i].Reading)
		require.Equal(t, e.UnitPrice, got[i].UnitPrice)
		require.Equal(t, e.Total, got[i].Total)
		require.True(t, e.Timestamp.Equal(got[i].Timestamp))
	}
}

func TestLedgerFileNameAndLayout(t *testing.T) {
	root := t.TempDir()
	store := NewLedgerStore(testutil.NewTestLogger(), root)

	ts := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append("client-1", LedgerEntry{Reading: 10, UnitPrice: 0.5, Total: 5, Timestamp: ts}))

	// One subdirectory per client, one DD-MM-YYYY.csv per day, no header.
	data, err := os.ReadFile(filepath.Join(root, "client-1", "05-01-2026.csv"))
	require.NoError(t, err)
	require.Equal(t, "10,0.5,5,2026-01-05T09:00:00Z\n", string(data))
}

func TestLedgerPartitionsByDay(t *testing.T) {
	root := t.TempDir()
	store := NewLedgerStore(testutil.NewTestLogger(), root)

	day1 := time.Date(2026, 8, 28, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 29, 0, 1, 0, 0, time.UTC)
	require.NoError(t, store.Append("client-1", LedgerEntry{Reading: 1, UnitPrice: 1, Total: 1, Timestamp: day1}))
	require.NoError(t, store.Append("client-1", LedgerEntry{Reading: 2, UnitPrice: 1, Total: 2, Timestamp: day2}))

	got1, err := store.ReadForDate("client-1", day1)
	require.NoError(t, err)
	require.Len(t, got1, 1)
	require.Equal(t, 1.0, got1[0].Reading)

	got2, err := store.ReadForDate("client-1", day2)
	require.NoError(t, err)
	require.Len(t, got2, 1)
	require.Equal(t, 2.0, got2[0].Reading)
}

func TestLedgerReadMissingIsEmpty(t *testing.T) {
	store := NewLedgerStore(testutil.NewTestLogger(), t.TempDir())

	got, err := store.ReadForDate("never-seen", time.Now())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLedgerConcurrentAppendsSameClient(t *testing.T) {
	root := t.TempDir()
	store := NewLedgerStore(testutil.NewTestLogger(), root)

	now := time.Now().UTC()
	const appends = 50
	var wg sync.WaitGroup
	for i := 0; i < appends; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Append("client-1", LedgerEntry{
				Reading:   float64(i),
				UnitPrice: 0.25,
				Total:     float64(i) * 0.25,
				Timestamp: now,
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Rows never interleave: every row parses and the count is exact.
	got, err := store.ReadForDate("client-1", now)
	require.NoError(t, err)
	require.Len(t, got, appends)
}
