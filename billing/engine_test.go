package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hblackburnRedev/SmartMeter/testutil"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := testutil.NewTestLogger()
	rates := NewRateCache(logger, testutil.WriteRateTable(t))
	ledger := NewLedgerStore(logger, t.TempDir())
	return NewEngine(logger, rates, ledger)
}

func TestCalculatePrice(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		region string
		usage  float64
		want   float64
	}{
		{name: "london", region: "London", usage: 100, want: 25},
		{name: "case insensitive region", region: "london", usage: 100, want: 25},
		{name: "yorkshire", region: "Yorkshire", usage: 200, want: 30},
		{name: "zero usage", region: "London", usage: 0, want: 0},
		{name: "fractional usage", region: "Scotland", usage: 10.5, want: 1.26},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.CalculatePrice(ctx, tc.region, tc.usage, "c1")
			require.NoError(t, err)
			require.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestCalculatePriceUnknownRegion(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.CalculatePrice(context.Background(), "Atlantis", 100, "c1")
	require.ErrorIs(t, err, ErrRegionNotFound)

	// A failed calculation must not leave a ledger entry behind.
	entries, err := engine.GetClientReadingsForDate("c1", time.Now().UTC())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCalculatePriceNegativeUsage(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.CalculatePrice(context.Background(), "London", -1, "c1")
	require.ErrorIs(t, err, ErrNegativeUsage)

	entries, err := engine.GetClientReadingsForDate("c1", time.Now().UTC())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCalculatePriceRecordsLedgerEntries(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	usages := []float64{10, 20, 30, 40, 50}
	for _, u := range usages {
		_, err := engine.CalculatePrice(ctx, "London", u, "c1")
		require.NoError(t, err)
	}

	entries, err := engine.GetClientReadingsForDate("c1", time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, entries, len(usages))

	for i, u := range usages {
		require.Equal(t, u, entries[i].Reading)
		require.Equal(t, 0.25, entries[i].UnitPrice)
		require.InDelta(t, u*0.25, entries[i].Total, 1e-9)
	}
}

func TestCalculatePriceCancelledContext(t *testing.T) {
	engine := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.CalculatePrice(ctx, "London", 100, "c1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetClientReadingsForDateNoActivity(t *testing.T) {
	engine := newTestEngine(t)

	entries, err := engine.GetClientReadingsForDate("c1", time.Now().UTC())
	require.NoError(t, err)
	require.Empty(t, entries)
}
