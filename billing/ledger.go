package billing

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/hblackburnRedev/SmartMeter/logging"
)

// ledgerDateLayout is the per-day ledger file name format (DD-MM-YYYY.csv).
const ledgerDateLayout = "02-01-2006"

// LedgerEntry is one durable record of a billed reading.
type LedgerEntry struct {
	Reading   float64
	UnitPrice float64
	Total     float64
	Timestamp time.Time
}

// LedgerStore appends billed readings to per-client, per-calendar-day CSV
// files under the readings root. Files are headerless, one row per reading:
// reading, unit price, total, timestamp. Appends for the same client are
// serialized so rows from concurrent connections never interleave.
type LedgerStore struct {
	logger logging.Logger
	root   string

	// Per-client append locks, created on first use.
	locks *xsync.Map[string, *sync.Mutex]
}

// NewLedgerStore creates a ledger store rooted at the readings directory.
func NewLedgerStore(logger logging.Logger, root string) *LedgerStore {
	return &LedgerStore{
		logger: logging.ForComponent(logger, logging.ComponentLedger),
		root:   root,
		locks:  xsync.NewMap[string, *sync.Mutex](),
	}
}

// Append durably records one entry in the client's ledger for the entry's
// calendar day. The file is opened in append mode so prior rows are never
// rewritten.
func (s *LedgerStore) Append(clientID string, entry LedgerEntry) error {
	start := time.Now()

	mu, _ := s.locks.LoadOrStore(clientID, &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(s.root, clientID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create client directory: %w", err)
	}

	path := filepath.Join(dir, entry.Timestamp.Format(ledgerDateLayout)+".csv")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger file: %w", err)
	}

	w := csv.NewWriter(f)
	row := []string{
		formatFloat(entry.Reading),
		formatFloat(entry.UnitPrice),
		formatFloat(entry.Total),
		entry.Timestamp.UTC().Format(time.RFC3339),
	}
	if err := w.Write(row); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush ledger row: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close ledger file: %w", err)
	}

	ledgerAppendDuration.Observe(time.Since(start).Seconds())
	return nil
}

// ReadForDate returns all ledger entries for the client on the given calendar
// day, in append order. A client/day with no prior activity yields an empty
// slice, not an error.
func (s *LedgerStore) ReadForDate(clientID string, date time.Time) ([]LedgerEntry, error) {
	path := filepath.Join(s.root, clientID, date.Format(ledgerDateLayout)+".csv")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 4

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger file %s: %w", path, err)
	}

	entries := make([]LedgerEntry, 0, len(records))
	for i, rec := range records {
		entry, err := parseLedgerRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("ledger file %s row %d: %w", path, i+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseLedgerRecord(rec []string) (LedgerEntry, error) {
	reading, err := strconv.ParseFloat(rec[0], 64)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("invalid reading %q: %w", rec[0], err)
	}
	unitPrice, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("invalid unit price %q: %w", rec[1], err)
	}
	total, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("invalid total %q: %w", rec[2], err)
	}
	ts, err := time.Parse(time.RFC3339, rec[3])
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("invalid timestamp %q: %w", rec[3], err)
	}

	return LedgerEntry{
		Reading:   reading,
		UnitPrice: unitPrice,
		Total:     total,
		Timestamp: ts,
	}, nil
}

// formatFloat renders a value so it round-trips through ParseFloat exactly.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
