package billing

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/hblackburnRedev/SmartMeter/logging"
)

// RateEntry is the tariff for a single region. The standing charge is carried
// for ledger display purposes but is never summed into the per-reading price.
type RateEntry struct {
	Region             string
	StandingChargeRate float64
	StandingChargeUnit string
	UnitChargeRate     float64
	UnitChargeUnit     string
}

// Expected columns of the rate table CSV, after the header row:
// region, period, standing charge, standing charge unit, unit rate, unit rate unit.
const rateTableColumns = 6

// RateCache holds the per-region tariff table, loaded from the source file at
// most once per process lifetime. The loaded table is immutable and safe for
// unsynchronized concurrent reads.
type RateCache struct {
	logger logging.Logger
	path   string

	once    sync.Once
	table   map[string]RateEntry
	loadErr error
}

// NewRateCache creates a rate cache backed by the CSV file at path.
// The file is not touched until the first lookup.
func NewRateCache(logger logging.Logger, path string) *RateCache {
	return &RateCache{
		logger: logging.ForComponent(logger, logging.ComponentRateCache),
		path:   path,
	}
}

// Lookup returns the tariff for region, matched case-insensitively.
// The first call loads the table; concurrent first calls are serialized so
// the underlying source is read at most once. A load failure is sticky and
// returned to every subsequent caller.
func (c *RateCache) Lookup(region string) (RateEntry, error) {
	c.once.Do(c.load)

	if c.loadErr != nil {
		return RateEntry{}, c.loadErr
	}

	entry, ok := c.table[strings.ToLower(region)]
	if !ok {
		return RateEntry{}, fmt.Errorf("%w: %q", ErrRegionNotFound, region)
	}
	return entry, nil
}

func (c *RateCache) load() {
	rateTableLoads.Inc()

	f, err := os.Open(c.path)
	if err != nil {
		c.loadErr = fmt.Errorf("failed to open rate table: %w", err)
		c.logger.Error().Err(err).Str(logging.FieldPath, c.path).Msg("rate table load failed")
		return
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = rateTableColumns

	records, err := reader.ReadAll()
	if err != nil {
		c.loadErr = fmt.Errorf("failed to parse rate table: %w", err)
		c.logger.Error().Err(err).Str(logging.FieldPath, c.path).Msg("rate table parse failed")
		return
	}
	if len(records) == 0 {
		c.loadErr = fmt.Errorf("rate table %s is empty", c.path)
		return
	}

	// First row is the header.
	table := make(map[string]RateEntry, len(records)-1)
	for i, rec := range records[1:] {
		entry, err := parseRateRecord(rec)
		if err != nil {
			c.loadErr = fmt.Errorf("rate table row %d: %w", i+2, err)
			c.logger.Error().Err(c.loadErr).Msg("rate table parse failed")
			return
		}
		table[strings.ToLower(entry.Region)] = entry
	}

	c.table = table
	c.logger.Info().
		Str(logging.FieldPath, c.path).
		Int(logging.FieldCount, len(table)).
		Msg("rate table loaded")
}

func parseRateRecord(rec []string) (RateEntry, error) {
	region := strings.TrimSpace(rec[0])
	if region == "" {
		return RateEntry{}, fmt.Errorf("empty region")
	}

	// rec[1] is the tariff period, informational only.
	standing, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return RateEntry{}, fmt.Errorf("invalid standing charge %q: %w", rec[2], err)
	}
	unitRate, err := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
	if err != nil {
		return RateEntry{}, fmt.Errorf("invalid unit rate %q: %w", rec[4], err)
	}

	return RateEntry{
		Region:             region,
		StandingChargeRate: standing,
		StandingChargeUnit: strings.TrimSpace(rec[3]),
		UnitChargeRate:     unitRate,
		UnitChargeUnit:     strings.TrimSpace(rec[5]),
	}, nil
}
