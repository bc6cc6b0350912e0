// Package billing prices meter readings against the cached per-region tariff
// table and records every priced reading in the per-client ledger.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/hblackburnRedev/SmartMeter/logging"
)

// Engine computes reading costs and persists them to the ledger.
type Engine struct {
	logger logging.Logger
	rates  *RateCache
	ledger *LedgerStore
}

// NewEngine creates a billing engine over the given rate cache and ledger.
func NewEngine(logger logging.Logger, rates *RateCache, ledger *LedgerStore) *Engine {
	return &Engine{
		logger: logging.ForComponent(logger, logging.ComponentBilling),
		rates:  rates,
		ledger: ledger,
	}
}

// CalculatePrice prices a usage reading for the given region and appends a
// ledger entry for the client before returning. The cost is
// usage * unitChargeRate; the standing charge is carried in the tariff but
// never billed per reading. A ledger append failure fails the whole call so
// the caller never sees a price that was not durably recorded.
func (e *Engine) CalculatePrice(ctx context.Context, region string, usage float64, clientID string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if usage < 0 {
		readingsRejected.WithLabelValues(rejectReasonNegativeUsage).Inc()
		return 0, fmt.Errorf("%w: %v", ErrNegativeUsage, usage)
	}

	entry, err := e.rates.Lookup(region)
	if err != nil {
		readingsRejected.WithLabelValues(rejectReasonUnknownRegion).Inc()
		return 0, err
	}

	cost := usage * entry.UnitChargeRate

	ledgerEntry := LedgerEntry{
		Reading:   usage,
		UnitPrice: entry.UnitChargeRate,
		Total:     cost,
		Timestamp: time.Now().UTC(),
	}
	if err := e.ledger.Append(clientID, ledgerEntry); err != nil {
		readingsRejected.WithLabelValues(rejectReasonLedgerAppend).Inc()
		return 0, fmt.Errorf("failed to record reading: %w", err)
	}

	readingsBilled.WithLabelValues(entry.Region).Inc()
	e.logger.Debug().
		Str(logging.FieldClientID, clientID).
		Str(logging.FieldRegion, entry.Region).
		Float64(logging.FieldUsage, usage).
		Float64(logging.FieldTotal, cost).
		Msg("reading billed")

	return cost, nil
}

// GetClientReadingsForDate returns all ledger entries for the client on the
// given calendar day, in the order they were appended. A client/day with no
// activity yields an empty result, not an error.
func (e *Engine) GetClientReadingsForDate(clientID string, date time.Time) ([]LedgerEntry, error) {
	return e.ledger.ReadForDate(clientID, date)
}
