package billing

import "errors"

// Domain errors surfaced to the protocol engine. These are permanent: the
// caller maps them to connection closure, never retries.
var (
	// ErrRegionNotFound indicates the requested region has no tariff entry.
	ErrRegionNotFound = errors.New("region not found")

	// ErrNegativeUsage indicates a reading with a negative usage quantity.
	ErrNegativeUsage = errors.New("usage must be non-negative")
)
