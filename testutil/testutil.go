// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hblackburnRedev/SmartMeter/logging"
)

// Well-known fixture values used across test packages.
const (
	TestAPIKey   = "test-api-key"
	TestClientID = "f5c1c2a8-7b42-4a6e-9a3d-1c2e3f4a5b6c"
)

// RateTableHeader is the header row of a rate table fixture.
const RateTableHeader = "Region,Period,StandingCharge,StandingChargeUnit,UnitRate,UnitRateUnit"

// DefaultRateRows are the tariff rows most tests use.
var DefaultRateRows = []string{
	"London,Annual,0.22,GBP/day,0.25,GBP/kWh",
	"Yorkshire,Annual,0.20,GBP/day,0.15,GBP/kWh",
	"Scotland,Annual,0.19,GBP/day,0.12,GBP/kWh",
}

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() logging.Logger {
	return zerolog.Nop()
}

// WriteRateTable writes a headered rate table CSV with the given rows into a
// temp directory and returns its path.
func WriteRateTable(t *testing.T, rows ...string) string {
	t.Helper()

	if len(rows) == 0 {
		rows = DefaultRateRows
	}

	path := filepath.Join(t.TempDir(), "rates.csv")
	content := RateTableHeader + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
