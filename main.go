package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hblackburnRedev/SmartMeter/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smartmeter",
		Short: "Smart meter telemetry server",
		Long: `Telemetry-ingestion server for smart electricity meters.

Meters connect over a persistent WebSocket channel, register once, then
repeatedly submit usage readings and receive computed costs. The server
asynchronously pushes grid status alerts to all connected meters.`,
	}

	rootCmd.AddCommand(cmd.ServerCmd())
	rootCmd.AddCommand(cmd.VersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
