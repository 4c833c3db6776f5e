// Command locan enriches location-history exports with place names and
// reports where, and how far, the traveller went.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "locan",
	Short: "Location history geocoding and travel analysis",
	Long: `
locan reads a location-history export, resolves every point to a place
through a persistent geocode cache backed by Geoapify, Google, and OnWater,
and summarizes the points by city, state, country, or H3 cell.

Configuration comes from the environment (GEOAPIFY_API_KEY, GOOGLE_API_KEY,
ONWATER_API_KEY, CACHE_BACKEND, ...); flags override per run.
`,
	SilenceUsage: true,
}

func main() {
	rootCmd.Version = Version
	rootCmd.AddCommand(analyzeCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
