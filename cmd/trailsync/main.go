// trailsync keeps a local hike log in step with a remote hike service.
// Hikes and observations are recorded offline in SQLite and reconciled with
// the service on demand or on a schedule.
//
// Usage:
//
//	trailsync setup                   # interactive first-run wizard
//	trailsync upload | download | sync
//	trailsync status                  # local sync statistics
//	trailsync daemon                  # periodic sync until interrupted
//	trailsync hike list|add|edit|rm   # manage local hikes
//	trailsync devserver               # in-memory remote for local testing
//	trailsync version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "trailsync",
	Short: "Offline-first hike log with cloud sync",
	Long: `trailsync records hikes and observations locally and reconciles them
with a remote hike service:

  upload    pushes new, edited and deleted records
  download  pulls records created on other devices
  sync      does both`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config.yaml (default ~/.config/trailsync/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// TRAILSYNC_CONFIG, TRAILSYNC_TOKEN, TRAILSYNC_VERBOSE
	viper.SetEnvPrefix("TRAILSYNC")
	_ = viper.BindEnv("config")
	_ = viper.BindEnv("token")
	_ = viper.BindEnv("verbose")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "trailsync", version)
		},
	})
}
