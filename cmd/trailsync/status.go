package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/njoerd114/trailsync/internal/setup"
)

func init() {
	rootCmd.AddCommand(statusCmd, setupCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local sync statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.engine.Status(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "trailsync status")
		fmt.Fprintln(w, "────────────────")
		fmt.Fprintf(w, "  Hikes:     %s\n", humanize.Comma(int64(snap.TotalHikes)))
		fmt.Fprintf(w, "  Synced:    %s (%d%%)\n", humanize.Comma(int64(snap.SyncedHikes)), snap.SyncPercentage)
		fmt.Fprintf(w, "  Offline:   %s\n", humanize.Comma(int64(snap.OfflineHikes)))
		fmt.Fprintf(w, "  Remote:    %s\n", a.cfg.APIURL)
		fmt.Fprintf(w, "  Config:    %s\n", a.cfgPath)
		if info, err := os.Stat(a.dbPath); err == nil {
			fmt.Fprintf(w, "  Database:  %s (%s)\n", a.dbPath, humanize.Bytes(uint64(info.Size())))
		} else {
			fmt.Fprintf(w, "  Database:  %s\n", a.dbPath)
		}
		if _, err := a.token(); err != nil {
			fmt.Fprintf(w, "  Token:     missing (set token or TRAILSYNC_TOKEN)\n")
		}
		return nil
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive first-run wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		cfgPath, err := configPath()
		if err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
		wiz := setup.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout(), cfgPath, newLogger(false))
		return wiz.Run(ctx)
	},
}
