package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	syncp "github.com/njoerd114/trailsync/internal/sync"
)

func init() {
	for _, op := range []syncp.Op{syncp.OpUpload, syncp.OpDownload} {
		rootCmd.AddCommand(opCommand(op))
	}
	rootCmd.AddCommand(syncCmd, daemonCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// opCommand builds the upload or download command. Both run the operation on
// the engine's worker goroutine and print its events as they arrive.
func opCommand(op syncp.Op) *cobra.Command {
	short := map[syncp.Op]string{
		syncp.OpUpload:   "Push new, edited and deleted records to the remote service",
		syncp.OpDownload: "Pull records created on other devices",
	}[op]

	return &cobra.Command{
		Use:   op.String(),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.token()
			if err != nil {
				return err
			}
			events, err := a.engine.Start(ctx, op, token)
			if err != nil {
				return err
			}

			show := eventPrinter(cmd.OutOrStdout())
			var runErr error
			for ev := range events {
				show(ev)
				if ev.Kind == syncp.EventError {
					runErr = ev.Err
				}
			}
			return runErr
		},
	}
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload, then download",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		token, err := a.token()
		if err != nil {
			return err
		}
		_, _, err = a.engine.SyncOnce(ctx, token, eventPrinter(cmd.OutOrStdout()))
		return err
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync every poll_interval until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.token(); err != nil {
			return err
		}
		a.log.Info("daemon starting", "api_url", a.cfg.APIURL, "poll_interval", a.cfg.PollInterval)
		if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sync engine: %w", err)
		}
		a.log.Info("shutdown complete")
		return nil
	},
}

// eventPrinter renders run events as progress lines on w.
func eventPrinter(w io.Writer) syncp.Sink {
	return func(ev syncp.Event) {
		switch ev.Kind {
		case syncp.EventStart:
			fmt.Fprintf(w, "%s: %d record(s)\n", ev.Op, ev.Total)
		case syncp.EventProgress:
			fmt.Fprintf(w, "  [%d/%d]\n", ev.Done, ev.Total)
		case syncp.EventSuccess:
			switch {
			case ev.Upload != nil:
				r := ev.Upload
				fmt.Fprintf(w, "✓ upload: %d succeeded, %d failed of %d (%d ms)\n",
					r.Succeeded, r.Failed, r.Total, r.DurationMs())
			case ev.Download != nil:
				r := ev.Download
				fmt.Fprintf(w, "✓ download: %d inserted, %d already present, %d failed of %d fetched (%d ms)\n",
					r.Inserted, r.SkippedDuplicate, r.Failed, r.TotalFetched, r.DurationMs())
			}
		case syncp.EventError:
			fmt.Fprintf(w, "✗ %s failed: %v\n", ev.Op, ev.Err)
		}
	}
}
