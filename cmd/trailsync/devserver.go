package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/njoerd114/trailsync/internal/fakeremote"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Serve an in-memory remote hike service for local testing",
	Long: `devserver runs the hike API and an image upload endpoint in memory.
Point api_url at http://<addr>/ and images.upload_url at http://<addr>/upload.
All data is lost when it stops.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		token, _ := cmd.Flags().GetString("token")
		user, _ := cmd.Flags().GetString("user")

		ctx, stop := signalContext()
		defer stop()

		logger := newLogger(false)
		remote := fakeremote.New(logger)
		remote.AddToken(token, user)

		srv := &http.Server{
			Addr:              addr,
			Handler:           remote.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		fmt.Fprintf(cmd.OutOrStdout(), "devserver listening on %s (user %q, token %q)\n", addr, user, token)

		select {
		case err := <-errCh:
			return fmt.Errorf("devserver: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stopping devserver: %w", err)
		}
		logger.Info("devserver stopped")
		return nil
	},
}

func init() {
	devserverCmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	devserverCmd.Flags().String("token", "dev-token", "bearer token accepted by the server")
	devserverCmd.Flags().String("user", "dev-user", "user id the token maps to")
	rootCmd.AddCommand(devserverCmd)
}
