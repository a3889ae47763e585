package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/njoerd114/trailsync/internal/config"
	"github.com/njoerd114/trailsync/internal/gateway"
)

const (
	defaultAPIURL       = "http://localhost:8080/"
	defaultUploadPreset = "mhike_unsigned"
	verifyTimeout       = 15 * time.Second
)

// Wizard guides the user through first-run configuration.
type Wizard struct {
	prompt  *Prompter
	logger  *slog.Logger
	w       io.Writer
	cfgPath string

	// newRemote builds the gateway used to verify the connection.
	newRemote func(cfg *config.Config) HikeLister
}

// NewWizard creates a Wizard that writes its result to cfgPath.
func NewWizard(r io.Reader, w io.Writer, cfgPath string, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt:  NewPrompter(r, w),
		logger:  logger,
		w:       w,
		cfgPath: cfgPath,
		newRemote: func(cfg *config.Config) HikeLister {
			return gateway.NewClient(nil, cfg.APIURL, cfg.UserID, verifyTimeout, logger)
		},
	}
}

// Run executes the interactive setup wizard: remote connection, image
// storage, then saving the config file.
func (wiz *Wizard) Run(ctx context.Context) error {
	fmt.Fprintf(wiz.w, "\nWelcome to trailsync setup!\n")
	fmt.Fprintf(wiz.w, "This wizard connects your hike log to the remote service.\n\n")

	if _, statErr := os.Stat(wiz.cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", wiz.cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return nil
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: remote service.
	fmt.Fprintf(wiz.w, "Step 1/3: Remote Service\n")

	cfg := &config.Config{
		APIURL: wiz.prompt.String("API URL", defaultAPIURL),
		UserID: wiz.prompt.String("User ID", ""),
	}
	token := wiz.prompt.Secret("Access token")

	fmt.Fprintf(wiz.w, "  Connecting to the remote service...")
	n, err := CheckRemote(ctx, wiz.newRemote(cfg), token)
	if err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		return fmt.Errorf("cannot reach the remote service: %w\n\n  Check the URL and token, then try again", err)
	}
	fmt.Fprintf(wiz.w, " ✓ (%d hike(s) on the server)\n\n", n)

	where, err := wiz.prompt.Select("Where should the token be kept?", []string{
		"In the config file (readable only by you)",
		"Nowhere, I will set TRAILSYNC_TOKEN",
	})
	if err != nil {
		return fmt.Errorf("choosing token storage: %w", err)
	}
	if where == 0 {
		cfg.Token = token
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 2: image storage.
	fmt.Fprintf(wiz.w, "Step 2/3: Observation Images\n")

	cfg.Images.UploadURL = wiz.prompt.String("Image upload URL", strings.TrimRight(cfg.APIURL, "/")+"/upload")
	cfg.Images.UploadPreset = wiz.prompt.String("Upload preset", defaultUploadPreset)
	cfg.Images.Folder = wiz.prompt.String("Folder", "mhike_observations")
	fmt.Fprintf(wiz.w, "\n")

	// Step 3: write config.
	fmt.Fprintf(wiz.w, "Step 3/3: Save Configuration\n")

	if err := cfg.Write(wiz.cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	wiz.logger.Debug("config written", "path", wiz.cfgPath)
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", wiz.cfgPath)

	fmt.Fprintf(wiz.w, "Setup complete!\n")
	fmt.Fprintf(wiz.w, "  Upload:  trailsync upload\n")
	fmt.Fprintf(wiz.w, "  Status:  trailsync status\n")
	fmt.Fprintf(wiz.w, "  Daemon:  trailsync daemon\n\n")
	return nil
}
