package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/njoerd114/trailsync/internal/model"
)

var hikeCmd = &cobra.Command{
	Use:   "hike",
	Short: "Manage local hikes",
}

func init() {
	hikeAddCmd.Flags().String("name", "", "hike name (required)")
	addHikeFlags(hikeAddCmd.Flags())
	addHikeFlags(hikeEditCmd.Flags())
	hikeEditCmd.Flags().String("name", "", "hike name")

	hikeCmd.AddCommand(hikeListCmd, hikeAddCmd, hikeEditCmd, hikeRmCmd)
	rootCmd.AddCommand(hikeCmd)
}

func addHikeFlags(fs *pflag.FlagSet) {
	fs.String("location", "", "where the hike took place")
	fs.String("date", "", "date (YYYY-MM-DD)")
	fs.String("time", "", "start time (HH:mm)")
	fs.Float64("length", 0, "length in km")
	fs.String("difficulty", "Easy", "Easy, Medium or Hard")
	fs.Bool("parking", false, "parking available")
	fs.String("description", "", "free-text description")
	fs.String("privacy", "Private", "Private or Public")
	fs.Float64("lat", 0, "latitude")
	fs.Float64("lng", 0, "longitude")
}

// applyHikeFlags copies every flag the user set onto h.
func applyHikeFlags(fs *pflag.FlagSet, h *model.Hike) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "name":
			h.Name = f.Value.String()
		case "location":
			h.Location = f.Value.String()
		case "date":
			h.Date = f.Value.String()
		case "time":
			h.Time = f.Value.String()
		case "length":
			h.LengthKm, err = fs.GetFloat64("length")
		case "difficulty":
			h.Difficulty, err = model.ParseDifficulty(f.Value.String())
		case "parking":
			h.ParkingAvailable, err = fs.GetBool("parking")
		case "description":
			h.Description = f.Value.String()
		case "privacy":
			h.Privacy = model.NormalizePrivacy(f.Value.String())
		case "lat":
			var v float64
			v, err = fs.GetFloat64("lat")
			h.Latitude = &v
		case "lng":
			var v float64
			v, err = fs.GetFloat64("lng")
			h.Longitude = &v
		}
	})
	if err != nil {
		return err
	}
	return h.Validate()
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

var hikeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local hikes, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		hikes, err := a.store.AllHikes(cmd.Context())
		if err != nil {
			return err
		}
		if len(hikes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No hikes recorded yet.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tDATE\tKM\tDIFFICULTY\tSTATE\tCREATED")
		for _, h := range hikes {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%s\t%s\t%s\n",
				h.ID, h.Name, h.Date, h.LengthKm, h.Difficulty, h.SyncState, humanize.Time(h.CreatedAt))
		}
		return tw.Flush()
	},
}

var hikeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a new hike",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		h := model.Hike{Difficulty: model.DifficultyEasy, Privacy: model.PrivacyPrivate}
		if err := applyHikeFlags(cmd.Flags(), &h); err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.InsertHike(cmd.Context(), &h); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Hike %d recorded (pending upload)\n", h.ID)
		return nil
	},
}

var hikeEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change fields of a hike; only the given flags are updated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		h, err := a.store.HikeByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("hike %d not found", id)
		}
		if err := applyHikeFlags(cmd.Flags(), h); err != nil {
			return err
		}
		reverted, err := a.store.EditHike(cmd.Context(), h)
		if err != nil {
			return err
		}
		if reverted {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Hike %d updated (change pending upload)\n", id)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Hike %d updated\n", id)
		}
		return nil
	},
}

var hikeRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a hike and its observations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DeleteHike(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Hike %d deleted\n", id)
		return nil
	},
}
