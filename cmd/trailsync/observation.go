package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/njoerd114/trailsync/internal/model"
)

var observationCmd = &cobra.Command{
	Use:     "observation",
	Aliases: []string{"obs"},
	Short:   "Manage observations attached to a hike",
}

func init() {
	fs := observationAddCmd.Flags()
	fs.String("title", "", "what was observed (required)")
	fs.String("time", "", "time of the observation (HH:mm)")
	fs.String("comments", "", "free-text comments")
	fs.String("image", "", "path to a photo to upload with the observation")
	fs.Float64("lat", 0, "latitude")
	fs.Float64("lng", 0, "longitude")

	observationCmd.AddCommand(observationListCmd, observationAddCmd, observationRmCmd)
	rootCmd.AddCommand(observationCmd)
}

var observationListCmd = &cobra.Command{
	Use:   "list <hike-id>",
	Short: "List the observations of a hike",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hikeID, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		obs, err := a.store.ObservationsForHike(cmd.Context(), hikeID)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tTIME\tSTATUS\tSTATE\tIMAGE")
		for _, o := range obs {
			image := o.ImageRef
			if image == "" {
				image = o.ImageURL
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", o.ID, o.Title, o.Time, o.Status, o.SyncState, image)
		}
		return tw.Flush()
	},
}

var observationAddCmd = &cobra.Command{
	Use:   "add <hike-id>",
	Short: "Attach an observation to a hike",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hikeID, err := parseID(args[0])
		if err != nil {
			return err
		}
		fs := cmd.Flags()
		o := model.Observation{HikeID: hikeID, Status: model.StatusOpen}
		o.Title, _ = fs.GetString("title")
		o.Time, _ = fs.GetString("time")
		o.Comments, _ = fs.GetString("comments")
		if img, _ := fs.GetString("image"); img != "" {
			if o.ImageRef, err = filepath.Abs(img); err != nil {
				return fmt.Errorf("resolving image path: %w", err)
			}
		}
		if fs.Changed("lat") && fs.Changed("lng") {
			lat, _ := fs.GetFloat64("lat")
			lng, _ := fs.GetFloat64("lng")
			o.Latitude, o.Longitude = &lat, &lng
		}
		if err := o.Validate(); err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		parent, err := a.store.HikeByID(cmd.Context(), hikeID)
		if err != nil {
			return err
		}
		if parent == nil {
			return fmt.Errorf("hike %d not found", hikeID)
		}
		if err := a.store.InsertObservation(cmd.Context(), &o); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Observation %d added to %q (pending upload)\n", o.ID, parent.Name)
		return nil
	},
}

var observationRmCmd = &cobra.Command{
	Use:   "rm <observation-id>",
	Short: "Delete a local observation",
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

		if err := a.store.DeleteObservation(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Observation %d deleted\n", id)
		return nil
	},
}
