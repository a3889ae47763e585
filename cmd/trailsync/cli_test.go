package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/njoerd114/trailsync/internal/model"
	syncp "github.com/njoerd114/trailsync/internal/sync"
)

func hikeFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("name", "", "")
	addHikeFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return fs
}

func TestApplyHikeFlags_OnlyChangedFields(t *testing.T) {
	h := model.Hike{
		Name:        "Old",
		Location:    "Keep me",
		Difficulty:  model.DifficultyHard,
		Privacy:     model.PrivacyPublic,
		Description: "unchanged",
	}
	fs := hikeFlags(t, "--name", "New", "--length", "7.5", "--difficulty", "medium", "--parking")
	if err := applyHikeFlags(fs, &h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Name != "New" || h.LengthKm != 7.5 || h.Difficulty != model.DifficultyMedium || !h.ParkingAvailable {
		t.Errorf("hike = %+v", h)
	}
	if h.Location != "Keep me" || h.Privacy != model.PrivacyPublic || h.Description != "unchanged" {
		t.Errorf("untouched fields changed: %+v", h)
	}
}

func TestApplyHikeFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing name", []string{"--location", "Nowhere"}},
		{"bad difficulty", []string{"--name", "X", "--difficulty", "extreme"}},
		{"negative length", []string{"--name", "X", "--length=-1"}},
		{"half a coordinate", []string{"--name", "X", "--lat", "56.8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := model.Hike{Difficulty: model.DifficultyEasy}
			if err := applyHikeFlags(hikeFlags(t, tt.args...), &h); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-3", "abc"} {
		if _, err := parseID(bad); err == nil {
			t.Errorf("parseID(%q) should fail", bad)
		}
	}
}

func TestEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	show := eventPrinter(&buf)
	show(syncp.Event{Op: syncp.OpUpload, Kind: syncp.EventStart, Total: 2})
	show(syncp.Event{Op: syncp.OpUpload, Kind: syncp.EventProgress, Total: 2, Done: 1})
	show(syncp.Event{Op: syncp.OpUpload, Kind: syncp.EventSuccess, Upload: &model.UploadResult{
		Total: 2, Succeeded: 1, Failed: 1, Duration: 1500 * time.Millisecond,
	}})
	show(syncp.Event{Op: syncp.OpDownload, Kind: syncp.EventError, Err: errors.New("offline")})

	out := buf.String()
	for _, want := range []string{
		"upload: 2 record(s)",
		"[1/2]",
		"1 succeeded, 1 failed of 2 (1500 ms)",
		"download failed: offline",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
