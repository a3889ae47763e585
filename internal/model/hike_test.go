package model

import (
	"errors"
	"testing"
)

func floatPtr(f float64) *float64 { return &f }

// ---------------------------------------------------------------------------
// ParseDifficulty / NormalizeDifficulty
// ---------------------------------------------------------------------------

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		in      string
		want    Difficulty
		wantErr bool
	}{
		{"Easy", DifficultyEasy, false},
		{"medium", DifficultyMedium, false},
		{" HARD ", DifficultyHard, false},
		{"extreme", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDifficulty(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDifficulty(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDifficulty(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDifficulty_UnknownFallsBackToEasy(t *testing.T) {
	if got := NormalizeDifficulty("brutal"); got != DifficultyEasy {
		t.Errorf("NormalizeDifficulty(brutal) = %q, want Easy", got)
	}
	if got := NormalizeDifficulty("hard"); got != DifficultyHard {
		t.Errorf("NormalizeDifficulty(hard) = %q, want Hard", got)
	}
}

func TestNormalizePrivacy(t *testing.T) {
	tests := map[string]Privacy{
		"public":  PrivacyPublic,
		"Public":  PrivacyPublic,
		"private": PrivacyPrivate,
		"":        PrivacyPrivate,
		"friends": PrivacyPrivate,
	}
	for in, want := range tests {
		if got := NormalizePrivacy(in); got != want {
			t.Errorf("NormalizePrivacy(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSyncStateString(t *testing.T) {
	if SyncLocal.String() != "Local" {
		t.Errorf("SyncLocal.String() = %q", SyncLocal.String())
	}
	if SyncSynced.String() != "Synced" {
		t.Errorf("SyncSynced.String() = %q", SyncSynced.String())
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestHikeValidate(t *testing.T) {
	valid := Hike{Name: "Ridge Trail", LengthKm: 5.2, Difficulty: DifficultyMedium}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid hike: %v", err)
	}

	cases := map[string]Hike{
		"missing name":    {LengthKm: 1, Difficulty: DifficultyEasy},
		"negative length": {Name: "x", LengthKm: -1, Difficulty: DifficultyEasy},
		"bad difficulty":  {Name: "x", Difficulty: "Insane"},
		"half a location": {Name: "x", Difficulty: DifficultyEasy, Latitude: floatPtr(1)},
	}
	for name, h := range cases {
		err := h.Validate()
		if err == nil {
			t.Errorf("%s: expected error, got nil", name)
			continue
		}
		if !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("%s: error %v does not wrap ErrInvalidRecord", name, err)
		}
	}
}

func TestObservationValidate(t *testing.T) {
	if err := (&Observation{Title: "Deer", HikeID: 1}).Validate(); err != nil {
		t.Fatalf("valid observation: %v", err)
	}
	if err := (&Observation{HikeID: 1}).Validate(); err == nil {
		t.Error("expected error for missing title")
	}
	if err := (&Observation{Title: "Deer"}).Validate(); err == nil {
		t.Error("expected error for missing parent hike")
	}
}

// ---------------------------------------------------------------------------
// ContentHash
// ---------------------------------------------------------------------------

func TestContentHash_IgnoresBookkeeping(t *testing.T) {
	a := Hike{Name: "Ridge Trail", LengthKm: 5.2, Difficulty: DifficultyMedium}
	b := a
	b.ID = 42
	b.RemoteID = "r1"
	b.SyncState = SyncSynced
	b.IsDeleted = true

	if a.ContentHash() != b.ContentHash() {
		t.Error("hash changed although only bookkeeping fields differ")
	}
}

func TestContentHash_DetectsEdits(t *testing.T) {
	base := Hike{Name: "Ridge Trail", LengthKm: 5.2, Difficulty: DifficultyMedium}
	edits := []func(h *Hike){
		func(h *Hike) { h.Name = "Ridge Loop" },
		func(h *Hike) { h.LengthKm = 6 },
		func(h *Hike) { h.Difficulty = DifficultyHard },
		func(h *Hike) { h.ParkingAvailable = true },
		func(h *Hike) { h.Privacy = PrivacyPublic },
		func(h *Hike) { h.Latitude, h.Longitude = floatPtr(1), floatPtr(2) },
	}
	for i, edit := range edits {
		h := base
		edit(&h)
		if h.ContentHash() == base.ContentHash() {
			t.Errorf("edit %d did not change the hash", i)
		}
	}
}

// ---------------------------------------------------------------------------
// StatusSnapshot
// ---------------------------------------------------------------------------

func TestNewStatusSnapshot(t *testing.T) {
	tests := []struct {
		total, synced int
		wantPct       int
	}{
		{0, 0, 0},
		{3, 1, 33},
		{3, 2, 66},
		{4, 4, 100},
	}
	for _, tt := range tests {
		s := NewStatusSnapshot(tt.total, tt.synced)
		if s.SyncPercentage != tt.wantPct {
			t.Errorf("NewStatusSnapshot(%d, %d).SyncPercentage = %d, want %d", tt.total, tt.synced, s.SyncPercentage, tt.wantPct)
		}
		if s.OfflineHikes != tt.total-tt.synced {
			t.Errorf("OfflineHikes = %d, want %d", s.OfflineHikes, tt.total-tt.synced)
		}
	}
}
