// Package model defines the records shared by the store, the remote gateway,
// and the sync engine.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SyncState records whether a row has been accepted by the remote service.
// Values match the integer column persisted by the store.
type SyncState int

const (
	// SyncLocal marks a record that exists only on this device, or that was
	// edited after its last upload.
	SyncLocal SyncState = 0
	// SyncSynced marks a record whose current content is known remotely.
	SyncSynced SyncState = 1
)

// String returns the human-readable label for the state.
func (s SyncState) String() string {
	if s == SyncSynced {
		return "Synced"
	}
	return "Local"
}

// Difficulty is the self-reported difficulty of a hike.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ParseDifficulty maps a case-insensitive label to a Difficulty. Unknown
// labels are reported as an error.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q (want Easy, Medium or Hard)", s)
	}
}

// NormalizeDifficulty is the lenient form of ParseDifficulty used for remote
// payloads: anything unrecognised becomes Easy.
func NormalizeDifficulty(s string) Difficulty {
	d, err := ParseDifficulty(s)
	if err != nil {
		return DifficultyEasy
	}
	return d
}

// Privacy controls whether a hike is visible to other users remotely.
type Privacy string

const (
	PrivacyPrivate Privacy = "Private"
	PrivacyPublic  Privacy = "Public"
)

// NormalizePrivacy maps a case-insensitive label to a Privacy, defaulting to
// Private.
func NormalizePrivacy(s string) Privacy {
	if strings.EqualFold(strings.TrimSpace(s), string(PrivacyPublic)) {
		return PrivacyPublic
	}
	return PrivacyPrivate
}

// Hike is a logged excursion.
type Hike struct {
	// ID is the device-local identifier assigned by the store. Zero means
	// "not inserted yet".
	ID int64

	// RemoteID is the identifier assigned by the remote service. Empty until
	// the hike has been uploaded or was materialised from a download.
	RemoteID string

	Name             string
	Location         string
	Date             string // YYYY-MM-DD
	Time             string // HH:mm
	LengthKm         float64
	Difficulty       Difficulty
	ParkingAvailable bool
	Description      string
	Privacy          Privacy
	Latitude         *float64
	Longitude        *float64

	SyncState SyncState

	// IsDeleted marks a tombstone: the hike was removed locally but the
	// deletion still has to reach the remote service.
	IsDeleted bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrInvalidRecord is wrapped by Validate failures.
var ErrInvalidRecord = errors.New("invalid record")

// Validate checks the fields a hike must carry before it is stored.
func (h *Hike) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("%w: hike name is required", ErrInvalidRecord)
	}
	if h.LengthKm < 0 {
		return fmt.Errorf("%w: hike length %.2f km is negative", ErrInvalidRecord, h.LengthKm)
	}
	if _, err := ParseDifficulty(string(h.Difficulty)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if (h.Latitude == nil) != (h.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be set together", ErrInvalidRecord)
	}
	return nil
}

// ContentHash returns a deterministic SHA-256 hex digest of the user-editable
// fields. Identity, sync bookkeeping and timestamps are excluded, so a hash
// change means the user actually edited the hike.
func (h *Hike) ContentHash() string {
	s := sha256.New()
	_, _ = fmt.Fprintf(s, "%s|%s|%s|%s|%.4f|%s|%t|%s|%s|",
		h.Name, h.Location, h.Date, h.Time, h.LengthKm,
		h.Difficulty, h.ParkingAvailable, h.Description, h.Privacy)
	if h.Latitude != nil && h.Longitude != nil {
		_, _ = fmt.Fprintf(s, "%.6f,%.6f", *h.Latitude, *h.Longitude)
	}
	return hex.EncodeToString(s.Sum(nil))
}

// ObservationStatus is the community-moderation status of an observation.
// The remote service may introduce statuses this package does not list; they
// are carried verbatim.
type ObservationStatus string

const (
	StatusOpen     ObservationStatus = "Open"
	StatusVerified ObservationStatus = "Verified"
	StatusDisputed ObservationStatus = "Disputed"
)

// Observation is a timestamped note attached to exactly one hike.
type Observation struct {
	ID       int64
	RemoteID string

	// HikeID is the local ID of the parent hike.
	HikeID int64

	Title    string
	Time     string // HH:mm
	Comments string

	// ImageRef is a device-local path to the observation's image, if any.
	ImageRef string
	// ImageURL is the remote object-storage URL, once known.
	ImageURL string

	Latitude  *float64
	Longitude *float64

	Status ObservationStatus

	// Confirmations and Disputes are maintained by the remote community
	// features; the sync engine only copies them.
	Confirmations int
	Disputes      int

	SyncState SyncState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the fields an observation must carry before it is stored.
func (o *Observation) Validate() error {
	if strings.TrimSpace(o.Title) == "" {
		return fmt.Errorf("%w: observation title is required", ErrInvalidRecord)
	}
	if o.HikeID == 0 {
		return fmt.Errorf("%w: observation %q has no parent hike", ErrInvalidRecord, o.Title)
	}
	return nil
}
