package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/njoerd114/trailsync/internal/model"
)

// flexString decodes a JSON string or number into its string form. The
// remote service emits ids as either depending on the backing store.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id %s is neither string nor number", b)
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat decodes a JSON number or numeric string. Empty strings and null
// leave it unset.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = flexFloat{}
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = flexFloat{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("number %s: %w", b, err)
	}
	*f = flexFloat{Value: v, Set: true}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

// hikeRequest is the body of POST /hikes and PUT /hikes/{id}.
type hikeRequest struct {
	UserID           string   `json:"userId"`
	Name             string   `json:"name"`
	Location         string   `json:"location"`
	Date             string   `json:"date,omitempty"`
	Time             string   `json:"time,omitempty"`
	Length           float64  `json:"length"`
	Difficulty       string   `json:"difficulty"`
	ParkingAvailable bool     `json:"parkingAvailable"`
	Description      string   `json:"description"`
	Privacy          string   `json:"privacy"`
	Lat              *float64 `json:"lat"`
	Lng              *float64 `json:"lng"`
}

// observationRequest is the body of POST /observations.
type observationRequest struct {
	Title    string   `json:"title"`
	UserID   string   `json:"userId"`
	HikeID   string   `json:"hikeId"`
	Time     string   `json:"time,omitempty"`
	Comments string   `json:"comments"`
	Status   string   `json:"status"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

// createdResponse is the subset of a create response the engine needs.
// Document stores may report the id as _id instead of id.
type createdResponse struct {
	ID    flexString `json:"id"`
	AltID flexString `json:"_id"`
}

func (c createdResponse) id() string {
	return firstID(c.ID, c.AltID)
}

func firstID(ids ...flexString) string {
	for _, id := range ids {
		if s := strings.TrimSpace(string(id)); s != "" {
			return s
		}
	}
	return ""
}

// remoteHike is a hike as listed by GET /hikes/my.
type remoteHike struct {
	ID               flexString `json:"id"`
	AltID            flexString `json:"_id"`
	Name             string     `json:"name"`
	Location         string     `json:"location"`
	Date             string     `json:"date"`
	Time             string     `json:"time"`
	Length           flexFloat  `json:"length"`
	Difficulty       string     `json:"difficulty"`
	ParkingAvailable bool       `json:"parkingAvailable"`
	Description      string     `json:"description"`
	Privacy          string     `json:"privacy"`
	Lat              flexFloat  `json:"lat"`
	Lng              flexFloat  `json:"lng"`
}

// remoteObservation is an observation as listed by GET /observations/hike/{id}.
type remoteObservation struct {
	ID            flexString `json:"id"`
	AltID         flexString `json:"_id"`
	Title         string     `json:"title"`
	Time          string     `json:"time"`
	Comments      string     `json:"comments"`
	ImageURL      string     `json:"imageUrl"`
	Lat           flexFloat  `json:"lat"`
	Lng           flexFloat  `json:"lng"`
	Status        string     `json:"status"`
	Confirmations int        `json:"confirmations"`
	Disputes      int        `json:"disputes"`
}

func toHikeRequest(userID string, h *model.Hike) hikeRequest {
	return hikeRequest{
		UserID:           userID,
		Name:             h.Name,
		Location:         h.Location,
		Date:             h.Date,
		Time:             h.Time,
		Length:           h.LengthKm,
		Difficulty:       string(h.Difficulty),
		ParkingAvailable: h.ParkingAvailable,
		Description:      h.Description,
		Privacy:          string(h.Privacy),
		Lat:              h.Latitude,
		Lng:              h.Longitude,
	}
}

func toObservationRequest(userID, remoteHikeID, imageURL string, o *model.Observation) observationRequest {
	status := string(o.Status)
	if status == "" {
		status = string(model.StatusOpen)
	}
	return observationRequest{
		Title:    o.Title,
		UserID:   userID,
		HikeID:   remoteHikeID,
		Time:     o.Time,
		Comments: o.Comments,
		Status:   status,
		Lat:      o.Latitude,
		Lng:      o.Longitude,
		ImageURL: imageURL,
	}
}

// toModel converts a listed remote hike into a model.Hike carrying only the
// remote id and content. Local id and sync bookkeeping are left for the caller.
func (r remoteHike) toModel() *model.Hike {
	return &model.Hike{
		RemoteID:         firstID(r.ID, r.AltID),
		Name:             r.Name,
		Location:         r.Location,
		Date:             r.Date,
		Time:             r.Time,
		LengthKm:         r.Length.Value,
		Difficulty:       model.NormalizeDifficulty(r.Difficulty),
		ParkingAvailable: r.ParkingAvailable,
		Description:      r.Description,
		Privacy:          model.NormalizePrivacy(r.Privacy),
		Latitude:         r.Lat.ptr(),
		Longitude:        r.Lng.ptr(),
	}
}

func (r remoteObservation) toModel() *model.Observation {
	status := model.ObservationStatus(strings.TrimSpace(r.Status))
	if status == "" {
		status = model.StatusOpen
	}
	return &model.Observation{
		RemoteID:      firstID(r.ID, r.AltID),
		Title:         r.Title,
		Time:          r.Time,
		Comments:      r.Comments,
		ImageURL:      r.ImageURL,
		Latitude:      r.Lat.ptr(),
		Longitude:     r.Lng.ptr(),
		Status:        status,
		Confirmations: r.Confirmations,
		Disputes:      r.Disputes,
	}
}
