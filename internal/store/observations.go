package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/njoerd114/trailsync/internal/model"
)

const observationColumns = `
	o.id, o.remote_id, o.hike_id, o.title, o.time, o.comments, o.image_ref,
	o.image_url, o.latitude, o.longitude, o.status, o.confirmations,
	o.disputes, o.sync_state, o.created_at, o.updated_at`

// InsertObservation stores a new observation and sets o.ID to the assigned
// local id. The parent hike must exist. An observation without a remote id is
// always stored as Local; an empty status defaults to Open.
func (s *Store) InsertObservation(ctx context.Context, o *model.Observation) error {
	if o.RemoteID == "" {
		o.SyncState = model.SyncLocal
	}
	if o.Status == "" {
		o.Status = model.StatusOpen
	}
	now := s.stamp()
	created, updated := toMillis(o.CreatedAt), toMillis(o.UpdatedAt)
	if created == 0 {
		created = now
	}
	if updated == 0 {
		updated = now
	}

	const q = `
		INSERT INTO observations
		    (remote_id, hike_id, title, time, comments, image_ref, image_url,
		     latitude, longitude, status, confirmations, disputes, sync_state,
		     created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		o.RemoteID, o.HikeID, o.Title, o.Time, o.Comments, o.ImageRef, o.ImageURL,
		nullFloat(o.Latitude), nullFloat(o.Longitude), string(o.Status),
		o.Confirmations, o.Disputes, int(o.SyncState), created, updated,
	)
	if err != nil {
		return fmt.Errorf("inserting observation %q for hike id=%d: %w", o.Title, o.HikeID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading id of observation %q: %w", o.Title, err)
	}
	o.ID = id
	o.CreatedAt, o.UpdatedAt = fromMillis(created), fromMillis(updated)
	return nil
}

// MarkObservationSynced records that the remote service accepted the
// observation under remoteID with the given image URL. Only bookkeeping
// columns are written, so local content is never replaced by the copy the
// upload read. There is no remote update for observations, so the state flips
// to Synced unconditionally. It returns ErrNotFound when the row is gone.
func (s *Store) MarkObservationSynced(ctx context.Context, id int64, remoteID, imageURL string) error {
	const q = `
		UPDATE observations SET remote_id = ?, image_url = ?, sync_state = ?, updated_at = MAX(?, updated_at)
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, remoteID, imageURL, int(model.SyncSynced), s.stamp(), id)
	if err != nil {
		return fmt.Errorf("marking observation id=%d synced: %w", id, err)
	}
	return expectOneRow(res, "observation", id)
}

// DeleteObservation removes a single observation.
func (s *Store) DeleteObservation(ctx context.Context, id int64) error {
	const q = `DELETE FROM observations WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("deleting observation id=%d: %w", id, err)
	}
	return nil
}

// ObservationsBySyncState returns observations in the given state whose parent
// hike is not tombstoned, newest first.
func (s *Store) ObservationsBySyncState(ctx context.Context, state model.SyncState) ([]*model.Observation, error) {
	q := `SELECT` + observationColumns + `
		FROM observations o JOIN hikes h ON h.id = o.hike_id
		WHERE o.sync_state = ? AND h.is_deleted = 0
		ORDER BY o.created_at DESC, o.id DESC`
	return s.queryObservations(ctx, q, int(state))
}

// ObservationsForHike returns the observations attached to a hike, newest first.
func (s *Store) ObservationsForHike(ctx context.Context, hikeID int64) ([]*model.Observation, error) {
	q := `SELECT` + observationColumns + `
		FROM observations o WHERE o.hike_id = ?
		ORDER BY o.created_at DESC, o.id DESC`
	return s.queryObservations(ctx, q, hikeID)
}

// ObservationByRemoteID returns the observation with the given remote id, or
// (nil, nil) if none exists.
func (s *Store) ObservationByRemoteID(ctx context.Context, remoteID string) (*model.Observation, error) {
	if remoteID == "" {
		return nil, nil //nolint:nilnil // empty remote id never matches
	}
	q := `SELECT` + observationColumns + ` FROM observations o WHERE o.remote_id = ?`
	return scanObservation(s.db.QueryRowContext(ctx, q, remoteID))
}

func (s *Store) queryObservations(ctx context.Context, q string, args ...any) ([]*model.Observation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var obs []*model.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

func scanObservation(s scanner) (*model.Observation, error) {
	var (
		o                    model.Observation
		status               string
		state                int
		lat, lng             sql.NullFloat64
		createdMs, updatedMs int64
	)
	err := s.Scan(
		&o.ID, &o.RemoteID, &o.HikeID, &o.Title, &o.Time, &o.Comments, &o.ImageRef,
		&o.ImageURL, &lat, &lng, &status, &o.Confirmations,
		&o.Disputes, &state, &createdMs, &updatedMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning observation row: %w", err)
	}

	o.Status = model.ObservationStatus(status)
	o.SyncState = model.SyncState(state)
	o.Latitude, o.Longitude = floatPtr(lat), floatPtr(lng)
	o.CreatedAt, o.UpdatedAt = fromMillis(createdMs), fromMillis(updatedMs)
	return &o, nil
}
