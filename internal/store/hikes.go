package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/njoerd114/trailsync/internal/model"
)

// ErrNotFound is returned by mutations addressing a row that does not exist.
// Lookups report absence as (nil, nil) instead.
var ErrNotFound = errors.New("record not found")

const hikeColumns = `
	id, remote_id, name, location, date, time, length_km, difficulty,
	parking_available, description, privacy, latitude, longitude,
	sync_state, is_deleted, created_at, updated_at`

// InsertHike stores a new hike and sets h.ID to the assigned local id. Any ID
// already on h is ignored. A hike without a remote id is always stored as
// Local; zero timestamps are stamped with the current time.
func (s *Store) InsertHike(ctx context.Context, h *model.Hike) error {
	if h.RemoteID == "" {
		h.SyncState = model.SyncLocal
	}
	now := s.stamp()
	created, updated := toMillis(h.CreatedAt), toMillis(h.UpdatedAt)
	if created == 0 {
		created = now
	}
	if updated == 0 {
		updated = now
	}

	const q = `
		INSERT INTO hikes
		    (remote_id, name, location, date, time, length_km, difficulty,
		     parking_available, description, privacy, latitude, longitude,
		     sync_state, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		h.RemoteID, h.Name, h.Location, h.Date, h.Time, h.LengthKm, string(h.Difficulty),
		boolInt(h.ParkingAvailable), h.Description, string(h.Privacy),
		nullFloat(h.Latitude), nullFloat(h.Longitude),
		int(h.SyncState), boolInt(h.IsDeleted), created, updated,
	)
	if err != nil {
		return fmt.Errorf("inserting hike %q: %w", h.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading id of hike %q: %w", h.Name, err)
	}
	h.ID = id
	h.CreatedAt, h.UpdatedAt = fromMillis(created), fromMillis(updated)
	return nil
}

// MarkHikeSynced records that the remote service accepted the hike under
// remoteID. Only bookkeeping columns are written. The hike becomes Synced only
// if its row still carries the updatedAt the caller read (seen) and is not
// tombstoned; otherwise just the remote id is stored and the state is left
// alone, so the newer local change is sent on the next pass. It reports
// whether the hike was marked Synced and returns ErrNotFound when the row is
// gone.
func (s *Store) MarkHikeSynced(ctx context.Context, id int64, remoteID string, seen time.Time) (bool, error) {
	const q = `
		UPDATE hikes SET remote_id = ?, sync_state = ?, updated_at = MAX(?, updated_at)
		WHERE id = ? AND is_deleted = 0 AND updated_at = ?`
	res, err := s.db.ExecContext(ctx, q, remoteID, int(model.SyncSynced), s.stamp(), id, toMillis(seen))
	if err != nil {
		return false, fmt.Errorf("marking hike id=%d synced: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("marking hike id=%d synced: %w", id, err)
	} else if n == 1 {
		return true, nil
	}

	const keep = `UPDATE hikes SET remote_id = ? WHERE id = ?`
	res, err = s.db.ExecContext(ctx, keep, remoteID, id)
	if err != nil {
		return false, fmt.Errorf("recording remote id of hike id=%d: %w", id, err)
	}
	if err := expectOneRow(res, "hike", id); err != nil {
		return false, err
	}
	return false, nil
}

// EditHike applies a user edit to the content fields of an existing hike and
// copies the stored identity and bookkeeping back into h. When the content
// actually changed, the hike reverts to Local so the next upload pass
// re-propagates it; the remote id is kept. updatedAt always moves forward,
// even when the clock has not. It reports whether a Synced hike was reverted.
func (s *Store) EditHike(ctx context.Context, h *model.Hike) (bool, error) {
	cur, err := s.HikeByID(ctx, h.ID)
	if err != nil {
		return false, err
	}
	if cur == nil {
		return false, fmt.Errorf("editing hike id=%d: %w", h.ID, ErrNotFound)
	}
	changed := h.ContentHash() != cur.ContentHash()

	// Bookkeeping is resolved in SQL so a sync write-back landing between the
	// read above and this write is never clobbered.
	const q = `
		UPDATE hikes SET
		    name = ?, location = ?, date = ?, time = ?, length_km = ?,
		    difficulty = ?, parking_available = ?, description = ?, privacy = ?,
		    latitude = ?, longitude = ?,
		    sync_state = CASE WHEN ? = 1 THEN ? ELSE sync_state END,
		    updated_at = MAX(?, updated_at + 1)
		WHERE id = ? AND is_deleted = 0
		RETURNING remote_id, sync_state, is_deleted, created_at, updated_at`
	var (
		state, deleted       int
		createdMs, updatedMs int64
	)
	err = s.db.QueryRowContext(ctx, q,
		h.Name, h.Location, h.Date, h.Time, h.LengthKm,
		string(h.Difficulty), boolInt(h.ParkingAvailable), h.Description, string(h.Privacy),
		nullFloat(h.Latitude), nullFloat(h.Longitude),
		boolInt(changed), int(model.SyncLocal),
		s.stamp(),
		h.ID,
	).Scan(&h.RemoteID, &state, &deleted, &createdMs, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("editing hike id=%d: %w", h.ID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("editing hike id=%d: %w", h.ID, err)
	}
	h.SyncState = model.SyncState(state)
	h.IsDeleted = deleted != 0
	h.CreatedAt, h.UpdatedAt = fromMillis(createdMs), fromMillis(updatedMs)
	return changed && cur.SyncState == model.SyncSynced, nil
}

// DeleteHike removes a hike on behalf of the user. A hike that never reached
// the remote service is hard-deleted together with its observations; one that
// carries a remote id is tombstoned so the deletion can be propagated.
// The remote id only ever goes from empty to set, so trying the hard delete
// first and the tombstone second never loses a concurrent upload.
func (s *Store) DeleteHike(ctx context.Context, id int64) error {
	const purge = `DELETE FROM hikes WHERE id = ? AND remote_id = '' AND is_deleted = 0`
	res, err := s.db.ExecContext(ctx, purge, id)
	if err != nil {
		return fmt.Errorf("deleting hike id=%d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("deleting hike id=%d: %w", id, err)
	} else if n == 1 {
		return nil
	}

	const tombstone = `
		UPDATE hikes SET is_deleted = 1, updated_at = MAX(?, updated_at + 1)
		WHERE id = ? AND is_deleted = 0`
	res, err = s.db.ExecContext(ctx, tombstone, s.stamp(), id)
	if err != nil {
		return fmt.Errorf("tombstoning hike id=%d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("tombstoning hike id=%d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("deleting hike id=%d: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeHike permanently deletes the hike row, bypassing the tombstone.
// Observations cascade.
func (s *Store) PurgeHike(ctx context.Context, id int64) error {
	const q = `DELETE FROM hikes WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("purging hike id=%d: %w", id, err)
	}
	return nil
}

// HikesBySyncState returns the non-tombstoned hikes in the given state,
// newest first.
func (s *Store) HikesBySyncState(ctx context.Context, state model.SyncState) ([]*model.Hike, error) {
	q := `SELECT` + hikeColumns + `
		FROM hikes WHERE sync_state = ? AND is_deleted = 0
		ORDER BY created_at DESC, id DESC`
	return s.queryHikes(ctx, q, int(state))
}

// DeletedHikes returns every tombstoned hike, newest first.
func (s *Store) DeletedHikes(ctx context.Context) ([]*model.Hike, error) {
	q := `SELECT` + hikeColumns + `
		FROM hikes WHERE is_deleted = 1
		ORDER BY created_at DESC, id DESC`
	return s.queryHikes(ctx, q)
}

// AllHikes returns every non-tombstoned hike, newest first.
func (s *Store) AllHikes(ctx context.Context) ([]*model.Hike, error) {
	q := `SELECT` + hikeColumns + `
		FROM hikes WHERE is_deleted = 0
		ORDER BY created_at DESC, id DESC`
	return s.queryHikes(ctx, q)
}

// HikeByRemoteID returns the hike with the given remote id, or (nil, nil) if
// none exists. Tombstoned hikes are included so that a pending deletion is
// never re-materialised by a download.
func (s *Store) HikeByRemoteID(ctx context.Context, remoteID string) (*model.Hike, error) {
	if remoteID == "" {
		return nil, nil //nolint:nilnil // empty remote id never matches
	}
	q := `SELECT` + hikeColumns + ` FROM hikes WHERE remote_id = ?`
	return scanHike(s.db.QueryRowContext(ctx, q, remoteID))
}

// HikeByID returns the non-tombstoned hike with the given local id, or
// (nil, nil) if no such hike exists.
func (s *Store) HikeByID(ctx context.Context, id int64) (*model.Hike, error) {
	q := `SELECT` + hikeColumns + ` FROM hikes WHERE id = ? AND is_deleted = 0`
	return scanHike(s.db.QueryRowContext(ctx, q, id))
}

// HikeCounts returns the number of non-tombstoned hikes and how many of them
// are Synced.
func (s *Store) HikeCounts(ctx context.Context) (total, synced int, err error) {
	const q = `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN sync_state = ? THEN 1 ELSE 0 END), 0)
		FROM hikes WHERE is_deleted = 0`
	if err := s.db.QueryRowContext(ctx, q, int(model.SyncSynced)).Scan(&total, &synced); err != nil {
		return 0, 0, fmt.Errorf("counting hikes: %w", err)
	}
	return total, synced, nil
}

func (s *Store) queryHikes(ctx context.Context, q string, args ...any) ([]*model.Hike, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying hikes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hikes []*model.Hike
	for rows.Next() {
		h, err := scanHike(rows)
		if err != nil {
			return nil, err
		}
		hikes = append(hikes, h)
	}
	return hikes, rows.Err()
}

func scanHike(s scanner) (*model.Hike, error) {
	var (
		h                    model.Hike
		difficulty, priv     string
		parking, deleted     int
		state                int
		lat, lng             sql.NullFloat64
		createdMs, updatedMs int64
	)
	err := s.Scan(
		&h.ID, &h.RemoteID, &h.Name, &h.Location, &h.Date, &h.Time, &h.LengthKm, &difficulty,
		&parking, &h.Description, &priv, &lat, &lng,
		&state, &deleted, &createdMs, &updatedMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning hike row: %w", err)
	}

	h.Difficulty = model.Difficulty(difficulty)
	h.Privacy = model.Privacy(priv)
	h.ParkingAvailable = parking != 0
	h.IsDeleted = deleted != 0
	h.SyncState = model.SyncState(state)
	h.Latitude, h.Longitude = floatPtr(lat), floatPtr(lng)
	h.CreatedAt, h.UpdatedAt = fromMillis(createdMs), fromMillis(updatedMs)
	return &h, nil
}

func expectOneRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking %s id=%d update: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("updating %s id=%d: %w", kind, id, ErrNotFound)
	}
	return nil
}
