package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/trailsync/internal/model"
	"github.com/njoerd114/trailsync/internal/store"
)

// errNoParentRemoteID marks an observation whose hike has not reached the
// remote service yet.
var errNoParentRemoteID = errors.New("parent hike has no remote id")

// uploader pushes locally pending records to the remote service. It is
// stateless between runs; every run snapshots its work up front.
type uploader struct {
	store  RecordStore
	remote RemoteGateway
	assets AssetTransfer
	now    func() time.Time
	log    *slog.Logger
}

// run performs one upload pass: Local hikes, then tombstones, then Local
// observations. Per-record failures are counted, never returned. An error is
// returned only when the snapshot cannot be read or ctx is cancelled; the
// partial result is discarded in that case.
func (u *uploader) run(ctx context.Context, token string, emit Sink) (model.UploadResult, error) {
	var res model.UploadResult

	hikes, err := u.store.HikesBySyncState(ctx, model.SyncLocal)
	if err != nil {
		return res, fmt.Errorf("loading local hikes: %w", err)
	}
	tombstones, err := u.store.DeletedHikes(ctx)
	if err != nil {
		return res, fmt.Errorf("loading deleted hikes: %w", err)
	}
	observations, err := u.store.ObservationsBySyncState(ctx, model.SyncLocal)
	if err != nil {
		return res, fmt.Errorf("loading local observations: %w", err)
	}

	total := len(hikes) + len(tombstones) + len(observations)
	if total == 0 {
		u.log.Debug("nothing to upload")
		return res, nil
	}

	start := u.now()
	res.Total = total
	emit.emit(Event{Op: OpUpload, Kind: EventStart, Total: total})
	u.log.Info("upload started",
		"hikes", len(hikes), "deletions", len(tombstones), "observations", len(observations))

	done := 0
	record := func(ok bool) {
		if ok {
			res.Succeeded++
		} else {
			res.Failed++
		}
		done++
		emit.emit(Event{Op: OpUpload, Kind: EventProgress, Total: total, Done: done})
	}

	for _, h := range hikes {
		if err := ctx.Err(); err != nil {
			return model.UploadResult{}, fmt.Errorf("upload cancelled: %w", err)
		}
		record(u.pushHike(ctx, token, h))
	}
	for _, h := range tombstones {
		if err := ctx.Err(); err != nil {
			return model.UploadResult{}, fmt.Errorf("upload cancelled: %w", err)
		}
		record(u.pushDeletion(ctx, token, h))
	}
	for _, o := range observations {
		if err := ctx.Err(); err != nil {
			return model.UploadResult{}, fmt.Errorf("upload cancelled: %w", err)
		}
		record(u.pushObservation(ctx, token, o))
	}

	res.Duration = u.now().Sub(start)
	u.log.Info("upload complete",
		"total", res.Total,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"duration", res.Duration,
	)
	return res, nil
}

// pushHike creates the hike remotely, or updates it when it already carries
// a remote id, then marks it Synced. The local row is untouched on failure. A
// hike edited or tombstoned while the request was in flight keeps its newer
// local state and only gains the remote id.
func (u *uploader) pushHike(ctx context.Context, token string, h *model.Hike) bool {
	remoteID := h.RemoteID
	if remoteID == "" {
		id, err := u.remote.CreateHike(ctx, token, h)
		if err != nil {
			u.log.Warn("hike upload failed", "hike", h.Name, "local_id", h.ID, "error", err)
			return false
		}
		remoteID = id
	} else if err := u.remote.UpdateHike(ctx, token, remoteID, h); err != nil {
		u.log.Warn("hike update failed", "hike", h.Name, "local_id", h.ID, "remote_id", remoteID, "error", err)
		return false
	}

	synced, err := u.store.MarkHikeSynced(ctx, h.ID, remoteID, h.UpdatedAt)
	if errors.Is(err, store.ErrNotFound) {
		return u.dropRemoteCopy(ctx, token, h, remoteID)
	}
	if err != nil {
		u.log.Error("recording hike upload", "hike", h.Name, "local_id", h.ID, "remote_id", remoteID, "error", err)
		return false
	}
	if !synced {
		u.log.Info("hike changed locally during upload, left pending", "hike", h.Name, "local_id", h.ID, "remote_id", remoteID)
		return true
	}
	u.log.Debug("hike uploaded", "hike", h.Name, "local_id", h.ID, "remote_id", remoteID)
	return true
}

// dropRemoteCopy deletes the remote hike just pushed for h when the local row
// was removed while the request was in flight.
func (u *uploader) dropRemoteCopy(ctx context.Context, token string, h *model.Hike, remoteID string) bool {
	if err := u.remote.DeleteHike(ctx, token, remoteID); err != nil {
		u.log.Warn("hike deleted during upload, remote copy left behind",
			"hike", h.Name, "local_id", h.ID, "remote_id", remoteID, "error", err)
		return false
	}
	u.log.Info("hike deleted during upload, remote copy removed", "hike", h.Name, "local_id", h.ID, "remote_id", remoteID)
	return true
}

// pushDeletion propagates a tombstone and purges the local row. A tombstone
// that never reached the remote service is purged without a network call.
func (u *uploader) pushDeletion(ctx context.Context, token string, h *model.Hike) bool {
	if h.RemoteID != "" {
		if err := u.remote.DeleteHike(ctx, token, h.RemoteID); err != nil {
			u.log.Warn("hike deletion failed", "hike", h.Name, "local_id", h.ID, "remote_id", h.RemoteID, "error", err)
			return false
		}
	}
	if err := u.store.PurgeHike(ctx, h.ID); err != nil {
		u.log.Error("purging deleted hike", "hike", h.Name, "local_id", h.ID, "error", err)
		return false
	}
	u.log.Debug("hike deleted", "hike", h.Name, "local_id", h.ID, "remote_id", h.RemoteID)
	return true
}

// pushObservation uploads the observation's image, if any, then creates the
// observation under its parent's remote id. A failed image upload only drops
// the image URL.
func (u *uploader) pushObservation(ctx context.Context, token string, o *model.Observation) bool {
	parentRemoteID, err := u.parentRemoteID(ctx, o)
	if err != nil {
		u.log.Warn("observation upload skipped", "observation", o.Title, "local_id", o.ID, "hike_local_id", o.HikeID, "error", err)
		return false
	}

	imageURL := o.ImageURL
	if o.ImageRef != "" {
		url, err := u.assets.Upload(ctx, o.ImageRef)
		if err != nil {
			u.log.Warn("image upload failed, continuing without image", "observation", o.Title, "image", o.ImageRef, "error", err)
			imageURL = ""
		} else {
			imageURL = url
		}
	}

	remoteID, err := u.remote.CreateObservation(ctx, token, parentRemoteID, imageURL, o)
	if err != nil {
		u.log.Warn("observation upload failed", "observation", o.Title, "local_id", o.ID, "error", err)
		return false
	}

	err = u.store.MarkObservationSynced(ctx, o.ID, remoteID, imageURL)
	if errors.Is(err, store.ErrNotFound) {
		u.log.Warn("observation deleted locally during upload, remote copy kept",
			"observation", o.Title, "local_id", o.ID, "remote_id", remoteID)
		return false
	}
	if err != nil {
		u.log.Error("recording observation upload", "observation", o.Title, "local_id", o.ID, "remote_id", remoteID, "error", err)
		return false
	}
	u.log.Debug("observation uploaded", "observation", o.Title, "local_id", o.ID, "remote_id", remoteID)
	return true
}

// parentRemoteID resolves the remote id of o's hike. It reads the hike fresh
// so a parent uploaded earlier in the same run is found.
func (u *uploader) parentRemoteID(ctx context.Context, o *model.Observation) (string, error) {
	parent, err := u.store.HikeByID(ctx, o.HikeID)
	if err != nil {
		return "", fmt.Errorf("loading parent hike: %w", err)
	}
	if parent == nil || parent.RemoteID == "" {
		return "", errNoParentRemoteID
	}
	return parent.RemoteID, nil
}
