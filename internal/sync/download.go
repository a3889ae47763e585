package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/trailsync/internal/model"
)

// downloader materialises remote hikes and their observations that are not
// yet known locally. It never modifies a record that already exists.
type downloader struct {
	store  RecordStore
	remote RemoteGateway
	assets AssetTransfer
	now    func() time.Time
	log    *slog.Logger

	// onListFailure is called when the remote hike list cannot be fetched.
	onListFailure func(ctx context.Context)
}

// run performs one download pass. An unreachable or unreadable remote list is
// treated as empty and reported as a successful run with zero counts.
func (d *downloader) run(ctx context.Context, token string, emit Sink) (model.DownloadResult, error) {
	var res model.DownloadResult

	remote, err := d.remote.ListMyHikes(ctx, token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("download cancelled: %w", ctxErr)
		}
		d.log.Warn("listing remote hikes failed, treating as empty", "error", err)
		if d.onListFailure != nil {
			d.onListFailure(ctx)
		}
		return res, nil
	}
	if len(remote) == 0 {
		d.log.Debug("no remote hikes")
		return res, nil
	}

	start := d.now()
	total := len(remote)
	res.TotalFetched = total
	emit.emit(Event{Op: OpDownload, Kind: EventStart, Total: total})
	d.log.Info("download started", "remote_hikes", total)

	for i, rh := range remote {
		if err := ctx.Err(); err != nil {
			return model.DownloadResult{}, fmt.Errorf("download cancelled: %w", err)
		}
		d.materializeHike(ctx, token, rh, &res)
		emit.emit(Event{Op: OpDownload, Kind: EventProgress, Total: total, Done: i + 1})
	}
	if err := ctx.Err(); err != nil {
		return model.DownloadResult{}, fmt.Errorf("download cancelled: %w", err)
	}

	res.Duration = d.now().Sub(start)
	d.log.Info("download complete",
		"fetched", res.TotalFetched,
		"inserted", res.Inserted,
		"skipped_duplicates", res.SkippedDuplicate,
		"failed", res.Failed,
		"duration", res.Duration,
	)
	return res, nil
}

// materializeHike inserts rh unless a hike with its remote id exists, then
// pulls its observations.
func (d *downloader) materializeHike(ctx context.Context, token string, rh *model.Hike, res *model.DownloadResult) {
	if rh.RemoteID == "" {
		d.log.Warn("remote hike has no id", "hike", rh.Name)
		res.Failed++
		return
	}

	existing, err := d.store.HikeByRemoteID(ctx, rh.RemoteID)
	if err != nil {
		d.log.Error("looking up hike", "remote_id", rh.RemoteID, "error", err)
		res.Failed++
		return
	}
	if existing != nil {
		d.log.Debug("hike already present", "remote_id", rh.RemoteID, "local_id", existing.ID)
		res.SkippedDuplicate++
		return
	}

	h := *rh
	h.ID = 0
	h.IsDeleted = false
	h.SyncState = model.SyncSynced
	h.CreatedAt, h.UpdatedAt = time.Time{}, time.Time{}
	if err := d.store.InsertHike(ctx, &h); err != nil {
		d.log.Error("inserting downloaded hike", "hike", h.Name, "remote_id", h.RemoteID, "error", err)
		res.Failed++
		return
	}
	res.Inserted++
	d.log.Debug("hike downloaded", "hike", h.Name, "remote_id", h.RemoteID, "local_id", h.ID)

	observations, err := d.remote.ListObservations(ctx, token, h.RemoteID)
	if err != nil {
		d.log.Warn("listing remote observations failed", "hike", h.Name, "remote_id", h.RemoteID, "error", err)
		return
	}
	for _, ro := range observations {
		d.materializeObservation(ctx, &h, ro, res)
	}
}

func (d *downloader) materializeObservation(ctx context.Context, parent *model.Hike, ro *model.Observation, res *model.DownloadResult) {
	if ro.RemoteID == "" {
		d.log.Warn("remote observation has no id", "observation", ro.Title, "hike_remote_id", parent.RemoteID)
		res.Failed++
		return
	}

	existing, err := d.store.ObservationByRemoteID(ctx, ro.RemoteID)
	if err != nil {
		d.log.Error("looking up observation", "remote_id", ro.RemoteID, "error", err)
		res.Failed++
		return
	}
	if existing != nil {
		res.SkippedDuplicate++
		return
	}

	o := *ro
	o.ID = 0
	o.HikeID = parent.ID
	o.SyncState = model.SyncSynced
	o.ImageRef = ""
	o.CreatedAt, o.UpdatedAt = time.Time{}, time.Time{}
	if o.ImageURL != "" {
		path, err := d.assets.Download(ctx, o.ImageURL)
		if err != nil {
			d.log.Warn("image download failed, continuing without image", "observation", o.Title, "url", o.ImageURL, "error", err)
		} else {
			o.ImageRef = path
		}
	}

	if err := d.store.InsertObservation(ctx, &o); err != nil {
		d.log.Error("inserting downloaded observation", "observation", o.Title, "remote_id", o.RemoteID, "error", err)
		if o.ImageRef != "" {
			if err := d.assets.Remove(o.ImageRef); err != nil {
				d.log.Warn("removing orphaned image", "path", o.ImageRef, "error", err)
			}
		}
		res.Failed++
		return
	}
	res.Inserted++
}
