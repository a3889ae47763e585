// Package sync implements the offline/cloud reconciliation engine for
// trailsync. It pushes locally pending hikes, deletions and observations to
// the remote service, materialises remote hikes that are new to this device,
// and reports aggregate sync status.
//
// The package contains three components wired together by [Engine]:
//
//   - the upload reconciler walks Local hikes, tombstones and Local
//     observations, one record at a time;
//   - the download reconciler walks the user's remote hikes and inserts the
//     ones not yet known locally, deduplicating by remote id;
//   - the status reporter projects hike counts for display.
package sync

import (
	"context"
	"time"

	"github.com/njoerd114/trailsync/internal/model"
)

// RecordStore provides access to the local hike and observation tables.
// Implemented by [store.Store]. Mutations addressing a missing row return an
// error wrapping [store.ErrNotFound].
type RecordStore interface {
	HikesBySyncState(ctx context.Context, state model.SyncState) ([]*model.Hike, error)
	DeletedHikes(ctx context.Context) ([]*model.Hike, error)
	HikeByID(ctx context.Context, id int64) (*model.Hike, error)
	HikeByRemoteID(ctx context.Context, remoteID string) (*model.Hike, error)
	InsertHike(ctx context.Context, h *model.Hike) error
	MarkHikeSynced(ctx context.Context, id int64, remoteID string, seen time.Time) (bool, error)
	PurgeHike(ctx context.Context, id int64) error
	HikeCounts(ctx context.Context) (total, synced int, err error)

	ObservationsBySyncState(ctx context.Context, state model.SyncState) ([]*model.Observation, error)
	ObservationByRemoteID(ctx context.Context, remoteID string) (*model.Observation, error)
	InsertObservation(ctx context.Context, o *model.Observation) error
	MarkObservationSynced(ctx context.Context, id int64, remoteID, imageURL string) error
}

// RemoteGateway creates, updates, deletes and lists remote records on behalf
// of the bearer of token. Implemented by [gateway.Client].
type RemoteGateway interface {
	CreateHike(ctx context.Context, token string, h *model.Hike) (remoteID string, err error)
	UpdateHike(ctx context.Context, token, remoteID string, h *model.Hike) error
	DeleteHike(ctx context.Context, token, remoteID string) error
	ListMyHikes(ctx context.Context, token string) ([]*model.Hike, error)
	CreateObservation(ctx context.Context, token, remoteHikeID, imageURL string, o *model.Observation) (remoteID string, err error)
	ListObservations(ctx context.Context, token, remoteHikeID string) ([]*model.Observation, error)
}

// AssetTransfer moves observation images to and from the object store.
// Implemented by [assets.Transfer].
type AssetTransfer interface {
	Upload(ctx context.Context, localRef string) (remoteURL string, err error)
	Download(ctx context.Context, remoteURL string) (localPath string, err error)
	Remove(localPath string) error
}
