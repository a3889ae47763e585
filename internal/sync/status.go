package sync

import (
	"context"
	"fmt"

	"github.com/njoerd114/trailsync/internal/model"
)

// Status returns aggregate counts over all non-tombstoned local hikes. It only
// reads and may be called while a run is in flight.
func (e *Engine) Status(ctx context.Context) (model.StatusSnapshot, error) {
	total, synced, err := e.store.HikeCounts(ctx)
	if err != nil {
		return model.StatusSnapshot{}, fmt.Errorf("reading sync status: %w", err)
	}
	return model.NewStatusSnapshot(total, synced), nil
}
