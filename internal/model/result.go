package model

import "time"

// UploadResult summarises one upload run. Succeeded+Failed equals Total for
// every run that completes.
type UploadResult struct {
	Total     int
	Succeeded int
	Failed    int
	// Skipped is reserved; no current code path increments it.
	Skipped  int
	Duration time.Duration
}

// DurationMs returns the run duration in whole milliseconds.
func (r UploadResult) DurationMs() int64 { return r.Duration.Milliseconds() }

// DownloadResult summarises one download run. Inserted and SkippedDuplicate
// count hikes and observations together.
type DownloadResult struct {
	// TotalFetched is the number of top-level remote hikes listed.
	TotalFetched     int
	Inserted         int
	Failed           int
	SkippedDuplicate int
	Duration         time.Duration
}

// DurationMs returns the run duration in whole milliseconds.
func (r DownloadResult) DurationMs() int64 { return r.Duration.Milliseconds() }

// StatusSnapshot is an aggregate view over all non-tombstoned local hikes.
type StatusSnapshot struct {
	TotalHikes     int
	SyncedHikes    int
	OfflineHikes   int
	SyncPercentage int
}

// NewStatusSnapshot derives the offline count and the floored percentage
// from the totals. The percentage is 0 when there are no hikes.
func NewStatusSnapshot(total, synced int) StatusSnapshot {
	s := StatusSnapshot{
		TotalHikes:   total,
		SyncedHikes:  synced,
		OfflineHikes: total - synced,
	}
	if total > 0 {
		s.SyncPercentage = synced * 100 / total
	}
	return s
}
