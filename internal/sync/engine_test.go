package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/njoerd114/trailsync/internal/model"
)

// -----------------------------------------------------------------------------
// Run guard.
// -----------------------------------------------------------------------------

func TestEngine_RejectsConcurrentRun(t *testing.T) {
	s := newMockStore()
	r := newMockRemote()
	r.block = make(chan struct{})
	s.addHike(localHike("Slow"))
	e := newTestEngine(s, r, &mockAssets{})

	ch, err := e.Start(context.Background(), OpUpload, testToken)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	rec := &recorder{}
	if _, err := e.DownloadAll(context.Background(), testToken, rec.sink()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("DownloadAll err = %v, want ErrRunInProgress", err)
	}
	if last := rec.last(); last.Kind != EventError || !errors.Is(last.Err, ErrRunInProgress) {
		t.Errorf("rejected run event = %+v, want ErrRunInProgress error", last)
	}
	if _, err := e.Start(context.Background(), OpDownload, testToken); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Start err = %v, want ErrRunInProgress", err)
	}
	if _, _, err := e.SyncOnce(context.Background(), testToken, nil); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("SyncOnce err = %v, want ErrRunInProgress", err)
	}

	close(r.block)
	for range ch {
	}

	// The guard is released once the channel closes.
	if _, err := e.UploadAll(context.Background(), testToken, nil); err != nil {
		t.Errorf("UploadAll after release: %v", err)
	}
}

// -----------------------------------------------------------------------------
// Start delivers a terminal event and closes the channel.
// -----------------------------------------------------------------------------

func TestEngine_StartDeliversTerminalEvent(t *testing.T) {
	s := newMockStore()
	for i := 0; i < 40; i++ {
		s.addHike(localHike(fmt.Sprintf("Hike %02d", i)))
	}
	r := newMockRemote()
	r.block = make(chan struct{})
	e := newTestEngine(s, r, &mockAssets{})

	ch, err := e.Start(context.Background(), OpUpload, testToken)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(r.block)

	var events []Event
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-ch:
			if !ok {
				done = true
				break
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("channel was not closed")
		}
	}

	// At most one start, forty progress and one terminal event.
	if len(events) == 0 || len(events) > 42 {
		t.Fatalf("received %d events, want 1..42", len(events))
	}
	last := events[len(events)-1]
	if last.Kind != EventSuccess || last.Op != OpUpload {
		t.Fatalf("last event = %+v, want upload success", last)
	}
	if last.Upload == nil || last.Upload.Total != 40 || last.Upload.Succeeded != 40 {
		t.Errorf("result = %+v, want Total=40 Succeeded=40", last.Upload)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Terminal() {
			t.Errorf("non-final event %+v is terminal", ev)
		}
	}
}

func TestEngine_StartUnknownOp(t *testing.T) {
	e := newTestEngine(newMockStore(), newMockRemote(), &mockAssets{})
	if _, err := e.Start(context.Background(), Op(99), testToken); err == nil {
		t.Fatal("expected error for unknown op")
	}
	// A rejected Start must not hold the guard.
	if _, err := e.UploadAll(context.Background(), testToken, nil); err != nil {
		t.Errorf("UploadAll: %v", err)
	}
}

func TestParseOp(t *testing.T) {
	for _, tt := range []struct {
		in      string
		want    Op
		wantErr bool
	}{
		{"upload", OpUpload, false},
		{"download", OpDownload, false},
		{"sideways", 0, true},
	} {
		got, err := ParseOp(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOp(%q) = %v, %v", tt.in, got, err)
		}
		if err == nil && got.String() != tt.in {
			t.Errorf("String() = %q, want %q", got.String(), tt.in)
		}
	}
}

// -----------------------------------------------------------------------------
// Panics inside a run become error events.
// -----------------------------------------------------------------------------

func TestEngine_RecoversPanic(t *testing.T) {
	s := newMockStore()
	s.panicOnLookup = true
	r := newMockRemote()
	r.addListed(remoteHike("r1", "Explodes"))
	e := newTestEngine(s, r, &mockAssets{})

	rec := &recorder{}
	_, err := e.DownloadAll(context.Background(), testToken, rec.sink())
	if err == nil || !strings.Contains(err.Error(), "download aborted") {
		t.Fatalf("err = %v, want download aborted", err)
	}
	if last := rec.last(); last.Kind != EventError {
		t.Errorf("terminal kind = %v, want error", last.Kind)
	}

	s.panicOnLookup = false
	if _, err := e.DownloadAll(context.Background(), testToken, nil); err != nil {
		t.Errorf("DownloadAll after panic: %v", err)
	}
}

// -----------------------------------------------------------------------------
// SyncOnce and Status.
// -----------------------------------------------------------------------------

func TestEngine_SyncOnce(t *testing.T) {
	s := newMockStore()
	s.addHike(localHike("Outbound"))
	r := newMockRemote()
	r.addListed(remoteHike("r50", "Inbound"))
	e := newTestEngine(s, r, &mockAssets{})

	rec := &recorder{}
	up, down, err := e.SyncOnce(context.Background(), testToken, rec.sink())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if up.Succeeded != 1 {
		t.Errorf("upload Succeeded = %d, want 1", up.Succeeded)
	}
	if down.Inserted != 1 {
		t.Errorf("download Inserted = %d, want 1", down.Inserted)
	}

	terminals := 0
	for _, ev := range rec.events {
		if ev.Terminal() {
			terminals++
		}
	}
	if terminals != 2 {
		t.Errorf("terminal events = %d, want 2", terminals)
	}

	snap, err := e.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.TotalHikes != 2 || snap.SyncedHikes != 2 || snap.SyncPercentage != 100 {
		t.Errorf("status = %+v, want 2/2 100%%", snap)
	}
}

func TestEngine_Status(t *testing.T) {
	s := newMockStore()
	s.addHike(remoteHike("r1", "Synced"))
	s.addHike(localHike("Local A"))
	s.addHike(localHike("Local B"))
	gone := localHike("Gone")
	gone.IsDeleted = true
	s.addHike(gone)
	e := newTestEngine(s, newMockRemote(), &mockAssets{})

	snap, err := e.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	want := model.StatusSnapshot{TotalHikes: 3, SyncedHikes: 1, OfflineHikes: 2, SyncPercentage: 33}
	if snap != want {
		t.Errorf("status = %+v, want %+v", snap, want)
	}
}

// -----------------------------------------------------------------------------
// Daemon loop.
// -----------------------------------------------------------------------------

func TestEngine_RunRejectsZeroInterval(t *testing.T) {
	e := newTestEngine(newMockStore(), newMockRemote(), &mockAssets{})
	if err := e.Run(context.Background()); err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}

func TestEngine_RunSyncsUntilCancelled(t *testing.T) {
	s := newMockStore()
	id := s.addHike(localHike("Daemon"))
	r := newMockRemote()
	e := NewEngine(s, r, &mockAssets{}, Options{PollInterval: time.Hour, Token: testToken}, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for s.hike(id).SyncState != model.SyncSynced {
		if time.Now().After(deadline) {
			t.Fatal("immediate sync pass did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
