package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/trailsync/internal/model"
)

const (
	otelScope              = "trailsync/sync"
	spanUpload             = "sync.upload"
	spanDownload           = "sync.download"
	metricUploaded         = "trailsync.sync.uploaded"
	metricUploadFailures   = "trailsync.sync.upload_failures"
	metricDownloaded       = "trailsync.sync.downloaded"
	metricDownloadFailures = "trailsync.sync.download_failures"
	metricDuplicates       = "trailsync.sync.duplicates"
	metricErrors           = "trailsync.sync.errors"
)

// eventBuffer is the capacity of channels returned by Start. One slot is
// reserved for the terminal event.
const eventBuffer = 16

// ErrRunInProgress is returned when a run is requested while another run on
// the same Engine has not finished.
var ErrRunInProgress = errors.New("a sync run is already in progress")

// Options configures an Engine.
type Options struct {
	// PollInterval is the daemon loop period used by Run.
	PollInterval time.Duration
	// Token is the bearer token used by Run.
	Token string
}

// Engine runs upload and download reconciliation against one record store and
// one remote service. At most one run is in flight at a time. Create one with
// [NewEngine].
type Engine struct {
	store        RecordStore
	up           *uploader
	down         *downloader
	pollInterval time.Duration
	token        string
	log          *slog.Logger

	mu      sync.Mutex
	running bool

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer              trace.Tracer
	cntUploaded         metric.Int64Counter
	cntUploadFailures   metric.Int64Counter
	cntDownloaded       metric.Int64Counter
	cntDownloadFailures metric.Int64Counter
	cntDuplicates       metric.Int64Counter
	cntErrors           metric.Int64Counter
}

// NewEngine creates an Engine. The store is the only shared mutable resource;
// the engine's own run guard keeps reconciliation sequential.
func NewEngine(store RecordStore, remote RemoteGateway, transfer AssetTransfer, opts Options, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	e := &Engine{
		store:        store,
		pollInterval: opts.PollInterval,
		token:        opts.Token,
		log:          logger,

		tracer:              tracer,
		cntUploaded:         mustCounter(metricUploaded, "Number of records uploaded or deleted remotely"),
		cntUploadFailures:   mustCounter(metricUploadFailures, "Number of records that failed to upload"),
		cntDownloaded:       mustCounter(metricDownloaded, "Number of records materialised from the remote service"),
		cntDownloadFailures: mustCounter(metricDownloadFailures, "Number of remote records that failed to materialise"),
		cntDuplicates:       mustCounter(metricDuplicates, "Number of remote records skipped as already present"),
		cntErrors:           mustCounter(metricErrors, "Number of aborted runs and unreachable remote lists"),
	}
	e.up = &uploader{store: store, remote: remote, assets: transfer, now: time.Now, log: logger}
	e.down = &downloader{
		store: store, remote: remote, assets: transfer, now: time.Now, log: logger,
		onListFailure: func(ctx context.Context) { e.cntErrors.Add(ctx, 1) },
	}
	return e
}

// UploadAll runs one upload pass and blocks until it ends. Events are
// delivered to sink on the calling goroutine; the last one is terminal.
func (e *Engine) UploadAll(ctx context.Context, token string, sink Sink) (model.UploadResult, error) {
	if err := e.acquire(); err != nil {
		sink.emit(Event{Op: OpUpload, Kind: EventError, Err: err})
		return model.UploadResult{}, err
	}
	defer e.release()
	return e.upload(ctx, token, sink)
}

// DownloadAll runs one download pass and blocks until it ends. Events are
// delivered to sink on the calling goroutine; the last one is terminal.
func (e *Engine) DownloadAll(ctx context.Context, token string, sink Sink) (model.DownloadResult, error) {
	if err := e.acquire(); err != nil {
		sink.emit(Event{Op: OpDownload, Kind: EventError, Err: err})
		return model.DownloadResult{}, err
	}
	defer e.release()
	return e.download(ctx, token, sink)
}

// SyncOnce runs an upload pass followed by a download pass under a single
// run guard. sink sees one terminal event per pass. The download is skipped
// if the upload aborts.
func (e *Engine) SyncOnce(ctx context.Context, token string, sink Sink) (model.UploadResult, model.DownloadResult, error) {
	if err := e.acquire(); err != nil {
		sink.emit(Event{Op: OpUpload, Kind: EventError, Err: err})
		return model.UploadResult{}, model.DownloadResult{}, err
	}
	defer e.release()

	up, err := e.upload(ctx, token, sink)
	if err != nil {
		return up, model.DownloadResult{}, err
	}
	down, err := e.download(ctx, token, sink)
	return up, down, err
}

// Start launches op on its own goroutine and returns a channel of its events.
// Progress events are dropped when the reader falls behind; the terminal
// event is always delivered, after which the channel is closed.
func (e *Engine) Start(ctx context.Context, op Op, token string) (<-chan Event, error) {
	if op != OpUpload && op != OpDownload {
		return nil, fmt.Errorf("starting sync: unknown operation %v", op)
	}
	if err := e.acquire(); err != nil {
		return nil, err
	}

	ch := make(chan Event, eventBuffer)
	go func() {
		defer close(ch)
		defer e.release()

		var terminal Event
		sink := func(ev Event) {
			if ev.Terminal() {
				terminal = ev
				return
			}
			// Only this goroutine sends, so the length check keeps the
			// last slot free for the terminal event.
			if len(ch) < cap(ch)-1 {
				ch <- ev
			}
		}

		switch op {
		case OpUpload:
			_, _ = e.upload(ctx, token, sink)
		case OpDownload:
			_, _ = e.download(ctx, token, sink)
		}
		ch <- terminal
	}()
	return ch, nil
}

// Run starts the daemon loop: an immediate sync followed by one every
// PollInterval. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", e.pollInterval)
	}
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// Run an immediate first pass.
	e.scheduledSync(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()
		case <-ticker.C:
			e.scheduledSync(ctx)
		}
	}
}

func (e *Engine) scheduledSync(ctx context.Context) {
	_, _, err := e.SyncOnce(ctx, e.token, nil)
	switch {
	case errors.Is(err, ErrRunInProgress):
		e.log.Info("scheduled sync skipped, another run is in progress")
	case err != nil && ctx.Err() == nil:
		e.log.Error("scheduled sync failed", "error", err)
	}
}

// upload runs the upload reconciler under a span, records metrics, recovers
// panics, and emits the terminal event.
func (e *Engine) upload(ctx context.Context, token string, sink Sink) (res model.UploadResult, err error) {
	ctx, span := e.tracer.Start(ctx, spanUpload)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			res, err = model.UploadResult{}, fmt.Errorf("upload aborted: %v", r)
		}
		if err != nil {
			e.cntErrors.Add(ctx, 1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.log.Error("upload failed", "error", err)
			sink.emit(Event{Op: OpUpload, Kind: EventError, Err: err})
			return
		}
		if res.Succeeded > 0 {
			e.cntUploaded.Add(ctx, int64(res.Succeeded))
		}
		if res.Failed > 0 {
			e.cntUploadFailures.Add(ctx, int64(res.Failed))
		}
		span.SetAttributes(
			attribute.Int("sync.total", res.Total),
			attribute.Int("sync.succeeded", res.Succeeded),
			attribute.Int("sync.failed", res.Failed),
		)
		out := res
		sink.emit(Event{Op: OpUpload, Kind: EventSuccess, Upload: &out})
	}()

	return e.up.run(ctx, token, sink)
}

// download is the download counterpart of upload.
func (e *Engine) download(ctx context.Context, token string, sink Sink) (res model.DownloadResult, err error) {
	ctx, span := e.tracer.Start(ctx, spanDownload)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			res, err = model.DownloadResult{}, fmt.Errorf("download aborted: %v", r)
		}
		if err != nil {
			e.cntErrors.Add(ctx, 1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.log.Error("download failed", "error", err)
			sink.emit(Event{Op: OpDownload, Kind: EventError, Err: err})
			return
		}
		if res.Inserted > 0 {
			e.cntDownloaded.Add(ctx, int64(res.Inserted))
		}
		if res.Failed > 0 {
			e.cntDownloadFailures.Add(ctx, int64(res.Failed))
		}
		if res.SkippedDuplicate > 0 {
			e.cntDuplicates.Add(ctx, int64(res.SkippedDuplicate))
		}
		span.SetAttributes(
			attribute.Int("sync.fetched", res.TotalFetched),
			attribute.Int("sync.inserted", res.Inserted),
			attribute.Int("sync.skipped_duplicates", res.SkippedDuplicate),
			attribute.Int("sync.failed", res.Failed),
		)
		out := res
		sink.emit(Event{Op: OpDownload, Kind: EventSuccess, Download: &out})
	}()

	return e.down.run(ctx, token, sink)
}

func (e *Engine) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunInProgress
	}
	e.running = true
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}
