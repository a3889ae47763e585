package sync

import (
	"fmt"

	"github.com/njoerd114/trailsync/internal/model"
)

// Op identifies a reconciliation operation.
type Op int

const (
	OpUpload Op = iota + 1
	OpDownload
)

func (o Op) String() string {
	switch o {
	case OpUpload:
		return "upload"
	case OpDownload:
		return "download"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ParseOp maps "upload" or "download" to an Op.
func ParseOp(s string) (Op, error) {
	switch s {
	case "upload":
		return OpUpload, nil
	case "download":
		return OpDownload, nil
	default:
		return 0, fmt.Errorf("unknown sync operation %q", s)
	}
}

// EventKind distinguishes the events of one run.
type EventKind int

const (
	// EventStart carries the number of records the run will process.
	EventStart EventKind = iota + 1
	// EventProgress carries how many of them have been processed.
	EventProgress
	// EventSuccess is terminal and carries the run's result.
	EventSuccess
	// EventError is terminal and carries the error that aborted the run.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventProgress:
		return "progress"
	case EventSuccess:
		return "success"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one notification from a reconciliation run. A run emits an
// optional start event, any number of progress events, and exactly one
// terminal event (success or error).
type Event struct {
	Op   Op
	Kind EventKind

	// Total is the number of records in the run (start and progress).
	Total int
	// Done is the number of records processed so far (progress).
	Done int

	// Upload is set on the success event of an upload run.
	Upload *model.UploadResult
	// Download is set on the success event of a download run.
	Download *model.DownloadResult

	// Err is set on the error event.
	Err error
}

// Terminal reports whether e ends its run.
func (e Event) Terminal() bool {
	return e.Kind == EventSuccess || e.Kind == EventError
}

// Sink receives events from a run. It is called on the goroutine executing
// the run and must not block for long.
type Sink func(Event)

func (s Sink) emit(e Event) {
	if s != nil {
		s(e)
	}
}
