package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/client"
)

// PerPage is the page size of every export request.
const PerPage = 100

// Kind is the exported list.
type Kind string

const (
	KindCollection Kind = "collection"
	KindWantlist   Kind = "wantlist"
)

// ParseKind converts a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCollection, KindWantlist:
		return k, nil
	}
	return "", fmt.Errorf("unknown export kind %q", s)
}

// Resource returns the list resource of the kind.
func (k Kind) Resource() client.Resource {
	if k == KindWantlist {
		return client.ResourceWants
	}
	return client.ResourceCollectionReleases
}

// Action returns the cooldown key of the kind.
func (k Kind) Action() string {
	return "export:" + string(k)
}

// DefaultFilename returns the file name used when no destination is given.
func (k Kind) DefaultFilename() string {
	return "discogs_" + string(k) + ".json"
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is one export run. Items holds the basic_information of every item in
// upstream order and is only set once the job is done.
type Job struct {
	ID           string
	Kind         Kind
	PagesFetched int

	// TotalPages is 0 until the first page reported it.
	TotalPages int

	Items      []json.RawMessage
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// String implements fmt.Stringer for log output.
func (j *Job) String() string {
	return fmt.Sprintf("%s export %s (%s, %d pages)", j.Kind, j.ID, j.Status, j.PagesFetched)
}

// Duration returns how long the job ran.
func (j *Job) Duration() time.Duration {
	if j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

var (
	// ErrExportFailed is matched by every *Error.
	ErrExportFailed = errors.New("export failed")

	// ErrAlreadyRunning is the cause of an Aborted error when the same kind
	// is already being exported.
	ErrAlreadyRunning = errors.New("export already running")

	// ErrUsernameUnknown is the cause of an Aborted error before the
	// username is resolved.
	ErrUsernameUnknown = errors.New("username not yet known")
)

// Reason classifies an export failure.
type Reason string

const (
	// ReasonRateLimited means a local denial or an upstream 429.
	ReasonRateLimited Reason = "rate_limited"

	// ReasonUpstreamError means Discogs answered with an error.
	ReasonUpstreamError Reason = "upstream_error"

	// ReasonAborted means the export was cancelled or could not start.
	ReasonAborted Reason = "aborted"
)

// Error is a failed export. No partial data is ever returned with it.
type Error struct {
	Reason Reason
	Kind   Kind

	// Page is the page being fetched when the export failed, 0 before the first.
	Page int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("export %s failed (%s) at page %d: %v", e.Kind, e.Reason, e.Page, e.Err)
	}
	return fmt.Sprintf("export %s failed (%s): %v", e.Kind, e.Reason, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrExportFailed.
func (e *Error) Is(target error) bool {
	return target == ErrExportFailed
}

// ReasonOf returns the reason of an export error, "" for other errors.
func ReasonOf(err error) Reason {
	var exportErr *Error
	if errors.As(err, &exportErr) {
		return exportErr.Reason
	}
	return ""
}

var errNoSink = errors.New("no export sink configured")

// ErrInvalidDestination is returned for a confined destination outside the
// export directory.
var ErrInvalidDestination = errors.New("invalid export destination")
