package export

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Request is one invocation of the export action.
type Request struct {
	Kind Kind

	// Destination defaults to <dir>/<Kind.DefaultFilename()>.
	Destination string

	// Persist writes the document to the sink.
	Persist bool

	// Confined requires Destination to be a relative path that stays inside
	// the export directory. Requests arriving over HTTP set it.
	Confined bool
}

// Result is the outcome of a successful export. A failed write leaves Data
// valid and is reported in PersistErr.
type Result struct {
	JobID       string            `json:"job_id"`
	Kind        Kind              `json:"kind"`
	ItemCount   int               `json:"item_count"`
	Data        []json.RawMessage `json:"data"`
	Destination string            `json:"destination,omitempty"`
	Persisted   bool              `json:"persisted"`
	PersistErr  error             `json:"-"`
}

// Action is the user-facing export operation: run a job, hand back its
// items and optionally persist them.
type Action struct {
	exporter *Exporter
	sink     Sink
	dir      string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewAction creates an action writing to sink below dir.
func NewAction(exporter *Exporter, sink Sink, dir string, logger zerolog.Logger) *Action {
	if dir == "" {
		dir = "."
	}
	return &Action{
		exporter: exporter,
		sink:     sink,
		dir:      dir,
		now:      time.Now,
		logger:   logger.With().Str("component", "export-action").Logger(),
	}
}

// Invoke runs the export described by req.
func (a *Action) Invoke(ctx context.Context, req Request) (*Result, error) {
	destination := req.Destination
	if req.Persist && req.Confined {
		resolved, err := ResolveUnder(a.dir, destination)
		if err != nil {
			return nil, err
		}
		destination = resolved
	}

	job, err := a.exporter.Run(ctx, req.Kind)
	if err != nil {
		return nil, err
	}

	res := &Result{
		JobID:     job.ID,
		Kind:      job.Kind,
		ItemCount: len(job.Items),
		Data:      job.Items,
	}
	if !req.Persist {
		return res, nil
	}

	res.Destination = destination
	if res.Destination == "" {
		res.Destination = filepath.Join(a.dir, req.Kind.DefaultFilename())
	}
	if a.sink == nil {
		res.PersistErr = errNoSink
		return res, nil
	}

	doc := Document{
		Kind:       job.Kind,
		ItemCount:  len(job.Items),
		ExportedAt: a.now(),
		Items:      job.Items,
	}
	if err := a.sink.Write(ctx, res.Destination, doc); err != nil {
		a.logger.Error().
			Err(err).
			Str("destination", res.Destination).
			Str("job_id", job.ID).
			Msg("Failed to persist export")
		res.PersistErr = err
		return res, nil
	}

	res.Persisted = true
	a.logger.Info().
		Str("destination", res.Destination).
		Int("items", res.ItemCount).
		Msg("Export persisted")
	return res, nil
}

// ResolveUnder joins the relative path rel onto dir. Absolute paths and
// paths that leave dir fail with ErrInvalidDestination. An empty rel
// resolves to "".
func ResolveUnder(dir, rel string) (string, error) {
	if rel == "" {
		return "", nil
	}
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidDestination, rel)
	}
	joined := filepath.Join(dir, rel)
	within, err := filepath.Rel(filepath.Clean(dir), joined)
	if err != nil || within == "." || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q leaves the export directory", ErrInvalidDestination, rel)
	}
	return joined, nil
}
