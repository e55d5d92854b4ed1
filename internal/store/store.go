// Package store defines where validated lineage edges go.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/efebarandurmaz/sqllineage/internal/lineage"
)

// ErrClosed is returned by a sink used after Close.
var ErrClosed = errors.New("store: closed")

// File statuses recorded in the processed-files ledger and the run report.
const (
	StatusSuccess = "SUCCESS"
	StatusSkip    = "SKIP"
	StatusError   = "ERROR"
)

// Sink accepts validated edges.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// SaveAll persists edges. Saving the same (source, target, file) again
	// updates the stored row.
	SaveAll(ctx context.Context, edges []lineage.Edge) error
	// Close releases resources.
	Close(ctx context.Context) error
}

// Ledger remembers which file contents were already processed.
type Ledger interface {
	// IsProcessed reports whether path was processed successfully with the
	// same content fingerprint.
	IsProcessed(ctx context.Context, path, fingerprint string) (bool, error)
	// MarkProcessed records the outcome for path.
	MarkProcessed(ctx context.Context, rec ProcessedFile) error
}

// ProcessedFile is one ledger row.
type ProcessedFile struct {
	Path        string
	Fingerprint string
	Status      string
	Statements  int
	Edges       int
}

// Multi fans SaveAll out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) SaveAll(ctx context.Context, edges []lineage.Edge) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveAll(ctx, edges); err != nil {
			errs = append(errs, &SinkError{Sink: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, &SinkError{Sink: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// SinkError attributes a failure to one sink.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("%s: %v", e.Sink, e.Err) }

func (e *SinkError) Unwrap() error { return e.Err }

// Discard drops every edge. Runs without a configured store use it.
type Discard struct{}

func (Discard) Name() string                                  { return "discard" }
func (Discard) SaveAll(context.Context, []lineage.Edge) error { return nil }
func (Discard) Close(context.Context) error                   { return nil }
