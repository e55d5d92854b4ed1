package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"

	"github.com/efebarandurmaz/sqllineage/internal/report"
)

// ErrNoRunner is returned when an activity runs before SetDependencies.
var ErrNoRunner = errors.New("temporal: no file processor configured")

// FileProcessor handles one file; *pipeline.Runner satisfies it.
type FileProcessor interface {
	ProcessFile(ctx context.Context, index int, path string) report.FileResult
}

// FileObserver is told about every processed file.
type FileObserver interface {
	FileDone(runID string, res report.FileResult)
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Processor FileProcessor
	// Observer is optional.
	Observer FileObserver
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// ProcessFileActivity extracts and persists the lineage of one file.
func ProcessFileActivity(ctx context.Context, input FileInput) (report.FileResult, error) {
	if deps == nil || deps.Processor == nil {
		return report.FileResult{}, ErrNoRunner
	}
	if activity.IsActivity(ctx) {
		activity.RecordHeartbeat(ctx, input.Path)
	}
	res := deps.Processor.ProcessFile(ctx, input.Index, input.Path)
	if deps.Observer != nil {
		deps.Observer.FileDone(input.RunID, res)
	}
	return res, nil
}
