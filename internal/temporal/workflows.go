package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/sqllineage/internal/report"
)

// LineageInput holds the workflow parameters.
type LineageInput struct {
	RunID string
	Paths []string

	// Parallelism bounds concurrent file activities. Values below 1 mean one.
	Parallelism int
}

// LineageOutput holds the workflow result.
type LineageOutput struct {
	RunID  string
	Files  []report.FileResult
	Totals report.Totals
}

// FileInput identifies one file of a batch.
type FileInput struct {
	RunID string
	Index int
	Path  string
}

// LineageWorkflow runs ProcessFileActivity for every path and collects the
// results in input order. A file's own failures are part of its result; only
// an activity that cannot run at all fails the workflow.
func LineageWorkflow(ctx workflow.Context, input LineageInput) (*LineageOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	limit := input.Parallelism
	if limit < 1 {
		limit = 1
	}

	files := make([]report.FileResult, len(input.Paths))
	for start := 0; start < len(input.Paths); start += limit {
		end := min(start+limit, len(input.Paths))

		futures := make([]workflow.Future, 0, end-start)
		for i := start; i < end; i++ {
			futures = append(futures, workflow.ExecuteActivity(ctx, ProcessFileActivity, FileInput{RunID: input.RunID, Index: i, Path: input.Paths[i]}))
		}
		for j, f := range futures {
			i := start + j
			if err := f.Get(ctx, &files[i]); err != nil {
				return nil, fmt.Errorf("process %s: %w", input.Paths[i], err)
			}
		}
		logger.Info("batch step done", "processed", end, "total", len(input.Paths))
	}

	return &LineageOutput{
		RunID:  input.RunID,
		Files:  files,
		Totals: report.Tally(files),
	}, nil
}
