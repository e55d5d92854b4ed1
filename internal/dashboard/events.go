package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/efebarandurmaz/sqllineage/internal/report"
)

// Emitter records run progress in a Store and broadcasts it on a Hub. It
// satisfies pipeline.Observer and is safe for concurrent use.
type Emitter struct {
	store *Store
	hub   *Hub
}

// NewEmitter creates an Emitter.
func NewEmitter(store *Store, hub *Hub) *Emitter {
	return &Emitter{store: store, hub: hub}
}

// RunStarted tracks a new run.
func (e *Emitter) RunStarted(rep *report.Report) {
	run := Run{
		ID:        rep.RunID,
		Provider:  rep.Provider,
		Model:     rep.Model,
		Mode:      rep.LLMMode,
		Status:    StatusRunning,
		Planned:   rep.Planned,
		StartedAt: rep.StartedAt,
	}
	e.store.CreateRun(run)
	e.broadcast(EventRunStarted, run.ID, run)
}

// FileDone folds one file result into its run. Unknown run ids start a new
// running entry.
func (e *Emitter) FileDone(runID string, res report.FileResult) {
	ev := FileEvent{
		Timestamp:  time.Now(),
		RunID:      runID,
		Index:      res.Index,
		Path:       res.Path,
		Status:     res.Status,
		Reason:     res.Reason,
		Statements: res.Statements,
		Saved:      res.Saved,
		DurationMS: res.Duration.Milliseconds(),
	}
	e.store.AddFile(ev, res)
	e.broadcast(EventFileDone, runID, ev)
}

// RunFinished closes a run. err is the run's own error: cancellation marks
// it cancelled, anything else failed.
func (e *Emitter) RunFinished(rep *report.Report, err error) {
	run := e.store.UpdateRun(rep.RunID, func(r *Run) {
		now := time.Now()
		if !rep.FinishedAt.IsZero() {
			now = rep.FinishedAt
		}
		r.CompletedAt = &now
		r.Totals = rep.Totals
		switch {
		case err == nil:
			r.Status = StatusCompleted
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			r.Status = StatusCancelled
			r.Error = err.Error()
		default:
			r.Status = StatusFailed
			r.Error = err.Error()
		}
	})
	e.broadcast(EventRunFinished, run.ID, run)
}

func (e *Emitter) broadcast(typ, runID string, data any) {
	e.hub.Broadcast(&Event{
		Type:      typ,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      data,
	})
}
