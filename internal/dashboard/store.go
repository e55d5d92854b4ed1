package dashboard

import (
	"sort"
	"sync"
	"time"

	"github.com/efebarandurmaz/sqllineage/internal/report"
)

const (
	maxRuns        = 100
	maxTotalEvents = 10000
)

// Store keeps runs and file events in memory. Readers get copies.
type Store struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	events []FileEvent
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		runs:   make(map[string]*Run),
		events: make([]FileEvent, 0, 256),
	}
}

// CreateRun adds or replaces a run.
func (s *Store) CreateRun(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = &run
	s.evictOldRuns()
}

// GetRun returns a copy of the run with id.
func (s *Store) GetRun(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// ListRuns returns every run, most recently started first.
func (s *Store) ListRuns() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs
}

// UpdateRun applies fn to the run with id, creating a running entry first
// when the id is new. It returns a copy of the updated run.
func (s *Store) UpdateRun(id string, fn func(*Run)) Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		run = &Run{ID: id, Status: StatusRunning, StartedAt: time.Now()}
		s.runs[id] = run
		defer s.evictOldRuns()
	}
	fn(run)
	return *run
}

// AddFile appends a file event and folds it into its run's totals.
func (s *Store) AddFile(ev FileEvent, res report.FileResult) Run {
	run := s.UpdateRun(ev.RunID, func(r *Run) { addTotals(&r.Totals, res) })

	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > maxTotalEvents {
		s.events = s.events[len(s.events)-maxTotalEvents:]
	}
	s.mu.Unlock()
	return run
}

func addTotals(t *report.Totals, res report.FileResult) {
	one := report.Tally([]report.FileResult{res})
	t.Files += one.Files
	t.Success += one.Success
	t.Skipped += one.Skipped
	t.Errors += one.Errors
	t.Queries += one.Queries
	t.Lineages += one.Lineages
}

// Files returns the file events of a run, most recent first. limit <= 0
// returns all of them.
func (s *Store) Files(runID string, limit int) []FileEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []FileEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].RunID != runID {
			continue
		}
		out = append(out, s.events[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Stats aggregates every run in the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{TotalRuns: len(s.runs)}
	var total time.Duration
	var finished, success, attempted int
	for _, run := range s.runs {
		switch run.Status {
		case StatusRunning:
			st.ActiveRuns++
		case StatusCompleted:
			st.CompletedRuns++
		case StatusFailed, StatusCancelled:
			st.FailedRuns++
		}
		if run.CompletedAt != nil {
			finished++
			total += run.CompletedAt.Sub(run.StartedAt)
		}
		st.Files += run.Totals.Files
		st.Lineages += run.Totals.Lineages
		success += run.Totals.Success
		attempted += run.Totals.Files - run.Totals.Skipped
	}
	if finished > 0 {
		st.AvgDuration = total.Seconds() / float64(finished)
	}
	if attempted > 0 {
		st.SuccessRate = float64(success) / float64(attempted)
	}
	return st
}

// evictOldRuns drops the oldest finished runs beyond maxRuns. Caller holds
// the lock.
func (s *Store) evictOldRuns() {
	if len(s.runs) <= maxRuns {
		return
	}

	type runTime struct {
		id   string
		time time.Time
	}
	var done []runTime
	for id, run := range s.runs {
		if run.Done() {
			t := run.StartedAt
			if run.CompletedAt != nil {
				t = *run.CompletedAt
			}
			done = append(done, runTime{id: id, time: t})
		}
	}
	sort.Slice(done, func(i, j int) bool {
		return done[i].time.Before(done[j].time)
	})

	excess := len(s.runs) - maxRuns
	for i := 0; i < excess && i < len(done); i++ {
		delete(s.runs, done[i].id)
	}
}
