// Package report collects per-file outcomes of a run and renders them.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/efebarandurmaz/sqllineage/internal/lineage"
	"github.com/efebarandurmaz/sqllineage/internal/store"
)

// FileResult is the outcome of one file.
type FileResult struct {
	Index  int    `json:"index"`
	Path   string `json:"path"`
	Status string `json:"status"`
	// Reason explains a SKIP or ERROR.
	Reason string `json:"reason,omitempty"`

	Statements        int            `json:"statements"`
	Analyzed          int            `json:"analyzed"`
	SkippedStatements int            `json:"skipped_statements"`
	Lineages          []lineage.Pair `json:"lineages,omitempty"`
	Saved             int            `json:"saved"`
	Warnings          []string       `json:"warnings,omitempty"`
	Errors            []string       `json:"errors,omitempty"`
	Duration          time.Duration  `json:"duration_ms"`
}

// Totals summarize a run.
type Totals struct {
	Files    int `json:"files"`
	Success  int `json:"success"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
	Queries  int `json:"queries"`
	Lineages int `json:"lineages"`
}

// Report collects statistics for a full run. Add is safe for concurrent use.
type Report struct {
	RunID      string        `json:"run_id"`
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	LLMMode    string        `json:"llm_mode"` // "llm" or "passthrough"
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`
	Planned    int           `json:"planned"`
	Files      []FileResult  `json:"files"`
	Totals     Totals        `json:"totals"`

	mu sync.Mutex
}

// New starts tracking a run over planned files.
func New(runID, provider, model string, planned int) *Report {
	mode := "llm"
	if provider == "" || provider == "none" {
		mode = "passthrough"
	}
	return &Report{
		RunID:     runID,
		Provider:  provider,
		Model:     model,
		LLMMode:   mode,
		StartedAt: time.Now(),
		Planned:   planned,
	}
}

// Add records one file result.
func (r *Report) Add(f FileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Files = append(r.Files, f)
}

// Finish orders files by input position and computes totals.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	sort.SliceStable(r.Files, func(i, j int) bool { return r.Files[i].Index < r.Files[j].Index })

	r.Totals = Tally(r.Files)
}

// Tally computes totals over file results.
func Tally(files []FileResult) Totals {
	t := Totals{Files: len(files)}
	for _, f := range files {
		switch f.Status {
		case store.StatusSuccess:
			t.Success++
			t.Queries += f.Analyzed
			t.Lineages += f.Saved
		case store.StatusSkip:
			t.Skipped++
		case store.StatusError:
			t.Errors++
		}
	}
	return t
}

// Skipped lists the paths of skipped files.
func (r *Report) Skipped() []string {
	var out []string
	for _, f := range r.Files {
		if f.Status == store.StatusSkip {
			out = append(out, f.Path)
		}
	}
	return out
}

// Failed lists failed files with their reason.
func (r *Report) Failed() []string {
	var out []string
	for _, f := range r.Files {
		if f.Status == store.StatusError {
			out = append(out, fmt.Sprintf("%s (%s)", f.Path, f.Reason))
		}
	}
	return out
}

const rule = "================================================================================"
const thinRule = "--------------------------------------------------------------------------------"

// WriteText writes the full report: a header, one block per file, totals and
// the skipped and failed file lists.
func (r *Report) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("%s\n", rule)
	ew.printf("%s\n", center("TABLE LINEAGE EXTRACTION REPORT", len(rule)))
	ew.printf("%s\n", rule)
	ew.printf("Run ID:        %s\n", r.RunID)
	ew.printf("Started:       %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	ew.printf("Model:         %s (%s)\n", r.Model, r.LLMMode)
	ew.printf("Target files:  %d\n", r.Planned)
	ew.printf("%s\n\n", rule)

	for _, f := range r.Files {
		ew.printf("%s\n", thinRule)
		ew.printf("[%d/%d] %s\n", f.Index+1, r.Planned, f.Path)
		ew.printf("%s\n", thinRule)
		if f.Statements > 0 || f.Status != store.StatusSkip {
			ew.printf("Statements:        %d\n", f.Statements)
			ew.printf("Analyzed:          %d\n", f.Analyzed)
			ew.printf("Skipped (no lineage): %d\n", f.SkippedStatements)
		}
		for _, p := range f.Lineages {
			ew.printf("  lineage: %s -> %s\n", p.Source, p.Target)
		}
		for _, warn := range f.Warnings {
			ew.printf("  warning: %s\n", warn)
		}
		for _, e := range f.Errors {
			ew.printf("  error: %s\n", e)
		}
		if f.Status == store.StatusSuccess {
			ew.printf("Saved lineages:    %d\n", f.Saved)
		}
		if f.Reason != "" {
			ew.printf("Status: %s (%s)\n\n", f.Status, f.Reason)
		} else {
			ew.printf("Status: %s\n\n", f.Status)
		}
	}

	t := r.Totals
	ew.printf("%s\n", rule)
	ew.printf("%s\n", center("SUMMARY", len(rule)))
	ew.printf("%s\n", rule)
	ew.printf("Finished:      %s\n", r.FinishedAt.Format("2006-01-02 15:04:05"))
	ew.printf("Duration:      %s\n\n", r.Duration.Round(time.Millisecond))
	ew.printf("Target files:  %d\n", r.Planned)
	ew.printf("  - success:   %d\n", t.Success)
	ew.printf("  - skipped:   %d\n", t.Skipped)
	ew.printf("  - errors:    %d\n\n", t.Errors)
	ew.printf("Queries analyzed: %d\n", t.Queries)
	ew.printf("Lineages saved:   %d\n", t.Lineages)
	ew.printf("%s\n", rule)

	if skipped := r.Skipped(); len(skipped) > 0 {
		ew.printf("\n[ Skipped files ]\n%s\n", thinRule)
		for _, s := range skipped {
			ew.printf("  - %s\n", s)
		}
	}
	if failed := r.Failed(); len(failed) > 0 {
		ew.printf("\n[ Failed files ]\n%s\n", thinRule)
		for _, s := range failed {
			ew.printf("  - %s\n", s)
		}
	}
	ew.printf("\n%s\nEnd of report\n%s\n", rule, rule)
	return ew.err
}

// PrintSummary writes the short console summary.
func (r *Report) PrintSummary(w io.Writer) {
	t := r.Totals
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║        SQL LINEAGE RUN SUMMARY       ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-24s║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ LLM Mode:    %-24s║\n", r.LLMMode)
	fmt.Fprintf(w, "║ Model:       %-24s║\n", r.Model)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Files:       %-24d║\n", r.Planned)
	fmt.Fprintf(w, "║   success:   %-24d║\n", t.Success)
	fmt.Fprintf(w, "║   skipped:   %-24d║\n", t.Skipped)
	fmt.Fprintf(w, "║   errors:    %-24d║\n", t.Errors)
	fmt.Fprintf(w, "║ Queries:     %-24d║\n", t.Queries)
	fmt.Fprintf(w, "║ Lineages:    %-24d║\n", t.Lineages)
	if failed := r.Failed(); len(failed) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range failed {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FileName is the report file name for a run started at t.
func FileName(t time.Time) string {
	return "result_report_" + t.Format("20060102_150405") + ".txt"
}

// Save writes the text report into dir and returns its path.
func (r *Report) Save(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, FileName(r.StartedAt))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := r.WriteText(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	return path, nil
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", (width-len(s))/2) + s
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
