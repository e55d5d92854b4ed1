// Package pipeline runs lineage extraction over a batch of SQL files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/sqllineage/internal/agents"
	"github.com/efebarandurmaz/sqllineage/internal/agents/analyzer"
	"github.com/efebarandurmaz/sqllineage/internal/lineage"
	"github.com/efebarandurmaz/sqllineage/internal/llm"
	"github.com/efebarandurmaz/sqllineage/internal/observability"
	"github.com/efebarandurmaz/sqllineage/internal/query"
	"github.com/efebarandurmaz/sqllineage/internal/report"
	"github.com/efebarandurmaz/sqllineage/internal/source"
	"github.com/efebarandurmaz/sqllineage/internal/store"
)

// Skip reasons written to the report.
const (
	ReasonNotFound     = "file not found"
	ReasonNoStatements = "no statements to analyze"
	ReasonProcessed    = "already processed"
)

// Indexer stores analyzed statements for similarity search.
type Indexer interface {
	IndexQueries(ctx context.Context, qs []query.Query, pairs map[int][]lineage.Pair) error
}

// Observer follows a run's progress. FileDone may be called from several
// goroutines at once.
type Observer interface {
	RunStarted(rep *report.Report)
	FileDone(runID string, res report.FileResult)
	RunFinished(rep *report.Report, err error)
}

// Options tune a Runner.
type Options struct {
	// Concurrency is the number of files processed at once. Values below 1
	// mean one.
	Concurrency int
	// SkipProcessed skips files the ledger has already seen with the same
	// content.
	SkipProcessed bool
	// Model is recorded on every edge.
	Model string
}

// Runner extracts lineage file by file. Statements within one file are
// analyzed in order.
type Runner struct {
	agent    agents.Agent
	provider llm.Provider
	sink     store.Sink
	ledger   store.Ledger
	indexer  Indexer
	metrics  *observability.Metrics
	observer Observer
	logger   zerolog.Logger
	opts     Options
}

// Option configures optional collaborators.
type Option func(*Runner)

// WithLedger enables the processed-files ledger.
func WithLedger(l store.Ledger) Option { return func(r *Runner) { r.ledger = l } }

// WithIndexer indexes analyzed statements after each file.
func WithIndexer(i Indexer) Option { return func(r *Runner) { r.indexer = i } }

// WithMetrics records Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithObserver reports progress to o.
func WithObserver(o Observer) Option { return func(r *Runner) { r.observer = o } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(r *Runner) { r.logger = l } }

// New creates a Runner. provider may be nil, in which case statements pass
// through without edges. A nil sink discards edges.
func New(agent agents.Agent, provider llm.Provider, sink store.Sink, opts Options, options ...Option) *Runner {
	if sink == nil {
		sink = store.Discard{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	r := &Runner{
		agent:    agent,
		provider: provider,
		sink:     sink,
		opts:     opts,
		logger:   zerolog.Nop(),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// ProviderName is the provider label used in reports.
func (r *Runner) ProviderName() string {
	if r.provider == nil {
		return "none"
	}
	return r.provider.Name()
}

// Run processes paths and returns the finished report. Files that were not
// started before ctx was cancelled are absent from the report, and ctx's
// error is returned alongside it.
func (r *Runner) Run(ctx context.Context, paths []string) (*report.Report, error) {
	rep := report.New(uuid.NewString(), r.ProviderName(), r.opts.Model, len(paths))
	r.logger.Info().
		Str("run_id", rep.RunID).
		Int("files", len(paths)).
		Int("concurrency", r.opts.Concurrency).
		Msg("run started")
	if r.observer != nil {
		r.observer.RunStarted(rep)
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res := r.ProcessFile(ctx, i, path)
			rep.Add(res)
			if r.observer != nil {
				r.observer.FileDone(rep.RunID, res)
			}
			return nil
		})
	}
	_ = g.Wait()
	rep.Finish()

	r.logger.Info().
		Str("run_id", rep.RunID).
		Int("success", rep.Totals.Success).
		Int("skipped", rep.Totals.Skipped).
		Int("errors", rep.Totals.Errors).
		Int("lineages", rep.Totals.Lineages).
		Dur("duration", rep.Duration).
		Msg("run finished")
	if r.observer != nil {
		r.observer.RunFinished(rep, ctx.Err())
	}
	return rep, ctx.Err()
}

// ProcessFile reads, analyzes and persists one file. It never returns an
// error: every failure is folded into the result's status.
func (r *Runner) ProcessFile(ctx context.Context, index int, path string) report.FileResult {
	start := time.Now()
	ctx, span := observability.StartFileSpan(ctx, path)
	defer span.End()

	log := r.logger.With().Str("file", path).Logger()
	res := r.processFile(ctx, log, index, path)
	res.Duration = time.Since(start)

	if res.Status == store.StatusError {
		observability.RecordError(span, errors.New(res.Reason))
	}
	r.metrics.RecordFile(res.Status)
	log.Info().
		Str("status", res.Status).
		Str("reason", res.Reason).
		Int("statements", res.Statements).
		Int("saved", res.Saved).
		Msg("file processed")
	return res
}

func (r *Runner) processFile(ctx context.Context, log zerolog.Logger, index int, path string) report.FileResult {
	res := report.FileResult{Index: index, Path: path}

	f, err := source.Read(path)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return skip(res, ReasonNotFound)
		}
		return fail(res, err)
	}

	if r.opts.SkipProcessed && r.ledger != nil {
		done, err := r.ledger.IsProcessed(ctx, path, f.Fingerprint)
		if err != nil {
			log.Warn().Err(err).Msg("ledger lookup failed")
		} else if done {
			return skip(res, ReasonProcessed)
		}
	}

	qs := query.FromLines(path, f.Lines)
	for _, q := range qs {
		r.metrics.RecordStatement(q.NeedsLineage)
	}
	analyzable := query.Analyzable(qs)
	res.Statements = len(qs)
	res.Analyzed = len(analyzable)
	res.SkippedStatements = len(qs) - len(analyzable)
	if len(analyzable) == 0 {
		res = skip(res, ReasonNoStatements)
		r.mark(ctx, log, f, res)
		return res
	}

	var edges []lineage.Edge
	pairs := make(map[int][]lineage.Pair, len(analyzable))
	for _, q := range analyzable {
		if err := ctx.Err(); err != nil {
			return fail(res, err)
		}
		out := r.analyze(ctx, log, q, &res)
		if out == nil {
			pairs[q.Index] = nil
			continue
		}
		pairs[q.Index] = out.Pairs
		res.Lineages = append(res.Lineages, out.Pairs...)
		edges = append(edges, analyzer.Edges(out, path, q.Text, r.opts.Model)...)
	}

	if err := r.persist(ctx, edges); err != nil {
		res = fail(res, err)
		r.mark(ctx, log, f, res)
		return res
	}
	res.Saved = len(edges)

	if r.indexer != nil {
		if err := r.indexer.IndexQueries(ctx, analyzable, pairs); err != nil {
			// Non-fatal: the edges are already saved.
			log.Warn().Err(err).Msg("statement indexing failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("index: %v", err))
		}
	}

	res.Status = store.StatusSuccess
	r.mark(ctx, log, f, res)
	return res
}

// analyze runs the agent on one statement. Failures are recorded on res and
// contribute no pairs.
// analyze runs the agent on q and folds its warnings and errors into res. A
// failed call returns nil.
func (r *Runner) analyze(ctx context.Context, log zerolog.Logger, q query.Query, res *report.FileResult) *agents.AgentResult {
	ctx, span := observability.StartStatementSpan(ctx, q.FilePath, q.Index, len(q.Text))
	defer span.End()

	out, err := r.agent.Run(ctx, &agents.AgentContext{
		Query:   &q,
		LLM:     r.provider,
		Logger:  log,
		Metrics: r.metrics,
	})
	if err != nil {
		observability.RecordError(span, err)
		log.Error().Err(err).Int("statement", q.Index).Msg("statement analysis failed")
		res.Errors = append(res.Errors, err.Error())
		return nil
	}
	for _, w := range out.Warnings {
		res.Warnings = append(res.Warnings, fmt.Sprintf("#%d: %s", q.Index, w))
	}
	for _, e := range out.Errors {
		res.Errors = append(res.Errors, fmt.Sprintf("#%d: %s", q.Index, e))
	}
	return out
}

func (r *Runner) persist(ctx context.Context, edges []lineage.Edge) error {
	ctx, span := observability.StartPersistSpan(ctx, r.sink.Name(), len(edges))
	defer span.End()

	err := r.sink.SaveAll(ctx, edges)
	if err != nil {
		observability.RecordError(span, err)
		for _, name := range failedSinks(err, r.sink.Name()) {
			r.metrics.RecordPersistError(name)
		}
		return fmt.Errorf("save lineage: %w", err)
	}
	return nil
}

// failedSinks names the sinks behind err, falling back to def.
func failedSinks(err error, def string) []string {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	var names []string
	for _, e := range errs {
		var se *store.SinkError
		if errors.As(e, &se) {
			names = append(names, se.Sink)
		}
	}
	if len(names) == 0 {
		names = []string{def}
	}
	return names
}

func (r *Runner) mark(ctx context.Context, log zerolog.Logger, f *source.File, res report.FileResult) {
	if r.ledger == nil {
		return
	}
	err := r.ledger.MarkProcessed(ctx, store.ProcessedFile{
		Path:        f.Path,
		Fingerprint: f.Fingerprint,
		Status:      res.Status,
		Statements:  res.Statements,
		Edges:       res.Saved,
	})
	if err != nil {
		log.Warn().Err(err).Msg("ledger update failed")
	}
}

func skip(res report.FileResult, reason string) report.FileResult {
	res.Status = store.StatusSkip
	res.Reason = reason
	return res
}

func fail(res report.FileResult, err error) report.FileResult {
	res.Status = store.StatusError
	res.Reason = err.Error()
	return res
}
