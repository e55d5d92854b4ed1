package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/sqllineage/internal/agents"
	"github.com/efebarandurmaz/sqllineage/internal/agents/analyzer"
	"github.com/efebarandurmaz/sqllineage/internal/lineage"
	"github.com/efebarandurmaz/sqllineage/internal/llm"
	"github.com/efebarandurmaz/sqllineage/internal/observability"
	"github.com/efebarandurmaz/sqllineage/internal/query"
	"github.com/efebarandurmaz/sqllineage/internal/report"
	"github.com/efebarandurmaz/sqllineage/internal/source"
	"github.com/efebarandurmaz/sqllineage/internal/store"
	"github.com/efebarandurmaz/sqllineage/internal/store/sqlite"
)

// scriptedAgent returns pairs keyed by statement text.
type scriptedAgent struct {
	mu    sync.Mutex
	pairs map[string][]lineage.Pair
	errs  map[string]error
	seen  []string
}

func (a *scriptedAgent) Name() string { return "scripted" }

func (a *scriptedAgent) Run(_ context.Context, ac *agents.AgentContext) (*agents.AgentResult, error) {
	a.mu.Lock()
	a.seen = append(a.seen, ac.Query.Text)
	a.mu.Unlock()
	if err := a.errs[ac.Query.Text]; err != nil {
		return nil, err
	}
	res := agents.NewAgentResult()
	res.Pairs = a.pairs[ac.Query.Text]
	return res, nil
}

type memorySink struct {
	mu    sync.Mutex
	edges []lineage.Edge
	err   error
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) SaveAll(_ context.Context, edges []lineage.Edge) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, edges...)
	return nil
}

func (s *memorySink) Close(context.Context) error { return nil }

type memoryLedger struct {
	mu   sync.Mutex
	recs map[string]store.ProcessedFile
}

func (l *memoryLedger) IsProcessed(_ context.Context, path, fp string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.recs[path]
	return ok && r.Fingerprint == fp && r.Status == store.StatusSuccess, nil
}

func (l *memoryLedger) MarkProcessed(_ context.Context, rec store.ProcessedFile) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recs == nil {
		l.recs = map[string]store.ProcessedFile{}
	}
	l.recs[rec.Path] = rec
	return nil
}

type recordingIndexer struct {
	qs    []query.Query
	pairs map[int][]lineage.Pair
	err   error
}

func (i *recordingIndexer) IndexQueries(_ context.Context, qs []query.Query, pairs map[int][]lineage.Pair) error {
	i.qs = append(i.qs, qs...)
	i.pairs = pairs
	return i.err
}

func writeSQL(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const loadSQL = "INSERT INTO DW.SALES_FACT\nSELECT * FROM STG.SALES;"

func TestRun_Statuses(t *testing.T) {
	dir := t.TempDir()
	good := writeSQL(t, dir, "good.sql", "-- nightly load\n"+loadSQL+"\nSELECT 1;\n")
	readOnly := writeSQL(t, dir, "read.sql", "SELECT * FROM A;\n")
	missing := filepath.Join(dir, "missing.sql")

	agent := &scriptedAgent{pairs: map[string][]lineage.Pair{
		loadSQL: {{Source: "SALES", Target: "SALES_FACT"}},
	}}
	sink := &memorySink{}
	m := observability.NewMetrics(nil)
	r := New(agent, nil, sink, Options{Model: "gpt-4o-mini"}, WithMetrics(m))

	rep, err := r.Run(context.Background(), []string{good, readOnly, missing})
	require.NoError(t, err)

	require.Len(t, rep.Files, 3)
	g := rep.Files[0]
	assert.Equal(t, store.StatusSuccess, g.Status)
	assert.Equal(t, 2, g.Statements)
	assert.Equal(t, 1, g.Analyzed)
	assert.Equal(t, 1, g.SkippedStatements)
	assert.Equal(t, 1, g.Saved)

	assert.Equal(t, store.StatusSkip, rep.Files[1].Status)
	assert.Equal(t, ReasonNoStatements, rep.Files[1].Reason)
	assert.Equal(t, store.StatusSkip, rep.Files[2].Status)
	assert.Equal(t, ReasonNotFound, rep.Files[2].Reason)

	assert.Equal(t, []string{loadSQL}, agent.seen)
	require.Len(t, sink.edges, 1)
	e := sink.edges[0]
	assert.Equal(t, "SALES", e.Source)
	assert.Equal(t, good, e.FilePath)
	assert.Equal(t, "gpt-4o-mini", e.Model)

	assert.Equal(t, "none", rep.Provider)
	assert.Equal(t, 1, rep.Totals.Success)
	assert.Equal(t, 2, rep.Totals.Skipped)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FilesTotal.WithLabelValues(store.StatusSkip)))
}

func TestRun_PersistErrorMarksFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSQL(t, dir, "a.sql", loadSQL+"\n")

	agent := &scriptedAgent{pairs: map[string][]lineage.Pair{loadSQL: {{Source: "SALES", Target: "SALES_FACT"}}}}
	sink := store.Multi{&memorySink{}, &memorySink{err: errors.New("disk full")}}
	m := observability.NewMetrics(nil)
	ledger := &memoryLedger{}
	r := New(agent, nil, sink, Options{}, WithMetrics(m), WithLedger(ledger))

	rep, err := r.Run(context.Background(), []string{path})
	require.NoError(t, err)

	f := rep.Files[0]
	assert.Equal(t, store.StatusError, f.Status)
	assert.Contains(t, f.Reason, "disk full")
	assert.Zero(t, f.Saved)
	assert.Equal(t, store.StatusError, ledger.recs[path].Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PersistErrorsTotal.WithLabelValues("memory")))
}

func TestRun_StatementErrorKeepsFile(t *testing.T) {
	dir := t.TempDir()
	other := "UPDATE T SET A = (SELECT A FROM S);"
	path := writeSQL(t, dir, "a.sql", loadSQL+"\n"+other+"\n")

	agent := &scriptedAgent{
		pairs: map[string][]lineage.Pair{other: {{Source: "S", Target: "T"}}},
		errs:  map[string]error{loadSQL: errors.New("gateway timeout")},
	}
	sink := &memorySink{}
	rep, err := New(agent, nil, sink, Options{}).Run(context.Background(), []string{path})
	require.NoError(t, err)

	f := rep.Files[0]
	assert.Equal(t, store.StatusSuccess, f.Status)
	assert.Equal(t, []string{"gateway timeout"}, f.Errors)
	assert.Equal(t, 1, f.Saved)
	assert.Equal(t, []lineage.Pair{{Source: "S", Target: "T"}}, f.Lineages)
}

func TestRun_SkipsProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeSQL(t, dir, "a.sql", loadSQL+"\n")
	agent := &scriptedAgent{}
	ledger := &memoryLedger{}
	r := New(agent, nil, nil, Options{SkipProcessed: true}, WithLedger(ledger))

	rep, err := r.Run(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, rep.Files[0].Status)

	rep, err = r.Run(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, store.StatusSkip, rep.Files[0].Status)
	assert.Equal(t, ReasonProcessed, rep.Files[0].Reason)
	assert.Len(t, agent.seen, 1)

	// A content change invalidates the fingerprint.
	writeSQL(t, dir, "a.sql", loadSQL+"\n-- edited\n")
	rep, err = r.Run(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, rep.Files[0].Status)
}

func TestRun_Indexer(t *testing.T) {
	dir := t.TempDir()
	path := writeSQL(t, dir, "a.sql", "SELECT 1;\n"+loadSQL+"\n")
	agent := &scriptedAgent{pairs: map[string][]lineage.Pair{loadSQL: {{Source: "SALES", Target: "SALES_FACT"}}}}
	idx := &recordingIndexer{err: errors.New("qdrant down")}

	rep, err := New(agent, nil, nil, Options{}, WithIndexer(idx)).Run(context.Background(), []string{path})
	require.NoError(t, err)

	require.Len(t, idx.qs, 1)
	assert.Equal(t, 1, idx.qs[0].Index)
	assert.Equal(t, []lineage.Pair{{Source: "SALES", Target: "SALES_FACT"}}, idx.pairs[1])
	assert.Equal(t, store.StatusSuccess, rep.Files[0].Status)
	assert.Equal(t, []string{"index: qdrant down"}, rep.Files[0].Warnings)
}

func TestRun_Concurrent(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.sql", "b.sql", "c.sql", "d.sql", "e.sql"} {
		paths = append(paths, writeSQL(t, dir, name, loadSQL+"\n"))
	}
	agent := &scriptedAgent{pairs: map[string][]lineage.Pair{loadSQL: {{Source: "SALES", Target: "SALES_FACT"}}}}
	sink := &memorySink{}

	rep, err := New(agent, nil, sink, Options{Concurrency: 3}).Run(context.Background(), paths)
	require.NoError(t, err)

	require.Len(t, rep.Files, len(paths))
	for i, f := range rep.Files {
		assert.Equal(t, paths[i], f.Path)
		assert.Equal(t, store.StatusSuccess, f.Status)
	}
	assert.Len(t, sink.edges, len(paths))
	assert.Equal(t, len(paths), rep.Totals.Lineages)
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeSQL(t, dir, "a.sql", loadSQL+"\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := New(&scriptedAgent{}, nil, nil, Options{}).Run(ctx, []string{path})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rep.Files)
	assert.Equal(t, 1, rep.Planned)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  string
	files    []string
	finished error
	done     bool
}

func (o *recordingObserver) RunStarted(rep *report.Report) { o.started = rep.RunID }

func (o *recordingObserver) FileDone(runID string, res report.FileResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if runID == o.started {
		o.files = append(o.files, res.Path)
	}
}

func (o *recordingObserver) RunFinished(_ *report.Report, err error) {
	o.finished = err
	o.done = true
}

func TestRun_Observer(t *testing.T) {
	dir := t.TempDir()
	a := writeSQL(t, dir, "a.sql", loadSQL+"\n")
	b := writeSQL(t, dir, "b.sql", loadSQL+"\n")
	obs := &recordingObserver{}

	rep, err := New(&scriptedAgent{}, nil, nil, Options{Concurrency: 2}, WithObserver(obs)).
		Run(context.Background(), []string{a, b})
	require.NoError(t, err)

	assert.Equal(t, rep.RunID, obs.started)
	assert.ElementsMatch(t, []string{a, b}, obs.files)
	assert.True(t, obs.done)
	assert.NoError(t, obs.finished)
}

func TestRun_ObserverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	obs := &recordingObserver{}

	_, err := New(&scriptedAgent{}, nil, nil, Options{}, WithObserver(obs)).Run(ctx, []string{"x.sql"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, obs.files)
	assert.ErrorIs(t, obs.finished, context.Canceled)
}

func TestFailedSinks(t *testing.T) {
	joined := errors.Join(&store.SinkError{Sink: "sqlite", Err: errors.New("a")}, &store.SinkError{Sink: "neo4j", Err: errors.New("b")})
	assert.Equal(t, []string{"sqlite", "neo4j"}, failedSinks(joined, "multi"))
	assert.Equal(t, []string{"sqlite"}, failedSinks(errors.New("locked"), "sqlite"))
}

type fakeProvider struct{ resp *llm.Response }

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(context.Context, *llm.Prompt, *llm.RequestOptions) (*llm.Response, error) {
	return f.resp, nil
}

func (f *fakeProvider) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }

// The file-to-table path end to end: comment stripping, segmentation,
// classification, extraction, validation and the SQLite upsert.
func TestRun_EndToEndWithSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeSQL(t, dir, "load.sql", "-- comment\nINSERT INTO T SELECT * FROM S;\nSELECT 1;\n")

	db, err := sqlite.Open(ctx, filepath.Join(dir, "lineage.db"), sqlite.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(ctx) })

	body := `{"choices":[{"message":{"content":"{\"lineages\":[{\"sourceTable\":\"S\",\"targetTable\":\"T\"},{\"sourceTable\":\"SX\",\"targetTable\":\"T\"}]}"}}]}`
	provider := &fakeProvider{resp: &llm.Response{Body: body, ContentField: "content"}}
	r := New(analyzer.New(analyzer.DefaultOptions()), provider, db, Options{Model: "m", SkipProcessed: true}, WithLedger(db))

	rep, err := r.Run(ctx, []string{path})
	require.NoError(t, err)
	require.Equal(t, store.StatusSuccess, rep.Files[0].Status)
	assert.Equal(t, []lineage.Pair{{Source: "S", Target: "T"}}, rep.Files[0].Lineages)
	assert.Equal(t, "fake", rep.Provider)

	edges, err := db.Sources(ctx, "T")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "S", edges[0].Source)
	assert.Equal(t, "INSERT INTO T SELECT * FROM S;", edges[0].QueryText)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	done, err := db.IsProcessed(ctx, path, source.Fingerprint(data))
	require.NoError(t, err)
	assert.True(t, done)
}
