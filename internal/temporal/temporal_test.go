package temporal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/efebarandurmaz/sqllineage/internal/report"
	"github.com/efebarandurmaz/sqllineage/internal/store"
)

type stubProcessor struct{ calls []string }

func (s *stubProcessor) ProcessFile(_ context.Context, index int, path string) report.FileResult {
	s.calls = append(s.calls, path)
	return report.FileResult{Index: index, Path: path, Status: store.StatusSuccess, Analyzed: 1, Saved: 2}
}

type stubObserver struct{ runs, paths []string }

func (o *stubObserver) FileDone(runID string, res report.FileResult) {
	o.runs = append(o.runs, runID)
	o.paths = append(o.paths, res.Path)
}

func TestLineageWorkflow(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterActivity(ProcessFileActivity)

	env.OnActivity(ProcessFileActivity, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in FileInput) (report.FileResult, error) {
			status := store.StatusSuccess
			if in.Path == "missing.sql" {
				status = store.StatusSkip
			}
			return report.FileResult{Index: in.Index, Path: in.Path, Status: status, Analyzed: 1, Saved: 1}, nil
		})

	env.ExecuteWorkflow(LineageWorkflow, LineageInput{
		RunID:       "run-1",
		Paths:       []string{"a.sql", "missing.sql", "b.sql"},
		Parallelism: 2,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out LineageOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, "run-1", out.RunID)
	require.Len(t, out.Files, 3)
	for i, p := range []string{"a.sql", "missing.sql", "b.sql"} {
		assert.Equal(t, p, out.Files[i].Path)
		assert.Equal(t, i, out.Files[i].Index)
	}
	assert.Equal(t, report.Totals{Files: 3, Success: 2, Skipped: 1, Queries: 2, Lineages: 2}, out.Totals)
}

func TestLineageWorkflow_ActivityFailure(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterActivity(ProcessFileActivity)
	env.OnActivity(ProcessFileActivity, mock.Anything, mock.Anything).
		Return(report.FileResult{}, errors.New("worker misconfigured"))

	env.ExecuteWorkflow(LineageWorkflow, LineageInput{Paths: []string{"a.sql"}})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker misconfigured")
}

func TestLineageWorkflow_Empty(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterActivity(ProcessFileActivity)

	env.ExecuteWorkflow(LineageWorkflow, LineageInput{RunID: "empty"})

	require.NoError(t, env.GetWorkflowError())
	var out LineageOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Empty(t, out.Files)
	assert.Zero(t, out.Totals.Files)
}

func TestRegister_Names(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	register(env)

	env.OnActivity(ActivityName, mock.Anything, mock.Anything).
		Return(report.FileResult{Path: "a.sql", Status: store.StatusSuccess, Analyzed: 1, Saved: 1}, nil)

	env.ExecuteWorkflow(WorkflowName, LineageInput{RunID: "named", Paths: []string{"a.sql"}})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var out LineageOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, "named", out.RunID)
	require.Len(t, out.Files, 1)
	assert.Equal(t, "a.sql", out.Files[0].Path)
}

func TestProcessFileActivity(t *testing.T) {
	proc := &stubProcessor{}
	SetDependencies(&Dependencies{Processor: proc})
	t.Cleanup(func() { SetDependencies(nil) })

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(ProcessFileActivity)

	val, err := env.ExecuteActivity(ProcessFileActivity, FileInput{Index: 4, Path: "etl/load.sql"})
	require.NoError(t, err)

	var res report.FileResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, 4, res.Index)
	assert.Equal(t, store.StatusSuccess, res.Status)
	assert.Equal(t, []string{"etl/load.sql"}, proc.calls)
}

func TestProcessFileActivity_Observer(t *testing.T) {
	obs := &stubObserver{}
	SetDependencies(&Dependencies{Processor: &stubProcessor{}, Observer: obs})
	t.Cleanup(func() { SetDependencies(nil) })

	_, err := ProcessFileActivity(context.Background(), FileInput{RunID: "run-7", Index: 0, Path: "a.sql"})
	require.NoError(t, err)
	assert.Equal(t, []string{"run-7"}, obs.runs)
	assert.Equal(t, []string{"a.sql"}, obs.paths)
}

func TestProcessFileActivity_NoDependencies(t *testing.T) {
	SetDependencies(nil)
	_, err := ProcessFileActivity(context.Background(), FileInput{Path: "a.sql"})
	assert.ErrorIs(t, err, ErrNoRunner)
}
