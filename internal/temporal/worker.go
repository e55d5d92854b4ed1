package temporal

import (
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// Names the lineage workflow and its file activity are registered under.
// They match the function names so callers may use either form.
const (
	WorkflowName = "LineageWorkflow"
	ActivityName = "ProcessFileActivity"
)

type registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

func register(r registrar) {
	r.RegisterWorkflowWithOptions(LineageWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(ProcessFileActivity, activity.RegisterOptions{Name: ActivityName})
}

// StartWorker starts a worker that runs lineage workflows from taskQueue.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})
	register(w)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting lineage worker on %q: %w", taskQueue, err)
	}
	return w, nil
}
