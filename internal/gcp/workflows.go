package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/invoiceflow/internal/models"
	"github.com/googleapis/gax-go/v2"
)

type executionCreator interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// WorkflowTrigger hands every finished run to a Cloud Workflow.
type WorkflowTrigger struct {
	client executionCreator
	closer func() error
	parent string
}

// NewWorkflowTrigger creates an executions client for the given workflow.
func NewWorkflowTrigger(ctx context.Context, projectID, location, workflowID string) (*WorkflowTrigger, error) {
	if projectID == "" || workflowID == "" {
		return nil, fmt.Errorf("projectID and workflowID must be provided to trigger a workflow")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create executions client: %w", err)
	}
	return &WorkflowTrigger{
		client: client,
		closer: client.Close,
		parent: WorkflowParent(projectID, location, workflowID),
	}, nil
}

// WorkflowParent renders the resource name executions are created under.
func WorkflowParent(projectID, location, workflowID string) string {
	if location == "" {
		location = "us-central1"
	}
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

// Name identifies the observer in logs.
func (w *WorkflowTrigger) Name() string { return "workflow" }

// ObserveRun starts one workflow execution carrying the run's totals.
func (w *WorkflowTrigger) ObserveRun(ctx context.Context, summary models.RunSummary) error {
	payloadBytes, err := json.Marshal(models.NewWorkflowArgument(summary))
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: w.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	if _, err := w.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return nil
}

// Close releases the executions client.
func (w *WorkflowTrigger) Close() error {
	if w.closer != nil {
		return w.closer()
	}
	return nil
}
