package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Workflow run status constants.
const (
	WorkflowStatusQueued     = "queued"
	WorkflowStatusInProgress = "in_progress"
	WorkflowStatusCompleted  = "completed"
)

// WorkflowRun represents a GitHub Actions workflow run.
//
//nolint:govet // Logical grouping preferred over memory optimization
type WorkflowRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadBranch string `json:"head_branch"`
	HeadSHA    string `json:"head_sha"`
	Status     string `json:"status"`     // queued, in_progress, completed
	Conclusion string `json:"conclusion"` // success, failure, cancelled, skipped, etc. (only for completed runs)
	WorkflowID int64  `json:"workflow_id"`
	URL        string `json:"html_url"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	RunNumber  int    `json:"run_number"`
	Event      string `json:"event"`
	RunAttempt int    `json:"run_attempt"`
}

// WorkflowRunsResponse represents the API response for listing workflow runs.
//
//nolint:govet // fieldalignment: API response struct, field order matches API
type WorkflowRunsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

// WorkflowJob represents one job within a workflow run.
//
//nolint:govet // fieldalignment: API response struct, field order matches API
type WorkflowJob struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Conclusion  string `json:"conclusion"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
	URL         string `json:"html_url"`
}

// WorkflowJobsResponse represents the API response for listing run jobs.
//
//nolint:govet // fieldalignment: API response struct, field order matches API
type WorkflowJobsResponse struct {
	TotalCount int           `json:"total_count"`
	Jobs       []WorkflowJob `json:"jobs"`
}

// DispatchWorkflow triggers a workflow_dispatch event for the named workflow
// file on a ref. Inputs are passed through to the workflow.
func (c *Client) DispatchWorkflow(ctx context.Context, workflowFile, ref string, inputs map[string]string) error {
	fields := map[string]interface{}{
		"ref": ref,
	}
	for key, value := range inputs {
		fields[fmt.Sprintf("inputs[%s]", key)] = value
	}

	endpoint := fmt.Sprintf("/repos/%s/actions/workflows/%s/dispatches", c.RepoPath(), url.PathEscape(workflowFile))
	if _, err := c.APIPost(ctx, endpoint, fields); err != nil {
		return fmt.Errorf("failed to dispatch workflow %s on %s: %w", workflowFile, ref, err)
	}
	return nil
}

// ListWorkflowRuns retrieves recent runs of the named workflow file, newest
// first.
func (c *Client) ListWorkflowRuns(ctx context.Context, workflowFile string, limit int) ([]WorkflowRun, error) {
	if limit <= 0 {
		limit = 10
	}
	endpoint := fmt.Sprintf("/repos/%s/actions/workflows/%s/runs?per_page=%d",
		c.RepoPath(), url.PathEscape(workflowFile), limit)

	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for workflow %s: %w", workflowFile, err)
	}

	var response WorkflowRunsResponse
	if err := json.Unmarshal(output, &response); err != nil {
		return nil, fmt.Errorf("failed to parse workflow runs: %w", err)
	}
	return response.WorkflowRuns, nil
}

// GetWorkflowRun retrieves a single workflow run by id.
func (c *Client) GetWorkflowRun(ctx context.Context, runID int64) (*WorkflowRun, error) {
	endpoint := fmt.Sprintf("/repos/%s/actions/runs/%d", c.RepoPath(), runID)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow run %d: %w", runID, err)
	}

	var run WorkflowRun
	if err := json.Unmarshal(output, &run); err != nil {
		return nil, fmt.Errorf("failed to parse workflow run %d: %w", runID, err)
	}
	return &run, nil
}

// GetWorkflowRunJobs retrieves the jobs of a workflow run.
func (c *Client) GetWorkflowRunJobs(ctx context.Context, runID int64) ([]WorkflowJob, error) {
	endpoint := fmt.Sprintf("/repos/%s/actions/runs/%d/jobs", c.RepoPath(), runID)

	var response WorkflowJobsResponse
	if err := c.runJSON(ctx, &response, "api", "-X", "GET", endpoint); err != nil {
		return nil, fmt.Errorf("failed to get jobs for run %d: %w", runID, err)
	}
	return response.Jobs, nil
}
