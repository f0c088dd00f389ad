package tools

import (
	"context"
	"fmt"
	"strings"

	"dwagent/pkg/github"
	"dwagent/pkg/taxonomy"
)

const (
	// ToolTriggerCIWorkflow dispatches the transformation pipeline workflow.
	ToolTriggerCIWorkflow = "trigger_ci_workflow"
	// ToolListCIRuns lists recent workflow runs.
	ToolListCIRuns = "list_ci_runs"
	// ToolGetCIRun fetches one workflow run with its jobs.
	ToolGetCIRun = "get_ci_run"

	defaultRunLimit = 10
)

func init() {
	ciFactory := func(build func(deps Deps) Tool) ToolFactory {
		return func(deps Deps) (Tool, error) {
			if deps.Repo == nil {
				return nil, fmt.Errorf("ci tools require a configured repo client")
			}
			if deps.WorkflowFile == "" {
				return nil, fmt.Errorf("ci tools require a workflow file name")
			}
			return build(deps), nil
		}
	}

	Register(ToolMeta{Name: ToolTriggerCIWorkflow, Category: CategoryCI}, ciFactory(func(deps Deps) Tool {
		return &TriggerWorkflowTool{client: deps.Repo, workflowFile: deps.WorkflowFile, ref: deps.BaseBranch}
	}))
	Register(ToolMeta{Name: ToolListCIRuns, Category: CategoryCI}, ciFactory(func(deps Deps) Tool {
		return &ListRunsTool{client: deps.Repo, workflowFile: deps.WorkflowFile}
	}))
	Register(ToolMeta{Name: ToolGetCIRun, Category: CategoryCI}, ciFactory(func(deps Deps) Tool {
		return &GetRunTool{client: deps.Repo}
	}))
}

// TriggerWorkflowTool dispatches the pipeline workflow on the base branch.
type TriggerWorkflowTool struct {
	client       *github.Client
	workflowFile string
	ref          string
}

func (t *TriggerWorkflowTool) Name() string { return ToolTriggerCIWorkflow }

// Definition returns the tool definition for LLM.
func (t *TriggerWorkflowTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolTriggerCIWorkflow,
		Description: "Trigger the transformation pipeline workflow in CI. Optional string inputs are forwarded to the workflow dispatch.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"inputs": {
					Type:        "object",
					Description: "Optional workflow dispatch inputs as string key/value pairs.",
				},
			},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *TriggerWorkflowTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	inputs := map[string]string{}
	if raw, ok := args["inputs"].(map[string]any); ok {
		for k, v := range raw {
			s, ok := v.(string)
			if !ok {
				return nil, taxonomy.Validationf("workflow input %q must be a string", k)
			}
			inputs[k] = s
		}
	}

	if err := t.client.DispatchWorkflow(ctx, t.workflowFile, t.ref, inputs); err != nil {
		return nil, classifyRepoError(err)
	}

	// Dispatch is fire-and-forget; the run id surfaces via list_ci_runs.
	return map[string]any{
		"dispatched": true,
		"workflow":   t.workflowFile,
		"ref":        t.ref,
	}, nil
}

// ListRunsTool lists recent runs of the pipeline workflow, newest first.
type ListRunsTool struct {
	client       *github.Client
	workflowFile string
}

func (t *ListRunsTool) Name() string { return ToolListCIRuns }

// Definition returns the tool definition for LLM.
func (t *ListRunsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolListCIRuns,
		Description: "List recent CI runs of the transformation pipeline workflow, newest first. Read-only.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"limit": {
					Type:        "integer",
					Description: "Maximum number of runs to return. Defaults to 10.",
				},
			},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ListRunsTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	limit := intArgOrDefault(args, "limit", defaultRunLimit)

	runs, err := t.client.ListWorkflowRuns(ctx, t.workflowFile, limit)
	if err != nil {
		return nil, classifyRepoError(err)
	}

	out := make([]map[string]any, 0, len(runs))
	for _, r := range runs {
		out = append(out, runSummary(&r))
	}
	return map[string]any{
		"workflow": t.workflowFile,
		"runs":     out,
	}, nil
}

// GetRunTool fetches one workflow run and its jobs.
type GetRunTool struct {
	client *github.Client
}

func (t *GetRunTool) Name() string { return ToolGetCIRun }

// Definition returns the tool definition for LLM.
func (t *GetRunTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolGetCIRun,
		Description: "Fetch a single CI run by id, including per-job status and conclusions. Read-only.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"run_id": {
					Type:        "integer",
					Description: "Workflow run id from list_ci_runs.",
				},
			},
			Required: []string{"run_id"},
		},
	}
}

// Validate checks arguments without touching CI.
func (t *GetRunTool) Validate(args map[string]any) error {
	if _, err := int64Arg(args, "run_id"); err != nil {
		return err
	}
	return nil
}

// Exec executes the tool with the given arguments.
func (t *GetRunTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	runID, err := int64Arg(args, "run_id")
	if err != nil {
		return nil, err
	}

	run, err := t.client.GetWorkflowRun(ctx, runID)
	if err != nil {
		return nil, classifyRepoError(err)
	}
	jobs, err := t.client.GetWorkflowRunJobs(ctx, runID)
	if err != nil {
		return nil, classifyRepoError(err)
	}

	jobOut := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		jobOut = append(jobOut, map[string]any{
			"name":       j.Name,
			"status":     j.Status,
			"conclusion": j.Conclusion,
		})
	}

	payload := runSummary(run)
	payload["jobs"] = jobOut
	if strings.EqualFold(run.Conclusion, "success") {
		payload[KeyFacts] = map[string]bool{"data_loaded": true}
	}
	return payload, nil
}

func runSummary(r *github.WorkflowRun) map[string]any {
	return map[string]any{
		"run_id":     r.ID,
		"status":     r.Status,
		"conclusion": r.Conclusion,
		"branch":     r.HeadBranch,
		"created_at": r.CreatedAt,
		"url":        r.URL,
	}
}

// intArgOrDefault extracts an integer argument, returning defaultVal if
// missing or invalid. JSON unmarshaling delivers numbers as float64.
func intArgOrDefault(args map[string]any, key string, defaultVal int) int {
	v, exists := args[key]
	if !exists {
		return defaultVal
	}
	var n int
	switch val := v.(type) {
	case float64:
		n = int(val)
	case int:
		n = val
	case int64:
		n = int(val)
	default:
		return defaultVal
	}
	if n < 1 {
		return defaultVal
	}
	return n
}

func int64Arg(args map[string]any, key string) (int64, error) {
	v, exists := args[key]
	if !exists {
		return 0, taxonomy.Validationf("%s is required", key)
	}
	switch val := v.(type) {
	case float64:
		return int64(val), nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	default:
		return 0, taxonomy.Validationf("%s must be an integer", key)
	}
}
