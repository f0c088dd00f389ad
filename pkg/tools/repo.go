package tools

import (
	"context"
	"fmt"
	"strings"

	"dwagent/pkg/github"
	"dwagent/pkg/taxonomy"
)

const (
	// ToolListRepoFiles lists repository directory contents.
	ToolListRepoFiles = "list_repo_files"
	// ToolReadRepoFile reads one file from the repository.
	ToolReadRepoFile = "read_repo_file"
	// ToolPushRepoFile creates or updates a file in the repository.
	ToolPushRepoFile = "push_repo_file"
	// ToolDeleteRepoFile removes a file from the repository.
	ToolDeleteRepoFile = "delete_repo_file"
)

func init() {
	repoFactory := func(build func(deps Deps) Tool) ToolFactory {
		return func(deps Deps) (Tool, error) {
			if deps.Repo == nil {
				return nil, fmt.Errorf("repository tools require a configured repo client")
			}
			return build(deps), nil
		}
	}

	Register(ToolMeta{Name: ToolListRepoFiles, Category: CategoryRepository}, repoFactory(func(deps Deps) Tool {
		return &ListRepoFilesTool{client: deps.Repo, branch: deps.BaseBranch}
	}))
	Register(ToolMeta{Name: ToolReadRepoFile, Category: CategoryRepository}, repoFactory(func(deps Deps) Tool {
		return &ReadRepoFileTool{client: deps.Repo, branch: deps.BaseBranch}
	}))
	Register(ToolMeta{Name: ToolPushRepoFile, Category: CategoryRepository}, repoFactory(func(deps Deps) Tool {
		return &PushRepoFileTool{client: deps.Repo, branch: deps.BaseBranch}
	}))
	Register(ToolMeta{Name: ToolDeleteRepoFile, Category: CategoryRepository}, repoFactory(func(deps Deps) Tool {
		return &DeleteRepoFileTool{client: deps.Repo, branch: deps.BaseBranch}
	}))
}

// validateRepoPath rejects traversal and absolute paths before any API call.
func validateRepoPath(args map[string]any) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", taxonomy.Validationf("path is required and must be a non-empty string")
	}
	if strings.HasPrefix(path, "/") {
		return "", taxonomy.Validationf("path must be relative to the repository root")
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return "", taxonomy.Validationf("path must not contain '..'")
		}
	}
	return path, nil
}

// ListRepoFilesTool lists the contents of a repository directory.
type ListRepoFilesTool struct {
	client *github.Client
	branch string
}

func (t *ListRepoFilesTool) Name() string { return ToolListRepoFiles }

// Definition returns the tool definition for LLM.
func (t *ListRepoFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolListRepoFiles,
		Description: "List files and directories at a path in the model repository. Use an empty path for the repository root.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Directory path relative to the repository root. Empty lists the root.",
				},
			},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ListRepoFilesTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	path, _ := args["path"].(string)
	if path != "" {
		var err error
		if path, err = validateRepoPath(args); err != nil {
			return nil, err
		}
	}

	entries, err := t.client.ListDir(ctx, path, t.branch)
	if err != nil {
		return nil, classifyRepoError(err)
	}

	files := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		files = append(files, map[string]any{
			"name": e.Name,
			"path": e.Path,
			"type": e.Type,
			"size": e.Size,
		})
	}
	return map[string]any{
		"path":    path,
		"entries": files,
	}, nil
}

// ReadRepoFileTool reads a single file from the repository.
type ReadRepoFileTool struct {
	client *github.Client
	branch string
}

func (t *ReadRepoFileTool) Name() string { return ToolReadRepoFile }

// Definition returns the tool definition for LLM.
func (t *ReadRepoFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReadRepoFile,
		Description: "Read the contents of a file from the model repository.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "File path relative to the repository root.",
				},
			},
			Required: []string{"path"},
		},
	}
}

// Validate checks arguments without touching the repository.
func (t *ReadRepoFileTool) Validate(args map[string]any) error {
	_, err := validateRepoPath(args)
	return err
}

// Exec executes the tool with the given arguments.
func (t *ReadRepoFileTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	path, err := validateRepoPath(args)
	if err != nil {
		return nil, err
	}

	file, err := t.client.GetFile(ctx, path, t.branch)
	if err != nil {
		return nil, classifyRepoError(err)
	}
	content, err := file.Decoded()
	if err != nil {
		return nil, taxonomy.NewErrorWithCause(taxonomy.ErrorTypeSemantic, err, "file content is not decodable")
	}

	return map[string]any{
		"path":    file.Path,
		"sha":     file.SHA,
		"size":    file.Size,
		"content": content,
	}, nil
}

// PushRepoFileTool creates or updates a file in the repository. Updates
// require the current blob SHA so concurrent edits fail loudly instead of
// clobbering each other.
type PushRepoFileTool struct {
	client *github.Client
	branch string
}

func (t *PushRepoFileTool) Name() string { return ToolPushRepoFile }

// Definition returns the tool definition for LLM.
func (t *PushRepoFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolPushRepoFile,
		Description: "Create or update a file in the model repository with a commit message. Updating an existing file requires its current sha; omit sha to create a new file.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "File path relative to the repository root.",
				},
				"content": {
					Type:        "string",
					Description: "Full file contents to commit.",
				},
				"message": {
					Type:        "string",
					Description: "Commit message describing the change.",
				},
				"sha": {
					Type:        "string",
					Description: "Current blob sha of the file when updating. Omit for new files.",
				},
			},
			Required: []string{"path", "content", "message"},
		},
	}
}

// Validate checks arguments without touching the repository.
func (t *PushRepoFileTool) Validate(args map[string]any) error {
	if _, err := validateRepoPath(args); err != nil {
		return err
	}
	if _, ok := args["content"].(string); !ok {
		return taxonomy.Validationf("content is required and must be a string")
	}
	if msg, ok := args["message"].(string); !ok || strings.TrimSpace(msg) == "" {
		return taxonomy.Validationf("message is required and must be a non-empty string")
	}
	return nil
}

// Exec executes the tool with the given arguments.
func (t *PushRepoFileTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := t.Validate(args); err != nil {
		return nil, err
	}
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	message, _ := args["message"].(string)
	sha, _ := args["sha"].(string)

	resp, err := t.client.PutFile(ctx, path, t.branch, message, content, sha)
	if err != nil {
		return nil, classifyRepoError(err)
	}

	return map[string]any{
		"path":       path,
		"sha":        resp.Content.SHA,
		"commit_sha": resp.Commit.SHA,
		"branch":     t.branch,
	}, nil
}

// DeleteRepoFileTool removes a file from the repository.
type DeleteRepoFileTool struct {
	client *github.Client
	branch string
}

func (t *DeleteRepoFileTool) Name() string { return ToolDeleteRepoFile }

// Definition returns the tool definition for LLM.
func (t *DeleteRepoFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolDeleteRepoFile,
		Description: "Delete a file from the model repository with a commit message. Requires the file's current sha.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "File path relative to the repository root.",
				},
				"message": {
					Type:        "string",
					Description: "Commit message describing the removal.",
				},
				"sha": {
					Type:        "string",
					Description: "Current blob sha of the file.",
				},
			},
			Required: []string{"path", "message", "sha"},
		},
	}
}

// Validate checks arguments without touching the repository.
func (t *DeleteRepoFileTool) Validate(args map[string]any) error {
	if _, err := validateRepoPath(args); err != nil {
		return err
	}
	if msg, ok := args["message"].(string); !ok || strings.TrimSpace(msg) == "" {
		return taxonomy.Validationf("message is required and must be a non-empty string")
	}
	if sha, ok := args["sha"].(string); !ok || sha == "" {
		return taxonomy.Validationf("sha is required and must be a non-empty string")
	}
	return nil
}

// Exec executes the tool with the given arguments.
func (t *DeleteRepoFileTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := t.Validate(args); err != nil {
		return nil, err
	}
	path, _ := args["path"].(string)
	message, _ := args["message"].(string)
	sha, _ := args["sha"].(string)

	if err := t.client.DeleteFile(ctx, path, t.branch, message, sha); err != nil {
		return nil, classifyRepoError(err)
	}
	return map[string]any{
		"path":    path,
		"deleted": true,
		"branch":  t.branch,
	}, nil
}

// classifyRepoError maps gh CLI failures onto the retry taxonomy.
func classifyRepoError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return taxonomy.NewErrorWithCause(taxonomy.ErrorTypeSemantic, err, "repository resource not found")
	case strings.Contains(msg, "409") || strings.Contains(msg, "conflict") || strings.Contains(msg, "does not match"):
		return taxonomy.NewErrorWithCause(taxonomy.ErrorTypeSemantic, err, "repository content conflict; re-read the file for its current sha")
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "auth"):
		return taxonomy.NewError(taxonomy.ErrorTypeAuth, "repository authentication failed")
	case strings.Contains(msg, "rate limit"):
		return taxonomy.NewErrorWithCause(taxonomy.ErrorTypeRateLimit, err, "repository API rate limited")
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return taxonomy.NewErrorWithCause(taxonomy.ErrorTypeTransient, err, "repository API unavailable")
	default:
		return taxonomy.NewErrorWithCause(taxonomy.ErrorTypeSemantic, err, "repository operation failed")
	}
}
