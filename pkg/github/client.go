// Package github provides repository file and workflow operations using the
// gh CLI. All operations are pure API calls against the configured repository.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"dwagent/pkg/logx"
)

// DefaultBranch is the default target branch for operations.
const DefaultBranch = "main"

// Runner executes a gh invocation. Swappable for tests.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// Client provides GitHub API operations via the gh CLI.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Client struct {
	owner   string
	repo    string
	logger  *logx.Logger
	timeout time.Duration
	runner  Runner
}

// NewClient creates a new GitHub client for the specified repository.
func NewClient(owner, repo string) *Client {
	return &Client{
		owner:   owner,
		repo:    repo,
		logger:  logx.NewLogger("github"),
		timeout: 30 * time.Second,
	}
}

// NewClientFromRemote creates a GitHub client by parsing a remote spec, either
// "owner/repo" or a full git URL.
func NewClientFromRemote(remote string) (*Client, error) {
	if !strings.Contains(remote, ":") && strings.Count(remote, "/") == 1 {
		parts := strings.Split(remote, "/")
		return NewClient(parts[0], parts[1]), nil
	}
	owner, repo, err := ParseGitHubURL(remote)
	if err != nil {
		return nil, err
	}
	return NewClient(owner, repo), nil
}

// WithTimeout returns a new client with the specified timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	return &Client{
		owner:   c.owner,
		repo:    c.repo,
		logger:  c.logger,
		timeout: timeout,
		runner:  c.runner,
	}
}

// WithRunner returns a new client using the given runner. Used in tests.
func (c *Client) WithRunner(runner Runner) *Client {
	return &Client{
		owner:   c.owner,
		repo:    c.repo,
		logger:  c.logger,
		timeout: c.timeout,
		runner:  runner,
	}
}

// Owner returns the repository owner.
func (c *Client) Owner() string {
	return c.owner
}

// Repo returns the repository name.
func (c *Client) Repo() string {
	return c.repo
}

// RepoPath returns the owner/repo path.
func (c *Client) RepoPath() string {
	return fmt.Sprintf("%s/%s", c.owner, c.repo)
}

// API executes a GitHub API call and returns the raw response.
func (c *Client) API(ctx context.Context, method, endpoint string, fields map[string]interface{}) ([]byte, error) {
	args := []string{"api", "-X", method, endpoint}

	for key, value := range fields {
		switch v := value.(type) {
		case bool:
			args = append(args, "-F", fmt.Sprintf("%s=%t", key, v))
		case string:
			args = append(args, "-f", fmt.Sprintf("%s=%s", key, v))
		case int, int64:
			args = append(args, "-F", fmt.Sprintf("%s=%d", key, v))
		default:
			args = append(args, "-f", fmt.Sprintf("%s=%v", key, v))
		}
	}

	return c.run(ctx, args...)
}

// APIGet executes a GET request to the GitHub API.
func (c *Client) APIGet(ctx context.Context, endpoint string) ([]byte, error) {
	return c.API(ctx, "GET", endpoint, nil)
}

// APIPut executes a PUT request to the GitHub API.
func (c *Client) APIPut(ctx context.Context, endpoint string, fields map[string]interface{}) ([]byte, error) {
	return c.API(ctx, "PUT", endpoint, fields)
}

// APIPost executes a POST request to the GitHub API.
func (c *Client) APIPost(ctx context.Context, endpoint string, fields map[string]interface{}) ([]byte, error) {
	return c.API(ctx, "POST", endpoint, fields)
}

// APIDelete executes a DELETE request to the GitHub API.
func (c *Client) APIDelete(ctx context.Context, endpoint string, fields map[string]interface{}) ([]byte, error) {
	return c.API(ctx, "DELETE", endpoint, fields)
}

// run executes a gh command and returns the output.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("Executing: gh %s", strings.Join(args, " "))

	if c.runner != nil {
		return c.runner(ctx, args...)
	}

	cmd := exec.CommandContext(ctx, "gh", args...)
	output, err := cmd.CombinedOutput()

	if err != nil {
		c.logger.Debug("Command failed: %v, output: %s", err, string(output))
		return nil, fmt.Errorf("gh command failed: %w\nOutput: %s", err, string(output))
	}

	return output, nil
}

// runJSON executes a gh command and unmarshals the JSON response.
func (c *Client) runJSON(ctx context.Context, result interface{}, args ...string) error {
	output, err := c.run(ctx, args...)
	if err != nil {
		return err
	}

	if len(output) == 0 {
		return nil // Empty response is valid for some operations
	}

	if err := json.Unmarshal(output, result); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w\nOutput: %s", err, string(output))
	}

	return nil
}

// ParseGitHubURL extracts owner and repo from various GitHub URL formats.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	// Handle SSH format: git@github.com:owner/repo.git
	if strings.HasPrefix(url, "git@github.com:") {
		path := strings.TrimPrefix(url, "git@github.com:")
		path = strings.TrimSuffix(path, ".git")
		parts := strings.Split(path, "/")
		if len(parts) != 2 {
			return "", "", fmt.Errorf("invalid GitHub SSH URL format: %s", url)
		}
		return parts[0], parts[1], nil
	}

	// Handle HTTPS format: https://github.com/owner/repo.git
	if strings.HasPrefix(url, "https://github.com/") {
		path := strings.TrimPrefix(url, "https://github.com/")
		path = strings.TrimSuffix(path, ".git")
		parts := strings.Split(path, "/")
		if len(parts) != 2 {
			return "", "", fmt.Errorf("invalid GitHub HTTPS URL format: %s", url)
		}
		return parts[0], parts[1], nil
	}

	return "", "", fmt.Errorf("unsupported Git URL format: %s", url)
}

// CheckAuth verifies that gh CLI is authenticated.
func CheckAuth(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "gh", "auth", "status")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("gh auth check failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}
