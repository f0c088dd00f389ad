package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// FileContent represents a file returned by the contents API.
//
//nolint:govet // fieldalignment: API response struct, field order matches API
type FileContent struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Type     string `json:"type"` // file | dir
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	HTMLURL  string `json:"html_url"`
}

// DirEntry represents one entry of a directory listing.
type DirEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Decoded returns the file content with base64 encoding removed.
func (f *FileContent) Decoded() (string, error) {
	if f.Encoding != "base64" {
		return f.Content, nil
	}
	// The API wraps base64 payloads with newlines.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(f.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode file content for %s: %w", f.Path, err)
	}
	return string(raw), nil
}

func (c *Client) contentsEndpoint(path, ref string) string {
	endpoint := fmt.Sprintf("/repos/%s/contents/%s", c.RepoPath(), strings.TrimPrefix(path, "/"))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}
	return endpoint
}

// GetFile fetches a single file's metadata and content.
func (c *Client) GetFile(ctx context.Context, path, ref string) (*FileContent, error) {
	output, err := c.APIGet(ctx, c.contentsEndpoint(path, ref))
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}

	var file FileContent
	if err := json.Unmarshal(output, &file); err != nil {
		return nil, fmt.Errorf("failed to parse file response for %s: %w", path, err)
	}
	if file.Type == "dir" {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}
	return &file, nil
}

// ListDir lists the entries of a repository directory.
func (c *Client) ListDir(ctx context.Context, path, ref string) ([]DirEntry, error) {
	output, err := c.APIGet(ctx, c.contentsEndpoint(path, ref))
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %s: %w", path, err)
	}

	var entries []DirEntry
	if err := json.Unmarshal(output, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse directory listing for %s: %w", path, err)
	}
	return entries, nil
}

// PutFileResponse is the contents API response for create/update.
type PutFileResponse struct {
	Content *FileContent `json:"content"`
	Commit  struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
	} `json:"commit"`
}

// PutFile creates or updates one file on a branch. When the file already
// exists its blob SHA must be supplied; passing the current SHA makes the
// write idempotent against re-issue.
func (c *Client) PutFile(ctx context.Context, path, branch, message, content, sha string) (*PutFileResponse, error) {
	fields := map[string]interface{}{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	if sha != "" {
		fields["sha"] = sha
	}

	output, err := c.APIPut(ctx, c.contentsEndpoint(path, ""), fields)
	if err != nil {
		return nil, fmt.Errorf("failed to put file %s: %w", path, err)
	}

	var resp PutFileResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse put response for %s: %w", path, err)
	}
	return &resp, nil
}

// DeleteFile removes one file from a branch. The current blob SHA is required.
func (c *Client) DeleteFile(ctx context.Context, path, branch, message, sha string) error {
	fields := map[string]interface{}{
		"message": message,
		"branch":  branch,
		"sha":     sha,
	}

	if _, err := c.APIDelete(ctx, c.contentsEndpoint(path, ""), fields); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}
