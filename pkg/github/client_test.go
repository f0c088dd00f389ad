package github

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
)

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{
			name:      "SSH format",
			url:       "git@github.com:owner/repo.git",
			wantOwner: "owner",
			wantRepo:  "repo",
			wantErr:   false,
		},
		{
			name:      "SSH format without .git",
			url:       "git@github.com:owner/repo",
			wantOwner: "owner",
			wantRepo:  "repo",
			wantErr:   false,
		},
		{
			name:      "HTTPS format",
			url:       "https://github.com/owner/repo.git",
			wantOwner: "owner",
			wantRepo:  "repo",
			wantErr:   false,
		},
		{
			name:    "Invalid SSH format - missing parts",
			url:     "git@github.com:owner",
			wantErr: true,
		},
		{
			name:    "Unsupported format",
			url:     "ftp://github.com/owner/repo",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseGitHubURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %s", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("got %s/%s, want %s/%s", owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

func TestNewClientFromRemote(t *testing.T) {
	client, err := NewClientFromRemote("acme/warehouse-transforms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.RepoPath() != "acme/warehouse-transforms" {
		t.Errorf("got repo path %s", client.RepoPath())
	}

	client, err = NewClientFromRemote("git@github.com:acme/warehouse-transforms.git")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Owner() != "acme" || client.Repo() != "warehouse-transforms" {
		t.Errorf("got %s/%s", client.Owner(), client.Repo())
	}

	if _, err := NewClientFromRemote("not a remote"); err == nil {
		t.Error("expected error for malformed remote")
	}
}

func TestGetFileDecodesBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("select 1;\n"))
	client := NewClient("acme", "repo").WithRunner(func(_ context.Context, args ...string) ([]byte, error) {
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "/repos/acme/repo/contents/sql/model.sql") {
			t.Errorf("unexpected endpoint in args: %s", joined)
		}
		return []byte(`{"name":"model.sql","path":"sql/model.sql","sha":"abc123","type":"file","content":"` + encoded + `","encoding":"base64"}`), nil
	})

	file, err := client.GetFile(context.Background(), "sql/model.sql", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := file.Decoded()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != "select 1;\n" {
		t.Errorf("got decoded content %q", decoded)
	}
}

func TestListWorkflowRuns(t *testing.T) {
	client := NewClient("acme", "repo").WithRunner(func(_ context.Context, args ...string) ([]byte, error) {
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "/actions/workflows/deploy.yml/runs") {
			t.Errorf("unexpected endpoint in args: %s", joined)
		}
		return []byte(`{"total_count":1,"workflow_runs":[{"id":42,"status":"completed","conclusion":"success"}]}`), nil
	})

	runs, err := client.ListWorkflowRuns(context.Background(), "deploy.yml", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != 42 || runs[0].Conclusion != "success" {
		t.Errorf("unexpected runs: %+v", runs)
	}
}

func TestDispatchWorkflowEndpoint(t *testing.T) {
	var captured []string
	client := NewClient("acme", "repo").WithRunner(func(_ context.Context, args ...string) ([]byte, error) {
		captured = args
		return nil, nil
	})

	err := client.DispatchWorkflow(context.Background(), "deploy.yml", "main", map[string]string{"layer": "staging"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	joined := strings.Join(captured, " ")
	if !strings.Contains(joined, "POST") ||
		!strings.Contains(joined, "/actions/workflows/deploy.yml/dispatches") ||
		!strings.Contains(joined, "ref=main") ||
		!strings.Contains(joined, "inputs[layer]=staging") {
		t.Errorf("unexpected dispatch args: %s", joined)
	}
}
