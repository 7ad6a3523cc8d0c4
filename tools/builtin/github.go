package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/tools"
)

const githubAPIBase = "https://api.github.com"

const githubSchema = `{
	"type": "object",
	"properties": {
		"operation": {"type": "string", "enum": ["repo", "issues", "pulls", "user"]},
		"owner": {"type": "string"},
		"repo": {"type": "string"},
		"username": {"type": "string"}
	},
	"required": ["operation"]
}`

func githubHandle() *tools.Handle {
	return &tools.Handle{
		ID:          "github",
		Name:        "GitHub",
		Description: "Reads repository, issue, pull request, and user data from the GitHub API.",
		Category:    "web",
		InputSchema: []byte(githubSchema),
		Invoke:      invokeGitHub,
	}
}

func invokeGitHub(ctx context.Context, input map[string]any, _ *tools.Context) (any, error) {
	op := stringField(input, "operation")
	owner := stringField(input, "owner")
	repo := stringField(input, "repo")

	var path string
	switch op {
	case "repo":
		path = fmt.Sprintf("/repos/%s/%s", owner, repo)
	case "issues":
		path = fmt.Sprintf("/repos/%s/%s/issues", owner, repo)
	case "pulls":
		path = fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	case "user":
		path = "/users/" + stringField(input, "username")
	default:
		return nil, floerr.Newf(floerr.KindMissingNodeData, "github: unsupported operation %q", op)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubAPIBase+path, nil)
	if err != nil {
		return nil, floerr.Wrap(floerr.KindExpressionError, "build github request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, floerr.Wrap(floerr.KindCancelled, "github request aborted", err)
		}
		return nil, floerr.Wrap(floerr.KindProviderError, "github request", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, floerr.Wrap(floerr.KindProviderError, "read github response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, floerr.Newf(floerr.KindProviderError, "github %s: %s", path, resp.Status)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, floerr.Wrap(floerr.KindProviderError, "decode github response", err)
	}
	return decoded, nil
}
