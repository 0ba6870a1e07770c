package connector

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ataiva-software/vertex-sub003/internal/domain/integration"
)

// codeHost integrates with a git hosting provider's REST API.
type codeHost struct {
	client  *apiClient
	baseURL string
	owner   string
}

var codeHostCaps = map[string][]string{
	"list_repos":          {},
	"get_repo":            {"repo"},
	"list_branches":       {"repo"},
	"create_pull_request": {"repo", "title", "head", "base"},
	"set_commit_status":   {"repo", "sha", "state"},
}

// NewCodeHost builds the code hosting connector.
func NewCodeHost(cfg Config) (Connector, error) {
	headers := map[string]string{"Authorization": "token " + cfg.Credential}
	return &codeHost{
		client:  newAPIClient("codehost", cfg.Timeout, headers),
		baseURL: cfg.Integration.Config["base_url"],
		owner:   cfg.Integration.Config["owner"],
	}, nil
}

func (c *codeHost) Capabilities() map[string][]string { return codeHostCaps }

func (c *codeHost) Test(ctx context.Context) integration.TestResult {
	ok, latency, diag := c.client.probe(ctx, fmt.Sprintf("%s/users/%s", c.baseURL, c.owner))
	return integration.TestResult{OK: ok, Latency: latency, Diagnostics: diag}
}

func (c *codeHost) Execute(ctx context.Context, op string, params Params) (Result, error) {
	if err := requireParams(codeHostCaps, "codehost", op, params); err != nil {
		return nil, err
	}

	repo := stringParam(params, "repo")

	switch op {
	case "list_repos":
		resp, err := c.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/users/%s/repos", c.baseURL, c.owner), nil)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "get_repo":
		resp, err := c.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/repos/%s/%s", c.baseURL, c.owner, repo), nil)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "list_branches":
		resp, err := c.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/repos/%s/%s/branches", c.baseURL, c.owner, repo), nil)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "create_pull_request":
		body := map[string]any{
			"title": params["title"],
			"head":  params["head"],
			"base":  params["base"],
			"body":  stringParam(params, "body"),
		}
		resp, err := c.client.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/repos/%s/%s/pulls", c.baseURL, c.owner, repo), body)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "set_commit_status":
		body := map[string]any{
			"state":       params["state"],
			"context":     stringParam(params, "context"),
			"description": stringParam(params, "description"),
		}
		resp, err := c.client.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/repos/%s/%s/statuses/%s", c.baseURL, c.owner, repo, stringParam(params, "sha")), body)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil
	}

	return nil, nil
}
