package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ataiva-software/vertex-sub003/internal/domain/integration"
)

// issueTracker integrates with an issue tracking system's REST API.
type issueTracker struct {
	client  *apiClient
	baseURL string
	project string
}

var issueTrackerCaps = map[string][]string{
	"create_issue":     {"summary"},
	"get_issue":        {"issue"},
	"transition_issue": {"issue", "transition"},
	"comment_issue":    {"issue", "body"},
	"search_issues":    {"query"},
}

// NewIssueTracker builds the issue tracker connector.
func NewIssueTracker(cfg Config) (Connector, error) {
	headers := map[string]string{"Authorization": "Bearer " + cfg.Credential}
	return &issueTracker{
		client:  newAPIClient("issuetracker", cfg.Timeout, headers),
		baseURL: cfg.Integration.Config["base_url"],
		project: cfg.Integration.Config["project"],
	}, nil
}

func (c *issueTracker) Capabilities() map[string][]string { return issueTrackerCaps }

func (c *issueTracker) Test(ctx context.Context) integration.TestResult {
	ok, latency, diag := c.client.probe(ctx, fmt.Sprintf("%s/projects/%s", c.baseURL, c.project))
	return integration.TestResult{OK: ok, Latency: latency, Diagnostics: diag}
}

func (c *issueTracker) Execute(ctx context.Context, op string, params Params) (Result, error) {
	if err := requireParams(issueTrackerCaps, "issuetracker", op, params); err != nil {
		return nil, err
	}

	issue := stringParam(params, "issue")

	switch op {
	case "create_issue":
		body := map[string]any{
			"project":     c.project,
			"summary":     params["summary"],
			"description": stringParam(params, "description"),
			"type":        stringParam(params, "type"),
			"priority":    stringParam(params, "priority"),
		}
		resp, err := c.client.doJSON(ctx, http.MethodPost, c.baseURL+"/issues", body)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "get_issue":
		resp, err := c.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/issues/%s", c.baseURL, issue), nil)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "transition_issue":
		body := map[string]any{"transition": params["transition"]}
		resp, err := c.client.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/issues/%s/transitions", c.baseURL, issue), body)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "comment_issue":
		body := map[string]any{"body": params["body"]}
		resp, err := c.client.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/issues/%s/comments", c.baseURL, issue), body)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "search_issues":
		u := fmt.Sprintf("%s/search?project=%s&q=%s", c.baseURL, url.QueryEscape(c.project), url.QueryEscape(stringParam(params, "query")))
		resp, err := c.client.doJSON(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil
	}

	return nil, nil
}
