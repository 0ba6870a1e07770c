package connector

import (
	"context"
	"net/http"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/domain/integration"
)

// chat posts messages to a webhook-compatible chat endpoint. The credential
// is the signing token appended by the workspace admin; some providers embed
// it in the webhook URL, in which case it may be empty.
type chat struct {
	client     *apiClient
	webhookURL string
	channel    string
}

var chatCaps = map[string][]string{
	"post_message":   {"text"},
	"upload_snippet": {"content"},
}

// NewChat builds the chat connector.
func NewChat(cfg Config) (Connector, error) {
	headers := map[string]string{}
	if cfg.Credential != "" {
		headers["Authorization"] = "Bearer " + cfg.Credential
	}
	return &chat{
		client:     newAPIClient("chat", cfg.Timeout, headers),
		webhookURL: cfg.Integration.Config["webhook_url"],
		channel:    cfg.Integration.Config["channel"],
	}, nil
}

func (c *chat) Capabilities() map[string][]string { return chatCaps }

func (c *chat) Test(ctx context.Context) integration.TestResult {
	// Chat webhooks have no read endpoint; post an ephemeral probe.
	start := time.Now()
	_, err := c.client.doJSON(ctx, http.MethodPost, c.webhookURL, map[string]any{
		"text":    "vertex hub connectivity probe",
		"channel": c.channel,
	})
	latency := time.Since(start)
	if err != nil {
		return integration.TestResult{OK: false, Latency: latency, Diagnostics: err.Error()}
	}
	return integration.TestResult{OK: true, Latency: latency}
}

func (c *chat) Execute(ctx context.Context, op string, params Params) (Result, error) {
	if err := requireParams(chatCaps, "chat", op, params); err != nil {
		return nil, err
	}

	channel := stringParam(params, "channel")
	if channel == "" {
		channel = c.channel
	}

	switch op {
	case "post_message":
		body := map[string]any{
			"text":    params["text"],
			"channel": channel,
		}
		resp, err := c.client.doJSON(ctx, http.MethodPost, c.webhookURL, body)
		if err != nil {
			return nil, err
		}
		out := decodeBody(resp.Body)
		out["posted"] = true
		return out, nil

	case "upload_snippet":
		body := map[string]any{
			"text":    "```" + stringParam(params, "content") + "```",
			"channel": channel,
		}
		if title := stringParam(params, "title"); title != "" {
			body["text"] = title + "\n" + body["text"].(string)
		}
		resp, err := c.client.doJSON(ctx, http.MethodPost, c.webhookURL, body)
		if err != nil {
			return nil, err
		}
		out := decodeBody(resp.Body)
		out["posted"] = true
		return out, nil
	}

	return nil, nil
}
