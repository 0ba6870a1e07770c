package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/domain/integration"
)

// objectStore speaks to an S3-compatible object storage gateway over its
// JSON management API.
type objectStore struct {
	client   *apiClient
	endpoint string
	bucket   string
}

var objectStoreCaps = map[string][]string{
	"list_buckets":  {},
	"stat_bucket":   {"bucket"},
	"list_objects":  {"bucket"},
	"get_object":    {"bucket", "key"},
	"put_object":    {"bucket", "key", "content"},
	"delete_object": {"bucket", "key"},
}

// NewObjectStore builds the object storage connector.
func NewObjectStore(cfg Config) (Connector, error) {
	headers := map[string]string{"Authorization": "Bearer " + cfg.Credential}
	return &objectStore{
		client:   newAPIClient("objectstore", cfg.Timeout, headers),
		endpoint: cfg.Integration.Config["endpoint"],
		bucket:   cfg.Integration.Config["bucket"],
	}, nil
}

func (c *objectStore) Capabilities() map[string][]string { return objectStoreCaps }

func (c *objectStore) Test(ctx context.Context) integration.TestResult {
	ok, latency, diag := c.client.probe(ctx, c.endpoint+"/buckets")
	return integration.TestResult{OK: ok, Latency: latency, Diagnostics: diag}
}

func (c *objectStore) Execute(ctx context.Context, op string, params Params) (Result, error) {
	if err := requireParams(objectStoreCaps, "objectstore", op, params); err != nil {
		return nil, err
	}

	bucket := stringParam(params, "bucket")
	if bucket == "" {
		bucket = c.bucket
	}
	key := url.PathEscape(stringParam(params, "key"))

	switch op {
	case "list_buckets":
		resp, err := c.client.doJSON(ctx, http.MethodGet, c.endpoint+"/buckets", nil)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "stat_bucket":
		resp, err := c.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/buckets/%s", c.endpoint, bucket), nil)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "list_objects":
		u := fmt.Sprintf("%s/buckets/%s/objects", c.endpoint, bucket)
		if prefix := stringParam(params, "prefix"); prefix != "" {
			u += "?prefix=" + url.QueryEscape(prefix)
		}
		resp, err := c.client.doJSON(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "get_object":
		resp, err := c.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/buckets/%s/objects/%s", c.endpoint, bucket, key), nil)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "put_object":
		body := map[string]any{
			"content":      params["content"],
			"content_type": stringParam(params, "content_type"),
			"stored_at":    time.Now().UTC().Format(time.RFC3339),
		}
		resp, err := c.client.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/buckets/%s/objects/%s", c.endpoint, bucket, key), body)
		if err != nil {
			return nil, err
		}
		return decodeBody(resp.Body), nil

	case "delete_object":
		if _, err := c.client.doJSON(ctx, http.MethodDelete, fmt.Sprintf("%s/buckets/%s/objects/%s", c.endpoint, bucket, key), nil); err != nil {
			return nil, err
		}
		return Result{"deleted": true, "bucket": bucket, "key": stringParam(params, "key")}, nil
	}

	return nil, nil
}
