// Package connector holds the pluggable adapters the integration engine
// routes operations through. Connectors never share mutable state; each
// instance gets its own resolved credential and HTTP client.
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/ataiva-software/vertex-sub003/internal/domain/integration"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

// Params carries operation arguments.
type Params map[string]any

// Result carries operation output.
type Result map[string]any

// Connector is the contract every adapter implements.
type Connector interface {
	// Test probes connectivity and reports latency plus diagnostics.
	Test(ctx context.Context) integration.TestResult
	// Capabilities maps each supported operation to its required params.
	Capabilities() map[string][]string
	// Execute runs one operation. Unknown operations return
	// UnsupportedOperation; downstream failures return ConnectorError.
	Execute(ctx context.Context, op string, params Params) (Result, error)
}

// Config is handed to factories when the engine materializes an instance.
type Config struct {
	Integration integration.Integration
	Credential  string
	Timeout     time.Duration
}

// Factory builds a connector instance for one integration.
type Factory func(cfg Config) (Connector, error)

// Registry maps integration types to factories.
type Registry struct {
	factories map[integration.Type]Factory
	// requiredConfig lists the config keys an integration of each type must
	// carry before a connector can be built.
	requiredConfig map[integration.Type][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories:      make(map[integration.Type]Factory),
		requiredConfig: make(map[integration.Type][]string),
	}
}

// Register binds a factory and its required config keys to a type.
func (r *Registry) Register(t integration.Type, required []string, f Factory) {
	r.factories[t] = f
	r.requiredConfig[t] = required
}

// RequiredConfig returns the config keys integrations of this type must set.
func (r *Registry) RequiredConfig(t integration.Type) ([]string, bool) {
	keys, ok := r.requiredConfig[t]
	return keys, ok
}

// Build materializes a connector for the integration.
func (r *Registry) Build(cfg Config) (Connector, error) {
	factory, ok := r.factories[cfg.Integration.Type]
	if !ok {
		return nil, errors.InvalidInput("type", fmt.Sprintf("unknown integration type %q", cfg.Integration.Type))
	}
	return factory(cfg)
}

// DefaultRegistry returns a registry with all built-in connectors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(integration.TypeObjectStore, []string{"endpoint", "bucket"}, NewObjectStore)
	r.Register(integration.TypeCodeHost, []string{"base_url", "owner"}, NewCodeHost)
	r.Register(integration.TypeIssueTracker, []string{"base_url", "project"}, NewIssueTracker)
	r.Register(integration.TypeChat, []string{"webhook_url"}, NewChat)
	return r
}

// requireParams validates required operation params against the capability
// declaration shared by all connectors.
func requireParams(caps map[string][]string, connectorName, op string, params Params) error {
	required, ok := caps[op]
	if !ok {
		return errors.UnsupportedOperation(connectorName, op)
	}
	for _, name := range required {
		v, present := params[name]
		if !present {
			return errors.MissingParameter(name)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return errors.MissingParameter(name)
		}
	}
	return nil
}

func stringParam(params Params, name string) string {
	if v, ok := params[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
