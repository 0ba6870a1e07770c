// Package integration implements the integration engine: definition
// lifecycle, connector materialization and operation routing.
package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ataiva-software/vertex-sub003/internal/auth"
	domain "github.com/ataiva-software/vertex-sub003/internal/domain/integration"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
	"github.com/ataiva-software/vertex-sub003/internal/hub/connector"
	"github.com/ataiva-software/vertex-sub003/internal/secrets"
	"github.com/ataiva-software/vertex-sub003/internal/storage"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
	"github.com/ataiva-software/vertex-sub003/pkg/metrics"
)

// Engine owns integration definitions and the live connector-instance cache.
type Engine struct {
	store    storage.IntegrationStore
	registry *connector.Registry
	resolver secrets.Resolver
	log      *logger.Logger

	idleTTL time.Duration
	maxSize int
	timeout time.Duration

	mu        sync.Mutex
	instances map[string]*cachedInstance
	group     singleflight.Group

	stopOnce sync.Once
	stopCh   chan struct{}
}

type cachedInstance struct {
	conn        connector.Connector
	fingerprint string
	lastUsed    time.Time
}

// Config configures the engine.
type Config struct {
	Store     storage.IntegrationStore
	Registry  *connector.Registry
	Resolver  secrets.Resolver
	Logger    *logger.Logger
	IdleTTL   time.Duration
	MaxCached int
	Timeout   time.Duration
}

// New creates the integration engine and starts its eviction janitor.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("integration-engine")
	}
	if cfg.Registry == nil {
		cfg.Registry = connector.DefaultRegistry()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.MaxCached <= 0 {
		cfg.MaxCached = 256
	}

	e := &Engine{
		store:     cfg.Store,
		registry:  cfg.Registry,
		resolver:  cfg.Resolver,
		log:       cfg.Logger,
		idleTTL:   cfg.IdleTTL,
		maxSize:   cfg.MaxCached,
		timeout:   cfg.Timeout,
		instances: make(map[string]*cachedInstance),
		stopCh:    make(chan struct{}),
	}
	go e.runJanitor()
	return e
}

// Stop halts the eviction janitor.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

func (e *Engine) runJanitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.evictIdle()
		}
	}
}

func (e *Engine) evictIdle() {
	cutoff := time.Now().Add(-e.idleTTL)
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, inst := range e.instances {
		if inst.lastUsed.Before(cutoff) {
			delete(e.instances, id)
		}
	}
}

// Register creates a new integration after validating the type's required
// config keys.
func (e *Engine) Register(ctx context.Context, actor auth.Context, typ domain.Type, name string, config map[string]string, credentialRef string, tags []string) (domain.Integration, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Integration{}, errors.MissingParameter("name")
	}

	required, ok := e.registry.RequiredConfig(typ)
	if !ok {
		return domain.Integration{}, errors.InvalidInput("type", fmt.Sprintf("unknown integration type %q", typ))
	}
	for _, key := range required {
		if strings.TrimSpace(config[key]) == "" {
			return domain.Integration{}, errors.MissingParameter("config." + key)
		}
	}

	in := domain.Integration{
		OwnerID:       actor.UserID,
		Type:          typ,
		Name:          name,
		Config:        config,
		CredentialRef: credentialRef,
		Tags:          tags,
		Active:        true,
	}
	created, err := e.store.CreateIntegration(ctx, in)
	if err != nil {
		return domain.Integration{}, err
	}

	e.log.WithField("integration_id", created.ID).
		WithField("type", string(typ)).
		WithField("owner", actor.UserID).
		Info("integration registered")
	return created, nil
}

// Patch describes a partial integration update.
type Patch struct {
	Name          *string
	Config        map[string]string
	CredentialRef *string
	Tags          []string
	Active        *bool
}

// Update applies a patch. A config or credential change evicts any cached
// connector instance so the next execute builds against fresh state.
func (e *Engine) Update(ctx context.Context, actor auth.Context, id string, patch Patch) (domain.Integration, error) {
	in, err := e.getOwned(ctx, actor, id)
	if err != nil {
		return domain.Integration{}, err
	}

	before := in.Fingerprint()

	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return domain.Integration{}, errors.InvalidInput("name", "cannot be empty")
		}
		in.Name = trimmed
	}
	if patch.Config != nil {
		required, _ := e.registry.RequiredConfig(in.Type)
		for _, key := range required {
			if strings.TrimSpace(patch.Config[key]) == "" {
				return domain.Integration{}, errors.MissingParameter("config." + key)
			}
		}
		in.Config = patch.Config
	}
	if patch.CredentialRef != nil {
		in.CredentialRef = *patch.CredentialRef
	}
	if patch.Tags != nil {
		in.Tags = patch.Tags
	}
	if patch.Active != nil {
		in.Active = *patch.Active
	}

	updated, err := e.store.UpdateIntegration(ctx, in)
	if err != nil {
		return domain.Integration{}, err
	}

	// Evict before returning so no execute observes a stale credential after
	// the commit.
	if updated.Fingerprint() != before || (patch.Active != nil && !*patch.Active) {
		e.Evict(id)
	}

	e.log.WithField("integration_id", id).Info("integration updated")
	return updated, nil
}

// Get fetches an owned integration.
func (e *Engine) Get(ctx context.Context, actor auth.Context, id string) (domain.Integration, error) {
	return e.getOwned(ctx, actor, id)
}

// List lists the caller's integrations.
func (e *Engine) List(ctx context.Context, actor auth.Context) ([]domain.Integration, error) {
	return e.store.ListIntegrations(ctx, actor.UserID)
}

// Delete removes an integration and its cached instance.
func (e *Engine) Delete(ctx context.Context, actor auth.Context, id string) error {
	if _, err := e.getOwned(ctx, actor, id); err != nil {
		return err
	}
	if err := e.store.DeleteIntegration(ctx, id); err != nil {
		return err
	}
	e.Evict(id)
	e.log.WithField("integration_id", id).Info("integration deleted")
	return nil
}

// Deactivate drops the cached instance and rejects new executes until
// reactivated.
func (e *Engine) Deactivate(ctx context.Context, actor auth.Context, id string) (domain.Integration, error) {
	inactive := false
	return e.Update(ctx, actor, id, Patch{Active: &inactive})
}

// Test probes the integration's connectivity. Connector failures surface as
// diagnostics rather than errors.
func (e *Engine) Test(ctx context.Context, actor auth.Context, id string) (domain.TestResult, error) {
	in, err := e.getOwned(ctx, actor, id)
	if err != nil {
		return domain.TestResult{}, err
	}

	conn, err := e.instance(ctx, in)
	if err != nil {
		return domain.TestResult{OK: false, Diagnostics: err.Error()}, nil
	}
	return conn.Test(ctx), nil
}

// Execute routes one operation through the integration's connector.
func (e *Engine) Execute(ctx context.Context, actor auth.Context, id, op string, params connector.Params) (connector.Result, error) {
	in, err := e.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !in.Active {
		return nil, errors.Conflict("integration is deactivated")
	}

	conn, err := e.instance(ctx, in)
	if err != nil {
		metrics.RecordConnectorOp(string(in.Type), "build_error")
		return nil, err
	}

	result, err := conn.Execute(ctx, op, params)
	if err != nil {
		metrics.RecordConnectorOp(string(in.Type), "error")
		return nil, err
	}
	metrics.RecordConnectorOp(string(in.Type), "ok")
	return result, nil
}

// Capabilities returns the operation map of the integration's connector.
func (e *Engine) Capabilities(ctx context.Context, actor auth.Context, id string) (map[string][]string, error) {
	in, err := e.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	conn, err := e.instance(ctx, in)
	if err != nil {
		return nil, err
	}
	return conn.Capabilities(), nil
}

// Evict drops the cached connector instance for an integration.
func (e *Engine) Evict(id string) {
	e.mu.Lock()
	delete(e.instances, id)
	e.mu.Unlock()
}

// CachedCount reports the live instance count; used by status endpoints.
func (e *Engine) CachedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}

// instance returns the cached connector for the integration, building one if
// needed. Concurrent callers for the same id share a single construction;
// a fingerprint mismatch (config or credential change) rebuilds.
func (e *Engine) instance(ctx context.Context, in domain.Integration) (connector.Connector, error) {
	fp := in.Fingerprint()

	e.mu.Lock()
	if inst, ok := e.instances[in.ID]; ok && inst.fingerprint == fp {
		inst.lastUsed = time.Now()
		conn := inst.conn
		e.mu.Unlock()
		return conn, nil
	}
	e.mu.Unlock()

	built, err, _ := e.group.Do(in.ID+"|"+fp, func() (interface{}, error) {
		credential := ""
		if in.CredentialRef != "" {
			var err error
			credential, err = e.resolver.Resolve(ctx, in.CredentialRef)
			if err != nil {
				return nil, errors.ConnectorFailure(string(in.Type), false, err)
			}
		}

		conn, err := e.registry.Build(connector.Config{
			Integration: in,
			Credential:  credential,
			Timeout:     e.timeout,
		})
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		if len(e.instances) >= e.maxSize {
			e.evictOldestLocked()
		}
		e.instances[in.ID] = &cachedInstance{conn: conn, fingerprint: fp, lastUsed: time.Now()}
		e.mu.Unlock()
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return built.(connector.Connector), nil
}

func (e *Engine) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, inst := range e.instances {
		if oldestID == "" || inst.lastUsed.Before(oldest) {
			oldestID = id
			oldest = inst.lastUsed
		}
	}
	if oldestID != "" {
		delete(e.instances, oldestID)
	}
}

func (e *Engine) getOwned(ctx context.Context, actor auth.Context, id string) (domain.Integration, error) {
	in, err := e.store.GetIntegration(ctx, id)
	if err != nil {
		return domain.Integration{}, err
	}
	if in.OwnerID != actor.UserID && !actor.IsAdmin() {
		return domain.Integration{}, errors.OwnershipRequired("integration")
	}
	return in, nil
}
