package appconfig

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/webhook-dispatcher/pkg/db"
)

const storeLogPrefix = "appconfig:store"

// ApplicationStore is the subset of db.Repository used by StoreResolver.
type ApplicationStore interface {
	GetApplication(ctx context.Context, id string) (*db.Application, error)
}

// StoreResolver reads application configuration from Postgres and caches it
// until Invalidate is called.
type StoreResolver struct {
	store ApplicationStore
	base  *slog.Logger

	mu    sync.RWMutex
	cache map[string]*Config
}

// NewStoreResolver creates a StoreResolver.
func NewStoreResolver(store ApplicationStore, base *slog.Logger) *StoreResolver {
	return &StoreResolver{store: store, base: base, cache: make(map[string]*Config)}
}

// Resolve implements Resolver. Disabled and unknown applications resolve to
// ErrApplicationNotFound.
func (r *StoreResolver) Resolve(ctx context.Context, appID string) (*Config, error) {
	r.mu.RLock()
	cfg, ok := r.cache[appID]
	r.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	app, err := r.store.GetApplication(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("%s - load application %s: %w", storeLogPrefix, appID, err)
	}
	if app == nil || app.Status == "disabled" {
		return nil, fmt.Errorf("%s - %s: %w", storeLogPrefix, appID, ErrApplicationNotFound)
	}

	level, err := ParseLevel(app.LogLevel)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - app %s: %v", storeLogPrefix, appID, err))
	}
	cfg = New(r.base, appID, level)

	r.mu.Lock()
	r.cache[appID] = cfg
	r.mu.Unlock()
	return cfg, nil
}

// Invalidate drops the cached configuration of appID, or of every
// application when appID is empty.
func (r *StoreResolver) Invalidate(appID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if appID == "" {
		r.cache = make(map[string]*Config)
		return
	}
	delete(r.cache, appID)
}
