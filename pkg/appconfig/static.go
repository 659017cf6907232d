package appconfig

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/webhook-dispatcher/pkg/bootstrap"
)

const staticLogPrefix = "appconfig:static"

// StaticResolver serves configuration from a manifest. Applications missing
// from the manifest get the fallback level.
type StaticResolver struct {
	base     *slog.Logger
	fallback slog.Level

	mu      sync.RWMutex
	configs map[string]*Config
}

// NewStaticResolver builds a resolver for every application in m.
func NewStaticResolver(base *slog.Logger, m *bootstrap.Manifest, fallback slog.Level) *StaticResolver {
	r := &StaticResolver{base: base, fallback: fallback, configs: make(map[string]*Config)}
	if m == nil {
		return r
	}
	for _, id := range m.ApplicationIDs() {
		app, _ := m.Application(id)
		level, err := ParseLevel(app.LogLevel)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - app %s: %v, using %s", staticLogPrefix, id, err, fallback))
			level = fallback
		}
		r.configs[id] = New(base, id, level)
	}
	return r
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(_ context.Context, appID string) (*Config, error) {
	if appID == "" {
		return nil, fmt.Errorf("%s - empty application id: %w", staticLogPrefix, ErrApplicationNotFound)
	}
	r.mu.RLock()
	cfg, ok := r.configs[appID]
	r.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg, ok := r.configs[appID]; ok {
		return cfg, nil
	}
	cfg = New(r.base, appID, r.fallback)
	r.configs[appID] = cfg
	return cfg, nil
}
