package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/webhook-dispatcher/pkg/bootstrap"
	"github.com/morezero/webhook-dispatcher/pkg/events"
)

const routesLogPrefix = "server:routes"

// Catalog sources of remote routes.
const (
	sourceManifest = "manifest"
	sourceStore    = "store"
)

// loadRoutes installs the remote functions of the configured application
// from the manifest and, when a database is configured, from stored routes.
// Stored routes replace manifest routes of the same version.
func (s *Server) loadRoutes(ctx context.Context) error {
	appID := s.cfg.ApplicationID
	if s.nc == nil {
		slog.Warn(fmt.Sprintf("%s - no COMMS connection, remote functions disabled", routesLogPrefix))
		return nil
	}

	if app, ok := s.manifest.Application(appID); ok {
		s.catalog.Replace(appID, sourceManifest, bootstrap.RemoteDefinitions(s.nc, appID, app, s.cfg.FunctionRequestTimeout))
	}
	return s.reloadStoredRoutes(ctx)
}

func (s *Server) reloadStoredRoutes(ctx context.Context) error {
	if s.repo == nil || s.nc == nil {
		return nil
	}
	appID := s.cfg.ApplicationID
	app, found, err := s.repo.LoadApplicationManifest(ctx, appID)
	if err != nil {
		return fmt.Errorf("%s - failed to load stored routes for %s: %w", routesLogPrefix, appID, err)
	}
	if !found {
		slog.Info(fmt.Sprintf("%s - no stored routes for %s", routesLogPrefix, appID))
		s.catalog.Replace(appID, sourceStore, nil)
		return nil
	}
	s.catalog.Replace(appID, sourceStore, bootstrap.RemoteDefinitions(s.nc, appID, app, s.cfg.FunctionRequestTimeout))
	return nil
}

func (s *Server) onRoutesChanged(event *events.RoutesChangedEvent) {
	if event.App != "" && event.App != s.cfg.ApplicationID {
		return
	}
	slog.Info(fmt.Sprintf("%s - routes of %s changed (%s), reloading", routesLogPrefix, s.cfg.ApplicationID, event.Source))
	if s.store != nil {
		s.store.Invalidate(s.cfg.ApplicationID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HealthCheckTimeout)
	defer cancel()
	if err := s.reloadStoredRoutes(ctx); err != nil {
		slog.Error(fmt.Sprintf("%s - reload failed: %v", routesLogPrefix, err))
	}
}
