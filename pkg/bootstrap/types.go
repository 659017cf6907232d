// Package bootstrap loads the function manifest: the applications served by
// the dispatcher and the remote functions each one exposes.
package bootstrap

import (
	"sort"
	"time"
)

// ValidatorSpec is a declarative validator attached to a function.
type ValidatorSpec struct {
	RequireMaster  bool     `json:"requireMaster,omitempty"`
	RequireUser    bool     `json:"requireUser,omitempty"`
	RequiredParams []string `json:"requiredParams,omitempty"`
}

// FunctionManifest describes one remote cloud function.
type FunctionManifest struct {
	// Subject the function listens on; empty derives fn.<app>.<name>.v<major>.
	Subject     string         `json:"subject,omitempty"`
	Version     string         `json:"version,omitempty"`
	Status      string         `json:"status,omitempty"`
	TimeoutMs   int            `json:"timeoutMs,omitempty"`
	Description string         `json:"description,omitempty"`
	Validator   *ValidatorSpec `json:"validator,omitempty"`
}

// Timeout returns the per-call timeout, or fallback when unset.
func (f FunctionManifest) Timeout(fallback time.Duration) time.Duration {
	if f.TimeoutMs <= 0 {
		return fallback
	}
	return time.Duration(f.TimeoutMs) * time.Millisecond
}

// ApplicationManifest holds the settings and functions of one application.
// Function keys are "name" or "name@version"; the latter lets one manifest
// carry several versions of a function.
type ApplicationManifest struct {
	Name      string                      `json:"name,omitempty"`
	LogLevel  string                      `json:"logLevel,omitempty"`
	Functions map[string]FunctionManifest `json:"functions"`
}

// FunctionNames returns the function keys, sorted.
func (a ApplicationManifest) FunctionNames() []string {
	names := make([]string, 0, len(a.Functions))
	for name := range a.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EventSubjects overrides the default event subjects.
type EventSubjects struct {
	Invoked       string `json:"invoked,omitempty"`
	RoutesChanged string `json:"routesChanged,omitempty"`
}

// Manifest is the root function manifest.
type Manifest struct {
	Name         string                         `json:"name"`
	Version      string                         `json:"version"`
	Description  string                         `json:"description,omitempty"`
	Applications map[string]ApplicationManifest `json:"applications"`
	Events       EventSubjects                  `json:"eventSubjects"`
}

// Application returns the manifest entry for appID.
func (m *Manifest) Application(appID string) (ApplicationManifest, bool) {
	if m == nil {
		return ApplicationManifest{}, false
	}
	app, ok := m.Applications[appID]
	return app, ok
}

// ApplicationIDs returns the application ids, sorted.
func (m *Manifest) ApplicationIDs() []string {
	ids := make([]string, 0, len(m.Applications))
	for id := range m.Applications {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
