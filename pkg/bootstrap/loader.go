package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/morezero/webhook-dispatcher/pkg/semver"
)

const logPrefix = "bootstrap:loader"

// ManifestFileEnv names the environment variable holding the manifest path.
const ManifestFileEnv = "FUNCTIONS_MANIFEST_FILE"

// LoadManifest loads the function manifest from file paths or environment.
// It tries paths in order: first any paths passed in, then FUNCTIONS_MANIFEST_FILE,
// then defaults. Unreadable files are skipped; a file that exists but does not
// parse or validate is an error.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(ManifestFileEnv); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/functions.json", "functions.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		m, err := ParseManifest(data)
		if err != nil {
			return nil, fmt.Errorf("%s - %s: %w", logPrefix, p, err)
		}

		slog.Info(fmt.Sprintf("%s - loaded function manifest from %s (%d applications)", logPrefix, p, len(m.Applications)))
		return m, nil
	}

	slog.Info(fmt.Sprintf("%s - no function manifest found, using default", logPrefix))
	return DefaultManifest(), nil
}

// ParseManifest decodes and validates a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Applications == nil {
		m.Applications = make(map[string]ApplicationManifest)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks application ids, function names, versions and statuses.
func (m *Manifest) Validate() error {
	for appID, app := range m.Applications {
		if !semver.ValidateAppID(appID) {
			return fmt.Errorf("invalid application id %q", appID)
		}
		for key, fn := range app.Functions {
			name, version, err := SplitFunctionKey(key, fn)
			if err != nil {
				return fmt.Errorf("app %s: %w", appID, err)
			}
			if version != "" {
				if _, err := semver.Normalize(version); err != nil {
					return fmt.Errorf("app %s: function %s: invalid version %q", appID, name, version)
				}
			}
			switch strings.ToLower(fn.Status) {
			case "", semver.StatusActive, semver.StatusDeprecated, semver.StatusDisabled:
			default:
				return fmt.Errorf("app %s: function %s: unknown status %q", appID, name, fn.Status)
			}
			if fn.TimeoutMs < 0 {
				return fmt.Errorf("app %s: function %s: negative timeoutMs", appID, name)
			}
		}
	}
	return nil
}

// SplitFunctionKey returns the function name and version of a manifest entry.
// A version in the key takes precedence over fn.Version.
func SplitFunctionKey(key string, fn FunctionManifest) (name, version string, err error) {
	ref, err := semver.ParseFunctionRef(key)
	if err != nil {
		return "", "", fmt.Errorf("invalid function key %q", key)
	}
	if ref.Range != "" {
		return ref.Name, ref.Range, nil
	}
	return ref.Name, fn.Version, nil
}

// DefaultManifest returns the fallback manifest: no applications and the
// default event subjects.
func DefaultManifest() *Manifest {
	return &Manifest{
		Name:         "webhook-dispatcher",
		Version:      "1.0.0",
		Description:  "Default function manifest",
		Applications: map[string]ApplicationManifest{},
	}
}

// MergeManifests merges override into base. Applications present in both
// are merged function by function; override wins on conflicts.
func MergeManifests(base, override *Manifest) *Manifest {
	merged := *base
	merged.Applications = make(map[string]ApplicationManifest, len(base.Applications))
	for id, app := range base.Applications {
		merged.Applications[id] = copyApplication(app)
	}

	for id, app := range override.Applications {
		existing, ok := merged.Applications[id]
		if !ok {
			merged.Applications[id] = copyApplication(app)
			continue
		}
		if app.Name != "" {
			existing.Name = app.Name
		}
		if app.LogLevel != "" {
			existing.LogLevel = app.LogLevel
		}
		for name, fn := range app.Functions {
			existing.Functions[name] = fn
		}
		merged.Applications[id] = existing
	}

	if override.Events.Invoked != "" {
		merged.Events.Invoked = override.Events.Invoked
	}
	if override.Events.RoutesChanged != "" {
		merged.Events.RoutesChanged = override.Events.RoutesChanged
	}
	return &merged
}

func copyApplication(app ApplicationManifest) ApplicationManifest {
	out := app
	out.Functions = make(map[string]FunctionManifest, len(app.Functions))
	for name, fn := range app.Functions {
		out.Functions[name] = fn
	}
	return out
}
