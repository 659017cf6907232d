package functions

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/morezero/webhook-dispatcher/pkg/semver"
)

const catalogLogPrefix = "functions:catalog"

// DefaultVersion is used when a function is defined without a version.
const DefaultVersion = "0.0.0"

// Definition is one registered version of a function.
type Definition struct {
	Name      string
	Version   string
	Status    string
	Function  Function
	Validator Validator
	// Source describes where the definition came from (e.g. "local", "comms:<subject>").
	Source string
}

// DefineOption customizes a Definition.
type DefineOption func(*Definition)

// WithVersion sets the SemVer version of a definition.
func WithVersion(version string) DefineOption {
	return func(d *Definition) { d.Version = version }
}

// WithValidator attaches a validator.
func WithValidator(v Validator) DefineOption {
	return func(d *Definition) { d.Validator = v }
}

// WithStatus sets active, deprecated or disabled.
func WithStatus(status string) DefineOption {
	return func(d *Definition) { d.Status = status }
}

// Catalog is an in-memory Registry keyed by application id and function name.
// Names may carry a version range ("name@^2") at lookup time.
type Catalog struct {
	mu   sync.RWMutex
	apps map[string]map[string][]Definition
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{apps: make(map[string]map[string][]Definition)}
}

// Define registers fn under name for appID. Defining the same version twice
// replaces the earlier definition.
func (c *Catalog) Define(appID, name string, fn Function, opts ...DefineOption) error {
	if fn == nil {
		return fmt.Errorf("%s - nil function for %q", catalogLogPrefix, name)
	}
	if !semver.ValidateAppID(appID) {
		return fmt.Errorf("%s - invalid application id %q", catalogLogPrefix, appID)
	}
	if !semver.ValidateFunctionName(name) {
		return fmt.Errorf("%s - invalid function name %q", catalogLogPrefix, name)
	}

	def := Definition{Name: name, Version: DefaultVersion, Status: semver.StatusActive, Function: fn, Source: "local"}
	for _, opt := range opts {
		opt(&def)
	}
	version, err := semver.Normalize(def.Version)
	if err != nil {
		return fmt.Errorf("%s - invalid version %q for %q: %w", catalogLogPrefix, def.Version, name, err)
	}
	def.Version = version

	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(appID, def)
	slog.Debug(fmt.Sprintf("%s - defined %s@%s for app %s (%s)", catalogLogPrefix, name, version, appID, def.Source))
	return nil
}

// Replace atomically swaps every definition of appID that came from source
// with defs. Definitions from other sources are kept.
func (c *Catalog) Replace(appID, source string, defs []Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fns, ok := c.apps[appID]; ok {
		for name, versions := range fns {
			kept := versions[:0]
			for _, d := range versions {
				if d.Source != source {
					kept = append(kept, d)
				}
			}
			if len(kept) == 0 {
				delete(fns, name)
			} else {
				fns[name] = kept
			}
		}
	}
	for _, d := range defs {
		if d.Function == nil {
			continue
		}
		d.Source = source
		if d.Status == "" {
			d.Status = semver.StatusActive
		}
		if v, err := semver.Normalize(d.Version); err == nil {
			d.Version = v
		} else {
			slog.Warn(fmt.Sprintf("%s - skip %s: invalid version %q", catalogLogPrefix, d.Name, d.Version))
			continue
		}
		c.putLocked(appID, d)
	}
	slog.Info(fmt.Sprintf("%s - app %s: %d definitions loaded from %s", catalogLogPrefix, appID, len(defs), source))
}

// Names lists the function names registered for appID, sorted.
func (c *Catalog) Names(appID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.apps[appID]))
	for name := range c.apps[appID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a (possibly versioned) reference to a definition.
func (c *Catalog) Lookup(ref, appID string) (Definition, bool) {
	parsed, err := semver.ParseFunctionRef(ref)
	if err != nil {
		return Definition{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	versions := c.apps[appID][parsed.Name]
	if len(versions) == 0 {
		return Definition{}, false
	}
	candidates := make([]semver.Candidate, len(versions))
	for i, d := range versions {
		candidates[i] = semver.Candidate{Version: d.Version, Status: d.Status}
	}
	idx, ok := semver.Resolve(candidates, parsed.Range)
	if !ok {
		return Definition{}, false
	}
	return versions[idx], true
}

// GetFunction implements Registry.
func (c *Catalog) GetFunction(name, appID string) (Function, bool) {
	d, ok := c.Lookup(name, appID)
	if !ok || d.Function == nil {
		return nil, false
	}
	return d.Function, true
}

// GetValidator implements Registry.
func (c *Catalog) GetValidator(name, appID string) (Validator, bool) {
	d, ok := c.Lookup(name, appID)
	if !ok || d.Validator == nil {
		return nil, false
	}
	return d.Validator, true
}

func (c *Catalog) putLocked(appID string, def Definition) {
	fns, ok := c.apps[appID]
	if !ok {
		fns = make(map[string][]Definition)
		c.apps[appID] = fns
	}
	versions := fns[def.Name]
	for i := range versions {
		if versions[i].Version == def.Version {
			versions[i] = def
			return
		}
	}
	fns[def.Name] = append(versions, def)
}
