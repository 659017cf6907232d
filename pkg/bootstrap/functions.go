package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/webhook-dispatcher/pkg/commsutil"
	"github.com/morezero/webhook-dispatcher/pkg/functions"
	"github.com/morezero/webhook-dispatcher/pkg/semver"
)

const functionsLogPrefix = "bootstrap:functions"

// Validator builds a functions.Validator from spec, or nil when spec is empty.
func (spec *ValidatorSpec) Validator() functions.Validator {
	if spec == nil || (!spec.RequireMaster && !spec.RequireUser && len(spec.RequiredParams) == 0) {
		return nil
	}
	required := append([]string(nil), spec.RequiredParams...)
	requireMaster, requireUser := spec.RequireMaster, spec.RequireUser

	return func(req *functions.Request) (bool, error) {
		if requireMaster && !req.Master {
			return false, nil
		}
		if requireUser && req.User == nil && !req.Master {
			return false, nil
		}
		var missing []string
		for _, name := range required {
			if v, ok := req.Params[name]; !ok || v.IsNull() {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return false, functions.NewError(functions.CodeValidationError,
				fmt.Sprintf("Missing required parameters: %s", strings.Join(missing, ", ")))
		}
		return true, nil
	}
}

// SubjectFor returns the explicit subject of fn or the default derived from
// name and the major of version.
func SubjectFor(appID, name, version string, fn FunctionManifest) string {
	if fn.Subject != "" {
		return fn.Subject
	}
	major := 0
	if v, err := semver.Normalize(version); err == nil {
		fmt.Sscanf(v, "%d", &major)
	}
	return commsutil.BuildFunctionSubject(appID, name, major)
}

// RemoteDefinitions turns the functions of app into catalog definitions that
// forward to their COMMS subjects.
func RemoteDefinitions(nc *comms.Conn, appID string, app ApplicationManifest, defaultTimeout time.Duration) []functions.Definition {
	defs := make([]functions.Definition, 0, len(app.Functions))
	for _, key := range app.FunctionNames() {
		fn := app.Functions[key]
		name, version, err := SplitFunctionKey(key, fn)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - app %s: skip %v", functionsLogPrefix, appID, err))
			continue
		}
		subject := SubjectFor(appID, name, version, fn)
		if version == "" {
			version = functions.DefaultVersion
		}
		defs = append(defs, functions.Definition{
			Name:    name,
			Version: version,
			Status:  strings.ToLower(fn.Status),
			Function: commsutil.RemoteFunction(commsutil.RemoteParams{
				Conn:     nc,
				Subject:  subject,
				App:      appID,
				Function: name,
				Timeout:  fn.Timeout(defaultTimeout),
			}),
			Validator: fn.Validator.Validator(),
		})
	}
	return defs
}
