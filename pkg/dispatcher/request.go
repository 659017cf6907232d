package dispatcher

import (
	"github.com/morezero/webhook-dispatcher/pkg/appconfig"
	"github.com/morezero/webhook-dispatcher/pkg/functions"
	"github.com/morezero/webhook-dispatcher/pkg/wire"
)

// BuildRequest builds the invocation context for functionName. Query
// parameters are merged first so body fields win on collision. cfg may be nil
// when application config could not be resolved.
func BuildRequest(in *Inbound, cfg *appconfig.Config, functionName string) *functions.Request {
	req := &functions.Request{FunctionName: functionName}
	if in == nil {
		req.Params = map[string]wire.Value{}
		return req
	}

	merged := make(map[string]any, len(in.Query)+len(in.Body))
	for k, v := range in.Query {
		merged[k] = v
	}
	for k, v := range in.Body {
		merged[k] = v
	}
	req.Params = wire.RehydrateParams(merged)

	if in.Auth != nil {
		req.Master = in.Auth.IsMaster
		req.User = in.Auth.User
	}
	if in.Info != nil {
		req.InstallationID = in.Info.InstallationID
	}
	if cfg != nil {
		req.Log = cfg.Logger
	}
	if in.Headers != nil {
		req.Headers = in.Headers.Clone()
	}
	return req
}
