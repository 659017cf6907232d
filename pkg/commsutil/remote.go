package commsutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/webhook-dispatcher/pkg/functions"
	"github.com/morezero/webhook-dispatcher/pkg/wire"
)

const remoteLogPrefix = "commsutil:remote"

// DefaultRemoteTimeout bounds a remote call when RemoteParams.Timeout is zero.
const DefaultRemoteTimeout = 25 * time.Second

// RemoteParams configures RemoteFunction.
type RemoteParams struct {
	Conn     *comms.Conn
	Subject  string
	App      string
	Function string
	Timeout  time.Duration
}

// RemoteFunction returns a function that forwards each invocation to Subject
// over COMMS request/reply. The reply's ok flag selects Success or
// ErrorWithCode; transport and decode failures complete with Error.
func RemoteFunction(p RemoteParams) functions.Function {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}

	return func(req *functions.Request, res functions.Response) {
		env := FunctionRequest{
			ID:             uuid.NewString(),
			Type:           RequestTypeInvoke,
			App:            p.App,
			Function:       p.Function,
			Params:         encodeParams(req.Params),
			Master:         req.Master,
			InstallationID: req.InstallationID,
			Headers:        req.Headers,
			TimeoutMs:      int(timeout / time.Millisecond),
		}
		if req.User != nil {
			env.User = req.User
		}

		data, err := EncodePayload(env)
		if err != nil {
			res.Error(fmt.Sprintf("failed to encode request for %s: %v", p.Function, err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		msg, err := p.Conn.RequestWithContext(ctx, p.Subject, data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - request to %s failed: %v", remoteLogPrefix, p.Subject, err))
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, comms.ErrTimeout) {
				res.ErrorWithCode(functions.CodeTimeout, fmt.Sprintf("Cloud function %s timed out", p.Function))
				return
			}
			res.Error(fmt.Sprintf("Cloud function %s is unavailable: %v", p.Function, err))
			return
		}

		var reply FunctionReply
		if err := DecodePayload(msg.Data, &reply); err != nil {
			res.ErrorWithCode(functions.CodeInvalidJSON, fmt.Sprintf("invalid reply from %s: %v", p.Subject, err))
			return
		}
		if reply.Ok {
			res.Success(reply.Result)
			return
		}
		if reply.Error == nil {
			res.Error(fmt.Sprintf("Cloud function %s failed", p.Function))
			return
		}
		res.ErrorWithCode(reply.Error.Code, reply.Error.Message)
	}
}

func encodeParams(params map[string]wire.Value) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v.Wire()
	}
	return out
}
