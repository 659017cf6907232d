package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/webhook-dispatcher/pkg/appconfig"
	"github.com/morezero/webhook-dispatcher/pkg/events"
	"github.com/morezero/webhook-dispatcher/pkg/functions"
	"github.com/morezero/webhook-dispatcher/pkg/observability"
)

const logPrefix = "dispatcher:dispatch"

// Params configures a Dispatcher. Registry is required; everything else has a
// no-op default.
type Params struct {
	Registry  functions.Registry
	Configs   appconfig.Resolver
	Annotator observability.Annotator
	Events    events.EventPublisher
	Metrics   *observability.Metrics
	// Logger is used when application config cannot be resolved.
	Logger *slog.Logger
	// TruncateLength bounds logged inputs and results. Zero means
	// DefaultTruncateLength; negative disables truncation.
	TruncateLength int
}

// Dispatcher looks up, validates and invokes cloud functions.
type Dispatcher struct {
	registry  functions.Registry
	configs   appconfig.Resolver
	annotator observability.Annotator
	events    events.EventPublisher
	metrics   *observability.Metrics
	logger    *slog.Logger
	truncate  int
}

// New creates a Dispatcher.
func New(p Params) (*Dispatcher, error) {
	if p.Registry == nil {
		return nil, fmt.Errorf("%s - registry is required", logPrefix)
	}
	d := &Dispatcher{
		registry:  p.Registry,
		configs:   p.Configs,
		annotator: p.Annotator,
		events:    p.Events,
		metrics:   p.Metrics,
		logger:    p.Logger,
		truncate:  p.TruncateLength,
	}
	if d.annotator == nil {
		d.annotator = observability.NoopAnnotator{}
	}
	if d.events == nil {
		d.events = &events.NoOpPublisher{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.truncate == 0 {
		d.truncate = DefaultTruncateLength
	}
	return d, nil
}

// invocation carries the state of one dispatch through completion.
type invocation struct {
	requestID string
	appID     string
	name      string
	req       *functions.Request
	logger    *slog.Logger
	span      trace.Span
	started   time.Time
	pending   *Pending
	// cleanInput is the serialized, truncated params; inputErr is set when
	// they could not be serialized.
	cleanInput string
	inputErr   error
	settled    sync.Once
}

// Dispatch runs functionName for appID. Lookup and validation failures are
// returned synchronously; otherwise the function is started and its outcome
// is delivered through the returned Pending.
func (d *Dispatcher) Dispatch(ctx context.Context, in *Inbound, functionName, appID string) (*Pending, error) {
	requestID := uuid.NewString()
	ctx, span := observability.StartSpan(ctx, "dispatcher.Dispatch",
		observability.AttrFunctionName.String(functionName),
		observability.AttrAppID.String(appID),
		observability.AttrRequestID.String(requestID),
	)

	fn, ok := d.registry.GetFunction(functionName, appID)
	if !ok || fn == nil {
		return nil, d.refuse(span, appID, functionName, functions.UnknownFunction(functionName))
	}

	var cfg *appconfig.Config
	if d.configs != nil {
		c, err := d.configs.Resolve(ctx, appID)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - no config for app %s: %v", logPrefix, appID, err))
		} else {
			cfg = c
		}
	}

	req := BuildRequest(in, cfg, functionName)
	logger := d.logger
	if req.Log != nil {
		logger = req.Log
	}

	if validator, ok := d.registry.GetValidator(functionName, appID); ok && validator != nil {
		if err := runValidator(validator, req, functionName); err != nil {
			return nil, d.refuse(span, appID, functionName, err)
		}
	}

	inv := &invocation{
		requestID: requestID,
		appID:     appID,
		name:      functionName,
		req:       req,
		logger:    logger,
		span:      span,
		started:   time.Now(),
		pending:   newPending(requestID),
	}
	if input, err := json.Marshal(req.Params); err != nil {
		inv.inputErr = err
	} else {
		inv.cleanInput = Truncate(string(input), d.truncate)
	}

	d.annotator.AddCustomParameters(ctx, map[string]any{
		"functionName": functionName,
		"params":       inv.cleanInput,
		"user":         userID(req.User),
	})

	handle := newCompletionHandle(
		func(env *ResultEnvelope) { d.complete(inv, env, nil) },
		func(err *functions.Error) { d.complete(inv, nil, err) },
	)

	slog.Debug(fmt.Sprintf("%s - invoking %s for app %s (%s)", logPrefix, functionName, appID, requestID))
	d.metrics.InvocationStarted()
	go invoke(fn, req, handle)
	return inv.pending, nil
}

func invoke(fn functions.Function, req *functions.Request, handle *completionHandle) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - cloud function %s panicked: %v", logPrefix, req.FunctionName, r))
			handle.fail(functions.Internal(
				fmt.Sprintf("Cloud function %q failed unexpectedly.", req.FunctionName),
				fmt.Errorf("panic: %v", r),
			))
		}
	}()
	fn(req, handle)
}

// runValidator returns nil when the call may proceed. Validator errors are
// passed through unchanged.
func runValidator(v functions.Validator, req *functions.Request, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = functions.Internal(fmt.Sprintf("Validator for %q failed unexpectedly.", name), fmt.Errorf("panic: %v", r))
		}
	}()
	ok, verr := v(req)
	if verr != nil {
		return verr
	}
	if !ok {
		return functions.ValidationFailed(name)
	}
	return nil
}

func (d *Dispatcher) refuse(span trace.Span, appID, name string, err error) error {
	slog.Debug(fmt.Sprintf("%s - refused %s for app %s: %v", logPrefix, name, appID, err))
	if fe, ok := functions.AsError(err); ok {
		span.SetAttributes(observability.AttrErrorCode.Int(fe.Code))
	}
	observability.SetSpanError(span, err)
	span.End()
	d.metrics.InvocationRejected(appID, name)
	return err
}

// complete logs the outcome and settles the pending result. A failure while
// building the log record turns the outcome into a logging fault.
func (d *Dispatcher) complete(inv *invocation, env *ResultEnvelope, ferr *functions.Error) {
	defer func() {
		if r := recover(); r != nil {
			d.settle(inv, nil, functions.LoggingFault(inv.name, fmt.Errorf("panic: %v", r)))
		}
	}()

	user := userID(inv.req.User)
	if inv.inputErr != nil {
		d.settle(inv, nil, functions.LoggingFault(inv.name, inv.inputErr))
		return
	}
	cleanInput := inv.cleanInput

	if ferr != nil {
		serialized, err := json.Marshal(ferr)
		if err != nil {
			d.settle(inv, nil, functions.LoggingFault(inv.name, err))
			return
		}
		inv.logger.Error(
			fmt.Sprintf("%s - Failed running cloud function %s for user %s with:\n  Input: %s\n  Error: %s",
				logPrefix, inv.name, user, cleanInput, serialized),
			"functionName", inv.name,
			"error", string(serialized),
			"user", user,
		)
		d.settle(inv, nil, ferr)
		return
	}

	result, err := json.Marshal(env.Response.Result)
	if err != nil {
		d.settle(inv, nil, functions.LoggingFault(inv.name, err))
		return
	}
	cleanResult := Truncate(string(result), d.truncate)
	inv.logger.Info(
		fmt.Sprintf("%s - Ran cloud function %s for user %s with:\n  Input: %s\n  Result: %s",
			logPrefix, inv.name, user, cleanInput, cleanResult),
		"functionName", inv.name,
		"params", cleanInput,
		"user", user,
	)
	d.settle(inv, env, nil)
}

// settle records the outcome and resolves the pending result. Only the first
// call has any effect, and the pending result is resolved even when recording
// the outcome panics.
func (d *Dispatcher) settle(inv *invocation, env *ResultEnvelope, err error) {
	inv.settled.Do(func() {
		defer inv.pending.settle(env, err)
		defer func() {
			if r := recover(); r != nil {
				slog.Error(fmt.Sprintf("%s - recording outcome of %s failed: %v", logPrefix, inv.name, r))
			}
		}()
		d.record(inv, err)
	})
}

func (d *Dispatcher) record(inv *invocation, err error) {
	elapsed := time.Since(inv.started)
	status := observability.StatusSuccess
	code := 0
	if err != nil {
		status = observability.StatusError
		var fe *functions.Error
		if errors.As(err, &fe) {
			code = fe.Code
			inv.span.SetAttributes(observability.AttrErrorCode.Int(fe.Code))
		}
		observability.SetSpanError(inv.span, err)
	} else {
		observability.SetSpanOK(inv.span)
	}
	inv.span.End()
	d.metrics.InvocationFinished(inv.appID, inv.name, status, elapsed)

	evt := &events.FunctionInvokedEvent{
		RequestID:  inv.requestID,
		App:        inv.appID,
		Function:   inv.name,
		User:       userID(inv.req.User),
		Success:    err == nil,
		Code:       code,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if perr := d.events.PublishInvoked(context.Background(), evt); perr != nil {
		slog.Warn(fmt.Sprintf("%s - publish invoked event failed: %v", logPrefix, perr))
	}
}

func userID(u *functions.User) string {
	if u == nil || u.ID == "" {
		return "undefined"
	}
	return u.ID
}
