package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/webhook-dispatcher/pkg/dispatcher"
	"github.com/morezero/webhook-dispatcher/pkg/functions"
	"github.com/morezero/webhook-dispatcher/pkg/observability"
)

const logPrefix = "webhooks:router"

// InstallationHeader carries the client installation id by default.
const InstallationHeader = "X-Installation-Id"

// DefaultMaxBodyBytes caps webhook bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// CodeInvalidSessionToken is reported when ContextFunc rejects a request.
const CodeInvalidSessionToken = 209

// Dispatcher starts cloud function invocations.
type Dispatcher interface {
	Dispatch(ctx context.Context, in *dispatcher.Inbound, functionName, appID string) (*dispatcher.Pending, error)
}

// ContextFunc resolves the authentication and client info of a request.
type ContextFunc func(r *http.Request) (*dispatcher.Auth, *dispatcher.Info, error)

// HeaderContext is the default ContextFunc: no authentication, installation id
// from InstallationHeader.
func HeaderContext(r *http.Request) (*dispatcher.Auth, *dispatcher.Info, error) {
	id := r.Header.Get(InstallationHeader)
	if id == "" {
		return nil, nil, nil
	}
	return nil, &dispatcher.Info{InstallationID: id}, nil
}

// RouterParams configures a Router.
type RouterParams struct {
	Dispatcher Dispatcher
	// AppID is the process-wide application id every route dispatches under.
	AppID string
	// Prefix defaults to DefaultPrefix.
	Prefix string
	// Routes maps provider to function reference. Defaults to DefaultRoutes.
	Routes  map[string]string
	Context ContextFunc
	// ResponseTimeout bounds how long a request waits for its function. Zero
	// waits until the function completes or the client goes away.
	ResponseTimeout time.Duration
	MaxBodyBytes    int64
	Metrics         *observability.Metrics
}

// Router serves provider webhook endpoints.
type Router struct {
	disp            Dispatcher
	appID           string
	prefix          string
	routes          map[string]string
	contextFn       ContextFunc
	responseTimeout time.Duration
	maxBodyBytes    int64
	metrics         *observability.Metrics
}

// NewRouter creates a Router.
func NewRouter(p RouterParams) (*Router, error) {
	if p.Dispatcher == nil {
		return nil, fmt.Errorf("%s - dispatcher is required", logPrefix)
	}
	if p.AppID == "" {
		return nil, fmt.Errorf("%s - application id is required", logPrefix)
	}
	r := &Router{
		disp:            p.Dispatcher,
		appID:           p.AppID,
		prefix:          normalizePrefix(p.Prefix),
		routes:          p.Routes,
		contextFn:       p.Context,
		responseTimeout: p.ResponseTimeout,
		maxBodyBytes:    p.MaxBodyBytes,
		metrics:         p.Metrics,
	}
	if p.Prefix == "" {
		r.prefix = DefaultPrefix
	}
	if len(r.routes) == 0 {
		r.routes = DefaultRoutes()
	}
	if r.contextFn == nil {
		r.contextFn = HeaderContext
	}
	if r.maxBodyBytes <= 0 {
		r.maxBodyBytes = DefaultMaxBodyBytes
	}
	return r, nil
}

// Path returns the endpoint path of provider.
func (rt *Router) Path(provider string) string {
	return rt.prefix + "/" + provider
}

// Register mounts one POST endpoint per provider on mux.
func (rt *Router) Register(mux *http.ServeMux) {
	for _, provider := range Providers(rt.routes) {
		path := rt.Path(provider)
		h := rt.Handler(provider, rt.routes[provider])
		mux.Handle("POST "+path, rt.metrics.InstrumentHandler(path, h))
		slog.Info(fmt.Sprintf("%s - POST %s -> %s", logPrefix, path, rt.routes[provider]))
	}
}

// Handler returns the endpoint that dispatches function for provider.
func (rt *Router) Handler(provider, function string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace.SpanFromContext(r.Context()).SetAttributes(
			observability.AttrProvider.String(provider),
			observability.AttrFunctionName.String(function),
		)

		body, status, err := rt.readBody(w, r)
		if err != nil {
			writeError(w, status, functions.CodeInvalidJSON, err.Error())
			return
		}

		auth, info, err := rt.contextFn(r)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - %s: context rejected: %v", logPrefix, provider, err))
			writeError(w, http.StatusUnauthorized, CodeInvalidSessionToken, err.Error())
			return
		}

		in := &dispatcher.Inbound{
			Body:    body,
			Query:   queryParams(r),
			Auth:    auth,
			Info:    info,
			Headers: r.Header,
		}

		pending, err := rt.disp.Dispatch(r.Context(), in, function, rt.appID)
		if err != nil {
			writeFunctionError(w, err)
			return
		}

		ctx := r.Context()
		if rt.responseTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, rt.responseTimeout)
			defer cancel()
		}
		env, err := pending.Wait(ctx)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			slog.Warn(fmt.Sprintf("%s - %s (%s) still running after %s", logPrefix, function, pending.RequestID, rt.responseTimeout))
			writeError(w, http.StatusGatewayTimeout, functions.CodeTimeout, "Cloud function timed out.")
		case errors.Is(err, context.Canceled):
			slog.Debug(fmt.Sprintf("%s - client went away before %s (%s) completed", logPrefix, function, pending.RequestID))
		case err != nil:
			writeFunctionError(w, err)
		default:
			writeJSON(w, http.StatusOK, env)
		}
	})
}

// readBody decodes the request body as a JSON object. An empty body is an
// empty object.
func (rt *Router) readBody(w http.ResponseWriter, r *http.Request) (map[string]any, int, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rt.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("Request body exceeds %d bytes.", tooLarge.Limit)
		}
		return nil, http.StatusBadRequest, errors.New("Could not read request body.")
	}

	parsed := gjson.ParseBytes(data)
	if len(data) == 0 || (parsed.Type == gjson.Null && parsed.Raw == "") {
		return map[string]any{}, 0, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, http.StatusBadRequest, errors.New("Invalid JSON.")
	}
	if !parsed.IsObject() {
		return nil, http.StatusBadRequest, errors.New("Webhook body must be a JSON object.")
	}

	body := make(map[string]any)
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, http.StatusBadRequest, errors.New("Invalid JSON.")
	}
	return body, 0, nil
}

// queryParams flattens the query string; repeated keys become lists.
func queryParams(r *http.Request) map[string]any {
	values := r.URL.Query()
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		out[k] = list
	}
	return out
}

// StatusFor maps a dispatch error to an HTTP status.
func StatusFor(err error) int {
	fe, ok := functions.AsError(err)
	if !ok {
		return http.StatusBadRequest
	}
	switch fe.Kind {
	case functions.KindUnknownFunction:
		return http.StatusNotFound
	case functions.KindLoggingFault, functions.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeFunctionError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if fe, ok := functions.AsError(err); ok {
		writeError(w, status, fe.Code, fe.Message)
		return
	}
	writeError(w, status, functions.CodeValidationError, err.Error())
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - encode response: %v", logPrefix, err))
		status = http.StatusInternalServerError
		data = []byte(`{"code":1,"message":"Failed to encode response."}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
