// Package functions defines the cloud function contract: the request handed to
// a function, the completion surface it reports through, and the registry the
// dispatcher looks functions up in.
package functions

import (
	"log/slog"
	"net/http"

	"github.com/morezero/webhook-dispatcher/pkg/wire"
)

// User is the authenticated user resolved upstream of the dispatcher.
type User struct {
	ID       string         `json:"objectId"`
	Username string         `json:"username,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Request is the normalized invocation context passed to a cloud function.
// Functions must treat it as read-only.
type Request struct {
	Params         map[string]wire.Value
	Master         bool
	User           *User
	InstallationID string
	Log            *slog.Logger
	Headers        http.Header
	FunctionName   string
}

// Response is the completion surface of one invocation. Exactly one of its
// methods must eventually be called; only the first call has any effect.
type Response interface {
	// Success completes the invocation with result.
	Success(result any)
	// Error fails the invocation with the script-failed code.
	Error(message string)
	// ErrorWithCode fails the invocation with an explicit code.
	ErrorWithCode(code int, message string)
}

// Function is a cloud function. It reports its outcome through res, possibly
// from another goroutine and arbitrarily later.
type Function func(req *Request, res Response)

// Validator runs before a function. Returning false rejects the call with a
// validation error; returning an error rejects it with that error unchanged.
type Validator func(req *Request) (bool, error)

// Registry resolves functions and validators for an application.
// Implementations must be safe for concurrent reads.
type Registry interface {
	GetFunction(name, appID string) (Function, bool)
	GetValidator(name, appID string) (Validator, bool)
}
