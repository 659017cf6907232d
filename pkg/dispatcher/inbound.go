// Package dispatcher turns an inbound webhook into a cloud function
// invocation and reports its outcome.
package dispatcher

import (
	"net/http"

	"github.com/morezero/webhook-dispatcher/pkg/functions"
)

// Auth is the authentication state resolved upstream of the dispatcher.
type Auth struct {
	IsMaster bool
	User     *functions.User
}

// Info carries client metadata resolved upstream of the dispatcher.
type Info struct {
	InstallationID string
}

// Inbound is one decoded webhook request.
type Inbound struct {
	Body    map[string]any
	Query   map[string]any
	Auth    *Auth
	Info    *Info
	Headers http.Header
}

// ResultBody holds the encoded function result.
type ResultBody struct {
	Result any `json:"result"`
}

// ResultEnvelope is the success payload returned to the webhook caller.
type ResultEnvelope struct {
	Response ResultBody `json:"response"`
}
