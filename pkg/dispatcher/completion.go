package dispatcher

import (
	"strconv"
	"sync"

	"github.com/morezero/webhook-dispatcher/pkg/functions"
	"github.com/morezero/webhook-dispatcher/pkg/wire"
)

// completionHandle is the functions.Response bound to one invocation. Only the
// first call has any effect.
type completionHandle struct {
	once    sync.Once
	resolve func(*ResultEnvelope)
	reject  func(*functions.Error)
}

func newCompletionHandle(resolve func(*ResultEnvelope), reject func(*functions.Error)) *completionHandle {
	return &completionHandle{resolve: resolve, reject: reject}
}

func (h *completionHandle) Success(result any) {
	h.once.Do(func() {
		h.resolve(&ResultEnvelope{Response: ResultBody{Result: wire.Encode(result)}})
	})
}

func (h *completionHandle) Error(message string) {
	h.once.Do(func() {
		h.reject(functions.ScriptFailed(message))
	})
}

// ErrorWithCode with an empty message behaves like Error(code).
func (h *completionHandle) ErrorWithCode(code int, message string) {
	if message == "" {
		h.Error(strconv.Itoa(code))
		return
	}
	h.once.Do(func() {
		h.reject(functions.NewError(code, message))
	})
}

// fail rejects unless the invocation already completed.
func (h *completionHandle) fail(err *functions.Error) {
	h.once.Do(func() { h.reject(err) })
}
