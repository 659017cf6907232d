package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectInvoked       = "functions.invoked"
	SubjectRoutesChanged = "functions.routes.changed"
)

// BuildInvokedSubject builds the granular invocation event subject.
func BuildInvokedSubject(app, function string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectInvoked, app, function)
}

// BuildFunctionSubject builds the default COMMS subject a remote function listens on.
func BuildFunctionSubject(app, name string, major int) string {
	safe := strings.ReplaceAll(name, ".", "_")
	return fmt.Sprintf("fn.%s.%s.v%d", app, safe, major)
}
