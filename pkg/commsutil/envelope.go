package commsutil

// FunctionRequest is the JSON envelope sent to a remote function.
type FunctionRequest struct {
	ID             string              `json:"id"`
	Type           string              `json:"type"`
	App            string              `json:"app"`
	Function       string              `json:"function"`
	Params         map[string]any      `json:"params"`
	Master         bool                `json:"master"`
	User           any                 `json:"user,omitempty"`
	InstallationID string              `json:"installationId,omitempty"`
	Headers        map[string][]string `json:"headers,omitempty"`
	TimeoutMs      int                 `json:"timeoutMs,omitempty"`
}

// FunctionReply is the JSON envelope a remote function answers with.
type FunctionReply struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result any          `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds a remote function's failure.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RequestTypeInvoke is the Type of a FunctionRequest.
const RequestTypeInvoke = "invoke"
