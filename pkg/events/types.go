// Package events defines the events emitted around cloud function invocation
// and route changes, and the publishers that deliver them.
package events

// FunctionInvokedEvent is emitted once per completed invocation.
type FunctionInvokedEvent struct {
	RequestID  string `json:"requestId"`
	App        string `json:"app"`
	Function   string `json:"function"`
	User       string `json:"user,omitempty"`
	Success    bool   `json:"success"`
	Code       int    `json:"code,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp"`
}

// RoutesChangedEvent is emitted when the stored function routes of an
// application change.
type RoutesChangedEvent struct {
	App       string   `json:"app"`
	Functions []string `json:"functions"`
	Source    string   `json:"source,omitempty"`
	Timestamp string   `json:"timestamp"`
}
