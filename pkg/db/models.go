package db

import "time"

// Application is a row in the applications table.
type Application struct {
	ID       string    `json:"id"`
	Name     *string   `json:"name,omitempty"`
	LogLevel string    `json:"log_level"`
	Status   string    `json:"status"`
	Revision int       `json:"revision"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Config   []byte    `json:"config,omitempty"`
}

// FunctionRoute is a row in the function_routes table: one version of a
// remote function and the COMMS subject it is served on.
type FunctionRoute struct {
	ID          string    `json:"id"`
	AppID       string    `json:"app_id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Subject     string    `json:"subject"`
	Status      string    `json:"status"`
	TimeoutMs   int       `json:"timeout_ms"`
	Validator   []byte    `json:"validator,omitempty"`
	Description *string   `json:"description,omitempty"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}
