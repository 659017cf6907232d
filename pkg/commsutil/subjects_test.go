package commsutil

import "testing"

func TestBuildInvokedSubject(t *testing.T) {
	tests := []struct {
		name     string
		app      string
		function string
		want     string
	}{
		{"basic", "chat", "sbWebhook", "functions.invoked.chat.sbWebhook"},
		{"dotted", "chat", "orders.create", "functions.invoked.chat.orders.create"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildInvokedSubject(tt.app, tt.function)
			if got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildInvokedSubject(%q, %q) = %q, want %q", tt.app, tt.function, got, tt.want)
			}
		})
	}
}

func TestBuildFunctionSubject(t *testing.T) {
	tests := []struct {
		name  string
		app   string
		fn    string
		major int
		want  string
	}{
		{"simple", "chat", "sbWebhook", 0, "fn.chat.sbWebhook.v0"},
		{"dotted name", "chat", "orders.create", 2, "fn.chat.orders_create.v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildFunctionSubject(tt.app, tt.fn, tt.major)
			if got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildFunctionSubject(%q, %q, %d) = %q, want %q", tt.app, tt.fn, tt.major, got, tt.want)
			}
		})
	}
}
