package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/morezero/webhook-dispatcher/pkg/bootstrap"
)

const seedTestPrefix = "db:seed_test"

func TestResolveSeedPath(t *testing.T) {
	baseDir := t.TempDir()

	inside := filepath.Join(baseDir, "config", "functions.json")
	got, err := ResolveSeedPath(inside, baseDir)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", seedTestPrefix, err)
	}
	if got != inside {
		t.Errorf("%s - ResolveSeedPath = %q, want %q", seedTestPrefix, got, inside)
	}

	outside := filepath.Clean(filepath.Join(baseDir, "..", "outside.json"))
	if _, err := ResolveSeedPath(outside, baseDir); err == nil {
		t.Fatalf("%s - expected error for path outside baseDir", seedTestPrefix)
	}

	if _, err := ResolveSeedPath("functions.json", ""); err != nil {
		t.Errorf("%s - unexpected error without baseDir: %v", seedTestPrefix, err)
	}
}

func TestSeedManifest_EmptyManifest(t *testing.T) {
	// no pool needed when there is nothing to write
	res, err := SeedManifest(context.Background(), nil, bootstrap.DefaultManifest())
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", seedTestPrefix, err)
	}
	if len(res) != 0 {
		t.Errorf("%s - expected empty result, got %v", seedTestPrefix, res)
	}
}

func TestRoutesToManifest(t *testing.T) {
	name := "Chat"
	desc := "moderation hook"
	app := &Application{ID: "chat", Name: &name, LogLevel: "debug"}
	routes := []FunctionRoute{
		{AppID: "chat", Name: "moderate", Version: "1.0.0", Subject: "fn.chat.moderate.v1", Status: "deprecated"},
		{AppID: "chat", Name: "moderate", Version: "2.0.0", Subject: "fn.chat.moderate.v2", Status: "active",
			TimeoutMs: 500, Description: &desc, Validator: []byte(`{"requireMaster":true}`)},
		{AppID: "chat", Name: "broken", Version: "1.0.0", Subject: "fn.chat.broken.v1", Validator: []byte(`{`)},
	}

	m := RoutesToManifest(app, routes)
	if m.Name != "Chat" || m.LogLevel != "debug" {
		t.Errorf("%s - application fields = %+v", seedTestPrefix, m)
	}
	if len(m.Functions) != 3 {
		t.Fatalf("%s - expected 3 functions, got %d", seedTestPrefix, len(m.Functions))
	}

	v2, ok := m.Functions["moderate@2.0.0"]
	if !ok {
		t.Fatalf("%s - moderate@2.0.0 missing: %v", seedTestPrefix, m.FunctionNames())
	}
	if v2.Validator == nil || !v2.Validator.RequireMaster {
		t.Errorf("%s - validator not decoded: %+v", seedTestPrefix, v2.Validator)
	}
	if v2.TimeoutMs != 500 || v2.Description != desc {
		t.Errorf("%s - moderate@2.0.0 = %+v", seedTestPrefix, v2)
	}
	if m.Functions["broken@1.0.0"].Validator != nil {
		t.Errorf("%s - malformed validator should be dropped", seedTestPrefix)
	}
}
