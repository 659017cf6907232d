package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/webhook-dispatcher/internal/config"
	"github.com/morezero/webhook-dispatcher/pkg/commsutil"
	"github.com/morezero/webhook-dispatcher/pkg/events"
	"github.com/morezero/webhook-dispatcher/pkg/functions"
)

const serverTestPrefix = "server:server_test"

func testConfig() *config.Config {
	return &config.Config{
		ApplicationID:          "chat",
		HealthCheckTimeout:     5 * time.Second,
		WebhookPathPrefix:      "/webhooks",
		FunctionRequestTimeout: 2 * time.Second,
		LogLevel:               "info",
		LogFormat:              "text",
		LogTruncateLength:      500,
		MetricsNamespace:       "server_test",
		ManifestFile:           filepath.Join(os.TempDir(), "webhook-dispatcher-missing.json"),
	}
}

func startCommsServer(t *testing.T) *comms.Conn {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", serverTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", serverTestPrefix)
	}
	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", serverTestPrefix, err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func newTestServer(t *testing.T, p Params) *Server {
	t.Helper()
	s, err := New(context.Background(), p)
	if err != nil {
		t.Fatalf("%s - New failed: %v", serverTestPrefix, err)
	}
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s - invalid JSON response %q: %v", serverTestPrefix, rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestNew_RequiresValidConfig(t *testing.T) {
	if _, err := New(context.Background(), Params{}); err == nil {
		t.Error("server:server_test - expected error without config")
	}
	cfg := testConfig()
	cfg.ApplicationID = ""
	if _, err := New(context.Background(), Params{Config: cfg}); err == nil {
		t.Error("server:server_test - expected error without APPLICATION_ID")
	}
}

func TestServer_LocalFunction(t *testing.T) {
	catalog := functions.NewCatalog()
	if err := catalog.Define("chat", "sbWebhook", func(req *functions.Request, res functions.Response) {
		category, _ := req.Params["category"].AsString()
		res.Success(map[string]any{"category": category})
	}); err != nil {
		t.Fatalf("%s - Define failed: %v", serverTestPrefix, err)
	}
	s := newTestServer(t, Params{Config: testConfig(), Catalog: catalog})

	rec, out := do(t, s.Handler(), http.MethodPost, "/webhooks/sendbird", `{"category":"open_channel:message_send"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - status = %d, body = %s", serverTestPrefix, rec.Code, rec.Body.String())
	}
	result := out["response"].(map[string]any)["result"].(map[string]any)
	if result["category"] != "open_channel:message_send" {
		t.Errorf("%s - result = %v", serverTestPrefix, result)
	}
}

func TestServer_UnknownFunction(t *testing.T) {
	s := newTestServer(t, Params{Config: testConfig()})

	rec, out := do(t, s.Handler(), http.MethodPost, "/webhooks/sendbird", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("%s - status = %d, want 404", serverTestPrefix, rec.Code)
	}
	if msg, _ := out["message"].(string); !strings.Contains(msg, `"sbWebhook"`) {
		t.Errorf("%s - message = %q", serverTestPrefix, msg)
	}
}

func TestServer_OperationalEndpoints(t *testing.T) {
	catalog := functions.NewCatalog()
	catalog.Define("chat", "sbWebhook", func(_ *functions.Request, res functions.Response) { res.Success(nil) })
	s := newTestServer(t, Params{Config: testConfig(), Catalog: catalog})
	h := s.Handler()

	rec, out := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || out["status"] != "healthy" {
		t.Errorf("%s - /health = %d %v", serverTestPrefix, rec.Code, out)
	}

	rec, out = do(t, h, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusOK || out["status"] != "ready" {
		t.Errorf("%s - /ready = %d %v", serverTestPrefix, rec.Code, out)
	}

	rec, out = do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - / = %d", serverTestPrefix, rec.Code)
	}
	if out["application"] != "chat" {
		t.Errorf("%s - application = %v", serverTestPrefix, out["application"])
	}
	endpoints := out["endpoints"].(map[string]any)
	if endpoints["/webhooks/sendbird"] != "sbWebhook" {
		t.Errorf("%s - endpoints = %v", serverTestPrefix, endpoints)
	}

	do(t, h, http.MethodPost, "/webhooks/sendbird", `{}`)
	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "server_test_http_requests_total") {
		t.Errorf("%s - /metrics = %d", serverTestPrefix, rec.Code)
	}

	rec, _ = do(t, h, http.MethodGet, "/nothing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("%s - /nothing = %d, want 404", serverTestPrefix, rec.Code)
	}
}

func TestServer_RemoteFunctionFromManifest(t *testing.T) {
	nc := startCommsServer(t)

	manifest := `{
  "name": "test",
  "applications": {
    "chat": {
      "logLevel": "debug",
      "functions": {
        "sbWebhook": {"version": "1.0.0", "validator": {"requiredParams": ["category"]}}
      }
    }
  }
}`
	path := filepath.Join(t.TempDir(), "functions.json")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("%s - write manifest: %v", serverTestPrefix, err)
	}

	sub, err := nc.Subscribe(commsutil.BuildFunctionSubject("chat", "sbWebhook", 1), func(msg *comms.Msg) {
		var req commsutil.FunctionRequest
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			return
		}
		data, _ := commsutil.EncodePayload(commsutil.FunctionReply{
			ID: req.ID, Ok: true, Result: map[string]any{"handled": req.Params["category"], "fn": req.Function},
		})
		msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("%s - subscribe: %v", serverTestPrefix, err)
	}
	defer sub.Unsubscribe()

	cfg := testConfig()
	cfg.ManifestFile = path
	s := newTestServer(t, Params{Config: cfg, Conn: nc})

	rec, out := do(t, s.Handler(), http.MethodPost, "/webhooks/sendbird", `{"category":"group_channel:join"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - status = %d, body = %s", serverTestPrefix, rec.Code, rec.Body.String())
	}
	result := out["response"].(map[string]any)["result"].(map[string]any)
	if result["handled"] != "group_channel:join" || result["fn"] != "sbWebhook" {
		t.Errorf("%s - result = %v", serverTestPrefix, result)
	}

	rec, out = do(t, s.Handler(), http.MethodPost, "/webhooks/sendbird", `{}`)
	if rec.Code != http.StatusBadRequest || out["code"] != float64(functions.CodeValidationError) {
		t.Errorf("%s - missing param = %d %v", serverTestPrefix, rec.Code, out)
	}

	_, out = do(t, s.Handler(), http.MethodGet, "/health", "")
	checks := out["checks"].(map[string]any)
	if checks["comms"] != true {
		t.Errorf("%s - checks = %v", serverTestPrefix, checks)
	}

	// Events for other applications are ignored; the catalog keeps its routes.
	s.onRoutesChanged(&events.RoutesChangedEvent{App: "other"})
	if names := s.Catalog().Names("chat"); len(names) != 1 || names[0] != "sbWebhook" {
		t.Errorf("%s - names after foreign event = %v", serverTestPrefix, names)
	}
}

func TestSetupLogging_JSON(t *testing.T) {
	var buf bytes.Buffer
	SetupLogging(&config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	defer SetupLogging(&config.Config{LogLevel: "info"}, os.Stderr)

	slog.Info("info-line")
	slog.Warn("warn-line")
	out := buf.String()
	if strings.Contains(out, "info-line") {
		t.Errorf("%s - info line logged at warn level: %s", serverTestPrefix, out)
	}
	if !strings.Contains(out, `"msg":"warn-line"`) {
		t.Errorf("%s - expected JSON warn line, got %s", serverTestPrefix, out)
	}
}
