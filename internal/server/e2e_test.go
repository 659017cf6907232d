package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/webhook-dispatcher/pkg/commsutil"
	"github.com/morezero/webhook-dispatcher/pkg/events"
)

const e2eManifest = `{
  "name": "e2e",
  "applications": {
    "chat": {
      "functions": {
        "sbWebhook": {"version": "1.2.0", "timeoutMs": 500},
        "refuses": {"subject": "fn.chat.refuses"},
        "absent": {"subject": "fn.chat.nobody.listens", "timeoutMs": 200}
      }
    }
  }
}`

// setupE2E starts a server whose routes forward to responders on an
// in-process COMMS server.
func setupE2E(t *testing.T, routes string) (*Server, *comms.Conn) {
	t.Helper()
	nc := startCommsServer(t)

	path := filepath.Join(t.TempDir(), "functions.json")
	if err := os.WriteFile(path, []byte(e2eManifest), 0o644); err != nil {
		t.Fatalf("%s - write manifest: %v", serverTestPrefix, err)
	}

	echo, err := nc.Subscribe(commsutil.BuildFunctionSubject("chat", "sbWebhook", 1), func(msg *comms.Msg) {
		var req commsutil.FunctionRequest
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			return
		}
		data, _ := commsutil.EncodePayload(commsutil.FunctionReply{ID: req.ID, Ok: true, Result: req.Params})
		msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("%s - subscribe: %v", serverTestPrefix, err)
	}
	refuse, err := nc.Subscribe("fn.chat.refuses", func(msg *comms.Msg) {
		data, _ := commsutil.EncodePayload(commsutil.FunctionReply{
			Ok: false, Error: &commsutil.ErrorDetail{Code: 209, Message: "invalid session token"},
		})
		msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("%s - subscribe: %v", serverTestPrefix, err)
	}
	t.Cleanup(func() {
		echo.Unsubscribe()
		refuse.Unsubscribe()
	})

	cfg := testConfig()
	cfg.ManifestFile = path
	cfg.WebhookRoutes = routes
	return newTestServer(t, Params{Config: cfg, Conn: nc}), nc
}

func TestE2E_InvocationEventPublished(t *testing.T) {
	s, nc := setupE2E(t, "")

	received := make(chan *events.FunctionInvokedEvent, 1)
	sub, err := nc.Subscribe(commsutil.BuildInvokedSubject("chat", "sbWebhook"), func(msg *comms.Msg) {
		var evt events.FunctionInvokedEvent
		if commsutil.DecodePayload(msg.Data, &evt) == nil {
			received <- &evt
		}
	})
	if err != nil {
		t.Fatalf("%s - subscribe: %v", serverTestPrefix, err)
	}
	defer sub.Unsubscribe()
	nc.Flush()

	rec, _ := do(t, s.Handler(), http.MethodPost, "/webhooks/sendbird", `{"category":"group_channel:create"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - status = %d, body = %s", serverTestPrefix, rec.Code, rec.Body.String())
	}

	select {
	case evt := <-received:
		if !evt.Success || evt.App != "chat" || evt.Function != "sbWebhook" || evt.RequestID == "" {
			t.Errorf("%s - event = %+v", serverTestPrefix, evt)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - no invocation event received", serverTestPrefix)
	}
}

func TestE2E_RemoteErrorReply(t *testing.T) {
	s, _ := setupE2E(t, "sendbird:sbWebhook,refuses:refuses,absent:absent")

	rec, out := do(t, s.Handler(), http.MethodPost, "/webhooks/refuses", `{}`)
	if rec.Code != http.StatusBadRequest || out["code"] != float64(209) || out["message"] != "invalid session token" {
		t.Errorf("%s - refuses = %d %v", serverTestPrefix, rec.Code, out)
	}

	rec, out = do(t, s.Handler(), http.MethodPost, "/webhooks/absent", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("%s - absent status = %d", serverTestPrefix, rec.Code)
	}
	if msg, _ := out["message"].(string); !strings.Contains(msg, "absent") {
		t.Errorf("%s - absent message = %q", serverTestPrefix, msg)
	}
}

func TestE2E_VersionedRoute(t *testing.T) {
	s, _ := setupE2E(t, "sendbird:sbWebhook@^1.2.0")

	rec, _ := do(t, s.Handler(), http.MethodPost, "/webhooks/sendbird", `{}`)
	if rec.Code != http.StatusOK {
		t.Errorf("%s - status = %d, body = %s", serverTestPrefix, rec.Code, rec.Body.String())
	}
}

func TestE2E_ConcurrentRequests(t *testing.T) {
	s, _ := setupE2E(t, "")
	h := s.Handler()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("msg-%d", i)
			rec, out := do(t, h, http.MethodPost, "/webhooks/sendbird?n="+want, fmt.Sprintf(`{"id":%q}`, want))
			if rec.Code != http.StatusOK {
				errs <- fmt.Sprintf("request %d: status %d", i, rec.Code)
				return
			}
			result, _ := out["response"].(map[string]any)["result"].(map[string]any)
			if result["id"] != want || result["n"] != want {
				errs <- fmt.Sprintf("request %d: result %v", i, result)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("%s - %s", serverTestPrefix, e)
	}
}
