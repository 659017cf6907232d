package commsutil

import (
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/webhook-dispatcher/pkg/functions"
	"github.com/morezero/webhook-dispatcher/pkg/wire"
)

const remoteTestPrefix = "commsutil:remote_test"

func startTestServer(t *testing.T) (*comms.Conn, func()) {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", remoteTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", remoteTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", remoteTestPrefix, err)
	}

	return nc, func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}
}

type outcome struct {
	ok      bool
	result  any
	code    int
	message string
}

type captureResponse struct{ out outcome }

func (c *captureResponse) Success(result any) { c.out = outcome{ok: true, result: result} }
func (c *captureResponse) Error(message string) {
	c.out = outcome{code: functions.CodeScriptFailed, message: message}
}
func (c *captureResponse) ErrorWithCode(code int, message string) {
	c.out = outcome{code: code, message: message}
}

func TestRemoteFunction_Success(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	seen := make(chan FunctionRequest, 1)
	sub, err := nc.Subscribe("fn.chat.sbWebhook.v1", func(msg *comms.Msg) {
		var req FunctionRequest
		if err := DecodePayload(msg.Data, &req); err != nil {
			t.Errorf("%s - bad request: %v", remoteTestPrefix, err)
			return
		}
		seen <- req
		data, _ := EncodePayload(FunctionReply{ID: req.ID, Ok: true, Result: map[string]any{"handled": true}})
		_ = msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("%s - subscribe failed: %v", remoteTestPrefix, err)
	}
	defer sub.Unsubscribe()

	fn := RemoteFunction(RemoteParams{Conn: nc, Subject: "fn.chat.sbWebhook.v1", App: "chat", Function: "sbWebhook", Timeout: 2 * time.Second})
	res := &captureResponse{}
	fn(&functions.Request{
		Params: map[string]wire.Value{
			"category": wire.String("group_channel:message_send"),
			"sentAt":   wire.Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		},
		Master:         true,
		User:           &functions.User{ID: "u1"},
		InstallationID: "inst-1",
	}, res)

	if !res.out.ok {
		t.Fatalf("%s - expected success, got %+v", remoteTestPrefix, res.out)
	}
	result, _ := res.out.result.(map[string]any)
	if result["handled"] != true {
		t.Errorf("%s - result = %v", remoteTestPrefix, res.out.result)
	}

	req := <-seen
	if req.Type != RequestTypeInvoke || req.Function != "sbWebhook" || req.App != "chat" {
		t.Errorf("%s - unexpected envelope %+v", remoteTestPrefix, req)
	}
	if !req.Master || req.InstallationID != "inst-1" {
		t.Errorf("%s - auth fields not forwarded: %+v", remoteTestPrefix, req)
	}
	sentAt, _ := req.Params["sentAt"].(map[string]any)
	if sentAt["__type"] != "Date" || sentAt["iso"] != "2024-01-01T00:00:00.000Z" {
		t.Errorf("%s - date param not re-tagged: %v", remoteTestPrefix, req.Params["sentAt"])
	}
}

func TestRemoteFunction_ErrorReply(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	sub, err := nc.Subscribe("fn.chat.failing.v1", func(msg *comms.Msg) {
		data, _ := EncodePayload(FunctionReply{Ok: false, Error: &ErrorDetail{Code: 209, Message: "invalid session"}})
		_ = msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("%s - subscribe failed: %v", remoteTestPrefix, err)
	}
	defer sub.Unsubscribe()

	fn := RemoteFunction(RemoteParams{Conn: nc, Subject: "fn.chat.failing.v1", Function: "failing", Timeout: 2 * time.Second})
	res := &captureResponse{}
	fn(&functions.Request{}, res)

	if res.out.ok || res.out.code != 209 || res.out.message != "invalid session" {
		t.Errorf("%s - unexpected outcome %+v", remoteTestPrefix, res.out)
	}
}

func TestRemoteFunction_NoResponder(t *testing.T) {
	nc, cleanup := startTestServer(t)
	defer cleanup()

	fn := RemoteFunction(RemoteParams{Conn: nc, Subject: "fn.chat.nobody.v1", Function: "nobody", Timeout: time.Second})
	res := &captureResponse{}
	fn(&functions.Request{}, res)

	if res.out.ok {
		t.Fatalf("%s - expected failure without a responder", remoteTestPrefix)
	}
	if res.out.message == "" {
		t.Errorf("%s - expected a message", remoteTestPrefix)
	}
}
