package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thejuampi/stomp-client-go/internal/fakebroker"
	"github.com/Thejuampi/stomp-client-go/stomp"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func startTestBroker(t *testing.T) *fakebroker.Broker {
	t.Helper()
	broker, err := fakebroker.Start(fakebroker.Config{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("start broker: %v", err)
	}
	t.Cleanup(func() { _ = broker.Close() })
	return broker
}

func getJSON(t *testing.T, mux http.Handler, path string) map[string]interface{} {
	t.Helper()
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("%s expected 200 got %d", path, rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s returned invalid json: %v", path, err)
	}
	return body
}

func TestAdminStatusAndStats(t *testing.T) {
	broker := startTestBroker(t)
	mux := newAdminMux(broker, time.Now())

	status := getJSON(t, mux, "/admin/status")
	if status["server"] != "fakestomp" || status["addr"] != broker.Addr() {
		t.Fatalf("unexpected status: %v", status)
	}

	broker.Publish("/queue/none", nil, []byte("dropped"))
	stats := getJSON(t, mux, "/admin/stats")
	if stats["messages_delivered"] != float64(0) || stats["connections_accepted"] != float64(0) {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestAdminReceivedListsCommands(t *testing.T) {
	broker := startTestBroker(t)
	mux := newAdminMux(broker, time.Now())

	session := stomp.NewSession(nil, stomp.WithLogger(discardLogger()))
	session.OnConnected(func(session *stomp.Session, _ *stomp.ConnectedEvent) {
		_ = session.Disconnect(stomp.NewHeaders(stomp.HeaderReceipt, "bye"))
	})
	if err := session.Dial(broker.URI(), nil); err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := session.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	_ = session.Close()

	received := getJSON(t, mux, "/admin/received")
	commands, _ := received["commands"].([]interface{})
	if len(commands) != 2 || commands[0] != "CONNECT" || commands[1] != "DISCONNECT" {
		t.Fatalf("unexpected received commands: %v", received)
	}
}

func TestAdminServerShutdown(t *testing.T) {
	broker := startTestBroker(t)
	admin := startAdminServer("127.0.0.1:0", broker, discardLogger())
	admin.shutdown(time.Second)
	select {
	case <-admin.done:
	default:
		t.Fatalf("admin server goroutine still running")
	}
}
