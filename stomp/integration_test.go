package stomp_test

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Thejuampi/stomp-client-go/internal/fakebroker"
	"github.com/Thejuampi/stomp-client-go/stomp"
)

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// roundTrip subscribes, sends one message to itself and disconnects with a
// receipt once the message is back.
func roundTrip(t *testing.T, uri string, headers stomp.Headers) {
	t.Helper()
	destination := "/queue/stomp-client-go-" + uuid.NewString()
	body := []byte("ping " + uuid.NewString())

	session := stomp.NewSession("round-trip", stomp.WithLogger(discardLogger()))
	var received []byte
	var sessionCtx any
	deadline := time.Now().Add(10 * time.Second)

	session.OnConnected(func(session *stomp.Session, _ *stomp.ConnectedEvent) {
		if _, err := session.Subscribe(stomp.NewHeaders(
			stomp.HeaderDestination, destination,
			stomp.HeaderReceipt, "subscribed",
		)); err != nil {
			t.Errorf("subscribe: %v", err)
		}
	})
	session.OnReceipt(func(session *stomp.Session, event *stomp.ReceiptEvent) {
		if event.ReceiptID() == "subscribed" {
			_ = session.Send(stomp.NewHeaders(stomp.HeaderDestination, destination, stomp.HeaderContentType, "text/plain"), body)
		}
	})
	session.SetCallback(stomp.CallbackMessage, func(session *stomp.Session, event stomp.Event, ctx any) {
		sessionCtx = ctx
		received = event.(*stomp.MessageEvent).Body
		_ = session.Disconnect(stomp.NewHeaders(stomp.HeaderReceipt, "disconnected"))
	})
	session.OnUser(func(session *stomp.Session, _ *stomp.UserEvent) {
		if time.Now().After(deadline) {
			t.Errorf("no round trip before deadline")
			_ = session.Close()
		}
	})

	if err := session.Dial(uri, headers); err != nil {
		t.Fatalf("dial %s: %v", uri, err)
	}
	defer session.Close()
	if err := session.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if string(received) != string(body) {
		t.Fatalf("expected %q back, got %q", body, received)
	}
	if sessionCtx != "round-trip" {
		t.Fatalf("callback context not passed through: %v", sessionCtx)
	}
	if session.State() != stomp.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", session.State())
	}
}

func TestRoundTripAgainstFakeBroker(t *testing.T) {
	for _, versions := range [][]stomp.Version{{stomp.V10}, {stomp.V11}, {stomp.V12}} {
		t.Run(versions[0].String(), func(t *testing.T) {
			broker, err := fakebroker.Start(fakebroker.Config{
				Versions:         versions,
				HeartBeatSend:    200 * time.Millisecond,
				HeartBeatReceive: 200 * time.Millisecond,
				Logger:           discardLogger(),
			})
			if err != nil {
				t.Fatalf("start broker: %v", err)
			}
			defer broker.Close()

			roundTrip(t, broker.URI(), stomp.NewHeaders(stomp.HeaderHeartBeat, "200,200"))
		})
	}
}

// TestRoundTripAgainstBroker runs against a real broker when STOMP_TEST_URI
// is set, e.g. tcp://localhost:61613.
func TestRoundTripAgainstBroker(t *testing.T) {
	uri := os.Getenv("STOMP_TEST_URI")
	if uri == "" {
		t.Skip("STOMP_TEST_URI not set")
	}
	headers := stomp.NewHeaders(stomp.HeaderHeartBeat, "1000,1000")
	if login := os.Getenv("STOMP_TEST_LOGIN"); login != "" {
		headers.Set(stomp.HeaderLogin, login)
		headers.Set(stomp.HeaderPasscode, os.Getenv("STOMP_TEST_PASSCODE"))
	}
	roundTrip(t, uri, headers)
}
