// Package stomp implements a single-threaded STOMP 1.0, 1.1 and 1.2 client
// engine.
//
// The primary lifecycle is:
//   - construct a Session with NewSession
//   - register callbacks with SetCallback or the typed On* helpers
//   - Connect over an open Transport, or Dial a broker URI
//   - call Run; it returns once the session is disconnected or failed
//   - Subscribe, Send, Ack and friends from inside callbacks
//
// The engine starts no goroutines of its own (the WebSocket transport runs one
// reader). Run is the only blocking call: it waits on the transport up to the
// next heart-beat or user tick deadline and invokes callbacks in wire order on
// the calling goroutine. A Session is not safe for concurrent use.
//
// Errors are typed *Error values created with NewError; use errors.Is with the
// Err* sentinels or KindOf. ERROR frames from the broker are delivered to the
// error callback rather than returned.
//
// Integration tests against a real broker are gated on STOMP_TEST_URI,
// STOMP_TEST_LOGIN and STOMP_TEST_PASSCODE.
package stomp
