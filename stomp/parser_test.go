package stomp

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func mustEncode(t *testing.T, frame *Frame, version Version) []byte {
	t.Helper()
	data, err := Encode(frame, version)
	if err != nil {
		t.Fatalf("encode %s: %v", frame.Command, err)
	}
	return data
}

func TestParserHeaderRoundTrip(t *testing.T) {
	headers := NewHeaders(
		HeaderDestination, "/queue/a:b",
		HeaderSubscription, "sub\\0",
		HeaderMessageID, "line1\nline2\r",
		"key:with:colons", "value",
		HeaderDestination, "duplicate",
	)
	frame := &Frame{Command: CommandMessage, Headers: headers, Body: []byte("payload")}

	for _, version := range []Version{V11, V12} {
		parser := NewParser(version, Limits{})
		frames, pulses, err := parser.Feed(mustEncode(t, frame, version))
		if err != nil || pulses != 0 || len(frames) != 1 {
			t.Fatalf("%s: frames=%d pulses=%d err=%v", version, len(frames), pulses, err)
		}
		got := frames[0]
		got.Headers.Del(HeaderContentLength)
		if !reflect.DeepEqual(got.Headers, headers) {
			t.Fatalf("%s: header mismatch\n got %v\nwant %v", version, got.Headers, headers)
		}
		if string(got.Body) != "payload" {
			t.Fatalf("%s: body mismatch %q", version, got.Body)
		}
	}
}

func TestParserChunkSplits(t *testing.T) {
	frame := &Frame{
		Command: CommandMessage,
		Headers: NewHeaders(HeaderDestination, "/q", HeaderMessageID, "m\\1", HeaderSubscription, "0"),
		Body:    []byte("body\x00with nul"),
	}
	wire := mustEncode(t, frame, V12)

	reference := NewParser(V12, Limits{})
	expected, _, err := reference.Feed(wire)
	if err != nil || len(expected) != 1 {
		t.Fatalf("reference parse failed: %v", err)
	}

	for chunkSize := 1; chunkSize <= len(wire); chunkSize++ {
		parser := NewParser(V12, Limits{})
		var frames []*Frame
		for offset := 0; offset < len(wire); offset += chunkSize {
			end := min(offset+chunkSize, len(wire))
			parsed, _, err := parser.Feed(wire[offset:end])
			if err != nil {
				t.Fatalf("chunk %d: %v", chunkSize, err)
			}
			frames = append(frames, parsed...)
		}
		if len(frames) != 1 {
			t.Fatalf("chunk %d: expected one frame, got %d", chunkSize, len(frames))
		}
		if !reflect.DeepEqual(frames[0], expected[0]) {
			t.Fatalf("chunk %d: frame differs", chunkSize)
		}
		if parser.Buffered() != 0 {
			t.Fatalf("chunk %d: %d bytes left buffered", chunkSize, parser.Buffered())
		}
	}
}

func TestParserPulsesAndMultipleFrames(t *testing.T) {
	parser := NewParser(V12, Limits{})
	input := "\n\r\nRECEIPT\nreceipt-id:1\n\n\x00\nMESSAGE\r\ndestination:/q\r\n\r\nhi\x00\n\n"
	frames, pulses, err := parser.Feed([]byte(input))
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if pulses != 5 {
		t.Fatalf("expected 5 pulses, got %d", pulses)
	}
	if len(frames) != 2 || frames[0].Command != CommandReceipt || frames[1].Command != CommandMessage {
		t.Fatalf("unexpected frames %v", frames)
	}
	if string(frames[1].Body) != "hi" || frames[1].Headers.Get(HeaderDestination) != "/q" {
		t.Fatalf("CRLF frame decoded incorrectly: %+v", frames[1])
	}
}

func TestParserLoneCarriageReturnWaits(t *testing.T) {
	parser := NewParser(V12, Limits{})
	_, pulses, err := parser.Feed([]byte("\r"))
	if err != nil || pulses != 0 || parser.Buffered() != 1 {
		t.Fatalf("lone CR: pulses=%d buffered=%d err=%v", pulses, parser.Buffered(), err)
	}
	_, pulses, err = parser.Feed([]byte("\n"))
	if err != nil || pulses != 1 || parser.Buffered() != 0 {
		t.Fatalf("CRLF completion: pulses=%d buffered=%d err=%v", pulses, parser.Buffered(), err)
	}
}

func TestParserStopsAfterConnected(t *testing.T) {
	parser := NewParser(V10, Limits{})
	input := "CONNECTED\nversion:1.2\n\n\x00MESSAGE\ndestination:a\\cb\n\n\x00"
	frames, _, err := parser.Feed([]byte(input))
	if err != nil || len(frames) != 1 || frames[0].Command != CommandConnected {
		t.Fatalf("expected only CONNECTED, got %v %v", frames, err)
	}
	parser.SetVersion(V12)
	frames, _, err = parser.Feed(nil)
	if err != nil || len(frames) != 1 {
		t.Fatalf("expected buffered MESSAGE, got %v %v", frames, err)
	}
	if got := frames[0].Headers.Get(HeaderDestination); got != "a:b" {
		t.Fatalf("MESSAGE not decoded with the negotiated version: %q", got)
	}
}

func TestParserStopsAfterConnect(t *testing.T) {
	for _, command := range []string{"CONNECT", "STOMP"} {
		parser := NewParser(V10, Limits{})
		input := command + "\naccept-version:1.2\n\n\x00SEND\ndestination:a\\cb\n\n\x00"
		frames, _, err := parser.Feed([]byte(input))
		if err != nil || len(frames) != 1 || string(frames[0].Command) != command {
			t.Fatalf("%s: expected only the handshake frame, got %v %v", command, frames, err)
		}
		parser.SetVersion(V12)
		frames, _, err = parser.Feed(nil)
		if err != nil || len(frames) != 1 || frames[0].Headers.Get(HeaderDestination) != "a:b" {
			t.Fatalf("%s: SEND not decoded with the negotiated version: %v %v", command, frames, err)
		}
	}
}

func TestParserVersion10DoesNotUnescape(t *testing.T) {
	parser := NewParser(V10, Limits{})
	frames, _, err := parser.Feed([]byte("MESSAGE\ndestination:a\\cb\n\n\x00"))
	if err != nil || len(frames) != 1 {
		t.Fatalf("feed failed: %v", err)
	}
	if got := frames[0].Headers.Get(HeaderDestination); got != "a\\cb" {
		t.Fatalf("1.0 must keep raw header bytes, got %q", got)
	}
	if parser.Version() != V10 {
		t.Fatalf("unexpected version %s", parser.Version())
	}
}

func TestParserViolations(t *testing.T) {
	cases := map[string]string{
		"unknown command":      "BOGUS\n\n\x00",
		"header without colon": "MESSAGE\nnocolon\n\n\x00",
		"empty header key":     "MESSAGE\n:value\n\n\x00",
		"body overrun":         "MESSAGE\ncontent-length:2\n\nabc\x00",
		"bad content-length":   "MESSAGE\ncontent-length:x\n\n\x00",
		"body on receipt":      "RECEIPT\nreceipt-id:1\n\nbody\x00",
		"undefined escape":     "MESSAGE\nkey:\\t\n\n\x00",
	}
	for name, input := range cases {
		parser := NewParser(V12, Limits{})
		if _, _, err := parser.Feed([]byte(input)); !errors.Is(err, ErrProtocolViolation) {
			t.Fatalf("%s: expected protocol violation, got %v", name, err)
		}
	}
}

func TestParserReturnsFramesBeforeViolation(t *testing.T) {
	parser := NewParser(V12, Limits{})
	frames, _, err := parser.Feed([]byte("RECEIPT\nreceipt-id:1\n\n\x00JUNK\n\n\x00"))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected violation, got %v", err)
	}
	if len(frames) != 1 || frames[0].Command != CommandReceipt {
		t.Fatalf("frames before the violation must be returned: %v", frames)
	}
}

func TestParserLimits(t *testing.T) {
	limits := Limits{MaxHeaderBytes: 32, MaxBodyBytes: 8}

	parser := NewParser(V12, limits)
	header := "MESSAGE\nkey:" + strings.Repeat("v", 64) + "\n\n\x00"
	if _, _, err := parser.Feed([]byte(header)); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected header limit violation, got %v", err)
	}

	parser = NewParser(V12, limits)
	if _, _, err := parser.Feed([]byte("MESSAGE\ncontent-length:9\n\n")); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected declared body limit violation, got %v", err)
	}

	parser = NewParser(V12, limits)
	if _, _, err := parser.Feed([]byte("MESSAGE\n\n" + strings.Repeat("b", 9))); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected unterminated body limit violation, got %v", err)
	}

	parser = NewParser(V12, limits)
	if _, _, err := parser.Feed([]byte(strings.Repeat("M", 40))); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected unterminated command line violation, got %v", err)
	}
}

func TestParserResetDropsPartialFrame(t *testing.T) {
	parser := NewParser(V12, Limits{})
	if _, _, err := parser.Feed([]byte("MESSAGE\ndest")); err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	parser.Reset()
	frames, _, err := parser.Feed([]byte("RECEIPT\nreceipt-id:9\n\n\x00"))
	if err != nil || len(frames) != 1 || !bytes.Equal([]byte(frames[0].Headers.Get(HeaderReceiptID)), []byte("9")) {
		t.Fatalf("unexpected result after reset: %v %v", frames, err)
	}
}
