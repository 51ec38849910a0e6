package stomp

import (
	"errors"
	"io"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestNewErrorFormatting(t *testing.T) {
	cases := []struct {
		err      error
		expected string
	}{
		{NewError(InvalidStateError), "InvalidStateError"},
		{NewError(MissingHeaderError, "SEND requires destination"), "MissingHeaderError: SEND requires destination"},
		{NewError(TransportError, io.EOF), "TransportError: EOF"},
		{NewError(TransportError, "closed", io.EOF), "TransportError: closed: EOF"},
		{NewError(UnknownError, 42), "UnknownError: 42"},
	}
	for _, tc := range cases {
		if tc.err.Error() != tc.expected {
			t.Fatalf("got %q want %q", tc.err.Error(), tc.expected)
		}
	}
}

func TestErrorSentinelsAndKinds(t *testing.T) {
	err := NewError(HeartbeatTimeoutError, "silent broker")
	if !errors.Is(err, ErrHeartbeatTimeout) || errors.Is(err, ErrTransport) {
		t.Fatalf("unexpected sentinel matching for %v", err)
	}
	if KindOf(err) != HeartbeatTimeoutError {
		t.Fatalf("unexpected kind %v", KindOf(err))
	}
	if KindOf(io.EOF) != UnknownError {
		t.Fatalf("foreign errors should be UnknownError")
	}
	if ErrorKind(99).String() != "UnknownError" {
		t.Fatalf("unexpected fallback kind name")
	}
}

func TestTransportErrorWrapsPlatformError(t *testing.T) {
	err := transportError("read", io.ErrUnexpectedEOF)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("transport error should expose both kind and cause: %v", err)
	}
	if pkgerrors.Cause(err) != io.ErrUnexpectedEOF {
		t.Fatalf("pkg/errors Cause should reach the platform error, got %v", pkgerrors.Cause(err))
	}
	if !strings.Contains(err.Error(), "read") {
		t.Fatalf("action missing from %q", err.Error())
	}

	eof := transportError("read", io.EOF)
	if !strings.Contains(eof.Error(), "connection closed by peer") || !errors.Is(eof, io.EOF) {
		t.Fatalf("unexpected EOF error %v", eof)
	}
}

func TestVersionNegotiation(t *testing.T) {
	offered := parseAcceptVersion("1.2, 1.1,bogus,1.0")
	if len(offered) != 3 {
		t.Fatalf("unexpected offer %v", offered)
	}
	if version, err := negotiateVersion(offered, "", false); err != nil || version != V10 {
		t.Fatalf("missing version must mean 1.0, got %v %v", version, err)
	}
	if version, err := negotiateVersion(offered, "1.2", true); err != nil || version != V12 {
		t.Fatalf("unexpected negotiation %v %v", version, err)
	}
	if _, err := negotiateVersion([]Version{V11, V12}, "1.0", true); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected unsupported version, got %v", err)
	}
	if _, err := negotiateVersion(offered, "2.0", true); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected unsupported version, got %v", err)
	}
	if V11.String() != "1.1" || Version(3).String() != "unknown" {
		t.Fatalf("unexpected version names")
	}
}
