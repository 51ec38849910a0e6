package stomp

import (
	"errors"
	"reflect"
	"testing"
)

func TestHeadersFirstOccurrenceWins(t *testing.T) {
	headers := NewHeaders("a", "1", "b", "2", "a", "3")
	if got := headers.Get("a"); got != "1" {
		t.Fatalf("expected first value, got %q", got)
	}
	if _, ok := headers.Contains("A"); ok {
		t.Fatalf("header keys must be case-sensitive")
	}

	headers.Set("a", "4")
	if !reflect.DeepEqual(headers, NewHeaders("a", "4", "b", "2", "a", "3")) {
		t.Fatalf("Set should replace only the first entry: %v", headers)
	}
	headers.Del("a")
	if !reflect.DeepEqual(headers, NewHeaders("b", "2")) {
		t.Fatalf("Del should remove every entry: %v", headers)
	}
	headers.Set("c", "")
	if value, ok := headers.Contains("c"); !ok || value != "" {
		t.Fatalf("expected empty c header, got %q %v", value, ok)
	}
}

func TestHeadersCloneIsIndependent(t *testing.T) {
	original := NewHeaders("k", "v")
	clone := original.Clone()
	clone.Set("k", "changed")
	if original.Get("k") != "v" {
		t.Fatalf("clone mutated original")
	}
	if Headers(nil).Clone() != nil {
		t.Fatalf("nil clone should stay nil")
	}
}

func TestHeadersContentLength(t *testing.T) {
	if _, ok, err := NewHeaders().ContentLength(); ok || err != nil {
		t.Fatalf("absent content-length: ok=%v err=%v", ok, err)
	}
	if length, ok, err := NewHeaders(HeaderContentLength, "12").ContentLength(); length != 12 || !ok || err != nil {
		t.Fatalf("unexpected parse %d %v %v", length, ok, err)
	}
	for _, value := range []string{"-1", "abc", "", "99999999999"} {
		if _, _, err := NewHeaders(HeaderContentLength, value).ContentLength(); !errors.Is(err, ErrProtocolViolation) {
			t.Fatalf("content-length %q: expected protocol violation, got %v", value, err)
		}
	}
}

func TestHeaderEscapeRoundTrip(t *testing.T) {
	values := []string{
		"plain",
		"colon:inside",
		"back\\slash",
		"line\nfeed",
		"carriage\rreturn",
		"all\\:\r\n:\\",
		"",
	}
	for _, value := range values {
		escaped := escapeHeader(value)
		decoded, err := unescapeHeader([]byte(escaped))
		if err != nil {
			t.Fatalf("unescape %q: %v", escaped, err)
		}
		if decoded != value {
			t.Fatalf("round trip mismatch: %q -> %q -> %q", value, escaped, decoded)
		}
	}
}

func TestUnescapeHeaderRejectsUndefinedEscapes(t *testing.T) {
	for _, raw := range []string{"bad\\t", "dangling\\"} {
		if _, err := unescapeHeader([]byte(raw)); !errors.Is(err, ErrProtocolViolation) {
			t.Fatalf("%q: expected protocol violation, got %v", raw, err)
		}
	}
}

func TestRequireNonEmpty(t *testing.T) {
	headers := NewHeaders(HeaderDestination, "", HeaderTransaction, "tx")
	if err := headers.requireNonEmpty(CommandBegin, HeaderTransaction); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := headers.requireNonEmpty(CommandSend, HeaderDestination)
	if !errors.Is(err, ErrMissingHeader) {
		t.Fatalf("empty destination should be missing, got %v", err)
	}
	if KindOf(err) != MissingHeaderError {
		t.Fatalf("unexpected kind %v", KindOf(err))
	}
}
