package stomp

import (
	"bytes"
	"strconv"
	"strings"
)

// Header names used by the engine.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderAck           = "ack"
	HeaderContentLength = "content-length"
	HeaderContentType   = "content-type"
	HeaderDestination   = "destination"
	HeaderHeartBeat     = "heart-beat"
	HeaderHost          = "host"
	HeaderID            = "id"
	HeaderLogin         = "login"
	HeaderMessage       = "message"
	HeaderMessageID     = "message-id"
	HeaderPasscode      = "passcode"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderServer        = "server"
	HeaderSession       = "session"
	HeaderSubscription  = "subscription"
	HeaderTransaction   = "transaction"
	HeaderVersion       = "version"
)

// Header is a single key/value entry of a frame.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered header list. Keys are case-sensitive and may repeat;
// lookups return the first occurrence.
type Headers []Header

// NewHeaders builds a list from alternating keys and values.
func NewHeaders(pairs ...string) Headers {
	headers := make(Headers, 0, (len(pairs)+1)/2)
	for index := 0; index < len(pairs); index += 2 {
		value := ""
		if index+1 < len(pairs) {
			value = pairs[index+1]
		}
		headers = append(headers, Header{Key: pairs[index], Value: value})
	}
	return headers
}

func (headers Headers) index(key string) int {
	for index := range headers {
		if headers[index].Key == key {
			return index
		}
	}
	return -1
}

// Contains returns the first value for key and whether it exists.
func (headers Headers) Contains(key string) (string, bool) {
	if index := headers.index(key); index >= 0 {
		return headers[index].Value, true
	}
	return "", false
}

// Get returns the first value for key, or "".
func (headers Headers) Get(key string) string {
	value, _ := headers.Contains(key)
	return value
}

// Add appends an entry.
func (headers *Headers) Add(key, value string) {
	*headers = append(*headers, Header{Key: key, Value: value})
}

// Set replaces the first entry for key or appends one.
func (headers *Headers) Set(key, value string) {
	if index := headers.index(key); index >= 0 {
		(*headers)[index].Value = value
		return
	}
	headers.Add(key, value)
}

// Del removes every entry for key.
func (headers *Headers) Del(key string) {
	kept := (*headers)[:0]
	for _, header := range *headers {
		if header.Key != key {
			kept = append(kept, header)
		}
	}
	*headers = kept
}

// Clone returns a deep copy.
func (headers Headers) Clone() Headers {
	if headers == nil {
		return nil
	}
	return append(make(Headers, 0, len(headers)), headers...)
}

// ContentLength parses the content-length header. ok is false when absent.
func (headers Headers) ContentLength() (length int, ok bool, err error) {
	value, ok := headers.Contains(HeaderContentLength)
	if !ok {
		return 0, false, nil
	}
	parsed, parseErr := strconv.ParseUint(strings.TrimSpace(value), 10, 31)
	if parseErr != nil {
		return 0, true, NewError(ProtocolViolationError, "invalid content-length "+strconv.Quote(value))
	}
	return int(parsed), true, nil
}

func (headers Headers) requireNonEmpty(command Command, keys ...string) error {
	for _, key := range keys {
		if value, ok := headers.Contains(key); !ok || value == "" {
			return NewError(MissingHeaderError, string(command)+" requires header "+strconv.Quote(key))
		}
	}
	return nil
}

var (
	headerEscaper = strings.NewReplacer(
		"\\", "\\\\",
		"\r", "\\r",
		"\n", "\\n",
		":", "\\c",
	)
)

func escapeHeader(value string) string {
	if !strings.ContainsAny(value, "\\\r\n:") {
		return value
	}
	return headerEscaper.Replace(value)
}

// unescapeHeader decodes a 1.1+ header token. Unknown escapes are fatal.
func unescapeHeader(raw []byte) (string, error) {
	if bytes.IndexByte(raw, '\\') < 0 {
		return string(raw), nil
	}

	var builder strings.Builder
	builder.Grow(len(raw))
	for index := 0; index < len(raw); index++ {
		character := raw[index]
		if character != '\\' {
			builder.WriteByte(character)
			continue
		}
		if index+1 == len(raw) {
			return "", NewError(ProtocolViolationError, "dangling escape in header")
		}
		index++
		switch raw[index] {
		case 'r':
			builder.WriteByte('\r')
		case 'n':
			builder.WriteByte('\n')
		case 'c':
			builder.WriteByte(':')
		case '\\':
			builder.WriteByte('\\')
		default:
			return "", NewError(ProtocolViolationError, "undefined escape \\"+string(raw[index])+" in header")
		}
	}
	return builder.String(), nil
}
