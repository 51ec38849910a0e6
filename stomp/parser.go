package stomp

import (
	"bytes"
	"strconv"
)

// Parser incrementally decodes inbound bytes into frames. It owns a growable
// buffer and a consumed-prefix cursor; unconsumed bytes are kept for the next
// Feed call.
type Parser struct {
	version Version
	limits  Limits
	buffer  []byte
	start   int
}

// NewParser returns a parser for the given version. Until CONNECTED has been
// processed sessions parse with V10 rules.
func NewParser(version Version, limits Limits) *Parser {
	if limits.MaxHeaderBytes <= 0 || limits.MaxBodyBytes <= 0 {
		defaults := DefaultLimits()
		if limits.MaxHeaderBytes <= 0 {
			limits.MaxHeaderBytes = defaults.MaxHeaderBytes
		}
		if limits.MaxBodyBytes <= 0 {
			limits.MaxBodyBytes = defaults.MaxBodyBytes
		}
	}
	return &Parser{version: version, limits: limits}
}

// SetVersion switches the escaping rules for subsequent frames.
func (parser *Parser) SetVersion(version Version) { parser.version = version }

// Version returns the version used for header decoding.
func (parser *Parser) Version() Version { return parser.version }

// Buffered returns the number of bytes held for an incomplete frame.
func (parser *Parser) Buffered() int { return len(parser.buffer) - parser.start }

// Reset drops any buffered partial frame.
func (parser *Parser) Reset() {
	parser.buffer = parser.buffer[:0]
	parser.start = 0
}

// Feed appends p and returns every frame that is now complete, in wire order,
// plus the number of heart-beat pulses seen between frames. On error the
// frames decoded before the malformed one are still returned. Feed stops
// after a handshake frame (CONNECT, STOMP or CONNECTED); call it again with no
// input once the version has been set to decode the rest.
func (parser *Parser) Feed(p []byte) (frames []*Frame, pulses int, err error) {
	parser.buffer = append(parser.buffer, p...)
	defer parser.compact()

	for {
		count, complete := parser.skipPulses()
		pulses += count
		if !complete || parser.start == len(parser.buffer) {
			return frames, pulses, nil
		}

		frame, consumed, parseErr := parser.parseFrame(parser.buffer[parser.start:])
		if parseErr != nil {
			return frames, pulses, parseErr
		}
		if frame == nil {
			return frames, pulses, nil
		}
		parser.start += consumed
		frames = append(frames, frame)
		if frame.Command.isHandshake() {
			// bytes after the handshake are decoded under the negotiated version
			return frames, pulses, nil
		}
	}
}

// skipPulses consumes leading EOLs. complete is false when the buffer ends
// with a lone CR that may still become a CRLF pulse.
func (parser *Parser) skipPulses() (count int, complete bool) {
	for parser.start < len(parser.buffer) {
		switch parser.buffer[parser.start] {
		case '\n':
			parser.start++
			count++
		case '\r':
			if parser.start+1 == len(parser.buffer) {
				return count, false
			}
			if parser.buffer[parser.start+1] != '\n' {
				return count, true
			}
			parser.start += 2
			count++
		default:
			return count, true
		}
	}
	return count, true
}

func (parser *Parser) compact() {
	switch {
	case parser.start == len(parser.buffer):
		parser.buffer = parser.buffer[:0]
	case parser.start > 0:
		remaining := copy(parser.buffer, parser.buffer[parser.start:])
		parser.buffer = parser.buffer[:remaining]
	}
	parser.start = 0
}

// readLine returns the line starting at offset without its LF or CRLF.
func readLine(data []byte, offset int) (line []byte, next int, ok bool) {
	end := bytes.IndexByte(data[offset:], '\n')
	if end < 0 {
		return nil, offset, false
	}
	line = data[offset : offset+end]
	if length := len(line); length > 0 && line[length-1] == '\r' {
		line = line[:length-1]
	}
	return line, offset + end + 1, true
}

// parseFrame decodes one frame from data. A nil frame with nil error means
// more input is needed.
func (parser *Parser) parseFrame(data []byte) (*Frame, int, error) {
	commandLine, offset, ok := readLine(data, 0)
	if !ok {
		return nil, 0, parser.checkHeaderLimit(len(data))
	}
	command, known := parseCommand(commandLine)
	if !known {
		return nil, 0, NewError(ProtocolViolationError, "unknown command "+strconv.Quote(string(commandLine)))
	}

	escaped := command.escapesHeaders(parser.version)
	frame := &Frame{Command: command}
	for {
		line, next, ok := readLine(data, offset)
		if !ok {
			return nil, 0, parser.checkHeaderLimit(len(data))
		}
		offset = next
		if len(line) == 0 {
			break
		}
		if err := parser.checkHeaderLimit(offset); err != nil {
			return nil, 0, err
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, 0, NewError(ProtocolViolationError, "malformed header line "+strconv.Quote(string(line)))
		}
		key, value, err := decodeHeader(line[:colon], line[colon+1:], escaped)
		if err != nil {
			return nil, 0, err
		}
		frame.Headers = append(frame.Headers, Header{Key: key, Value: value})
	}

	length, hasLength, err := frame.Headers.ContentLength()
	if err != nil {
		return nil, 0, err
	}

	var bodyEnd int
	if hasLength {
		if length > parser.limits.MaxBodyBytes {
			return nil, 0, NewError(ProtocolViolationError, "frame body exceeds limit")
		}
		bodyEnd = offset + length
		if bodyEnd >= len(data) {
			return nil, 0, nil
		}
		if data[bodyEnd] != 0 {
			return nil, 0, NewError(ProtocolViolationError, "frame body overruns content-length")
		}
	} else {
		terminator := bytes.IndexByte(data[offset:], 0)
		if terminator < 0 {
			if len(data)-offset > parser.limits.MaxBodyBytes {
				return nil, 0, NewError(ProtocolViolationError, "frame body exceeds limit")
			}
			return nil, 0, nil
		}
		bodyEnd = offset + terminator
	}

	if bodyEnd > offset {
		if !command.allowsBody() {
			return nil, 0, NewError(ProtocolViolationError, string(command)+" frame carries a body")
		}
		frame.Body = append([]byte(nil), data[offset:bodyEnd]...)
	}
	return frame, bodyEnd + 1, nil
}

func (parser *Parser) checkHeaderLimit(size int) error {
	if size > parser.limits.MaxHeaderBytes {
		return NewError(ProtocolViolationError, "frame header exceeds limit")
	}
	return nil
}

func decodeHeader(rawKey, rawValue []byte, escaped bool) (string, string, error) {
	if !escaped {
		return string(rawKey), string(rawValue), nil
	}
	key, err := unescapeHeader(rawKey)
	if err != nil {
		return "", "", err
	}
	value, err := unescapeHeader(rawValue)
	if err != nil {
		return "", "", err
	}
	return key, value, nil
}
