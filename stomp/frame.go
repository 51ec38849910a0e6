package stomp

import (
	"strconv"
	"strings"
)

// Command is a STOMP frame command.
type Command string

// Client commands.
const (
	CommandConnect     Command = "CONNECT"
	CommandStomp       Command = "STOMP"
	CommandSend        Command = "SEND"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandBegin       Command = "BEGIN"
	CommandCommit      Command = "COMMIT"
	CommandAbort       Command = "ABORT"
	CommandAck         Command = "ACK"
	CommandNack        Command = "NACK"
	CommandDisconnect  Command = "DISCONNECT"
)

// Server commands.
const (
	CommandConnected Command = "CONNECTED"
	CommandMessage   Command = "MESSAGE"
	CommandReceipt   Command = "RECEIPT"
	CommandError     Command = "ERROR"
)

func parseCommand(raw []byte) (Command, bool) {
	switch command := Command(raw); command {
	case CommandConnect, CommandStomp, CommandSend, CommandSubscribe,
		CommandUnsubscribe, CommandBegin, CommandCommit, CommandAbort,
		CommandAck, CommandNack, CommandDisconnect,
		CommandConnected, CommandMessage, CommandReceipt, CommandError:
		return command, true
	}
	return "", false
}

// IsServer reports whether the command is sent by brokers.
func (command Command) IsServer() bool {
	switch command {
	case CommandConnected, CommandMessage, CommandReceipt, CommandError:
		return true
	}
	return false
}

// allowsBody reports whether frames of this command may carry a body.
func (command Command) allowsBody() bool {
	switch command {
	case CommandSend, CommandMessage, CommandError:
		return true
	}
	return false
}

// isHandshake reports the version negotiation frames.
func (command Command) isHandshake() bool {
	return command == CommandConnect || command == CommandStomp || command == CommandConnected
}

// escapesHeaders is false for the negotiation frames, which are never escaped.
func (command Command) escapesHeaders(version Version) bool {
	if command.isHandshake() {
		return false
	}
	return version.escapes()
}

// Frame is one STOMP protocol message.
type Frame struct {
	Command Command
	Headers Headers
	Body    []byte
}

// NewFrame creates a frame from alternating header keys and values.
func NewFrame(command Command, headers ...string) *Frame {
	return &Frame{Command: command, Headers: NewHeaders(headers...)}
}

// Clone copies the frame and its headers; the body is shared.
func (frame *Frame) Clone() *Frame {
	return &Frame{Command: frame.Command, Headers: frame.Headers.Clone(), Body: frame.Body}
}

// Limits bounds the memory the parser accepts for one frame.
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes: 64 * 1024,
		MaxBodyBytes:   8 * 1024 * 1024,
	}
}

// Encode serializes frame for the given protocol version.
func Encode(frame *Frame, version Version) ([]byte, error) {
	return AppendFrame(nil, frame, version)
}

// AppendFrame appends the wire form of frame to dst. A content-length header
// is injected for non-empty bodies unless the caller already supplied one.
func AppendFrame(dst []byte, frame *Frame, version Version) ([]byte, error) {
	if frame == nil || frame.Command == "" {
		return dst, NewError(ProtocolViolationError, "frame has no command")
	}
	if len(frame.Body) > 0 && !frame.Command.allowsBody() {
		return dst, NewError(ProtocolViolationError, string(frame.Command)+" frames cannot carry a body")
	}

	escape := frame.Command.escapesHeaders(version)

	dst = append(dst, frame.Command...)
	dst = append(dst, '\n')
	for _, header := range frame.Headers {
		if header.Key == "" {
			return dst, NewError(ProtocolViolationError, "empty header name")
		}
		if escape {
			dst = append(dst, escapeHeader(header.Key)...)
			dst = append(dst, ':')
			dst = append(dst, escapeHeader(header.Value)...)
		} else {
			if strings.ContainsAny(header.Key, "\r\n:") || strings.ContainsAny(header.Value, "\r\n") {
				return dst, NewError(ProtocolViolationError, "header "+strconv.Quote(header.Key)+" cannot be represented without escaping")
			}
			dst = append(dst, header.Key...)
			dst = append(dst, ':')
			dst = append(dst, header.Value...)
		}
		dst = append(dst, '\n')
	}
	if len(frame.Body) > 0 {
		if _, ok := frame.Headers.Contains(HeaderContentLength); !ok {
			dst = append(dst, HeaderContentLength...)
			dst = append(dst, ':')
			dst = strconv.AppendInt(dst, int64(len(frame.Body)), 10)
			dst = append(dst, '\n')
		}
	}
	dst = append(dst, '\n')
	dst = append(dst, frame.Body...)
	dst = append(dst, 0)
	return dst, nil
}
