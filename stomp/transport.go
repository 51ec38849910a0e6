package stomp

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// DefaultPort is used when a broker URI names no port.
const DefaultPort = "61613"

// Transport is the duplex byte stream a session runs over. Read honours the
// deadline set by SetReadDeadline and reports expiry with a timeout error
// (os.ErrDeadlineExceeded or a net.Error whose Timeout is true). net.Conn
// satisfies it.
type Transport interface {
	io.ReadWriteCloser
	SetReadDeadline(deadline time.Time) error
}

// DialTransport opens a transport for a broker URI. Supported schemes are
// tcp, tcps/ssl (TLS), ws and wss (STOMP over WebSocket).
func DialTransport(uri string, tlsConfig *tls.Config) (Transport, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, NewError(TransportError, "invalid broker uri", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "tcp", "stomp":
		connection, err := net.Dial("tcp", hostPort(parsed))
		if err != nil {
			return nil, NewError(TransportError, pkgerrors.Wrap(err, "dial "+parsed.Host))
		}
		return connection, nil
	case "tcps", "ssl", "stomp+ssl":
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: parsed.Hostname()}
		}
		connection, err := tls.Dial("tcp", hostPort(parsed), tlsConfig)
		if err != nil {
			return nil, NewError(TransportError, pkgerrors.Wrap(err, "tls dial "+parsed.Host))
		}
		return connection, nil
	case "ws", "wss":
		return dialWebsocket(parsed, tlsConfig)
	}
	return nil, NewError(TransportError, "unsupported uri scheme "+parsed.Scheme)
}

func hostPort(parsed *url.URL) string {
	if parsed.Port() != "" {
		return parsed.Host
	}
	return net.JoinHostPort(parsed.Hostname(), DefaultPort)
}

// remoteHost derives the CONNECT host header from transports that expose
// their peer address.
func remoteHost(transport Transport) string {
	addressed, ok := transport.(interface{ RemoteAddr() net.Addr })
	if !ok || addressed.RemoteAddr() == nil {
		return ""
	}
	address := addressed.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func transportError(action string, err error) error {
	if errors.Is(err, io.EOF) {
		return NewError(TransportError, "connection closed by peer", err)
	}
	return NewError(TransportError, pkgerrors.Wrap(err, action))
}
