package stomp

import (
	"crypto/tls"
	"errors"
	"io"
	"net/url"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
)

// WebsocketSubprotocols are offered during the WebSocket handshake.
var WebsocketSubprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// websocketTransport adapts a message-oriented WebSocket to the byte stream
// the session expects. gorilla's read errors are sticky, so a read deadline
// cannot be applied to the socket itself; a pump goroutine owns the socket
// reads and Read waits on it with a timer instead.
type websocketTransport struct {
	conn     *websocket.Conn
	incoming chan []byte
	done     chan struct{}
	pumped   chan struct{}
	readErr  error
	pending  []byte
	deadline time.Time

	writeLock sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func dialWebsocket(parsed *url.URL, tlsConfig *tls.Config) (Transport, error) {
	dialer := *websocket.DefaultDialer
	dialer.Subprotocols = WebsocketSubprotocols
	dialer.TLSClientConfig = tlsConfig

	connection, response, err := dialer.Dial(parsed.String(), nil)
	if response != nil && response.Body != nil {
		_ = response.Body.Close()
	}
	if err != nil {
		return nil, NewError(TransportError, pkgerrors.Wrap(err, "websocket dial "+parsed.Host))
	}
	return NewWebsocketTransport(connection), nil
}

// NewWebsocketTransport wraps an established WebSocket connection.
func NewWebsocketTransport(connection *websocket.Conn) Transport {
	transport := &websocketTransport{
		conn:     connection,
		incoming: make(chan []byte),
		done:     make(chan struct{}),
		pumped:   make(chan struct{}),
	}
	go transport.pump()
	return transport
}

func (transport *websocketTransport) pump() {
	defer close(transport.pumped)
	defer close(transport.incoming)

	for {
		_, data, err := transport.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = io.EOF
			}
			transport.readErr = err
			return
		}
		select {
		case transport.incoming <- data:
		case <-transport.done:
			transport.readErr = io.EOF
			return
		}
	}
}

func (transport *websocketTransport) SetReadDeadline(deadline time.Time) error {
	transport.deadline = deadline
	return nil
}

func (transport *websocketTransport) Read(buffer []byte) (int, error) {
	if len(transport.pending) == 0 {
		data, err := transport.receive()
		if err != nil {
			return 0, err
		}
		transport.pending = data
	}
	count := copy(buffer, transport.pending)
	transport.pending = transport.pending[count:]
	return count, nil
}

func (transport *websocketTransport) receive() ([]byte, error) {
	var expired <-chan time.Time
	if !transport.deadline.IsZero() {
		wait := time.Until(transport.deadline)
		if wait <= 0 {
			return nil, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data, ok := <-transport.incoming:
		if !ok {
			if transport.readErr == nil {
				return nil, io.EOF
			}
			return nil, transport.readErr
		}
		return data, nil
	case <-expired:
		return nil, os.ErrDeadlineExceeded
	}
}

func (transport *websocketTransport) Write(data []byte) (int, error) {
	messageType := websocket.TextMessage
	if !utf8.Valid(data) {
		messageType = websocket.BinaryMessage
	}

	transport.writeLock.Lock()
	defer transport.writeLock.Unlock()
	if err := transport.conn.WriteMessage(messageType, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (transport *websocketTransport) Close() error {
	transport.closeOnce.Do(func() {
		close(transport.done)
		transport.writeLock.Lock()
		_ = transport.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		transport.writeLock.Unlock()
		transport.closeErr = transport.conn.Close()
		<-transport.pumped
		if errors.Is(transport.closeErr, websocket.ErrCloseSent) {
			transport.closeErr = nil
		}
	})
	return transport.closeErr
}
