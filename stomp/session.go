package stomp

import (
	"crypto/tls"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the connection state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateFailed
)

func (state State) String() string {
	switch state {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const defaultReadBufferSize = 64 * 1024

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for protocol tracing.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(session *Session) {
		if logger != nil {
			session.log = logger
		}
	}
}

// WithClock replaces time.Now for heart-beat and user tick scheduling.
func WithClock(now func() time.Time) Option {
	return func(session *Session) {
		if now != nil {
			session.now = now
		}
	}
}

// WithLimits bounds inbound frame sizes.
func WithLimits(limits Limits) Option {
	return func(session *Session) { session.limits = limits }
}

// WithHeartbeatTolerance scales the grace window granted after a missed
// incoming heart-beat; 1.0 waits one extra full interval.
func WithHeartbeatTolerance(tolerance float64) Option {
	return func(session *Session) { session.tolerance = tolerance }
}

// WithObserver installs a protocol observer, e.g. stompmetrics.
func WithObserver(observer Observer) Option {
	return func(session *Session) {
		if observer != nil {
			session.observer = observer
		}
	}
}

// WithTLSConfig is used by Dial for tcps, ssl and wss URIs.
func WithTLSConfig(config *tls.Config) Option {
	return func(session *Session) { session.tlsConfig = config }
}

// WithReadBufferSize sets the size of a single transport read.
func WithReadBufferSize(size int) Option {
	return func(session *Session) {
		if size > 0 {
			session.readBuffer = make([]byte, size)
		}
	}
}

// Session is a single STOMP connection. It is not safe for concurrent use:
// operations and Run must be called from one goroutine, or be externally
// synchronized.
type Session struct {
	sessionCtx any
	state      State
	failure    error
	running    bool

	version           Version
	offered           []Version
	offerOutgoing     time.Duration
	offerIncoming     time.Duration
	heartbeat         HeartbeatState
	lastUserTick      time.Time
	disconnectReceipt string

	transport  Transport
	parser     *Parser
	registry   *registry
	callbacks  callbackTable
	readBuffer []byte
	sendBuffer []byte

	log       logrus.FieldLogger
	now       func() time.Time
	limits    Limits
	tolerance float64
	observer  Observer
	tlsConfig *tls.Config
}

// NewSession creates a disconnected session. sessionCtx is handed back to
// every callback and is never inspected by the engine.
func NewSession(sessionCtx any, opts ...Option) *Session {
	session := &Session{
		sessionCtx: sessionCtx,
		state:      StateDisconnected,
		version:    V10,
		registry:   newRegistry(),
		log:        logrus.WithField("pkg", "stomp"),
		now:        time.Now,
		limits:     DefaultLimits(),
		tolerance:  DefaultHeartbeatTolerance,
		observer:   noopObserver{},
	}
	for _, opt := range opts {
		opt(session)
	}
	if session.readBuffer == nil {
		session.readBuffer = make([]byte, defaultReadBufferSize)
	}
	session.parser = NewParser(V10, session.limits)
	return session
}

// Context returns the value passed to NewSession.
func (session *Session) Context() any { return session.sessionCtx }

// State returns the connection state.
func (session *Session) State() State { return session.state }

// Version returns the negotiated protocol version (V10 before CONNECTED).
func (session *Session) Version() Version { return session.version }

// Heartbeat returns the negotiated heart-beat contract.
func (session *Session) Heartbeat() HeartbeatState { return session.heartbeat }

// Err returns the error that moved the session to StateFailed.
func (session *Session) Err() error { return session.failure }

// Subscriptions returns a snapshot of active subscriptions ordered by client id.
func (session *Session) Subscriptions() []Subscription { return session.registry.subscriptionList() }

// Transactions returns the ids of open transactions.
func (session *Session) Transactions() []string { return session.registry.transactionList() }

// PendingReceipts returns the number of receipts awaiting a RECEIPT frame.
func (session *Session) PendingReceipts() int { return session.registry.pendingReceipts() }

// Close releases the transport and all session state. It is the only call
// accepted in StateFailed and leaves the session disconnected.
func (session *Session) Close() error {
	var err error
	if session.transport != nil {
		err = session.transport.Close()
		session.transport = nil
	}
	session.registry.reset()
	session.parser.Reset()
	session.disconnectReceipt = ""
	session.failure = nil
	session.setState(StateDisconnected)
	return err
}

// Dial opens a transport for uri and connects over it. The host header
// defaults to the URI host.
func (session *Session) Dial(uri string, hdrs Headers) error {
	if session.state != StateDisconnected {
		return session.invalidState(CommandConnect)
	}

	headers := hdrs.Clone()
	if _, ok := headers.Contains(HeaderHost); !ok {
		if parsed, err := url.Parse(uri); err == nil && parsed.Hostname() != "" {
			headers.Set(HeaderHost, parsed.Hostname())
		}
	}

	transport, err := DialTransport(uri, session.tlsConfig)
	if err != nil {
		return err
	}
	if err := session.Connect(transport, headers); err != nil {
		if session.state == StateDisconnected {
			_ = transport.Close()
		}
		return err
	}
	return nil
}

// Connect sends CONNECT over an open transport. accept-version and host are
// added when absent; a heart-beat header is taken as the client offer.
// Register callbacks and call Run to receive the broker's answer.
func (session *Session) Connect(transport Transport, hdrs Headers) error {
	if session.state != StateDisconnected {
		return session.invalidState(CommandConnect)
	}
	if transport == nil {
		return NewError(TransportError, "nil transport")
	}

	headers := hdrs.Clone()
	if _, ok := headers.Contains(HeaderAcceptVersion); !ok {
		headers.Set(HeaderAcceptVersion, DefaultAcceptVersion)
	}
	offered := parseAcceptVersion(headers.Get(HeaderAcceptVersion))
	if len(offered) == 0 {
		return NewError(UnsupportedVersionError, "accept-version names no supported version")
	}
	if _, ok := headers.Contains(HeaderHost); !ok {
		host := remoteHost(transport)
		if host == "" {
			host = "localhost"
		}
		headers.Set(HeaderHost, host)
	}

	var cx, cy time.Duration
	if value, ok := headers.Contains(HeaderHeartBeat); ok {
		var err error
		if cx, cy, err = ParseHeartBeat(value); err != nil {
			return err
		}
	}

	now := session.now()
	session.transport = transport
	session.offered = offered
	session.offerOutgoing, session.offerIncoming = cx, cy
	session.version = V10
	session.parser = NewParser(V10, session.limits)
	session.registry.reset()
	session.failure = nil
	session.disconnectReceipt = ""
	session.heartbeat = newHeartbeatState(0, 0, session.tolerance, now)
	session.lastUserTick = now
	session.setState(StateConnecting)

	if err := session.writeFrame(&Frame{Command: CommandConnect, Headers: headers}); err != nil {
		if session.state == StateConnecting {
			session.transport = nil
			session.setState(StateDisconnected)
		}
		return err
	}
	return nil
}

// Disconnect sends DISCONNECT. With a receipt header the session waits in
// StateDisconnecting for the matching RECEIPT (or the transport closing)
// before Run returns; without one it disconnects immediately. It may be
// called from inside any callback.
func (session *Session) Disconnect(hdrs Headers) error {
	if err := session.requireConnected(CommandDisconnect); err != nil {
		return err
	}

	headers := hdrs.Clone()
	if err := session.writeFrame(&Frame{Command: CommandDisconnect, Headers: headers}); err != nil {
		return err
	}

	if receipt := headers.Get(HeaderReceipt); receipt != "" {
		session.disconnectReceipt = receipt
		session.setState(StateDisconnecting)
		return nil
	}
	session.finish()
	return nil
}

// Subscribe sends SUBSCRIBE and returns the client id to pass to
// Unsubscribe. destination is required; ack defaults to auto; an id is
// generated when absent. Caller supplied ids are not checked for uniqueness.
func (session *Session) Subscribe(hdrs Headers) (int, error) {
	if err := session.requireConnected(CommandSubscribe); err != nil {
		return -1, err
	}

	headers := hdrs.Clone()
	if err := session.validate(CommandSubscribe, headers); err != nil {
		return -1, err
	}
	if _, ok := headers.Contains(HeaderAck); !ok {
		headers.Set(HeaderAck, "auto")
	}

	subscription := session.registry.addSubscription(
		headers.Get(HeaderID),
		headers.Get(HeaderDestination),
		headers.Get(HeaderAck),
	)
	headers.Set(HeaderID, subscription.ID)

	if err := session.writeFrame(&Frame{Command: CommandSubscribe, Headers: headers}); err != nil {
		session.registry.removeSubscription(subscription.ClientID)
		return -1, err
	}
	return subscription.ClientID, nil
}

// Unsubscribe cancels the subscription identified by the client id returned
// from Subscribe. The id header (and destination on 1.0) is filled in from
// the registry.
func (session *Session) Unsubscribe(clientID int, hdrs Headers) error {
	if err := session.requireConnected(CommandUnsubscribe); err != nil {
		return err
	}
	subscription, exists := session.registry.subscription(clientID)
	if !exists {
		return NewError(InvalidStateError, "no active subscription with client id "+strconv.Itoa(clientID))
	}

	headers := hdrs.Clone()
	headers.Set(HeaderID, subscription.ID)
	if session.version == V10 {
		if _, ok := headers.Contains(HeaderDestination); !ok {
			headers.Set(HeaderDestination, subscription.Destination)
		}
	}

	if err := session.writeFrame(&Frame{Command: CommandUnsubscribe, Headers: headers}); err != nil {
		return err
	}
	session.registry.removeSubscription(clientID)
	return nil
}

// Begin starts a transaction named by the transaction header.
func (session *Session) Begin(hdrs Headers) error {
	return session.transaction(CommandBegin, hdrs)
}

// Commit commits the transaction named by the transaction header.
func (session *Session) Commit(hdrs Headers) error {
	return session.transaction(CommandCommit, hdrs)
}

// Abort rolls back the transaction named by the transaction header.
func (session *Session) Abort(hdrs Headers) error {
	return session.transaction(CommandAbort, hdrs)
}

func (session *Session) transaction(command Command, hdrs Headers) error {
	if err := session.requireConnected(command); err != nil {
		return err
	}
	headers := hdrs.Clone()
	if err := session.validate(command, headers); err != nil {
		return err
	}
	if err := session.writeFrame(&Frame{Command: command, Headers: headers}); err != nil {
		return err
	}

	id := headers.Get(HeaderTransaction)
	if command != CommandBegin && !session.registry.hasTransaction(id) {
		session.log.WithField("transaction", id).Debug(string(command) + " for a transaction this session did not begin")
	}
	if command == CommandBegin {
		session.registry.beginTransaction(id)
	} else {
		session.registry.endTransaction(id)
	}
	return nil
}

// Ack acknowledges a message. Required headers depend on the version:
// 1.0 message-id; 1.1 message-id and subscription; 1.2 id.
func (session *Session) Ack(hdrs Headers) error {
	return session.acknowledge(CommandAck, hdrs)
}

// Nack rejects a message. It is not available on 1.0 connections.
func (session *Session) Nack(hdrs Headers) error {
	return session.acknowledge(CommandNack, hdrs)
}

func (session *Session) acknowledge(command Command, hdrs Headers) error {
	if err := session.requireConnected(command); err != nil {
		return err
	}
	if command == CommandNack && session.version == V10 {
		return NewError(InvalidStateError, "NACK is not available on a STOMP 1.0 connection")
	}
	headers := hdrs.Clone()
	if err := session.validate(command, headers); err != nil {
		return err
	}
	return session.writeFrame(&Frame{Command: command, Headers: headers})
}

// Send publishes body to the destination header. content-length is added
// when absent; content-type is optional.
func (session *Session) Send(hdrs Headers, body []byte) error {
	if err := session.requireConnected(CommandSend); err != nil {
		return err
	}
	headers := hdrs.Clone()
	if err := session.validate(CommandSend, headers); err != nil {
		return err
	}
	return session.writeFrame(&Frame{Command: CommandSend, Headers: headers, Body: body})
}

// requiredHeaders is the per-version policy of mandatory client headers.
func requiredHeaders(command Command, version Version) []string {
	switch command {
	case CommandSend, CommandSubscribe:
		return []string{HeaderDestination}
	case CommandBegin, CommandCommit, CommandAbort:
		return []string{HeaderTransaction}
	case CommandAck, CommandNack:
		switch version {
		case V10:
			return []string{HeaderMessageID}
		case V11:
			return []string{HeaderMessageID, HeaderSubscription}
		default:
			return []string{HeaderID}
		}
	}
	return nil
}

func (session *Session) validate(command Command, headers Headers) error {
	return headers.requireNonEmpty(command, requiredHeaders(command, session.version)...)
}

func (session *Session) requireConnected(command Command) error {
	if session.state != StateConnected {
		return session.invalidState(command)
	}
	return nil
}

func (session *Session) invalidState(command Command) error {
	return NewError(InvalidStateError, string(command)+" is not allowed while "+session.state.String())
}

func (session *Session) setState(state State) {
	if session.state == state {
		return
	}
	previous := session.state
	session.state = state
	session.observer.StateChanged(previous, state)
	session.log.WithFields(logrus.Fields{"from": previous, "to": state}).Debug("session state changed")
}

// active reports whether the run loop should keep going.
func (session *Session) active() bool {
	switch session.state {
	case StateConnecting, StateConnected, StateDisconnecting:
		return true
	}
	return false
}

// writeFrame encodes and writes frame. Encoding problems are returned to the
// caller; write failures fail the session.
func (session *Session) writeFrame(frame *Frame) error {
	data, err := AppendFrame(session.sendBuffer[:0], frame, session.version)
	if err != nil {
		return err
	}
	session.sendBuffer = data

	if _, err := session.transport.Write(data); err != nil {
		return session.fail(transportError("write "+string(frame.Command), err))
	}

	session.heartbeat.sent(session.now())
	if receipt, ok := frame.Headers.Contains(HeaderReceipt); ok && frame.Command != CommandConnect {
		session.registry.addReceipt(receipt, frame.Command)
	}
	session.observer.FrameSent(frame.Command, len(data))
	session.log.WithFields(logrus.Fields{"command": frame.Command, "bytes": len(data)}).Debug("frame sent")
	return nil
}

func (session *Session) writeHeartbeat(now time.Time) error {
	if _, err := session.transport.Write([]byte{'\n'}); err != nil {
		return session.fail(transportError("write heart-beat", err))
	}
	session.heartbeat.sent(now)
	session.observer.HeartbeatSent()
	session.log.Debug("heart-beat sent")
	return nil
}

// fail moves the session to StateFailed, dropping every registry entry
// without invoking per-receipt callbacks.
func (session *Session) fail(err error) error {
	if !session.active() {
		return err
	}
	session.log.WithError(err).Warn("session failed")
	session.failure = err
	session.release()
	session.setState(StateFailed)
	return err
}

// finish completes a clean disconnect.
func (session *Session) finish() {
	session.release()
	session.setState(StateDisconnected)
}

func (session *Session) release() {
	if session.transport != nil {
		if err := session.transport.Close(); err != nil {
			session.log.WithError(err).Debug("transport close failed")
		}
		session.transport = nil
	}
	session.registry.reset()
	session.parser.Reset()
	session.disconnectReceipt = ""
}
