package fakebroker

import (
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thejuampi/stomp-client-go/stomp"
)

// connection is one client. Everything except enqueue runs on the serve
// goroutine.
type connection struct {
	broker *Broker
	conn   net.Conn
	writer *connWriter
	parser *stomp.Parser
	log    logrus.FieldLogger

	connected    bool
	version      stomp.Version
	incoming     time.Duration
	transactions map[string][]*stomp.Frame

	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
}

func newConnection(broker *Broker, conn net.Conn) *connection {
	return &connection{
		broker:       broker,
		conn:         conn,
		writer:       newConnWriter(conn, broker.config.OutDepth),
		parser:       stomp.NewParser(stomp.V10, stomp.Limits{}),
		log:          broker.log.WithField("remote", conn.RemoteAddr().String()),
		version:      stomp.V10,
		transactions: make(map[string][]*stomp.Frame),
	}
}

func (c *connection) serve() {
	defer c.broker.handlers.Done()
	c.log.Debug("client connected")
	defer func() {
		c.stopHeartbeats()
		c.broker.forget(c)
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.writer.close()
		_ = c.conn.Close()
		c.broker.connectionsCurrent.Add(-1)
		c.log.Debug("client disconnected")
	}()

	buffer := make([]byte, 32*1024)
	for {
		if c.incoming > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.incoming))
		}
		count, err := c.conn.Read(buffer)
		if count > 0 && !c.consume(buffer[:count]) {
			return
		}
		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
				c.log.Warn("client heart-beat missed, closing")
			case errors.Is(err, io.EOF), isClosedError(err):
			default:
				c.log.WithError(err).Warn("read failed")
			}
			return
		}
	}
}

// consume parses data and handles each frame. It reports false when the
// connection must be closed. The parser pauses after CONNECT so frames
// pipelined behind it are decoded under the negotiated version.
func (c *connection) consume(data []byte) bool {
	for {
		frames, _, err := c.parser.Feed(data)
		data = nil
		for _, frame := range frames {
			c.broker.record(frame)
			if !c.handle(frame) {
				return false
			}
		}
		if err != nil {
			return c.fail(err.Error(), nil)
		}
		if len(frames) == 0 || c.parser.Buffered() == 0 {
			return true
		}
		switch frames[len(frames)-1].Command {
		case stomp.CommandConnect, stomp.CommandStomp:
		default:
			return true
		}
	}
}

func (c *connection) handle(frame *stomp.Frame) bool {
	if !c.connected && frame.Command != stomp.CommandConnect && frame.Command != stomp.CommandStomp {
		return c.fail("expected CONNECT, got "+string(frame.Command), frame)
	}

	switch frame.Command {
	case stomp.CommandConnect, stomp.CommandStomp:
		return c.onConnect(frame)

	case stomp.CommandSend:
		if frame.Headers.Get(stomp.HeaderDestination) == "" {
			return c.fail("SEND requires a destination", frame)
		}
		if tx := frame.Headers.Get(stomp.HeaderTransaction); tx != "" {
			buffered, ok := c.transactions[tx]
			if !ok {
				return c.fail("unknown transaction "+tx, frame)
			}
			c.transactions[tx] = append(buffered, frame)
		} else {
			c.broker.deliver(frame)
		}

	case stomp.CommandSubscribe:
		destination := frame.Headers.Get(stomp.HeaderDestination)
		if destination == "" {
			return c.fail("SUBSCRIBE requires a destination", frame)
		}
		id := frame.Headers.Get(stomp.HeaderID)
		if id == "" {
			if c.version >= stomp.V11 {
				return c.fail("SUBSCRIBE requires an id", frame)
			}
			id = destination
		}
		ack := frame.Headers.Get(stomp.HeaderAck)
		if ack == "" {
			ack = "auto"
		}
		c.broker.subscribe(&subscription{owner: c, version: c.version, id: id, destination: destination, ack: ack})

	case stomp.CommandUnsubscribe:
		id := frame.Headers.Get(stomp.HeaderID)
		if id == "" && c.version == stomp.V10 {
			id = frame.Headers.Get(stomp.HeaderDestination)
		}
		if !c.broker.unsubscribe(c, id) {
			return c.fail("no subscription "+strconv.Quote(id), frame)
		}

	case stomp.CommandBegin:
		tx := frame.Headers.Get(stomp.HeaderTransaction)
		if _, exists := c.transactions[tx]; tx == "" || exists {
			return c.fail("cannot begin transaction "+strconv.Quote(tx), frame)
		}
		c.transactions[tx] = nil

	case stomp.CommandCommit, stomp.CommandAbort:
		tx := frame.Headers.Get(stomp.HeaderTransaction)
		buffered, exists := c.transactions[tx]
		if !exists {
			return c.fail("unknown transaction "+strconv.Quote(tx), frame)
		}
		delete(c.transactions, tx)
		if frame.Command == stomp.CommandCommit {
			for _, send := range buffered {
				c.broker.deliver(send)
			}
		}

	case stomp.CommandAck:
		c.broker.acks.Add(1)

	case stomp.CommandNack:
		if c.version == stomp.V10 {
			return c.fail("NACK is not part of STOMP 1.0", frame)
		}
		c.broker.nacks.Add(1)

	case stomp.CommandDisconnect:
		c.receipt(frame)
		return false

	default:
		return c.fail("unexpected "+string(frame.Command)+" from client", frame)
	}

	c.receipt(frame)
	return true
}

func (c *connection) onConnect(frame *stomp.Frame) bool {
	if c.connected {
		return c.fail("already connected", frame)
	}

	accept, present := frame.Headers.Contains(stomp.HeaderAcceptVersion)
	version, ok := c.broker.negotiate(accept, present)
	if !ok {
		refusal := stomp.NewFrame(stomp.CommandError,
			stomp.HeaderVersion, c.broker.supportedVersions(),
			stomp.HeaderContentType, "text/plain",
			stomp.HeaderMessage, "unsupported protocol version",
		)
		refusal.Body = []byte("Supported protocol versions are " + c.broker.supportedVersions())
		c.reply(refusal)
		return false
	}

	config := c.broker.config
	if config.Login != "" || config.Passcode != "" {
		if frame.Headers.Get(stomp.HeaderLogin) != config.Login || frame.Headers.Get(stomp.HeaderPasscode) != config.Passcode {
			return c.fail("access refused", nil)
		}
	}

	var cx, cy time.Duration
	if value, ok := frame.Headers.Contains(stomp.HeaderHeartBeat); ok {
		var err error
		if cx, cy, err = stomp.ParseHeartBeat(value); err != nil {
			return c.fail(err.Error(), nil)
		}
	}
	outgoing, incoming := stomp.NegotiateHeartBeat(config.HeartBeatSend, config.HeartBeatReceive, cx, cy)

	c.connected = true
	c.version = version
	c.parser.SetVersion(version)
	c.incoming = incoming
	session := "session-" + strconv.FormatUint(c.broker.nextSession.Add(1), 10)
	c.log = c.log.WithField("session", session)

	connected := stomp.NewFrame(stomp.CommandConnected,
		stomp.HeaderSession, session,
		stomp.HeaderServer, "fakestomp/"+stomp.ClientVersion,
		stomp.HeaderHeartBeat, stomp.FormatHeartBeat(config.HeartBeatSend, config.HeartBeatReceive),
	)
	if present {
		connected.Headers.Set(stomp.HeaderVersion, version.String())
	}
	c.reply(connected)
	c.log.WithFields(logrus.Fields{"version": version, "outgoing": outgoing, "incoming": incoming}).Info("session established")

	if outgoing > 0 && !config.SilentHeartbeats {
		c.startHeartbeats(outgoing)
	}
	return true
}

func (c *connection) receipt(frame *stomp.Frame) {
	if id := frame.Headers.Get(stomp.HeaderReceipt); id != "" && frame.Command != stomp.CommandConnect {
		c.reply(stomp.NewFrame(stomp.CommandReceipt, stomp.HeaderReceiptID, id))
	}
}

// fail answers with ERROR and reports false so the connection closes.
func (c *connection) fail(message string, frame *stomp.Frame) bool {
	errorFrame := stomp.NewFrame(stomp.CommandError, stomp.HeaderMessage, message)
	if frame != nil {
		if id := frame.Headers.Get(stomp.HeaderReceipt); id != "" {
			errorFrame.Headers.Set(stomp.HeaderReceiptID, id)
		}
	}
	c.log.WithField("message", message).Warn("sending ERROR")
	c.reply(errorFrame)
	return false
}

func (c *connection) reply(frame *stomp.Frame) {
	data, err := stomp.Encode(frame, c.version)
	if err != nil {
		c.log.WithError(err).Warn("cannot encode reply")
		return
	}
	c.enqueue(data)
}

// enqueue is safe to call from any goroutine.
func (c *connection) enqueue(data []byte) bool {
	if !c.writer.send(data) {
		return false
	}
	c.broker.framesOut.Add(1)
	return true
}

func (c *connection) startHeartbeats(interval time.Duration) {
	c.heartbeatStop = make(chan struct{})
	c.heartbeatDone = make(chan struct{})
	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !c.writer.send([]byte{'\n'}) {
					return
				}
			}
		}
	}(c.heartbeatStop, c.heartbeatDone)
}

func (c *connection) stopHeartbeats() {
	if c.heartbeatStop == nil {
		return
	}
	close(c.heartbeatStop)
	<-c.heartbeatDone
	c.heartbeatStop = nil
}
