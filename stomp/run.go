package stomp

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Run drives the session until it is disconnected (nil) or fails (the
// failure). It is the only blocking call: it waits on the transport up to
// the next heart-beat or user tick deadline, dispatches inbound frames in
// wire order and invokes callbacks on the calling goroutine.
func (session *Session) Run() error {
	if session.running {
		return NewError(InvalidStateError, "Run is already executing")
	}
	switch session.state {
	case StateDisconnected:
		return NewError(InvalidStateError, "Run requires a connected session")
	case StateFailed:
		return session.failure
	}

	session.running = true
	defer func() { session.running = false }()

	for session.active() {
		session.poll()
	}
	if session.state == StateFailed {
		return session.failure
	}
	return nil
}

func (session *Session) poll() {
	transport := session.transport
	if err := transport.SetReadDeadline(session.nextWake()); err != nil {
		session.fail(transportError("set read deadline", err))
		return
	}

	count, err := transport.Read(session.readBuffer)
	now := session.now()
	if count > 0 {
		session.receive(transport, session.readBuffer[:count], now)
	}
	if session.transport != transport || !session.active() {
		return
	}

	if err != nil && !isTimeout(err) {
		if errors.Is(err, io.EOF) && session.state == StateDisconnecting {
			session.finish()
			return
		}
		session.fail(transportError("read", err))
		return
	}
	session.tick(now)
}

// nextWake is the earliest of the next outgoing beat, the incoming expiry
// deadline and the next user tick.
func (session *Session) nextWake() time.Time {
	wake := session.lastUserTick.Add(session.heartbeat.UserInterval())
	if next, ok := session.heartbeat.NextSend(); ok && next.Before(wake) {
		wake = next
	}
	if deadline, ok := session.heartbeat.ExpiryDeadline(); ok && deadline.Before(wake) {
		wake = deadline
	}
	return wake
}

func (session *Session) receive(transport Transport, data []byte, now time.Time) {
	session.heartbeat.received(now)

	for {
		frames, pulses, err := session.parser.Feed(data)
		data = nil
		if pulses > 0 {
			session.observer.HeartbeatReceived(pulses)
			session.log.WithField("pulses", pulses).Debug("heart-beat received")
		}

		for _, frame := range frames {
			if session.transport != transport || !session.active() {
				return
			}
			session.observer.FrameReceived(frame.Command, len(frame.Body))
			session.log.WithFields(logrus.Fields{"command": frame.Command, "bytes": len(frame.Body)}).Debug("frame received")
			if handleErr := session.handleFrame(frame); handleErr != nil {
				session.fail(handleErr)
				return
			}
		}

		if session.transport != transport || !session.active() {
			return
		}
		if err != nil {
			session.fail(err)
			return
		}
		if len(frames) == 0 || frames[len(frames)-1].Command != CommandConnected || session.parser.Buffered() == 0 {
			return
		}
	}
}

func (session *Session) handleFrame(frame *Frame) error {
	switch frame.Command {
	case CommandConnected:
		if session.state != StateConnecting {
			return session.unexpected(frame)
		}
		return session.onConnected(frame)

	case CommandMessage:
		if session.state != StateConnected && session.state != StateDisconnecting {
			return session.unexpected(frame)
		}
		event := &MessageEvent{Headers: frame.Headers, Body: frame.Body}
		if subscription, ok := session.registry.subscriptionByID(frame.Headers.Get(HeaderSubscription)); ok {
			copied := *subscription
			event.Subscription = &copied
		}
		session.callbacks.invoke(session, event)
		return nil

	case CommandReceipt:
		if session.state != StateConnected && session.state != StateDisconnecting {
			return session.unexpected(frame)
		}
		id := frame.Headers.Get(HeaderReceiptID)
		if id == "" {
			return NewError(ProtocolViolationError, "RECEIPT frame without receipt-id")
		}
		pending, _ := session.registry.resolveReceipt(id)
		session.callbacks.invoke(session, &ReceiptEvent{Headers: frame.Headers, Pending: pending})
		session.completeDisconnect(id)
		return nil

	case CommandError:
		return session.onError(frame)
	}
	return session.unexpected(frame)
}

func (session *Session) onConnected(frame *Frame) error {
	serverVersion, present := frame.Headers.Contains(HeaderVersion)
	version, err := negotiateVersion(session.offered, serverVersion, present)
	if err != nil {
		return err
	}

	var sx, sy time.Duration
	if value, ok := frame.Headers.Contains(HeaderHeartBeat); ok {
		if sx, sy, err = ParseHeartBeat(value); err != nil {
			return err
		}
	}
	outgoing, incoming := NegotiateHeartBeat(session.offerOutgoing, session.offerIncoming, sx, sy)

	now := session.now()
	session.version = version
	session.parser.SetVersion(version)
	session.heartbeat = newHeartbeatState(outgoing, incoming, session.tolerance, now)
	session.lastUserTick = now
	session.setState(StateConnected)
	session.log.WithFields(logrus.Fields{
		"version":  version,
		"outgoing": outgoing,
		"incoming": incoming,
	}).Info("connected")

	session.callbacks.invoke(session, &ConnectedEvent{
		Headers:   frame.Headers,
		Version:   version,
		Heartbeat: session.heartbeat,
	})
	return nil
}

// onError delivers an ERROR frame. A receipt-id resolves the pending receipt
// as failed. ERROR in answer to CONNECT fails the session.
func (session *Session) onError(frame *Frame) error {
	event := &ErrorEvent{Headers: frame.Headers, Body: frame.Body}
	id := frame.Headers.Get(HeaderReceiptID)
	if id != "" {
		event.Failed, _ = session.registry.resolveReceipt(id)
	}
	session.log.WithField("message", event.Message()).Warn("broker sent ERROR")
	session.callbacks.invoke(session, event)

	if session.state == StateConnecting {
		if serverVersion, ok := frame.Headers.Contains(HeaderVersion); ok {
			if _, err := negotiateVersion(session.offered, serverVersion, true); err != nil {
				return err
			}
		}
		message := event.Message()
		if message == "" {
			message = "connection refused"
		}
		return NewError(ProtocolViolationError, "broker rejected CONNECT: "+message)
	}
	if id != "" {
		session.completeDisconnect(id)
	}
	return nil
}

func (session *Session) completeDisconnect(receiptID string) {
	if session.state == StateDisconnecting && receiptID == session.disconnectReceipt {
		session.finish()
	}
}

func (session *Session) unexpected(frame *Frame) error {
	return NewError(ProtocolViolationError, "unexpected "+string(frame.Command)+" frame while "+session.state.String())
}

// tick runs the timer work after each wait: outgoing beat, incoming expiry,
// then the user callback.
func (session *Session) tick(now time.Time) {
	if session.heartbeat.SendDue(now) {
		if err := session.writeHeartbeat(now); err != nil {
			return
		}
	}
	if session.heartbeat.Expired(now) {
		session.fail(NewError(HeartbeatTimeoutError, "no data from broker since "+
			session.heartbeat.LastReceived.Format(time.RFC3339Nano)))
		return
	}
	if now.Before(session.lastUserTick.Add(session.heartbeat.UserInterval())) {
		return
	}
	session.lastUserTick = now
	session.callbacks.invoke(session, &UserEvent{Now: now})
}
