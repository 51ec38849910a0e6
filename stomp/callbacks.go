package stomp

import "time"

// CallbackKind selects the event a callback is registered for.
type CallbackKind int

const (
	CallbackConnected CallbackKind = iota
	CallbackError
	CallbackMessage
	CallbackReceipt
	CallbackUser

	callbackKinds
)

func (kind CallbackKind) String() string {
	switch kind {
	case CallbackConnected:
		return "connected"
	case CallbackError:
		return "error"
	case CallbackMessage:
		return "message"
	case CallbackReceipt:
		return "receipt"
	case CallbackUser:
		return "user"
	}
	return "unknown"
}

// Event is the typed payload handed to a callback.
type Event interface {
	Kind() CallbackKind
}

// Callback receives the session, the event and the session context given to
// NewSession. Callbacks run on the goroutine that called Run and must not
// block indefinitely.
type Callback func(session *Session, event Event, sessionCtx any)

// ConnectedEvent is delivered when the broker accepts CONNECT.
type ConnectedEvent struct {
	Headers   Headers
	Version   Version
	Heartbeat HeartbeatState
}

// MessageEvent is delivered for each MESSAGE frame. Subscription is nil when
// the frame names no subscription known to this session.
type MessageEvent struct {
	Headers      Headers
	Body         []byte
	Subscription *Subscription
}

// ReceiptEvent is delivered for each RECEIPT frame. Pending is nil when the
// receipt id was not requested by this session.
type ReceiptEvent struct {
	Headers Headers
	Pending *PendingReceipt
}

// ErrorEvent is delivered for each ERROR frame. When the frame carries a
// receipt-id matching a pending receipt, Failed holds that receipt.
type ErrorEvent struct {
	Headers Headers
	Body    []byte
	Failed  *PendingReceipt
}

// UserEvent is the periodic user tick.
type UserEvent struct {
	Now time.Time
}

func (*ConnectedEvent) Kind() CallbackKind { return CallbackConnected }
func (*MessageEvent) Kind() CallbackKind   { return CallbackMessage }
func (*ReceiptEvent) Kind() CallbackKind   { return CallbackReceipt }
func (*ErrorEvent) Kind() CallbackKind     { return CallbackError }
func (*UserEvent) Kind() CallbackKind      { return CallbackUser }

// Message returns the "message" header of an ERROR frame.
func (event *ErrorEvent) Message() string { return event.Headers.Get(HeaderMessage) }

// Destination returns the destination header of the message.
func (event *MessageEvent) Destination() string { return event.Headers.Get(HeaderDestination) }

// ReceiptID returns the receipt-id header.
func (event *ReceiptEvent) ReceiptID() string { return event.Headers.Get(HeaderReceiptID) }

// callbackTable holds at most one callback per kind.
type callbackTable [callbackKinds]Callback

func (table *callbackTable) set(kind CallbackKind, callback Callback) bool {
	if kind < 0 || kind >= callbackKinds {
		return false
	}
	table[kind] = callback
	return true
}

func (table *callbackTable) invoke(session *Session, event Event) {
	kind := event.Kind()
	if kind < 0 || kind >= callbackKinds {
		return
	}
	if callback := table[kind]; callback != nil {
		callback(session, event, session.sessionCtx)
	}
}

// SetCallback registers callback for kind, replacing any previous one.
func (session *Session) SetCallback(kind CallbackKind, callback Callback) {
	session.callbacks.set(kind, callback)
}

// DeleteCallback removes the callback registered for kind.
func (session *Session) DeleteCallback(kind CallbackKind) {
	session.callbacks.set(kind, nil)
}

// OnConnected registers a typed CONNECTED callback.
func (session *Session) OnConnected(handler func(*Session, *ConnectedEvent)) {
	session.SetCallback(CallbackConnected, func(session *Session, event Event, _ any) {
		handler(session, event.(*ConnectedEvent))
	})
}

// OnMessage registers a typed MESSAGE callback.
func (session *Session) OnMessage(handler func(*Session, *MessageEvent)) {
	session.SetCallback(CallbackMessage, func(session *Session, event Event, _ any) {
		handler(session, event.(*MessageEvent))
	})
}

// OnReceipt registers a typed RECEIPT callback.
func (session *Session) OnReceipt(handler func(*Session, *ReceiptEvent)) {
	session.SetCallback(CallbackReceipt, func(session *Session, event Event, _ any) {
		handler(session, event.(*ReceiptEvent))
	})
}

// OnError registers a typed ERROR callback.
func (session *Session) OnError(handler func(*Session, *ErrorEvent)) {
	session.SetCallback(CallbackError, func(session *Session, event Event, _ any) {
		handler(session, event.(*ErrorEvent))
	})
}

// OnUser registers a typed user tick callback.
func (session *Session) OnUser(handler func(*Session, *UserEvent)) {
	session.SetCallback(CallbackUser, func(session *Session, event Event, _ any) {
		handler(session, event.(*UserEvent))
	})
}
