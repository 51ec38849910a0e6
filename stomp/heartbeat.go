package stomp

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultUserInterval paces CallbackUser when no heart-beat is negotiated.
	DefaultUserInterval = time.Second

	// DefaultHeartbeatTolerance scales the grace window after a missed beat.
	DefaultHeartbeatTolerance = 1.0

	maxHeartbeatMillis = math.MaxInt64 / int64(time.Millisecond)
)

// ParseHeartBeat parses a "<x>,<y>" heart-beat header value in milliseconds.
func ParseHeartBeat(value string) (time.Duration, time.Duration, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return 0, 0, NewError(ProtocolViolationError, "invalid heart-beat "+strconv.Quote(value))
	}

	var durations [2]time.Duration
	for index, part := range parts {
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			return 0, 0, NewError(ProtocolViolationError, "invalid heart-beat "+strconv.Quote(value))
		}
		millis, err := strconv.ParseInt(part, 10, 64)
		if err != nil || millis > maxHeartbeatMillis {
			return 0, 0, NewError(ProtocolViolationError, "heart-beat out of range "+strconv.Quote(value))
		}
		durations[index] = time.Duration(millis) * time.Millisecond
	}
	return durations[0], durations[1], nil
}

// FormatHeartBeat renders a heart-beat header value.
func FormatHeartBeat(outgoing, incoming time.Duration) string {
	return strconv.FormatInt(outgoing.Milliseconds(), 10) + "," + strconv.FormatInt(incoming.Milliseconds(), 10)
}

// NegotiateHeartBeat applies the STOMP rule to the client offer (cx, cy) and
// the server answer (sx, sy). A zero on either side disables that direction.
func NegotiateHeartBeat(cx, cy, sx, sy time.Duration) (outgoing, incoming time.Duration) {
	if cx > 0 && sy > 0 {
		outgoing = max(cx, sy)
	}
	if cy > 0 && sx > 0 {
		incoming = max(cy, sx)
	}
	return outgoing, incoming
}

// HeartbeatState is the negotiated contract plus liveness timestamps.
type HeartbeatState struct {
	Outgoing     time.Duration
	Incoming     time.Duration
	LastSent     time.Time
	LastReceived time.Time

	tolerance float64
}

func newHeartbeatState(outgoing, incoming time.Duration, tolerance float64, now time.Time) HeartbeatState {
	if tolerance < 0 {
		tolerance = 0
	}
	return HeartbeatState{
		Outgoing:     outgoing,
		Incoming:     incoming,
		LastSent:     now,
		LastReceived: now,
		tolerance:    tolerance,
	}
}

// Enabled reports whether either direction is active.
func (state HeartbeatState) Enabled() bool {
	return state.Outgoing > 0 || state.Incoming > 0
}

// NextSend is the latest time the next outgoing beat may be written.
func (state HeartbeatState) NextSend() (time.Time, bool) {
	if state.Outgoing <= 0 {
		return time.Time{}, false
	}
	return state.LastSent.Add(state.Outgoing), true
}

// SendDue reports whether an outgoing beat is due at now.
func (state HeartbeatState) SendDue(now time.Time) bool {
	next, ok := state.NextSend()
	return ok && !now.Before(next)
}

// ExpiryDeadline is the moment the peer is declared dead if nothing arrives.
// There is none when incoming beats are off or the grace window does not fit
// in a time.Duration.
func (state HeartbeatState) ExpiryDeadline() (time.Time, bool) {
	if state.Incoming <= 0 {
		return time.Time{}, false
	}
	grace := float64(state.Incoming) * state.tolerance
	if grace >= float64(math.MaxInt64-state.Incoming) {
		return time.Time{}, false
	}
	return state.LastReceived.Add(state.Incoming + time.Duration(grace)), true
}

// Expired reports whether the incoming grace window has elapsed at now.
func (state HeartbeatState) Expired(now time.Time) bool {
	deadline, ok := state.ExpiryDeadline()
	return ok && !now.Before(deadline)
}

// UserInterval is the CallbackUser period: DefaultUserInterval without
// heart-beats, otherwise the smaller active negotiated interval.
func (state HeartbeatState) UserInterval() time.Duration {
	switch {
	case state.Outgoing > 0 && state.Incoming > 0:
		return min(state.Outgoing, state.Incoming)
	case state.Outgoing > 0:
		return state.Outgoing
	case state.Incoming > 0:
		return state.Incoming
	}
	return DefaultUserInterval
}

func (state *HeartbeatState) sent(now time.Time)     { state.LastSent = now }
func (state *HeartbeatState) received(now time.Time) { state.LastReceived = now }
