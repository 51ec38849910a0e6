package stomp

// Observer receives protocol-level notifications from a session. It is called
// synchronously from the goroutine driving the session.
type Observer interface {
	FrameSent(command Command, wireSize int)
	FrameReceived(command Command, bodySize int)
	HeartbeatSent()
	HeartbeatReceived(pulses int)
	StateChanged(from, to State)
}

type noopObserver struct{}

func (noopObserver) FrameSent(Command, int)     {}
func (noopObserver) FrameReceived(Command, int) {}
func (noopObserver) HeartbeatSent()             {}
func (noopObserver) HeartbeatReceived(int)      {}
func (noopObserver) StateChanged(State, State)  {}
