package testutil

import (
	"bytes"
	"io"
	"os"
	"sync"
	"time"
)

// Clock is a manually advanced clock.
type Clock struct {
	lock    sync.Mutex
	current time.Time
}

// NewClock returns a clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{current: start}
}

// Now returns the current fake time.
func (clock *Clock) Now() time.Time {
	clock.lock.Lock()
	defer clock.lock.Unlock()
	return clock.current
}

// Advance moves the clock forward by delta.
func (clock *Clock) Advance(delta time.Duration) {
	clock.lock.Lock()
	clock.current = clock.current.Add(delta)
	clock.lock.Unlock()
}

// Set moves the clock to at, if at is later than the current time.
func (clock *Clock) Set(at time.Time) {
	clock.lock.Lock()
	if at.After(clock.current) {
		clock.current = at
	}
	clock.lock.Unlock()
}

// Step is one scripted Read result. A step with neither Data nor Err is an
// idle wait until the read deadline.
type Step struct {
	Data []byte
	Err  error
	// Hook runs when the step is consumed, before its data is returned.
	Hook func()
}

// Transport is a scripted session transport driven by a Clock. Reads consume
// steps in order; once the script is exhausted every Read idles, advancing the
// clock to the read deadline and reporting os.ErrDeadlineExceeded, or returns
// io.EOF when EOFWhenDrained is set. Writes are captured.
type Transport struct {
	lock     sync.Mutex
	clock    *Clock
	steps    []Step
	deadline time.Time
	written  bytes.Buffer
	writes   [][]byte
	closed   bool

	// EOFWhenDrained ends the stream once the script is exhausted.
	EOFWhenDrained bool
	// WriteErr, when set, fails every Write.
	WriteErr error
	// OnWrite is called with each written chunk.
	OnWrite func(data []byte)
	// Deadlines records every deadline passed to SetReadDeadline.
	Deadlines []time.Time
}

// NewTransport returns a transport driven by clock.
func NewTransport(clock *Clock) *Transport {
	return &Transport{clock: clock}
}

// Push appends data as a single Read result.
func (transport *Transport) Push(data ...[]byte) {
	transport.lock.Lock()
	defer transport.lock.Unlock()
	for _, chunk := range data {
		transport.steps = append(transport.steps, Step{Data: append([]byte(nil), chunk...)})
	}
}

// PushString appends each string as a single Read result.
func (transport *Transport) PushString(data ...string) {
	for _, chunk := range data {
		transport.Push([]byte(chunk))
	}
}

// Idle appends count reads that time out at the deadline.
func (transport *Transport) Idle(count int) {
	transport.lock.Lock()
	defer transport.lock.Unlock()
	for i := 0; i < count; i++ {
		transport.steps = append(transport.steps, Step{})
	}
}

// PushStep appends a custom step.
func (transport *Transport) PushStep(step Step) {
	transport.lock.Lock()
	transport.steps = append(transport.steps, step)
	transport.lock.Unlock()
}

// SetReadDeadline implements the session transport.
func (transport *Transport) SetReadDeadline(deadline time.Time) error {
	transport.lock.Lock()
	transport.deadline = deadline
	transport.Deadlines = append(transport.Deadlines, deadline)
	transport.lock.Unlock()
	return nil
}

// Read implements io.Reader.
func (transport *Transport) Read(buffer []byte) (int, error) {
	transport.lock.Lock()
	if transport.closed {
		transport.lock.Unlock()
		return 0, io.ErrClosedPipe
	}
	if len(transport.steps) == 0 {
		deadline := transport.deadline
		eof := transport.EOFWhenDrained
		transport.lock.Unlock()
		if eof {
			return 0, io.EOF
		}
		transport.clock.Set(deadline)
		return 0, os.ErrDeadlineExceeded
	}

	step := transport.steps[0]
	if len(step.Data) > len(buffer) {
		transport.steps[0].Data = step.Data[len(buffer):]
		step.Data = step.Data[:len(buffer)]
		step.Hook = nil
		step.Err = nil
	} else {
		transport.steps = transport.steps[1:]
	}
	deadline := transport.deadline
	transport.lock.Unlock()

	if step.Hook != nil {
		step.Hook()
	}
	if len(step.Data) == 0 && step.Err == nil {
		transport.clock.Set(deadline)
		return 0, os.ErrDeadlineExceeded
	}
	count := copy(buffer, step.Data)
	return count, step.Err
}

// Write implements io.Writer.
func (transport *Transport) Write(data []byte) (int, error) {
	transport.lock.Lock()
	if transport.closed {
		transport.lock.Unlock()
		return 0, io.ErrClosedPipe
	}
	if transport.WriteErr != nil {
		err := transport.WriteErr
		transport.lock.Unlock()
		return 0, err
	}
	transport.written.Write(data)
	transport.writes = append(transport.writes, append([]byte(nil), data...))
	onWrite := transport.OnWrite
	transport.lock.Unlock()

	if onWrite != nil {
		onWrite(data)
	}
	return len(data), nil
}

// Close implements io.Closer.
func (transport *Transport) Close() error {
	transport.lock.Lock()
	transport.closed = true
	transport.lock.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (transport *Transport) Closed() bool {
	transport.lock.Lock()
	defer transport.lock.Unlock()
	return transport.closed
}

// Written returns everything written so far.
func (transport *Transport) Written() []byte {
	transport.lock.Lock()
	defer transport.lock.Unlock()
	return append([]byte(nil), transport.written.Bytes()...)
}

// Writes returns each Write call's data.
func (transport *Transport) Writes() [][]byte {
	transport.lock.Lock()
	defer transport.lock.Unlock()
	result := make([][]byte, len(transport.writes))
	copy(result, transport.writes)
	return result
}

// ResetWritten discards captured writes.
func (transport *Transport) ResetWritten() {
	transport.lock.Lock()
	transport.written.Reset()
	transport.writes = nil
	transport.lock.Unlock()
}
