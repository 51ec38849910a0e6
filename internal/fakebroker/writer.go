package fakebroker

import (
	"bufio"
	"io"
	"sync"
)

// connWriter owns the socket writes of one connection. It drains every
// queued chunk before flushing so bursts coalesce into few syscalls.
type connWriter struct {
	queue     chan []byte
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newConnWriter(conn io.Writer, depth int) *connWriter {
	writer := &connWriter{
		queue: make(chan []byte, depth),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go writer.run(conn)
	return writer
}

func (writer *connWriter) run(conn io.Writer) {
	defer close(writer.done)
	buffered := bufio.NewWriter(conn)

	for {
		select {
		case data := <-writer.queue:
			_, _ = buffered.Write(data)
			writer.drain(buffered)
			_ = buffered.Flush()
		case <-writer.quit:
			writer.drain(buffered)
			_ = buffered.Flush()
			return
		}
	}
}

func (writer *connWriter) drain(buffered *bufio.Writer) {
	for {
		select {
		case data := <-writer.queue:
			_, _ = buffered.Write(data)
		default:
			return
		}
	}
}

// send enqueues data; it reports false once the writer is closing.
func (writer *connWriter) send(data []byte) bool {
	select {
	case <-writer.quit:
		return false
	default:
	}
	select {
	case writer.queue <- data:
		return true
	case <-writer.quit:
		return false
	}
}

// close flushes what is queued and waits for the goroutine to exit.
func (writer *connWriter) close() {
	writer.closeOnce.Do(func() { close(writer.quit) })
	<-writer.done
}
