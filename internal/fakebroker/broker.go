// Package fakebroker is a deterministic, in-process STOMP responder for
// integration tests and the fakestomp tool. It negotiates versions and
// heart-beats, fans SEND out to exact-match subscriptions, buffers
// transactional sends until COMMIT and answers receipts.
package fakebroker

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thejuampi/stomp-client-go/stomp"
)

// Config controls broker behavior. The zero value listens on a random
// loopback port and speaks every version without heart-beats.
type Config struct {
	Addr string

	// Versions the broker accepts; empty means 1.0, 1.1 and 1.2.
	Versions []stomp.Version

	// HeartBeatSend and HeartBeatReceive are the broker's (sx, sy) offer.
	HeartBeatSend    time.Duration
	HeartBeatReceive time.Duration

	// SilentHeartbeats advertises HeartBeatSend but never sends pulses.
	SilentHeartbeats bool

	// Login and Passcode, when set, are required on CONNECT.
	Login    string
	Passcode string

	// OutDepth is the per-connection outbound queue depth.
	OutDepth int

	Logger logrus.FieldLogger
}

// Stats are broker-wide counters.
type Stats struct {
	ConnectionsAccepted uint64
	ConnectionsCurrent  int64
	FramesIn            uint64
	FramesOut           uint64
	MessagesDelivered   uint64
	Acks                uint64
	Nacks               uint64
}

// Broker is a running fake STOMP broker.
type Broker struct {
	config   Config
	listener net.Listener
	log      logrus.FieldLogger

	lock          sync.Mutex
	closed        bool
	connections   map[*connection]struct{}
	subscriptions map[string][]*subscription
	received      []*stomp.Frame

	nextSession   atomic.Uint64
	nextMessageID atomic.Uint64

	connectionsAccepted atomic.Uint64
	connectionsCurrent  atomic.Int64
	framesIn            atomic.Uint64
	framesOut           atomic.Uint64
	messagesDelivered   atomic.Uint64
	acks                atomic.Uint64
	nacks               atomic.Uint64

	handlers sync.WaitGroup
}

type subscription struct {
	owner       *connection
	version     stomp.Version
	id          string
	destination string
	ack         string
}

// Start listens on config.Addr and serves connections until Close.
func Start(config Config) (*Broker, error) {
	if config.Addr == "" {
		config.Addr = "127.0.0.1:0"
	}
	if len(config.Versions) == 0 {
		config.Versions = []stomp.Version{stomp.V10, stomp.V11, stomp.V12}
	}
	if config.OutDepth <= 0 {
		config.OutDepth = 1024
	}
	if config.Logger == nil {
		config.Logger = logrus.WithField("pkg", "fakebroker")
	}

	listener, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, err
	}

	broker := &Broker{
		config:        config,
		listener:      listener,
		log:           config.Logger,
		connections:   make(map[*connection]struct{}),
		subscriptions: make(map[string][]*subscription),
	}
	broker.handlers.Add(1)
	go broker.accept()
	broker.log.WithField("addr", listener.Addr().String()).Info("fake broker listening")
	return broker, nil
}

// Addr is the listen address.
func (broker *Broker) Addr() string { return broker.listener.Addr().String() }

// URI is a tcp:// broker URI for stomp.Session.Dial.
func (broker *Broker) URI() string { return "tcp://" + broker.Addr() }

func (broker *Broker) accept() {
	defer broker.handlers.Done()
	for {
		conn, err := broker.listener.Accept()
		if err != nil {
			if isClosedError(err) {
				return
			}
			broker.log.WithError(err).Warn("accept failed")
			continue
		}

		broker.lock.Lock()
		if broker.closed {
			broker.lock.Unlock()
			_ = conn.Close()
			return
		}
		connection := newConnection(broker, conn)
		broker.connections[connection] = struct{}{}
		broker.handlers.Add(1)
		broker.lock.Unlock()

		broker.connectionsAccepted.Add(1)
		broker.connectionsCurrent.Add(1)
		go connection.serve()
	}
}

// Close stops the listener, drops every connection and waits for all
// connection goroutines to exit.
func (broker *Broker) Close() error {
	broker.lock.Lock()
	if broker.closed {
		broker.lock.Unlock()
		return nil
	}
	broker.closed = true
	err := broker.listener.Close()
	for connection := range broker.connections {
		_ = connection.conn.Close()
	}
	broker.lock.Unlock()

	broker.handlers.Wait()
	return err
}

// Stats returns a snapshot of the broker counters.
func (broker *Broker) Stats() Stats {
	return Stats{
		ConnectionsAccepted: broker.connectionsAccepted.Load(),
		ConnectionsCurrent:  broker.connectionsCurrent.Load(),
		FramesIn:            broker.framesIn.Load(),
		FramesOut:           broker.framesOut.Load(),
		MessagesDelivered:   broker.messagesDelivered.Load(),
		Acks:                broker.acks.Load(),
		Nacks:               broker.nacks.Load(),
	}
}

// Received returns copies of every frame received from clients, in order.
func (broker *Broker) Received() []*stomp.Frame {
	broker.lock.Lock()
	defer broker.lock.Unlock()
	result := make([]*stomp.Frame, len(broker.received))
	for index, frame := range broker.received {
		result[index] = frame.Clone()
	}
	return result
}

// Publish delivers a message to every subscription on destination as if a
// client had sent it. It returns the number of deliveries.
func (broker *Broker) Publish(destination string, headers stomp.Headers, body []byte) int {
	frame := &stomp.Frame{Command: stomp.CommandSend, Headers: headers.Clone(), Body: body}
	frame.Headers.Set(stomp.HeaderDestination, destination)
	return broker.deliver(frame)
}

func (broker *Broker) record(frame *stomp.Frame) {
	broker.framesIn.Add(1)
	broker.lock.Lock()
	broker.received = append(broker.received, frame)
	broker.lock.Unlock()
}

func (broker *Broker) subscribe(sub *subscription) {
	broker.lock.Lock()
	broker.subscriptions[sub.destination] = append(broker.subscriptions[sub.destination], sub)
	broker.lock.Unlock()
}

func (broker *Broker) unsubscribe(owner *connection, id string) bool {
	broker.lock.Lock()
	defer broker.lock.Unlock()
	for destination, subs := range broker.subscriptions {
		for index, sub := range subs {
			if sub.owner != owner || sub.id != id {
				continue
			}
			broker.subscriptions[destination] = append(subs[:index:index], subs[index+1:]...)
			if len(broker.subscriptions[destination]) == 0 {
				delete(broker.subscriptions, destination)
			}
			return true
		}
	}
	return false
}

func (broker *Broker) forget(owner *connection) {
	broker.lock.Lock()
	defer broker.lock.Unlock()
	delete(broker.connections, owner)
	for destination, subs := range broker.subscriptions {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.owner != owner {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			delete(broker.subscriptions, destination)
		} else {
			broker.subscriptions[destination] = kept
		}
	}
}

// deliver fans a SEND frame out as MESSAGE frames.
func (broker *Broker) deliver(send *stomp.Frame) int {
	destination := send.Headers.Get(stomp.HeaderDestination)

	broker.lock.Lock()
	targets := append([]*subscription(nil), broker.subscriptions[destination]...)
	broker.lock.Unlock()

	messageID := "m-" + strconv.FormatUint(broker.nextMessageID.Add(1), 10)
	for _, sub := range targets {
		message := stomp.NewFrame(stomp.CommandMessage,
			stomp.HeaderDestination, destination,
			stomp.HeaderMessageID, messageID,
			stomp.HeaderSubscription, sub.id,
		)
		if sub.ack != "auto" && sub.version >= stomp.V12 {
			message.Headers.Set(stomp.HeaderAck, messageID)
		}
		for _, header := range send.Headers {
			switch header.Key {
			case stomp.HeaderDestination, stomp.HeaderReceipt, stomp.HeaderTransaction, stomp.HeaderContentLength:
				continue
			}
			if _, exists := message.Headers.Contains(header.Key); !exists {
				message.Headers.Add(header.Key, header.Value)
			}
		}
		message.Body = send.Body
		data, err := stomp.Encode(message, sub.version)
		if err != nil {
			broker.log.WithError(err).Warn("cannot encode MESSAGE")
			continue
		}
		if sub.owner.enqueue(data) {
			broker.messagesDelivered.Add(1)
		}
	}
	return len(targets)
}

// negotiate picks the highest version both sides support.
func (broker *Broker) negotiate(acceptVersion string, present bool) (stomp.Version, bool) {
	if !present {
		acceptVersion = "1.0"
	}
	var best stomp.Version
	for _, token := range strings.Split(acceptVersion, ",") {
		version, ok := stomp.ParseVersion(token)
		if !ok || version <= best {
			continue
		}
		for _, supported := range broker.config.Versions {
			if supported == version {
				best = version
			}
		}
	}
	return best, best != 0
}

func (broker *Broker) supportedVersions() string {
	names := make([]string, len(broker.config.Versions))
	for index, version := range broker.config.Versions {
		names[index] = version.String()
	}
	return strings.Join(names, ",")
}

func isClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "use of closed network connection") ||
		strings.Contains(message, "connection reset") ||
		strings.Contains(message, "broken pipe")
}
