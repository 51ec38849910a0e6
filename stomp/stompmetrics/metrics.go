// Package stompmetrics exports session activity as Prometheus metrics.
package stompmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Thejuampi/stomp-client-go/stomp"
)

const (
	FramesSent         = "stomp_frames_sent_total"
	BytesSent          = "stomp_bytes_sent_total"
	FramesReceived     = "stomp_frames_received_total"
	BodyBytesReceived  = "stomp_body_bytes_received_total"
	HeartbeatsSent     = "stomp_heartbeats_sent_total"
	HeartbeatsReceived = "stomp_heartbeats_received_total"
	SessionState       = "stomp_session_state"
	SessionFailures    = "stomp_session_failures_total"
)

var states = []stomp.State{
	stomp.StateDisconnected,
	stomp.StateConnecting,
	stomp.StateConnected,
	stomp.StateDisconnecting,
	stomp.StateFailed,
}

// Metrics implements stomp.Observer. Install it with stomp.WithObserver.
type Metrics struct {
	framesSent         *prometheus.CounterVec
	bytesSent          prometheus.Counter
	framesReceived     *prometheus.CounterVec
	bodyBytesReceived  prometheus.Counter
	heartbeatsSent     prometheus.Counter
	heartbeatsReceived prometheus.Counter
	sessionState       *prometheus.GaugeVec
	sessionFailures    prometheus.Counter
}

// New registers the session metrics with registerer. A nil registerer uses
// prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	metrics := &Metrics{
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: FramesSent,
			Help: "Frames written to the broker by command",
		}, []string{"command"}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: BytesSent,
			Help: "Encoded frame bytes written to the broker",
		}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: FramesReceived,
			Help: "Frames received from the broker by command",
		}, []string{"command"}),
		bodyBytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: BodyBytesReceived,
			Help: "Body bytes of frames received from the broker",
		}),
		heartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: HeartbeatsSent,
			Help: "Heart-beat pulses written to the broker",
		}),
		heartbeatsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: HeartbeatsReceived,
			Help: "Heart-beat pulses received from the broker",
		}),
		sessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: SessionState,
			Help: "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
		sessionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: SessionFailures,
			Help: "Sessions that ended in the failed state",
		}),
	}

	for _, state := range states {
		metrics.sessionState.WithLabelValues(state.String()).Set(0)
	}
	metrics.sessionState.WithLabelValues(stomp.StateDisconnected.String()).Set(1)
	return metrics
}

func (metrics *Metrics) FrameSent(command stomp.Command, wireSize int) {
	metrics.framesSent.WithLabelValues(string(command)).Inc()
	metrics.bytesSent.Add(float64(wireSize))
}

func (metrics *Metrics) FrameReceived(command stomp.Command, bodySize int) {
	metrics.framesReceived.WithLabelValues(string(command)).Inc()
	metrics.bodyBytesReceived.Add(float64(bodySize))
}

func (metrics *Metrics) HeartbeatSent() {
	metrics.heartbeatsSent.Inc()
}

func (metrics *Metrics) HeartbeatReceived(pulses int) {
	metrics.heartbeatsReceived.Add(float64(pulses))
}

func (metrics *Metrics) StateChanged(from, to stomp.State) {
	metrics.sessionState.WithLabelValues(from.String()).Set(0)
	metrics.sessionState.WithLabelValues(to.String()).Set(1)
	if to == stomp.StateFailed {
		metrics.sessionFailures.Inc()
	}
}

var _ stomp.Observer = (*Metrics)(nil)
