package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Thejuampi/stomp-client-go/stomp"
	"github.com/Thejuampi/stomp-client-go/stomp/stompmetrics"
)

// application is the state shared by the commands. Sessions run on the
// command goroutine; stop is the only value touched from elsewhere.
type application struct {
	settings settings
	log      *logrus.Logger
	printer  *printer
	stdin    io.Reader
	now      func() time.Time

	// onSubscribed runs once the broker confirms a subscription.
	onSubscribed func()

	stop     chan struct{}
	stopOnce sync.Once

	metrics       *stompmetrics.Metrics
	metricsServer *http.Server
	metricsDone   chan struct{}
}

func (app *application) requestStop() {
	app.stopOnce.Do(func() { close(app.stop) })
}

func (app *application) stopping() bool {
	select {
	case <-app.stop:
		return true
	default:
		return false
	}
}

// startMetrics serves the session metrics on a dedicated registry.
func (app *application) startMetrics() error {
	if app.settings.MetricsAddr == "" {
		return nil
	}
	listener, err := net.Listen("tcp", app.settings.MetricsAddr)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	app.metrics = stompmetrics.New(registry)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	app.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	app.metricsDone = make(chan struct{})

	go func() {
		defer close(app.metricsDone)
		app.log.Infof("metrics listening on %s", listener.Addr())
		if err := app.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.WithError(err).Error("metrics server failed")
		}
	}()
	return nil
}

func (app *application) close() {
	if app.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.metricsServer.Shutdown(ctx)
	<-app.metricsDone
}

func (app *application) newSession() *stomp.Session {
	options := []stomp.Option{stomp.WithLogger(app.log.WithField("pkg", "stomp"))}
	if app.metrics != nil {
		options = append(options, stomp.WithObserver(app.metrics))
	}
	return stomp.NewSession(app.settings.URI, options...)
}

// run connects session and drives it until it disconnects. A stop request
// is honoured on the next user tick with a receipted DISCONNECT.
func (app *application) run(session *stomp.Session) error {
	session.OnUser(func(session *stomp.Session, _ *stomp.UserEvent) {
		if !app.stopping() {
			return
		}
		switch session.State() {
		case stomp.StateConnected:
			_ = session.Disconnect(stomp.NewHeaders(stomp.HeaderReceipt, uuid.NewString()))
		case stomp.StateConnecting:
			_ = session.Close()
		}
	})

	if err := session.Dial(app.settings.URI, app.settings.connectHeaders()); err != nil {
		return err
	}
	defer session.Close()

	err := session.Run()
	if err == nil {
		app.log.Debug("disconnected")
	}
	return err
}
