package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thejuampi/stomp-client-go/internal/fakebroker"
	"github.com/Thejuampi/stomp-client-go/stomp"
)

// Admin REST API:
//
//	GET /admin/status    server status and uptime
//	GET /admin/stats     broker counters
//	GET /admin/received  commands received from clients, in order
type adminServer struct {
	server *http.Server
	done   chan struct{}
	log    logrus.FieldLogger
}

func newAdminMux(broker *fakebroker.Broker, started time.Time) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/status", func(w http.ResponseWriter, r *http.Request) {
		var memory runtime.MemStats
		runtime.ReadMemStats(&memory)
		jsonResponse(w, map[string]interface{}{
			"server":     "fakestomp",
			"version":    stomp.ClientVersion,
			"addr":       broker.Addr(),
			"uptime":     time.Since(started).Round(time.Millisecond).String(),
			"goroutines": runtime.NumGoroutine(),
			"heap_bytes": memory.HeapAlloc,
		})
	})
	mux.HandleFunc("/admin/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := broker.Stats()
		jsonResponse(w, map[string]interface{}{
			"connections_accepted": stats.ConnectionsAccepted,
			"connections_current":  stats.ConnectionsCurrent,
			"frames_in":            stats.FramesIn,
			"frames_out":           stats.FramesOut,
			"messages_delivered":   stats.MessagesDelivered,
			"acks":                 stats.Acks,
			"nacks":                stats.Nacks,
		})
	})
	mux.HandleFunc("/admin/received", func(w http.ResponseWriter, r *http.Request) {
		frames := broker.Received()
		commands := make([]string, len(frames))
		for index, frame := range frames {
			commands[index] = string(frame.Command)
		}
		jsonResponse(w, map[string]interface{}{"count": len(commands), "commands": commands})
	})
	return mux
}

func startAdminServer(addr string, broker *fakebroker.Broker, logger logrus.FieldLogger) *adminServer {
	admin := &adminServer{
		server: &http.Server{Addr: addr, Handler: newAdminMux(broker, time.Now()), ReadHeaderTimeout: 5 * time.Second},
		done:   make(chan struct{}),
		log:    logger,
	}
	go func() {
		defer close(admin.done)
		logger.Infof("fakestomp: admin API listening on %s", addr)
		if err := admin.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("fakestomp: admin API error")
		}
	}()
	return admin
}

func (admin *adminServer) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := admin.server.Shutdown(ctx); err != nil {
		admin.log.WithError(err).Warn("fakestomp: admin API shutdown")
	}
	<-admin.done
}

func jsonResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
