// Package main implements fakestomp, a deterministic STOMP 1.0-1.2 responder
// for exercising clients without a real broker. It negotiates versions and
// heart-beats, fans SEND out to subscriptions, buffers transactions until
// COMMIT and answers receipts. An optional admin API reports broker counters.
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Thejuampi/stomp-client-go/internal/fakebroker"
	"github.com/Thejuampi/stomp-client-go/stomp"
)

type cli struct {
	Addr             string   `help:"Listen address." default:"127.0.0.1:61613"`
	Versions         []string `help:"Protocol versions to accept." default:"1.0,1.1,1.2" sep:","`
	HeartBeat        string   `help:"Broker heart-beat offer as '<send>,<receive>' in milliseconds." default:"0,0" name:"heart-beat"`
	SilentHeartbeats bool     `help:"Advertise heart-beats but never send them."`
	Login            string   `help:"Login required on CONNECT." env:"FAKESTOMP_LOGIN"`
	Passcode         string   `help:"Passcode required on CONNECT." env:"FAKESTOMP_PASSCODE"`
	OutDepth         int      `help:"Per-connection outbound queue depth." default:"65536"`
	Admin            string   `help:"Admin API listen address (e.g. ':8085')."`
	Debug            bool     `help:"Log every frame."`
}

func parseCLI(args []string) (*cli, error) {
	options := &cli{}
	parser, err := kong.New(options,
		kong.Name("fakestomp"),
		kong.Description("Deterministic STOMP responder for client testing."),
		kong.ShortUsageOnError(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create kong parser")
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, errors.Wrap(err, "unable to parse CLI options")
	}
	return options, nil
}

// brokerConfig validates the CLI options into a broker configuration.
func (options *cli) brokerConfig(logger logrus.FieldLogger) (fakebroker.Config, error) {
	config := fakebroker.Config{
		Addr:             options.Addr,
		SilentHeartbeats: options.SilentHeartbeats,
		Login:            options.Login,
		Passcode:         options.Passcode,
		OutDepth:         options.OutDepth,
		Logger:           logger,
	}

	for _, name := range options.Versions {
		version, ok := stomp.ParseVersion(name)
		if !ok {
			return config, errors.Errorf("unknown protocol version %q", name)
		}
		config.Versions = append(config.Versions, version)
	}

	send, receive, err := stomp.ParseHeartBeat(strings.TrimSpace(options.HeartBeat))
	if err != nil {
		return config, errors.Wrap(err, "invalid --heart-beat")
	}
	config.HeartBeatSend, config.HeartBeatReceive = send, receive
	return config, nil
}

func newLogger(debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&colorFormatter{TimestampFormat: "2006-01-02T15:04:05.000"})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func main() {
	options, err := parseCLI(os.Args[1:])
	if err != nil {
		logrus.Fatalf("fakestomp: %s", err)
	}

	logger := newLogger(options.Debug)
	config, err := options.brokerConfig(logger.WithField("pkg", "fakestomp"))
	if err != nil {
		logger.Fatalf("fakestomp: %s", err)
	}

	broker, err := fakebroker.Start(config)
	if err != nil {
		logger.Fatalf("fakestomp: listen %s failed: %s", options.Addr, err)
	}

	var admin *adminServer
	if options.Admin != "" {
		admin = startAdminServer(options.Admin, broker, logger)
	}

	logger.WithFields(logrus.Fields{
		"addr":       broker.Addr(),
		"versions":   strings.Join(options.Versions, ","),
		"heart-beat": options.HeartBeat,
		"silent":     options.SilentHeartbeats,
		"auth":       options.Login != "",
		"admin":      options.Admin,
	}).Infof("fakestomp %s ready", stomp.ClientVersion)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	received := <-signals
	logger.Infof("fakestomp: received %v, shutting down", received)

	if admin != nil {
		admin.shutdown(5 * time.Second)
	}
	if err := broker.Close(); err != nil {
		logger.WithError(err).Warn("fakestomp: listener close failed")
	}
	stats := broker.Stats()
	logger.WithFields(logrus.Fields{
		"connections": stats.ConnectionsAccepted,
		"frames_in":   stats.FramesIn,
		"frames_out":  stats.FramesOut,
		"delivered":   stats.MessagesDelivered,
	}).Info("fakestomp: stopped")
}
