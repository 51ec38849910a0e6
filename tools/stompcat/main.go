// Package main implements stompcat, a command-line STOMP client: subscribe
// prints deliveries from a destination and send publishes one message.
// Connection settings come from an optional TOML file overridden by flags.
package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Globals struct {
	Config        string `help:"TOML config file." short:"c" type:"path"`
	URI           string `help:"Broker URI (tcp, tcps, ws, wss)." env:"STOMPCAT_URI"`
	Login         string `help:"CONNECT login." env:"STOMPCAT_LOGIN"`
	Passcode      string `help:"CONNECT passcode." env:"STOMPCAT_PASSCODE"`
	Host          string `help:"CONNECT host header (defaults to the URI host)."`
	HeartBeat     string `help:"Heart-beat offer as '<send>,<receive>' in milliseconds." name:"heart-beat"`
	AcceptVersion string `help:"Comma separated versions to offer."`
	MetricsAddr   string `help:"Serve Prometheus metrics on this address while running."`
	Debug         bool   `help:"Log every frame."`
}

type cli struct {
	Globals

	Subscribe subscribeCmd `cmd:"" help:"Print messages delivered to a destination."`
	Send      sendCmd      `cmd:"" help:"Send one message to a destination."`
}

func parseCLI(args []string) (*cli, *kong.Context, error) {
	options := &cli{}
	parser, err := kong.New(options,
		kong.Name("stompcat"),
		kong.Description("Command-line STOMP 1.0-1.2 client."),
		kong.ShortUsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to create kong parser")
	}
	kongCtx, err := parser.Parse(args)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to parse CLI options")
	}
	return options, kongCtx, nil
}

// newApplication resolves settings from the config file and flags.
func newApplication(options *cli, stdin io.Reader, stderr io.Writer) (*application, error) {
	cfg, err := loadSettings(options.Config)
	if err != nil {
		return nil, err
	}
	if err := cfg.override(options.Globals); err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if options.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	return &application{
		settings: cfg,
		log:      logger,
		printer:  newPrinter(),
		stdin:    stdin,
		now:      time.Now,
		stop:     make(chan struct{}),
	}, nil
}

func main() {
	options, kongCtx, err := parseCLI(os.Args[1:])
	if err != nil {
		logrus.Fatalf("Unable to handle CLI input: %s", err)
	}

	app, err := newApplication(options, os.Stdin, os.Stderr)
	if err != nil {
		logrus.Fatalf("Unable to load settings: %s", err)
	}
	if err := app.startMetrics(); err != nil {
		logrus.Fatalf("Unable to serve metrics: %s", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		received := <-signals
		app.log.Infof("received %v, disconnecting", received)
		app.requestStop()
	}()

	err = kongCtx.Run(app)
	app.close()
	if err != nil {
		app.printer.Error(err.Error())
		os.Exit(1)
	}
}
