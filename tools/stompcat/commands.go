package main

import (
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Thejuampi/stomp-client-go/stomp"
)

type subscribeCmd struct {
	Destination string `arg:"" help:"Destination to subscribe to."`
	Ack         string `help:"Acknowledgement mode." default:"auto" enum:"auto,client,client-individual"`
	Count       int    `help:"Exit after this many messages; 0 runs until interrupted."`
	Raw         bool   `help:"Print only message bodies."`
}

func (cmd *subscribeCmd) Run(app *application) error {
	session := app.newSession()
	subscribed := uuid.NewString()
	received := 0

	session.OnConnected(func(session *stomp.Session, event *stomp.ConnectedEvent) {
		app.log.WithFields(logrus.Fields{
			"version": event.Version,
			"server":  event.Headers.Get(stomp.HeaderServer),
		}).Info("connected")
		if _, err := session.Subscribe(stomp.NewHeaders(
			stomp.HeaderDestination, cmd.Destination,
			stomp.HeaderAck, cmd.Ack,
			stomp.HeaderReceipt, subscribed,
		)); err != nil {
			app.log.WithError(err).Error("subscribe failed")
			_ = session.Disconnect(nil)
		}
	})
	session.OnReceipt(func(_ *stomp.Session, event *stomp.ReceiptEvent) {
		if event.ReceiptID() != subscribed {
			return
		}
		app.log.WithField("destination", cmd.Destination).Info("subscribed")
		if app.onSubscribed != nil {
			app.onSubscribed()
		}
	})
	session.OnError(func(_ *stomp.Session, event *stomp.ErrorEvent) {
		app.log.WithField("message", event.Message()).Error("broker error")
	})
	session.OnMessage(func(session *stomp.Session, event *stomp.MessageEvent) {
		received++
		if cmd.Raw {
			app.printer.Print(string(event.Body))
		} else {
			app.printer.Message(received, event, app.now())
		}

		if session.State() != stomp.StateConnected {
			return
		}
		if cmd.Ack != "auto" {
			if err := session.Ack(ackHeaders(session.Version(), event)); err != nil {
				app.log.WithError(err).Warn("ack failed")
			}
		}
		if cmd.Count > 0 && received >= cmd.Count {
			_ = session.Disconnect(stomp.NewHeaders(stomp.HeaderReceipt, uuid.NewString()))
		}
	})

	return app.run(session)
}

// ackHeaders names a delivery the way each protocol version expects.
func ackHeaders(version stomp.Version, event *stomp.MessageEvent) stomp.Headers {
	switch version {
	case stomp.V10:
		return stomp.NewHeaders(stomp.HeaderMessageID, event.Headers.Get(stomp.HeaderMessageID))
	case stomp.V11:
		return stomp.NewHeaders(
			stomp.HeaderMessageID, event.Headers.Get(stomp.HeaderMessageID),
			stomp.HeaderSubscription, event.Headers.Get(stomp.HeaderSubscription),
		)
	}
	return stomp.NewHeaders(stomp.HeaderID, event.Headers.Get(stomp.HeaderAck))
}

type sendCmd struct {
	Destination string            `arg:"" help:"Destination to send to."`
	Body        string            `help:"Message body; read from stdin when empty."`
	ContentType string            `help:"content-type header." default:"text/plain"`
	Headers     map[string]string `help:"Extra header as key=value (repeatable)." short:"H"`
	Transaction bool              `help:"Send inside a transaction."`
}

func (cmd *sendCmd) Run(app *application) error {
	body := []byte(cmd.Body)
	if cmd.Body == "" {
		var err error
		if body, err = io.ReadAll(app.stdin); err != nil {
			return errors.Wrap(err, "read body")
		}
	}

	session := app.newSession()
	confirmed := uuid.NewString()
	var sendErr error

	session.OnConnected(func(session *stomp.Session, _ *stomp.ConnectedEvent) {
		if sendErr = cmd.publish(session, body, confirmed); sendErr != nil {
			_ = session.Disconnect(nil)
		}
	})
	session.OnReceipt(func(session *stomp.Session, event *stomp.ReceiptEvent) {
		if event.ReceiptID() != confirmed {
			return
		}
		app.log.WithFields(logrus.Fields{"destination": cmd.Destination, "bytes": len(body)}).Info("message sent")
		_ = session.Disconnect(nil)
	})
	session.OnError(func(_ *stomp.Session, event *stomp.ErrorEvent) {
		sendErr = errors.Errorf("broker error: %s", event.Message())
	})

	err := app.run(session)
	if sendErr != nil {
		return sendErr
	}
	return err
}

// publish sends body and asks for a receipt on the frame that makes it
// visible: the SEND itself or the COMMIT.
func (cmd *sendCmd) publish(session *stomp.Session, body []byte, receipt string) error {
	headers := stomp.NewHeaders(stomp.HeaderDestination, cmd.Destination)
	if cmd.ContentType != "" {
		headers.Set(stomp.HeaderContentType, cmd.ContentType)
	}
	keys := make([]string, 0, len(cmd.Headers))
	for key := range cmd.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		headers.Set(key, cmd.Headers[key])
	}

	if !cmd.Transaction {
		headers.Set(stomp.HeaderReceipt, receipt)
		return session.Send(headers, body)
	}

	transaction := uuid.NewString()
	if err := session.Begin(stomp.NewHeaders(stomp.HeaderTransaction, transaction)); err != nil {
		return err
	}
	headers.Set(stomp.HeaderTransaction, transaction)
	if err := session.Send(headers, body); err != nil {
		_ = session.Abort(stomp.NewHeaders(stomp.HeaderTransaction, transaction))
		return err
	}
	return session.Commit(stomp.NewHeaders(stomp.HeaderTransaction, transaction, stomp.HeaderReceipt, receipt))
}
