package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"library_lending/models"
)

// Dispatcher runs every send with its own timeout, detached from the caller's
// cancellation, and swallows failures after logging them.
type Dispatcher struct {
	next    Notifier
	timeout time.Duration
	log     logrus.FieldLogger

	// Observe, when set, sees the outcome of every send (metrics).
	Observe func(kind string, err error)
}

func NewDispatcher(next Notifier, timeout time.Duration, log logrus.FieldLogger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{next: next, timeout: timeout, log: log}
}

// Send reports whether the mail went out. kind labels the message for logs and metrics.
func (d *Dispatcher) Send(ctx context.Context, kind, toEmail, subject, body, recipientName string) bool {
	return d.run(ctx, kind, toEmail, func(ctx context.Context) error {
		return d.next.Notify(ctx, toEmail, subject, body, recipientName)
	})
}

func (d *Dispatcher) SendConfirmation(ctx context.Context, toEmail, recipientName string, o *models.Order, books []models.Book) bool {
	return d.run(ctx, "confirmation", toEmail, func(ctx context.Context) error {
		return d.next.NotifyOrderConfirmation(ctx, toEmail, recipientName, o, books)
	})
}

func (d *Dispatcher) run(ctx context.Context, kind, to string, send func(context.Context) error) bool {
	if to == "" {
		d.log.WithField("kind", kind).Warn("notification skipped: recipient has no email")
		d.observe(kind, errNoRecipient)
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	err := send(ctx)
	d.observe(kind, err)
	if err != nil {
		d.log.WithFields(logrus.Fields{"kind": kind, "to": to}).WithError(err).Error("notification failed")
		return false
	}
	return true
}

func (d *Dispatcher) observe(kind string, err error) {
	if d.Observe != nil {
		d.Observe(kind, err)
	}
}

type sendError string

func (e sendError) Error() string { return string(e) }

const errNoRecipient = sendError("no recipient")
