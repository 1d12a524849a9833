package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"library_lending/models"
)

type SMTPConfig struct {
	Host     string // SMTP_HOST, e.g. smtp.gmail.com
	Port     string // SMTP_PORT, e.g. 587
	Username string // SMTP_USERNAME
	Password string // SMTP_PASSWORD, app password or smtp password
	From     string // SMTP_FROM (为空时回退 Username)
	AppName  string // APP_NAME
}

func (c SMTPConfig) configured() bool {
	return c.Host != "" && (c.Username != "" || c.From != "")
}

func (c SMTPConfig) fromAddr() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

// New picks the SMTP mailer when SMTP is configured, otherwise the dev sink that only logs.
func New(conf SMTPConfig, log logrus.FieldLogger) Notifier {
	if conf.AppName == "" {
		conf.AppName = "Library Lending"
	}
	if conf.Port == "" {
		conf.Port = "587"
	}
	if !conf.configured() {
		return &DevLog{AppName: conf.AppName, Log: log}
	}
	return &Mailer{conf: conf}
}

// Mailer sends through an SMTP relay.
type Mailer struct {
	conf SMTPConfig
}

func (m *Mailer) Notify(ctx context.Context, toEmail, subject, body, recipientName string) error {
	msg := buildMIMEWithFromName(m.conf.AppName, m.conf.fromAddr(), toEmail, subject,
		"text/plain", plainText(m.conf.AppName, recipientName, body))
	return m.send(ctx, toEmail, msg)
}

func (m *Mailer) NotifyOrderConfirmation(ctx context.Context, toEmail, recipientName string, o *models.Order, books []models.Book) error {
	subject := fmt.Sprintf("%s - %s", SubjectConfirmation, m.conf.AppName)
	msg := buildMIMEWithFromName(m.conf.AppName, m.conf.fromAddr(), toEmail, subject,
		"text/html", confirmationHTML(m.conf.AppName, recipientName, o, books))
	return m.send(ctx, toEmail, msg)
}

// send is smtp.SendMail with the dial and the whole exchange bound to ctx.
func (m *Mailer) send(ctx context.Context, to, msg string) error {
	addr := net.JoinHostPort(m.conf.Host, m.conf.Port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(DefaultTimeout))
	}

	c, err := smtp.NewClient(conn, m.conf.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.conf.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if m.conf.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", m.conf.Username, m.conf.Password, m.conf.Host)
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(m.conf.fromAddr()); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMIMEWithFromName(fromName, fromAddr, to, subject, contentType, body string) string {
	headers := []string{
		fmt.Sprintf("From: %s <%s>", fromName, fromAddr),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: %s; charset=UTF-8", contentType),
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}

// DevLog is used when SMTP is not configured: 打印即可，不报错
type DevLog struct {
	AppName string
	Log     logrus.FieldLogger
}

func (d *DevLog) Notify(_ context.Context, toEmail, subject, body, recipientName string) error {
	d.Log.WithFields(logrus.Fields{"to": toEmail, "subject": subject}).
		Infof("[DEV] mail for %s: %s", recipientName, body)
	return nil
}

func (d *DevLog) NotifyOrderConfirmation(_ context.Context, toEmail, recipientName string, o *models.Order, books []models.Book) error {
	d.Log.WithFields(logrus.Fields{"to": toEmail, "subject": SubjectConfirmation, "order_id": o.ID}).
		Infof("[DEV] order confirmation for %s: %s, due %s", recipientName, strings.Join(titles(books), ", "), o.DueDate.Format(dateLayout))
	return nil
}
