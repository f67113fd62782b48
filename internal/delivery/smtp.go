package delivery

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/jonathan/values-report/internal/config"
)

const smtpTimeout = 30 * time.Second

// SMTPTransport sends messages through an SMTP relay.
type SMTPTransport struct {
	cfg config.EmailConfig
}

// NewSMTPTransport returns a transport for the configured relay.
func NewSMTPTransport(cfg config.EmailConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// NewTransport returns an SMTPTransport when a host is configured, and a
// DisabledTransport otherwise.
func NewTransport(cfg config.EmailConfig) Transport {
	if !cfg.Enabled() {
		return DisabledTransport{}
	}
	return NewSMTPTransport(cfg)
}

// Send implements Transport.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	m, err := BuildMsg(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(t.cfg.Host, t.clientOptions()...)
	if err != nil {
		return &SendError{Message: "failed to create SMTP client", Cause: err}
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return &SendError{Message: fmt.Sprintf("failed to send via %s:%d", t.cfg.Host, t.cfg.Port), Cause: err}
	}
	return nil
}

func (t *SMTPTransport) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithTimeout(smtpTimeout)}
	if t.cfg.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if t.cfg.Port > 0 {
		opts = append(opts, mail.WithPort(t.cfg.Port))
	}
	if t.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.User),
			mail.WithPassword(t.cfg.Password),
		)
	}
	return opts
}

// BuildMsg converts a Message into a multipart go-mail message with the
// document attached.
func BuildMsg(msg *Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	var err error
	if msg.FromName != "" {
		err = m.FromFormat(msg.FromName, msg.From)
	} else {
		err = m.From(msg.From)
	}
	if err != nil {
		return nil, &ComposeError{Message: "invalid sender address", Cause: err}
	}
	if err := m.To(msg.To); err != nil {
		return nil, &ComposeError{Message: "invalid recipient address", Cause: err}
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	if msg.Attachment != nil {
		m.AttachReadSeeker(msg.Attachment.Filename, bytes.NewReader(msg.Attachment.Data),
			mail.WithFileContentType(mail.ContentType(msg.Attachment.ContentType)))
	}
	return m, nil
}
