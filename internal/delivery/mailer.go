package delivery

import (
	"context"
)

// Transport sends a composed message.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// Mailer composes report emails and hands them to a Transport.
type Mailer struct {
	transport Transport
	from      string
	fromName  string
}

// NewMailer returns a Mailer sending as "fromName <from>".
func NewMailer(transport Transport, from, fromName string) *Mailer {
	return &Mailer{transport: transport, from: from, fromName: fromName}
}

// Deliver composes and sends the report email.
func (m *Mailer) Deliver(ctx context.Context, r Report) error {
	msg, err := Compose(r, m.from, m.fromName)
	if err != nil {
		return err
	}
	return m.transport.Send(ctx, msg)
}

// DisabledTransport fails every send with ErrNotConfigured. It stands in when
// no SMTP host is configured so reports still generate.
type DisabledTransport struct{}

// Send implements Transport.
func (DisabledTransport) Send(context.Context, *Message) error {
	return ErrNotConfigured
}
