package gateway

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS requires STARTTLS when true; otherwise it is used when offered.
	TLS bool
}

type Email struct {
	To      string
	Subject string
	HTML    string
}

type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) message(e Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, errors.Wrap(err, "invalid sender")
	}
	if err := msg.To(e.To); err != nil {
		return nil, errors.Wrap(err, "invalid recipient")
	}
	msg.Subject(e.Subject)
	msg.SetBodyString(mail.TypeTextHTML, e.HTML)
	return msg, nil
}

func (m *SMTPMailer) SendEmail(ctx context.Context, e Email) error {
	msg, err := m.message(e)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(15 * time.Second),
	}
	if m.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return errors.Wrap(err, "smtp client")
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrapf(err, "send email to %s", e.To)
	}
	return nil
}
