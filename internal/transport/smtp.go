package transport

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"

	"github.com/coldreach/coldreach/internal/config"
	"github.com/coldreach/coldreach/internal/model"
)

// SMTP sends mail through an SMTP relay, upgrading with STARTTLS when the
// server offers it.
type SMTP struct {
	cfg     config.SMTPConfig
	timeout time.Duration
	now     func() time.Time
}

// NewSMTP creates an SMTP transport.
func NewSMTP(cfg config.SMTPConfig) *SMTP {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTP{cfg: cfg, timeout: 30 * time.Second, now: time.Now}
}

func (*SMTP) Name() string { return "smtp" }

// Send delivers msg once. The receipt is the generated Message-ID.
func (s *SMTP) Send(ctx context.Context, msg Message) (string, error) {
	if err := validate(msg); err != nil {
		return "", model.Classify(model.ErrDelivery, err)
	}
	m, receipt, err := s.message(msg)
	if err != nil {
		return "", model.Classify(model.ErrDelivery, err)
	}
	client, err := s.client()
	if err != nil {
		return "", model.Classify(model.ErrDelivery, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", model.Classify(model.ErrDelivery, eris.Wrapf(err, "smtp: deliver to %s", msg.To))
	}
	return receipt, nil
}

func (s *SMTP) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "smtp: client for %s", s.cfg.Host)
	}
	return c, nil
}

// message builds the plain-text mail for msg and returns it with its
// Message-ID.
func (s *SMTP) message(msg Message) (*mail.Msg, string, error) {
	m := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := m.From(s.cfg.From); err != nil {
		return nil, "", eris.Wrapf(err, "smtp: parse from %q", s.cfg.From)
	}
	if err := m.AddToFormat(msg.ToName, msg.To); err != nil {
		return nil, "", eris.Wrapf(err, "smtp: parse to %q", msg.To)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(s.now().UTC())

	domain := "localhost"
	if from := m.GetFrom(); len(from) > 0 {
		domain = domainOf(from[0].Address)
	}
	id := uuid.NewString() + "@" + domain
	m.SetMessageIDWithValue(id)
	m.SetBodyString(mail.TypeTextPlain, strings.ReplaceAll(msg.Body, "\r\n", "\n"))
	return m, "<" + id + ">", nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return "localhost"
}
