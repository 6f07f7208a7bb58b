// Package transport delivers accepted outreach emails.
package transport

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/config"
)

// Message is one outgoing email.
type Message struct {
	SessionID string
	To        string
	ToName    string
	Subject   string
	Body      string
}

// Transport sends a message and returns a receipt id. Failures are
// classified model.ErrDelivery. Callers must not retry a send.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
	Name() string
}

// New builds the transport named in cfg.Pipeline.Transport.
func New(cfg *config.Config) (Transport, error) {
	switch cfg.Pipeline.Transport {
	case "", "log":
		return NewLogTransport(), nil
	case "smtp":
		return NewSMTP(cfg.SMTP), nil
	}
	return nil, eris.Errorf("transport: unknown transport %q", cfg.Pipeline.Transport)
}

func validate(msg Message) error {
	if msg.To == "" {
		return eris.New("transport: message has no recipient")
	}
	if msg.Body == "" {
		return eris.New("transport: message has no body")
	}
	return nil
}
