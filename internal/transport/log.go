package transport

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/model"
)

// LogTransport writes messages to the log instead of sending them.
type LogTransport struct{}

// NewLogTransport creates a dry-run transport.
func NewLogTransport() *LogTransport { return &LogTransport{} }

func (*LogTransport) Name() string { return "log" }

func (*LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := validate(msg); err != nil {
		return "", model.Classify(model.ErrDelivery, err)
	}
	if err := ctx.Err(); err != nil {
		return "", model.Classify(model.ErrDelivery, err)
	}
	receipt := "log-" + uuid.NewString()
	zap.L().Info("transport: dry-run send",
		zap.String("session_id", msg.SessionID),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_chars", len(msg.Body)),
		zap.String("receipt", receipt),
	)
	return receipt, nil
}
