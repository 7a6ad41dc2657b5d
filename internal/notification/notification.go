package notification

//go:generate mockgen -source=notification.go -destination=mocks/mocks.go -package=mocks Sender

import (
	"context"
	"log/slog"

	"github.com/etiktak/etiktak_backend/internal/hashing"
	"github.com/etiktak/etiktak_backend/internal/logging"
)

// SMS is a text message handed to the SMS gateway.
type SMS struct {
	Handle      string
	Destination string
	Text        string
}

// Sender hands an SMS off for delivery. A nil error means the gateway took
// the message, not that it arrived; delivery failures come back later as
// delivery reports keyed by Handle.
type Sender interface {
	Send(ctx context.Context, sms SMS) error
}

// LoggerSender is a development sender that writes messages to the logger
// instead of a gateway.
type LoggerSender struct {
	logger *slog.Logger
}

// NewLoggerSender constructs a logging sender.
func NewLoggerSender(logger *slog.Logger) *LoggerSender {
	return &LoggerSender{logger: logger}
}

// Send logs the message at debug level. The destination only appears as a
// fingerprint.
func (s *LoggerSender) Send(ctx context.Context, sms SMS) error {
	if s == nil || s.logger == nil {
		return nil
	}
	s.logger.DebugContext(ctx, "sms handed off",
		slog.String("handle", sms.Handle),
		logging.Fingerprint("destination_hash", hashing.Fingerprint(sms.Destination)),
		slog.String("text", sms.Text),
	)
	return nil
}
