package notification

import (
	"context"
	"log/slog"
)

const (
	// KindPayoutResult is emitted when Daraja reports the outcome of a B2C
	// payout or balance query.
	KindPayoutResult = "payout_result"
	// KindPushPaymentResult is emitted when Daraja reports the outcome of an
	// STK push prompt.
	KindPushPaymentResult = "push_payment_result"
)

// Message describes a notification payload.
type Message struct {
	Kind      string
	Reference string
	Success   bool
	Body      string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification",
		"kind", message.Kind,
		"reference", message.Reference,
		"success", message.Success,
		"body", message.Body,
	)
	return nil
}
