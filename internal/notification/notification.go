package notification

import (
	"context"
	"log/slog"
)

const (
	// KindCompensationFailed signals a transfer left funds in limbo and needs
	// an operator.
	KindCompensationFailed = "compensation_failed"
	// KindTransferCompleted is sent to the receiving store after a credit.
	KindTransferCompleted = "transfer_completed"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
	// Attrs carries structured context such as transfer and account ids.
	Attrs map[string]string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. Compensation failures are
// logged at error level so log-based alerting picks them up.
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
	level := slog.LevelInfo
	if message.Kind == KindCompensationFailed {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body),
	}
	for k, v := range message.Attrs {
		attrs = append(attrs, slog.String(k, v))
	}
	n.logger.LogAttrs(ctx, level, "notification", attrs...)
	return nil
}
