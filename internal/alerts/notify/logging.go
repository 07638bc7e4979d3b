package notify

import (
	"context"
	"errors"
	"log"
	"strings"
)

// LoggingTransport logs alert bodies instead of delivering them.
type LoggingTransport struct {
	logger *log.Logger
}

// NewLoggingTransport constructs a logging transport.
func NewLoggingTransport(logger *log.Logger) *LoggingTransport {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingTransport{logger: logger}
}

// Send logs the alert.
func (t *LoggingTransport) Send(ctx context.Context, recipient, body string) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}
	if t == nil {
		return Ack{}, PermanentError(errors.New("logging transport: nil transport"))
	}
	t.logger.Printf("alert notification: recipient=%s body=%q", recipient, strings.TrimSpace(body))
	return Ack{MessageID: "log"}, nil
}
