package mailer

import (
	"context"
	"log/slog"

	"github.com/target/lms-access/internal/ports"
)

var _ ports.Mailer = (*Log)(nil)

// Log writes outgoing mail to the logger instead of sending it.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log mailer.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "mailer")}
}

func (m *Log) Send(ctx context.Context, msg ports.Message) error {
	m.logger.InfoContext(ctx, "email not sent (log mailer)",
		"to", msg.ToEmail,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}
