package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogTransport writes messages to the log instead of sending them. Used when
// no mail provider is configured.
type LogTransport struct{}

func (LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	id := "log-" + uuid.NewString()
	slog.InfoContext(ctx, "email (not sent, no provider configured)",
		"message_id", id,
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
	)
	return id, nil
}
