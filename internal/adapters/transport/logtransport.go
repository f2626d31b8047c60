package transport

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
)

// LogFactory returns transports that log each message instead of sending it. It backs
// DELIVERY_TRANSPORT=log for local runs and staging.
type LogFactory struct {
	Logger *slog.Logger
}

var _ core.TransportFactory = (*LogFactory)(nil)

// ForSender implements core.TransportFactory.
func (f *LogFactory) ForSender(_ context.Context, tenant model.Tenant, senderEmail string) (core.Transport, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &logTransport{
		logger: logger.With("component", "log_transport", "tenant", tenant.Key(), "sender", senderEmail),
	}, nil
}

type logTransport struct {
	logger *slog.Logger
}

func (t *logTransport) Send(ctx context.Context, msg *model.Message) (string, error) {
	id := "log-" + uuid.NewString()
	t.logger.InfoContext(ctx, "message not sent (log transport)",
		"to", msg.To,
		"subject", msg.Subject,
		"message_id", msg.MessageID,
		"bytes", len(msg.Raw),
		"provider_id", id,
	)
	return id, nil
}
