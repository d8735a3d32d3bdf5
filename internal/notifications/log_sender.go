package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogSender writes notifications to the log instead of sending them. It is
// used when no SES sender address is configured.
type LogSender struct {
	log *logrus.Entry
}

func NewLogSender(log *logrus.Entry) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, template string, to Recipient, payload map[string]any) (string, error) {
	id := uuid.NewString()
	s.log.WithFields(logrus.Fields{
		"template":   template,
		"role":       to.Role,
		"recipient":  to.Email,
		"request_id": payload["request_id"],
		"message_id": id,
	}).Info("notification")
	return id, nil
}
