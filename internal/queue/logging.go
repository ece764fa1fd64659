package queue

import (
	"msgrelay/internal/models"
	"msgrelay/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Standard field names for queue log entries
const (
	LogFieldComponent      = "component"
	LogFieldMessageID      = "message_id"
	LogFieldConversationID = "conversation_id"
	LogFieldMessageType    = "message_type"
	LogFieldRetryCount     = "retry_count"
	LogFieldMaxRetries     = "max_retries"
	LogFieldQueueSize      = "queue_size"
	LogFieldDelay          = "delay"
	LogFieldOnline         = "online"
	LogFieldStorageKey     = "storage_key"
	LogFieldReason         = "reason"
	LogFieldDuration       = "duration_ms"
)

const component = "queue"

func messageFields(m models.QueuedMessage) logrus.Fields {
	return logrus.Fields{
		LogFieldMessageID:      privacy.MaskMessageID(m.ID),
		LogFieldConversationID: privacy.MaskConversationID(m.ConversationID),
		LogFieldMessageType:    m.Type,
		LogFieldRetryCount:     m.RetryCount,
		LogFieldMaxRetries:     m.MaxRetries,
	}
}
