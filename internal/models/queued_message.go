package models

import "time"

// MessageType is the payload kind of a queued message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
)

// IsValid reports whether t is one of the supported message types.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo:
		return true
	default:
		return false
	}
}

// QueuedMessage is an outbound message waiting for delivery. It stays queued until it is
// sent, its retries are exhausted, or it is removed explicitly.
type QueuedMessage struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	MediaURI       string      `json:"mediaUri,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	RetryCount     int         `json:"retryCount"`
	MaxRetries     int         `json:"maxRetries"`
}

// Exhausted reports whether the message has used up all of its retries.
func (m QueuedMessage) Exhausted() bool {
	return m.RetryCount >= m.MaxRetries
}

type DeadLetterReason string

const (
	DeadLetterRetriesExhausted DeadLetterReason = "retries_exhausted"
	DeadLetterRejected         DeadLetterReason = "rejected"
)

// DeadLetter describes a message that left the queue without being delivered.
type DeadLetter struct {
	Message   QueuedMessage    `json:"message"`
	Reason    DeadLetterReason `json:"reason"`
	LastError string           `json:"lastError,omitempty"`
	FailedAt  time.Time        `json:"failedAt"`
}
