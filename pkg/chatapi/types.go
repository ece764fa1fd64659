// Package chatapi delivers queued messages to the chat backend over HTTP or WebSocket.
package chatapi

import (
	"context"
	"time"

	"msgrelay/internal/models"
)

// Sender delivers one message. It matches queue.SendFunc through its method value.
type Sender interface {
	Send(ctx context.Context, msg models.QueuedMessage) error
}

// SendMessageRequest is the message body understood by the chat backend.
type SendMessageRequest struct {
	ClientID       string    `json:"clientId"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	MediaURI       string    `json:"mediaUri,omitempty"`
	SentAt         time.Time `json:"sentAt"`
}

type SendMessageResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// TokenPair holds the bearer credentials of the relay's backend account.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Frame is one client-to-server WebSocket message.
type Frame struct {
	Type    string             `json:"type"`
	Message SendMessageRequest `json:"message"`
}

// Ack is the server's reply to a Frame, matched by ClientID.
type Ack struct {
	ID        string `json:"id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

const frameTypeMessage = "message"

func newSendRequest(msg models.QueuedMessage) SendMessageRequest {
	return SendMessageRequest{
		ClientID:       msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		Type:           string(msg.Type),
		MediaURI:       msg.MediaURI,
		SentAt:         msg.Timestamp,
	}
}
