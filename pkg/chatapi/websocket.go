package chatapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"msgrelay/internal/errors"
	"msgrelay/internal/models"
	"msgrelay/internal/privacy"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// WebSocketClient keeps one connection to the chat backend and sends a frame per message,
// waiting for the matching ack. The connection is dialled lazily and dropped on any I/O
// error so the next send redials.
type WebSocketClient struct {
	url         string
	accessToken string
	logger      *logrus.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebSocketClient(url, accessToken string, logger *logrus.Logger) *WebSocketClient {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &WebSocketClient{
		url:         url,
		accessToken: accessToken,
		logger:      logger,
	}
}

func (c *WebSocketClient) Send(ctx context.Context, msg models.QueuedMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}

	frame := Frame{Type: frameTypeMessage, Message: newSendRequest(msg)}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		c.reset()
		return errors.WrapRetryable(err, errors.ErrCodeTransport, "failed to write message frame").
			WithContext("message_id", msg.ID)
	}

	for {
		var ack Ack
		if err := wsjson.Read(ctx, conn, &ack); err != nil {
			c.reset()
			return errors.WrapRetryable(err, errors.ErrCodeTransport, "failed to read ack").
				WithContext("message_id", msg.ID)
		}
		if ack.ID != msg.ID {
			c.logger.WithField("ack_id", privacy.MaskMessageID(ack.ID)).Debug("Ignoring ack for another message")
			continue
		}
		if ack.OK {
			return nil
		}

		cause := fmt.Errorf("backend refused message: %s", ack.Error)
		if ack.Retryable {
			return errors.WrapRetryable(cause, errors.ErrCodeTransport, "chat backend call failed").
				WithContext("message_id", msg.ID)
		}
		return errors.Wrap(cause, errors.ErrCodeSendRejected, "chat backend rejected message").
			WithContext("message_id", msg.ID).
			WithUserMessage("Message was rejected by the server")
	}
}

// Close closes the connection, if any.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	return err
}

func (c *WebSocketClient) connect(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if c.accessToken != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+c.accessToken)
	}

	conn, resp, err := websocket.Dial(ctx, c.url, opts)
	if err != nil {
		dialErr := errors.WrapRetryable(err, errors.ErrCodeTransport, "failed to dial chat backend").
			WithContext("endpoint", privacy.MaskURI(c.url))
		if resp != nil {
			dialErr = dialErr.WithContext("status_code", resp.StatusCode)
		}
		return nil, dialErr
	}

	c.logger.WithField("endpoint", privacy.MaskURI(c.url)).Info("Connected to chat backend")
	c.conn = conn
	return conn, nil
}

func (c *WebSocketClient) reset() {
	if c.conn != nil {
		_ = c.conn.CloseNow()
		c.conn = nil
	}
}
