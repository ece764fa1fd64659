package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"msgrelay/internal/constants"
	"msgrelay/internal/errors"
	"msgrelay/internal/models"
	"msgrelay/internal/privacy"

	"github.com/sirupsen/logrus"
)

// HTTPClient posts messages to the chat backend's REST API. A 401 triggers one token
// refresh and one retry of the request.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger

	mu     sync.Mutex
	tokens TokenPair
}

func NewHTTPClient(baseURL string, tokens TokenPair, httpClient *http.Client, logger *logrus.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(constants.DefaultHTTPTimeoutSec) * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpClient,
		logger:  logger,
		tokens:  tokens,
	}
}

// Tokens returns the current credentials, including any refreshed access token.
func (c *HTTPClient) Tokens() TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *HTTPClient) Send(ctx context.Context, msg models.QueuedMessage) error {
	payload, err := json.Marshal(newSendRequest(msg))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to marshal message")
	}

	endpoint := fmt.Sprintf("%s/api/conversations/%s/messages", c.baseURL, url.PathEscape(msg.ConversationID))

	c.logger.WithFields(logrus.Fields{
		"endpoint":        privacy.MaskURI(endpoint),
		"message_id":      privacy.MaskMessageID(msg.ID),
		"conversation_id": privacy.MaskConversationID(msg.ConversationID),
	}).Debug("Sending chat message request")

	token := c.Tokens().AccessToken
	status, body, err := c.post(ctx, endpoint, token, payload)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		if err := c.refresh(ctx, token); err != nil {
			return err
		}
		status, body, err = c.post(ctx, endpoint, c.Tokens().AccessToken, payload)
		if err != nil {
			return err
		}
	}

	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusAccepted {
		return errors.NewTransportError(endpoint, status,
			fmt.Errorf("chat API error: status %d, body: %s", status, string(body))).
			WithContext("message_id", msg.ID)
	}

	var result SendMessageResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			c.logger.WithError(err).Debug("Ignoring undecodable send response")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"message_id": privacy.MaskMessageID(msg.ID),
		"status":     result.Status,
	}).Debug("Chat message accepted")
	return nil
}

func (c *HTTPClient) post(ctx context.Context, endpoint, token string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, errors.WrapRetryable(err, errors.ErrCodeTransport, "failed to send request").
			WithContext("endpoint", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorBodyBytes))
	if err != nil {
		return 0, nil, errors.WrapRetryable(err, errors.ErrCodeTransport, "failed to read response body").
			WithContext("endpoint", endpoint)
	}
	return resp.StatusCode, body, nil
}

// refresh exchanges the refresh token for a new pair. If another request already replaced
// the rejected access token, the refresh is skipped.
func (c *HTTPClient) refresh(ctx context.Context, rejected string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens.AccessToken != rejected {
		return nil
	}
	if c.tokens.RefreshToken == "" {
		return errors.WrapRetryable(nil, errors.ErrCodeAuthentication, "access token rejected and no refresh token configured")
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": c.tokens.RefreshToken})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to marshal refresh request")
	}

	endpoint := c.baseURL + "/api/auth/refresh"
	status, body, err := c.post(ctx, endpoint, "", payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errors.WrapRetryable(fmt.Errorf("refresh failed: status %d", status), errors.ErrCodeAuthentication,
			"failed to refresh access token").WithContext("status_code", status)
	}

	var tokens TokenPair
	if err := json.Unmarshal(body, &tokens); err != nil || tokens.AccessToken == "" {
		return errors.WrapRetryable(fmt.Errorf("invalid refresh response: %v", err), errors.ErrCodeAuthentication,
			"failed to refresh access token")
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = c.tokens.RefreshToken
	}
	c.tokens = tokens

	c.logger.Info("Refreshed chat backend access token")
	return nil
}
