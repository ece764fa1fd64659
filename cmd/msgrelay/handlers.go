package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"msgrelay/internal/constants"
	"msgrelay/internal/errors"
	"msgrelay/internal/httputil"
	"msgrelay/internal/models"
	"msgrelay/internal/privacy"
	"msgrelay/internal/tracing"
	"msgrelay/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// maxRequestBytes bounds request bodies: the largest message plus room for the envelope.
const maxRequestBytes = constants.MaxMessageContentLength + 8*1024

type enqueueResponse struct {
	ID     string `json:"id"`
	Queued bool   `json:"queued"`
	Online bool   `json:"online"`
}

type messagesResponse struct {
	Messages []models.QueuedMessage `json:"messages"`
	Count    int                    `json:"count"`
}

type retryCountResponse struct {
	ID         string `json:"id"`
	RetryCount int    `json:"retryCount"`
}

type networkRequest struct {
	Online *bool `json:"online"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Online  bool   `json:"online"`
	Pending int    `json:"pending"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := s.deps.Queue.Stats()
		resp := healthResponse{Status: "ok", Online: stats.Online, Pending: stats.Pending}

		if s.deps.HealthCheck != nil {
			if err := s.deps.HealthCheck(r.Context()); err != nil {
				s.logger.WithError(err).Warn("Storage health check failed")
				resp.Status = "degraded"
				httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleEnqueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, maxRequestBytes); err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		var req validation.EnqueueRequest
		if err := decodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		id, err := s.deps.Queue.QueueMessage(r.Context(), req.ConversationID, req.Content, req.Type, req.MediaURI)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		tracing.AddSpanAttributes(r.Context(),
			attribute.String("message.id", id),
			attribute.String("message.type", string(req.Type)),
		)
		s.logger.WithFields(logrus.Fields{
			"request_id":      tracing.GetRequestID(r.Context()),
			"message_id":      privacy.MaskMessageID(id),
			"conversation_id": privacy.MaskConversationID(req.ConversationID),
		}).Debug("Message accepted")

		httputil.WriteJSON(w, http.StatusAccepted, enqueueResponse{
			ID:     id,
			Queued: true,
			Online: s.deps.Queue.Stats().Online,
		})
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := r.URL.Query().Get("conversationId")
		msgs := s.deps.Queue.GetQueuedMessages(conversationID)
		httputil.WriteJSON(w, http.StatusOK, messagesResponse{Messages: msgs, Count: len(msgs)})
	}
}

func (s *Server) handleRetryCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.messageID(w, r)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, retryCountResponse{ID: id, RetryCount: s.deps.Queue.GetRetryCount(id)})
	}
}

func (s *Server) handleRetry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.messageID(w, r)
		if !ok {
			return
		}
		if err := s.deps.Queue.RetryMessage(r.Context(), id); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "delivered": true})
	}
}

func (s *Server) handleRemove() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.messageID(w, r)
		if !ok {
			return
		}
		s.deps.Queue.RemoveFromQueue(r.Context(), id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, s.deps.Queue.Stats())
	}
}

func (s *Server) handleDeadLetters() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.DeadLetters == nil {
			httputil.WriteError(w, r, errors.NewNotFoundError("dead letter store", ""))
			return
		}

		limit := constants.DefaultDeadLetterListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				httputil.WriteError(w, r, errors.NewValidationError("limit", raw, "must be a positive integer"))
				return
			}
			limit = min(n, constants.MaxDeadLetterListLimit)
		}

		letters, err := s.deps.DeadLetters.ListDeadLetters(r.Context(), limit)
		if err != nil {
			httputil.WriteError(w, r, errors.NewStorageError("list dead letters", err))
			return
		}
		if letters == nil {
			letters = []models.DeadLetter{}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"deadLetters": letters, "count": len(letters)})
	}
}

func (s *Server) handleSetNetwork() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Manual == nil {
			httputil.WriteError(w, r, errors.New(errors.ErrCodeInvalidConfig, "connectivity is not in manual mode").
				WithUserMessage("Network state is managed by the connectivity probe"))
			return
		}

		var req networkRequest
		if err := decodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		if req.Online == nil {
			httputil.WriteError(w, r, errors.NewValidationError("online", "", "is required"))
			return
		}

		changed := s.deps.Manual.Set(*req.Online)
		s.logger.WithFields(logrus.Fields{
			"online":  *req.Online,
			"changed": changed,
			"user_id": privacy.MaskUserID(tracing.GetUserID(r.Context())),
		}).Info("Network state set via API")
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"online": *req.Online, "changed": changed})
	}
}

func (s *Server) handleTurnCredentials() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Turn == nil {
			httputil.WriteError(w, r, errors.NewNotFoundError("turn credentials", ""))
			return
		}

		userID := tracing.GetUserID(r.Context())
		if userID == "" {
			httputil.WriteError(w, r, errors.NewAuthError("turn credentials require an authenticated user"))
			return
		}

		creds, err := s.deps.Turn.Issue(userID)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		httputil.WriteJSON(w, http.StatusOK, creds)
	}
}

func (s *Server) messageID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if err := validation.ValidateMessageID(id); err != nil {
		httputil.WriteError(w, r, err)
		return "", false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid JSON body").
			WithUserMessage("Request body is not valid JSON")
	}
	return nil
}
