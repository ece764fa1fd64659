package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"msgrelay/internal/connectivity"
	"msgrelay/internal/constants"
	"msgrelay/internal/metrics"
	"msgrelay/internal/middleware"
	"msgrelay/internal/models"
	"msgrelay/internal/queue"
	"msgrelay/internal/turn"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// MessageQueue is the part of queue.NetworkService exposed over HTTP.
type MessageQueue interface {
	QueueMessage(ctx context.Context, conversationID, content string, msgType models.MessageType, mediaURI string) (string, error)
	GetQueuedMessages(conversationID string) []models.QueuedMessage
	GetRetryCount(id string) int
	RetryMessage(ctx context.Context, id string) error
	RemoveFromQueue(ctx context.Context, id string)
	Stats() queue.Stats
}

// ServerDeps are the collaborators of the API server. Manual, Turn and HealthCheck are
// optional.
type ServerDeps struct {
	Queue       MessageQueue
	DeadLetters queue.DeadLetterStore
	Manual      *connectivity.Manual
	Turn        *turn.Issuer
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	HealthCheck func(ctx context.Context) error
}

type Server struct {
	cfg     *models.Config
	router  *mux.Router
	handler http.Handler
	logger  *logrus.Logger
	deps    ServerDeps
	server  *http.Server
}

func NewServer(cfg *models.Config, deps ServerDeps, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		logger: logger,
		deps:   deps,
	}

	s.setupRoutes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}).Handler(s.router)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger, s.deps.Metrics))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	if s.cfg.Server.RateLimitPerSec > 0 {
		limiter := middleware.NewIPRateLimiter(s.cfg.Server.RateLimitPerSec, s.cfg.Server.RateLimitBurst)
		api.Use(limiter.Middleware)
	}
	if s.cfg.Auth.JWTSecret != "" {
		api.Use(middleware.Auth(s.cfg.Auth.JWTSecret, s.logger))
	}

	api.HandleFunc("/messages", s.handleEnqueue()).Methods(http.MethodPost)
	api.HandleFunc("/messages", s.handleListMessages()).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}/retries", s.handleRetryCount()).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}/retry", s.handleRetry()).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}", s.handleRemove()).Methods(http.MethodDelete)
	api.HandleFunc("/queue/stats", s.handleStats()).Methods(http.MethodGet)
	api.HandleFunc("/dead-letters", s.handleDeadLetters()).Methods(http.MethodGet)
	api.HandleFunc("/network", s.handleSetNetwork()).Methods(http.MethodPut)
	api.HandleFunc("/turn/credentials", s.handleTurnCredentials()).Methods(http.MethodPost)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
