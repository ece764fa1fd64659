package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"msgrelay/internal/config"
	"msgrelay/internal/constants"
	"msgrelay/internal/metrics"
	"msgrelay/internal/middleware"
	"msgrelay/internal/models"
	"msgrelay/internal/privacy"
	"msgrelay/internal/queue"
	"msgrelay/internal/service"
	"msgrelay/internal/tracing"
	"msgrelay/internal/turn"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	envFile    = flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	version    = flag.Bool("version", false, "Show version information")
	issueToken = flag.String("issue-token", "", "Print an API token for the given user id and exit")
	tokenTTL   = flag.Duration("token-ttl", 24*time.Hour, "Lifetime of tokens printed by -issue-token")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("msgrelay %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Failed to load %s: %v", *envFile, err)
	}

	if *issueToken != "" {
		if err := printToken(*issueToken); err != nil {
			logrus.Fatalf("Failed to issue token: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func printToken(userID string) error {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	token, err := middleware.GenerateToken(userID, cfg.Auth.JWTSecret, *tokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting msgrelay")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configureLogLevel(logger, cfg)

	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = Version
	}
	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close storage")
		}
	}()

	source, manual, probe := connectivitySource(cfg, logger)
	sender, closeSender := transportSender(cfg, logger)
	defer closeSender()

	queueOpts := []queue.Option{
		queue.WithMetrics(m),
		queue.WithDeadLetterStore(store),
	}
	if cfg.Queue.DeadLetterRejections {
		queueOpts = append(queueOpts, queue.WithRejectionDeadLetters())
	}
	q := queue.New(queueConfig(cfg), store, source, logger, queueOpts...)
	q.SetSendCallback(sender.Send)
	q.OnDeadLetter(func(dl models.DeadLetter) {
		logger.WithFields(logrus.Fields{
			"message_id":      privacy.MaskMessageID(dl.Message.ID),
			"conversation_id": privacy.MaskConversationID(dl.Message.ConversationID),
			"reason":          dl.Reason,
			"retry_count":     dl.Message.RetryCount,
		}).Warn("Message moved to dead letters")
	})

	if err := q.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}
	defer q.Close()

	if probe != nil {
		probe.Start(ctx)
		defer probe.Stop()
	}

	monitor := queue.NewMonitor(q,
		time.Duration(cfg.Queue.MonitorIntervalSec)*time.Second,
		time.Duration(cfg.Queue.StaleThresholdSec)*time.Second,
		m, logger)
	go monitor.Start(ctx)
	defer monitor.Stop()

	scheduler := service.NewScheduler(store, cfg.RetentionDays, cfg.Server.CleanupIntervalHours, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	watcher := config.NewConfigWatcher(*configPath, logger)
	if !*verbose {
		watcher.OnConfigChange(config.ApplyLogLevel(logger))
	}
	watcher.OnConfigChange(func(c *models.Config) {
		scheduler.SetRetentionDays(c.RetentionDays)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	deps := ServerDeps{
		Queue:       q,
		DeadLetters: store,
		Manual:      manual,
		Turn:        turn.NewIssuer(cfg.Turn),
		Registry:    registry,
		Metrics:     m,
	}
	if hc, ok := store.(healthChecker); ok {
		deps.HealthCheck = hc.HealthCheck
	}

	server := NewServer(cfg, deps, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// configureLogLevel applies -verbose or the configured level.
func configureLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
