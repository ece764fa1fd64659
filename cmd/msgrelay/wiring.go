package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"msgrelay/internal/connectivity"
	"msgrelay/internal/constants"
	"msgrelay/internal/database"
	"msgrelay/internal/models"
	"msgrelay/internal/queue"
	"msgrelay/internal/retry"
	"msgrelay/internal/storage"
	"msgrelay/pkg/chatapi"
	"msgrelay/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// backend is the persistent store selected by storage.driver.
type backend interface {
	queue.Store
	queue.DeadLetterStore
	Close() error
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// openStorage opens the configured backend, retrying with exponential backoff while the
// database is unavailable at startup.
func openStorage(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (backend, error) {
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	var store backend
	err := backoff.Retry(ctx, func() error {
		var err error
		switch cfg.Storage.Driver {
		case constants.StorageDriverMemory:
			logger.Warn("Using in-memory storage, queued messages will not survive a restart")
			store = storage.NewMemory()
		case constants.StorageDriverPostgres:
			store, err = storage.ConnectPostgres(ctx, cfg.Storage.PostgresDSN, 0)
		default:
			store, err = database.New(cfg.Storage.SQLitePath)
		}
		if err != nil {
			logger.WithField("driver", cfg.Storage.Driver).Warnf("Failed to open storage: %v", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage after retries: %w", cfg.Storage.Driver, err)
	}

	logger.WithField("driver", cfg.Storage.Driver).Info("Storage opened")
	return store, nil
}

// connectivitySource builds the configured source. Manual is non-nil in manual mode and
// probe is non-nil in probe mode.
func connectivitySource(cfg *models.Config, logger *logrus.Logger) (connectivity.Source, *connectivity.Manual, *connectivity.Probe) {
	if cfg.Connectivity.Mode == constants.ConnectivityModeManual {
		manual := connectivity.NewManual(false)
		return manual, manual, nil
	}

	probe := connectivity.NewProbe(
		cfg.Connectivity.ProbeURL,
		time.Duration(cfg.Connectivity.ProbeIntervalSec)*time.Second,
		time.Duration(cfg.Connectivity.ProbeTimeoutMs)*time.Millisecond,
		logger,
	)
	return probe, nil, probe
}

// transportSender builds the chat backend client behind a circuit breaker and the send
// rate limit. The returned close function releases the client's connection, if any.
func transportSender(cfg *models.Config, logger *logrus.Logger) (chatapi.Sender, func()) {
	var (
		sender  chatapi.Sender
		closeFn = func() {}
	)

	switch cfg.Transport.Kind {
	case constants.TransportWebSocket:
		ws := chatapi.NewWebSocketClient(cfg.Transport.WebSocketURL, cfg.Transport.AccessToken, logger)
		sender = ws
		closeFn = func() {
			if err := ws.Close(); err != nil {
				logger.WithError(err).Debug("Failed to close chat backend connection")
			}
		}
	default:
		sender = chatapi.NewHTTPClient(
			cfg.Transport.BaseURL,
			chatapi.TokenPair{AccessToken: cfg.Transport.AccessToken, RefreshToken: cfg.Transport.RefreshToken},
			&http.Client{Timeout: constants.DefaultHTTPTimeoutSec * time.Second},
			logger,
		)
	}

	breaker := circuitbreaker.New("chat-backend", circuitbreaker.Options{
		MaxFailures: cfg.Transport.BreakerMaxFailures,
		Cooldown:    time.Duration(cfg.Transport.BreakerCooldownSec) * time.Second,
		Counts:      chatapi.BackendFailure,
	}, logger)
	guarded := chatapi.NewGuarded(sender, breaker)

	return chatapi.NewRateLimited(guarded, cfg.Transport.RatePerSec, cfg.Transport.Burst), closeFn
}

func queueConfig(cfg *models.Config) queue.Config {
	return queue.Config{
		StorageKey:  cfg.Storage.StorageKey,
		MaxRetries:  cfg.Queue.MaxRetries,
		RetryDelays: retry.ScheduleFromMillis(cfg.Queue.RetryDelaysMs),
		SendTimeout: time.Duration(cfg.Queue.SendTimeoutMs) * time.Millisecond,
	}
}
