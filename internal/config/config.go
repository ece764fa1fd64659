package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"msgrelay/internal/constants"
	"msgrelay/internal/models"
	"msgrelay/internal/security"
	"msgrelay/internal/validation"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment override, e.g. MSGRELAY_STORAGE_DRIVER.
const EnvPrefix = "MSGRELAY"

// EnvEnvironment selects production checks when set to "production".
const EnvEnvironment = "MSGRELAY_ENV"

var (
	ErrMissingPostgresDSN  = models.ConfigError{Message: "storage.postgres_dsn is required for the postgres driver"}
	ErrMissingBaseURL      = models.ConfigError{Message: "transport.base_url is required for the http transport"}
	ErrMissingWebSocketURL = models.ConfigError{Message: "transport.websocket_url is required for the websocket transport"}
	ErrMissingProbeURL     = models.ConfigError{Message: "connectivity.probe_url is required in probe mode"}
)

// envOverrides are read with envconfig. Nil pointers and empty strings leave the file value.
type envOverrides struct {
	LogLevel      string `envconfig:"LOG_LEVEL"`
	Port          *int   `envconfig:"PORT"`
	RetentionDays *int   `envconfig:"RETENTION_DAYS"`

	StorageDriver string `envconfig:"STORAGE_DRIVER"`
	SQLitePath    string `envconfig:"SQLITE_PATH"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`

	MaxRetries *int `envconfig:"MAX_RETRIES"`

	ConnectivityMode string `envconfig:"CONNECTIVITY_MODE"`
	ProbeURL         string `envconfig:"PROBE_URL"`

	TransportKind string `envconfig:"TRANSPORT_KIND"`
	BaseURL       string `envconfig:"BASE_URL"`
	WebSocketURL  string `envconfig:"WEBSOCKET_URL"`
	AccessToken   string `envconfig:"ACCESS_TOKEN"`
	RefreshToken  string `envconfig:"REFRESH_TOKEN"`

	JWTSecret  string `envconfig:"JWT_SECRET"`
	TurnSecret string `envconfig:"TURN_SECRET"`

	TracingEnabled *bool  `envconfig:"TRACING_ENABLED"`
	OTLPEndpoint   string `envconfig:"OTLP_ENDPOINT"`
}

// LoadConfig reads the JSON file at path, fills defaults, applies MSGRELAY_* environment
// overrides and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration with every default applied: SQLite storage, HTTP
// transport and manual connectivity.
func Default() *models.Config {
	config := &models.Config{
		Connectivity: models.ConnectivityConfig{Mode: constants.ConnectivityModeManual},
	}
	applyDefaults(config)
	return config
}

func applyDefaults(c *models.Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}

	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.RateLimitPerSec == 0 {
		c.Server.RateLimitPerSec = constants.DefaultRateLimitPerSec
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = constants.DefaultRateLimitBurst
	}
	if c.Server.CleanupIntervalHours == 0 {
		c.Server.CleanupIntervalHours = constants.CleanupSchedulerIntervalHours
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = constants.StorageDriverSQLite
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = constants.DefaultSQLitePath
	}
	if c.Storage.StorageKey == "" {
		c.Storage.StorageKey = constants.DefaultStorageKey
	}

	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = constants.DefaultMaxRetries
	}
	if len(c.Queue.RetryDelaysMs) == 0 {
		c.Queue.RetryDelaysMs = append([]int(nil), constants.DefaultRetryDelaysMs...)
	}
	if c.Queue.SendTimeoutMs == 0 {
		c.Queue.SendTimeoutMs = constants.DefaultSendTimeoutMs
	}
	if c.Queue.StaleThresholdSec == 0 {
		c.Queue.StaleThresholdSec = constants.DefaultStaleThresholdSec
	}
	if c.Queue.MonitorIntervalSec == 0 {
		c.Queue.MonitorIntervalSec = constants.DefaultQueueMonitorInterval
	}

	if c.Connectivity.Mode == "" {
		c.Connectivity.Mode = constants.ConnectivityModeProbe
	}
	if c.Connectivity.ProbeURL == "" && c.Connectivity.Mode == constants.ConnectivityModeProbe && c.Transport.BaseURL != "" {
		c.Connectivity.ProbeURL = strings.TrimRight(c.Transport.BaseURL, "/") + "/health"
	}
	if c.Connectivity.ProbeIntervalSec == 0 {
		c.Connectivity.ProbeIntervalSec = constants.DefaultProbeIntervalSec
	}
	if c.Connectivity.ProbeTimeoutMs == 0 {
		c.Connectivity.ProbeTimeoutMs = constants.DefaultProbeTimeoutMs
	}

	if c.Transport.Kind == "" {
		c.Transport.Kind = constants.TransportHTTP
	}
	if c.Transport.RatePerSec == 0 {
		c.Transport.RatePerSec = constants.DefaultTransportRatePerSec
	}
	if c.Transport.Burst == 0 {
		c.Transport.Burst = constants.DefaultTransportBurst
	}
	if c.Transport.BreakerMaxFailures == 0 {
		c.Transport.BreakerMaxFailures = constants.DefaultBreakerMaxFailures
	}
	if c.Transport.BreakerCooldownSec == 0 {
		c.Transport.BreakerCooldownSec = constants.DefaultBreakerCooldownSec
	}

	if c.Turn.TTLSec == 0 {
		c.Turn.TTLSec = constants.DefaultTurnTTLSec
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "msgrelay"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
}

func applyEnvironmentOverrides(c *models.Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	setString(&c.LogLevel, env.LogLevel)
	setString(&c.Storage.Driver, env.StorageDriver)
	setString(&c.Storage.SQLitePath, env.SQLitePath)
	setString(&c.Storage.PostgresDSN, env.PostgresDSN)
	setString(&c.Connectivity.Mode, env.ConnectivityMode)
	setString(&c.Connectivity.ProbeURL, env.ProbeURL)
	setString(&c.Transport.Kind, env.TransportKind)
	setString(&c.Transport.BaseURL, env.BaseURL)
	setString(&c.Transport.WebSocketURL, env.WebSocketURL)
	setString(&c.Transport.AccessToken, env.AccessToken)
	setString(&c.Transport.RefreshToken, env.RefreshToken)
	setString(&c.Auth.JWTSecret, env.JWTSecret)
	setString(&c.Turn.Secret, env.TurnSecret)
	setString(&c.Tracing.OTLPEndpoint, env.OTLPEndpoint)

	if env.Port != nil {
		c.Server.Port = *env.Port
	}
	if env.RetentionDays != nil {
		c.RetentionDays = *env.RetentionDays
	}
	if env.MaxRetries != nil {
		c.Queue.MaxRetries = *env.MaxRetries
	}
	if env.TracingEnabled != nil {
		c.Tracing.Enabled = *env.TracingEnabled
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func validate(c *models.Config) error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if err := validation.ValidateRetentionDays(c.RetentionDays); err != nil {
		return err
	}

	if c.Storage.Driver == constants.StorageDriverPostgres && c.Storage.PostgresDSN == "" {
		return ErrMissingPostgresDSN
	}
	switch c.Transport.Kind {
	case constants.TransportHTTP:
		if c.Transport.BaseURL == "" {
			return ErrMissingBaseURL
		}
	case constants.TransportWebSocket:
		if c.Transport.WebSocketURL == "" {
			return ErrMissingWebSocketURL
		}
	}
	if c.Connectivity.Mode == constants.ConnectivityModeProbe && c.Connectivity.ProbeURL == "" {
		return ErrMissingProbeURL
	}
	if c.Turn.Secret != "" && len(c.Turn.URIs) == 0 {
		return models.ConfigError{Message: "turn.uris must list at least one URI when turn.secret is set"}
	}
	return nil
}

// IsProduction reports whether MSGRELAY_ENV=production.
func IsProduction() bool {
	return os.Getenv(EnvEnvironment) == "production"
}

func validateSecurity(c *models.Config) error {
	if !IsProduction() {
		if c.Auth.JWTSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: auth.jwt_secret not set, the API is unauthenticated. Set MSGRELAY_JWT_SECRET.\n")
		}
		return nil
	}

	if c.Auth.JWTSecret == "" {
		return models.ConfigError{Message: "JWT secret is required in production (set MSGRELAY_JWT_SECRET environment variable)"}
	}
	if len(c.Auth.JWTSecret) < constants.MinJWTSecretLength {
		return models.ConfigError{Message: fmt.Sprintf("JWT secret must be at least %d characters long", constants.MinJWTSecretLength)}
	}
	if c.LogLevel == "debug" || c.LogLevel == "trace" {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}
	return nil
}
