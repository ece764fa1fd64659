package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig       `json:"server"`
	Storage       StorageConfig      `json:"storage"`
	Queue         QueueConfig        `json:"queue"`
	Connectivity  ConnectivityConfig `json:"connectivity"`
	Transport     TransportConfig    `json:"transport"`
	Auth          AuthConfig         `json:"auth"`
	Turn          TurnConfig         `json:"turn"`
	Tracing       TracingConfig      `json:"tracing"`
	LogLevel      string             `json:"log_level" validate:"omitempty,oneof=panic fatal error warn warning info debug trace"`
	RetentionDays int                `json:"retention_days" validate:"gte=0"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port                 int      `json:"port" validate:"gte=0,lte=65535"`
	RateLimitPerSec      float64  `json:"rate_limit_per_sec" validate:"gte=0"`
	RateLimitBurst       int      `json:"rate_limit_burst" validate:"gte=0"`
	AllowedOrigins       []string `json:"allowed_origins"`
	CleanupIntervalHours int      `json:"cleanup_interval_hours" validate:"gte=0"`
}

// StorageConfig selects and configures the persistent key-value store
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite postgres memory"`
	SQLitePath  string `json:"sqlite_path"`
	PostgresDSN string `json:"postgres_dsn"`
	StorageKey  string `json:"storage_key"`
}

// QueueConfig holds delivery queue settings
type QueueConfig struct {
	MaxRetries         int   `json:"max_retries" validate:"gte=0,lte=100"`
	RetryDelaysMs      []int `json:"retry_delays_ms" validate:"dive,gt=0"`
	SendTimeoutMs      int   `json:"send_timeout_ms" validate:"gte=0"`
	StaleThresholdSec  int   `json:"stale_threshold_sec" validate:"gte=0"`
	MonitorIntervalSec int   `json:"monitor_interval_sec" validate:"gte=0"`

	// DeadLetterRejections drops a message the backend rejects outright instead of retrying it.
	DeadLetterRejections bool `json:"dead_letter_rejections"`
}

// ConnectivityConfig selects how the online state is observed
type ConnectivityConfig struct {
	Mode             string `json:"mode" validate:"omitempty,oneof=probe manual"`
	ProbeURL         string `json:"probe_url" validate:"omitempty,url"`
	ProbeIntervalSec int    `json:"probe_interval_sec" validate:"gte=0"`
	ProbeTimeoutMs   int    `json:"probe_timeout_ms" validate:"gte=0"`
}

// TransportConfig configures how queued messages reach the chat backend
type TransportConfig struct {
	Kind         string  `json:"kind" validate:"omitempty,oneof=http websocket"`
	BaseURL      string  `json:"base_url" validate:"omitempty,url"`
	WebSocketURL string  `json:"websocket_url" validate:"omitempty,url"`
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	RatePerSec   float64 `json:"rate_per_sec" validate:"gte=0"`
	Burst        int     `json:"burst" validate:"gte=0"`

	// BreakerMaxFailures consecutive backend failures pause sends for BreakerCooldownSec.
	BreakerMaxFailures int `json:"breaker_max_failures" validate:"gte=0"`
	BreakerCooldownSec int `json:"breaker_cooldown_sec" validate:"gte=0"`
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// TurnConfig holds TURN credential issuance settings
type TurnConfig struct {
	Secret string   `json:"secret"`
	TTLSec int      `json:"ttl_sec" validate:"gte=0"`
	URIs   []string `json:"uris"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" validate:"gte=0,lte=1"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
