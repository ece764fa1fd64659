package constants

// Queue defaults
const (
	DefaultMaxRetries            = 5
	DefaultSendTimeoutMs         = 30000
	DefaultStorageKey            = "offline_message_queue"
	DefaultStaleThresholdSec     = 600
	DefaultQueueMonitorInterval  = 30
	DefaultDeadLetterListLimit   = 100
	MaxDeadLetterListLimit       = 1000
	MaxMessageContentLength      = 64 * 1024
	MaxConversationIDLength      = 256
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultRetentionDays         = 30
)

// DefaultRetryDelaysMs is the delay table indexed by a message's retry count.
var DefaultRetryDelaysMs = []int{1000, 2000, 5000, 10000, 30000}

// Connectivity defaults
const (
	DefaultProbeIntervalSec = 5
	DefaultProbeTimeoutMs   = 3000
	ConnectivityModeProbe   = "probe"
	ConnectivityModeManual  = "manual"
)

// Transport defaults
const (
	TransportHTTP              = "http"
	TransportWebSocket         = "websocket"
	DefaultHTTPTimeoutSec      = 30
	DefaultTransportRatePerSec = 20
	DefaultTransportBurst      = 5
	MaxErrorBodyBytes          = 4096
	DefaultBreakerMaxFailures  = 5
	DefaultBreakerCooldownSec  = 30
)

// Storage drivers
const (
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
	DefaultSQLitePath     = "msgrelay.db"
)

// Server defaults
const (
	DefaultServerPort             = 8082
	DefaultGracefulShutdownSec    = 30
	DefaultServerReadTimeoutSec   = 15
	DefaultServerWriteTimeoutSec  = 15
	DefaultServerIdleTimeoutSec   = 60
	DefaultRateLimitPerSec        = 10
	DefaultRateLimitBurst         = 20
	CleanupSchedulerIntervalHours = 24
	ServerErrorChannelSize        = 1
	ConfigWatchIntervalSec        = 5
)

// TURN defaults
const (
	DefaultTurnTTLSec  = 86400
	MinJWTSecretLength = 32
)

// Privacy settings
const (
	DefaultMaskVisibleChars = 4
	DefaultContentPreview   = 8
)

// File permission constants
const (
	DefaultFilePermissions = 0600
)
