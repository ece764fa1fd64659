package config

import (
	"os"
	"path/filepath"
	"testing"

	"msgrelay/internal/constants"
	"msgrelay/internal/errors"
	"msgrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `{
	"transport": {"base_url": "https://chat.example.com"}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(EnvEnvironment, "")

	config, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, constants.DefaultServerPort, config.Server.Port)
	assert.Equal(t, constants.StorageDriverSQLite, config.Storage.Driver)
	assert.Equal(t, constants.DefaultStorageKey, config.Storage.StorageKey)
	assert.Equal(t, 5, config.Queue.MaxRetries)
	assert.Equal(t, []int{1000, 2000, 5000, 10000, 30000}, config.Queue.RetryDelaysMs)
	assert.Equal(t, constants.ConnectivityModeProbe, config.Connectivity.Mode)
	assert.Equal(t, "https://chat.example.com/health", config.Connectivity.ProbeURL)
	assert.Equal(t, constants.TransportHTTP, config.Transport.Kind)
	assert.Equal(t, constants.DefaultBreakerMaxFailures, config.Transport.BreakerMaxFailures)
	assert.Equal(t, constants.DefaultRetentionDays, config.RetentionDays)
	assert.Equal(t, constants.DefaultTurnTTLSec, config.Turn.TTLSec)
}

func TestLoadConfig_FileValues(t *testing.T) {
	t.Setenv(EnvEnvironment, "")

	config, err := LoadConfig(writeConfig(t, `{
		"server": {"port": 9000, "allowed_origins": ["https://app.example.com"]},
		"storage": {"driver": "memory", "storage_key": "q"},
		"queue": {"max_retries": 3, "retry_delays_ms": [100, 200], "send_timeout_ms": 500},
		"connectivity": {"mode": "manual"},
		"transport": {"kind": "websocket", "websocket_url": "wss://chat.example.com/ws"},
		"turn": {"secret": "s", "uris": ["turn:turn.example.com"]},
		"log_level": "warn",
		"retention_days": 7
	}`))
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, config.Server.AllowedOrigins)
	assert.Equal(t, "memory", config.Storage.Driver)
	assert.Equal(t, 3, config.Queue.MaxRetries)
	assert.Equal(t, []int{100, 200}, config.Queue.RetryDelaysMs)
	assert.Equal(t, 500, config.Queue.SendTimeoutMs)
	assert.Empty(t, config.Connectivity.ProbeURL)
	assert.Equal(t, "wss://chat.example.com/ws", config.Transport.WebSocketURL)
	assert.Equal(t, 7, config.RetentionDays)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvEnvironment, "")
	t.Setenv("MSGRELAY_PORT", "9999")
	t.Setenv("MSGRELAY_STORAGE_DRIVER", "postgres")
	t.Setenv("MSGRELAY_POSTGRES_DSN", "postgres://relay@localhost/relay")
	t.Setenv("MSGRELAY_BASE_URL", "https://override.example.com")
	t.Setenv("MSGRELAY_ACCESS_TOKEN", "token-from-env")
	t.Setenv("MSGRELAY_MAX_RETRIES", "8")
	t.Setenv("MSGRELAY_TRACING_ENABLED", "true")
	t.Setenv("MSGRELAY_LOG_LEVEL", "debug")

	config, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "postgres", config.Storage.Driver)
	assert.Equal(t, "postgres://relay@localhost/relay", config.Storage.PostgresDSN)
	assert.Equal(t, "https://override.example.com", config.Transport.BaseURL)
	assert.Equal(t, "https://override.example.com/health", config.Connectivity.ProbeURL)
	assert.Equal(t, "token-from-env", config.Transport.AccessToken)
	assert.Equal(t, 8, config.Queue.MaxRetries)
	assert.True(t, config.Tracing.Enabled)
	assert.Equal(t, "debug", config.LogLevel)
}

func TestLoadConfig_BadEnvironmentValue(t *testing.T) {
	t.Setenv(EnvEnvironment, "")
	t.Setenv("MSGRELAY_PORT", "not-a-number")

	_, err := LoadConfig(writeConfig(t, minimalConfig))
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv(EnvEnvironment, "")

	tests := []struct {
		name    string
		content string
		want    error
		code    errors.ErrorCode
	}{
		{
			name:    "postgres without dsn",
			content: `{"storage": {"driver": "postgres"}, "transport": {"base_url": "https://c.example.com"}}`,
			want:    ErrMissingPostgresDSN,
		},
		{
			name:    "http without base url",
			content: `{"connectivity": {"mode": "manual"}}`,
			want:    ErrMissingBaseURL,
		},
		{
			name:    "websocket without url",
			content: `{"transport": {"kind": "websocket"}, "connectivity": {"mode": "manual"}}`,
			want:    ErrMissingWebSocketURL,
		},
		{
			name:    "probe without url",
			content: `{"transport": {"kind": "websocket", "websocket_url": "wss://c.example.com"}}`,
			want:    ErrMissingProbeURL,
		},
		{
			name:    "unknown driver",
			content: `{"storage": {"driver": "redis"}, "transport": {"base_url": "https://c.example.com"}}`,
			code:    errors.ErrCodeValidationFailed,
		},
		{
			name:    "negative port",
			content: `{"server": {"port": -1}, "transport": {"base_url": "https://c.example.com"}}`,
			code:    errors.ErrCodeValidationFailed,
		},
		{
			name:    "zero retry delay",
			content: `{"queue": {"retry_delays_ms": [0]}, "transport": {"base_url": "https://c.example.com"}}`,
			code:    errors.ErrCodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			if tt.want != nil {
				assert.Equal(t, tt.want, err)
			}
			if tt.code != "" {
				assert.Equal(t, tt.code, errors.GetCode(err))
			}
		})
	}
}

func TestLoadConfig_FileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadConfig("../../etc/passwd")
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `{not json`))
	assert.Error(t, err)
}

func TestLoadConfig_Production(t *testing.T) {
	t.Setenv(EnvEnvironment, "production")

	_, err := LoadConfig(writeConfig(t, minimalConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret is required")

	t.Setenv("MSGRELAY_JWT_SECRET", "short")
	_, err = LoadConfig(writeConfig(t, minimalConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32")

	t.Setenv("MSGRELAY_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("MSGRELAY_LOG_LEVEL", "debug")
	_, err = LoadConfig(writeConfig(t, minimalConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug logging")

	t.Setenv("MSGRELAY_LOG_LEVEL", "info")
	config, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.True(t, IsProduction())
	assert.Equal(t, "0123456789abcdef0123456789abcdef", config.Auth.JWTSecret)
}

func TestDefault(t *testing.T) {
	config := Default()
	assert.Equal(t, constants.ConnectivityModeManual, config.Connectivity.Mode)
	assert.Equal(t, constants.StorageDriverSQLite, config.Storage.Driver)
	assert.Equal(t, constants.DefaultSendTimeoutMs, config.Queue.SendTimeoutMs)
	assert.IsType(t, &models.Config{}, config)
}
