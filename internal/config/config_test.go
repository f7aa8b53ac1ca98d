package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PORT", "LOG_LEVEL", "STORE_BACKEND", "DATA_DIR", "MONGODB_URI", "MONGODB_DATABASE",
	"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_VOICE", "ACCESS_KEY", "JWT_SECRET",
	"MOCK_LIVE", "NO_AUDIO", "AUTOSAVE_QUIET_MS", "CONNECT_WAIT_MS",
}

// clearEnv unsets every key for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load([]string{"--env", ""})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvironmentAndFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("AUTOSAVE_QUIET_MS", "250")
	t.Setenv("MOCK_LIVE", "true")

	cfg, err := Load([]string{"--env", "", "--port", "9100", "--no-audio", "--log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port, "flags win over the environment")
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "key", cfg.GeminiAPIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.AutosaveQuiet)
	assert.True(t, cfg.MockLive)
	assert.True(t, cfg.NoAudio)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GEMINI_MODEL=custom-model\nCONNECT_WAIT_MS=1500\n"), 0o600))

	cfg, err := Load([]string{"--env", path})
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.GeminiModel)
	assert.Equal(t, 1500*time.Millisecond, cfg.ConnectWait)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)
	_, err := Load([]string{"--env", filepath.Join(t.TempDir(), "missing.env")})
	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"bad port", map[string]string{"PORT": "http"}, nil},
		{"unknown store", nil, []string{"--store", "redis"}},
		{"bad duration", map[string]string{"AUTOSAVE_QUIET_MS": "-5"}, nil},
		{"bad bool", map[string]string{"NO_AUDIO": "maybe"}, nil},
		{"access key without secret", map[string]string{"ACCESS_KEY": "k"}, nil},
		{"unknown log level", nil, []string{"--log-level", "trace"}},
		{"unknown flag", nil, []string{"--bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(append([]string{"--env", ""}, tt.args...))
			assert.Error(t, err)
		})
	}
}
