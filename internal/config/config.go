// Package config resolves server settings from command-line flags, an
// optional .env file and the process environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Store backends
const (
	StoreFile   = "file"
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config holds every server setting
type Config struct {
	Port     string
	LogLevel string

	Store         string
	DataDir       string
	MongoURI      string
	MongoDatabase string

	GeminiAPIKey string
	GeminiModel  string
	GeminiVoice  string
	MockLive     bool
	NoAudio      bool

	AccessKey string
	JWTSecret string

	AutosaveQuiet time.Duration
	ConnectWait   time.Duration
}

// Default returns the settings used when nothing is configured
func Default() Config {
	return Config{
		Port:          "8080",
		LogLevel:      "info",
		Store:         StoreFile,
		DataDir:       "data",
		AutosaveQuiet: time.Second,
		ConnectWait:   5 * time.Second,
	}
}

// Load parses args, loads the env file they name and reads the environment.
// Flags win over the environment.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("bpmn-voice", pflag.ContinueOnError)
	envFile := fs.StringP("env", "e", ".env", "Env file path")
	port := fs.StringP("port", "p", "", "HTTP listen port")
	store := fs.String("store", "", "Session store backend (file, mongo, memory)")
	dataDir := fs.String("data-dir", "", "Directory of the file store")
	noAudio := fs.Bool("no-audio", false, "Do not open local audio devices")
	mockLive := fs.Bool("mock-live", false, "Use the offline scripted live session")
	logLevel := fs.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", *envFile, err)
		}
	}

	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}

	if fs.Changed("port") {
		cfg.Port = *port
	}
	if fs.Changed("store") {
		cfg.Store = *store
	}
	if fs.Changed("data-dir") {
		cfg.DataDir = *dataDir
	}
	if fs.Changed("no-audio") {
		cfg.NoAudio = *noAudio
	}
	if fs.Changed("mock-live") {
		cfg.MockLive = *mockLive
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}

	return cfg, cfg.Validate()
}

// FromEnv reads settings from environment variables on top of the defaults
func FromEnv() (Config, error) {
	cfg := Default()

	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Store, "STORE_BACKEND")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.MongoURI, "MONGODB_URI")
	setString(&cfg.MongoDatabase, "MONGODB_DATABASE")
	setString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.GeminiModel, "GEMINI_MODEL")
	setString(&cfg.GeminiVoice, "GEMINI_VOICE")
	setString(&cfg.AccessKey, "ACCESS_KEY")
	setString(&cfg.JWTSecret, "JWT_SECRET")

	var err error
	if cfg.MockLive, err = envBool("MOCK_LIVE", cfg.MockLive); err != nil {
		return Config{}, err
	}
	if cfg.NoAudio, err = envBool("NO_AUDIO", cfg.NoAudio); err != nil {
		return Config{}, err
	}
	if cfg.AutosaveQuiet, err = envMillis("AUTOSAVE_QUIET_MS", cfg.AutosaveQuiet); err != nil {
		return Config{}, err
	}
	if cfg.ConnectWait, err = envMillis("CONNECT_WAIT_MS", cfg.ConnectWait); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted
func (c Config) Validate() error {
	if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	switch c.Store {
	case StoreFile:
		if c.DataDir == "" {
			return errors.New("DATA_DIR is required for the file store")
		}
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.AccessKey != "" && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required when ACCESS_KEY is set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envMillis(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
