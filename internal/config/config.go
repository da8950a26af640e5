// Package config loads process configuration from the .tgbotlib file, the
// environment and the OS keychain.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tgbotkit/internal/keychain"
	"tgbotkit/internal/logging"
)

const (
	// DefaultPath is the config file looked up in the working directory.
	DefaultPath = ".tgbotlib"
	// ExamplePath is the example shipped with the repository.
	ExamplePath = ".tgbotlib.in"

	envPrefix = "TGBOT"

	defaultPollTimeout   = 40 * time.Second
	defaultOutboundRate  = 30.0
	defaultOutboundBurst = 30
)

var (
	// ErrConfigNotFound is returned when the config file does not exist.
	ErrConfigNotFound = errors.New("config file not found")
	// ErrMissingToken is returned when no source provides a bot token.
	ErrMissingToken = errors.New("bot token is not configured")
)

// Config is the validated process configuration.
type Config struct {
	BotToken      string
	LogLevel      slog.Level
	LogFormat     string
	APIBaseURL    string
	PollTimeout   time.Duration
	MetricsAddr   string
	OutboundRate  float64
	OutboundBurst int
}

// TokenSource supplies a bot token when the file and environment do not.
type TokenSource func() (string, error)

// Option mutates loader behavior.
type Option func(*loader)

// WithEnvFile loads dotenv variables from path before reading the environment.
// A missing file is ignored.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

// WithTokenSource replaces the keychain fallback.
func WithTokenSource(source TokenSource) Option {
	return func(l *loader) {
		l.tokenSource = source
	}
}

type loader struct {
	envFile     string
	tokenSource TokenSource
}

// keys maps config file keys to their environment overrides.
var keys = map[string]string{
	"botToken":      "BOT_TOKEN",
	"logLevel":      "LOG_LEVEL",
	"logFormat":     "LOG_FORMAT",
	"apiBaseUrl":    "API_BASE_URL",
	"pollTimeout":   "POLL_TIMEOUT",
	"metricsAddr":   "METRICS_ADDR",
	"outboundRate":  "OUTBOUND_RATE",
	"outboundBurst": "OUTBOUND_BURST",
}

// Load reads the JSON config file at path, applies TGBOT_* environment overrides
// and validates the result.
func Load(path string, options ...Option) (Config, error) {
	l := loader{envFile: ".env", tokenSource: keychain.Token}
	for _, option := range options {
		option(&l)
	}

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", l.envFile, err)
		}
	}

	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf(
			"%w: create %s in the project root (see %s for an example)",
			ErrConfigNotFound, path, ExamplePath,
		)
	}
	if err != nil {
		return Config{}, fmt.Errorf("stat config file %s: %w", path, err)
	}
	if info.IsDir() {
		return Config{}, fmt.Errorf("config file %s is a directory", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", logging.FormatText)
	v.SetDefault("pollTimeout", defaultPollTimeout.String())
	v.SetDefault("outboundRate", defaultOutboundRate)
	v.SetDefault("outboundBurst", defaultOutboundBurst)
	for key, env := range keys {
		if err := v.BindEnv(key, envPrefix+"_"+env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if cfg.BotToken == "" && l.tokenSource != nil {
		token, err := l.tokenSource()
		if err != nil {
			return Config{}, err
		}
		cfg.BotToken = strings.TrimSpace(token)
	}
	if cfg.BotToken == "" {
		return Config{}, fmt.Errorf(
			"%w: set botToken in %s, %s_BOT_TOKEN, or run `bot token set`",
			ErrMissingToken, path, envPrefix,
		)
	}

	return cfg, nil
}

func decode(v *viper.Viper) (Config, error) {
	level, err := logging.ParseLevel(v.GetString("logLevel"))
	if err != nil {
		return Config{}, fmt.Errorf("logLevel: %w", err)
	}

	format := strings.ToLower(strings.TrimSpace(v.GetString("logFormat")))
	if format != logging.FormatText && format != logging.FormatJSON {
		return Config{}, fmt.Errorf("logFormat: unsupported format %q", format)
	}

	pollTimeout, err := time.ParseDuration(strings.TrimSpace(v.GetString("pollTimeout")))
	if err != nil {
		return Config{}, fmt.Errorf("pollTimeout: %w", err)
	}
	if pollTimeout <= 0 {
		return Config{}, fmt.Errorf("pollTimeout: must be > 0")
	}

	rate := v.GetFloat64("outboundRate")
	if rate < 0 {
		return Config{}, fmt.Errorf("outboundRate: must be >= 0")
	}
	burst := v.GetInt("outboundBurst")
	if rate > 0 && burst <= 0 {
		return Config{}, fmt.Errorf("outboundBurst: must be > 0")
	}

	return Config{
		BotToken:      strings.TrimSpace(v.GetString("botToken")),
		LogLevel:      level,
		LogFormat:     format,
		APIBaseURL:    strings.TrimSpace(v.GetString("apiBaseUrl")),
		PollTimeout:   pollTimeout,
		MetricsAddr:   strings.TrimSpace(v.GetString("metricsAddr")),
		OutboundRate:  rate,
		OutboundBurst: burst,
	}, nil
}
