package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUsage           = errors.New("expected <input_dir> <output_dir> <poll_interval_seconds> <concurrency_limit>")
	ErrInvalidArgument = errors.New("invalid argument")
)

type Config struct {
	// Positional
	InputDir     string
	OutputDir    string
	PollInterval time.Duration
	Concurrency  int

	// Executor
	Executor    string // "shell" or "docker"
	DockerImage string
	Profile     Profile

	// Reporter
	ReportInterval time.Duration

	// Status server; empty disables it
	HTTPPort string

	// Sinks; empty disables each one
	DatabaseURL string
	RedisURL    string
	MQTTBroker  string
	MQTTPrefix  string

	// Logging
	LogLevel  slog.Level
	LogFormat string // "json" or "text"

	// Tracing
	OTLPEndpoint string
	ServiceName  string

	// Features
	EnableMetrics bool
	EnableTracing bool
}

// Load reads the environment and the four positional arguments.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		Executor:       getEnv("EXECUTOR", "shell"),
		DockerImage:    getEnv("DOCKER_IMAGE", "linuxserver/ffmpeg:latest"),
		ReportInterval: time.Duration(getEnvInt("REPORT_INTERVAL", 2)) * time.Second,
		HTTPPort:       getEnv("HTTP_PORT", ""),
		DatabaseURL:    getEnv("DB_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		MQTTBroker:     getEnv("MQTT_BROKER", ""),
		MQTTPrefix:     getEnv("MQTT_PREFIX", "picpic/transcode"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", ""),
		ServiceName:    getEnv("SERVICE_NAME", "picpic-transcode"),
		EnableMetrics:  getEnvBool("ENABLE_METRICS", true),
		EnableTracing:  getEnvBool("ENABLE_TRACING", false),
	}
	cfg.LogLevel = parseLevel(getEnv("LOG_LEVEL", "info"))

	if err := cfg.applyArgs(args); err != nil {
		return nil, err
	}

	profile := DefaultProfile()
	if path := getEnv("PROFILE_FILE", ""); path != "" {
		p, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		profile = *p
	}
	cfg.Profile = profile

	if cfg.Executor != "shell" && cfg.Executor != "docker" {
		return nil, fmt.Errorf("%w: EXECUTOR must be shell or docker, got %q", ErrInvalidArgument, cfg.Executor)
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 2 * time.Second
	}

	return cfg, nil
}

func (c *Config) applyArgs(args []string) error {
	if len(args) != 4 {
		return ErrUsage
	}

	c.InputDir = args[0]
	c.OutputDir = args[1]

	secs, err := strconv.Atoi(strings.TrimSpace(args[2]))
	if err != nil || secs < 0 {
		return fmt.Errorf("%w: poll interval %q must be a non-negative integer", ErrInvalidArgument, args[2])
	}
	c.PollInterval = time.Duration(secs) * time.Second

	n, err := strconv.Atoi(strings.TrimSpace(args[3]))
	if err != nil || n < 1 {
		return fmt.Errorf("%w: concurrency limit %q must be an integer >= 1", ErrInvalidArgument, args[3])
	}
	c.Concurrency = n

	return nil
}

// PreparePaths checks the input directory, creates the output directory
// and rejects setups where both resolve to the same place: the scanner would
// pick up files the encoder is still writing. Both directories are made
// absolute so scanned paths match the container mounts.
func (c *Config) PreparePaths() error {
	var err error
	if c.InputDir, err = filepath.Abs(c.InputDir); err != nil {
		return fmt.Errorf("input directory: %w", err)
	}
	if c.OutputDir, err = filepath.Abs(c.OutputDir); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}

	fi, err := os.Stat(c.InputDir)
	if err != nil {
		return fmt.Errorf("input directory: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("input directory: %s is not a directory", c.InputDir)
	}
	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	in, err := absPath(c.InputDir)
	if err != nil {
		return err
	}
	out, err := absPath(c.OutputDir)
	if err != nil {
		return err
	}
	if in == out {
		return fmt.Errorf("%w: input and output directory must differ (%s)", ErrInvalidArgument, in)
	}
	return nil
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
