package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
)

var validate = validator.New()

type AppConfig struct {
	// Token is the resolved API token. It may be empty here; commands that
	// talk to the API call ResolveToken.
	Token      string
	ConfigPath string
	Verbose    bool

	BaseURL     string        `validate:"required,url"`
	HTTPTimeout time.Duration `validate:"gt=0"`

	// FetchInterval controls how often the poller fetches latest observations.
	FetchInterval time.Duration `validate:"gt=0"`
	PollStations  []string
	PollVars      []string

	StoreBackend    string        `validate:"oneof=memory sqlite"`
	SQLitePath      string        `validate:"required_if=StoreBackend sqlite"`
	StoreMaxHistory int           `validate:"gte=0"` // max snapshots per station (0 = unlimited)
	StoreMaxAge     time.Duration `validate:"gte=0"` // max age of snapshots (0 = unlimited)

	Port     string `validate:"required,numeric"`
	AppEnv   string `validate:"oneof=dev prod"`
	LogLevel slog.Level
}

// Load reads configuration from the environment, an optional .env file and
// the per-user config file, with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	cfg := &AppConfig{}

	cfg.ConfigPath = getenvDefault("MESONET_CONFIG_PATH", DefaultConfigPath())
	file, err := readConfigFile(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Token = strings.TrimSpace(os.Getenv("MESONET_TOKEN"))
	if cfg.Token == "" {
		cfg.Token = strings.TrimSpace(file["token"])
	}
	if v, ok := file["verbose"]; ok {
		cfg.Verbose, _ = strconv.ParseBool(strings.TrimSpace(v))
	}

	cfg.BaseURL = getenvDefault("MESONET_BASE_URL", mesonet.DefaultBaseURL)
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	// Poll every 15 minutes by default.
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "15m"); err != nil {
		return nil, err
	}
	cfg.PollStations = splitList(os.Getenv("POLL_STATIONS"))
	cfg.PollVars = splitList(os.Getenv("POLL_VARS"))

	cfg.StoreBackend = strings.ToLower(getenvDefault("STORE_BACKEND", "memory"))
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "mesonet.db")
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // roughly 24h at 15-minute intervals
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.AppEnv = strings.ToLower(getenvDefault("APP_ENV", "dev"))

	defaultLevel := "info"
	if cfg.Verbose {
		defaultLevel = "debug"
	}
	if cfg.LogLevel, err = parseLogLevel(getenvDefault("LOG_LEVEL", defaultLevel)); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolveToken picks the token to use: an explicit value wins over
// MESONET_TOKEN, which wins over the config file.
func (c *AppConfig) ResolveToken(explicit string) (string, error) {
	if t := strings.TrimSpace(explicit); t != "" {
		return t, nil
	}
	if c.Token != "" {
		return c.Token, nil
	}
	return "", fmt.Errorf("%w: set MESONET_TOKEN or add token to %s", mesonet.ErrNoToken, c.ConfigPath)
}

// DefaultConfigPath is ~/.config/mesonet/config.env.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "mesonet", "config.env")
	}
	return filepath.Join(home, ".config", "mesonet", "config.env")
}

// readConfigFile returns the key/value pairs of the config file. A missing
// file is not an error.
func readConfigFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[strings.ToLower(k)] = v
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
