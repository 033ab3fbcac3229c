package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ExpiryLayout is the accepted format of SUITE_EXPIRY_AT, read in local time.
const ExpiryLayout = "2006-01-02T15:04:05"

// Config holds all configuration for the countdown suite and its server.
type Config struct {
	// Target under test
	TargetURL string
	ExpiryAt  time.Time

	// Browser settings
	BrowserMode  string
	Headless     bool
	NoSandbox    bool
	WindowWidth  int
	WindowHeight int
	NavTimeoutMS int
	OpTimeoutMS  int
	CDPAddress   string
	CDPPort      int
	ProfileDir   string
	BrowserPath  string

	// Run artifacts
	DataDir             string
	ScreenshotOnFailure bool
	HistoryBufferSize   int
	HistoryMaxSizeMB    int

	// Logging and notification
	LogLevel  string
	LogFile   string
	NotifyURL string

	// HTTP server
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		TargetURL:           getEnvOrDefault("SUITE_TARGET_URL", "http://127.0.0.1:5500/selection_code/index.html"),
		BrowserMode:         strings.ToLower(getEnvOrDefault("SUITE_BROWSER_MODE", "exec")),
		Headless:            getEnvBoolOrDefault("SUITE_HEADLESS", true),
		NoSandbox:           getEnvBoolOrDefault("SUITE_NO_SANDBOX", false),
		NavTimeoutMS:        getEnvIntOrDefault("SUITE_NAV_TIMEOUT_MS", 30000),
		OpTimeoutMS:         getEnvIntOrDefault("SUITE_OP_TIMEOUT_MS", 10000),
		CDPAddress:          getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:             getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		ProfileDir:          getEnvOrDefault("SUITE_PROFILE_DIR", "./browser_profile"),
		BrowserPath:         getEnvOrDefault("SUITE_BROWSER_PATH", ""),
		DataDir:             getEnvOrDefault("SUITE_DATA_DIR", "./suite_data"),
		ScreenshotOnFailure: getEnvBoolOrDefault("SUITE_SCREENSHOT_ON_FAILURE", true),
		HistoryBufferSize:   getEnvIntOrDefault("SUITE_HISTORY_BUFFER_SIZE", 64),
		HistoryMaxSizeMB:    getEnvIntOrDefault("SUITE_HISTORY_MAX_SIZE_MB", 50),
		LogLevel:            strings.ToLower(getEnvOrDefault("SUITE_LOG_LEVEL", "info")),
		LogFile:             getEnvOrDefault("SUITE_LOG_FILE", "logs/countdown_suite.log"),
		NotifyURL:           getEnvOrDefault("SUITE_NOTIFY_URL", ""),
		BindAddr:            getEnvOrDefault("SUITE_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:      getEnvListOrDefault("SUITE_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback:    getEnvBoolOrDefault("SUITE_PORT_AUTO_FALLBACK", true),
	}

	expiry, err := ParseExpiry(getEnvOrDefault("SUITE_EXPIRY_AT", "2025-01-01T00:00:00"))
	if err != nil {
		return nil, fmt.Errorf("SUITE_EXPIRY_AT: %w", err)
	}
	cfg.ExpiryAt = expiry

	if err := cfg.SetWindowSize(getEnvOrDefault("SUITE_WINDOW_SIZE", "1280,800")); err != nil {
		return nil, fmt.Errorf("SUITE_WINDOW_SIZE: %w", err)
	}

	if cfg.NavTimeoutMS < 1000 {
		cfg.NavTimeoutMS = 1000
	}
	if cfg.OpTimeoutMS < 1000 {
		cfg.OpTimeoutMS = 1000
	}
	if cfg.HistoryBufferSize < 1 {
		cfg.HistoryBufferSize = 1
	}
	return cfg, nil
}

// ParseExpiry parses an instant in ExpiryLayout as local time. RFC 3339
// values with an explicit offset are accepted too.
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(ExpiryLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q (want %s or RFC 3339)", s, ExpiryLayout)
	}
	return t, nil
}

// SetWindowSize parses "width,height".
func (c *Config) SetWindowSize(s string) error {
	w, h, ok := strings.Cut(s, ",")
	if !ok {
		return fmt.Errorf("invalid window size %q (want width,height)", s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return fmt.Errorf("invalid window width %q", w)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return fmt.Errorf("invalid window height %q", h)
	}
	c.WindowWidth, c.WindowHeight = width, height
	return nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by the remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// NavTimeout returns the navigation timeout.
func (c *Config) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutMS) * time.Millisecond
}

// OpTimeout returns the per-operation driver timeout.
func (c *Config) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
