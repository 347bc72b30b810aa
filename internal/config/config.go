package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/rendercheck/internal/browser"
	"github.com/dgnsrekt/rendercheck/internal/verify"
	"github.com/joho/godotenv"
)

const (
	NotifyOnFailure = "failure"
	NotifyOnAlways  = "always"
)

// Config holds configuration for a single verification run.
type Config struct {
	// Verification defaults
	TargetURL           string
	ReadinessSelector   string
	ReadinessState      string
	ReadinessTimeoutMS  int
	SettleDelayMS       int
	NavigationTimeoutMS int
	CaptureTimeoutMS    int
	OutputPath          string
	Headless            bool
	ViewportWidth       int
	ViewportHeight      int
	FullPage            bool

	// Browser backend
	Driver            string
	ChromePath        string
	CDPURL            string
	NoSandbox         bool
	PlaywrightInstall bool

	// Notifications
	NotifyURL string
	NotifyOn  string

	// Outcome history; empty disables it.
	JournalDir       string
	JournalMaxSizeMB int

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		TargetURL:           getEnvOrDefault("RENDERCHECK_TARGET_URL", "http://localhost:5173"),
		ReadinessSelector:   getEnvOrDefault("RENDERCHECK_READINESS_SELECTOR", verify.DefaultReadinessSelector),
		ReadinessState:      strings.ToLower(getEnvOrDefault("RENDERCHECK_READINESS_STATE", string(verify.StateVisible))),
		ReadinessTimeoutMS:  getEnvIntOrDefault("RENDERCHECK_READINESS_TIMEOUT_MS", int(verify.DefaultReadinessTimeout.Milliseconds())),
		SettleDelayMS:       getEnvIntOrDefault("RENDERCHECK_SETTLE_DELAY_MS", int(verify.DefaultSettleDelay.Milliseconds())),
		NavigationTimeoutMS: getEnvIntOrDefault("RENDERCHECK_NAVIGATION_TIMEOUT_MS", int(verify.DefaultNavigationTimeout.Milliseconds())),
		CaptureTimeoutMS:    getEnvIntOrDefault("RENDERCHECK_CAPTURE_TIMEOUT_MS", int(verify.DefaultCaptureTimeout.Milliseconds())),
		OutputPath:          getEnvOrDefault("RENDERCHECK_OUTPUT_PATH", verify.DefaultOutputPath),
		Headless:            getEnvBoolOrDefault("RENDERCHECK_HEADLESS", true),
		ViewportWidth:       getEnvIntOrDefault("RENDERCHECK_VIEWPORT_WIDTH", verify.DefaultViewportWidth),
		ViewportHeight:      getEnvIntOrDefault("RENDERCHECK_VIEWPORT_HEIGHT", verify.DefaultViewportHeight),
		FullPage:            getEnvBoolOrDefault("RENDERCHECK_FULL_PAGE", false),
		Driver:              strings.ToLower(getEnvOrDefault("RENDERCHECK_DRIVER", browser.DriverChromedp)),
		ChromePath:          getEnvOrDefault("RENDERCHECK_CHROME_PATH", ""),
		CDPURL:              getEnvOrDefault("RENDERCHECK_CDP_URL", ""),
		NoSandbox:           getEnvBoolOrDefault("RENDERCHECK_NO_SANDBOX", false),
		PlaywrightInstall:   getEnvBoolOrDefault("RENDERCHECK_PLAYWRIGHT_INSTALL", false),
		NotifyURL:           getEnvOrDefault("RENDERCHECK_NOTIFY_URL", ""),
		NotifyOn:            strings.ToLower(getEnvOrDefault("RENDERCHECK_NOTIFY_ON", NotifyOnFailure)),
		JournalDir:          getEnvOrDefault("RENDERCHECK_JOURNAL_DIR", "verification/journal"),
		JournalMaxSizeMB:    getEnvIntOrDefault("RENDERCHECK_JOURNAL_MAX_SIZE_MB", 25),
		LogLevel:            strings.ToLower(getEnvOrDefault("RENDERCHECK_LOG_LEVEL", "info")),
		LogFile:             getEnvOrDefault("RENDERCHECK_LOG_FILE", "logs/rendercheck.log"),
	}
	if cfg.NotifyOn != NotifyOnAlways {
		cfg.NotifyOn = NotifyOnFailure
	}
	switch strings.ToLower(strings.TrimSpace(cfg.JournalDir)) {
	case "off", "none", "false", "-":
		cfg.JournalDir = ""
	}

	return cfg, nil
}

// Options converts the loaded defaults into run options. Out-of-range values
// are passed through so Validate reports them.
func (c *Config) Options() verify.Options {
	return verify.Options{
		TargetURL:         c.TargetURL,
		ReadinessSelector: c.ReadinessSelector,
		ReadinessState:    verify.ReadinessState(c.ReadinessState),
		ReadinessTimeout:  millis(c.ReadinessTimeoutMS),
		SettleDelay:       millis(c.SettleDelayMS),
		NavigationTimeout: millis(c.NavigationTimeoutMS),
		CaptureTimeout:    millis(c.CaptureTimeoutMS),
		OutputPath:        c.OutputPath,
		Headless:          c.Headless,
		ViewportWidth:     c.ViewportWidth,
		ViewportHeight:    c.ViewportHeight,
		FullPage:          c.FullPage,
	}
}

// BrowserConfig returns the backend selection for browser.New.
func (c *Config) BrowserConfig() browser.Config {
	return browser.Config{
		Name:              c.Driver,
		ExecPath:          c.ChromePath,
		CDPURL:            c.CDPURL,
		NoSandbox:         c.NoSandbox,
		PlaywrightInstall: c.PlaywrightInstall,
	}
}

// ShouldNotify reports whether an outcome with the given success flag is
// worth a notification.
func (c *Config) ShouldNotify(ok bool) bool {
	if c.NotifyURL == "" {
		return false
	}
	return !ok || c.NotifyOn == NotifyOnAlways
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
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
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
