package config

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration options for the daemon.
type Config struct {
	// Mode selects the protocol surface: "mcp" (stdio), "http" or "both".
	Mode string
	// Addr is the HTTP listen address for http/both modes.
	Addr string
	// AuthToken, when set, is required on every HTTP API request.
	AuthToken string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// MaxLogBytes is the default per-task log buffer budget.
	MaxLogBytes int
	// StopTimeout is the default grace period before stop escalates to SIGKILL.
	StopTimeout time.Duration
	// ShutdownGrace bounds HTTP server shutdown.
	ShutdownGrace time.Duration
	// BarkURL enables exit notifications via Bark when BarkEnabled is set.
	BarkURL     string
	BarkEnabled bool
}

const (
	defaultMode          = "mcp"
	defaultAddr          = "0.0.0.0:7171"
	defaultLogLevel      = "info"
	defaultMaxLogBytes   = 1 << 20
	defaultStopTimeout   = 5 * time.Second
	defaultShutdownGrace = 5 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	return parseArgs(flag.CommandLine, os.Args[1:])
}

func parseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	// Load .env if present: current directory first, then the user
	// config directory. The file is optional.
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "taskmux", ".env"))
	}
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Mode:          getEnvString("TASKMUX_MODE", defaultMode),
		Addr:          getEnvString("TASKMUX_ADDR", defaultAddr),
		AuthToken:     getEnvString("TASKMUX_AUTH_TOKEN", ""),
		LogLevel:      getEnvString("TASKMUX_LOG_LEVEL", defaultLogLevel),
		MaxLogBytes:   getEnvInt("TASKMUX_MAX_LOG_BYTES", defaultMaxLogBytes),
		StopTimeout:   getEnvDuration("TASKMUX_STOP_TIMEOUT", defaultStopTimeout),
		ShutdownGrace: getEnvDuration("TASKMUX_SHUTDOWN_GRACE", defaultShutdownGrace),
		BarkURL:       getEnvString("TASKMUX_BARK_URL", ""),
		BarkEnabled:   getEnvBool("TASKMUX_BARK_ENABLED", false),
	}

	var mode, addr, logLevel string
	var maxLogBytes int
	var stopTimeout, shutdownGrace time.Duration

	fs.StringVar(&mode, "mode", "", "Protocol surface: mcp, http or both (overrides env)")
	fs.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.IntVar(&maxLogBytes, "max-log-bytes", 0, "Default per-task log buffer budget in bytes")
	fs.DurationVar(&stopTimeout, "stop-timeout", 0, "Default grace period before stop escalates to SIGKILL")
	fs.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Visit only reports flags that were explicitly set, so a passed
	// zero value is distinguishable from an absent flag.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = mode
		case "addr":
			cfg.Addr = addr
		case "log-level":
			cfg.LogLevel = logLevel
		case "max-log-bytes":
			cfg.MaxLogBytes = maxLogBytes
		case "stop-timeout":
			cfg.StopTimeout = stopTimeout
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	if cfg.MaxLogBytes < 1024 {
		cfg.MaxLogBytes = defaultMaxLogBytes
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}

	return cfg, nil
}
