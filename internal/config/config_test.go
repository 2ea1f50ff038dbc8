package config

import (
	"flag"
	"io"
	"testing"
	"time"
)

func parseFor(t *testing.T, args ...string) *Config {
	t.Helper()
	fs := flag.NewFlagSet("taskmuxd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := parseArgs(fs, args)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := parseFor(t)
	if cfg.Mode != defaultMode {
		t.Fatalf("mode=%q", cfg.Mode)
	}
	if cfg.Addr != defaultAddr {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.MaxLogBytes != defaultMaxLogBytes {
		t.Fatalf("maxLogBytes=%d", cfg.MaxLogBytes)
	}
	if cfg.StopTimeout != defaultStopTimeout {
		t.Fatalf("stopTimeout=%v", cfg.StopTimeout)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("TASKMUX_MODE", "http")
	t.Setenv("TASKMUX_STOP_TIMEOUT", "30s")

	cfg := parseFor(t, "-mode", "both", "-max-log-bytes", "4096")
	if cfg.Mode != "both" {
		t.Fatalf("mode=%q", cfg.Mode)
	}
	if cfg.MaxLogBytes != 4096 {
		t.Fatalf("maxLogBytes=%d", cfg.MaxLogBytes)
	}
	// Env still applies where no flag was given.
	if cfg.StopTimeout != 30*time.Second {
		t.Fatalf("stopTimeout=%v", cfg.StopTimeout)
	}
}

func TestUnsetFlagsLeaveEnvValues(t *testing.T) {
	t.Setenv("TASKMUX_ADDR", "127.0.0.1:9999")
	t.Setenv("TASKMUX_LOG_LEVEL", "debug")

	cfg := parseFor(t, "-mode", "http")
	if cfg.Addr != "127.0.0.1:9999" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("logLevel=%q", cfg.LogLevel)
	}
}

func TestOutOfRangeValuesClamped(t *testing.T) {
	cfg := parseFor(t, "-max-log-bytes", "16", "-stop-timeout", "0s")
	if cfg.MaxLogBytes != defaultMaxLogBytes {
		t.Fatalf("maxLogBytes=%d", cfg.MaxLogBytes)
	}
	if cfg.StopTimeout != defaultStopTimeout {
		t.Fatalf("stopTimeout=%v", cfg.StopTimeout)
	}
}
