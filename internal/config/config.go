package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/alucardeht/chrome-bridge/internal/watcher"
)

// DefaultEndpoint is used whenever the settings store has no endpoint
// or holds a blank one.
const DefaultEndpoint = "ws://127.0.0.1:18792/bridge"

type BrowserConfig struct {
	// RemoteURL is the CDP endpoint of an already-running Chrome
	// (--remote-debugging-port). Empty disables the browser host and
	// capability calls that need it report unavailability.
	RemoteURL string
	Timeout   time.Duration
}

type Config struct {
	SocketPath   string
	PIDPath      string
	LockPath     string
	SettingsPath string
	LogLevel     string
	Browser      BrowserConfig
	Watcher      watcher.Config
}

func Load() *Config {
	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".bridged")

	cfg := &Config{
		SocketPath:   filepath.Join(baseDir, "bridged.sock"),
		PIDPath:      filepath.Join(baseDir, "bridged.pid"),
		LockPath:     filepath.Join(baseDir, "bridged.lock"),
		SettingsPath: filepath.Join(baseDir, "settings.db"),
		LogLevel:     "info",
		Browser: BrowserConfig{
			RemoteURL: os.Getenv("BRIDGED_CDP_URL"),
			Timeout:   30 * time.Second,
		},
		Watcher: watcher.DefaultConfig(),
	}

	if v := os.Getenv("BRIDGED_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

func (c *Config) EnsureDirectories() error {
	return os.MkdirAll(filepath.Dir(c.SettingsPath), 0700)
}
