package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alucardeht/chrome-bridge/internal/config"
	"github.com/alucardeht/chrome-bridge/internal/daemon"
	"github.com/alucardeht/chrome-bridge/internal/logger"
)

func main() {
	cfg := config.Load()
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare data directory: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.LogLevel)
	logger.Init(logCfg)

	pid := daemon.NewPIDFile(cfg.PIDPath)
	if existing, err := pid.Read(); err == nil && existing != 0 && !pid.IsStale() {
		fmt.Println("daemon already running")
		os.Exit(0)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		logger.Error("failed to create daemon", "error", err)
		os.Exit(1)
	}

	go handleSignals(d)

	if err := d.Start(); err != nil {
		logger.Error("daemon exited", "error", err)
		os.Exit(1)
	}
}

func handleSignals(d *daemon.Daemon) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	d.Shutdown()
}
