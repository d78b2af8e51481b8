// Package main provides the entry point for the agent gateway. The gateway
// fronts the backend agent service for browser frontends: it exchanges caller
// sessions for upstream credentials, relays chat and event-stream traffic,
// and keeps a local audit trail of mutating operations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/casaops/agentgate/internal/api"
	"github.com/casaops/agentgate/internal/api/handlers"
	"github.com/casaops/agentgate/internal/audit"
	"github.com/casaops/agentgate/internal/buildinfo"
	"github.com/casaops/agentgate/internal/config"
	"github.com/casaops/agentgate/internal/credential"
	"github.com/casaops/agentgate/internal/logging"
	"github.com/casaops/agentgate/internal/upstream"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// main is the entry point of the application. It parses command-line flags,
// loads configuration, wires the credential provider, upstream client, and
// audit trail, and runs the HTTP server until a shutdown signal arrives.
func main() {
	fmt.Printf("Agent Gateway Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&showVersion, "version", false, "Show gateway version and exit")
	flag.Parse()

	if showVersion {
		// Version already printed at startup, just exit
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	configFilePath := configPath
	if configFilePath == "" {
		configFilePath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}
	if _, err = config.ValidateConfig(cfg); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return
	}

	applyLogSettings(cfg)
	log.Infof("Agent Gateway Version: %s, Commit: %s, BuiltAt: %s", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var source credential.Source
	switch cfg.Session.GetMode() {
	case config.SessionModeStatic:
		source = credential.StaticSource{Token: cfg.Session.StaticToken}
		log.Info("session credentials: static token")
	default:
		source = credential.NewExchangeSource(cfg.Session.TokenURL, cfg.Session.APIKey)
		log.Infof("session credentials: exchange via %s", cfg.Session.TokenURL)
	}
	provider := credential.NewProvider(source, cfg.Session.GetRefreshSkew(), cfg.Session.GetCacheTTL())

	client := upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.GetTimeout(), cfg.Upstream.GetRequestRetry())
	log.Infof("upstream agent service: %s", cfg.Upstream.BaseURL)

	var recorder *audit.Recorder
	if cfg.Audit.Enabled() {
		recorder, err = audit.Open(cfg.Audit.Database)
		if err != nil {
			log.Errorf("failed to open audit trail: %v", err)
			return
		}
		log.Infof("audit trail: %s", cfg.Audit.Database)
	}

	srv := api.NewServer(cfg, handlers.New(provider, client, recorder))

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if err = config.Watch(watchCtx, configFilePath, func(next *config.Config) {
		applyLogSettings(next)
		srv.UpdateConfig(next)
	}); err != nil {
		log.Warnf("config hot reload disabled: %v", err)
	}

	go func() {
		if errServe := srv.Start(); errServe != nil {
			log.Errorf("server error: %v", errServe)
			os.Exit(1)
		}
	}()
	log.Infof("agent gateway listening on %s:%d", cfg.Host, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = srv.Stop(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
	if recorder != nil {
		_ = recorder.Close()
	}
}

// applyLogSettings configures log level and output from the active
// configuration. Called at startup and again on every hot reload.
func applyLogSettings(cfg *config.Config) {
	switch {
	case cfg.Debug:
		logging.SetLogLevel("debug")
	case strings.TrimSpace(cfg.LoggingLevel) != "":
		logging.SetLogLevel(cfg.LoggingLevel)
	default:
		logging.SetLogLevel("info")
	}
	logging.ConfigureFileOutput(cfg.LoggingToFile, cfg.LogDir)
}
