package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"airbridge/internal/accessory"
	"airbridge/internal/api"
	"airbridge/internal/bridge"
	"airbridge/internal/clock"
	"airbridge/internal/cloud"
	"airbridge/internal/config"
	"airbridge/internal/hub"
	"airbridge/internal/reconcile"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	configPath := os.Getenv("AIRBRIDGE_CONFIG")
	if configPath == "" {
		configPath = "airbridge.yaml"
	}

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Starting appliance bridge",
		zap.String("cloud_url", cfg.Cloud.BaseURL))

	// Cloud API client
	client := cloud.NewClient(cfg.Cloud.BaseURL, cfg.Cloud.Username, cfg.Cloud.Password, logger)
	if err := client.Login(context.Background()); err != nil {
		logger.Fatal("Failed to log in to appliance cloud", zap.Error(err))
	}

	// Device group. The hub sink is attached after the group exists,
	// because set requests need the reconcilers to route into.
	group := bridge.NewGroup(client, reconcile.NopPublisher{}, cfg.PollInterval(), clock.NewRealClock(), logger)

	var hubClient *hub.Client
	if cfg.Hub.URL != "" {
		router := accessory.NewRouter(group, logger)
		hubClient = hub.NewClient(cfg.Hub.URL, cfg.Hub.Token, router.HandleSet, logger)
		if err := hubClient.Connect(); err != nil {
			// The bridge keeps reconciling without a hub; pushes resume
			// once the hub connects.
			logger.Warn("Hub unavailable, continuing without push surface", zap.Error(err))
		} else {
			defer hubClient.Disconnect()
		}
	}

	if err := group.Start(); err != nil {
		logger.Fatal("Failed to start device group", zap.Error(err))
	}
	defer group.Stop()

	// Attach the push sink after the first poll so the hub sees real
	// values, not stale cached ones.
	if hubClient != nil {
		group.SetPublisher(accessory.NewFanout(hubClient))
	}

	var debugServer *api.Server
	if cfg.DebugPort != 0 {
		debugServer = api.NewServer(group, logger, cfg.DebugPort)
		if err := debugServer.Start(); err != nil {
			logger.Error("Failed to start debug server", zap.Error(err))
		} else {
			defer debugServer.Stop()
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Bridge running. Press Ctrl+C to exit.")
	<-sigChan

	logger.Info("Shutting down gracefully...")
}
