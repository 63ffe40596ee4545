package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradeflow/config"
	"tradeflow/exchange/binance"
	"tradeflow/logger"
	"tradeflow/trading"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tradeflow.Name,
		"version": cfg.Tradeflow.Version,
		"env":     config.AppEnvironment(),
	}).Info("starting tradeflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.InitCloudWatch("", cfg.Tradeflow.Name, cfg.Logging.DashboardName)
		logger.StartReport(ctx, log, 30*time.Second)
	}

	creds, err := config.CredentialsFromEnv(cfg.Exchange.Network)
	if err != nil {
		log.WithError(err).Error("missing api credentials")
		os.Exit(1)
	}

	client := binance.New(cfg)
	activity := trading.NewRecorder(log)
	manager := trading.NewManager(client, activity)

	if err := manager.Connect(ctx, creds); err != nil {
		log.WithError(err).Warn("initial connect failed; retrying on the next tick")
	}

	if limit, err := client.RequestWeightLimit(ctx); err == nil && limit > 0 {
		log.WithFields(logger.Fields{"request_weight_limit": limit}).Info("fetched request weight limit")
	} else if err != nil {
		log.WithError(err).Warn("failed to fetch request weight limit")
	}

	ticker := time.NewTicker(cfg.Trading.RefreshInterval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("all components started successfully")

	for {
		select {
		case <-ticker.C:
			if manager.State() != trading.StateConnected {
				if err := manager.Connect(ctx, creds); err != nil {
					log.WithError(err).Warn("reconnect attempt failed")
				}
				continue
			}
			if err := manager.Refresh(ctx); err != nil {
				log.WithError(err).Warn("refresh failed")
			}
		case sig := <-sigChan:
			log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
			cancel()
			log.WithFields(logger.Fields{
				"open_orders":     len(manager.Snapshot()),
				"activity_events": activity.Len(),
			}).Info("tradeflow stopped")
			return
		}
	}
}
