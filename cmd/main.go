package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"dispatchbot/config"
	"dispatchbot/pkg/bot"
	"dispatchbot/pkg/logger"
	"dispatchbot/storage/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)

	pgStore, err := postgres.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to connect to postgres", logger.Error(err))
		os.Exit(1)
	}
	defer pgStore.Close()

	dispatchBot, err := bot.New(&cfg, pgStore, log)
	if err != nil {
		log.Error("failed to initialize bot", logger.Error(err))
		os.Exit(1)
	}

	go func() {
		log.Info("bot is starting...")
		dispatchBot.Start()
	}()

	go func() {
		log.Info("web api is starting...", logger.Int("port", cfg.HTTPPort))
		if err := bot.RunServer(&cfg, pgStore, dispatchBot.Svc, log); err != nil {
			log.Error("web api stopped", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	dispatchBot.Stop()
}
