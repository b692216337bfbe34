package main

import (
	"context"

	"dispatchbot/config"
	"dispatchbot/pkg/logger"
	"dispatchbot/storage/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)

	pg, err := postgres.New(context.Background(), cfg, log)
	if err != nil {
		panic(err)
	}
	defer pg.Close()

	// CASCADE carries the wipe through broadcast rows, ticket threads and
	// the audit log that reference users and orders.
	_, err = pg.GetPool().Exec(context.Background(),
		"TRUNCATE TABLE users, orders, broadcast_messages, support_tickets, ticket_messages, audit_log RESTART IDENTITY CASCADE")
	if err != nil {
		log.Error("failed to truncate tables", logger.Error(err))
		return
	}
	log.Info("all operational tables truncated")
}
