package main

import (
	"context"
	"log"
	"net/http"

	"ledgercore/internal/config"
	"ledgercore/internal/db"
	"ledgercore/internal/idempotency"
	"ledgercore/internal/inventory"
	"ledgercore/internal/ledger"
	"ledgercore/internal/lock"
	"ledgercore/internal/reports"
	"ledgercore/internal/web"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	locks := lock.NewManager(redisClient)
	idem := idempotency.NewStore(pool)

	ledgerCmds := ledger.NewCommands(idem, locks, cfg.JournalLockTTL, cfg.PeriodCloseTTL)
	ledgerReader := ledger.NewReader(pool)
	invCmds := inventory.NewCommands(idem, locks, cfg.InventoryLockTTL)
	rep := reports.New(pool)

	handler := web.NewHandler(ledgerCmds, ledgerReader, invCmds, rep, cfg.AllowedOrigins, cfg.JWTSecret)

	log.Printf("server starting on :%s", cfg.ServerPort)
	if err := http.ListenAndServe(":"+cfg.ServerPort, handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}
