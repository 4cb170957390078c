package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"ledgercore/internal/config"
	"ledgercore/internal/db"
	"ledgercore/internal/outbox"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	pub := outbox.NewPublisher(pool, cfg.OutboxBatchSize, logSink)

	log.Printf("outbox publisher starting, polling every %s", cfg.OutboxInterval)
	pub.Run(ctx, cfg.OutboxInterval)
	log.Println("outbox publisher stopped")
}

// logSink is the publisher's default downstream: it hands every event to the
// process log. Swap this for a real broker sink (queue, webhook, stream)
// once one is wired; until then the outbox table itself is the durable
// record and this keeps delivery visible in the meantime.
func logSink(ctx context.Context, ev outbox.Event) error {
	log.Printf("event id=%s company=%d type=%s correlation=%s payload=%s", ev.ID, ev.CompanyID, ev.Type, ev.CorrelationID, ev.Payload)
	return nil
}
