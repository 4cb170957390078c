package outbox

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher polls unpublished outbox rows in (created_at, id) order and
// marks them published after handing each to a downstream sink. It never
// deletes rows — the events table is the durable log; ProcessedEvent-style
// dedup on the consumer side is the consumer's responsibility, not this
// publisher's.
type Publisher struct {
	pool      *pgxpool.Pool
	batchSize int
	sink      func(ctx context.Context, ev Event) error
}

// NewPublisher constructs a Publisher. sink is invoked once per event in
// order; a sink error stops that poll cycle's progress on first failure so
// ordering is preserved (§6: events are delivered in causal order per
// correlationId).
func NewPublisher(pool *pgxpool.Pool, batchSize int, sink func(ctx context.Context, ev Event) error) *Publisher {
	return &Publisher{pool: pool, batchSize: batchSize, sink: sink}
}

// Run polls every interval until ctx is canceled.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				log.Printf("outbox publisher: poll error: %v", err)
			}
		}
	}
}

func (p *Publisher) poll(ctx context.Context) error {
	rows, err := p.pool.Query(ctx, `
		SELECT id, company_id, type, payload, correlation_id, causation_id, created_at
		FROM events
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, p.batchSize)
	if err != nil {
		return err
	}

	var pending []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.CompanyID, &ev.Type, &ev.Payload, &ev.CorrelationID, &ev.CausationID, &ev.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ev := range pending {
		if err := p.sink(ctx, ev); err != nil {
			log.Printf("outbox publisher: sink failed for event %s: %v", ev.ID, err)
			return nil // preserve order: stop this cycle, retry from the same unpublished row next tick
		}
		if _, err := p.pool.Exec(ctx, `UPDATE events SET published_at = NOW() WHERE id = $1`, ev.ID); err != nil {
			return err
		}
	}
	return nil
}
