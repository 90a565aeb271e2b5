package outboxmq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/summa-ledger/summa/internal/mlog"
	"github.com/summa-ledger/summa/mmodel"
)

// Repository is the subset of postgres.OutboxRepository the drainer needs.
type Repository interface {
	ClaimUnprocessed(ctx context.Context, limit int) ([]*mmodel.OutboxEntry, error)
	MarkProcessed(ctx context.Context, id int64) error
}

// Drainer publishes claimed outbox rows to RabbitMQ.
type Drainer struct {
	Conn       *Connection
	Repository Repository
	BatchSize  int
	Logger     mlog.Logger
}

// DrainOnce claims and publishes up to BatchSize rows, returning how many
// were successfully published and marked processed.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	rows, err := d.Repository.ClaimUnprocessed(ctx, d.BatchSize)
	if err != nil {
		return 0, err
	}

	ch, err := d.Conn.GetChannel(ctx)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, row := range rows {
		err := ch.PublishWithContext(ctx, d.Conn.Exchange, row.Topic, false, false, amqp.Publishing{
			ContentType:  "application/json",
			Body:         row.Payload,
			DeliveryMode: amqp.Persistent,
			Timestamp:    row.CreatedAt,
		})
		if err != nil {
			if d.Logger != nil {
				d.Logger.Errorf("outboxmq: publish failed for outbox row %d: %v", row.ID, err)
			}
			continue
		}
		if err := d.Repository.MarkProcessed(ctx, row.ID); err != nil {
			if d.Logger != nil {
				d.Logger.Errorf("outboxmq: mark processed failed for outbox row %d: %v", row.ID, err)
			}
			continue
		}
		published++
	}
	return published, nil
}

// Run polls DrainOnce on interval until ctx is canceled.
func (d *Drainer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil && d.Logger != nil {
				d.Logger.Errorf("outboxmq: drain tick failed: %v", err)
			}
		}
	}
}
