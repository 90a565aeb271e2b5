package postgres

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/summa-ledger/summa/internal/dbtx"
	"github.com/summa-ledger/summa/mmodel"
)

// OutboxRepository persists mmodel.OutboxEntry in the same transaction as
// the state change it describes (spec §3 "Outbox Entry", §5 "Ordering
// guarantees").
type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Insert(ctx context.Context, o *mmodel.OutboxEntry) error {
	ctx, span := startSpan(ctx, "insert_outbox_entry")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Insert("outbox").
		Columns("topic", "payload", "sequence_num", "created_at").
		Values(o.Topic, o.Payload, sq.Expr("nextval('ledger_event_sequence_number_seq')"), o.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)
	return err
}

// ClaimUnprocessed returns up to limit unprocessed rows, FOR UPDATE SKIP
// LOCKED, for the drain worker (internal/outboxmq) to publish.
func (r *OutboxRepository) ClaimUnprocessed(ctx context.Context, limit int) ([]*mmodel.OutboxEntry, error) {
	ctx, span := startSpan(ctx, "claim_unprocessed_outbox")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Select("id", "topic", "payload", "sequence_num", "processed_at", "created_at").
		From("outbox").
		Where(sq.Eq{"processed_at": nil}).
		OrderBy("sequence_num ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*mmodel.OutboxEntry
	for rows.Next() {
		var o mmodel.OutboxEntry
		if err := rows.Scan(&o.ID, &o.Topic, &o.Payload, &o.SequenceNum, &o.ProcessedAt, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id int64) error {
	ctx, span := startSpan(ctx, "mark_outbox_processed")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	const query = `UPDATE outbox SET processed_at = now() WHERE id = $1`
	_, err := exec.ExecContext(ctx, query, id)
	return err
}
