package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/summa-ledger/summa/internal/dbtx"
	"github.com/summa-ledger/summa/internal/errkind"
	"github.com/summa-ledger/summa/mmodel"
)

// EventRepository persists mmodel.LedgerEvent, the append-only audit log
// (spec §3 "Ledger Event"). The unique (ledgerId, aggregateType,
// aggregateId, aggregateVersion) constraint is the serialization point for
// concurrent appends to the same aggregate (spec §5).
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Append(ctx context.Context, e *mmodel.LedgerEvent) error {
	ctx, span := startSpan(ctx, "append_ledger_event")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	data, err := json.Marshal(e.EventData)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert("ledger_event").
		Columns("sequence_number", "ledger_id", "aggregate_type", "aggregate_id",
			"aggregate_version", "event_type", "event_data", "correlation_id",
			"hash", "prev_hash", "created_at").
		Values(sq.Expr("nextval('ledger_event_sequence_number_seq')"), e.LedgerID,
			e.AggregateType, e.AggregateID, e.AggregateVersion, e.EventType, data,
			e.CorrelationID, e.Hash, e.PrevHash, e.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return errkind.ClassifyPGError(pgErr, "LedgerEvent")
		}
		return err
	}
	return nil
}

// ListByAggregate returns the full chain for one aggregate, ascending by
// version — the input to full chain verification (spec §4.3).
func (r *EventRepository) ListByAggregate(ctx context.Context, ledgerID string, aggType mmodel.AggregateType, aggID string, fromVersion int64) ([]*mmodel.LedgerEvent, error) {
	ctx, span := startSpan(ctx, "list_events_by_aggregate")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Select(eventColumns...).
		From("ledger_event").
		Where(sq.Eq{"ledger_id": ledgerID, "aggregate_type": aggType, "aggregate_id": aggID}).
		Where(sq.Gt{"aggregate_version": fromVersion}).
		OrderBy("aggregate_version ASC").
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

	var out []*mmodel.LedgerEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByCorrelation returns every event sharing a correlationId, used to
// reconstruct what a single top-level command produced.
func (r *EventRepository) ListByCorrelation(ctx context.Context, ledgerID, correlationID string) ([]*mmodel.LedgerEvent, error) {
	ctx, span := startSpan(ctx, "list_events_by_correlation")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Select(eventColumns...).
		From("ledger_event").
		Where(sq.Eq{"ledger_id": ledgerID, "correlation_id": correlationID}).
		OrderBy("sequence_number ASC").
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

	var out []*mmodel.LedgerEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestVersion returns the current aggregateVersion for an aggregate, or
// 0 if it has no events yet.
func (r *EventRepository) LatestVersion(ctx context.Context, ledgerID string, aggType mmodel.AggregateType, aggID string) (int64, string, error) {
	ctx, span := startSpan(ctx, "latest_event_version")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	const query = `SELECT aggregate_version, hash FROM ledger_event
		WHERE ledger_id = $1 AND aggregate_type = $2 AND aggregate_id = $3
		ORDER BY aggregate_version DESC LIMIT 1`

	row := exec.QueryRowContext(ctx, query, ledgerID, aggType, aggID)
	var version int64
	var hash string
	if err := row.Scan(&version, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", nil
		}
		return 0, "", err
	}
	return version, hash, nil
}

var eventColumns = []string{
	"sequence_number", "ledger_id", "aggregate_type", "aggregate_id",
	"aggregate_version", "event_type", "event_data", "correlation_id",
	"hash", "prev_hash", "created_at",
}

func scanEvent(row rowScanner) (*mmodel.LedgerEvent, error) {
	var e mmodel.LedgerEvent
	var data []byte
	if err := row.Scan(
		&e.SequenceNumber, &e.LedgerID, &e.AggregateType, &e.AggregateID,
		&e.AggregateVersion, &e.EventType, &data, &e.CorrelationID,
		&e.Hash, &e.PrevHash, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &e.EventData); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
