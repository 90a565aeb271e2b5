package postgres

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/summa-ledger/summa/internal/dbtx"
	"github.com/summa-ledger/summa/mmodel"
)

// SnapshotRepository persists mmodel.HashSnapshot, the per-aggregate
// checkpoint that lets verification resume from a known-good hash instead
// of replaying from version 1 (spec §4.3 "Verification").
type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Latest(ctx context.Context, aggType mmodel.AggregateType, aggID string) (*mmodel.HashSnapshot, error) {
	ctx, span := startSpan(ctx, "latest_snapshot")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Select("aggregate_type", "aggregate_id", "snapshot_version", "snapshot_hash", "event_count", "created_at").
		From("hash_snapshot").
		Where(sq.Eq{"aggregate_type": aggType, "aggregate_id": aggID}).
		OrderBy("snapshot_version DESC").
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	row := exec.QueryRowContext(ctx, query, args...)
	var s mmodel.HashSnapshot
	if err := row.Scan(&s.AggregateType, &s.AggregateID, &s.SnapshotVersion, &s.SnapshotHash, &s.EventCount, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SnapshotRepository) Save(ctx context.Context, s *mmodel.HashSnapshot) error {
	ctx, span := startSpan(ctx, "save_snapshot")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Insert("hash_snapshot").
		Columns("aggregate_type", "aggregate_id", "snapshot_version", "snapshot_hash", "event_count", "created_at").
		Values(s.AggregateType, s.AggregateID, s.SnapshotVersion, s.SnapshotHash, s.EventCount, s.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)
	return err
}
