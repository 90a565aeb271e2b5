package postgres

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/summa-ledger/summa/internal/dbtx"
)

// AssetRateRepository resolves cross-currency exchange rates. The stored
// rate column is numeric (read back as decimal.Decimal for
// display-accurate arithmetic at the edges); core computations use the
// integer rate scaled by 10^6, per spec §4.6 step 5.
type AssetRateRepository struct {
	db *sql.DB
}

func NewAssetRateRepository(db *sql.DB) *AssetRateRepository {
	return &AssetRateRepository{db: db}
}

// ScaledRate returns (rate * 10^6) as an integer, rounded half-up, for the
// given currency pair, current as of now.
func (r *AssetRateRepository) ScaledRate(ctx context.Context, ledgerID, fromCurrency, toCurrency string) (int64, error) {
	ctx, span := startSpan(ctx, "find_asset_rate")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := sq.Select("rate").
		From("asset_rate").
		Where(sq.Eq{"ledger_id": ledgerID, "from_currency": fromCurrency, "to_currency": toCurrency}).
		OrderBy("effective_at DESC").
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	row := exec.QueryRowContext(ctx, query, args...)
	var rate decimal.Decimal
	if err := row.Scan(&rate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.New("no asset rate configured for " + fromCurrency + "->" + toCurrency)
		}
		return 0, err
	}

	scaled := rate.Mul(decimal.New(1_000_000, 0)).Round(0)
	return scaled.IntPart(), nil
}
