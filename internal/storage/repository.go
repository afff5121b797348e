package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates no record exists for the requested key.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	// RETURNING xmax = 0 distinguishes a fresh insert from a conflict update.
	upsertDailySQL = `INSERT INTO market_daily (
        record_date,
        sugar_close,
        sugar_open,
        usd_cny_rate,
        bdi_index,
        import_cost_estimate,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (record_date) DO UPDATE
    SET
        sugar_close          = EXCLUDED.sugar_close,
        sugar_open           = EXCLUDED.sugar_open,
        usd_cny_rate         = EXCLUDED.usd_cny_rate,
        bdi_index            = EXCLUDED.bdi_index,
        import_cost_estimate = EXCLUDED.import_cost_estimate,
        updated_at           = EXCLUDED.updated_at
    RETURNING (xmax = 0) AS inserted;`

	latestRecordDateSQL = `SELECT record_date FROM market_daily
    ORDER BY record_date DESC
    LIMIT 1;`

	dailyColumns = `record_date,
        sugar_close,
        sugar_open,
        usd_cny_rate,
        bdi_index,
        import_cost_estimate,
        updated_at`

	listDailySQL = `SELECT ` + dailyColumns + `
    FROM market_daily
    WHERE ($1::date IS NULL OR record_date >= $1)
      AND ($2::date IS NULL OR record_date <= $2)
    ORDER BY record_date DESC
    LIMIT $3;`

	listDailySinceSQL = `SELECT ` + dailyColumns + `
    FROM market_daily
    WHERE record_date >= $1
    ORDER BY record_date;`

	getDailySQL = `SELECT ` + dailyColumns + `
    FROM market_daily
    WHERE record_date = $1;`

	latestDailySQL = `SELECT ` + dailyColumns + `
    FROM market_daily
    ORDER BY record_date DESC
    LIMIT 1;`

	countDailySQL = `SELECT COUNT(*) FROM market_daily;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DailyWriter persists merged pipeline output.
type DailyWriter interface {
	UpsertDailyBatch(ctx context.Context, records []MarketDaily) (newCount, updatedCount int, err error)
	LatestRecordDate(ctx context.Context) (*time.Time, error)
}

// DailyReader serves the query surface.
type DailyReader interface {
	ListDaily(ctx context.Context, from, to *time.Time, limit int) ([]MarketDaily, error)
	ListDailySince(ctx context.Context, from time.Time) ([]MarketDaily, error)
	GetDaily(ctx context.Context, date time.Time) (MarketDaily, error)
	LatestDaily(ctx context.Context) (MarketDaily, error)
	CountDaily(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the market_daily table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertDailyBatch applies the candidate set in a single transaction and
// reports how many rows were inserted versus updated. On any row error the
// whole batch rolls back.
func (s *Store) UpsertDailyBatch(ctx context.Context, records []MarketDaily) (int, int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var newCount, updatedCount int
	for _, rec := range records {
		var sugarOpen, bdi, cost interface{}
		if rec.SugarOpen != nil {
			sugarOpen = rec.SugarOpen.String()
		}
		if rec.BDIIndex != nil {
			bdi = rec.BDIIndex.String()
		}
		if rec.ImportCostEstimate != nil {
			cost = rec.ImportCostEstimate.String()
		}

		var inserted bool
		scanErr := tx.QueryRow(ctx, upsertDailySQL,
			rec.RecordDate,
			rec.SugarClose.String(),
			sugarOpen,
			rec.USDCNYRate.String(),
			bdi,
			cost,
			rec.UpdatedAt,
		).Scan(&inserted)
		if scanErr != nil {
			return 0, 0, fmt.Errorf("upsert daily %s: %w", rec.RecordDate.Format("2006-01-02"), scanErr)
		}
		if inserted {
			newCount++
		} else {
			updatedCount++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit upsert tx: %w", err)
	}
	return newCount, updatedCount, nil
}

// LatestRecordDate returns the most recent stored trading date, or nil when
// the table is empty.
func (s *Store) LatestRecordDate(ctx context.Context) (*time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var date time.Time
	scanErr := pool.QueryRow(ctx, latestRecordDateSQL).Scan(&date)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest record date: %w", scanErr)
	}
	return &date, nil
}

// ListDaily lists records within an optional date range, newest first.
func (s *Store) ListDaily(ctx context.Context, from, to *time.Time, limit int) ([]MarketDaily, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDailySQL, from, to, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily: %w", queryErr)
	}
	defer rows.Close()

	return collectDaily(rows, limit)
}

// ListDailySince lists records from a date onwards in ascending order.
func (s *Store) ListDailySince(ctx context.Context, from time.Time) ([]MarketDaily, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDailySinceSQL, from)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily since: %w", queryErr)
	}
	defer rows.Close()

	return collectDaily(rows, 0)
}

// GetDaily fetches the record for one trading date.
func (s *Store) GetDaily(ctx context.Context, date time.Time) (MarketDaily, error) {
	pool, err := s.getPool()
	if err != nil {
		return MarketDaily{}, err
	}

	rec, scanErr := scanDaily(pool.QueryRow(ctx, getDailySQL, date))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return MarketDaily{}, ErrNotFound
		}
		return MarketDaily{}, fmt.Errorf("get daily: %w", scanErr)
	}
	return rec, nil
}

// LatestDaily fetches the most recent record.
func (s *Store) LatestDaily(ctx context.Context) (MarketDaily, error) {
	pool, err := s.getPool()
	if err != nil {
		return MarketDaily{}, err
	}

	rec, scanErr := scanDaily(pool.QueryRow(ctx, latestDailySQL))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return MarketDaily{}, ErrNotFound
		}
		return MarketDaily{}, fmt.Errorf("latest daily: %w", scanErr)
	}
	return rec, nil
}

// CountDaily counts stored records.
func (s *Store) CountDaily(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countDailySQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count daily: %w", scanErr)
	}
	return count, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func collectDaily(rows pgx.Rows, hint int) ([]MarketDaily, error) {
	records := make([]MarketDaily, 0, hint)
	for rows.Next() {
		rec, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDaily(row rowScanner) (MarketDaily, error) {
	var (
		recordDate time.Time
		closeStr   string
		openStr    sql.NullString
		rateStr    string
		bdiStr     sql.NullString
		costStr    sql.NullString
		updatedAt  time.Time
	)

	if err := row.Scan(
		&recordDate,
		&closeStr,
		&openStr,
		&rateStr,
		&bdiStr,
		&costStr,
		&updatedAt,
	); err != nil {
		return MarketDaily{}, err
	}

	sugarClose, err := decimal.NewFromString(closeStr)
	if err != nil {
		return MarketDaily{}, fmt.Errorf("parse sugar close: %w", err)
	}
	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return MarketDaily{}, fmt.Errorf("parse usd cny rate: %w", err)
	}

	rec := MarketDaily{
		RecordDate: recordDate,
		SugarClose: sugarClose,
		USDCNYRate: rate,
		UpdatedAt:  updatedAt,
	}

	if openStr.Valid {
		open, convErr := decimal.NewFromString(openStr.String)
		if convErr != nil {
			return MarketDaily{}, fmt.Errorf("parse sugar open: %w", convErr)
		}
		rec.SugarOpen = &open
	}
	if bdiStr.Valid {
		bdi, convErr := decimal.NewFromString(bdiStr.String)
		if convErr != nil {
			return MarketDaily{}, fmt.Errorf("parse bdi index: %w", convErr)
		}
		rec.BDIIndex = &bdi
	}
	if costStr.Valid {
		cost, convErr := decimal.NewFromString(costStr.String)
		if convErr != nil {
			return MarketDaily{}, fmt.Errorf("parse import cost estimate: %w", convErr)
		}
		rec.ImportCostEstimate = &cost
	}

	return rec, nil
}
