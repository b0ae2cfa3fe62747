package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bist-tracker/internal/model"
)

var (
	// ErrNotConfigured indicates the mirror pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createDailyBarsSQL = `CREATE TABLE IF NOT EXISTS daily_bars (
        trade_date  DATE        NOT NULL,
        ticker      TEXT        NOT NULL,
        open        NUMERIC     NOT NULL,
        high        NUMERIC     NOT NULL,
        low         NUMERIC     NOT NULL,
        close       NUMERIC     NOT NULL,
        volume      BIGINT      NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (trade_date, ticker)
    );`

	insertDailyBarSQL = `INSERT INTO daily_bars (
        trade_date,
        ticker,
        open,
        high,
        low,
        close,
        volume
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (trade_date, ticker) DO NOTHING;`

	countDailyBarsSQL = `SELECT COUNT(*) FROM daily_bars;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RecordMirror receives every batch appended to the CSV store.
type RecordMirror interface {
	MirrorRecords(ctx context.Context, records []model.Record) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Mirror copies appended records into PostgreSQL and provides the lock that
// keeps concurrent updaters apart.
type Mirror struct {
	pool *pgxpool.Pool
}

// NewMirror wires a pgx pool into a Mirror.
func NewMirror(pool *pgxpool.Pool) *Mirror {
	return &Mirror{pool: pool}
}

// Close releases the underlying pool resources.
func (m *Mirror) Close() {
	if m == nil || m.pool == nil {
		return
	}
	m.pool.Close()
}

func (m *Mirror) getPool() (*pgxpool.Pool, error) {
	if m == nil || m.pool == nil {
		return nil, ErrNotConfigured
	}
	return m.pool, nil
}

// EnsureSchema creates the daily_bars table when missing.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	pool, err := m.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createDailyBarsSQL); err != nil {
		return fmt.Errorf("create daily_bars: %w", err)
	}
	return nil
}

// MirrorRecords inserts records in one transaction, skipping keys already
// present. It returns the number of inserted rows.
func (m *Mirror) MirrorRecords(ctx context.Context, records []model.Record) (int64, error) {
	pool, err := m.getPool()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertDailyBarSQL,
			r.Date.Time(),
			r.Ticker,
			r.Open.String(),
			r.High.String(),
			r.Low.String(),
			r.Close.String(),
			r.Volume,
		)
	}

	var inserted int64
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range records {
			tag, execErr := results.Exec()
			if execErr != nil {
				return execErr
			}
			inserted += tag.RowsAffected()
		}
		return results.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("mirror records: %w", err)
	}
	return inserted, nil
}

// CountRecords counts mirrored rows.
func (m *Mirror) CountRecords(ctx context.Context) (int64, error) {
	pool, err := m.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countDailyBarsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count daily bars: %w", scanErr)
	}
	return count, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (m *Mirror) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := m.getPool()
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
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ RecordMirror   = (*Mirror)(nil)
	_ AdvisoryLocker = (*Mirror)(nil)
)
