package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteProjector mirrors a dataset into relational tables. Rows are keyed
// so projecting the same data twice leaves the file unchanged.
type SQLiteProjector struct {
	db *sql.DB
}

func NewSQLiteProjector(dbPath string) (*SQLiteProjector, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	projector := &SQLiteProjector{db: db}
	if err := projector.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return projector, nil
}

func (p *SQLiteProjector) Close() error {
	return p.db.Close()
}

func (p *SQLiteProjector) ensureSchema(ctx context.Context) error {
	ddl := []string{`
CREATE TABLE IF NOT EXISTS usage_sessions (
  id INTEGER PRIMARY KEY,
  package TEXT NOT NULL,
  category_id INTEGER NOT NULL,
  start_time INTEGER NOT NULL,
  end_time INTEGER NOT NULL,
  duration_seconds INTEGER NOT NULL,
  date TEXT NOT NULL,
  offline INTEGER NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS daily_summaries (
  date TEXT NOT NULL,
  category_id INTEGER NOT NULL,
  total_seconds INTEGER NOT NULL,
  PRIMARY KEY (date, category_id)
);`, `
CREATE TABLE IF NOT EXISTS period_summaries (
  kind TEXT NOT NULL,
  period_key TEXT NOT NULL,
  category_id INTEGER NOT NULL,
  total_seconds INTEGER NOT NULL,
  day_count INTEGER NOT NULL,
  average_daily_seconds INTEGER NOT NULL,
  PRIMARY KEY (kind, period_key, category_id)
);`, `
CREATE TABLE IF NOT EXISTS reward_periods (
  kind TEXT NOT NULL,
  period_key TEXT NOT NULL,
  category_id INTEGER NOT NULL,
  total_reward_count INTEGER NOT NULL,
  done_reward_count INTEGER NOT NULL,
  total_punish_count INTEGER NOT NULL,
  done_punish_count INTEGER NOT NULL,
  PRIMARY KEY (kind, period_key, category_id)
);`}
	for _, stmt := range ddl {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create export tables: %w", err)
		}
	}
	return nil
}

// Project upserts every row of ds in one transaction
func (p *SQLiteProjector) Project(ctx context.Context, ds *Dataset) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range ds.Sessions {
		_, err := tx.ExecContext(ctx, `
INSERT INTO usage_sessions (id, package, category_id, start_time, end_time, duration_seconds, date, offline)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  package=excluded.package,
  category_id=excluded.category_id,
  start_time=excluded.start_time,
  end_time=excluded.end_time,
  duration_seconds=excluded.duration_seconds,
  date=excluded.date,
  offline=excluded.offline;
`, int64(s.ID), s.Package, s.CategoryID, s.StartTime, s.EndTime, s.DurationSeconds, s.Date, s.Offline)
		if err != nil {
			return fmt.Errorf("upsert session %d: %w", s.ID, err)
		}
	}

	for _, d := range ds.Daily {
		_, err := tx.ExecContext(ctx, `
INSERT INTO daily_summaries (date, category_id, total_seconds)
VALUES (?, ?, ?)
ON CONFLICT(date, category_id) DO UPDATE SET
  total_seconds=excluded.total_seconds;
`, d.Date, d.CategoryID, d.TotalSeconds)
		if err != nil {
			return fmt.Errorf("upsert daily summary %s/%d: %w", d.Date, d.CategoryID, err)
		}
	}

	for _, ps := range ds.Periods {
		_, err := tx.ExecContext(ctx, `
INSERT INTO period_summaries (kind, period_key, category_id, total_seconds, day_count, average_daily_seconds)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(kind, period_key, category_id) DO UPDATE SET
  total_seconds=excluded.total_seconds,
  day_count=excluded.day_count,
  average_daily_seconds=excluded.average_daily_seconds;
`, string(ps.Kind), ps.PeriodKey, ps.CategoryID, ps.TotalSeconds, ps.DayCount, ps.AverageDailySeconds)
		if err != nil {
			return fmt.Errorf("upsert period summary %s/%s/%d: %w", ps.Kind, ps.PeriodKey, ps.CategoryID, err)
		}
	}

	for _, r := range ds.Rewards {
		_, err := tx.ExecContext(ctx, `
INSERT INTO reward_periods (kind, period_key, category_id, total_reward_count, done_reward_count, total_punish_count, done_punish_count)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(kind, period_key, category_id) DO UPDATE SET
  total_reward_count=excluded.total_reward_count,
  done_reward_count=excluded.done_reward_count,
  total_punish_count=excluded.total_punish_count,
  done_punish_count=excluded.done_punish_count;
`, string(r.Kind), r.PeriodKey, r.CategoryID, r.TotalRewardCount, r.DoneRewardCount, r.TotalPunishCount, r.DonePunishCount)
		if err != nil {
			return fmt.Errorf("upsert reward period %s/%s/%d: %w", r.Kind, r.PeriodKey, r.CategoryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export tx: %w", err)
	}
	return nil
}

// Count returns the number of rows in table. Used to verify exports.
func (p *SQLiteProjector) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case "usage_sessions", "daily_summaries", "period_summaries", "reward_periods":
	default:
		return 0, fmt.Errorf("unknown table %s", table)
	}
	var n int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
