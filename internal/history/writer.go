// Package history persists trade activity to Postgres/TimescaleDB.
// Periodic status rows flow through an asynchronous lossy queue so the
// bot never blocks on the database while a trade is live; the final
// report with every fill is written synchronously once the trade
// terminates, on a context the caller owns.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"fib-retest-bot/internal/engine"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type Config struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// StatusRow is one point-in-time view of a live trade.
type StatusRow struct {
	Time         time.Time
	Symbol       string
	Direction    string
	State        string
	LastPrice    float64
	Remaining    float64
	RealizedPnL  float64
	WindowStatus string
	WindowTarget float64
}

type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	statuses   chan StatusRow
	started    atomic.Bool
	dropStatus atomic.Uint64
}

// New returns nil without error when history is disabled; a nil *Writer
// is safe to use everywhere.
func New(cfg Config, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:       db,
		log:      log,
		schema:   schema,
		statuses: make(chan StatusRow, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueStatus(row StatusRow) {
	if w == nil {
		return
	}
	select {
	case w.statuses <- row:
		return
	default:
		if w.dropStatus.Add(1) == 1 && w.log != nil {
			w.log.Warn("history status queue full")
		}
	}
}

// WriteReport persists the final report and its fills synchronously.
// Unlike status rows it is never queued: the run context may already be
// cancelled when a trade terminates, so the caller supplies a detached
// context with its own deadline.
func (w *Writer) WriteReport(ctx context.Context, report engine.Report) {
	if w == nil {
		return
	}
	w.writeReport(ctx, report)
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.statuses:
			w.writeStatus(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		state TEXT NOT NULL,
		last_price DOUBLE PRECISION NOT NULL,
		remaining DOUBLE PRECISION NOT NULL,
		realized_pnl DOUBLE PRECISION NOT NULL,
		window_status TEXT NOT NULL DEFAULT '',
		window_target DOUBLE PRECISION NOT NULL DEFAULT 0
	)`, w.table("trade_status"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		completed_at TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		state TEXT NOT NULL,
		reason TEXT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		original_quantity DOUBLE PRECISION NOT NULL,
		remaining_quantity DOUBLE PRECISION NOT NULL,
		realized_pnl DOUBLE PRECISION NOT NULL,
		residual DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (completed_at, symbol)
	)`, w.table("trade_reports"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		ratio DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL
	)`, w.table("trade_fills"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("trade_status"))); err != nil && w.log != nil {
		w.log.Warn("trade_status hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeStatus(ctx context.Context, row StatusRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, direction, state, last_price, remaining, realized_pnl, window_status, window_target
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, w.table("trade_status"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.Symbol,
		row.Direction,
		row.State,
		row.LastPrice,
		row.Remaining,
		row.RealizedPnL,
		row.WindowStatus,
		row.WindowTarget,
	); err != nil && w.log != nil {
		w.log.Warn("history status insert failed", zap.Error(err))
	}
}

func (w *Writer) writeReport(ctx context.Context, report engine.Report) {
	if w.db == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		completed_at, symbol, direction, state, reason, entry_price,
		original_quantity, remaining_quantity, realized_pnl, residual
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (completed_at, symbol) DO NOTHING`, w.table("trade_reports"))
	if _, err := w.db.ExecContext(wctx, query,
		report.CompletedAt,
		report.Symbol,
		string(report.Direction),
		string(report.State),
		report.Reason,
		report.Ledger.EntryPrice,
		report.Ledger.OriginalQuantity,
		report.Ledger.RemainingQuantity,
		report.Ledger.RealizedPnL,
		report.Residual,
	); err != nil {
		if w.log != nil {
			w.log.Warn("history report insert failed", zap.Error(err))
		}
		return
	}
	for _, f := range report.Ledger.Exits {
		w.writeFill(ctx, report, "exit", f.Ratio, f.Quantity, f.Price, f.Time)
	}
	for _, f := range report.Ledger.Reentries {
		w.writeFill(ctx, report, "reentry", f.Ratio, f.Quantity, f.Price, f.Time)
	}
}

func (w *Writer) writeFill(ctx context.Context, report engine.Report, kind string, ratio, quantity, price float64, ts time.Time) {
	fctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, completed_at, symbol, kind, ratio, quantity, price
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("trade_fills"))
	if _, err := w.db.ExecContext(fctx, query,
		ts,
		report.CompletedAt,
		report.Symbol,
		kind,
		ratio,
		quantity,
		price,
	); err != nil && w.log != nil {
		w.log.Warn("history fill insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
