package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"fib-retest-bot/internal/alerts"
	"fib-retest-bot/internal/config"
	"fib-retest-bot/internal/engine"
	"fib-retest-bot/internal/exec"
	"fib-retest-bot/internal/feed"
	"fib-retest-bot/internal/history"
	"fib-retest-bot/internal/metrics"
	"fib-retest-bot/internal/state"
	"fib-retest-bot/internal/state/sqlite"
	"fib-retest-bot/internal/trade"
	"fib-retest-bot/internal/venue/hyperliquid"
	"fib-retest-bot/internal/venue/sim"

	"go.uber.org/zap"
)

const priceWaitPoll = 100 * time.Millisecond

// App wires the process together: feed, venue gateway, executor, engine,
// state store, metrics, history, and alerts. One App runs one trade.
type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *sqlite.Store
	feed     *feed.WSFeed
	executor *exec.Executor
	metrics  *metrics.Metrics
	prom     *metrics.Prometheus
	notifier *alerts.Notifier
	history  *history.Writer
	engine   *engine.Engine
	spec     trade.Spec
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	spec, err := cfg.Trade.Spec()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	priceFeed := feed.NewWS(cfg.WS, log)

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	gateway, err := buildGateway(cfg, spec, priceFeed, store, log)
	if err != nil {
		return nil, err
	}
	executor := exec.New(gateway, store, log, m)
	if cfg.Exec.EntryAttempts > 0 || cfg.Exec.Backoff > 0 {
		executor.SetEntryRetry(cfg.Exec.EntryAttempts, cfg.Exec.Backoff)
	}

	histWriter, err := history.New(cfg.History, log)
	if err != nil {
		return nil, err
	}
	notifier := alerts.NewNotifier(alerts.NewTelegram(cfg.Telegram, log), log)

	eng, err := engine.New(spec, executor, priceFeed, engine.Config{
		Retest:      cfg.Retest,
		FeedTimeout: cfg.Engine.FeedTimeout,
		Events:      notifierEvents(notifier, spec),
	}, log, m)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		feed:     priceFeed,
		executor: executor,
		metrics:  m,
		prom:     prom,
		notifier: notifier,
		history:  histWriter,
		engine:   eng,
		spec:     spec,
	}, nil
}

// notifierEvents forwards engine lifecycle fills to the alert channel.
func notifierEvents(n *alerts.Notifier, spec trade.Spec) engine.Events {
	return engine.Events{
		EntryFilled: func(ctx context.Context, quantity, price float64) {
			n.TradeOpened(ctx, spec.Symbol, string(spec.Direction), quantity, price)
		},
		PartialExit: func(ctx context.Context, ratio, quantity, price, remaining float64) {
			n.PartialExit(ctx, spec.Symbol, ratio, quantity, price, remaining)
		},
		Reentered: func(ctx context.Context, ratio, quantity, price float64) {
			n.Reentered(ctx, spec.Symbol, ratio, quantity, price)
		},
	}
}

func buildGateway(cfg *config.Config, spec trade.Spec, priceFeed *feed.WSFeed, store *sqlite.Store, log *zap.Logger) (exec.Gateway, error) {
	switch cfg.Venue.Mode {
	case config.VenueSim:
		ref := func(symbol string) (float64, bool) {
			s, ok := priceFeed.Last()
			return s.Price, ok
		}
		return sim.New(ref, log), nil
	case config.VenueHyperliquid:
		ref := func(ctx context.Context, symbol string) (float64, error) {
			s, ok := priceFeed.Last()
			if !ok {
				return 0, errors.New("no price observed yet")
			}
			return s.Price, nil
		}
		return hyperliquid.NewGateway(cfg.Venue.Hyperliquid, spec.Direction, ref, store, log)
	default:
		return nil, fmt.Errorf("venue.mode %q is not supported", cfg.Venue.Mode)
	}
}

// Run drives the trade to completion. The returned error is non-nil when
// the trade aborted or startup failed.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer func() { _ = a.history.Close() }()

	a.history.Start(ctx)
	if err := a.feed.Start(ctx); err != nil {
		return fmt.Errorf("feed start: %w", err)
	}
	if err := a.waitForPrice(ctx); err != nil {
		return err
	}
	stopHTTP := a.serveHTTP(ctx)
	defer stopHTTP()

	statusCtx, stopStatus := context.WithCancel(ctx)
	defer stopStatus()
	go a.statusLoop(statusCtx)

	report, runErr := a.engine.Run(ctx)
	stopStatus()

	a.persistSnapshot(context.Background())
	// Final report and alert on a fresh context: ctx may already be
	// cancelled, and neither may be dropped.
	finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.history.WriteReport(finalCtx, report)
	a.notifier.TradeFinished(finalCtx, report)
	a.log.Info("trade finished",
		zap.String("state", string(report.State)),
		zap.String("reason", report.Reason),
		zap.Float64("realized_pnl", report.Ledger.RealizedPnL),
		zap.Float64("residual", report.Residual),
	)
	return runErr
}

// waitForPrice blocks until the feed has seen at least one sample, so
// the entry order has a reference price to cross against.
func (a *App) waitForPrice(ctx context.Context) error {
	timeout := a.cfg.Engine.FeedTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(priceWaitPoll)
	defer ticker.Stop()
	for {
		if _, ok := a.feed.Last(); ok {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("no price within %s: %w", timeout, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (a *App) statusLoop(ctx context.Context) {
	interval := a.cfg.Engine.StatusInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.persistSnapshot(ctx)
		}
	}
}

func (a *App) persistSnapshot(ctx context.Context) {
	snap := a.engine.Snapshot()
	record := state.TradeSnapshot{
		State:             string(snap.State),
		Symbol:            snap.Symbol,
		Direction:         string(snap.Direction),
		RemainingQuantity: snap.Ledger.RemainingQuantity,
		RealizedPnL:       snap.Ledger.RealizedPnL,
		ExitCount:         len(snap.Ledger.Exits),
		ReentryCount:      len(snap.Ledger.Reentries),
		Reason:            snap.Reason,
		UpdatedAtMS:       time.Now().UnixMilli(),
	}
	row := history.StatusRow{
		Time:        time.Now().UTC(),
		Symbol:      snap.Symbol,
		Direction:   string(snap.Direction),
		State:       string(snap.State),
		LastPrice:   snap.LastPrice,
		Remaining:   snap.Ledger.RemainingQuantity,
		RealizedPnL: snap.Ledger.RealizedPnL,
	}
	if snap.Window != nil {
		record.WindowStatus = string(snap.Window.Status)
		record.WindowTarget = snap.Window.Target
		row.WindowStatus = string(snap.Window.Status)
		row.WindowTarget = snap.Window.Target
	}
	if err := state.SaveTradeSnapshot(ctx, a.store, record); err != nil {
		a.log.Warn("snapshot persist failed", zap.Error(err))
	}
	a.history.EnqueueStatus(row)
}

// serveHTTP exposes /metrics, /status, and /healthz when metrics are
// enabled. Returns a stop function.
func (a *App) serveHTTP(ctx context.Context) func() {
	if !a.cfg.Metrics.Enabled {
		return func() {}
	}
	mux := http.NewServeMux()
	if a.prom != nil {
		mux.Handle("/metrics", a.prom.Handler())
	}
	mux.HandleFunc("/status", a.statusHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("http server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}
