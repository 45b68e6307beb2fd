package service

import (
	"context"
	"sync"
	"time"

	"tablepick-backend/internal/repository"

	"go.uber.org/zap"
)

const (
	DefaultSweepInterval = 30 * time.Second
	DefaultSweepLookback = 15 * time.Minute
	DefaultSweepBatch    = 100
)

// Reconciler periodically re-derives consensus for recently voted items that
// have no match record yet. A vote whose inline evaluation was skipped (ledger
// timeout, membership outage, process crash between write and evaluate) is
// picked up here, since the vote itself is durable and derivation is
// idempotent.
type Reconciler struct {
	swipes *SwipeService
	votes  repository.VoteLedger
	logger *zap.Logger

	interval time.Duration
	lookback time.Duration
	batch    int

	ticker    *time.Ticker
	stopSweep chan struct{}
	mu        sync.Mutex
	isRunning bool
}

func NewReconciler(swipes *SwipeService, votes repository.VoteLedger, logger *zap.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Reconciler{
		swipes:   swipes,
		votes:    votes,
		logger:   logger,
		interval: interval,
		lookback: DefaultSweepLookback,
		batch:    DefaultSweepBatch,
	}
}

// Start begins the periodic sweep.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return nil
	}

	// Fresh ticker and stop channel per run, so a Start after Stop does not
	// observe the previous run's closed channel.
	r.ticker = time.NewTicker(r.interval)
	r.stopSweep = make(chan struct{})
	go r.sweepRoutine(ctx, r.ticker, r.stopSweep)

	r.isRunning = true
	r.logger.Info("Reconciler started",
		zap.Duration("interval", r.interval),
		zap.Duration("lookback", r.lookback))
	return nil
}

// Stop halts the sweep. Safe to call when not running.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRunning {
		return nil
	}

	r.ticker.Stop()
	close(r.stopSweep)

	r.isRunning = false
	r.logger.Info("Reconciler stopped")
	return nil
}

func (r *Reconciler) sweepRoutine(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs a single reconciliation pass. Exported so a pass can be driven
// directly, bypassing the ticker.
func (r *Reconciler) Sweep(ctx context.Context) {
	start := time.Now()

	items, err := r.votes.UnmatchedAffirmativeItems(ctx, start.Add(-r.lookback), r.batch)
	if err != nil {
		r.logger.Warn("Reconciliation scan failed", zap.Error(err))
		return
	}
	if len(items) == 0 {
		return
	}

	materialized := 0
	for _, item := range items {
		match, err := r.swipes.MaterializeMatch(ctx, item.ScopeID, item.ItemID, "", nil)
		if err != nil {
			r.logger.Warn("Reconciliation evaluation failed",
				zap.String("scope_id", item.ScopeID),
				zap.String("item_id", item.ItemID),
				zap.Error(err))
			continue
		}
		if match != nil {
			materialized++
		}
	}

	if materialized > 0 {
		r.logger.Info("Reconciliation sweep materialized matches",
			zap.Int("scanned", len(items)),
			zap.Int("materialized", materialized),
			zap.Duration("duration", time.Since(start)))
	}
}
