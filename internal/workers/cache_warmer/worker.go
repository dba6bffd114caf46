package cache_warmer

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
)

// PriceWarmer refreshes and persists token figures without counting the
// refresh as demand.
type PriceWarmer interface {
	WarmTokens(ctx context.Context, addresses []string) map[string]entities.TokenData
	Flush(ctx context.Context) error
}

// VisitorPruner forgets rate limit state for idle clients.
type VisitorPruner interface {
	Cleanup(maxIdle time.Duration) int
}

type Config struct {
	Schedule      string
	PruneSchedule string
	RunTimeout    time.Duration
	VisitorIdle   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Schedule:      "@every 5m",
		PruneSchedule: "@every 1h",
		RunTimeout:    4 * time.Minute,
		VisitorIdle:   30 * time.Minute,
	}
}

type Worker struct {
	prices    PriceWarmer
	pruner    VisitorPruner
	addresses []string
	config    Config
	cron      *cron.Cron
	logger    *zap.Logger
}

// NewWorker warms addresses on schedule. pruner may be nil.
func NewWorker(prices PriceWarmer, pruner VisitorPruner, addresses []string, config Config, logger *zap.Logger) *Worker {
	defaults := DefaultConfig()
	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}
	if config.PruneSchedule == "" {
		config.PruneSchedule = defaults.PruneSchedule
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = defaults.RunTimeout
	}
	if config.VisitorIdle <= 0 {
		config.VisitorIdle = defaults.VisitorIdle
	}

	return &Worker{
		prices:    prices,
		pruner:    pruner,
		addresses: addresses,
		config:    config,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:    logger,
	}
}

// Start schedules the jobs and kicks off one warm-up in the background.
func (w *Worker) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		w.run(ctx)
	})
	if err != nil {
		return err
	}

	if w.pruner != nil {
		_, err = w.cron.AddFunc(w.config.PruneSchedule, func() {
			removed := w.pruner.Cleanup(w.config.VisitorIdle)
			w.logger.Debug("Pruned idle rate limit visitors", zap.Int("removed", removed))
		})
		if err != nil {
			return err
		}
	}

	go w.run(ctx)

	w.cron.Start()
	w.logger.Info("Cache warmer started",
		zap.String("schedule", w.config.Schedule),
		zap.Int("addresses", len(w.addresses)))
	return nil
}

func (w *Worker) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, w.config.RunTimeout)
	defer cancel()

	if _, err := w.Warm(ctx); err != nil {
		w.logger.Error("Cache warm-up failed", zap.Error(err))
	}
}

// Warm refreshes every address and persists the result. It returns how many
// addresses came back with a price.
func (w *Worker) Warm(ctx context.Context) (int, error) {
	start := time.Now()
	data := w.prices.WarmTokens(ctx, w.addresses)

	priced := 0
	for _, d := range data {
		if d.Price > 0 {
			priced++
		}
	}

	if err := w.prices.Flush(ctx); err != nil {
		return priced, err
	}

	w.logger.Info("Cache warmed",
		zap.Int("priced", priced),
		zap.Int("requested", len(w.addresses)),
		zap.Duration("took", time.Since(start)))
	return priced, nil
}

// Shutdown stops scheduling and waits for a running job or ctx.
func (w *Worker) Shutdown(ctx context.Context) error {
	done := w.cron.Stop()
	select {
	case <-done.Done():
		w.logger.Info("Cache warmer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
