package feeder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/matchpipe/pkg/app/core"
)

// Submitter accepts orders. *actors.Pipeline satisfies it.
type Submitter interface {
	Submit(ctx context.Context, n core.NewOrder) error
}

// Config controls order generation rate
type Config struct {
	Orders      int           // total orders to submit
	BatchSize   int           // orders per tick
	Interval    time.Duration // 0 submits back-to-back
	NumUsers    int
	BasePrice   int64
	InvalidRate int // percent
	Seed        int64
}

// DefaultConfig returns reasonable defaults for a demo run
func DefaultConfig() Config {
	return Config{
		Orders:      1000,
		BatchSize:   10,
		Interval:    10 * time.Millisecond,
		NumUsers:    50,
		BasePrice:   100,
		InvalidRate: 5,
	}
}

// Run feeds cfg.Orders generated orders into sub and returns how many were
// accepted. It stops early on ctx cancellation or the first submit error.
// Submit blocks when the gateway inbox is full, which paces the feeder.
func Run(ctx context.Context, sub Submitter, cfg Config, logger *zap.SugaredLogger) (int, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	gen := NewGenerator(cfg.NumUsers, cfg.BasePrice, cfg.InvalidRate, cfg.Seed)

	var tick <-chan time.Time
	if cfg.Interval > 0 {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	start := time.Now()
	logger.Infow("feeder_started", "orders", cfg.Orders, "batch", cfg.BatchSize, "interval", cfg.Interval)

	sent := 0
	for sent < cfg.Orders {
		if tick != nil {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-tick:
			}
		}
		n := min(cfg.BatchSize, cfg.Orders-sent)
		for _, o := range gen.GenerateBatch(n) {
			if err := sub.Submit(ctx, o); err != nil {
				logger.Warnw("feeder_stopped", "sent", sent, "err", err)
				return sent, err
			}
			sent++
		}
	}

	stats := gen.GetStats(time.Since(start))
	logger.Infow("feeder_done",
		"sent", sent,
		"invalid", stats.InvalidOrders,
		"orders_per_sec", stats.OrdersPerSec,
	)
	return sent, nil
}
