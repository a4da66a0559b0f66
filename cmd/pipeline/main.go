package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchpipe/params"
	"github.com/uhyunpark/matchpipe/pkg/actors"
	"github.com/uhyunpark/matchpipe/pkg/api"
	"github.com/uhyunpark/matchpipe/pkg/app/core"
	"github.com/uhyunpark/matchpipe/pkg/feeder"
	"github.com/uhyunpark/matchpipe/pkg/publish"
	"github.com/uhyunpark/matchpipe/pkg/storage"
	"github.com/uhyunpark/matchpipe/pkg/util"
)

// demoOrders: one resting sell, a non-crossing buy, then a crossing buy.
var demoOrders = []core.NewOrder{
	{UserID: 1, Side: core.Sell, Qty: 2, Price: 100},
	{UserID: 2, Side: core.Buy, Qty: 1, Price: 50},
	{UserID: 3, Side: core.Buy, Qty: 1, Price: 200},
}

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file; LOG_FILE=none for console only)
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Node.LogFile == "" {
		logger, err = util.NewLogger(cfg.Pipeline.Verbose)
	} else {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Pipeline.Verbose)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	runID := uuid.NewString()
	sugar := logger.Sugar().With("run_id", runID)
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "verbose", cfg.Pipeline.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, runID, sugar); err != nil {
		sugar.Errorw("run_failed", "err", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg params.Config, runID string, sugar *zap.SugaredLogger) (err error) {
	// ---- Storage ----
	var journal actors.Journal
	if cfg.Storage.AuditDBPath != "" {
		pj, openErr := storage.NewPebbleJournal(cfg.Storage.AuditDBPath)
		if openErr != nil {
			return fmt.Errorf("open audit journal: %w", openErr)
		}
		defer func() { err = multierr.Append(err, pj.Close()) }()
		journal = pj
		sugar.Infow("audit_journal", "path", cfg.Storage.AuditDBPath, "journal_run", pj.Run())
	} else {
		journal = storage.NewInMemoryJournal()
	}

	var wal actors.WAL = storage.NewNopWAL()
	if cfg.Storage.EngineWALPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.EngineWALPath), 0755); err != nil {
			return err
		}
		fw, openErr := storage.NewFileWAL(cfg.Storage.EngineWALPath)
		if openErr != nil {
			return fmt.Errorf("open engine wal: %w", openErr)
		}
		defer func() { err = multierr.Append(err, fw.Close()) }()
		wal = fw
		sugar.Infow("engine_wal", "path", cfg.Storage.EngineWALPath)
	}

	// ---- Observers ----
	var observers []actors.TradeObserver
	if len(cfg.Kafka.Brokers) > 0 {
		pub := publish.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, runID)
		pub.Logger = sugar.With("component", "kafka")
		// Runs after the pipeline joined, so no audit callback races Close.
		defer func() { err = multierr.Append(err, pub.Close()) }()
		observers = append(observers, pub)
		sugar.Infow("kafka_publisher", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	var hub *api.Hub
	if cfg.Node.APIAddr != "" {
		hub = api.NewHub()
		hub.Logger = sugar.With("component", "ws")
		observers = append(observers, hub)
	}

	// ---- Pipeline ----
	// Signals stop the input side; the pipeline itself is stopped in band
	// so everything already submitted is drained.
	pctx, abort := context.WithCancel(context.Background())
	defer abort()

	p := actors.New(actors.Config{
		InboxCapacity:  cfg.Pipeline.InboxCapacity,
		Logger:         sugar,
		VerboseLogging: cfg.Pipeline.Verbose,
		Journal:        journal,
		WAL:            wal,
		Observers:      observers,
	})
	p.Start(pctx)

	switch {
	case hub != nil:
		err = serve(ctx, cfg, p, hub, sugar)
	case cfg.Feeder.Enabled:
		fc := feeder.DefaultConfig()
		fc.Orders = cfg.Feeder.Orders
		_, err = feeder.Run(ctx, p, fc, sugar.With("component", "feeder"))
	default:
		for _, o := range demoOrders {
			if err = p.Submit(ctx, o); err != nil {
				break
			}
		}
	}
	if errors.Is(err, context.Canceled) {
		sugar.Infow("signal_received")
		err = nil
	}
	if errors.Is(err, core.ErrGatewayChannelClosed) {
		// Failed underneath; Wait has the details.
		err = nil
	}
	// Closed here means POST /api/v1/shutdown already did it.
	if serr := shutdown(p, abort); !errors.Is(serr, core.ErrGatewayChannelClosed) {
		err = multierr.Append(err, serr)
	}

	rep, werr := p.Wait()
	err = multierr.Append(err, werr)

	sugar.Infow("final_summary",
		"total_volume", rep.Summary.TotalVolume,
		"trade_count", rep.Summary.TradeCount,
		"rejected_count", rep.Summary.RejectedCount,
		"last_price", rep.Summary.LastPrice,
		"digest", rep.Summary.Digest.Hex(),
		"resting_orders", len(rep.Book),
	)
	return err
}

// shutdown sends the in-band shutdown, aborting the pipeline if its
// gateway inbox stays full for too long.
func shutdown(p *actors.Pipeline, abort context.CancelFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		abort()
	}
	return err
}

// serve runs the HTTP/WebSocket API until a signal arrives. POST
// /api/v1/shutdown stops the pipeline but keeps the server up so clients
// can read GET /api/v1/summary.
func serve(ctx context.Context, cfg params.Config, p *actors.Pipeline, hub *api.Hub, sugar *zap.SugaredLogger) error {
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()

	srv := api.NewServer(hubCtx, p, hub, sugar.With("component", "api"))
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(cfg.Node.APIAddr) }()

	var err error
	finished := p.Done()
	for done := false; !done; {
		select {
		case <-finished:
			sugar.Infow("pipeline_finished", "hint", "summary available at /api/v1/summary")
			finished = nil
		case err = <-serveErr:
			done = true
		case <-ctx.Done():
			err = ctx.Err()
			done = true
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := srv.Stop(sctx); stopErr != nil {
		err = multierr.Append(err, stopErr)
	}
	return err
}
