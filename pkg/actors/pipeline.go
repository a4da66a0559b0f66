package actors

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchpipe/pkg/app/core"
	"github.com/uhyunpark/matchpipe/pkg/app/core/mailbox"
	"github.com/uhyunpark/matchpipe/pkg/app/core/orderbook"
)

// Component names used to tag supervisor errors.
const (
	ComponentGateway = "gateway"
	ComponentEngine  = "engine"
	ComponentAudit   = "audit"
)

type Config struct {
	InboxCapacity  int // per mailbox; <= 0 means mailbox.DefaultCapacity
	Logger         *zap.SugaredLogger
	VerboseLogging bool

	Journal   Journal
	WAL       WAL
	Observers []TradeObserver
}

// Report is what the process owner observes once the pipeline has joined.
type Report struct {
	Summary core.Summary
	Trades  []core.Trade
	Book    []core.ValidatedOrder // orders still resting when the engine stopped
	Bids    []orderbook.PriceLevel
	Asks    []orderbook.PriceLevel
}

// Pipeline wires gateway -> engine -> audit and supervises the three
// goroutines. A fatal error in any component cancels the others.
type Pipeline struct {
	gatewayIn *mailbox.Mailbox[GatewayMsg]
	engineIn  *mailbox.Mailbox[EngineMsg]
	auditIn   *mailbox.Mailbox[AuditMsg]

	Gateway *Gateway
	Engine  *Engine
	Audit   *Audit

	logger *zap.SugaredLogger

	startOnce sync.Once
	done      chan struct{}
	report    Report
	err       error
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	gatewayIn := mailbox.New[GatewayMsg](cfg.InboxCapacity)
	engineIn := mailbox.New[EngineMsg](cfg.InboxCapacity)
	auditIn := mailbox.New[AuditMsg](cfg.InboxCapacity)

	gw := NewGateway(gatewayIn, engineIn, auditIn)
	gw.Logger = cfg.Logger.With("component", ComponentGateway)
	gw.VerboseLogging = cfg.VerboseLogging

	eng := NewEngine(engineIn, auditIn)
	eng.Logger = cfg.Logger.With("component", ComponentEngine)
	eng.VerboseLogging = cfg.VerboseLogging
	eng.WAL = cfg.WAL

	aud := NewAudit(auditIn)
	aud.Logger = cfg.Logger.With("component", ComponentAudit)
	aud.Journal = cfg.Journal
	aud.Observers = cfg.Observers

	return &Pipeline{
		gatewayIn: gatewayIn,
		engineIn:  engineIn,
		auditIn:   auditIn,
		Gateway:   gw,
		Engine:    eng,
		Audit:     aud,
		logger:    cfg.Logger,
		done:      make(chan struct{}),
	}
}

// Start spawns the three components. Cancelling ctx aborts them out of
// band; the normal way to stop is Shutdown.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() { go p.supervise(ctx) })
}

func (p *Pipeline) supervise(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		errs    error
		wg      sync.WaitGroup
		summary core.Summary
	)

	fail := func(name string, err error) {
		if err == nil {
			return
		}
		// Collateral from an abort already in progress.
		if runCtx.Err() != nil && errors.Is(err, runCtx.Err()) {
			return
		}
		var joinErr *core.TaskJoinError
		if !errors.As(err, &joinErr) {
			err = &core.ComponentError{Component: name, Err: err}
		}
		p.logger.Errorw("component_failed", "component", name, "err", err)
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
		cancel()
	}

	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fail(name, guard(name, func() error { return fn(runCtx) }))
		}()
	}

	spawn(ComponentGateway, p.Gateway.Run)
	spawn(ComponentEngine, p.Engine.Run)
	spawn(ComponentAudit, func(ctx context.Context) error {
		s, err := p.Audit.Run(ctx)
		summary = s
		return err
	})

	wg.Wait()

	if errs == nil && ctx.Err() != nil {
		errs = ctx.Err()
	}
	bids, asks := p.Engine.Levels()
	p.report = Report{
		Summary: summary,
		Trades:  p.Audit.Trades(),
		Book:    p.Engine.Book(),
		Bids:    bids,
		Asks:    asks,
	}
	p.err = errs
	close(p.done)
}

// guard converts a panic in a component into a TaskJoinError.
func guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.TaskJoinError{Component: name, Panic: r}
		}
	}()
	return fn()
}

// Submit enqueues a new order, blocking while the gateway inbox is full.
// An order whose side is neither Buy nor Sell is refused with
// ErrInvalidSide and never reaches the gateway.
func (p *Pipeline) Submit(ctx context.Context, n core.NewOrder) error {
	if !n.Side.Valid() {
		return fmt.Errorf("%w: %d", core.ErrInvalidSide, int8(n.Side))
	}
	return p.send(ctx, NewOrderMsg{Order: n})
}

// Shutdown enqueues the in-band shutdown behind any submitted orders.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	return p.send(ctx, ShutdownMsg{})
}

func (p *Pipeline) send(ctx context.Context, msg GatewayMsg) error {
	if err := p.gatewayIn.Send(ctx, msg); err != nil {
		return sendErr(err, core.ErrGatewayChannelClosed)
	}
	return nil
}

// Done is closed once all three components have returned.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Wait blocks until the pipeline has joined and returns the report plus the
// aggregated component errors (nil on a clean run).
func (p *Pipeline) Wait() (Report, error) {
	<-p.done
	return p.report, p.err
}

// Run starts a pipeline, submits orders in sequence, sends Shutdown and
// waits for the summary.
func Run(ctx context.Context, cfg Config, orders []core.NewOrder) (Report, error) {
	p := New(cfg)
	p.Start(ctx)

	for _, o := range orders {
		if err := p.Submit(ctx, o); err != nil {
			// The pipeline failed underneath us; its own error is more useful.
			if _, werr := p.Wait(); werr != nil {
				return Report{}, multierr.Append(err, werr)
			}
			return Report{}, err
		}
	}
	if err := p.Shutdown(ctx); err != nil {
		if _, werr := p.Wait(); werr != nil {
			return Report{}, multierr.Append(err, werr)
		}
		return Report{}, err
	}
	return p.Wait()
}
