package actors

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/matchpipe/pkg/app/core"
	"github.com/uhyunpark/matchpipe/pkg/app/core/mailbox"
	"github.com/uhyunpark/matchpipe/pkg/app/core/orderbook"
)

// Engine owns the resting book. Each incoming order produces at most one
// trade; any remainder rests.
type Engine struct {
	book *orderbook.Book

	inbox *mailbox.Mailbox[EngineMsg]
	audit *mailbox.Mailbox[AuditMsg]

	Logger         *zap.SugaredLogger
	VerboseLogging bool // log the open book after every order

	// Optional: line log of trades and rests
	WAL WAL
}

func NewEngine(inbox *mailbox.Mailbox[EngineMsg], audit *mailbox.Mailbox[AuditMsg]) *Engine {
	return &Engine{
		book:   orderbook.NewBook(),
		inbox:  inbox,
		audit:  audit,
		Logger: zap.NewNop().Sugar(),
	}
}

// Run processes orders until Shutdown, which is forwarded to audit.
// Orders still resting at shutdown are dropped without notification.
func (e *Engine) Run(ctx context.Context) error {
	defer e.inbox.Close()

	for {
		msg, ok := e.inbox.Recv(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}

		switch m := msg.(type) {
		case OrderMsg:
			if err := e.processOrder(ctx, m.Order); err != nil {
				return err
			}
		case ShutdownMsg:
			if err := e.audit.Send(ctx, ShutdownMsg{}); err != nil {
				return sendErr(err, core.ErrAuditChannelClosed)
			}
			e.Logger.Infow("shutdown_forwarded", "resting_orders", e.book.Len())
			return nil
		default:
			return fmt.Errorf("engine: unexpected message %T", msg)
		}
	}
}

func (e *Engine) processOrder(ctx context.Context, v core.ValidatedOrder) error {
	trade, crossed := e.book.Match(v)
	if !crossed {
		if e.WAL != nil {
			e.WAL.Append(fmt.Sprintf("rest id=%d side=%s qty=%d price=%d", v.OrderID, v.Side, v.Qty, v.Price))
		}
		if e.VerboseLogging {
			e.Logger.Debugw("rest", "order_id", v.OrderID, "side", v.Side.String(), "qty", v.Qty, "price", v.Price, "book_len", e.book.Len())
		}
		return nil
	}

	if err := e.audit.Send(ctx, TradeMsg{Trade: trade}); err != nil {
		return sendErr(err, core.ErrAuditChannelClosed)
	}
	if e.WAL != nil {
		e.WAL.Append(fmt.Sprintf("trade buy=%d sell=%d qty=%d price=%d", trade.BuyOrderID, trade.SellOrderID, trade.Qty, trade.Price))
	}
	if e.VerboseLogging {
		e.Logger.Debugw("cross", "taker", v.OrderID, "buy", trade.BuyOrderID, "sell", trade.SellOrderID, "qty", trade.Qty, "price", trade.Price, "open_orders", e.book.Orders())
	}
	return nil
}

// Book returns a copy of the resting orders. Only call it once Run has
// returned; the engine goroutine is the book's sole owner while running.
func (e *Engine) Book() []core.ValidatedOrder { return e.book.Orders() }

// Levels returns aggregated bid and ask levels. Same ownership rule as Book.
func (e *Engine) Levels() (bids, asks []orderbook.PriceLevel) {
	return e.book.BidLevels(), e.book.AskLevels()
}
