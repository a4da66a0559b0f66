package actors

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/matchpipe/pkg/app/core"
	"github.com/uhyunpark/matchpipe/pkg/app/core/mailbox"
)

// Gateway validates submissions and is the only place order ids are minted.
// Accepted orders go to the engine, rejections to audit.
type Gateway struct {
	nextID uint64

	inbox  *mailbox.Mailbox[GatewayMsg]
	engine *mailbox.Mailbox[EngineMsg]
	audit  *mailbox.Mailbox[AuditMsg]

	Logger         *zap.SugaredLogger
	VerboseLogging bool // if false, only log rejections and shutdown
}

func NewGateway(inbox *mailbox.Mailbox[GatewayMsg], engine *mailbox.Mailbox[EngineMsg], audit *mailbox.Mailbox[AuditMsg]) *Gateway {
	return &Gateway{
		inbox:  inbox,
		engine: engine,
		audit:  audit,
		Logger: zap.NewNop().Sugar(),
	}
}

// Validate checks the fields of a submission. Qty is checked before price.
func Validate(n core.NewOrder) error {
	if n.Qty <= 0 {
		return &core.InvalidQtyError{Qty: n.Qty}
	}
	if n.Price <= 0 {
		return &core.InvalidPriceError{Price: n.Price}
	}
	return nil
}

// Run consumes the inbox until Shutdown. Rejections never stop the loop;
// a closed downstream mailbox does.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.inbox.Close()

	for {
		msg, ok := g.inbox.Recv(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}

		switch m := msg.(type) {
		case NewOrderMsg:
			if err := g.handleNewOrder(ctx, m.Order); err != nil {
				return err
			}
		case ShutdownMsg:
			if err := g.engine.Send(ctx, ShutdownMsg{}); err != nil {
				return sendErr(err, core.ErrEngineChannelClosed)
			}
			g.Logger.Infow("shutdown_forwarded", "last_order_id", g.nextID)
			return nil
		default:
			return fmt.Errorf("gateway: unexpected message %T", msg)
		}
	}
}

func (g *Gateway) handleNewOrder(ctx context.Context, n core.NewOrder) error {
	// Pipeline.Submit refuses these; anything sent straight to the inbox
	// is dropped without an id and without a rejection notice.
	if !n.Side.Valid() {
		g.Logger.Warnw("order_dropped", "user_id", n.UserID, "side", int8(n.Side), "reason", core.ErrInvalidSide.Error())
		return nil
	}
	if err := Validate(n); err != nil {
		g.Logger.Infow("order_rejected", "user_id", n.UserID, "side", n.Side.String(), "qty", n.Qty, "price", n.Price, "reason", err.Error())
		if err := g.audit.Send(ctx, RejectedOrderMsg{UserID: n.UserID, Reason: err.Error()}); err != nil {
			return sendErr(err, core.ErrAuditChannelClosed)
		}
		return nil
	}

	g.nextID++
	v := core.ValidatedOrder{
		OrderID: g.nextID,
		UserID:  n.UserID,
		Side:    n.Side,
		Qty:     n.Qty,
		Price:   n.Price,
	}
	if err := g.engine.Send(ctx, OrderMsg{Order: v}); err != nil {
		return sendErr(err, core.ErrEngineChannelClosed)
	}
	if g.VerboseLogging {
		g.Logger.Debugw("order_accepted", "order_id", v.OrderID, "user_id", v.UserID, "side", v.Side.String(), "qty", v.Qty, "price", v.Price)
	}
	return nil
}

// LastOrderID returns the most recently minted id (0 before the first accept).
func (g *Gateway) LastOrderID() uint64 { return g.nextID }

// sendErr maps a mailbox failure to the structural error for that edge.
// Context errors pass through unchanged.
func sendErr(err, closed error) error {
	if errors.Is(err, mailbox.ErrClosed) {
		return closed
	}
	return err
}
