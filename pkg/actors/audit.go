package actors

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchpipe/pkg/app/core"
	"github.com/uhyunpark/matchpipe/pkg/app/core/mailbox"
)

// Audit aggregates trades and rejections and emits the terminal summary.
// It has two producers: the gateway (rejections) and the engine (trades).
type Audit struct {
	trades         []core.Trade
	volumeTotal    int64
	rejectedOrders int
	lastPrices     []int64
	digest         common.Hash
	seq            uint64 // messages journaled so far

	inbox *mailbox.Mailbox[AuditMsg]

	Logger *zap.SugaredLogger

	// Optional
	Journal   Journal
	Observers []TradeObserver
}

func NewAudit(inbox *mailbox.Mailbox[AuditMsg]) *Audit {
	return &Audit{
		inbox:  inbox,
		Logger: zap.NewNop().Sugar(),
	}
}

// Run consumes trades and rejections until Shutdown and returns the summary.
func (a *Audit) Run(ctx context.Context) (core.Summary, error) {
	defer a.inbox.Close()

	for {
		msg, ok := a.inbox.Recv(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return core.Summary{}, err
			}
			return core.Summary{}, nil
		}

		switch m := msg.(type) {
		case TradeMsg:
			if err := a.recordTrade(m.Trade); err != nil {
				return core.Summary{}, err
			}
		case RejectedOrderMsg:
			if err := a.recordRejection(m); err != nil {
				return core.Summary{}, err
			}
		case ShutdownMsg:
			s := a.Summary()
			if a.Journal != nil {
				if err := a.Journal.SaveSummary(s); err != nil {
					return s, fmt.Errorf("journal summary: %w", err)
				}
			}
			for _, o := range a.Observers {
				o.OnSummary(s)
			}
			a.Logger.Infow("summary",
				"total_volume", s.TotalVolume,
				"trade_count", s.TradeCount,
				"rejected_count", s.RejectedCount,
				"last_price", s.LastPrice,
				"digest", s.Digest.Hex())
			return s, nil
		default:
			return core.Summary{}, fmt.Errorf("audit: unexpected message %T", msg)
		}
	}
}

func (a *Audit) recordTrade(t core.Trade) error {
	if !t.IsValid() {
		return fmt.Errorf("%w: %s", core.ErrInvalidTrade, t)
	}
	a.Logger.Infow("trade", "buy_order_id", t.BuyOrderID, "sell_order_id", t.SellOrderID, "qty", t.Qty, "price", t.Price)

	a.lastPrices = append(a.lastPrices, t.Price)
	a.volumeTotal += t.Qty
	a.trades = append(a.trades, t)
	a.digest = chainDigest(a.digest, t)

	a.seq++
	if a.Journal != nil {
		if err := a.Journal.AppendTrade(a.seq, t); err != nil {
			return fmt.Errorf("journal trade: %w", err)
		}
	}
	for _, o := range a.Observers {
		o.OnTrade(t)
	}
	return nil
}

func (a *Audit) recordRejection(m RejectedOrderMsg) error {
	a.rejectedOrders++

	a.seq++
	if a.Journal != nil {
		if err := a.Journal.RecordRejection(a.seq, m.Reason); err != nil {
			return fmt.Errorf("journal rejection: %w", err)
		}
	}
	return nil
}

// Summary returns the running aggregates.
func (a *Audit) Summary() core.Summary {
	s := core.Summary{
		TotalVolume:   a.volumeTotal,
		TradeCount:    len(a.trades),
		RejectedCount: a.rejectedOrders,
		Digest:        a.digest,
	}
	if n := len(a.lastPrices); n > 0 {
		s.LastPrice = a.lastPrices[n-1]
	}
	return s
}

// Trades returns recorded trades in engine emission order.
func (a *Audit) Trades() []core.Trade {
	out := make([]core.Trade, len(a.trades))
	copy(out, a.trades)
	return out
}

// LastPrices returns trade prices in emission order.
func (a *Audit) LastPrices() []int64 {
	out := make([]int64, len(a.lastPrices))
	copy(out, a.lastPrices)
	return out
}

// chainDigest folds t into prev: keccak256(prev || buy || sell || qty || price).
func chainDigest(prev common.Hash, t core.Trade) common.Hash {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[0:8], t.BuyOrderID)
	binary.BigEndian.PutUint64(buf[8:16], t.SellOrderID)
	binary.BigEndian.PutUint64(buf[16:24], uint64(t.Qty))
	binary.BigEndian.PutUint64(buf[24:32], uint64(t.Price))
	return crypto.Keccak256Hash(prev.Bytes(), buf[:])
}
