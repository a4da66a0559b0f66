package feeder

import (
	"context"
	"errors"
	"testing"

	"github.com/uhyunpark/matchpipe/pkg/actors"
	"github.com/uhyunpark/matchpipe/pkg/app/core"
)

func TestGenerator_Deterministic(t *testing.T) {
	a := NewGenerator(10, 100, 5, 42).GenerateBatch(50)
	b := NewGenerator(10, 100, 5, 42).GenerateBatch(50)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("order %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestGenerator_Ranges(t *testing.T) {
	g := NewGenerator(5, 100, 0, 7)
	for _, o := range g.GenerateBatch(500) {
		if o.Qty < 1 || o.Qty > 10 {
			t.Fatalf("qty out of range: %+v", o)
		}
		if o.Price < 95 || o.Price > 105 {
			t.Fatalf("price out of range: %+v", o)
		}
		if o.UserID < 1 || o.UserID > 5 {
			t.Fatalf("user out of range: %+v", o)
		}
		if o.Side != core.Buy && o.Side != core.Sell {
			t.Fatalf("bad side: %+v", o)
		}
	}
	if s := g.GetStats(0); s.TotalOrders != 500 || s.InvalidOrders != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestGenerator_InvalidOrders(t *testing.T) {
	g := NewGenerator(5, 100, 100, 7)
	for _, o := range g.GenerateBatch(100) {
		if o.Qty > 0 && o.Price > 0 {
			t.Fatalf("expected invalid order, got %+v", o)
		}
	}
	if s := g.GetStats(0); s.InvalidOrders != 100 {
		t.Errorf("InvalidOrders = %d", s.InvalidOrders)
	}
}

func TestRun_DrivesPipeline(t *testing.T) {
	ctx := context.Background()
	p := actors.New(actors.Config{InboxCapacity: 4})
	p.Start(ctx)

	cfg := Config{Orders: 300, BatchSize: 7, NumUsers: 10, BasePrice: 100, InvalidRate: 10, Seed: 1}
	sent, err := Run(ctx, p, cfg, nil)
	if err != nil || sent != 300 {
		t.Fatalf("Run() = %d, %v", sent, err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	rep, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	var rested int64
	for _, o := range rep.Book {
		rested += o.Qty
	}
	var valid int
	var validQty int64
	for _, o := range NewGenerator(10, 100, 10, 1).GenerateBatch(300) {
		if o.Qty > 0 && o.Price > 0 {
			valid++
			validQty += o.Qty
		}
	}
	if rep.Summary.RejectedCount != 300-valid {
		t.Errorf("RejectedCount = %d, want %d", rep.Summary.RejectedCount, 300-valid)
	}
	if validQty != 2*rep.Summary.TotalVolume+rested {
		t.Errorf("qty not conserved: valid=%d volume=%d rested=%d", validQty, rep.Summary.TotalVolume, rested)
	}
}

type failingSubmitter struct{ after int }

func (f *failingSubmitter) Submit(context.Context, core.NewOrder) error {
	if f.after == 0 {
		return core.ErrGatewayChannelClosed
	}
	f.after--
	return nil
}

func TestRun_StopsOnSubmitError(t *testing.T) {
	sent, err := Run(context.Background(), &failingSubmitter{after: 3}, Config{Orders: 10, Seed: 1}, nil)
	if !errors.Is(err, core.ErrGatewayChannelClosed) || sent != 3 {
		t.Fatalf("Run() = %d, %v", sent, err)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := DefaultConfig()
	cfg.Seed = 1
	sent, err := Run(ctx, &failingSubmitter{after: 1 << 30}, cfg, nil)
	if !errors.Is(err, context.Canceled) || sent != 0 {
		t.Fatalf("Run() = %d, %v", sent, err)
	}
}
