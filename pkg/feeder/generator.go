package feeder

import (
	"math/rand"
	"time"

	"github.com/uhyunpark/matchpipe/pkg/app/core"
)

// Generator creates random order submissions for load testing
type Generator struct {
	numUsers    int
	basePrice   int64
	invalidRate int // percent of orders generated with a bad qty or price
	generated   int
	invalid     int
	rng         *rand.Rand
}

// NewGenerator creates a generator. A zero seed seeds from the clock.
func NewGenerator(numUsers int, basePrice int64, invalidRate int, seed int64) *Generator {
	if numUsers <= 0 {
		numUsers = 1
	}
	if basePrice < 20 {
		basePrice = 20
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		numUsers:    numUsers,
		basePrice:   basePrice,
		invalidRate: invalidRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// GenerateOrder creates a random order submission
func (g *Generator) GenerateOrder() core.NewOrder {
	g.generated++

	// Random side: 50% BUY, 50% SELL
	side := core.Buy
	if g.rng.Intn(2) == 1 {
		side = core.Sell
	}

	// Random price around base (±5%)
	spread := g.basePrice / 10
	price := g.basePrice + g.rng.Int63n(spread+1) - spread/2

	// Random quantity: 1 to 10
	qty := g.rng.Int63n(10) + 1

	o := core.NewOrder{
		UserID: int64(g.rng.Intn(g.numUsers) + 1),
		Side:   side,
		Qty:    qty,
		Price:  price,
	}

	if g.rng.Intn(100) < g.invalidRate {
		g.invalid++
		if g.rng.Intn(2) == 0 {
			o.Qty = -g.rng.Int63n(5) // 0 or negative
		} else {
			o.Price = -g.rng.Int63n(5)
		}
	}
	return o
}

// GenerateBatch creates multiple random orders
func (g *Generator) GenerateBatch(count int) []core.NewOrder {
	batch := make([]core.NewOrder, count)
	for i := 0; i < count; i++ {
		batch[i] = g.GenerateOrder()
	}
	return batch
}

// Stats for load testing analysis
type Stats struct {
	TotalOrders   int
	InvalidOrders int
	OrdersPerSec  float64
}

// GetStats returns current generation statistics
func (g *Generator) GetStats(elapsed time.Duration) Stats {
	seconds := elapsed.Seconds()
	if seconds == 0 {
		seconds = 1
	}
	return Stats{
		TotalOrders:   g.generated,
		InvalidOrders: g.invalid,
		OrdersPerSec:  float64(g.generated) / seconds,
	}
}
