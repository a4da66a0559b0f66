package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchpipe/pkg/actors"
	"github.com/uhyunpark/matchpipe/pkg/app/core"
)

const queueSize = 1024

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TradeEvent is the JSON value of a trade message.
type TradeEvent struct {
	Type        string `json:"type"` // "trade"
	RunID       string `json:"runId"`
	BuyOrderID  uint64 `json:"buyOrderId"`
	SellOrderID uint64 `json:"sellOrderId"`
	Qty         int64  `json:"qty"`
	Price       int64  `json:"price"`
}

// SummaryEvent is the JSON value of the final summary message.
type SummaryEvent struct {
	Type          string `json:"type"` // "summary"
	RunID         string `json:"runId"`
	TotalVolume   int64  `json:"totalVolume"`
	TradeCount    int    `json:"tradeCount"`
	RejectedCount int    `json:"rejectedCount"`
	LastPrice     int64  `json:"lastPrice"`
	Digest        string `json:"digest"`
}

// KafkaPublisher forwards audit events to a Kafka topic. The audit callbacks
// only enqueue; a separate goroutine does the writes, so a slow broker never
// stalls the pipeline. Events are dropped (and counted) when the queue is full.
type KafkaPublisher struct {
	writer messageWriter
	runID  string
	queue  chan kafka.Message
	done   chan struct{}

	closeOnce sync.Once
	dropped   atomic.Int64

	Logger *zap.SugaredLogger
}

func NewKafkaPublisher(brokers []string, topic, runID string) *KafkaPublisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}, runID)
}

func newPublisher(w messageWriter, runID string) *KafkaPublisher {
	p := &KafkaPublisher{
		writer: w,
		runID:  runID,
		queue:  make(chan kafka.Message, queueSize),
		done:   make(chan struct{}),
		Logger: zap.NewNop().Sugar(),
	}
	go p.loop()
	return p
}

// maxBatch caps how many queued events go into one WriteMessages call.
const maxBatch = 256

// loop writes everything already queued as one batch, so throughput is not
// bounded by one BatchTimeout per event.
func (p *KafkaPublisher) loop() {
	defer close(p.done)
	batch := make([]kafka.Message, 0, maxBatch)
	for msg := range p.queue {
		batch = append(batch[:0], msg)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-p.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.writer.WriteMessages(ctx, batch...); err != nil {
			p.Logger.Warnw("kafka_write_failed", "events", len(batch), "err", err)
		}
		cancel()
	}
}

func (p *KafkaPublisher) enqueue(key string, v any) {
	value, err := json.Marshal(v)
	if err != nil {
		p.Logger.Errorw("kafka_marshal_failed", "err", err)
		return
	}
	select {
	case p.queue <- kafka.Message{Key: []byte(key), Value: value}:
	default:
		p.dropped.Add(1)
	}
}

func (p *KafkaPublisher) OnTrade(t core.Trade) {
	p.enqueue(fmt.Sprintf("%d-%d", t.BuyOrderID, t.SellOrderID), TradeEvent{
		Type:        "trade",
		RunID:       p.runID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Qty:         t.Qty,
		Price:       t.Price,
	})
}

func (p *KafkaPublisher) OnSummary(s core.Summary) {
	p.enqueue("summary", SummaryEvent{
		Type:          "summary",
		RunID:         p.runID,
		TotalVolume:   s.TotalVolume,
		TradeCount:    s.TradeCount,
		RejectedCount: s.RejectedCount,
		LastPrice:     s.LastPrice,
		Digest:        s.Digest.Hex(),
	})
}

// Dropped reports how many events were discarded on a full queue.
func (p *KafkaPublisher) Dropped() int64 { return p.dropped.Load() }

// Close flushes queued events and closes the writer. Call it only after the
// pipeline has joined; audit callbacks after Close would panic.
func (p *KafkaPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.queue)
		<-p.done
		if n := p.dropped.Load(); n > 0 {
			p.Logger.Warnw("kafka_events_dropped", "count", n)
		}
		err = p.writer.Close()
	})
	return err
}

var _ actors.TradeObserver = (*KafkaPublisher)(nil)
