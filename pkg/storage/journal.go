package storage

import (
	"sort"
	"sync"

	"github.com/uhyunpark/matchpipe/pkg/actors"
	"github.com/uhyunpark/matchpipe/pkg/app/core"
)

// JournaledTrade is a trade with its audit sequence number.
type JournaledTrade struct {
	Seq   uint64
	Trade core.Trade
}

// Rejection is a rejected submission with its audit sequence number.
type Rejection struct {
	Seq    uint64
	Reason string
}

// InMemoryJournal keeps the audit trail in maps. Used when no
// AUDIT_DB_PATH is configured, and in tests.
type InMemoryJournal struct {
	mu         sync.Mutex
	trades     map[uint64]core.Trade
	rejections map[uint64]string
	summary    *core.Summary
}

func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{
		trades:     make(map[uint64]core.Trade),
		rejections: make(map[uint64]string),
	}
}

func (j *InMemoryJournal) AppendTrade(seq uint64, t core.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades[seq] = t
	return nil
}

func (j *InMemoryJournal) RecordRejection(seq uint64, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rejections[seq] = reason
	return nil
}

func (j *InMemoryJournal) SaveSummary(s core.Summary) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.summary = &s
	return nil
}

// Trades returns journaled trades in sequence order.
func (j *InMemoryJournal) Trades() ([]JournaledTrade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]JournaledTrade, 0, len(j.trades))
	for seq, t := range j.trades {
		out = append(out, JournaledTrade{Seq: seq, Trade: t})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

// Rejections returns journaled rejections in sequence order.
func (j *InMemoryJournal) Rejections() ([]Rejection, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Rejection, 0, len(j.rejections))
	for seq, r := range j.rejections {
		out = append(out, Rejection{Seq: seq, Reason: r})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

// Summary returns the saved summary, ok=false before shutdown.
func (j *InMemoryJournal) Summary() (core.Summary, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.summary == nil {
		return core.Summary{}, false, nil
	}
	return *j.summary, true, nil
}

var _ actors.Journal = (*InMemoryJournal)(nil)
