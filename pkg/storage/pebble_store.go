package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/matchpipe/pkg/actors"
	"github.com/uhyunpark/matchpipe/pkg/app/core"
)

// PebbleJournal persists the audit trail. It holds trades, rejections and
// the terminal summary only; the resting book is never written.
//
// Each open claims a new run number and writes under it, so a store reused
// across runs keeps every run's records and summary consistent with each
// other. Trades, Rejections and Summary read the current run; the *Of
// variants read any earlier one.
type PebbleJournal struct {
	db  *pebble.DB
	run uint64
}

func NewPebbleJournal(path string) (*PebbleJournal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	run, err := nextRun(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("claim run: %w", err)
	}
	return &PebbleJournal{db: db, run: run}, nil
}

func nextRun(db *pebble.DB) (uint64, error) {
	var last uint64
	val, closer, err := db.Get(keyRun)
	switch {
	case err == nil:
		if len(val) != 8 {
			closer.Close()
			return 0, fmt.Errorf("corrupt run counter (%d bytes)", len(val))
		}
		last = binary.BigEndian.Uint64(val)
		closer.Close()
	case errors.Is(err, pebble.ErrNotFound):
	default:
		return 0, err
	}
	run := last + 1
	if err := db.Set(keyRun, seqKey(run), pebble.Sync); err != nil {
		return 0, err
	}
	return run, nil
}

func (s *PebbleJournal) Close() error { return s.db.Close() }

// Run returns the run number this handle writes under (1 for a fresh store).
func (s *PebbleJournal) Run() uint64 { return s.run }

func (s *PebbleJournal) AppendTrade(seq uint64, t core.Trade) error {
	val, err := encodeGob(t)
	if err != nil {
		return fmt.Errorf("encode trade: %w", err)
	}
	// NoSync: the summary write at shutdown syncs the WAL.
	if err := s.db.Set(tradeKey(s.run, seq), val, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

func (s *PebbleJournal) RecordRejection(seq uint64, reason string) error {
	if err := s.db.Set(rejectionKey(s.run, seq), []byte(reason), pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save rejection: %w", err)
	}
	return nil
}

func (s *PebbleJournal) SaveSummary(sum core.Summary) error {
	val, err := encodeGob(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := s.db.Set(summaryKey(s.run), val, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

func (s *PebbleJournal) Trades() ([]JournaledTrade, error) { return s.TradesOf(s.run) }

// TradesOf loads the trades of one run in sequence order.
func (s *PebbleJournal) TradesOf(run uint64) ([]JournaledTrade, error) {
	prefix := runPrefix(prefixTrade, run)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []JournaledTrade
	for iter.First(); iter.Valid(); iter.Next() {
		var t core.Trade
		if err := decodeGob(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("decode trade: %w", err)
		}
		out = append(out, JournaledTrade{Seq: seqFromKey(prefix, iter.Key()), Trade: t})
	}
	return out, iter.Error()
}

func (s *PebbleJournal) Rejections() ([]Rejection, error) { return s.RejectionsOf(s.run) }

// RejectionsOf loads the rejections of one run in sequence order.
func (s *PebbleJournal) RejectionsOf(run uint64) ([]Rejection, error) {
	prefix := runPrefix(prefixRejection, run)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Rejection
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, Rejection{
			Seq:    seqFromKey(prefix, iter.Key()),
			Reason: string(iter.Value()),
		})
	}
	return out, iter.Error()
}

func (s *PebbleJournal) Summary() (core.Summary, bool, error) { return s.SummaryOf(s.run) }

// SummaryOf loads a run's terminal summary, ok=false if that run never
// shut down cleanly.
func (s *PebbleJournal) SummaryOf(run uint64) (core.Summary, bool, error) {
	val, closer, err := s.db.Get(summaryKey(run))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return core.Summary{}, false, nil
		}
		return core.Summary{}, false, err
	}
	defer closer.Close()
	var out core.Summary
	if err := decodeGob(val, &out); err != nil {
		return core.Summary{}, false, fmt.Errorf("decode summary: %w", err)
	}
	return out, true, nil
}

var _ actors.Journal = (*PebbleJournal)(nil)
