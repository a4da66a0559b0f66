package actors

import "github.com/uhyunpark/matchpipe/pkg/app/core"

// Journal records the audit trail. Implementations live in pkg/storage.
type Journal interface {
	AppendTrade(seq uint64, t core.Trade) error
	RecordRejection(seq uint64, reason string) error
	SaveSummary(s core.Summary) error
}

// WAL is a line-oriented engine log.
type WAL interface {
	Append(line string)
}

// TradeObserver is notified by audit after each recorded trade and once
// with the terminal summary. Calls happen on the audit goroutine, so
// implementations must not block for long.
type TradeObserver interface {
	OnTrade(t core.Trade)
	OnSummary(s core.Summary)
}
