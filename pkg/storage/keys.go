package storage

// Audit journal key schema for Pebble storage:
//
//   run                      → 8-byte number of the latest run
//   t:<8-byte run><8-byte seq> → Trade
//   r:<8-byte run><8-byte seq> → rejection reason
//   s:<8-byte run>           → terminal Summary of that run
//
// Every open of the store starts a new run, so records of separate runs
// never share a key. Numbers are big-endian so iteration order is journal
// order. Within a run, trades and rejections share one sequence space.

var (
	keyRun          = []byte("run")
	prefixTrade     = []byte("t:")
	prefixRejection = []byte("r:")
	prefixSummary   = []byte("s:")
)

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func runPrefix(prefix []byte, run uint64) []byte { return concat(prefix, seqKey(run)) }

func tradeKey(run, seq uint64) []byte {
	return concat(prefixTrade, seqKey(run), seqKey(seq))
}

func rejectionKey(run, seq uint64) []byte {
	return concat(prefixRejection, seqKey(run), seqKey(seq))
}

func summaryKey(run uint64) []byte { return runPrefix(prefixSummary, run) }

// keyUpperBound returns the exclusive upper bound for a prefix scan, or nil
// when the prefix is all 0xff and no bound exists.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] != 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}
