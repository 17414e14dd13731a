package protocol

import "sync/atomic"

// The transaction counter is process-wide: every command channel in the
// process draws from the same sequence, mirroring the device's tolerance
// for gaps but not for reuse within a connection.
var txnCounter atomic.Uint32

func init() {
	txnCounter.Store(TxnBase)
}

// NextTxn increments the counter and returns the new value. Wraparound at
// 32 bits simply continues at the low end.
func NextTxn() uint32 {
	return txnCounter.Add(1)
}
