package mempool

import "errors"

var (
	ErrTxTooLarge      = errors.New("mempool: tx exceeds the byte budget")
	ErrTxAlreadySeen   = errors.New("mempool: tx already seen (cache hit)")
	ErrTxAlreadyExists = errors.New("mempool: tx already in queue")
	ErrMempoolFull     = errors.New("mempool: queue is full")
	ErrTxRejected      = errors.New("mempool: application rejected tx")
	ErrNoCheckTxFunc   = errors.New("mempool: no CheckTxFunc configured")
)
