// Package mempool implements the unconfirmed transaction pool: a bounded,
// multi-indexed queue of candidate transactions awaiting admission and,
// once admitted, reaping into a proposed block.
//
// # Core Components
//
// Tx / TxID: a candidate transaction and its content-derived identity
// (component data model, spec §3).
//
// UnappliedTxQueue: the bounded multi-index container holding every admitted
// tx, reachable by id, by sender (insertion order), and in nonce and gas
// order (component C6).
//
// LruCache: a capacity-bounded recently-seen filter keyed by tx id, used to
// drop resubmissions of txs already decided on (component C7).
//
// TxPool: the concurrent ingress façade wrapping both: check_tx admits a tx
// through the application's validation callback, reap_max_txs and
// reap_max_bytes_gas pull txs for a block proposal, and update removes
// committed txs after a block commits (component C8).
//
// # Usage Example
//
//	cfg := mempool.DefaultConfig()
//	pool := mempool.NewTxPool(cfg, app.CheckTx)
//
//	tx := mempool.NewTx(sender, nonce, gas, payload)
//	if _, err := pool.CheckTx(tx, true); err != nil {
//	    // rejected or already seen
//	}
//
//	txs := pool.ReapMaxTxs(100)
//	// ... build and commit a block from txs ...
//	pool.Update(committedIDs)
//
// # Thread Safety
//
// CheckTx, ReapMaxTxs, ReapMaxBytesGas, Update, Flush, Size, and TxsBytes are
// all safe for concurrent use. The application's CheckTxFunc is always
// invoked without the pool's own admission lock held, so a slow or blocking
// application callback never stalls other callers (spec §5).
package mempool
