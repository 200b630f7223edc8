// Package abci defines the boundary between the consensus/mempool core and
// the external application: check_tx (admission), and begin_block/
// deliver_tx/end_block/commit (block application), per spec §6.
//
// # Core Components
//
// Application: the interface an external state machine implements. This
// package ships no concrete Application — only the contract.
//
// Executor: adapts an Application plus a mempool.TxPool into the
// engine.BlockExecutor contract consensus drives directly, pulling proposal
// txs from the pool and removing committed ones once a block applies.
//
// CheckTxFunc: adapts Application.CheckTx into the mempool.CheckTxFunc
// callback TxPool.CheckTx invokes on admission.
//
// # Usage Example
//
//	pool := mempool.NewTxPool(mempool.DefaultConfig(), nil)
//	pool.SetCheckTxFunc(abci.CheckTxFunc(app))
//
//	executor := abci.NewExecutor(app, pool, cfg.ChainID)
//	eng := engine.NewEngine(cfg, valSet, privVal, wal, executor)
package abci
