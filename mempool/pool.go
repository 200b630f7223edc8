package mempool

import (
	"sort"
	"sync"

	"github.com/tendermint/tendermint/libs/log"
)

// CheckTxResponse is the application's verdict on a candidate tx, following
// the external ABCI-style contract (spec §6).
type CheckTxResponse struct {
	Code      uint32
	Log       string
	GasWanted int64
	GasUsed   int64
	Data      []byte
}

// Ok reports whether the application accepted the tx.
func (r *CheckTxResponse) Ok() bool {
	return r != nil && r.Code == 0
}

// CheckTxFunc is the application callback TxPool invokes to validate a tx
// before admission. It is always invoked outside of the pool's admission
// lock (spec §5): a slow or blocking application never stalls other callers.
type CheckTxFunc func(tx *Tx) (*CheckTxResponse, error)

// TxPool is the concurrent ingress façade (C8): it mediates every tx's path
// from the network into the UnappliedTxQueue, deduplicating via LruCache and
// deferring admission decisions to the application's CheckTxFunc.
type TxPool struct {
	config      *Config
	checkTxFunc CheckTxFunc
	logger      log.Logger

	queue *UnappliedTxQueue
	cache *LruCache

	// admitMu serializes the cache-probe-then-queue-insert sequence so two
	// concurrent callers for the same id can't both observe a cache miss and
	// both insert. It is never held across the application callback.
	admitMu sync.Mutex
}

// NewTxPool creates a TxPool. checkTxFunc may be nil and set later with
// SetCheckTxFunc.
func NewTxPool(config *Config, checkTxFunc CheckTxFunc) *TxPool {
	if config == nil {
		config = DefaultConfig()
	}
	return &TxPool{
		config:      config,
		checkTxFunc: checkTxFunc,
		queue:       NewUnappliedTxQueue(config.MaxBytesBudget),
		cache:       NewLruCache(config.CacheSize),
		logger:      log.NewNopLogger(),
	}
}

// SetLogger sets the pool's logger.
func (p *TxPool) SetLogger(logger log.Logger) {
	p.logger = logger
}

// SetCheckTxFunc sets the application callback used to validate incoming txs.
func (p *TxPool) SetCheckTxFunc(fn CheckTxFunc) {
	p.admitMu.Lock()
	defer p.admitMu.Unlock()
	p.checkTxFunc = fn
}

// CheckTx validates and, on success, admits tx. If sync is true it blocks
// until the application callback resolves; otherwise it runs the same
// sequence on a new goroutine and returns immediately with a nil response,
// invoking no caller-visible side effect beyond the pool's own state (spec
// §4.8).
func (p *TxPool) CheckTx(tx *Tx, sync bool) (*CheckTxResponse, error) {
	if sync {
		return p.checkTx(tx)
	}
	go func() {
		if _, err := p.checkTx(tx); err != nil {
			p.logger.Debug("async check_tx failed", "tx", tx.ID, "err", err)
		}
	}()
	return nil, nil
}

func (p *TxPool) checkTx(tx *Tx) (*CheckTxResponse, error) {
	if p.config.MaxBytesBudget > 0 && tx.SizeBytes() > p.config.MaxBytesBudget {
		return nil, ErrTxTooLarge
	}

	p.admitMu.Lock()
	if p.cache.Has(tx.ID) {
		p.admitMu.Unlock()
		return nil, ErrTxAlreadySeen
	}
	p.admitMu.Unlock()

	if p.checkTxFunc == nil {
		return nil, ErrNoCheckTxFunc
	}
	resp, err := p.checkTxFunc(tx)
	if err != nil {
		return nil, err
	}

	p.admitMu.Lock()
	defer p.admitMu.Unlock()

	// Re-check under the lock: another concurrent caller may have admitted
	// (or rejected-and-cached) the same id while the application callback
	// above was in flight.
	if p.cache.Has(tx.ID) {
		return nil, ErrTxAlreadySeen
	}

	p.cache.Put(tx.ID, tx)
	if !resp.Ok() {
		p.logger.Debug("check_tx rejected", "tx", tx.ID, "code", resp.Code, "log", resp.Log)
		return resp, ErrTxRejected
	}

	if !p.queue.AddTx(tx) {
		p.logger.Debug("check_tx admitted but queue insert failed", "tx", tx.ID)
		return resp, ErrMempoolFull
	}

	p.logger.Debug("check_tx admitted", "tx", tx.ID, "sender", tx.Sender, "nonce", tx.Nonce)
	return resp, nil
}

// ReapMaxTxs returns up to n txs in by_nonce order for the earliest sender
// group, draining that sender's backlog before moving to the next
// first-seen sender (FIFO fairness policy).
func (p *TxPool) ReapMaxTxs(n int) []*Tx {
	if n <= 0 {
		return nil
	}

	out := make([]*Tx, 0, n)
	for _, sender := range p.queue.SendersInOrder() {
		if len(out) >= n {
			break
		}
		txs := p.queue.GetBySender(sender)
		sort.Slice(txs, func(i, j int) bool { return txs[i].Nonce < txs[j].Nonce })
		for _, tx := range txs {
			if len(out) >= n {
				break
			}
			out = append(out, tx)
		}
	}
	return out
}

// ReapMaxBytesGas selects txs highest-gas-first until either maxBytes or
// maxGas would be exceeded by the next candidate.
func (p *TxPool) ReapMaxBytesGas(maxBytes, maxGas int64) []*Tx {
	var out []*Tx
	var bytes, gas int64

	p.queue.DescendByGas(func(tx *Tx) bool {
		size := tx.SizeBytes()
		if maxBytes >= 0 && bytes+size > maxBytes {
			return false
		}
		if maxGas >= 0 && gas+int64(tx.Gas) > maxGas {
			return false
		}
		out = append(out, tx)
		bytes += size
		gas += int64(tx.Gas)
		return true
	})
	return out
}

// Update removes every committed id from the queue and, if Recheck is
// configured, revalidates the remainder by re-invoking the application
// callback, dropping any tx that no longer validates.
func (p *TxPool) Update(committedIDs []TxID) {
	for _, id := range committedIDs {
		p.queue.Erase(id)
	}

	if !p.config.Recheck || p.checkTxFunc == nil {
		return
	}

	var stale []*Tx
	p.queue.AscendByNonce(func(tx *Tx) bool {
		stale = append(stale, tx)
		return true
	})

	for _, tx := range stale {
		resp, err := p.checkTxFunc(tx)
		if err != nil || !resp.Ok() {
			p.logger.Debug("recheck dropped tx", "tx", tx.ID)
			p.queue.Erase(tx.ID)
		}
	}
}

// Flush clears every queued tx without touching the recently-seen cache.
func (p *TxPool) Flush() {
	p.queue.Clear()
}

// Size returns the number of txs currently queued for reaping.
func (p *TxPool) Size() int {
	return p.queue.Size()
}

// TxsBytes returns the sum of every queued tx's size in bytes.
func (p *TxPool) TxsBytes() int64 {
	return p.queue.Bytes()
}
