package mempool

import (
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 32

// maxTxID sorts after every real TxID (a hex-encoded content hash, so every
// byte is an ASCII hex digit strictly below 0xff): used as a sentinel id to
// pin range queries at a gas/nonce boundary regardless of which id ties there.
const maxTxID TxID = "\xff"

// nonceKey orders queue entries by (nonce, id) so that entries with an
// identical nonce from different senders still sort deterministically.
type nonceKey struct {
	nonce uint64
	id    TxID
}

func nonceLess(a, b nonceKey) bool {
	if a.nonce != b.nonce {
		return a.nonce < b.nonce
	}
	return a.id < b.id
}

// gasKey orders queue entries by (gas, id).
type gasKey struct {
	gas uint64
	id  TxID
}

func gasLess(a, b gasKey) bool {
	if a.gas != b.gas {
		return a.gas < b.gas
	}
	return a.id < b.id
}

// UnappliedTxQueue is the bounded multi-index mempool container (C6): every
// admitted tx is reachable by id, by sender, and in nonce and gas order, and
// the sum of entry sizes never exceeds maxBytesBudget.
type UnappliedTxQueue struct {
	mu sync.RWMutex

	maxBytesBudget int64
	bytes          int64

	byID       map[TxID]*Tx
	byNonce    *btree.BTreeG[nonceKey]
	byGas      *btree.BTreeG[gasKey]
	bySender   map[string][]TxID // insertion order per sender
	senderSeen []string          // senders in first-seen order
}

// NewUnappliedTxQueue creates an empty queue bounded by maxBytesBudget; a
// budget of zero or less means no byte bound.
func NewUnappliedTxQueue(maxBytesBudget int64) *UnappliedTxQueue {
	return &UnappliedTxQueue{
		maxBytesBudget: maxBytesBudget,
		byID:           make(map[TxID]*Tx),
		byNonce:        btree.NewG(btreeDegree, nonceLess),
		byGas:          btree.NewG(btreeDegree, gasLess),
		bySender:       make(map[string][]TxID),
	}
}

// AddTx inserts tx into all four indices, rejecting a duplicate id or a byte
// budget overflow (spec §4.6).
func (q *UnappliedTxQueue) AddTx(tx *Tx) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byID[tx.ID]; exists {
		return false
	}

	size := tx.SizeBytes()
	if q.maxBytesBudget > 0 && q.bytes+size > q.maxBytesBudget {
		return false
	}

	q.byID[tx.ID] = tx
	q.byNonce.ReplaceOrInsert(nonceKey{nonce: tx.Nonce, id: tx.ID})
	q.byGas.ReplaceOrInsert(gasKey{gas: tx.Gas, id: tx.ID})

	sender := senderKey(tx)
	if _, seen := q.bySender[sender]; !seen {
		q.senderSeen = append(q.senderSeen, sender)
	}
	q.bySender[sender] = append(q.bySender[sender], tx.ID)

	q.bytes += size
	return true
}

// SendersInOrder returns every sender with at least one tx in the queue, in
// the order each was first seen.
func (q *UnappliedTxQueue) SendersInOrder() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	// A sender whose txs were all erased and who later returns is appended to
	// senderSeen again; list it once, at its first position.
	out := make([]string, 0, len(q.senderSeen))
	listed := make(map[string]bool, len(q.senderSeen))
	for _, s := range q.senderSeen {
		if len(q.bySender[s]) > 0 && !listed[s] {
			listed[s] = true
			out = append(out, s)
		}
	}
	return out
}

// GetTx returns the tx stored under id, or nil if absent.
func (q *UnappliedTxQueue) GetTx(id TxID) *Tx {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.byID[id]
}

// GetBySender returns every tx from sender, in the order they were admitted.
func (q *UnappliedTxQueue) GetBySender(sender string) []*Tx {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ids := q.bySender[sender]
	txs := make([]*Tx, 0, len(ids))
	for _, id := range ids {
		if tx, ok := q.byID[id]; ok {
			txs = append(txs, tx)
		}
	}
	return txs
}

// Erase removes id from every index, reporting whether it was present.
func (q *UnappliedTxQueue) Erase(id TxID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.eraseLocked(id)
}

func (q *UnappliedTxQueue) eraseLocked(id TxID) bool {
	tx, ok := q.byID[id]
	if !ok {
		return false
	}

	delete(q.byID, id)
	q.byNonce.Delete(nonceKey{nonce: tx.Nonce, id: tx.ID})
	q.byGas.Delete(gasKey{gas: tx.Gas, id: tx.ID})

	sender := senderKey(tx)
	ids := q.bySender[sender]
	for i, sid := range ids {
		if sid == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(q.bySender, sender)
	} else {
		q.bySender[sender] = ids
	}

	q.bytes -= tx.SizeBytes()
	return true
}

// Clear empties the queue.
func (q *UnappliedTxQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byID = make(map[TxID]*Tx)
	q.byNonce = btree.NewG(btreeDegree, nonceLess)
	q.byGas = btree.NewG(btreeDegree, gasLess)
	q.bySender = make(map[string][]TxID)
	q.senderSeen = nil
	q.bytes = 0
}

// Size returns the number of txs in the queue.
func (q *UnappliedTxQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.byID)
}

// Empty reports whether the queue holds no txs.
func (q *UnappliedTxQueue) Empty() bool {
	return q.Size() == 0
}

// Bytes returns the sum of every entry's size_bytes currently held.
func (q *UnappliedTxQueue) Bytes() int64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.bytes
}

// AscendByNonce calls fn for every tx in ascending nonce order, stopping early
// if fn returns false.
func (q *UnappliedTxQueue) AscendByNonce(fn func(tx *Tx) bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	q.byNonce.Ascend(func(k nonceKey) bool {
		tx, ok := q.byID[k.id]
		if !ok {
			return true
		}
		return fn(tx)
	})
}

// DescendByGas calls fn for every tx in descending gas order (highest-gas
// first), stopping early if fn returns false.
func (q *UnappliedTxQueue) DescendByGas(fn func(tx *Tx) bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	q.byGas.Descend(func(k gasKey) bool {
		tx, ok := q.byID[k.id]
		if !ok {
			return true
		}
		return fn(tx)
	})
}

// AscendRangeByNonce calls fn for every tx with lo <= nonce <= hi, in
// ascending nonce order, stopping early if fn returns false or the upper
// bound is passed (spec §4.6's bounded iteration in both directions).
func (q *UnappliedTxQueue) AscendRangeByNonce(lo, hi uint64, fn func(tx *Tx) bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	q.byNonce.AscendGreaterOrEqual(nonceKey{nonce: lo}, func(k nonceKey) bool {
		if k.nonce > hi {
			return false
		}
		tx, ok := q.byID[k.id]
		if !ok {
			return true
		}
		return fn(tx)
	})
}

// DescendRangeByGas calls fn for every tx with lo <= gas <= hi, in descending
// gas order (highest first), stopping early if fn returns false or the lower
// bound is passed.
func (q *UnappliedTxQueue) DescendRangeByGas(lo, hi uint64, fn func(tx *Tx) bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	q.byGas.DescendLessOrEqual(gasKey{gas: hi, id: maxTxID}, func(k gasKey) bool {
		if k.gas < lo {
			return false
		}
		tx, ok := q.byID[k.id]
		if !ok {
			return true
		}
		return fn(tx)
	})
}

func senderKey(tx *Tx) string {
	return tx.Sender.Name
}
