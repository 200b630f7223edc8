package mempool

import (
	"github.com/haderech/smite/types"
)

// TxID uniquely identifies a Tx within the pool. It is the hex encoding of the
// tx's content hash, computed once at construction.
type TxID string

// Tx is a candidate transaction awaiting admission and, once admitted, reaping
// into a block (spec §3).
type Tx struct {
	ID      TxID
	Sender  types.AccountName
	Nonce   uint64
	Gas     uint64
	Payload []byte
}

type txSignBytes struct {
	Sender  types.AccountName `msgpack:"sender"`
	Nonce   uint64            `msgpack:"nonce"`
	Gas     uint64            `msgpack:"gas"`
	Payload []byte            `msgpack:"payload"`
}

// NewTx builds a Tx from its fields, deriving its ID from a content hash of
// its canonical encoding so that resubmitting identical fields never mints a
// second ID.
func NewTx(sender types.AccountName, nonce, gas uint64, payload []byte) *Tx {
	tx := &Tx{Sender: sender, Nonce: nonce, Gas: gas, Payload: payload}
	tx.ID = txIDFromBytes(mustEncodeTx(tx))
	return tx
}

// Bytes returns tx's canonical wire encoding — the same bytes that are
// embedded in a block's tx data and whose hash is tx.ID.
func (tx *Tx) Bytes() ([]byte, error) {
	return types.Marshal(txSignBytes{
		Sender:  tx.Sender,
		Nonce:   tx.Nonce,
		Gas:     tx.Gas,
		Payload: tx.Payload,
	})
}

func mustEncodeTx(tx *Tx) []byte {
	data, err := tx.Bytes()
	if err != nil {
		panic("mempool: failed to marshal tx for id derivation: " + err.Error())
	}
	return data
}

func txIDFromBytes(data []byte) TxID {
	return TxID(types.HashString(types.HashBytes(data)))
}

// DecodeTx reconstructs a Tx from its canonical wire encoding, as produced by
// Bytes. Its ID is derived from data itself so it matches the ID minted at
// admission time.
func DecodeTx(data []byte) (*Tx, error) {
	var sb txSignBytes
	if err := types.Unmarshal(data, &sb); err != nil {
		return nil, err
	}
	return &Tx{
		ID:      txIDFromBytes(data),
		Sender:  sb.Sender,
		Nonce:   sb.Nonce,
		Gas:     sb.Gas,
		Payload: sb.Payload,
	}, nil
}

// SizeBytes is the byte cost this tx charges against a pool's byte budget.
func (tx *Tx) SizeBytes() int64 {
	return int64(len(tx.Payload)) + 64 // fixed overhead for sender/nonce/gas/id
}
