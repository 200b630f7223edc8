// Package abci defines the external application contract consensus and the
// mempool drive against: check_tx for admission, begin_block/deliver_tx/
// end_block/commit for applying a finalized block (spec §6). This package is
// a pure interface boundary — it implements no application itself.
package abci

import (
	"github.com/haderech/smite/types"
)

// Event is a key/value annotation an application may attach to a response,
// for indexing or subscription purposes.
type Event struct {
	Type       string
	Attributes map[string]string
}

// ResponseCheckTx is the application's verdict on a candidate tx, returned
// before it is ever included in a block.
type ResponseCheckTx struct {
	Code      uint32
	Log       string
	GasWanted int64
	GasUsed   int64
	Data      []byte
	Events    []Event
}

// ResponseDeliverTx is the application's result from applying one tx within a
// committed block.
type ResponseDeliverTx struct {
	Code      uint32
	Log       string
	GasWanted int64
	GasUsed   int64
	Data      []byte
	Events    []Event
}

// ResponseBeginBlock carries events emitted before any tx in the block is
// applied.
type ResponseBeginBlock struct {
	Events []Event
}

// ValidatorUpdate changes a validator's voting power; zero power removes the
// validator from the set.
type ValidatorUpdate struct {
	Name        types.AccountName
	PublicKey   types.PublicKey
	VotingPower int64
}

// ConsensusParams carries the block limits: maximum block size in bytes and
// maximum total gas per block.
type ConsensusParams struct {
	MaxBlockBytes int64
	MaxBlockGas   int64
}

// ResponseEndBlock carries validator-set changes decided after every tx in
// the block has been applied.
type ResponseEndBlock struct {
	ValidatorUpdates      []ValidatorUpdate
	ConsensusParamUpdates *ConsensusParams
	Events                []Event
}

// LastCommitInfo summarizes the previous height's commit, handed to
// begin_block so the application can reward or penalize voters.
type LastCommitInfo struct {
	Round int32
	Votes []types.Vote
}

// Application is the external state-transition function consensus and the
// mempool drive (spec §6). Implementations must be deterministic:
// DeliverTx/BeginBlock/EndBlock/Commit run identically on every honest
// validator given the same committed block.
type Application interface {
	// CheckTx validates tx without applying it, used by the mempool to
	// decide admission.
	CheckTx(tx []byte) (*ResponseCheckTx, error)

	// BeginBlock is called once before any DeliverTx for the block at height.
	BeginBlock(height int64, lastCommit LastCommitInfo, byzantineValidators []types.Validator) (*ResponseBeginBlock, error)

	// DeliverTx applies one tx from the committed block.
	DeliverTx(tx []byte) (*ResponseDeliverTx, error)

	// EndBlock is called once after every DeliverTx for the block at height.
	EndBlock(height int64) (*ResponseEndBlock, error)

	// Commit persists the application's state and returns its hash, to be
	// carried in the next block header.
	Commit() (types.Hash, error)
}
