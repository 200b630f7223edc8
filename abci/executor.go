package abci

import (
	"fmt"

	"github.com/haderech/smite/mempool"
	"github.com/haderech/smite/types"
)

// MaxTxsPerBlock bounds how many mempool txs Executor pulls into one proposal.
const MaxTxsPerBlock = 10000

// Executor adapts an Application plus a TxPool into the engine.BlockExecutor
// contract: it pulls candidate txs from the pool to build proposals, and
// drives the application's begin/deliver/end/commit sequence when a block
// finalizes, then removes the committed txs from the pool.
type Executor struct {
	app      Application
	pool     *mempool.TxPool
	chainID  string
	lastHash *types.Hash
}

// NewExecutor creates an Executor over app, pulling proposal txs from pool.
func NewExecutor(app Application, pool *mempool.TxPool, chainID string) *Executor {
	return &Executor{app: app, pool: pool, chainID: chainID}
}

// CreateProposalBlock builds a candidate block for height from txs reaped with
// ReapMaxTxs (first-seen sender first, nonce order within a sender), chained
// off the previous block's app hash.
func (e *Executor) CreateProposalBlock(height int64, lastCommit *types.Commit, proposer types.AccountName) (*types.Block, error) {
	var rawTxs [][]byte
	if e.pool != nil {
		for _, tx := range e.pool.ReapMaxTxs(MaxTxsPerBlock) {
			raw, err := tx.Bytes()
			if err != nil {
				return nil, fmt.Errorf("abci: failed to encode tx %s: %w", tx.ID, err)
			}
			rawTxs = append(rawTxs, raw)
		}
	}

	var lastBlockHash, lastCommitHash *types.Hash
	if lastCommit != nil {
		h := lastCommit.BlockHash
		lastBlockHash = &h
		ch := types.CommitHash(lastCommit)
		lastCommitHash = &ch
	}

	block := &types.Block{
		Header: types.BlockHeader{
			ChainID:        e.chainID,
			Height:         height,
			LastBlockHash:  lastBlockHash,
			LastCommitHash: lastCommitHash,
			AppHash:        e.lastHash,
			Proposer:       proposer,
		},
		Data:       types.BlockData{Txs: rawTxs},
		LastCommit: lastCommit,
	}
	return block, nil
}

// ValidateBlock runs every tx in block through CheckTx without applying it,
// rejecting the block if any tx fails.
func (e *Executor) ValidateBlock(block *types.Block) error {
	for _, tx := range block.Data.Txs {
		resp, err := e.app.CheckTx(tx)
		if err != nil {
			return fmt.Errorf("abci: CheckTx failed during block validation: %w", err)
		}
		if resp.Code != 0 {
			return fmt.Errorf("abci: block contains a tx application rejects: %s", resp.Log)
		}
	}
	return nil
}

// ApplyBlock drives the application's begin/deliver/end/commit sequence for
// block, then removes its txs from the mempool.
func (e *Executor) ApplyBlock(block *types.Block, commit *types.Commit) error {
	lastCommitInfo := LastCommitInfo{}
	if commit != nil {
		lastCommitInfo.Round = commit.Round
	}

	if _, err := e.app.BeginBlock(block.Header.Height, lastCommitInfo, nil); err != nil {
		return fmt.Errorf("abci: begin_block failed: %w", err)
	}

	for _, tx := range block.Data.Txs {
		if _, err := e.app.DeliverTx(tx); err != nil {
			return fmt.Errorf("abci: deliver_tx failed: %w", err)
		}
	}

	if _, err := e.app.EndBlock(block.Header.Height); err != nil {
		return fmt.Errorf("abci: end_block failed: %w", err)
	}

	appHash, err := e.app.Commit()
	if err != nil {
		return fmt.Errorf("abci: commit failed: %w", err)
	}
	e.lastHash = &appHash

	if e.pool != nil {
		ids := make([]mempool.TxID, 0, len(block.Data.Txs))
		for _, raw := range block.Data.Txs {
			tx, err := mempool.DecodeTx(raw)
			if err != nil {
				continue
			}
			ids = append(ids, tx.ID)
		}
		e.pool.Update(ids)
	}

	return nil
}

// CheckTxFunc adapts Application.CheckTx into a mempool.CheckTxFunc.
func CheckTxFunc(app Application) mempool.CheckTxFunc {
	return func(tx *mempool.Tx) (*mempool.CheckTxResponse, error) {
		raw, err := tx.Bytes()
		if err != nil {
			return nil, fmt.Errorf("abci: failed to encode tx %s: %w", tx.ID, err)
		}
		resp, err := app.CheckTx(raw)
		if err != nil {
			return nil, err
		}
		return &mempool.CheckTxResponse{
			Code:      resp.Code,
			Log:       resp.Log,
			GasWanted: resp.GasWanted,
			GasUsed:   resp.GasUsed,
			Data:      resp.Data,
		}, nil
	}
}
