package abci

import (
	"testing"

	"github.com/haderech/smite/mempool"
	"github.com/haderech/smite/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApp struct {
	rejectPayload string
	delivered     [][]byte
	committed     bool
}

func (a *fakeApp) CheckTx(tx []byte) (*ResponseCheckTx, error) {
	decoded, err := mempool.DecodeTx(tx)
	if err != nil {
		return nil, err
	}
	if a.rejectPayload != "" && string(decoded.Payload) == a.rejectPayload {
		return &ResponseCheckTx{Code: 1, Log: "rejected by fake app"}, nil
	}
	return &ResponseCheckTx{Code: 0}, nil
}

func (a *fakeApp) BeginBlock(height int64, lastCommit LastCommitInfo, byz []types.Validator) (*ResponseBeginBlock, error) {
	return &ResponseBeginBlock{}, nil
}

func (a *fakeApp) DeliverTx(tx []byte) (*ResponseDeliverTx, error) {
	a.delivered = append(a.delivered, tx)
	return &ResponseDeliverTx{Code: 0}, nil
}

func (a *fakeApp) EndBlock(height int64) (*ResponseEndBlock, error) {
	return &ResponseEndBlock{}, nil
}

func (a *fakeApp) Commit() (types.Hash, error) {
	a.committed = true
	return types.HashBytes([]byte("app-state")), nil
}

func TestExecutorCreateProposalBlockPullsFromPool(t *testing.T) {
	app := &fakeApp{}
	pool := mempool.NewTxPool(mempool.DefaultConfig(), CheckTxFunc(app))

	for i := 0; i < 3; i++ {
		tx := mempool.NewTx(types.NewAccountName("alice"), uint64(i), 0, []byte("payload"))
		_, err := pool.CheckTx(tx, true)
		require.NoError(t, err)
	}

	executor := NewExecutor(app, pool, "test-chain")
	block, err := executor.CreateProposalBlock(1, nil, types.NewAccountName("alice"))
	require.NoError(t, err)
	assert.Len(t, block.Data.Txs, 3)
	assert.Equal(t, "test-chain", block.Header.ChainID)
	assert.Equal(t, int64(1), block.Header.Height)
}

func TestExecutorApplyBlockDeliversAndCommitsAndUpdatesPool(t *testing.T) {
	app := &fakeApp{}
	pool := mempool.NewTxPool(mempool.DefaultConfig(), CheckTxFunc(app))

	tx := mempool.NewTx(types.NewAccountName("alice"), 0, 0, []byte("payload"))
	_, err := pool.CheckTx(tx, true)
	require.NoError(t, err)
	require.Equal(t, 1, pool.Size())

	executor := NewExecutor(app, pool, "test-chain")
	block, err := executor.CreateProposalBlock(1, nil, types.NewAccountName("alice"))
	require.NoError(t, err)

	err = executor.ApplyBlock(block, nil)
	require.NoError(t, err)

	assert.True(t, app.committed)
	assert.Len(t, app.delivered, 1)
	assert.Equal(t, 0, pool.Size(), "the committed tx should be removed from the pool")
}

func TestExecutorValidateBlockRejectsAppRejectedTx(t *testing.T) {
	app := &fakeApp{rejectPayload: "bad"}
	pool := mempool.NewTxPool(mempool.DefaultConfig(), CheckTxFunc(app))
	executor := NewExecutor(app, pool, "test-chain")

	tx := mempool.NewTx(types.NewAccountName("alice"), 0, 0, []byte("bad"))
	raw, err := tx.Bytes()
	require.NoError(t, err)

	block := &types.Block{Data: types.BlockData{Txs: [][]byte{raw}}}
	err = executor.ValidateBlock(block)
	assert.Error(t, err)
}
