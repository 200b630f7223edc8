package types

import (
	"fmt"
)

// BlockHeader carries the metadata committed to by a block's hash.
type BlockHeader struct {
	ChainID        string `msgpack:"chain_id"`
	Height         int64  `msgpack:"height"`
	Time           int64  `msgpack:"time"`
	LastBlockHash  *Hash  `msgpack:"last_block_hash"`
	LastCommitHash *Hash  `msgpack:"last_commit_hash"`
	ValidatorsHash *Hash  `msgpack:"validators_hash"`
	AppHash        *Hash  `msgpack:"app_hash"`
	Proposer       AccountName `msgpack:"proposer"`
}

// BlockData carries the block's transactions, in the order they will be delivered
// to the application on commit.
type BlockData struct {
	Txs [][]byte `msgpack:"txs"`
}

// Block is a header, its transaction data, and the commit certificate for the
// previous height.
type Block struct {
	Header     BlockHeader `msgpack:"header"`
	Data       BlockData   `msgpack:"data"`
	LastCommit *Commit     `msgpack:"last_commit"`
}

// BlockHash computes the hash of a block (its header only — data integrity is
// carried by the PartSet's Merkle root, and by convention header.AppHash binds the
// prior block's execution results).
func BlockHash(b *Block) Hash {
	if b == nil {
		return HashEmpty()
	}
	data, err := Marshal(&b.Header)
	if err != nil {
		panic(fmt.Sprintf("CONSENSUS CRITICAL: failed to marshal block header for hash: %v", err))
	}
	return HashBytes(data)
}

// BlockHeaderHash computes the hash of a block header.
func BlockHeaderHash(h *BlockHeader) Hash {
	if h == nil {
		return HashEmpty()
	}
	data, err := Marshal(h)
	if err != nil {
		panic(fmt.Sprintf("CONSENSUS CRITICAL: failed to marshal block header: %v", err))
	}
	return HashBytes(data)
}

// NewBlock assembles a Block from its parts.
func NewBlock(header *BlockHeader, data *BlockData, lastCommit *Commit) *Block {
	block := &Block{Header: *header, LastCommit: lastCommit}
	if data != nil {
		block.Data = *data
	}
	return block
}

// NewBlockHeader constructs a BlockHeader from its fields.
func NewBlockHeader(
	chainID string,
	height int64,
	timestamp int64,
	lastBlockHash *Hash,
	lastCommitHash *Hash,
	validatorsHash *Hash,
	appHash *Hash,
	proposer AccountName,
) *BlockHeader {
	return &BlockHeader{
		ChainID:        chainID,
		Height:         height,
		Time:           timestamp,
		LastBlockHash:  lastBlockHash,
		LastCommitHash: lastCommitHash,
		ValidatorsHash: validatorsHash,
		AppHash:        appHash,
		Proposer:       proposer,
	}
}

// CommitHash computes the hash of a commit.
func CommitHash(c *Commit) Hash {
	if c == nil {
		return HashEmpty()
	}
	data, err := Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("CONSENSUS CRITICAL: failed to marshal commit for hash: %v", err))
	}
	return HashBytes(data)
}

// CopyHash returns a deep copy of h.
func CopyHash(h *Hash) *Hash {
	if h == nil {
		return nil
	}
	hashCopy := &Hash{}
	if len(h.Data) > 0 {
		hashCopy.Data = make([]byte, len(h.Data))
		copy(hashCopy.Data, h.Data)
	}
	return hashCopy
}

// CopyCommitSig returns a deep copy of sig.
func CopyCommitSig(sig *CommitSig) CommitSig {
	if sig == nil {
		return CommitSig{}
	}
	sigCopy := CommitSig{
		ValidatorIndex: sig.ValidatorIndex,
		Timestamp:      sig.Timestamp,
	}
	if len(sig.Signature.Data) > 0 {
		sigCopy.Signature.Data = make([]byte, len(sig.Signature.Data))
		copy(sigCopy.Signature.Data, sig.Signature.Data)
	}
	sigCopy.BlockHash = CopyHash(sig.BlockHash)
	return sigCopy
}

// CopyCommit returns a deep copy of c, including its Signatures slice, so the
// original cannot be mutated through the copy.
func CopyCommit(c *Commit) *Commit {
	if c == nil {
		return nil
	}

	commitCopy := &Commit{
		Height: c.Height,
		Round:  c.Round,
	}
	if len(c.BlockHash.Data) > 0 {
		commitCopy.BlockHash.Data = make([]byte, len(c.BlockHash.Data))
		copy(commitCopy.BlockHash.Data, c.BlockHash.Data)
	}
	if len(c.Signatures) > 0 {
		commitCopy.Signatures = make([]CommitSig, len(c.Signatures))
		for i, sig := range c.Signatures {
			commitCopy.Signatures[i] = CopyCommitSig(&sig)
		}
	}
	return commitCopy
}

// CopyBlockHeader returns a deep copy of h.
func CopyBlockHeader(h *BlockHeader) BlockHeader {
	headerCopy := BlockHeader{
		ChainID: h.ChainID,
		Height:  h.Height,
		Time:    h.Time,
	}
	headerCopy.LastBlockHash = CopyHash(h.LastBlockHash)
	headerCopy.LastCommitHash = CopyHash(h.LastCommitHash)
	headerCopy.ValidatorsHash = CopyHash(h.ValidatorsHash)
	headerCopy.AppHash = CopyHash(h.AppHash)
	headerCopy.Proposer = CopyAccountName(h.Proposer)
	return headerCopy
}

// CopyBlockData returns a deep copy of d.
func CopyBlockData(d *BlockData) BlockData {
	dataCopy := BlockData{}
	if len(d.Txs) > 0 {
		dataCopy.Txs = make([][]byte, len(d.Txs))
		for i, tx := range d.Txs {
			dataCopy.Txs[i] = append([]byte(nil), tx...)
		}
	}
	return dataCopy
}

// CopyBlock returns a deep copy of b, so a pending proposal can be safely shared
// between the mempool and the consensus core without aliasing mutable state.
func CopyBlock(b *Block) *Block {
	if b == nil {
		return nil
	}

	blockCopy := &Block{
		Header: CopyBlockHeader(&b.Header),
		Data:   CopyBlockData(&b.Data),
	}
	blockCopy.LastCommit = CopyCommit(b.LastCommit)
	return blockCopy
}
