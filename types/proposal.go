package types

// Proposal is the block proposal broadcast by the round's proposer, optionally
// carrying proof-of-lock votes justifying a re-proposed block (spec §4.5.1, §6).
type Proposal struct {
	Height    int64       `msgpack:"height"`
	Round     int32       `msgpack:"round"`
	Timestamp int64       `msgpack:"timestamp"`
	BlockID   BlockID     `msgpack:"block_id"`
	Block     Block       `msgpack:"block"`
	PolRound  int32       `msgpack:"pol_round"`
	PolVotes  []Vote      `msgpack:"pol_votes,omitempty"`
	Proposer  AccountName `msgpack:"proposer"`
	Signature Signature   `msgpack:"signature"`
}

// ProposalSignBytes returns the canonical bytes a proposer signs for a proposal.
func ProposalSignBytes(chainID string, p *Proposal) []byte {
	canonical := &Proposal{
		Height:    p.Height,
		Round:     p.Round,
		Timestamp: p.Timestamp,
		BlockID:   p.BlockID,
		Block:     p.Block,
		PolRound:  p.PolRound,
		PolVotes:  p.PolVotes,
		Proposer:  p.Proposer,
	}

	data, _ := Marshal(canonical)
	return append([]byte(chainID), data...)
}

// NewProposal constructs a Proposal from its fields.
func NewProposal(height int64, round int32, timestamp int64, block Block, blockID BlockID, polRound int32, polVotes []Vote, proposer AccountName) *Proposal {
	return &Proposal{
		Height:    height,
		Round:     round,
		Timestamp: timestamp,
		BlockID:   blockID,
		Block:     block,
		PolRound:  polRound,
		PolVotes:  polVotes,
		Proposer:  proposer,
	}
}

// HasPOL reports whether p carries a proof-of-lock.
func HasPOL(p *Proposal) bool {
	return p.PolRound >= 0 && len(p.PolVotes) > 0
}

// ProposalBlockHash returns the hash of the proposed block.
func ProposalBlockHash(p *Proposal) Hash {
	return BlockHash(&p.Block)
}
