package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/haderech/smite/types"
)

// messageHeaderSize is the length, in bytes, of the little-endian length prefix
// that precedes every encoded consensus message on the wire.
const messageHeaderSize = 4

// Message type tags, prefixed to the encoded payload so a peer can dispatch before
// decoding.
const (
	messageTypeProposal byte = iota + 1
	messageTypeBlockPart
	messageTypeVote
)

// ProposalMessage announces a round's proposed block and the header of the
// PartSet carrying it, without the block bytes themselves (those follow as
// BlockPartMessages).
type ProposalMessage struct {
	Height    int64             `msgpack:"height"`
	Round     int32             `msgpack:"round"`
	PolRound  int32             `msgpack:"pol_round"`
	PolVotes  []types.Vote      `msgpack:"pol_votes,omitempty"`
	BlockID   types.BlockID     `msgpack:"block_id"`
	Timestamp int64             `msgpack:"timestamp"`
	Proposer  types.AccountName `msgpack:"proposer"`
	Signature types.Signature   `msgpack:"signature"`
}

// BlockPartMessage carries a single chunk of a proposed block.
type BlockPartMessage struct {
	Height int64        `msgpack:"height"`
	Round  int32        `msgpack:"round"`
	Index  uint16       `msgpack:"index"`
	Bytes  []byte       `msgpack:"bytes"`
	Proof  []types.Hash `msgpack:"proof"`
}

// VoteMessage carries a single signed prevote or precommit.
type VoteMessage struct {
	Type            types.VoteType    `msgpack:"type"`
	Height          int64             `msgpack:"height"`
	Round           int32             `msgpack:"round"`
	BlockID         types.BlockID     `msgpack:"block_id"`
	Timestamp       int64             `msgpack:"timestamp"`
	ValidatorName   types.AccountName `msgpack:"validator_name"`
	ValidatorIndex  uint16            `msgpack:"validator_index"`
	Signature       types.Signature   `msgpack:"signature"`
	Extension       []byte            `msgpack:"extension,omitempty"`
}

// EncodeMessage frames v (one of *ProposalMessage, *BlockPartMessage, *VoteMessage)
// as a type tag + msgpack payload, preceded by a 4-byte little-endian length
// covering the tag and payload together.
func EncodeMessage(v interface{}) ([]byte, error) {
	var tag byte
	switch v.(type) {
	case *ProposalMessage:
		tag = messageTypeProposal
	case *BlockPartMessage:
		tag = messageTypeBlockPart
	case *VoteMessage:
		tag = messageTypeVote
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, v)
	}

	payload, err := types.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	body := make([]byte, 1+len(payload))
	body[0] = tag
	copy(body[1:], payload)

	framed := make([]byte, messageHeaderSize+len(body))
	binary.LittleEndian.PutUint32(framed, uint32(len(body)))
	copy(framed[messageHeaderSize:], body)

	return framed, nil
}

// DecodeMessage strips the length prefix and type tag from framed and returns the
// decoded message plus the number of bytes consumed, so callers reading from a
// stream can advance past exactly one message.
func DecodeMessage(framed []byte) (interface{}, int, error) {
	if len(framed) < messageHeaderSize {
		return nil, 0, fmt.Errorf("%w: truncated length prefix", ErrInvalidMessage)
	}

	bodyLen := int(binary.LittleEndian.Uint32(framed))
	if bodyLen < 1 {
		return nil, 0, fmt.Errorf("%w: empty message body", ErrInvalidMessage)
	}

	total := messageHeaderSize + bodyLen
	if len(framed) < total {
		return nil, 0, fmt.Errorf("%w: truncated message body", ErrInvalidMessage)
	}

	tag := framed[messageHeaderSize]
	payload := framed[messageHeaderSize+1 : total]

	var msg interface{}
	switch tag {
	case messageTypeProposal:
		m := &ProposalMessage{}
		if err := types.Unmarshal(payload, m); err != nil {
			return nil, 0, fmt.Errorf("decode proposal message: %w", err)
		}
		msg = m
	case messageTypeBlockPart:
		m := &BlockPartMessage{}
		if err := types.Unmarshal(payload, m); err != nil {
			return nil, 0, fmt.Errorf("decode block part message: %w", err)
		}
		msg = m
	case messageTypeVote:
		m := &VoteMessage{}
		if err := types.Unmarshal(payload, m); err != nil {
			return nil, 0, fmt.Errorf("decode vote message: %w", err)
		}
		msg = m
	default:
		return nil, 0, fmt.Errorf("%w: tag %d", ErrUnknownMessageType, tag)
	}

	return msg, total, nil
}

// proposalMessageFromProposal projects a full Proposal down to the wire message
// that omits the embedded block (its bytes travel separately as BlockPartMessages).
func proposalMessageFromProposal(p *types.Proposal) *ProposalMessage {
	return &ProposalMessage{
		Height:    p.Height,
		Round:     p.Round,
		PolRound:  p.PolRound,
		PolVotes:  p.PolVotes,
		BlockID:   p.BlockID,
		Timestamp: p.Timestamp,
		Proposer:  p.Proposer,
		Signature: p.Signature,
	}
}

// proposalFromMessage reassembles a full Proposal from its wire header plus the
// block recovered from a completed PartSet.
func proposalFromMessage(m *ProposalMessage, block types.Block) *types.Proposal {
	return &types.Proposal{
		Height:    m.Height,
		Round:     m.Round,
		Timestamp: m.Timestamp,
		BlockID:   m.BlockID,
		Block:     block,
		PolRound:  m.PolRound,
		PolVotes:  m.PolVotes,
		Proposer:  m.Proposer,
		Signature: m.Signature,
	}
}

// voteFromMessage reconstructs a Vote from its wire form.
func voteFromMessage(m *VoteMessage) *types.Vote {
	var blockHash *types.Hash
	if !m.BlockID.IsZero() {
		h := m.BlockID.Hash
		blockHash = &h
	}
	return &types.Vote{
		Type:           m.Type,
		Height:         m.Height,
		Round:          m.Round,
		BlockHash:      blockHash,
		Timestamp:      m.Timestamp,
		Validator:      m.ValidatorName,
		ValidatorIndex: m.ValidatorIndex,
		Signature:      m.Signature,
		Extension:      m.Extension,
	}
}

// voteMessageFromVote projects a Vote to its wire message form.
func voteMessageFromVote(v *types.Vote) *VoteMessage {
	blockID := types.BlockID{}
	if v.BlockHash != nil {
		blockID.Hash = *v.BlockHash
	}
	return &VoteMessage{
		Type:           v.Type,
		Height:         v.Height,
		Round:          v.Round,
		BlockID:        blockID,
		Timestamp:      v.Timestamp,
		ValidatorName:  v.Validator,
		ValidatorIndex: v.ValidatorIndex,
		Signature:      v.Signature,
		Extension:      v.Extension,
	}
}

// blockPartMessageFromPart projects a BlockPart to its wire message form.
func blockPartMessageFromPart(height int64, round int32, part *types.BlockPart) *BlockPartMessage {
	return &BlockPartMessage{
		Height: height,
		Round:  round,
		Index:  part.Index,
		Bytes:  part.Bytes,
		Proof:  part.ProofPath,
	}
}
