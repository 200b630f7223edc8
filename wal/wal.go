package wal

import (
	"errors"
	"io"

	"github.com/haderech/smite/types"
)

// Errors
var (
	ErrWALClosed     = errors.New("WAL is closed")
	ErrWALCorrupted  = errors.New("WAL is corrupted")
	ErrWALNotFound   = errors.New("WAL file not found")
	ErrInvalidHeight = errors.New("invalid height in WAL")
)

// MessageType identifies the type of WAL message.
type MessageType uint8

const (
	MsgTypeUnknown MessageType = iota
	MsgTypeProposal
	MsgTypeVote
	MsgTypeCommit
	MsgTypeEndHeight
	MsgTypeState
	MsgTypeTimeout
)

// Message is a single entry in the write-ahead log: enough to replay one
// consensus event (a received proposal, a cast/received vote, a timeout fired,
// a block committed) without re-deriving it from the network.
type Message struct {
	Type   MessageType
	Height int64
	Round  int32
	Data   []byte
}

// Marshal serializes the message for disk storage.
func (m *Message) Marshal() ([]byte, error) {
	return types.Marshal(m)
}

// Unmarshal deserializes the message.
func (m *Message) Unmarshal(data []byte) error {
	return types.Unmarshal(data, m)
}

// WAL interface for write-ahead logging
type WAL interface {
	// Write writes a message to the WAL
	Write(msg *Message) error

	// WriteSync writes a message and ensures it's synced to disk
	WriteSync(msg *Message) error

	// FlushAndSync flushes and syncs all pending writes
	FlushAndSync() error

	// SearchForEndHeight searches for the end of a height in the WAL
	// Returns a Reader positioned after the EndHeight message, or false if not found
	SearchForEndHeight(height int64) (Reader, bool, error)

	// Start starts the WAL
	Start() error

	// Stop stops the WAL
	Stop() error

	// Group returns the current WAL group (for rotation)
	Group() *Group
}

// Reader interface for reading from WAL
type Reader interface {
	// Read reads the next message from the WAL
	Read() (*Message, error)

	// Close closes the reader
	Close() error
}

// Group represents a group of WAL files (for rotation)
type Group struct {
	Dir      string
	Prefix   string
	MaxSize  int64
	MinIndex int
	MaxIndex int
}

// NewProposalMessage creates a WAL message for a proposal.
func NewProposalMessage(height int64, round int32, proposal *types.Proposal) (*Message, error) {
	data, err := types.Marshal(proposal)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:   MsgTypeProposal,
		Height: height,
		Round:  round,
		Data:   data,
	}, nil
}

// NewVoteMessage creates a WAL message for a vote.
func NewVoteMessage(height int64, round int32, vote *types.Vote) (*Message, error) {
	data, err := types.Marshal(vote)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:   MsgTypeVote,
		Height: height,
		Round:  round,
		Data:   data,
	}, nil
}

// NewCommitMessage creates a WAL message for a commit.
func NewCommitMessage(height int64, commit *types.Commit) (*Message, error) {
	data, err := types.Marshal(commit)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:   MsgTypeCommit,
		Height: height,
		Round:  commit.Round,
		Data:   data,
	}, nil
}

// NewEndHeightMessage creates a WAL message marking end of height.
func NewEndHeightMessage(height int64) *Message {
	return &Message{
		Type:   MsgTypeEndHeight,
		Height: height,
	}
}

// RoundStateSnapshot is the subset of consensus state persisted to the WAL so a
// crash-recovered process can resume a round without replaying every message.
type RoundStateSnapshot struct {
	Height      int64
	Round       int32
	Step        uint8
	LockedRound int32
	LockedHash  *types.Hash
	ValidRound  int32
	ValidHash   *types.Hash
}

// NewStateMessage creates a WAL message for a consensus state snapshot.
func NewStateMessage(state *RoundStateSnapshot) (*Message, error) {
	data, err := types.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:   MsgTypeState,
		Height: state.Height,
		Round:  state.Round,
		Data:   data,
	}, nil
}

// TimeoutSnapshot records a fired timeout for replay purposes.
type TimeoutSnapshot struct {
	Height int64
	Round  int32
	Step   uint8
}

// NewTimeoutMessage creates a WAL message for a timeout.
func NewTimeoutMessage(height int64, round int32, step uint8) (*Message, error) {
	timeout := &TimeoutSnapshot{
		Height: height,
		Round:  round,
		Step:   step,
	}
	data, err := types.Marshal(timeout)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:   MsgTypeTimeout,
		Height: height,
		Round:  round,
		Data:   data,
	}, nil
}

// DecodeProposal decodes a proposal from WAL message data.
func DecodeProposal(data []byte) (*types.Proposal, error) {
	proposal := &types.Proposal{}
	if err := types.Unmarshal(data, proposal); err != nil {
		return nil, err
	}
	return proposal, nil
}

// DecodeVote decodes a vote from WAL message data.
func DecodeVote(data []byte) (*types.Vote, error) {
	vote := &types.Vote{}
	if err := types.Unmarshal(data, vote); err != nil {
		return nil, err
	}
	return vote, nil
}

// DecodeCommit decodes a commit from WAL message data.
func DecodeCommit(data []byte) (*types.Commit, error) {
	commit := &types.Commit{}
	if err := types.Unmarshal(data, commit); err != nil {
		return nil, err
	}
	return commit, nil
}

// DecodeState decodes a consensus state snapshot from WAL message data.
func DecodeState(data []byte) (*RoundStateSnapshot, error) {
	state := &RoundStateSnapshot{}
	if err := types.Unmarshal(data, state); err != nil {
		return nil, err
	}
	return state, nil
}

// DecodeTimeout decodes a timeout from WAL message data.
func DecodeTimeout(data []byte) (*TimeoutSnapshot, error) {
	timeout := &TimeoutSnapshot{}
	if err := types.Unmarshal(data, timeout); err != nil {
		return nil, err
	}
	return timeout, nil
}

// NopWAL is a no-op WAL implementation for testing
type NopWAL struct{}

func (w *NopWAL) Write(msg *Message) error                              { return nil }
func (w *NopWAL) WriteSync(msg *Message) error                          { return nil }
func (w *NopWAL) FlushAndSync() error                                   { return nil }
func (w *NopWAL) SearchForEndHeight(height int64) (Reader, bool, error) { return nil, false, nil }
func (w *NopWAL) Start() error                                          { return nil }
func (w *NopWAL) Stop() error                                           { return nil }
func (w *NopWAL) Group() *Group                                         { return nil }

// Ensure NopWAL implements WAL
var _ WAL = (*NopWAL)(nil)

// NopReader is a no-op reader
type NopReader struct{}

func (r *NopReader) Read() (*Message, error) { return nil, io.EOF }
func (r *NopReader) Close() error            { return nil }

var _ Reader = (*NopReader)(nil)
