package types

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

// VoteType distinguishes a prevote from a precommit.
type VoteType uint8

const (
	VoteTypeUnknown VoteType = iota
	VoteTypePrevote
	VoteTypePrecommit
)

// BlockID pairs a block hash with the header of the part set carrying it. The zero
// value (empty hash, zero-total header) denotes "nil" (spec GLOSSARY: BlockId).
type BlockID struct {
	Hash           Hash               `msgpack:"hash"`
	PartSetHeader  BlockPartSetHeader `msgpack:"part_set_header"`
}

// IsZero reports whether id denotes nil.
func (id BlockID) IsZero() bool {
	return IsHashEmpty(&id.Hash) && id.PartSetHeader.Total == 0
}

// Vote is a single signed prevote or precommit (spec §3).
type Vote struct {
	Type           VoteType    `msgpack:"type"`
	Height         int64       `msgpack:"height"`
	Round          int32       `msgpack:"round"`
	BlockHash      *Hash       `msgpack:"block_hash"`
	Timestamp      int64       `msgpack:"timestamp"`
	Validator      AccountName `msgpack:"validator"`
	ValidatorIndex uint16      `msgpack:"validator_index"`
	Signature      Signature   `msgpack:"signature"`
	Extension      []byte      `msgpack:"extension,omitempty"`
}

// CommitSig is one validator's contribution to a Commit.
type CommitSig struct {
	ValidatorIndex uint16    `msgpack:"validator_index"`
	Timestamp      int64     `msgpack:"timestamp"`
	Signature      Signature `msgpack:"signature"`
	BlockHash      *Hash     `msgpack:"block_hash"`
}

// Commit is the aggregated set of precommit signatures finalizing a block at a
// given height and round.
type Commit struct {
	Height     int64       `msgpack:"height"`
	Round      int32       `msgpack:"round"`
	BlockHash  Hash        `msgpack:"block_hash"`
	Signatures []CommitSig `msgpack:"signatures"`
}

// Errors
var (
	ErrInvalidVote        = errors.New("invalid vote")
	ErrVoteConflict       = errors.New("conflicting vote")
	ErrDuplicateVote      = errors.New("duplicate vote")
	ErrUnexpectedVoteType = errors.New("unexpected vote type")
)

// VoteSignBytes returns the canonical bytes a validator signs for a vote: the chain
// ID followed by the encoding of every field except the signature and the
// extension.
func VoteSignBytes(chainID string, v *Vote) []byte {
	canonical := &Vote{
		Type:           v.Type,
		Height:         v.Height,
		Round:          v.Round,
		BlockHash:      v.BlockHash,
		Timestamp:      v.Timestamp,
		Validator:      v.Validator,
		ValidatorIndex: v.ValidatorIndex,
	}

	data, err := Marshal(canonical)
	if err != nil {
		panic(fmt.Sprintf("CONSENSUS CRITICAL: failed to marshal vote for signing: %v", err))
	}
	return append([]byte(chainID), data...)
}

// IsNilVote reports whether v is a vote for no block.
func IsNilVote(v *Vote) bool {
	return v.BlockHash == nil || IsHashEmpty(v.BlockHash)
}

// VerifyVoteSignature verifies the signature on a vote against pubKey.
func VerifyVoteSignature(chainID string, vote *Vote, pubKey PublicKey) error {
	if vote == nil {
		return ErrInvalidVote
	}
	if len(vote.Signature.Data) == 0 {
		return errors.New("vote has no signature")
	}
	if len(pubKey.Data) != ed25519.PublicKeySize {
		return errors.New("invalid public key size")
	}

	signBytes := VoteSignBytes(chainID, vote)
	if !ed25519.Verify(pubKey.Data, signBytes, vote.Signature.Data) {
		return errors.New("invalid vote signature")
	}
	return nil
}

// Commit verification errors.
var (
	ErrInvalidCommit           = errors.New("invalid commit")
	ErrCommitHeightMismatch    = errors.New("commit height mismatch")
	ErrCommitBlockHashMismatch = errors.New("commit block hash mismatch")
	ErrInsufficientVotePower   = errors.New("insufficient voting power in commit")
	ErrInvalidCommitSignature  = errors.New("invalid signature in commit")
	ErrDuplicateCommitSig      = errors.New("duplicate signature in commit")
	ErrUnknownCommitValidator  = errors.New("unknown validator in commit")
)

// VerifyCommit verifies every signature in commit against valSet and checks that
// the signing power for blockHash reaches a 2/3+ majority.
func VerifyCommit(chainID string, valSet *ValidatorSet, blockHash Hash, height int64, commit *Commit) error {
	if commit == nil {
		return ErrInvalidCommit
	}
	if commit.Height != height {
		return fmt.Errorf("%w: expected %d, got %d", ErrCommitHeightMismatch, height, commit.Height)
	}
	if !HashEqual(commit.BlockHash, blockHash) {
		return ErrCommitBlockHashMismatch
	}
	if len(commit.Signatures) == 0 {
		return fmt.Errorf("%w: no signatures", ErrInvalidCommit)
	}

	var votingPower int64
	seenValidators := make(map[uint16]bool)

	for _, sig := range commit.Signatures {
		if sig.BlockHash == nil || IsHashEmpty(sig.BlockHash) {
			continue
		}
		if !HashEqual(*sig.BlockHash, blockHash) {
			continue
		}
		if seenValidators[sig.ValidatorIndex] {
			return fmt.Errorf("%w: validator %d appears twice", ErrDuplicateCommitSig, sig.ValidatorIndex)
		}
		seenValidators[sig.ValidatorIndex] = true

		val := valSet.GetByIndex(sig.ValidatorIndex)
		if val == nil {
			return fmt.Errorf("%w: index %d", ErrUnknownCommitValidator, sig.ValidatorIndex)
		}

		vote := &Vote{
			Type:           VoteTypePrecommit,
			Height:         commit.Height,
			Round:          commit.Round,
			BlockHash:      sig.BlockHash,
			Timestamp:      sig.Timestamp,
			Validator:      val.Name,
			ValidatorIndex: sig.ValidatorIndex,
			Signature:      sig.Signature,
		}

		if err := VerifyVoteSignature(chainID, vote, val.PublicKey); err != nil {
			return fmt.Errorf("%w: validator %d: %v", ErrInvalidCommitSignature, sig.ValidatorIndex, err)
		}

		votingPower += val.VotingPower
	}

	required := valSet.TwoThirdsMajority()
	if votingPower < required {
		return fmt.Errorf("%w: got %d, need %d", ErrInsufficientVotePower, votingPower, required)
	}

	return nil
}

// VerifyCommitLight checks only aggregate voting power, skipping per-signature
// cryptographic verification (for use once signatures were already verified once).
func VerifyCommitLight(valSet *ValidatorSet, blockHash Hash, height int64, commit *Commit) error {
	if commit == nil {
		return ErrInvalidCommit
	}
	if commit.Height != height {
		return fmt.Errorf("%w: expected %d, got %d", ErrCommitHeightMismatch, height, commit.Height)
	}
	if !HashEqual(commit.BlockHash, blockHash) {
		return ErrCommitBlockHashMismatch
	}

	var votingPower int64
	seenValidators := make(map[uint16]bool)

	for _, sig := range commit.Signatures {
		if sig.BlockHash == nil || IsHashEmpty(sig.BlockHash) {
			continue
		}
		if !HashEqual(*sig.BlockHash, blockHash) {
			continue
		}
		if seenValidators[sig.ValidatorIndex] {
			return fmt.Errorf("%w: validator %d", ErrDuplicateCommitSig, sig.ValidatorIndex)
		}
		seenValidators[sig.ValidatorIndex] = true

		val := valSet.GetByIndex(sig.ValidatorIndex)
		if val == nil {
			return fmt.Errorf("%w: index %d", ErrUnknownCommitValidator, sig.ValidatorIndex)
		}

		votingPower += val.VotingPower
	}

	required := valSet.TwoThirdsMajority()
	if votingPower < required {
		return fmt.Errorf("%w: got %d, need %d", ErrInsufficientVotePower, votingPower, required)
	}

	return nil
}
