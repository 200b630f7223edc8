package privval

import (
	"errors"
	"fmt"

	"github.com/haderech/smite/types"
)

// Errors
var (
	ErrDoubleSign       = errors.New("double sign attempt")
	ErrSignerNotFound   = errors.New("signer not found")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrHeightRegression = errors.New("height regression")
	ErrRoundRegression  = errors.New("round regression")
	ErrStepRegression   = errors.New("step regression")
)

// PrivValidator interface for signing consensus messages
type PrivValidator interface {
	// GetPubKey returns the public key
	GetPubKey() types.PublicKey

	// SignVote signs a vote, checking for double-sign
	SignVote(chainID string, vote *types.Vote) error

	// SignProposal signs a proposal
	SignProposal(chainID string, proposal *types.Proposal) error

	// GetAddress returns the validator address (derived from public key)
	GetAddress() []byte
}

// LastSignState tracks the last signed vote for double-sign prevention.
type LastSignState struct {
	Height    int64
	Round     int32
	Step      int8 // 0 = proposal, 1 = prevote, 2 = precommit
	Signature types.Signature
	BlockHash *types.Hash

	// SignBytesHash lets isSameSignBytes compare the entire signed payload rather than
	// just BlockHash: VoteSignBytes also covers Timestamp, Validator, and
	// ValidatorIndex, so two votes with the same block but different timestamps are
	// not the same vote and must not share a cached signature.
	SignBytesHash *types.Hash
	Timestamp     int64
}

// Step values for double-sign prevention. A proposal at (H,R) is signed before any
// vote at (H,R), so StepProposal orders first.
const (
	StepProposal  int8 = 0
	StepPrevote   int8 = 1
	StepPrecommit int8 = 2
)

// CheckHRS checks if a new vote would be a double sign
// Returns nil if signing is allowed, an error otherwise
func (lss *LastSignState) CheckHRS(height int64, round int32, step int8) error {
	if lss.Height > height {
		return ErrHeightRegression
	}

	if lss.Height == height {
		if lss.Round > round {
			return ErrRoundRegression
		}

		if lss.Round == round {
			// Same height/round - check step. A prevote after a precommit at the same
			// (H,R) is a step regression even though it targets an earlier-numbered
			// consensus phase, since the precommit already committed this validator
			// to its choice for the round.
			if lss.Step > step {
				return ErrStepRegression
			}
			if lss.Step == step {
				// Same H/R/S - this would be a double sign unless it's the same vote
				return ErrDoubleSign
			}
		}
	}

	return nil
}

// VoteStep returns the step value for a vote type. Panics on an invalid vote type:
// returning StepProposal for an unrecognized type could make isSameSignBytes incorrectly
// match a cached proposal signature.
func VoteStep(voteType types.VoteType) int8 {
	switch voteType {
	case types.VoteTypePrevote:
		return StepPrevote
	case types.VoteTypePrecommit:
		return StepPrecommit
	default:
		panic(fmt.Sprintf("privval: invalid vote type: %v", voteType))
	}
}
