package engine

import (
	"fmt"

	"github.com/haderech/smite/types"
)

// RoundStep identifies where in a round's propose/prevote/precommit cycle the state
// machine currently sits.
type RoundStep uint8

const (
	RoundStepNewHeight RoundStep = iota
	RoundStepNewRound
	RoundStepPropose
	RoundStepPrevote
	RoundStepPrevoteWait
	RoundStepPrecommit
	RoundStepPrecommitWait
	RoundStepCommit
)

// StepString returns a human-readable name for step.
func StepString(step RoundStep) string {
	switch step {
	case RoundStepNewHeight:
		return "NewHeight"
	case RoundStepNewRound:
		return "NewRound"
	case RoundStepPropose:
		return "Propose"
	case RoundStepPrevote:
		return "Prevote"
	case RoundStepPrevoteWait:
		return "PrevoteWait"
	case RoundStepPrecommit:
		return "Precommit"
	case RoundStepPrecommitWait:
		return "PrecommitWait"
	case RoundStepCommit:
		return "Commit"
	default:
		return fmt.Sprintf("Unknown(%d)", step)
	}
}

// RoundState is the passive record of where a ConsensusCore sits in the
// height/round/step state machine: the current height and round, the proposal and
// block under consideration, and the locked/valid block bookkeeping that implements
// the protocol's safety rules across round changes.
type RoundState struct {
	Height int64
	Round  int32
	Step   RoundStep

	Proposal      *types.Proposal
	ProposalBlock *types.Block

	// LockedRound/LockedBlock record the block this validator precommitted in a
	// prior round of this height; -1/nil means unlocked.
	LockedRound int32
	LockedBlock *types.Block

	// ValidRound/ValidBlock record the most recent round whose prevotes reached a
	// 2/3+ majority for a block, independent of whether this validator is locked on
	// it; -1/nil means none yet.
	ValidRound int32
	ValidBlock *types.Block

	LastCommit *types.Commit
}

// NewRoundState returns a RoundState positioned at height's NewHeight step with no
// lock and no valid block.
func NewRoundState(height int64, lastCommit *types.Commit) RoundState {
	return RoundState{
		Height:      height,
		Round:       0,
		Step:        RoundStepNewHeight,
		LockedRound: -1,
		ValidRound:  -1,
		LastCommit:  lastCommit,
	}
}
