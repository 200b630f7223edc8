package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"github.com/haderech/smite/privval"
	"github.com/haderech/smite/types"
	"github.com/haderech/smite/wal"
)

// BlockExecutor builds proposal blocks, validates blocks proposed by others, and
// applies a finalized block once its height commits.
type BlockExecutor interface {
	CreateProposalBlock(height int64, lastCommit *types.Commit, proposer types.AccountName) (*types.Block, error)
	ValidateBlock(block *types.Block) error
	ApplyBlock(block *types.Block, commit *types.Commit) error
}

// WAL is an alias for the wal package's WAL interface.
type WAL = wal.WAL

// ConsensusState drives one validator's height/round/step state machine (spec
// §4/§5, component C5). Every enterX/handleX method assumes the caller already
// holds mu; only the receiveRoutine entry points (handleProposal, handleVote,
// handleTimeout) and Start acquire it.
type ConsensusState struct {
	service.BaseService

	mu sync.RWMutex

	config *Config

	validatorSet *types.ValidatorSet
	privVal      privval.PrivValidator

	wal           WAL
	blockExecutor BlockExecutor

	RoundState

	votes *HeightVoteSet

	timeoutTicker *TimeoutTicker

	// OnProposal/OnVote are invoked with every outbound message this validator
	// produces. Both are nil-safe no-ops until a transport wires them up.
	OnProposal func(*types.Proposal)
	OnVote     func(*types.Vote)

	proposalCh chan *types.Proposal
	voteCh     chan *types.Vote

	wg sync.WaitGroup
}

// NewConsensusState creates a ConsensusState that is not yet running; call Start
// to begin processing at a height.
func NewConsensusState(
	config *Config,
	valSet *types.ValidatorSet,
	privVal privval.PrivValidator,
	w WAL,
	executor BlockExecutor,
) *ConsensusState {
	cs := &ConsensusState{
		config:        config,
		validatorSet:  valSet,
		privVal:       privVal,
		wal:           w,
		blockExecutor: executor,
		timeoutTicker: NewTimeoutTicker(config.Timeouts),
		proposalCh:    make(chan *types.Proposal, 10),
		voteCh:        make(chan *types.Vote, 1000),
		RoundState:    RoundState{LockedRound: -1, ValidRound: -1},
	}
	cs.BaseService = *service.NewBaseService(log.NewNopLogger(), "CONSENSUS", cs)
	return cs
}

// SetLogger attaches logger to the state machine and its timeout ticker.
func (cs *ConsensusState) SetLogger(logger log.Logger) {
	cs.BaseService.SetLogger(logger)
	cs.timeoutTicker.SetLogger(logger)
}

// SetStartHeight seeds the round state and vote tracker for height, seeded
// with lastCommit from the previous height (nil at genesis). Call this
// before Start.
func (cs *ConsensusState) SetStartHeight(height int64, lastCommit *types.Commit) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.RoundState = NewRoundState(height, lastCommit)
	cs.votes = NewHeightVoteSet(cs.config.ChainID, height, cs.validatorSet)
}

// OnStart implements service.Service. It starts the timeout ticker and the
// receive routine, then enters round 0 of whatever height SetStartHeight
// configured.
func (cs *ConsensusState) OnStart() error {
	cs.timeoutTicker.Start()
	cs.wg.Add(1)
	go cs.receiveRoutine()

	cs.mu.Lock()
	cs.enterNewRound(cs.Height, cs.Round)
	cs.mu.Unlock()

	return nil
}

// OnStop implements service.Service.
func (cs *ConsensusState) OnStop() {
	cs.timeoutTicker.Stop()
	cs.wg.Wait()
}

// AddProposal queues a proposal received from the network for processing.
func (cs *ConsensusState) AddProposal(proposal *types.Proposal) {
	select {
	case cs.proposalCh <- proposal:
	default:
		// Channel full; drop. The proposer will not see a prevote and the round
		// will time out and move on.
	}
}

// AddVote queues a vote received from the network for processing.
func (cs *ConsensusState) AddVote(vote *types.Vote) {
	select {
	case cs.voteCh <- vote:
	default:
	}
}

// GetRoundState returns a copy of the current round state.
func (cs *ConsensusState) GetRoundState() RoundState {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.RoundState
}

// GetState returns the current height/round/step.
func (cs *ConsensusState) GetState() (height int64, round int32, step RoundStep) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.Height, cs.Round, cs.Step
}

// proposerName safely names proposer for logging; the validator set is never
// expected to be empty once running, but a log line should never itself panic.
func proposerName(proposer *types.Validator) string {
	if proposer == nil {
		return ""
	}
	return proposer.Name.Name
}

// Proposer returns the proposer for round, synchronized against concurrent
// validator-set updates (e.g. the proposer-priority rotation finalizeCommit
// performs on every height).
func (cs *ConsensusState) Proposer(round int32) *types.Validator {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.proposerForRound(round)
}

func (cs *ConsensusState) receiveRoutine() {
	defer cs.wg.Done()

	for {
		select {
		case <-cs.Quit():
			return

		// OnStop runs before Quit() is closed and waits on this routine, so the
		// ticker's stop signal is what ends it during Stop.
		case <-cs.timeoutTicker.stopCh:
			return

		case proposal := <-cs.proposalCh:
			cs.handleProposal(proposal)

		case vote := <-cs.voteCh:
			cs.handleVote(vote)

		case ti := <-cs.timeoutTicker.Chan():
			cs.handleTimeout(ti)
		}
	}
}

// proposerForRound returns the validator who proposes at round, rotating
// priority forward from the height's round-0 proposer (spec §4.5.1).
func (cs *ConsensusState) proposerForRound(round int32) *types.Validator {
	if round == 0 {
		return cs.validatorSet.Proposer
	}
	rotated, err := cs.validatorSet.WithIncrementedPriority(round)
	if err != nil {
		return cs.validatorSet.Proposer
	}
	return rotated.Proposer
}

// blockIDFromBlock computes the BlockID (header hash plus part-set header) a
// proposal for block would carry.
func blockIDFromBlock(block *types.Block) (types.BlockID, error) {
	ps, err := types.BlockPartsFromBlock(block)
	if err != nil {
		return types.BlockID{}, err
	}
	return types.BlockID{Hash: types.BlockHash(block), PartSetHeader: ps.Header()}, nil
}

// enterNewRound (re)starts a round: resets per-round proposal state, arms the
// propose timeout, and proposes immediately if this validator is the round's
// proposer.
func (cs *ConsensusState) enterNewRound(height int64, round int32) {
	if cs.Height != height || round < cs.Round {
		return
	}

	cs.Round = round
	cs.Step = RoundStepNewRound
	cs.Proposal = nil
	cs.ProposalBlock = nil

	if round == 0 {
		cs.ValidRound = -1
		cs.ValidBlock = nil
	}

	cs.Step = RoundStepPropose
	cs.scheduleTimeout(TimeoutInfo{Height: height, Round: round, Step: RoundStepPropose})

	proposer := cs.proposerForRound(round)
	cs.Logger.Debug("entering new round", "height", height, "round", round, "proposer", proposerName(proposer))

	if cs.privVal != nil && proposer != nil && types.PublicKeyEqual(proposer.PublicKey, cs.privVal.GetPubKey()) {
		cs.createAndSendProposal()
	}
}

// createAndSendProposal builds this round's proposal — re-proposing the valid or
// locked block if one is carried forward, otherwise asking the executor for a new
// one — attaches the proof-of-lock for valid_round if any, signs it, and hands it
// to OnProposal.
func (cs *ConsensusState) createAndSendProposal() {
	proposer := cs.proposerForRound(cs.Round)
	if proposer == nil {
		return
	}

	var block *types.Block
	switch {
	case cs.ValidBlock != nil:
		block = cs.ValidBlock
	case cs.LockedBlock != nil:
		block = cs.LockedBlock
	default:
		var err error
		block, err = cs.blockExecutor.CreateProposalBlock(cs.Height, cs.LastCommit, proposer.Name)
		if err != nil {
			return
		}
	}

	if err := cs.blockExecutor.ValidateBlock(block); err != nil {
		cs.Logger.Error("refusing to propose invalid block", "height", cs.Height, "round", cs.Round, "err", err)
		return
	}

	blockID, err := blockIDFromBlock(block)
	if err != nil {
		return
	}

	var polVotes []types.Vote
	if cs.ValidRound >= 0 {
		if pol, ok := cs.votes.PolInfo(cs.ValidRound); ok {
			polVotes = make([]types.Vote, len(pol.Votes))
			for i, v := range pol.Votes {
				polVotes[i] = *v
			}
		}
	}

	proposal := types.NewProposal(
		cs.Height,
		cs.Round,
		time.Now().UnixNano(),
		*block,
		blockID,
		cs.ValidRound,
		polVotes,
		proposer.Name,
	)

	if err := cs.privVal.SignProposal(cs.config.ChainID, proposal); err != nil {
		return
	}

	cs.Proposal = proposal
	cs.ProposalBlock = block

	if cs.wal != nil {
		if msg, err := wal.NewProposalMessage(cs.Height, cs.Round, proposal); err == nil {
			cs.wal.Write(msg)
		}
	}

	if cs.OnProposal != nil {
		cs.OnProposal(proposal)
	}
}

// handleProposal validates and accepts an incoming proposal for the current
// height/round, then decides this validator's prevote.
func (cs *ConsensusState) handleProposal(proposal *types.Proposal) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if proposal.Height != cs.Height || proposal.Round != cs.Round {
		return
	}
	if cs.Proposal != nil {
		return
	}

	// A proof-of-lock can only reference a strictly earlier round than the
	// proposal carrying it; -1 means "no POL".
	if proposal.PolRound < -1 || proposal.PolRound >= proposal.Round {
		cs.Logger.Debug("dropping proposal", "err", ErrInvalidPolRound, "pol_round", proposal.PolRound, "round", proposal.Round)
		return
	}

	proposer := cs.proposerForRound(cs.Round)
	if proposer == nil || !types.AccountNameEqual(proposal.Proposer, proposer.Name) {
		return
	}

	signBytes := types.ProposalSignBytes(cs.config.ChainID, proposal)
	if !types.VerifySignature(proposer.PublicKey, signBytes, proposal.Signature) {
		return
	}

	if err := cs.blockExecutor.ValidateBlock(&proposal.Block); err != nil {
		return
	}

	cs.Proposal = proposal
	cs.ProposalBlock = &proposal.Block

	if cs.wal != nil {
		if msg, err := wal.NewProposalMessage(cs.Height, cs.Round, proposal); err == nil {
			cs.wal.Write(msg)
		}
	}

	if cs.Step == RoundStepPropose {
		cs.enterPrevote(cs.Height, cs.Round)
	}
}

// canUnlock reports whether proposal carries a proof-of-lock recent enough to
// release this validator's current lock (spec §5: unlock-on-differing-polka). A
// lock from round R can only be released by a proposal whose PolRound is
// strictly later than R and whose POL votes actually reach a 2/3+ prevote
// majority for the proposed block.
func (cs *ConsensusState) canUnlock(proposal *types.Proposal) bool {
	if proposal == nil {
		return false
	}
	if proposal.PolRound < 0 {
		return false
	}
	if proposal.PolRound <= cs.LockedRound {
		return false
	}
	return cs.validatePOL(proposal)
}

// validatePOL checks that proposal.PolVotes forms a valid 2/3+ prevote majority
// at (proposal.Height, proposal.PolRound) for proposal's own block. Votes were
// already signature-checked when they entered the originating validator's vote
// set, so validatePOL only re-checks structure: vote type, height, round, block
// hash, distinct validators, and aggregate power.
func (cs *ConsensusState) validatePOL(proposal *types.Proposal) bool {
	if len(proposal.PolVotes) == 0 {
		return false
	}

	blockHash := types.BlockHash(&proposal.Block)
	seen := make(map[uint16]bool, len(proposal.PolVotes))
	var power int64

	for i := range proposal.PolVotes {
		vote := &proposal.PolVotes[i]

		if vote.Type != types.VoteTypePrevote {
			return false
		}
		if vote.Height != proposal.Height || vote.Round != proposal.PolRound {
			return false
		}
		if vote.BlockHash == nil || !types.HashEqual(*vote.BlockHash, blockHash) {
			return false
		}
		if seen[vote.ValidatorIndex] {
			return false
		}
		seen[vote.ValidatorIndex] = true

		validator := cs.validatorSet.GetByIndex(vote.ValidatorIndex)
		if validator == nil || !types.AccountNameEqual(validator.Name, vote.Validator) {
			return false
		}
		power += validator.VotingPower
	}

	return power >= cs.validatorSet.TwoThirdsMajority()
}

// enterPrevote decides and broadcasts this validator's prevote for the round.
func (cs *ConsensusState) enterPrevote(height int64, round int32) {
	if cs.Height != height || cs.Round != round || cs.Step >= RoundStepPrevote {
		return
	}

	cs.Step = RoundStepPrevote
	cs.Logger.Debug("entering prevote step", "height", height, "round", round)
	cs.signAndSendVote(types.VoteTypePrevote, cs.decidePrevoteBlockHash())
}

// decidePrevoteBlockHash picks the block this validator prevotes for: the locked
// block, unless the current proposal carries a proof-of-lock that releases that
// lock (canUnlock), in which case the proposed block is prevoted for instead;
// nil if there is nothing to prevote for.
func (cs *ConsensusState) decidePrevoteBlockHash() *types.Hash {
	if cs.LockedBlock != nil && !cs.canUnlock(cs.Proposal) {
		hash := types.BlockHash(cs.LockedBlock)
		return &hash
	}
	if cs.ProposalBlock != nil {
		hash := types.BlockHash(cs.ProposalBlock)
		return &hash
	}
	return nil
}

// enterPrevoteWait arms the prevote-wait timeout once 2/3+ of voting power has
// prevoted for *something* in this round without agreeing on one block.
func (cs *ConsensusState) enterPrevoteWait(height int64, round int32) {
	if cs.Height != height || cs.Round != round || cs.Step >= RoundStepPrevoteWait {
		return
	}

	cs.Step = RoundStepPrevoteWait
	cs.Logger.Debug("entering prevote-wait step", "height", height, "round", round)
	cs.scheduleTimeout(TimeoutInfo{Height: height, Round: round, Step: RoundStepPrevoteWait})
}

// enterPrecommit decides and broadcasts this validator's precommit for the round,
// updating the lock (and the carried-forward valid block) according to what the
// round's prevotes settled on.
func (cs *ConsensusState) enterPrecommit(height int64, round int32) {
	if cs.Height != height || cs.Round != round || cs.Step >= RoundStepPrecommit {
		return
	}
	cs.Step = RoundStepPrecommit
	cs.Logger.Debug("entering precommit step", "height", height, "round", round)

	prevotes := cs.votes.Prevotes(round)
	blockHash, ok := prevotes.TwoThirdsMajority()
	if !ok {
		cs.signAndSendVote(types.VoteTypePrecommit, nil)
		return
	}

	if blockHash == nil || types.IsHashEmpty(blockHash) {
		if cs.LockedBlock != nil {
			cs.Logger.Debug("unlocking block: polka for nil", "height", height, "round", round, "locked_round", cs.LockedRound)
		}
		cs.LockedRound = -1
		cs.LockedBlock = nil
		cs.signAndSendVote(types.VoteTypePrecommit, nil)
		return
	}

	if cs.ProposalBlock != nil {
		proposalHash := types.BlockHash(cs.ProposalBlock)
		if types.HashEqual(proposalHash, *blockHash) {
			if err := cs.blockExecutor.ValidateBlock(cs.ProposalBlock); err != nil {
				cs.Logger.Error("refusing to lock invalid block", "height", height, "round", round, "err", err)
				cs.signAndSendVote(types.VoteTypePrecommit, nil)
				return
			}
			cs.Logger.Debug("locking block", "height", height, "round", round, "block_hash", proposalHash)
			cs.LockedRound = round
			cs.LockedBlock = cs.ProposalBlock
			cs.ValidRound = round
			cs.ValidBlock = cs.ProposalBlock
			cs.signAndSendVote(types.VoteTypePrecommit, blockHash)
			return
		}
	}

	if cs.LockedBlock != nil {
		lockedHash := types.BlockHash(cs.LockedBlock)
		if types.HashEqual(lockedHash, *blockHash) {
			// The majority settled on the block we're already locked on; the lock
			// round doesn't advance, but the precommit still targets it.
			cs.signAndSendVote(types.VoteTypePrecommit, blockHash)
			return
		}
	}

	// The majority is for a block this validator doesn't hold.
	cs.Logger.Debug("precommitting nil: majority block not held", "height", height, "round", round)
	cs.signAndSendVote(types.VoteTypePrecommit, nil)
}

// enterPrecommitWait arms the precommit-wait timeout once 2/3+ of voting power
// has precommitted in this round without agreeing on one block.
func (cs *ConsensusState) enterPrecommitWait(height int64, round int32) {
	if cs.Height != height || cs.Round != round || cs.Step >= RoundStepPrecommitWait {
		return
	}

	cs.Step = RoundStepPrecommitWait
	cs.Logger.Debug("entering precommit-wait step", "height", height, "round", round)
	cs.scheduleTimeout(TimeoutInfo{Height: height, Round: round, Step: RoundStepPrecommitWait})
}

// enterCommit marks the commit step and attempts to finalize immediately.
func (cs *ConsensusState) enterCommit(height int64) {
	if cs.Height != height || cs.Step >= RoundStepCommit {
		return
	}
	cs.Step = RoundStepCommit
	cs.Logger.Debug("entering commit step", "height", height, "round", cs.Round)
	cs.tryFinalizeCommit(height)
}

// tryFinalizeCommit scans rounds from the current one down to 0 for a 2/3+
// precommit majority on a non-nil block and finalizes the height on the first
// one found. It is safe to call repeatedly — e.g. once from enterCommit and
// again as further precommits arrive while already in the commit step — and
// reports whether it finalized.
func (cs *ConsensusState) tryFinalizeCommit(height int64) bool {
	if cs.Height != height {
		return false
	}

	for round := cs.Round; round >= 0; round-- {
		precommits := cs.votes.Precommits(round)
		blockHash, ok := precommits.TwoThirdsMajority()
		if !ok || blockHash == nil || types.IsHashEmpty(blockHash) {
			continue
		}

		commit := precommits.MakeCommit()
		if commit == nil {
			continue
		}

		cs.finalizeCommit(height, commit)
		return true
	}

	return false
}

// finalizeCommit applies the committed block, advances to height+1, and either
// schedules the commit timeout or (if configured to skip it) starts the next
// height's round 0 immediately.
func (cs *ConsensusState) finalizeCommit(height int64, commit *types.Commit) {
	block := cs.LockedBlock
	if block == nil {
		block = cs.ProposalBlock
	}
	if block == nil {
		return
	}

	if err := cs.blockExecutor.ApplyBlock(block, commit); err != nil {
		cs.Logger.Error("failed to apply block", "height", height, "err", err)
		return
	}

	cs.Logger.Info("finalized commit", "height", height, "round", commit.Round, "num_txs", len(block.Data.Txs))

	if cs.wal != nil {
		if msg, err := wal.NewCommitMessage(height, commit); err == nil {
			cs.wal.WriteSync(msg)
		}
		cs.wal.Write(wal.NewEndHeightMessage(height))
	}

	cs.validatorSet.IncrementProposerPriority(1)

	cs.RoundState = NewRoundState(height+1, commit)
	cs.votes.Reset(cs.Height, cs.validatorSet)

	if !cs.config.SkipTimeoutCommit {
		// The commit timeout belongs to the height that just started, not the one
		// that just finalized, so it survives the height/round check in
		// handleTimeout once it fires.
		cs.scheduleTimeout(TimeoutInfo{Height: cs.Height, Round: 0, Step: RoundStepCommit})
	} else {
		cs.enterNewRound(cs.Height, 0)
	}
}

// handleVote adds vote to this height's vote tracker, checks whether it moves
// this validator's round forward, and otherwise dispatches it by type.
func (cs *ConsensusState) handleVote(vote *types.Vote) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	added, err := cs.votes.AddVote(vote)
	if err != nil {
		var conflict *ConflictingVoteError
		if errors.As(err, &conflict) {
			cs.Logger.Error("conflicting vote surfaced to evidence", "validator", conflict.Conflicting.Validator.Name,
				"height", conflict.Conflicting.Height, "round", conflict.Conflicting.Round, "type", conflict.Conflicting.Type)
		}
		return
	}
	if !added {
		return
	}

	if cs.wal != nil {
		if msg, err := wal.NewVoteMessage(cs.Height, cs.Round, vote); err == nil {
			cs.wal.Write(msg)
		}
	}

	// Round-skip: once 2/3+ of voting power has moved on to a round ahead of
	// ours — regardless of vote type or which block they favor — waiting out
	// this round's timeout cannot help; jump straight to their round (spec §5).
	if vote.Round > cs.Round {
		var skip bool
		switch vote.Type {
		case types.VoteTypePrevote:
			skip = cs.votes.Prevotes(vote.Round).HasTwoThirdsAny()
		case types.VoteTypePrecommit:
			skip = cs.votes.Precommits(vote.Round).HasTwoThirdsAny()
		}
		if skip {
			cs.enterNewRound(cs.Height, vote.Round)
			return
		}
	}

	switch vote.Type {
	case types.VoteTypePrevote:
		cs.handlePrevote(vote)
	case types.VoteTypePrecommit:
		cs.handlePrecommit(vote)
	}
}

func (cs *ConsensusState) handlePrevote(vote *types.Vote) {
	cs.updateValidBlock(vote.Round)

	prevotes := cs.votes.Prevotes(vote.Round)
	if vote.Round != cs.Round || cs.Step != RoundStepPrevote {
		return
	}

	if prevotes.HasTwoThirdsMajority() {
		cs.enterPrecommit(cs.Height, cs.Round)
	} else if prevotes.HasTwoThirdsAny() {
		cs.enterPrevoteWait(cs.Height, cs.Round)
	}
}

// updateValidBlock promotes valid_round/valid_block whenever round's prevotes
// reach a 2/3+ majority for a block this validator actually holds a copy of
// (spec §5). This runs for every round's prevotes, not just the current round's,
// so a majority that formed in an earlier round still carries forward into
// later re-proposals.
func (cs *ConsensusState) updateValidBlock(round int32) {
	if round <= cs.ValidRound {
		return
	}

	prevotes := cs.votes.Prevotes(round)
	blockHash, ok := prevotes.TwoThirdsMajority()
	if !ok || blockHash == nil || types.IsHashEmpty(blockHash) {
		return
	}

	var block *types.Block
	if cs.ProposalBlock != nil && round == cs.Round {
		hash := types.BlockHash(cs.ProposalBlock)
		if types.HashEqual(hash, *blockHash) {
			block = cs.ProposalBlock
		}
	}
	if block == nil && cs.ValidBlock != nil {
		hash := types.BlockHash(cs.ValidBlock)
		if types.HashEqual(hash, *blockHash) {
			block = cs.ValidBlock
		}
	}
	if block == nil {
		return
	}

	cs.ValidRound = round
	cs.ValidBlock = block
}

func (cs *ConsensusState) handlePrecommit(vote *types.Vote) {
	precommits := cs.votes.Precommits(vote.Round)

	blockHash, ok := precommits.TwoThirdsMajority()
	if ok && blockHash != nil && !types.IsHashEmpty(blockHash) {
		if cs.Step < RoundStepCommit {
			cs.enterCommit(cs.Height)
		} else {
			cs.tryFinalizeCommit(cs.Height)
		}
		return
	}

	if precommits.HasTwoThirdsAny() && vote.Round == cs.Round && cs.Step == RoundStepPrecommit {
		cs.enterPrecommitWait(cs.Height, cs.Round)
	}
}

// handleTimeout processes a fired timeout, advancing the state machine if it is
// still relevant to the current height/round.
func (cs *ConsensusState) handleTimeout(ti TimeoutInfo) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if ti.Height != cs.Height || ti.Round < cs.Round {
		cs.Logger.Debug("dropping stale timeout", "ti_height", ti.Height, "ti_round", ti.Round, "ti_step", ti.Step, "height", cs.Height, "round", cs.Round)
		return
	}

	switch ti.Step {
	case RoundStepPropose:
		if cs.Step == RoundStepPropose {
			cs.enterPrevote(cs.Height, cs.Round)
		} else {
			cs.Logger.Debug("dropping propose timeout: step already advanced", "height", cs.Height, "round", cs.Round, "step", cs.Step)
		}

	case RoundStepPrevoteWait:
		if cs.Step == RoundStepPrevoteWait {
			cs.enterPrecommit(cs.Height, cs.Round)
		} else {
			cs.Logger.Debug("dropping prevote-wait timeout: step already advanced", "height", cs.Height, "round", cs.Round, "step", cs.Step)
		}

	case RoundStepPrecommitWait:
		if cs.Step == RoundStepPrecommitWait {
			cs.enterNewRound(cs.Height, cs.Round+1)
		} else {
			cs.Logger.Debug("dropping precommit-wait timeout: step already advanced", "height", cs.Height, "round", cs.Round, "step", cs.Step)
		}

	case RoundStepCommit:
		cs.enterNewRound(cs.Height, 0)
	}
}

// signAndSendVote builds, signs, and broadcasts a vote of voteType for blockHash
// at the current height/round.
func (cs *ConsensusState) signAndSendVote(voteType types.VoteType, blockHash *types.Hash) {
	if cs.privVal == nil {
		return
	}

	pubKey := cs.privVal.GetPubKey()
	var self *types.Validator
	for _, v := range cs.validatorSet.Validators {
		if types.PublicKeyEqual(v.PublicKey, pubKey) {
			self = v
			break
		}
	}
	if self == nil {
		return
	}

	// BFT time guarantees that any vote from this validator carries a timestamp
	// at least 1ms later than the block it is locked on (or about to prevote),
	// never a timestamp derived from this validator's own prior vote.
	now := time.Now().UnixNano()
	minVoteTime := now
	switch {
	case cs.LockedBlock != nil:
		minVoteTime = cs.LockedBlock.Header.Time + int64(time.Millisecond)
	case cs.ProposalBlock != nil:
		minVoteTime = cs.ProposalBlock.Header.Time + int64(time.Millisecond)
	}
	timestamp := now
	if minVoteTime > now {
		timestamp = minVoteTime
	}

	vote := &types.Vote{
		Type:           voteType,
		Height:         cs.Height,
		Round:          cs.Round,
		BlockHash:      blockHash,
		Timestamp:      timestamp,
		Validator:      self.Name,
		ValidatorIndex: self.Index,
	}

	if err := cs.privVal.SignVote(cs.config.ChainID, vote); err != nil {
		return
	}

	if cs.wal != nil {
		if msg, err := wal.NewVoteMessage(cs.Height, cs.Round, vote); err == nil {
			cs.wal.WriteSync(msg)
		}
	}

	cs.votes.AddVote(vote)

	if cs.OnVote != nil {
		cs.OnVote(vote)
	}
}

// scheduleTimeout requests ti be armed on the timeout ticker.
func (cs *ConsensusState) scheduleTimeout(ti TimeoutInfo) {
	cs.timeoutTicker.ScheduleTimeout(ti)
}
