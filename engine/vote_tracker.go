package engine

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haderech/smite/types"
)

// MaxTimestampDrift bounds how far a vote's timestamp may drift from local wall
// clock time before it is rejected.
const MaxTimestampDrift = 10 * time.Minute

// ConflictingVoteError reports a validator signing two different votes for the
// same (height, round, type) — equivocation (spec §7's ConflictingVote). The
// first vote seen is retained; Conflicting is the one that was rejected, kept
// here so the caller can surface it to an evidence subsystem.
type ConflictingVoteError struct {
	Existing    *types.Vote
	Conflicting *types.Vote
}

func (e *ConflictingVoteError) Error() string {
	return fmt.Sprintf("conflicting vote (equivocation): validator %s at height=%d round=%d type=%v",
		e.Conflicting.Validator.Name, e.Conflicting.Height, e.Conflicting.Round, e.Conflicting.Type)
}

func (e *ConflictingVoteError) Unwrap() error {
	return ErrConflictingVote
}

// VoteSet tracks votes for a single height/round/type combination (spec §4.1,
// component C1).
type VoteSet struct {
	mu           sync.RWMutex
	chainID      string
	height       int64
	round        int32
	voteType     types.VoteType
	validatorSet *types.ValidatorSet

	votes        map[uint16]*types.Vote // by validator index
	votesByBlock map[string]*blockVotes
	sum          int64
	maj23        *blockVotes

	// peerMaj23 records peer claims of a 2/3+ majority, used for POL validation and
	// requesting missing votes.
	peerMaj23 map[string]*types.Hash

	// parent/myGeneration detect a VoteSet obtained before a HeightVoteSet.Reset():
	// if parent.generation has since advanced, this VoteSet is stale and rejects
	// writes rather than silently losing votes into a set nobody reads anymore.
	parent       *HeightVoteSet
	myGeneration uint64
}

type blockVotes struct {
	blockHash  *types.Hash
	votes      []*types.Vote
	totalPower int64
}

// NewVoteSet creates a standalone VoteSet not linked to a HeightVoteSet (e.g. for
// tests). Use HeightVoteSet.Prevotes/Precommits for normal operation.
func NewVoteSet(
	chainID string,
	height int64,
	round int32,
	voteType types.VoteType,
	valSet *types.ValidatorSet,
) *VoteSet {
	return &VoteSet{
		chainID:      chainID,
		height:       height,
		round:        round,
		voteType:     voteType,
		validatorSet: valSet,
		votes:        make(map[uint16]*types.Vote),
		votesByBlock: make(map[string]*blockVotes),
	}
}

// newVoteSetWithParent creates a VoteSet linked to hvs for stale-reference
// detection. Caller must hold hvs.mu.
func newVoteSetWithParent(hvs *HeightVoteSet, round int32, voteType types.VoteType) *VoteSet {
	return &VoteSet{
		chainID:      hvs.chainID,
		height:       hvs.height,
		round:        round,
		voteType:     voteType,
		validatorSet: hvs.validatorSet,
		votes:        make(map[uint16]*types.Vote),
		votesByBlock: make(map[string]*blockVotes),
		parent:       hvs,
		myGeneration: hvs.generation.Load(),
	}
}

// AddVote adds a vote to the set, returning true if it was newly added.
func (vs *VoteSet) AddVote(vote *types.Vote) (bool, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.parent != nil && vs.parent.generation.Load() != vs.myGeneration {
		return false, ErrStaleVoteSet
	}

	if vote.Height != vs.height || vote.Round != vs.round || vote.Type != vs.voteType {
		return false, ErrInvalidVote
	}

	voteTime := time.Unix(0, vote.Timestamp)
	now := time.Now()
	if voteTime.After(now.Add(MaxTimestampDrift)) {
		return false, fmt.Errorf("%w: timestamp too far in future", ErrInvalidVote)
	}
	if voteTime.Before(now.Add(-MaxTimestampDrift)) {
		return false, fmt.Errorf("%w: timestamp too far in past", ErrInvalidVote)
	}

	val := vs.validatorSet.GetByIndex(vote.ValidatorIndex)
	if val == nil {
		return false, ErrUnknownValidator
	}
	if !types.AccountNameEqual(val.Name, vote.Validator) {
		return false, ErrUnknownValidator
	}

	signBytes := types.VoteSignBytes(vs.chainID, vote)
	if !types.VerifySignature(val.PublicKey, signBytes, vote.Signature) {
		return false, ErrInvalidSignature
	}

	existing := vs.votes[vote.ValidatorIndex]
	if existing != nil {
		if votesEqual(existing, vote) {
			return false, nil
		}
		return false, &ConflictingVoteError{Existing: existing, Conflicting: copyVote(vote)}
	}

	voteCopy := copyVote(vote)
	vs.votes[voteCopy.ValidatorIndex] = voteCopy
	vs.sum += val.VotingPower

	key := blockHashKey(voteCopy.BlockHash)
	bv, ok := vs.votesByBlock[key]
	if !ok {
		bv = &blockVotes{blockHash: voteCopy.BlockHash}
		vs.votesByBlock[key] = bv
	}
	bv.votes = append(bv.votes, voteCopy)
	bv.totalPower += val.VotingPower

	quorum := vs.validatorSet.TwoThirdsMajority()
	if bv.totalPower >= quorum && vs.maj23 == nil {
		vs.maj23 = bv
	}

	return true, nil
}

// TwoThirdsMajority returns the block hash with 2/3+ votes, if any.
func (vs *VoteSet) TwoThirdsMajority() (*types.Hash, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if vs.maj23 != nil {
		return types.CopyHash(vs.maj23.blockHash), true
	}
	return nil, false
}

// HasTwoThirdsMajority reports whether any block has reached 2/3+ votes.
func (vs *VoteSet) HasTwoThirdsMajority() bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.maj23 != nil
}

// HasTwoThirdsAny reports whether 2/3+ of voting power has voted, for any block or
// nil combined.
func (vs *VoteSet) HasTwoThirdsAny() bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.sum >= vs.validatorSet.TwoThirdsMajority()
}

// HasAll reports whether every validator in the set has voted.
func (vs *VoteSet) HasAll() bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.votes) == vs.validatorSet.Size()
}

// GetVote returns a copy of the vote from a validator, if any.
func (vs *VoteSet) GetVote(valIndex uint16) *types.Vote {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	vote := vs.votes[valIndex]
	if vote == nil {
		return nil
	}
	return copyVote(vote)
}

// Size returns the number of votes recorded.
func (vs *VoteSet) Size() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.votes)
}

// VotingPower returns the total voting power represented in the set.
func (vs *VoteSet) VotingPower() int64 {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.sum
}

// GetVotes returns all votes, sorted by validator index for determinism.
func (vs *VoteSet) GetVotes() []*types.Vote {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	votes := make([]*types.Vote, 0, len(vs.votes))
	for _, v := range vs.votes {
		votes = append(votes, copyVote(v))
	}

	sort.Slice(votes, func(i, j int) bool {
		return votes[i].ValidatorIndex < votes[j].ValidatorIndex
	})

	return votes
}

// GetVotesForBlock returns all votes cast for blockHash.
func (vs *VoteSet) GetVotesForBlock(blockHash *types.Hash) []*types.Vote {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	key := blockHashKey(blockHash)
	bv, ok := vs.votesByBlock[key]
	if !ok {
		return nil
	}

	votes := make([]*types.Vote, 0, len(bv.votes))
	for _, v := range bv.votes {
		votes = append(votes, copyVote(v))
	}
	return votes
}

// SetPeerMaj23 records that a peer claims to have seen 2/3+ votes for a block.
func (vs *VoteSet) SetPeerMaj23(peerID string, blockHash *types.Hash) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.peerMaj23 == nil {
		vs.peerMaj23 = make(map[string]*types.Hash)
	}
	vs.peerMaj23[peerID] = types.CopyHash(blockHash)
}

// GetPeerMaj23Claims returns a copy of all recorded peer claims.
func (vs *VoteSet) GetPeerMaj23Claims() map[string]*types.Hash {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if vs.peerMaj23 == nil {
		return nil
	}

	result := make(map[string]*types.Hash, len(vs.peerMaj23))
	for k, v := range vs.peerMaj23 {
		result[k] = types.CopyHash(v)
	}
	return result
}

// HasPeerMaj23 reports whether any peer has claimed a 2/3+ majority.
func (vs *VoteSet) HasPeerMaj23() bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.peerMaj23) > 0
}

// MakeCommit builds a Commit from the set's 2/3+ precommits, or nil if there is no
// majority for a non-nil block.
func (vs *VoteSet) MakeCommit() *types.Commit {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if vs.voteType != types.VoteTypePrecommit || vs.maj23 == nil {
		return nil
	}
	if vs.maj23.blockHash == nil || types.IsHashEmpty(vs.maj23.blockHash) {
		return nil
	}

	blockHash := vs.maj23.blockHash
	sigs := make([]types.CommitSig, 0)

	for _, vote := range vs.votes {
		if vote.BlockHash == nil || types.IsHashEmpty(vote.BlockHash) {
			continue
		}
		if !types.HashEqual(*vote.BlockHash, *blockHash) {
			continue
		}

		sig := types.CommitSig{
			ValidatorIndex: vote.ValidatorIndex,
			Timestamp:      vote.Timestamp,
			BlockHash:      types.CopyHash(vote.BlockHash),
		}
		if len(vote.Signature.Data) > 0 {
			sig.Signature.Data = make([]byte, len(vote.Signature.Data))
			copy(sig.Signature.Data, vote.Signature.Data)
		}
		sigs = append(sigs, sig)
	}

	sort.Slice(sigs, func(i, j int) bool {
		return sigs[i].ValidatorIndex < sigs[j].ValidatorIndex
	})

	blockHashCopy := types.CopyHash(blockHash)
	return &types.Commit{
		Height:     vs.height,
		Round:      vs.round,
		BlockHash:  *blockHashCopy,
		Signatures: sigs,
	}
}

// blockHashKey returns a stable map key for a (possibly nil) block hash.
func blockHashKey(h *types.Hash) string {
	if h == nil || types.IsHashEmpty(h) {
		return "nil"
	}
	return hex.EncodeToString(h.Data)
}

func votesEqual(a, b *types.Vote) bool {
	if a.Type != b.Type || a.Height != b.Height || a.Round != b.Round {
		return false
	}
	if a.ValidatorIndex != b.ValidatorIndex {
		return false
	}
	if a.BlockHash == nil && b.BlockHash == nil {
		return true
	}
	if a.BlockHash == nil || b.BlockHash == nil {
		return false
	}
	return types.HashEqual(*a.BlockHash, *b.BlockHash)
}

func copyVote(v *types.Vote) *types.Vote {
	if v == nil {
		return nil
	}
	cp := *v
	cp.BlockHash = types.CopyHash(v.BlockHash)
	if len(v.Signature.Data) > 0 {
		cp.Signature.Data = make([]byte, len(v.Signature.Data))
		copy(cp.Signature.Data, v.Signature.Data)
	}
	if len(v.Extension) > 0 {
		cp.Extension = make([]byte, len(v.Extension))
		copy(cp.Extension, v.Extension)
	}
	return &cp
}

// PolInfo is the proof-of-lock summary a proposer attaches to a re-proposed block:
// the round whose prevotes justified the lock, and the votes that make up its 2/3+
// majority.
type PolInfo struct {
	Round int32
	Votes []*types.Vote
}

// HeightVoteSet tracks every VoteSet — prevotes and precommits, across every round —
// for a single height.
type HeightVoteSet struct {
	mu           sync.RWMutex
	chainID      string
	height       int64
	validatorSet *types.ValidatorSet

	prevotes   map[int32]*VoteSet
	precommits map[int32]*VoteSet

	// generation increments on Reset so VoteSets handed out before a height change
	// can detect they no longer belong to the live HeightVoteSet.
	generation atomic.Uint64
}

// NewHeightVoteSet creates a HeightVoteSet for the given height.
func NewHeightVoteSet(chainID string, height int64, valSet *types.ValidatorSet) *HeightVoteSet {
	return &HeightVoteSet{
		chainID:      chainID,
		height:       height,
		validatorSet: valSet,
		prevotes:     make(map[int32]*VoteSet),
		precommits:   make(map[int32]*VoteSet),
	}
}

// AddVote adds a vote to the appropriate round's VoteSet, allocating it if this is
// the first vote seen for that round/type.
func (hvs *HeightVoteSet) AddVote(vote *types.Vote) (bool, error) {
	hvs.mu.Lock()
	defer hvs.mu.Unlock()

	if vote.Height != hvs.height {
		return false, ErrInvalidHeight
	}

	var voteSet *VoteSet
	switch vote.Type {
	case types.VoteTypePrevote:
		voteSet = hvs.prevotes[vote.Round]
		if voteSet == nil {
			voteSet = newVoteSetWithParent(hvs, vote.Round, types.VoteTypePrevote)
			hvs.prevotes[vote.Round] = voteSet
		}
	case types.VoteTypePrecommit:
		voteSet = hvs.precommits[vote.Round]
		if voteSet == nil {
			voteSet = newVoteSetWithParent(hvs, vote.Round, types.VoteTypePrecommit)
			hvs.precommits[vote.Round] = voteSet
		}
	default:
		return false, ErrInvalidVote
	}

	return voteSet.AddVote(vote)
}

// Prevotes returns the prevote VoteSet for round, allocating an empty one if this
// round hasn't seen a prevote yet so callers can always inspect its aggregate state
// (e.g. HasTwoThirdsAny) without a nil check.
func (hvs *HeightVoteSet) Prevotes(round int32) *VoteSet {
	hvs.mu.Lock()
	defer hvs.mu.Unlock()

	vs := hvs.prevotes[round]
	if vs == nil {
		vs = newVoteSetWithParent(hvs, round, types.VoteTypePrevote)
		hvs.prevotes[round] = vs
	}
	return vs
}

// Precommits returns the precommit VoteSet for round, allocating an empty one if
// absent (see Prevotes).
func (hvs *HeightVoteSet) Precommits(round int32) *VoteSet {
	hvs.mu.Lock()
	defer hvs.mu.Unlock()

	vs := hvs.precommits[round]
	if vs == nil {
		vs = newVoteSetWithParent(hvs, round, types.VoteTypePrecommit)
		hvs.precommits[round] = vs
	}
	return vs
}

// PolInfo returns the proof-of-lock for round: the round's prevotes, if they reached
// a 2/3+ majority for a non-nil block. Returns false if round has no prevotes yet or
// they never reached majority.
func (hvs *HeightVoteSet) PolInfo(round int32) (PolInfo, bool) {
	hvs.mu.RLock()
	vs := hvs.prevotes[round]
	hvs.mu.RUnlock()

	if vs == nil {
		return PolInfo{}, false
	}

	blockHash, ok := vs.TwoThirdsMajority()
	if !ok || blockHash == nil || types.IsHashEmpty(blockHash) {
		return PolInfo{}, false
	}

	return PolInfo{Round: round, Votes: vs.GetVotesForBlock(blockHash)}, true
}

// SetPeerMaj23 records a peer's claim of a 2/3+ majority for round/voteType,
// allocating the VoteSet if necessary.
func (hvs *HeightVoteSet) SetPeerMaj23(peerID string, round int32, voteType types.VoteType, blockHash *types.Hash) {
	hvs.mu.Lock()
	defer hvs.mu.Unlock()

	var voteSet *VoteSet
	if voteType == types.VoteTypePrevote {
		voteSet = hvs.prevotes[round]
		if voteSet == nil {
			voteSet = newVoteSetWithParent(hvs, round, types.VoteTypePrevote)
			hvs.prevotes[round] = voteSet
		}
	} else {
		voteSet = hvs.precommits[round]
		if voteSet == nil {
			voteSet = newVoteSetWithParent(hvs, round, types.VoteTypePrecommit)
			hvs.precommits[round] = voteSet
		}
	}

	voteSet.SetPeerMaj23(peerID, blockHash)
}

// Height returns the height this HeightVoteSet is tracking.
func (hvs *HeightVoteSet) Height() int64 {
	return hvs.height
}

// Reset clears all votes and advances the generation counter, invalidating any
// VoteSet obtained before the reset.
func (hvs *HeightVoteSet) Reset(height int64, valSet *types.ValidatorSet) {
	hvs.mu.Lock()
	defer hvs.mu.Unlock()

	hvs.height = height
	hvs.validatorSet = valSet
	hvs.prevotes = make(map[int32]*VoteSet)
	hvs.precommits = make(map[int32]*VoteSet)
	hvs.generation.Add(1)
}
