package engine

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/haderech/smite/privval"
	"github.com/haderech/smite/types"
)

func makeTestValidator(name string, index uint16, power int64) *types.Validator {
	pubKey := make([]byte, 32)
	pubKey[0] = byte(index)
	return &types.Validator{
		Name:        types.NewAccountName(name),
		Index:       index,
		PublicKey:   types.MustNewPublicKey(pubKey),
		VotingPower: power,
	}
}

func makeTestValidatorSet() *types.ValidatorSet {
	vals := []*types.Validator{
		makeTestValidator("alice", 0, 100),
		makeTestValidator("bob", 1, 100),
		makeTestValidator("carol", 2, 100),
	}
	vs, _ := types.NewValidatorSet(vals)
	return vs
}

func TestVoteSetBasic(t *testing.T) {
	valSet := makeTestValidatorSet()
	vs := NewVoteSet("test-chain", 1, 0, types.VoteTypePrevote, valSet)

	if vs.Size() != 0 {
		t.Errorf("expected 0 votes, got %d", vs.Size())
	}

	if vs.HasTwoThirdsMajority() {
		t.Error("should not have 2/3+ majority with no votes")
	}
}

func TestVoteSetAddVote(t *testing.T) {
	valSet := makeTestValidatorSet()
	vs := NewVoteSet("test-chain", 1, 0, types.VoteTypePrevote, valSet)

	blockHash := types.HashBytes([]byte("block1"))

	// Unsigned vote: exercises the signature-rejection path.
	vote := &types.Vote{
		Type:           types.VoteTypePrevote,
		Height:         1,
		Round:          0,
		BlockHash:      &blockHash,
		Timestamp:      time.Now().UnixNano(),
		Validator:      types.NewAccountName("alice"),
		ValidatorIndex: 0,
	}

	_, err := vs.AddVote(vote)
	if err != ErrInvalidSignature {
		t.Errorf("expected ErrInvalidSignature, got: %v", err)
	}
}

func TestHeightVoteSetBasic(t *testing.T) {
	valSet := makeTestValidatorSet()
	hvs := NewHeightVoteSet("test-chain", 1, valSet)

	if hvs.Height() != 1 {
		t.Errorf("expected height 1, got %d", hvs.Height())
	}

	// Prevotes/Precommits allocate an empty VoteSet on first access.
	prevotes := hvs.Prevotes(0)
	if prevotes == nil {
		t.Fatal("prevotes should be allocated for an unseen round")
	}
	if prevotes.Size() != 0 {
		t.Error("freshly allocated prevote set should have no votes")
	}

	precommits := hvs.Precommits(0)
	if precommits == nil {
		t.Fatal("precommits should be allocated for an unseen round")
	}
	if precommits.Size() != 0 {
		t.Error("freshly allocated precommit set should have no votes")
	}
}

func TestHeightVoteSetReset(t *testing.T) {
	valSet := makeTestValidatorSet()
	hvs := NewHeightVoteSet("test-chain", 1, valSet)

	hvs.Reset(2, valSet)

	if hvs.Height() != 2 {
		t.Errorf("expected height 2 after reset, got %d", hvs.Height())
	}
}

func TestHeightVoteSetPolInfoNoMajority(t *testing.T) {
	valSet := makeTestValidatorSet()
	hvs := NewHeightVoteSet("test-chain", 1, valSet)

	_, ok := hvs.PolInfo(0)
	if ok {
		t.Error("PolInfo should report false with no prevotes recorded")
	}
}

func TestHeightVoteSetStaleVoteSetRejected(t *testing.T) {
	valSet := makeTestValidatorSet()
	hvs := NewHeightVoteSet("test-chain", 1, valSet)

	stale := hvs.Prevotes(0)
	hvs.Reset(2, valSet)

	blockHash := types.HashBytes([]byte("block1"))
	vote := &types.Vote{
		Type:           types.VoteTypePrevote,
		Height:         1,
		Round:          0,
		BlockHash:      &blockHash,
		Timestamp:      1000,
		Validator:      types.NewAccountName("alice"),
		ValidatorIndex: 0,
	}

	_, err := stale.AddVote(vote)
	if err != ErrStaleVoteSet {
		t.Errorf("expected ErrStaleVoteSet, got %v", err)
	}
}

func TestVoteSetAddVoteConflictingVoteIsSurfaced(t *testing.T) {
	dir := t.TempDir()
	pv, err := privval.GenerateFilePV(filepath.Join(dir, "key.json"), filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("failed to generate FilePV: %v", err)
	}

	alice := &types.Validator{Name: types.NewAccountName("alice"), Index: 0, PublicKey: pv.GetPubKey(), VotingPower: 100}
	bob := makeTestValidator("bob", 1, 100)
	valSet, err := types.NewValidatorSet([]*types.Validator{alice, bob})
	if err != nil {
		t.Fatalf("failed to build validator set: %v", err)
	}

	vs := NewVoteSet("test-chain", 1, 0, types.VoteTypePrevote, valSet)

	blockA := types.HashBytes([]byte("block-a"))
	now := time.Now().UnixNano()
	first := &types.Vote{
		Type:           types.VoteTypePrevote,
		Height:         1,
		Round:          0,
		BlockHash:      &blockA,
		Timestamp:      now,
		Validator:      alice.Name,
		ValidatorIndex: alice.Index,
	}
	if err := pv.SignVote("test-chain", first); err != nil {
		t.Fatalf("failed to sign first vote: %v", err)
	}
	if added, err := vs.AddVote(first); !added || err != nil {
		t.Fatalf("expected first vote to be admitted cleanly, got added=%v err=%v", added, err)
	}

	// FilePV's own double-sign guard would refuse to sign a second, different
	// vote for this (height, round, step); reset it to simulate an equivocating
	// validator's second signature so AddVote's own conflict check is exercised.
	if err := pv.Reset(); err != nil {
		t.Fatalf("failed to reset FilePV: %v", err)
	}

	blockB := types.HashBytes([]byte("block-b"))
	second := &types.Vote{
		Type:           types.VoteTypePrevote,
		Height:         1,
		Round:          0,
		BlockHash:      &blockB,
		Timestamp:      now + 1,
		Validator:      alice.Name,
		ValidatorIndex: alice.Index,
	}
	if err := pv.SignVote("test-chain", second); err != nil {
		t.Fatalf("failed to sign second vote: %v", err)
	}

	added, err := vs.AddVote(second)
	if added {
		t.Error("a conflicting vote must not be admitted")
	}
	var conflict *ConflictingVoteError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected a *ConflictingVoteError, got %v", err)
	}
	if !errors.Is(err, ErrConflictingVote) {
		t.Error("ConflictingVoteError should unwrap to ErrConflictingVote")
	}
	if conflict.Existing.BlockHash == nil || !types.HashEqual(*conflict.Existing.BlockHash, blockA) {
		t.Error("Existing should be the first vote seen for this validator")
	}
	if conflict.Conflicting.BlockHash == nil || !types.HashEqual(*conflict.Conflicting.BlockHash, blockB) {
		t.Error("Conflicting should be the vote that was rejected")
	}

	if vs.Size() != 1 {
		t.Errorf("expected the retained vote count to stay at 1, got %d", vs.Size())
	}
}
