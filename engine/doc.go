// Package engine implements the Tendermint-style BFT consensus state machine.
//
// The engine coordinates the consensus protocol through these key states:
//
//	NewHeight → NewRound → Propose → Prevote → PrevoteWait → Precommit → PrecommitWait → Commit
//
// # Core Components
//
// ConsensusState: The state machine coordinator (component C5). Drives one
// validator's height/round/step transitions, decides what to propose/prevote/
// precommit, and finalizes commits. Embeds RoundState and runs on
// tendermint/libs/service.BaseService.
//
// RoundState: Passive record of the current height/round/step, the proposal
// under consideration, and the locked/valid block bookkeeping that implements
// the protocol's safety rules across round changes (component C4).
//
// VoteSet / HeightVoteSet: Aggregate prevotes and precommits per round to
// detect 2/3+ quorums, tracking voting power per block hash (component C1).
//
// TimeoutTicker: A single-slot scheduler for round timeouts with per-round
// linear backoff. Ensures liveness by advancing rounds when progress stalls
// (component C3).
//
// Message framing (EncodeMessage/DecodeMessage): length-prefixed, tagged
// msgpack encoding for proposals, block parts, and votes on the wire (spec §6).
//
// # Usage Example
//
//	// Create validator set
//	vals := []*types.Validator{
//	    {Name: types.NewAccountName("alice"), VotingPower: 100, PublicKey: alicePubKey},
//	    {Name: types.NewAccountName("bob"), VotingPower: 100, PublicKey: bobPubKey},
//	}
//	valSet, _ := types.NewValidatorSet(vals)
//
//	// Create consensus state
//	cfg := engine.DefaultConfig()
//	cs := engine.NewConsensusState(cfg, valSet, privVal, w, executor)
//	cs.OnProposal = network.BroadcastProposal
//	cs.OnVote = network.BroadcastVote
//
//	// Start consensus at height 1
//	cs.SetStartHeight(1, nil)
//	cs.Start()
//
//	// Process network messages
//	cs.AddProposal(proposal)
//	cs.AddVote(vote)
//
// # Thread Safety
//
// AddProposal, AddVote, GetState, and GetRoundState are safe for concurrent
// use. State transitions themselves run on a single goroutine started by
// OnStart, serialized behind ConsensusState's mutex.
//
// # Consensus Properties
//
// Safety: once a block is committed, it is final and immutable — no
// conflicting block can be finalized at the same height, enforced by the
// locking and proof-of-lock (POL) rules in canUnlock/updateValidBlock.
//
// Liveness: guaranteed under partial synchrony with 2/3+ honest voting power.
// Rounds advance automatically on timeout, and skip ahead immediately once
// 2/3+ of voting power is observed at a later round.
//
// Byzantine Fault Tolerance: tolerates up to 1/3 Byzantine voting power.
package engine
