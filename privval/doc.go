// Package privval implements private validator functionality with double-sign prevention.
//
// A private validator holds the Ed25519 private key used for signing consensus messages
// (proposals, prevotes, precommits). The key responsibility is preventing double-signing,
// which would constitute Byzantine behavior and violate consensus safety.
//
// # Core Interface
//
// PrivValidator defines the interface for signing consensus messages:
//
//	type PrivValidator interface {
//	    GetPubKey() types.PublicKey
//	    GetAddress() []byte
//	    SignVote(chainID string, vote *types.Vote) error
//	    SignProposal(chainID string, proposal *types.Proposal) error
//	}
//
// # Double-Sign Prevention
//
// LastSignState tracks the last height/round/step/blockhash signed by this validator.
// Before signing a vote, the validator checks the rules below. SignProposal signs
// without consulting or updating LastSignState.
//
//	1. Never sign two different blockhashes at the same height/round/step
//	2. Never regress to a lower height (after restart)
//	3. Persist state BEFORE returning signature (atomic persistence pattern)
//
// This prevents equivocation even across crashes and restarts.
//
// # Implementation
//
// FilePV: File-based private validator with two files:
//
//	- key.json: Ed25519 public and private key (rarely changes)
//	- state.json: LastSignState (updated on every signature)
//
// The files use atomic write-then-rename to ensure consistency even if
// the process crashes mid-write.
//
// # File Format
//
// key.json:
//
//	{
//	  "pub_key": "03A2B5...",
//	  "priv_key": "F3C1D2..."
//	}
//
// state.json:
//
//	{
//	  "height": 100,
//	  "round": 2,
//	  "step": 3,
//	  "block_hash": "A1B2C3..."
//	}
//
// # Security Considerations
//
// Private Key Protection:
//	- Key file should have restricted permissions (0600)
//	- Never log or expose the private key
//	- Consider HSM integration for production
//
// Double-Sign Protection:
//	- State file MUST be persisted before returning signature
//	- Writes go through an atomic write-then-rename so a crash never leaves a
//	  torn state file that could be read as an earlier, already-superseded state
//
// # Thread Safety
//
// FilePV serializes SignVote/SignProposal with an internal mutex.
// Only one FilePV instance should access the same key/state files.
//
// # Remote Signers
//
// For production deployments, consider:
//	- Hardware security modules (HSMs)
//	- Remote signing services with network protocol
//	- Key sharding and threshold signatures
//
// The PrivValidator interface supports these via custom implementations.
//
// # Usage Example
//
//	// Create or load a private validator
//	pv, err := privval.NewFilePV("key.json", "state.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Sign a vote
//	vote := &types.Vote{
//	    Type:      types.VoteTypePrevote,
//	    Height:    100,
//	    Round:     0,
//	    BlockHash: blockHash,
//	    Validator: types.NewAccountName("alice"),
//	}
//	if err := pv.SignVote("my-chain", vote); err != nil {
//	    log.Fatal(err) // Might be ErrDoubleSign
//	}
//	// vote.Signature is now set
package privval
