// Package types defines the core data structures for the consensus engine: blocks,
// votes, proposals, validators, and the accounts that identify them.
//
// # Core Types
//
// Block: A finalized block containing a header and its transaction data.
//
// Vote: A signed prevote or precommit from a validator.
// Votes include height, round, type, block hash, and validator signature.
//
// Proposal: A block proposal with optional proof-of-lock (POL) from prior rounds.
// POL votes demonstrate why a proposer is locked on a specific block.
//
// AccountName: The human-readable identity carried by validators, votes, and
// proposals.
//
// Validator: A validator identified by name with a public key, voting power, and
// a rotating proposer priority.
//
// ValidatorSet: An ordered, indexed set of validators with total voting power and
// deterministic weighted round-robin proposer selection.
//
// PartSet: A chunked, Merkle-proof-verified assembly buffer that lets a block be
// gossiped and reconstructed part by part.
//
// # Transaction Handling
//
// Consensus treats transaction payloads as opaque bytes. Interpreting and executing
// them is the application layer's responsibility, reached through the abci package.
//
// # Serialization
//
// Every wire type carries msgpack struct tags; Marshal/Unmarshal in codec.go are the
// single entry point consensus-critical code uses to get deterministic bytes.
//
// # Hashing
//
// Blocks (their header only), commits, and validator sets are hashed with SHA-256
// over their msgpack encoding. Hash wraps a 32-byte digest.
//
// # Copies and Mutation
//
// Block and ValidatorSet values are shared by pointer. CopyBlock,
// ValidatorSet.Copy and ValidatorSet.WithIncrementedPriority return independent
// copies; ValidatorSet.IncrementProposerPriority and PartSet.AddPart mutate their
// receiver in place.
//
// # Usage Example
//
//	vals := []*types.Validator{
//	    {Name: types.NewAccountName("alice"), VotingPower: 100, PublicKey: pubKey1},
//	    {Name: types.NewAccountName("bob"), VotingPower: 100, PublicKey: pubKey2},
//	}
//	valSet, err := types.NewValidatorSet(vals)
//
//	vote := &types.Vote{
//	    Type:      types.VoteTypePrevote,
//	    Height:    1,
//	    Round:     0,
//	    BlockHash: blockHash,
//	    Validator: types.NewAccountName("alice"),
//	}
//	err = privVal.SignVote("chain-id", vote) // sets vote.Signature
//
//	validator := valSet.GetByIndex(0)
//	err = types.VerifyVoteSignature("chain-id", vote, validator.PublicKey)
package types
