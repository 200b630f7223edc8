// Package wal implements a write-ahead log for consensus crash recovery.
//
// The write-ahead log (WAL) persists consensus messages (proposals, votes, commits,
// end-of-height markers) so they can be read back after a restart. This module
// provides the writing and reading side; it contains no replay driver.
//
// # Core Interface
//
// WAL defines the interface for writing consensus messages and state changes:
//
//	type WAL interface {
//	    Write(msg *Message) error
//	    WriteSync(msg *Message) error
//	    FlushAndSync() error
//	    SearchForEndHeight(height int64) (Reader, bool, error)
//	    Start() error
//	    Stop() error
//	    Group() *Group
//	}
//
// # Implementation
//
// FileWAL: Disk-based WAL using length-prefixed messages with CRC32 checksums.
// Messages are buffered for performance and fsync'd on critical operations.
//
// # Message Types
//
// The WAL records six kinds of entries, identified by MessageType:
//
//	- MsgTypeEndHeight: Marks successful block commit at a height
//	- MsgTypeProposal: Incoming block proposal
//	- MsgTypeVote: Incoming prevote or precommit
//	- MsgTypeCommit: The commit that finalized a height
//	- MsgTypeState: A RoundStateSnapshot taken between messages
//	- MsgTypeTimeout: Timeout trigger
//
// # File Format
//
// Each entry is encoded as:
//
//	[4 bytes: length][N bytes: msgpack-encoded message][4 bytes: CRC32]
//
// The length prefix enables fast seeking and validation.
// CRC32 detects corruption from incomplete writes or disk errors.
//
// # Rotation and Cleanup
//
// FileWAL writes into numbered segment files and opens the next segment once the
// current one reaches its maximum size (64MB by default). Checkpoint deletes the
// older segments whose messages all lie at or below a given height; the current
// segment is never deleted.
//
//	wal-00000
//	wal-00001
//
// # Reading Back
//
// OpenWALForReading returns a Reader that decodes and CRC-checks every message,
// from the oldest segment to the newest. Nothing in this module replays those
// messages into the consensus engine on startup; the engine only writes to the WAL.
//
// # Thread Safety
//
// FileWAL uses internal locking to ensure thread-safe writes from multiple
// goroutines. However, only one WAL instance should write to a directory.
//
// # Performance Considerations
//
// Regular Write() calls are buffered for throughput.
// WriteSync() forces an fsync for critical safety (e.g., before signing votes).
// Balance durability vs performance based on your consistency requirements.
//
// # Usage Example
//
//	// Create a new file-based WAL
//	w, err := wal.NewFileWAL("./data/wal")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
//	// Write a proposal (buffered)
//	msg, err := wal.NewProposalMessage(height, round, proposal)
//	err = w.Write(msg)
//
//	// Write a critical vote (synced)
//	msg, err = wal.NewVoteMessage(height, round, vote)
//	err = w.WriteSync(msg)
//
//	// Read the WAL back, oldest message first
//	reader, err := wal.OpenWALForReading("./data/wal")
//	for {
//	    msg, err := reader.Read()
//	    if err == io.EOF {
//	        break
//	    }
//	    handle(msg) // caller-supplied
//	}
package wal
