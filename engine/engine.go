package engine

import (
	"fmt"
	"sync"

	"github.com/tendermint/tendermint/libs/log"

	"github.com/haderech/smite/privval"
	"github.com/haderech/smite/types"
	"github.com/haderech/smite/wal"
)

// pendingKey identifies an in-flight proposal awaiting its block parts.
type pendingKey struct {
	height int64
	round  int32
}

// pendingProposal holds a received ProposalMessage's header until its PartSet
// completes and the full block can be recovered.
type pendingProposal struct {
	msg   *ProposalMessage
	parts *types.PartSet
}

// Engine is the network-facing driver around a ConsensusState: it owns wire
// framing, block part reassembly, and broadcast wiring, leaving ConsensusState
// itself free of any transport concerns.
type Engine struct {
	mu sync.RWMutex

	config *Config

	logger log.Logger

	state    *ConsensusState
	wal      wal.WAL
	privVal  privval.PrivValidator
	executor BlockExecutor

	validatorSet *types.ValidatorSet

	broadcast func([]byte)

	started bool

	pendingMu sync.Mutex
	pending   map[pendingKey]*pendingProposal
}

// NewEngine creates a new consensus engine.
func NewEngine(
	config *Config,
	valSet *types.ValidatorSet,
	pv privval.PrivValidator,
	w wal.WAL,
	executor BlockExecutor,
) *Engine {
	return &Engine{
		config:       config,
		logger:       log.NewNopLogger(),
		validatorSet: valSet,
		privVal:      pv,
		wal:          w,
		executor:     executor,
		pending:      make(map[pendingKey]*pendingProposal),
	}
}

// SetLogger attaches logger to the engine and the ConsensusState it drives.
func (e *Engine) SetLogger(logger log.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
	if e.state != nil {
		e.state.SetLogger(logger)
	}
}

// SetBroadcaster sets the function used to send framed consensus messages to
// peers. The engine itself never knows about peer identities or transports.
func (e *Engine) SetBroadcaster(fn func([]byte)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcast = fn
}

// Start starts the consensus engine at height, seeded with lastCommit from the
// previous height (nil at genesis).
func (e *Engine) Start(height int64, lastCommit *types.Commit) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}

	if e.wal != nil {
		if err := e.wal.Start(); err != nil {
			return fmt.Errorf("failed to start WAL: %w", err)
		}
	}

	e.state = NewConsensusState(e.config, e.validatorSet, e.privVal, e.wal, e.executor)
	e.state.SetLogger(e.logger)
	e.state.OnProposal = e.broadcastProposal
	e.state.OnVote = e.broadcastVote
	e.state.SetStartHeight(height, lastCommit)

	if err := e.state.Start(); err != nil {
		return fmt.Errorf("failed to start consensus state: %w", err)
	}

	e.started = true
	return nil
}

// Stop stops the consensus engine.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return ErrNotStarted
	}
	e.started = false

	if e.state != nil {
		if err := e.state.Stop(); err != nil {
			return fmt.Errorf("failed to stop consensus state: %w", err)
		}
	}

	if e.wal != nil {
		if err := e.wal.Stop(); err != nil {
			return fmt.Errorf("failed to stop WAL: %w", err)
		}
	}

	return nil
}

// broadcastProposal sends a proposal's header plus every block part that
// carries it. Wired as the ConsensusState's OnProposal hook.
func (e *Engine) broadcastProposal(p *types.Proposal) {
	if framed, err := EncodeMessage(proposalMessageFromProposal(p)); err == nil {
		e.send(framed)
	}

	parts, err := types.BlockPartsFromBlock(&p.Block)
	if err != nil {
		return
	}
	for i := uint16(0); i < parts.Total(); i++ {
		part := parts.GetPart(i)
		if part == nil {
			continue
		}
		if framed, err := EncodeMessage(blockPartMessageFromPart(p.Height, p.Round, part)); err == nil {
			e.send(framed)
		}
	}
}

// broadcastVote sends a signed vote. Wired as the ConsensusState's OnVote hook.
func (e *Engine) broadcastVote(v *types.Vote) {
	if framed, err := EncodeMessage(voteMessageFromVote(v)); err == nil {
		e.send(framed)
	}
}

func (e *Engine) send(data []byte) {
	e.mu.RLock()
	fn := e.broadcast
	e.mu.RUnlock()
	if fn != nil {
		fn(data)
	}
}

// HandleConsensusMessage decodes a framed message received from peerID and
// routes it to the consensus state, reassembling proposals from their block
// parts before admitting them.
func (e *Engine) HandleConsensusMessage(peerID string, data []byte) error {
	e.mu.RLock()
	started := e.started
	st := e.state
	e.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	msg, _, err := DecodeMessage(data)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *ProposalMessage:
		return e.handleProposalMessage(m)

	case *BlockPartMessage:
		return e.handleBlockPartMessage(st, m)

	case *VoteMessage:
		st.AddVote(voteFromMessage(m))
		return nil

	default:
		return fmt.Errorf("%w: %T", ErrUnknownMessageType, msg)
	}
}

// handleProposalMessage stashes a proposal's header and opens an empty PartSet
// for it, to be filled in by subsequent BlockPartMessages.
func (e *Engine) handleProposalMessage(m *ProposalMessage) error {
	if m.BlockID.PartSetHeader.Total == 0 {
		return fmt.Errorf("%w: proposal carries no block", ErrInvalidMessage)
	}

	parts, err := types.NewPartSetFromHeader(m.BlockID.PartSetHeader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	e.pendingMu.Lock()
	e.pending[pendingKey{m.Height, m.Round}] = &pendingProposal{msg: m, parts: parts}
	e.pendingMu.Unlock()
	return nil
}

// handleBlockPartMessage adds a part to its pending proposal's PartSet and,
// once complete, recovers the block and admits the full proposal to st.
func (e *Engine) handleBlockPartMessage(st *ConsensusState, m *BlockPartMessage) error {
	key := pendingKey{m.Height, m.Round}

	e.pendingMu.Lock()
	pp, ok := e.pending[key]
	e.pendingMu.Unlock()
	if !ok {
		// The proposal header hasn't arrived yet; drop the part. It will be
		// re-requested once the header is gossiped (or the round times out).
		return nil
	}

	part := &types.BlockPart{Index: m.Index, Bytes: m.Bytes, ProofPath: m.Proof}
	if err := pp.parts.AddPart(part); err != nil && err != types.ErrPartSetAlreadyHas {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if !pp.parts.IsComplete() {
		return nil
	}

	block, err := types.BlockFromParts(pp.parts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	e.pendingMu.Lock()
	delete(e.pending, key)
	e.pendingMu.Unlock()

	st.AddProposal(proposalFromMessage(pp.msg, *block))
	return nil
}

// GetState returns the current consensus height/round/step.
func (e *Engine) GetState() (height int64, round int32, step RoundStep, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return 0, 0, 0, ErrNotStarted
	}

	height, round, step = e.state.GetState()
	return height, round, step, nil
}

// GetValidatorSet returns a copy of the current validator set.
func (e *Engine) GetValidatorSet() *types.ValidatorSet {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.validatorSet == nil {
		return nil
	}

	vsCopy, err := e.validatorSet.Copy()
	if err != nil {
		e.logger.Error("failed to copy validator set", "err", err)
		return nil
	}
	return vsCopy
}

// UpdateValidatorSet updates the validator set, typically after a block
// containing a validator-set change is committed.
func (e *Engine) UpdateValidatorSet(valSet *types.ValidatorSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.validatorSet = valSet
}

// IsValidator reports whether the local node's private validator key belongs
// to the current validator set.
func (e *Engine) IsValidator() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.privVal == nil {
		return false
	}

	pubKey := e.privVal.GetPubKey()
	for _, v := range e.validatorSet.Validators {
		if types.PublicKeyEqual(v.PublicKey, pubKey) {
			return true
		}
	}
	return false
}

// GetProposer returns the proposer for the current round.
func (e *Engine) GetProposer() *types.Validator {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.state == nil {
		return e.validatorSet.Proposer
	}
	_, round, _ := e.state.GetState()
	return e.state.Proposer(round)
}

// ChainID returns the chain ID.
func (e *Engine) ChainID() string {
	return e.config.ChainID
}

// Metrics holds a snapshot of consensus health for monitoring.
type Metrics struct {
	Height           int64
	Round            int32
	Step             string
	Validators       int
	TotalVotingPower int64
	IsValidator      bool
	ProposerName     string
}

// GetMetrics returns a current consensus metrics snapshot.
func (e *Engine) GetMetrics() (*Metrics, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return nil, ErrNotStarted
	}

	height, round, step := e.state.GetState()
	proposer := e.state.Proposer(round)

	proposerName := ""
	if proposer != nil {
		proposerName = types.AccountNameString(proposer.Name)
	}

	return &Metrics{
		Height:           height,
		Round:            round,
		Step:             StepString(step),
		Validators:       e.validatorSet.Size(),
		TotalVotingPower: e.validatorSet.TotalPower,
		IsValidator:      e.IsValidator(),
		ProposerName:     proposerName,
	}, nil
}
