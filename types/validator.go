package types

import (
	"errors"
	"fmt"
	"sort"
)

// Validator is a single member of a ValidatorSet: an identity, a public key, a
// voting power, and a proposer priority that rotates deterministically each round.
type Validator struct {
	Name             AccountName `msgpack:"name"`
	Index            uint16      `msgpack:"index"`
	PublicKey        PublicKey   `msgpack:"public_key"`
	VotingPower      int64       `msgpack:"voting_power"`
	ProposerPriority int64       `msgpack:"proposer_priority"`
}

// ValidatorSetData is the wire-serializable form of a ValidatorSet.
type ValidatorSetData struct {
	Validators    []Validator `msgpack:"validators"`
	ProposerIndex uint16      `msgpack:"proposer_index"`
	TotalPower    int64       `msgpack:"total_power"`
}

const (
	// MaxValidators is the maximum number of validators in a set, limited by the
	// uint16 index.
	MaxValidators = 65535

	// MaxTotalVotingPower bounds total voting power to keep priority arithmetic
	// free of overflow.
	MaxTotalVotingPower = int64(1) << 60

	// PriorityWindowSize bounds individual priorities during rotation.
	PriorityWindowSize = MaxTotalVotingPower * 2
)

var (
	ErrValidatorNotFound  = errors.New("validator not found")
	ErrDuplicateValidator = errors.New("duplicate validator")
	ErrEmptyValidatorSet  = errors.New("empty validator set")
	ErrInvalidVotingPower = errors.New("invalid voting power")
	ErrTooManyValidators  = errors.New("too many validators")
	ErrTotalPowerOverflow = errors.New("total voting power overflow")
	ErrEmptyValidatorName = errors.New("validator has empty name")
)

// ValidatorSet is an ordered, indexed collection of validators together with the
// deterministically rotating proposer selection (spec §3/§4.5.1).
type ValidatorSet struct {
	Validators []*Validator
	Proposer   *Validator
	TotalPower int64

	byName  map[string]*Validator
	byIndex map[uint16]*Validator
}

// NewValidatorSet builds a ValidatorSet from validators, assigning sequential
// indices and validating names/powers. If every supplied priority is zero, initial
// priorities are seeded from voting power and centered around zero.
func NewValidatorSet(validators []*Validator) (*ValidatorSet, error) {
	if len(validators) == 0 {
		return nil, ErrEmptyValidatorSet
	}
	if len(validators) > MaxValidators {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyValidators, len(validators), MaxValidators)
	}

	vs := &ValidatorSet{
		Validators: make([]*Validator, len(validators)),
		byName:     make(map[string]*Validator),
		byIndex:    make(map[uint16]*Validator),
	}

	for i, v := range validators {
		if IsAccountNameEmpty(v.Name) {
			return nil, fmt.Errorf("%w: validator %d", ErrEmptyValidatorName, i)
		}
		if v.VotingPower <= 0 {
			return nil, ErrInvalidVotingPower
		}
		name := AccountNameString(v.Name)
		if _, exists := vs.byName[name]; exists {
			return nil, ErrDuplicateValidator
		}
		if vs.TotalPower > MaxTotalVotingPower-v.VotingPower {
			return nil, fmt.Errorf("%w: exceeds %d", ErrTotalPowerOverflow, MaxTotalVotingPower)
		}

		val := &Validator{
			Name:             v.Name,
			Index:            uint16(i),
			PublicKey:        v.PublicKey,
			VotingPower:      v.VotingPower,
			ProposerPriority: v.ProposerPriority,
		}
		vs.Validators[i] = val
		vs.byName[name] = val
		vs.byIndex[uint16(i)] = val
		vs.TotalPower += v.VotingPower
	}

	allZero := true
	for _, v := range vs.Validators {
		if v.ProposerPriority != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		vs.initProposerPriorities()
	}

	vs.Proposer = vs.getProposer()
	return vs, nil
}

func (vs *ValidatorSet) initProposerPriorities() {
	for _, v := range vs.Validators {
		v.ProposerPriority = v.VotingPower
	}
	vs.centerPriorities()
}

// centerPriorities re-centers priorities around zero. Integer division loses at
// most (len-1) of total priority mass, negligible relative to voting power.
func (vs *ValidatorSet) centerPriorities() {
	if len(vs.Validators) == 0 {
		return
	}
	var sum int64
	for _, v := range vs.Validators {
		sum += v.ProposerPriority
	}
	avg := sum / int64(len(vs.Validators))
	for _, v := range vs.Validators {
		v.ProposerPriority -= avg
	}
}

func (vs *ValidatorSet) getProposer() *Validator {
	if len(vs.Validators) == 0 {
		return nil
	}
	var proposer *Validator
	for _, v := range vs.Validators {
		if proposer == nil || v.ProposerPriority > proposer.ProposerPriority {
			proposer = v
		}
	}
	return proposer
}

// GetByName returns the validator with the given name, or nil.
func (vs *ValidatorSet) GetByName(name string) *Validator {
	return vs.byName[name]
}

// GetByIndex returns the validator at the given index, or nil.
func (vs *ValidatorSet) GetByIndex(index uint16) *Validator {
	return vs.byIndex[index]
}

// Size returns the number of validators in the set.
func (vs *ValidatorSet) Size() int {
	return len(vs.Validators)
}

// TwoThirdsMajority returns the minimum voting power that constitutes a strict 2/3+
// majority of TotalPower, computed without overflowing int64 (spec §3's
// has_two_thirds invariant).
func (vs *ValidatorSet) TwoThirdsMajority() int64 {
	third := vs.TotalPower / 3
	remainder := vs.TotalPower % 3

	twoThirds := third + third
	if remainder == 2 {
		twoThirds++
	}
	return twoThirds + 1
}

// IncrementProposerPriority advances the proposer-priority rotation by `times`
// rounds in place and recomputes the current proposer (spec §4.5.1: "increments
// proposer priority by (r - prior_round)").
func (vs *ValidatorSet) IncrementProposerPriority(times int32) {
	if len(vs.Validators) == 0 {
		return
	}

	for i := int32(0); i < times; i++ {
		for _, v := range vs.Validators {
			newPriority := v.ProposerPriority + v.VotingPower
			if newPriority > PriorityWindowSize/2 {
				newPriority = PriorityWindowSize / 2
			}
			v.ProposerPriority = newPriority
		}

		proposer := vs.getProposer()
		if proposer != nil {
			newPriority := proposer.ProposerPriority - vs.TotalPower
			if newPriority < -PriorityWindowSize/2 {
				newPriority = -PriorityWindowSize / 2
			}
			proposer.ProposerPriority = newPriority
		}
	}

	vs.centerPriorities()
	vs.Proposer = vs.getProposer()
}

// WithIncrementedPriority returns a copy of vs with priorities advanced by `times`
// rounds, leaving vs unmodified. Prefer this over IncrementProposerPriority when the
// caller does not hold the consensus mutex exclusively.
func (vs *ValidatorSet) WithIncrementedPriority(times int32) (*ValidatorSet, error) {
	newVS, err := vs.Copy()
	if err != nil {
		return nil, err
	}
	newVS.IncrementProposerPriority(times)
	return newVS, nil
}

// Copy returns a deep copy of vs, preserving priorities exactly (unlike
// NewValidatorSet, which would reseed priorities if they all happened to be zero).
func (vs *ValidatorSet) Copy() (*ValidatorSet, error) {
	validators := make([]*Validator, len(vs.Validators))
	for i, v := range vs.Validators {
		nameCopy := CopyAccountName(v.Name)

		var pubKeyCopy PublicKey
		if len(v.PublicKey.Data) > 0 {
			pubKeyCopy.Data = make([]byte, len(v.PublicKey.Data))
			copy(pubKeyCopy.Data, v.PublicKey.Data)
		}

		validators[i] = &Validator{
			Name:             nameCopy,
			Index:            v.Index,
			PublicKey:        pubKeyCopy,
			VotingPower:      v.VotingPower,
			ProposerPriority: v.ProposerPriority,
		}
	}

	newVS := &ValidatorSet{
		Validators: validators,
		TotalPower: vs.TotalPower,
		byName:     make(map[string]*Validator),
		byIndex:    make(map[uint16]*Validator),
	}
	for _, v := range validators {
		newVS.byName[AccountNameString(v.Name)] = v
		newVS.byIndex[v.Index] = v
	}
	if vs.Proposer != nil {
		newVS.Proposer = newVS.byIndex[vs.Proposer.Index]
	}

	return newVS, nil
}

// ToData converts vs to its wire-serializable form.
func (vs *ValidatorSet) ToData() *ValidatorSetData {
	validators := make([]Validator, len(vs.Validators))
	for i, v := range vs.Validators {
		validators[i] = *v
	}

	var proposerIndex uint16
	if vs.Proposer != nil {
		proposerIndex = vs.Proposer.Index
	}

	return &ValidatorSetData{
		Validators:    validators,
		ProposerIndex: proposerIndex,
		TotalPower:    vs.TotalPower,
	}
}

// ValidatorSetFromData reconstructs a ValidatorSet from its wire form.
func ValidatorSetFromData(data *ValidatorSetData) (*ValidatorSet, error) {
	validators := make([]*Validator, len(data.Validators))
	for i := range data.Validators {
		validators[i] = &data.Validators[i]
	}

	vs, err := NewValidatorSet(validators)
	if err != nil {
		return nil, err
	}
	if int(data.ProposerIndex) < len(vs.Validators) {
		vs.Proposer = vs.Validators[data.ProposerIndex]
	}
	return vs, nil
}

// Hash computes a deterministic hash of the validator set's composition and its
// current proposer. Proposer priorities are excluded, but the proposer's position
// in the name-sorted list is included, so two sets with identical membership hash
// identically only while they name the same proposer.
func (vs *ValidatorSet) Hash() Hash {
	sorted := make([]*Validator, len(vs.Validators))
	copy(sorted, vs.Validators)
	sort.Slice(sorted, func(i, j int) bool {
		return AccountNameString(sorted[i].Name) < AccountNameString(sorted[j].Name)
	})

	validators := make([]Validator, len(sorted))
	for i, v := range sorted {
		validators[i] = Validator{
			Name:             v.Name,
			Index:            v.Index,
			PublicKey:        v.PublicKey,
			VotingPower:      v.VotingPower,
			ProposerPriority: 0,
		}
	}

	var proposerIndex uint16
	if vs.Proposer != nil {
		proposerName := AccountNameString(vs.Proposer.Name)
		for i, v := range sorted {
			if AccountNameString(v.Name) == proposerName {
				proposerIndex = uint16(i)
				break
			}
		}
	}

	data := &ValidatorSetData{
		Validators:    validators,
		ProposerIndex: proposerIndex,
		TotalPower:    vs.TotalPower,
	}

	encoded, err := Marshal(data)
	if err != nil {
		panic(fmt.Sprintf("CONSENSUS CRITICAL: failed to marshal validator set for hash: %v", err))
	}
	return HashBytes(encoded)
}
