package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendermint/tendermint/libs/log"
)

const (
	// timeoutChannelSize is the buffer size for timeout channels.
	timeoutChannelSize = 100
)

// TimeoutInfo represents a scheduled or fired timeout event.
type TimeoutInfo struct {
	Duration time.Duration
	Height   int64
	Round    int32
	Step     RoundStep
}

// before reports whether ti is lexicographically ordered (height, round, step)
// strictly before other. Used to drop a reschedule for a timeout the ticker has
// already moved past.
func (ti TimeoutInfo) before(other TimeoutInfo) bool {
	if ti.Height != other.Height {
		return ti.Height < other.Height
	}
	if ti.Round != other.Round {
		return ti.Round < other.Round
	}
	return ti.Step < other.Step
}

// TimeoutConfig holds the base durations and per-round deltas for each timed step.
type TimeoutConfig struct {
	Propose        time.Duration
	ProposeDelta   time.Duration
	Prevote        time.Duration
	PrevoteDelta   time.Duration
	Precommit      time.Duration
	PrecommitDelta time.Duration
	Commit         time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Propose:        3000 * time.Millisecond,
		ProposeDelta:   500 * time.Millisecond,
		Prevote:        1000 * time.Millisecond,
		PrevoteDelta:   500 * time.Millisecond,
		Precommit:      1000 * time.Millisecond,
		PrecommitDelta: 500 * time.Millisecond,
		Commit:         1000 * time.Millisecond,
	}
}

// TimeoutTicker is a single-slot scheduler: only one timer is ever outstanding, and
// scheduling a new timeout cancels whatever was pending. A reschedule for a
// (height,round,step) that is not lexicographically newer than the last one
// actually armed is ignored, so a stale retry racing with legitimate progress can't
// rearm an already-superseded timer.
type TimeoutTicker struct {
	mu     sync.Mutex
	config TimeoutConfig
	logger log.Logger

	timer   *time.Timer
	tickCh  chan TimeoutInfo
	tockCh  chan TimeoutInfo
	stopCh  chan struct{}
	running bool

	oldTi TimeoutInfo

	droppedTimeouts uint64
}

// NewTimeoutTicker creates a new TimeoutTicker.
func NewTimeoutTicker(config TimeoutConfig) *TimeoutTicker {
	return &TimeoutTicker{
		config: config,
		logger: log.NewNopLogger(),
		tickCh: make(chan TimeoutInfo, timeoutChannelSize),
		tockCh: make(chan TimeoutInfo, timeoutChannelSize),
		stopCh: make(chan struct{}),
	}
}

// SetLogger attaches a logger.
func (tt *TimeoutTicker) SetLogger(logger log.Logger) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.logger = logger
}

// Start starts the timeout ticker's background goroutine.
func (tt *TimeoutTicker) Start() {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if tt.running {
		return
	}
	tt.running = true

	go tt.run()
}

// Stop stops the timeout ticker.
func (tt *TimeoutTicker) Stop() {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if !tt.running {
		return
	}
	tt.running = false

	close(tt.stopCh)
	if tt.timer != nil {
		tt.timer.Stop()
	}
}

// Chan returns the channel that delivers fired timeout events.
func (tt *TimeoutTicker) Chan() <-chan TimeoutInfo {
	return tt.tockCh
}

// ScheduleTimeout requests a new timeout be armed.
func (tt *TimeoutTicker) ScheduleTimeout(ti TimeoutInfo) {
	tt.tickCh <- ti
}

func (tt *TimeoutTicker) run() {
	for {
		select {
		case <-tt.stopCh:
			return

		case ti := <-tt.tickCh:
			tt.mu.Lock()

			if !tt.oldTi.before(ti) && (tt.oldTi != TimeoutInfo{}) {
				tt.mu.Unlock()
				continue
			}

			if tt.timer != nil {
				tt.timer.Stop()
			}

			duration := tt.calculateDuration(ti)
			ti.Duration = duration
			tt.oldTi = ti
			tiCopy := ti

			tt.timer = time.AfterFunc(duration, func() {
				select {
				case tt.tockCh <- tiCopy:
				case <-tt.stopCh:
				default:
					count := atomic.AddUint64(&tt.droppedTimeouts, 1)
					tt.logger.Error("dropped timeout, tock channel full",
						"height", tiCopy.Height, "round", tiCopy.Round, "step", StepString(tiCopy.Step),
						"total_dropped", count)
				}
			})
			tt.mu.Unlock()
		}
	}
}

func (tt *TimeoutTicker) calculateDuration(ti TimeoutInfo) time.Duration {
	switch ti.Step {
	case RoundStepPropose:
		return tt.config.Propose + time.Duration(ti.Round)*tt.config.ProposeDelta
	case RoundStepPrevoteWait:
		return tt.config.Prevote + time.Duration(ti.Round)*tt.config.PrevoteDelta
	case RoundStepPrecommitWait:
		return tt.config.Precommit + time.Duration(ti.Round)*tt.config.PrecommitDelta
	case RoundStepCommit:
		return tt.config.Commit
	default:
		return time.Second
	}
}

// Propose returns the propose timeout for a round.
func (tt *TimeoutTicker) Propose(round int32) time.Duration {
	return tt.config.Propose + time.Duration(round)*tt.config.ProposeDelta
}

// Prevote returns the prevote-wait timeout for a round.
func (tt *TimeoutTicker) Prevote(round int32) time.Duration {
	return tt.config.Prevote + time.Duration(round)*tt.config.PrevoteDelta
}

// Precommit returns the precommit-wait timeout for a round.
func (tt *TimeoutTicker) Precommit(round int32) time.Duration {
	return tt.config.Precommit + time.Duration(round)*tt.config.PrecommitDelta
}

// Commit returns the commit timeout.
func (tt *TimeoutTicker) Commit() time.Duration {
	return tt.config.Commit
}

// DroppedTimeouts returns the number of timeouts dropped due to a full channel.
func (tt *TimeoutTicker) DroppedTimeouts() uint64 {
	return atomic.LoadUint64(&tt.droppedTimeouts)
}
