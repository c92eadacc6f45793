package session

import (
	"context"
	"log/slog"

	"github.com/davsync/davsync/internal/engine"
)

// SupervisorState is the retry supervisor's state machine position.
type SupervisorState int

const (
	StateIdle SupervisorState = iota
	StateRunning
	StateCompleted
	StateNeedsRestart
	StateRestartExhausted
)

func (s SupervisorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateNeedsRestart:
		return "needs restart"
	case StateRestartExhausted:
		return "restart exhausted"
	default:
		return "unknown"
	}
}

// SyncPhase runs one full sync pass and reports its terminal result. A
// non-nil error aborts supervision; engine-level failures are carried
// in the result instead.
type SyncPhase func(ctx context.Context) (engine.Result, error)

// RetrySupervisor drives the sync phase to completion, re-invoking it
// while the engine keeps requesting a follow-up sync, up to the
// configured maximum. Restarts happen immediately, with no backoff;
// each one is a brand-new invocation issued after the previous run has
// fully finished.
type RetrySupervisor struct {
	maxRestarts int
	restarts    int
	state       SupervisorState
}

func NewRetrySupervisor(maxRestarts int) *RetrySupervisor {
	return &RetrySupervisor{
		maxRestarts: maxRestarts,
		state:       StateIdle,
	}
}

// Run loops the phase until it completes without requesting a restart
// or the restart budget runs out. The last result is returned either
// way.
func (s *RetrySupervisor) Run(ctx context.Context, phase SyncPhase) (engine.Result, error) {
	for {
		s.state = StateRunning

		result, err := phase(ctx)
		if err != nil {
			s.state = StateCompleted
			return result, err
		}

		if result.AnotherSyncNeeded {
			if s.restarts < s.maxRestarts {
				s.restarts++
				s.state = StateNeedsRestart
				slog.Debug("restarting sync, another sync is needed", "restart", s.restarts)
				continue
			}
			s.state = StateRestartExhausted
			slog.Warn("another sync is needed, but restart count is exceeded", "restarts", s.restarts)
			return result, nil
		}

		s.state = StateCompleted
		return result, nil
	}
}

// Restarts returns how many restarts were performed.
func (s *RetrySupervisor) Restarts() int {
	return s.restarts
}

// State returns the supervisor's final state machine position.
func (s *RetrySupervisor) State() SupervisorState {
	return s.state
}
