package session

import (
	"context"
	"errors"
	"testing"

	"github.com/davsync/davsync/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_SingleSuccessfulRun(t *testing.T) {
	invocations := 0
	s := NewRetrySupervisor(3)

	result, err := s.Run(context.Background(), func(ctx context.Context) (engine.Result, error) {
		invocations++
		return engine.Result{Success: true}, nil
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, invocations)
	assert.Equal(t, 0, s.Restarts())
	assert.Equal(t, StateCompleted, s.State())
}

func TestSupervisor_RestartBound(t *testing.T) {
	// an engine that always wants another sync runs exactly N+1 times
	for _, maxRestarts := range []int{0, 1, 3, 5} {
		invocations := 0
		s := NewRetrySupervisor(maxRestarts)

		result, err := s.Run(context.Background(), func(ctx context.Context) (engine.Result, error) {
			invocations++
			return engine.Result{Success: true, AnotherSyncNeeded: true}, nil
		})

		require.NoError(t, err)
		assert.True(t, result.AnotherSyncNeeded)
		assert.Equal(t, maxRestarts+1, invocations, "maxRestarts=%d", maxRestarts)
		assert.Equal(t, maxRestarts, s.Restarts())
		assert.Equal(t, StateRestartExhausted, s.State())
	}
}

func TestSupervisor_RestartsUntilSettled(t *testing.T) {
	invocations := 0
	s := NewRetrySupervisor(3)

	result, err := s.Run(context.Background(), func(ctx context.Context) (engine.Result, error) {
		invocations++
		return engine.Result{Success: true, AnotherSyncNeeded: invocations < 3}, nil
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, invocations)
	assert.Equal(t, 2, s.Restarts())
	assert.Equal(t, StateCompleted, s.State())
}

func TestSupervisor_FailureWithoutRestartRequest(t *testing.T) {
	s := NewRetrySupervisor(3)

	result, err := s.Run(context.Background(), func(ctx context.Context) (engine.Result, error) {
		return engine.Result{Success: false}, nil
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, StateCompleted, s.State())
}

func TestSupervisor_PhaseErrorAborts(t *testing.T) {
	boom := errors.New("exclude list unreadable")
	invocations := 0
	s := NewRetrySupervisor(3)

	_, err := s.Run(context.Background(), func(ctx context.Context) (engine.Result, error) {
		invocations++
		return engine.Result{}, boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, invocations)
}

func TestSupervisorState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "restart exhausted", StateRestartExhausted.String())
}
