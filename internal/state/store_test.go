package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToolInvocationEnforcesCeiling(t *testing.T) {
	s := New()
	s.Initialize("sess-1", "miniwob", 3)

	for i := 1; i <= 3; i++ {
		n, err := s.RecordToolInvocation("sess-1", "execute_actions")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := s.RecordToolInvocation("sess-1", "execute_actions")
	require.Error(t, err)
	assert.ErrorIs(t, err, ToolLimitSentinel)
	assert.Equal(t, 4, n)

	snap, err := s.Read("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 4, snap.ToolInvocationCount)
}

func TestCountersMonotonicallyIncrease(t *testing.T) {
	s := New()
	s.Initialize("sess-1", "webarena", 100)

	require.NoError(t, s.RecordActionBatch("sess-1", 2, 150))
	require.NoError(t, s.RecordObservation("sess-1", 500))
	require.NoError(t, s.RecordActionBatch("sess-1", 1, 50))
	require.NoError(t, s.RecordObservation("sess-1", 200))

	snap, err := s.Read("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.ActionCount)
	assert.Equal(t, int64(200), snap.TotalLatencyMs)
	assert.Equal(t, 2, snap.ObservationCount)
	assert.Equal(t, 700, snap.TotalTokens)
}

func TestFinalizeSetsTaskCompleted(t *testing.T) {
	s := New()
	s.Initialize("sess-1", "miniwob", 3)
	require.NoError(t, s.Finalize("sess-1", true, false, true, 1.0))

	snap, err := s.Read("sess-1")
	require.NoError(t, err)
	assert.True(t, snap.TaskCompleted)
	assert.True(t, snap.Done)
	assert.True(t, snap.TaskSuccess)
	assert.Equal(t, 1.0, snap.FinalReward)
}

func TestCleanupCalledImpliesTerminal(t *testing.T) {
	s := New()
	s.Initialize("sess-1", "miniwob", 3)
	require.NoError(t, s.MarkCleanup("sess-1"))

	snap, err := s.Read("sess-1")
	require.NoError(t, err)
	assert.True(t, snap.CleanupCalled)
}

func TestDestroyRemovesEntry(t *testing.T) {
	s := New()
	s.Initialize("sess-1", "miniwob", 3)
	s.Destroy("sess-1")

	_, err := s.Read("sess-1")
	require.Error(t, err)
	var unknown *UnknownSessionError
	require.ErrorAs(t, err, &unknown)
}

func TestPerSessionIndependence(t *testing.T) {
	s := New()
	s.Initialize("sess-a", "miniwob", 100)
	s.Initialize("sess-b", "webarena", 100)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _ = s.RecordToolInvocation("sess-a", "t")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _ = s.RecordToolInvocation("sess-b", "t")
		}
	}()
	wg.Wait()

	snapA, err := s.Read("sess-a")
	require.NoError(t, err)
	snapB, err := s.Read("sess-b")
	require.NoError(t, err)
	assert.Equal(t, 100, snapA.ToolInvocationCount)
	assert.Equal(t, 100, snapB.ToolInvocationCount)
}
