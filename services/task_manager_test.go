package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTaskManagerForTest(t *testing.T) *TaskManager {
	t.Helper()
	tm, err := NewTaskManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Shutdown() })
	return tm
}

func TestSubmitAndResult(t *testing.T) {
	tm := newTaskManagerForTest(t)

	id, err := tm.Submit("unit", 0, func(ctx context.Context) (any, error) {
		return "done", nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := tm.Result(id)
		return err == nil && status.Ready
	}, 2*time.Second, 10*time.Millisecond)

	status, err := tm.Result(id)
	require.NoError(t, err)
	assert.True(t, status.Successful)
	assert.Equal(t, "done", status.Value)
}

func TestFailedTaskIsReadyButNotSuccessful(t *testing.T) {
	tm := newTaskManagerForTest(t)

	id, err := tm.Submit("unit", 0, func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, _ := tm.Result(id)
		return status.Ready
	}, 2*time.Second, 10*time.Millisecond)

	status, err := tm.Result(id)
	require.NoError(t, err)
	assert.False(t, status.Successful)
}

func TestPanickingTaskIsRecovered(t *testing.T) {
	tm := newTaskManagerForTest(t)

	id, err := tm.Submit("unit", 0, func(ctx context.Context) (any, error) {
		panic("unexpected")
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, _ := tm.Result(id)
		return status.Ready
	}, 2*time.Second, 10*time.Millisecond)

	status, err := tm.Result(id)
	require.NoError(t, err)
	assert.False(t, status.Successful)
}

func TestCancelPendingTask(t *testing.T) {
	tm := newTaskManagerForTest(t)

	ran := make(chan struct{})
	id, err := tm.Submit("unit", time.Hour, func(ctx context.Context) (any, error) {
		close(ran)
		return nil, nil
	})
	require.NoError(t, err)
	require.NoError(t, tm.Cancel(id))

	status, err := tm.Result(id)
	require.NoError(t, err)
	assert.False(t, status.Ready)

	select {
	case <-ran:
		t.Fatal("cancelled task should never run")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelObservedByRunningTask(t *testing.T) {
	tm := newTaskManagerForTest(t)

	started := make(chan struct{})
	id, err := tm.Submit("unit", 0, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task never started")
	}
	require.NoError(t, tm.Cancel(id))

	require.Eventually(t, func() bool {
		status, _ := tm.Result(id)
		return status.Ready && !status.Successful
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResultUnknownTask(t *testing.T) {
	tm := newTaskManagerForTest(t)

	_, err := tm.Result("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, tm.Cancel("nope"), ErrTaskNotFound)
}
