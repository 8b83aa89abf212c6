package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoroutineBackendRunsToCompletionWithoutYield(t *testing.T) {
	b := NewGoroutineBackend(4)
	ran := false
	ok := b.Spawn(func() { ran = true })
	require.True(t, ok)
	require.True(t, ran)
	require.Equal(t, 0, b.RunningCount())
}

func TestGoroutineBackendYieldResumeRoundTrip(t *testing.T) {
	b := NewGoroutineBackend(4)
	var steps []int

	var self chan struct{}
	_ = self

	var tk interface {
		Yield()
		Resume()
		Done() bool
	}

	started := make(chan struct{})
	b.Spawn(func() {
		tk = b.ThisTask()
		steps = append(steps, 1)
		close(started)
		tk.Yield()
		steps = append(steps, 3)
	})
	<-started
	require.Equal(t, []int{1}, steps)
	require.False(t, tk.Done())

	tk.Resume()
	require.Equal(t, []int{1, 3}, steps)
	require.True(t, tk.Done())
}

func TestGoroutineBackendRejectsOverCapacity(t *testing.T) {
	b := NewGoroutineBackend(1)
	block := make(chan struct{})
	release := make(chan struct{})
	go func() {
		b.Spawn(func() {
			close(block)
			<-release
		})
	}()
	<-block
	ok := b.Spawn(func() {})
	require.False(t, ok, "backend at capacity must reject Spawn")
	close(release)
}
