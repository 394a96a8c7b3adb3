package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLoop_DeferAfterEvery(t *testing.T) {
	l := NewLoop(nil)
	var log []string

	l.Defer(func() { log = append(log, "defer") })
	l.After(3, func() { log = append(log, "after") })
	every := l.Every(2, func() { log = append(log, "every") })

	l.Advance(1)
	assert.Equal(t, []string{"defer"}, log)
	l.Advance(1)
	assert.Equal(t, []string{"defer", "every"}, log)
	l.Advance(1)
	assert.Equal(t, []string{"defer", "every", "after"}, log)
	l.Advance(1)
	assert.Equal(t, []string{"defer", "every", "after", "every"}, log)

	require.NoError(t, every.Cancel())
	l.Advance(10)
	assert.Len(t, log, 4)
	assert.Equal(t, 0, l.Pending())
}

func TestHandle_CancelTwiceReportsDone(t *testing.T) {
	l := NewLoop(nil)
	h := l.After(1, func() {})
	l.Advance(1)
	assert.ErrorIs(t, h.Cancel(), ErrHandleDone)

	h = l.Every(1, func() {})
	require.NoError(t, h.Cancel())
	assert.ErrorIs(t, h.Cancel(), ErrHandleDone)
	assert.ErrorIs(t, Handle{}.Cancel(), ErrHandleDone)
}

func TestLoop_CancelFromEarlierCallbackInSameTick(t *testing.T) {
	l := NewLoop(nil)
	ran := false
	var second Handle
	l.After(1, func() { _ = second.Cancel() })
	second = l.After(1, func() { ran = true })
	l.Advance(1)
	assert.False(t, ran)
}

func TestLoop_PanicDoesNotStopTick(t *testing.T) {
	l := NewLoop(nil)
	ran := false
	l.Defer(func() { panic("boom") })
	l.Defer(func() { ran = true })
	l.Advance(1)
	assert.True(t, ran)
}

func TestLoop_RunDrainsPostedWork(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, time.Millisecond) }()

	got := make(chan uint64, 1)
	require.True(t, l.Post(func() { got <- l.CurrentTick() }))
	select {
	case tick := <-got:
		assert.Positive(t, tick)
	case <-time.After(2 * time.Second):
		t.Fatalf("posted work never ran")
	}

	cancel()
	require.NoError(t, <-done)
}
