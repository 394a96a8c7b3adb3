package pause

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/sandbox"
	"voxelhud.ai/internal/sim/sched"
	"voxelhud.ai/internal/sim/tuning"
)

type clears map[string]int

func (c clears) Clear(o host.Observer) { c[o.ID()]++ }

func setup(t *testing.T) (*Manager, *sched.Loop, clears, *sandbox.Observer) {
	t.Helper()
	loop := sched.NewLoop(nil)
	ui := clears{}
	m := New(loop, ui, tuning.Defaults().Pause, nil)
	o := sandbox.NewObserver("steve")
	o.Pos = mgl64.Vec3{10, 64, 10}
	o.Rot = mgl64.Vec2{10, 170}
	return m, loop, ui, o
}

func TestPause_StaysPausedUnderThresholds(t *testing.T) {
	m, loop, ui, o := setup(t)
	m.Pause(o)
	require.True(t, m.IsPaused(o))
	assert.Equal(t, 1, ui[o.ID()])

	o.Pos = o.Pos.Add(mgl64.Vec3{1.0, 0, 1.0})
	o.Rot = mgl64.Vec2{30, -170}
	for i := 0; i < 20; i++ {
		loop.Advance(10)
		assert.True(t, m.IsPaused(o))
	}
	assert.True(t, m.Watching(o.ID()))
	assert.Equal(t, 1, ui[o.ID()])
}

func TestPause_ResumesOnRotationAlone(t *testing.T) {
	m, loop, ui, o := setup(t)
	var changes []bool
	m.OnChange = func(_ string, paused bool) { changes = append(changes, paused) }
	m.Pause(o)

	o.Rot = mgl64.Vec2{10, 170 + 36}
	loop.Advance(9)
	assert.True(t, m.IsPaused(o), "not rechecked yet")
	loop.Advance(1)
	assert.False(t, m.IsPaused(o))
	assert.False(t, m.Watching(o.ID()))
	assert.Zero(t, loop.Pending())
	assert.Equal(t, 2, ui[o.ID()])
	assert.Equal(t, []bool{true, false}, changes)
}

func TestPause_ResumesOnDisplacement(t *testing.T) {
	m, loop, _, o := setup(t)
	m.Pause(o)
	o.Pos = o.Pos.Add(mgl64.Vec3{0, 0, 1.6})
	loop.Advance(10)
	assert.False(t, m.IsPaused(o))
}

func TestPause_RepauseReanchors(t *testing.T) {
	m, loop, _, o := setup(t)
	m.Pause(o)
	o.Pos = o.Pos.Add(mgl64.Vec3{1, 0, 0})
	m.Pause(o)
	assert.Equal(t, 1, loop.Pending(), "one watcher per observer")
	o.Pos = o.Pos.Add(mgl64.Vec3{1, 0, 0})
	loop.Advance(10)
	assert.True(t, m.IsPaused(o), "measured from the new anchor")
}

func TestLeave_CancelsWatcherAndClearsState(t *testing.T) {
	m, loop, _, o := setup(t)
	m.Pause(o)
	require.Equal(t, 1, loop.Pending())

	m.Leave(o)
	assert.Zero(t, loop.Pending())
	assert.False(t, m.IsPaused(o))
	_, ok := o.Props.Get(KeyActive)
	assert.False(t, ok)
	m.Leave(o)
}

func TestPause_InvalidObserverStopsWatcher(t *testing.T) {
	m, loop, _, o := setup(t)
	m.Pause(o)
	o.Left = true
	loop.Advance(10)
	assert.Zero(t, loop.Pending())
	assert.False(t, m.Watching(o.ID()))
}

func TestRejoin_RestartsWatcherFromPersistedFlag(t *testing.T) {
	m, loop, _, o := setup(t)
	require.NoError(t, o.Props.Set(KeyActive, host.Bool(true)))
	m.Rejoin(o)
	assert.True(t, m.Watching(o.ID()))
	m.Rejoin(o)
	assert.Equal(t, 1, loop.Pending())
}

func TestDetach_KeepsFlag(t *testing.T) {
	m, loop, _, o := setup(t)
	m.Pause(o)
	m.Detach(o)
	assert.True(t, m.IsPaused(o))
	assert.False(t, m.Watching(o.ID()))
	assert.Zero(t, loop.Pending())
}

func TestMoved(t *testing.T) {
	tune := tuning.Defaults().Pause
	at := mgl64.Vec3{}
	rot := mgl64.Vec2{0, 179}
	assert.False(t, Moved(at, rot, at, mgl64.Vec2{0, -170}, tune), "yaw wraps")
	assert.True(t, Moved(at, rot, at, mgl64.Vec2{36, 179}, tune))
	assert.True(t, Moved(at, rot, mgl64.Vec3{1.5, 0, 0.1}, rot, tune))
	assert.False(t, Moved(at, rot, mgl64.Vec3{1.5, 0, 0}, rot, tune))
}
