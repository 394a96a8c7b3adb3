// Package pause suspends HUD updates while an observer uses a conflicting screen, such as a
// chest UI, and resumes them once the observer moves or turns away.
package pause

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/sched"
	"voxelhud.ai/internal/sim/tuning"
)

// KeyActive is the persisted pause flag.
const KeyActive = "pause:active"

// UI is cleared on every transition, since what was shown may be stale.
type UI interface {
	Clear(o host.Observer)
}

type watcher struct {
	anchor mgl64.Vec3
	rot    mgl64.Vec2
	handle sched.Handle
}

type Manager struct {
	sched    sched.Scheduler
	ui       UI
	tune     tuning.PauseTuning
	log      *zap.Logger
	watchers map[string]*watcher

	// OnChange, if set, is told about every transition.
	OnChange func(observerID string, paused bool)
}

func New(s sched.Scheduler, ui UI, tune tuning.PauseTuning, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{sched: s, ui: ui, tune: tune, log: logger.Named("pause"), watchers: map[string]*watcher{}}
}

func (m *Manager) IsPaused(o host.Observer) bool {
	v, _ := host.GetBool(o.Properties(), KeyActive)
	return v
}

// Watching reports whether a resume watcher is live for the observer.
func (m *Manager) Watching(observerID string) bool {
	w, ok := m.watchers[observerID]
	return ok && w.handle.Live()
}

// Pause moves the observer to PAUSED and anchors the resume watcher at its current pose.
// Pausing an already paused observer re-anchors it.
func (m *Manager) Pause(o host.Observer) {
	if err := o.Properties().Set(KeyActive, host.Bool(true)); err != nil {
		m.log.Warn("persist pause flag", zap.String("observer", o.ID()), zap.Error(err))
	}
	m.ui.Clear(o)
	m.watch(o)
	m.notify(o.ID(), true)
}

// Rejoin restarts the watcher for an observer whose persisted flag survived a restart.
func (m *Manager) Rejoin(o host.Observer) {
	if m.IsPaused(o) && !m.Watching(o.ID()) {
		m.watch(o)
	}
}

func (m *Manager) watch(o host.Observer) {
	m.stop(o.ID())
	w := &watcher{anchor: o.Location(), rot: o.Rotation()}
	w.handle = m.sched.Every(m.tune.RecheckTicks, func() { m.check(o) })
	m.watchers[o.ID()] = w
}

func (m *Manager) check(o host.Observer) {
	if !o.Valid() {
		m.Leave(o)
		return
	}
	w, ok := m.watchers[o.ID()]
	if !ok {
		return
	}
	if !Moved(w.anchor, w.rot, o.Location(), o.Rotation(), m.tune) {
		return
	}
	m.resume(o)
}

func (m *Manager) resume(o host.Observer) {
	if err := o.Properties().Delete(KeyActive); err != nil {
		m.log.Warn("clear pause flag", zap.String("observer", o.ID()), zap.Error(err))
	}
	m.ui.Clear(o)
	m.stop(o.ID())
	m.notify(o.ID(), false)
}

// Leave cancels the watcher and drops the persisted state of a departing observer.
func (m *Manager) Leave(o host.Observer) {
	m.stop(o.ID())
	if err := o.Properties().Delete(KeyActive); err != nil {
		m.log.Warn("clear pause flag", zap.String("observer", o.ID()), zap.Error(err))
	}
}

// Detach cancels the watcher but keeps the persisted flag, for shutdown. A later Rejoin
// picks the observer up again.
func (m *Manager) Detach(o host.Observer) {
	m.stop(o.ID())
}

func (m *Manager) stop(id string) {
	w, ok := m.watchers[id]
	if !ok {
		return
	}
	delete(m.watchers, id)
	if err := w.handle.Cancel(); err != nil && !errors.Is(err, sched.ErrHandleDone) {
		m.log.Warn("cancel watcher", zap.String("observer", id), zap.Error(err))
	} else if err != nil {
		m.log.Debug("watcher already finished", zap.String("observer", id))
	}
}

func (m *Manager) notify(id string, paused bool) {
	if m.OnChange != nil {
		m.OnChange(id, paused)
	}
}

// Moved reports whether the pose left the thresholds around the anchor: displacement beyond
// Distance, or pitch or yaw turned beyond AngleDegrees.
func Moved(anchor mgl64.Vec3, rot mgl64.Vec2, pos mgl64.Vec3, now mgl64.Vec2, t tuning.PauseTuning) bool {
	if pos.Sub(anchor).Len() > t.Distance {
		return true
	}
	if math.Abs(now[0]-rot[0]) > t.AngleDegrees {
		return true
	}
	return math.Abs(wrapDegrees(now[1]-rot[1])) > t.AngleDegrees
}

// wrapDegrees maps d into [-180, 180).
func wrapDegrees(d float64) float64 {
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}
