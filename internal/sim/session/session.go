// Package session owns one HUD pipeline per world: it pulses every joined observer through
// scan, assess, finalize, mirror and present, and routes block interactions to the pause
// manager. All methods must be called on the loop goroutine.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"voxelhud.ai/internal/sim/catalogs"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/look"
	"voxelhud.ai/internal/sim/mirror"
	"voxelhud.ai/internal/sim/pause"
	"voxelhud.ai/internal/sim/sched"
	"voxelhud.ai/internal/sim/settings"
	"voxelhud.ai/internal/sim/signature"
	"voxelhud.ai/internal/sim/tags"
	"voxelhud.ai/internal/sim/tuning"
	"voxelhud.ai/internal/sim/ui"
)

// Loop is the scheduler the session runs on.
type Loop interface {
	sched.Scheduler
	CurrentTick() uint64
}

type Deps struct {
	World    host.World
	Display  host.Display
	Factory  host.ItemFactory
	Catalogs *catalogs.Registry
	Tuning   tuning.Tuning
	Loop     Loop
	Logger   *zap.Logger

	// Recorder, if set, receives every mirror event.
	Recorder mirror.Recorder
	// Registerer, if set, gets the prometheus collectors.
	Registerer prometheus.Registerer
}

type member struct {
	o       host.Observer
	restore sched.Handle
}

type stats struct {
	pulses, renders, skipped, clears     uint64
	applies, rollbacks, restores, faults uint64
}

type Session struct {
	loop Loop
	tune tuning.Tuning
	log  *zap.Logger

	scanner  *look.Scanner
	pipeline *look.Pipeline
	mirror   *mirror.Mirror
	sigs     *signature.Store
	pause    *pause.Manager
	ui       *ui.Controller

	members map[string]*member
	pulse   sched.Handle

	stats   stats
	prom    *promSet
	metrics atomic.Value
}

func New(d Deps) (*Session, error) {
	if d.World == nil || d.Display == nil || d.Factory == nil || d.Catalogs == nil || d.Loop == nil {
		return nil, errors.New("session: missing dependency")
	}
	if err := d.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("session: tuning: %w", err)
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var opts []mirror.Option
	if d.Recorder != nil {
		opts = append(opts, mirror.WithRecorder(d.Recorder))
	}
	m := mirror.New(d.Tuning.Slots, d.Tuning.Backup, d.Factory, log, opts...)
	entities := tags.NewEntityHandler(d.Catalogs, tags.EntityOptions{
		EffectTicksPerSecond: d.Tuning.EffectTicksPerSecond,
		MaxResolvedEffects:   d.Tuning.MaxResolvedEffects,
	}, log.Named("tags"))
	controller := ui.NewController(ui.NewBuilder(d.Catalogs, d.Tuning.Overlay), d.Display, d.Loop, log)

	s := &Session{
		loop:     d.Loop,
		tune:     d.Tuning,
		log:      log.Named("session"),
		scanner:  look.NewScanner(d.World, d.Tuning.RayDistance, log),
		pipeline: look.NewPipeline(d.Catalogs, tags.NewBlockHandler(d.Catalogs), entities, m, d.Factory, log),
		mirror:   m,
		sigs:     signature.New(),
		pause:    pause.New(d.Loop, controller, d.Tuning.Pause, log),
		ui:       controller,
		members:  map[string]*member{},
		prom:     newPromSet(d.Registerer),
	}
	s.pause.OnChange = s.pauseChanged
	s.publish()
	return s, nil
}

// Start schedules the pulse. Calling it twice is a no-op.
func (s *Session) Start() {
	if s.pulse.Live() {
		return
	}
	s.pulse = s.loop.Every(s.tune.PulseTicks, s.Pulse)
}

// Close stops the pulse, flushes every outstanding borrow and detaches pause watchers. Pause
// flags stay persisted so a restarted session resumes them on Join.
func (s *Session) Close() {
	if err := s.pulse.Cancel(); err != nil && !errors.Is(err, sched.ErrHandleDone) {
		s.log.Warn("cancel pulse", zap.Error(err))
	}
	for _, id := range s.memberIDs() {
		mb := s.members[id]
		s.flushRestore(mb)
		s.pause.Detach(mb.o)
		delete(s.members, id)
	}
	s.publish()
}

// Join registers an observer. A borrow left behind by a crash is restored first, and a pause
// persisted before a restart gets its watcher back.
func (s *Session) Join(o host.Observer) {
	if _, ok := s.members[o.ID()]; ok {
		return
	}
	mb := &member{o: o}
	s.members[o.ID()] = mb
	if mirror.Pending(o) {
		s.log.Info("restoring borrow left from previous session", zap.String("observer", o.ID()))
		s.restoreNow(mb)
	}
	s.pause.Rejoin(o)
	if err := s.sigs.Forget(o); err != nil {
		s.log.Warn("forget signature", zap.String("observer", o.ID()), zap.Error(err))
	}
	s.log.Info("observer joined", zap.String("observer", o.ID()), zap.String("name", o.Name()))
	s.publish()
}

// Leave flushes the observer's borrow, stops its pause watcher and clears its overlay.
func (s *Session) Leave(o host.Observer) {
	mb, ok := s.members[o.ID()]
	if !ok {
		return
	}
	delete(s.members, o.ID())
	s.flushRestore(mb)
	s.pause.Leave(o)
	if err := s.sigs.Forget(o); err != nil {
		s.log.Debug("forget signature", zap.String("observer", o.ID()), zap.Error(err))
	}
	s.ui.Clear(o)
	s.log.Info("observer left", zap.String("observer", o.ID()))
	s.publish()
}

// Observer returns a joined observer.
func (s *Session) Observer(id string) (host.Observer, bool) {
	mb, ok := s.members[id]
	if !ok {
		return nil, false
	}
	return mb.o, true
}

func (s *Session) Observers() []string { return s.memberIDs() }

// Paused reports the observer's pause state.
func (s *Session) Paused(o host.Observer) bool { return s.pause.IsPaused(o) }

// OnBlockInteract pauses the observer's HUD when it opens a block with an inventory.
func (s *Session) OnBlockInteract(o host.Observer, b host.Block) {
	if _, ok := s.members[o.ID()]; !ok || b == nil {
		return
	}
	inv, err := b.Container()
	if err != nil {
		s.log.Debug("interact: container", zap.String("observer", o.ID()), zap.String("block", b.TypeID()), zap.Error(err))
		return
	}
	if inv == nil {
		return
	}
	s.pause.Pause(o)
}

// UpdateSettings stores the observer's settings and forces the next pulse to render.
func (s *Session) UpdateSettings(o host.Observer, set settings.Settings) error {
	if err := settings.Save(o.Properties(), set); err != nil {
		return fmt.Errorf("session: save settings: %w", err)
	}
	return s.sigs.Forget(o)
}

// Pulse runs one observation for every joined observer, in id order.
func (s *Session) Pulse() {
	start := time.Now()
	s.stats.pulses++
	for _, id := range s.memberIDs() {
		mb, ok := s.members[id]
		if !ok {
			continue
		}
		s.observe(mb)
	}
	s.prom.pulseSecs.Observe(time.Since(start).Seconds())
	s.publish()
}

func (s *Session) observe(mb *member) {
	o := mb.o
	defer func() {
		if r := recover(); r != nil {
			s.stats.faults++
			s.prom.faults.Inc()
			s.log.Error("observer pulse panicked", zap.String("observer", o.ID()), zap.Any("panic", r))
			s.ui.Clear(o)
		}
	}()

	if !o.Valid() {
		s.Leave(o)
		return
	}
	if s.pause.IsPaused(o) {
		return
	}
	set := settings.Load(o.Properties(), s.tune.Settings)
	if !set.Enabled {
		s.clearOnce(o)
		return
	}

	target := s.scanner.Scan(o, set)
	a := s.pipeline.Assess(o, target, set)
	if !a.HasTarget {
		s.clearOnce(o)
		return
	}
	if !s.sigs.Changed(o, a.Signature) {
		s.stats.skipped++
		s.prom.skipped.Inc()
		return
	}

	f := s.pipeline.Finalize(a.Context)
	if len(f.IconRequests) > 0 {
		s.borrow(mb, f.IconRequests)
	}
	s.ui.Present(o, f.Metadata, f.ExtendedActive)
	if err := s.sigs.Remember(o, a.Signature); err != nil {
		s.log.Warn("remember signature", zap.String("observer", o.ID()), zap.Error(err))
	}
	s.stats.renders++
	s.prom.renders.Inc()
}

// clearOnce clears the overlay the first time nothing is shown, then stays quiet.
func (s *Session) clearOnce(o host.Observer) {
	if !s.sigs.Changed(o, look.NoTargetID) {
		return
	}
	s.ui.Clear(o)
	if err := s.sigs.Remember(o, look.NoTargetID); err != nil {
		s.log.Warn("remember signature", zap.String("observer", o.ID()), zap.Error(err))
	}
	s.stats.clears++
	s.prom.clears.Inc()
}

// borrow applies reqs and schedules their restore. A borrow still outstanding is restored
// first so only one session exists per observer.
func (s *Session) borrow(mb *member, reqs []mirror.Request) {
	s.flushRestore(mb)
	if err := s.mirror.Apply(mb.o, reqs); err != nil {
		if errors.Is(err, mirror.ErrBackupTooLarge) {
			s.stats.rollbacks++
			s.prom.rollbacks.Inc()
		}
		s.log.Warn("icon borrow failed", zap.String("observer", mb.o.ID()), zap.Error(err))
		return
	}
	s.stats.applies++
	s.prom.applies.Inc()
	mb.restore = s.loop.After(s.tune.RestoreDelayTicks, func() {
		mb.restore = sched.Handle{}
		s.restoreNow(mb)
		s.publish()
	})
}

func (s *Session) flushRestore(mb *member) {
	if mb.restore.Live() {
		if err := mb.restore.Cancel(); err != nil {
			s.log.Debug("cancel restore", zap.String("observer", mb.o.ID()), zap.Error(err))
		}
		mb.restore = sched.Handle{}
	}
	if mirror.Pending(mb.o) {
		s.restoreNow(mb)
	}
}

func (s *Session) restoreNow(mb *member) {
	if err := s.mirror.Restore(mb.o); err != nil {
		s.log.Warn("restore failed", zap.String("observer", mb.o.ID()), zap.Error(err))
		return
	}
	s.stats.restores++
	s.prom.restores.Inc()
}

// pauseChanged makes the first pulse after a transition render from scratch.
func (s *Session) pauseChanged(id string, paused bool) {
	mb, ok := s.members[id]
	if !ok {
		return
	}
	if err := s.sigs.Forget(mb.o); err != nil {
		s.log.Debug("forget signature", zap.String("observer", id), zap.Error(err))
	}
	s.log.Debug("pause changed", zap.String("observer", id), zap.Bool("paused", paused))
	s.publish()
}

func (s *Session) memberIDs() []string {
	ids := make([]string, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Session) publish() {
	paused := 0
	for _, mb := range s.members {
		if s.pause.IsPaused(mb.o) {
			paused++
		}
	}
	s.prom.observers.Set(float64(len(s.members)))
	s.prom.paused.Set(float64(paused))
	s.metrics.Store(Metrics{
		Tick:      s.loop.CurrentTick(),
		Observers: len(s.members),
		Paused:    paused,
		Pulses:    s.stats.pulses,
		Renders:   s.stats.renders,
		Skipped:   s.stats.skipped,
		Clears:    s.stats.clears,
		Applies:   s.stats.applies,
		Rollbacks: s.stats.rollbacks,
		Restores:  s.stats.restores,
		Faults:    s.stats.faults,
	})
}
