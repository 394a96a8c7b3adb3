package worldtest

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"voxelhud.ai/internal/sim/catalogs"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/mirror"
	"voxelhud.ai/internal/sim/sandbox"
	"voxelhud.ai/internal/sim/sched"
	"voxelhud.ai/internal/sim/session"
	"voxelhud.ai/internal/sim/tuning"
)

// Harness is a small black-box test helper for driving a HUD session over a sandbox world:
// - Join()/Leave() register observers with the session
// - Pulse() runs one scan and commits the deferred overlay writes
// - Display records every overlay and clear per observer
// - Events collects every mirror apply/rollback/restore
//
// It only uses exported APIs so tests can live outside the session package.
type Harness struct {
	T       *testing.T
	Cats    *catalogs.Registry
	Tuning  tuning.Tuning
	World   *sandbox.World
	Display *sandbox.Display
	Loop    *sched.Loop
	Session *session.Session
	Events  *EventLog

	observers map[string]*sandbox.Observer
}

// ConfigDir is the repository's configs directory.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "configs")
}

func LoadCatalogs(t *testing.T) *catalogs.Registry {
	t.Helper()
	c, err := catalogs.Load(ConfigDir())
	if err != nil {
		t.Fatalf("catalogs.Load: %v", err)
	}
	return catalogs.NewRegistry(c)
}

func NewHarness(t *testing.T, tune tuning.Tuning) *Harness {
	t.Helper()
	return NewHarnessWithWorld(t, tune, sandbox.NewWorld(-64, 320))
}

// NewHarnessWithWorld is like NewHarness, but uses an already-built world, such as one from a
// scenario.
func NewHarnessWithWorld(t *testing.T, tune tuning.Tuning, w *sandbox.World) *Harness {
	t.Helper()
	h := &Harness{
		T:         t,
		Cats:      LoadCatalogs(t),
		Tuning:    tune,
		World:     w,
		Display:   sandbox.NewDisplay(),
		Loop:      sched.NewLoop(zap.NewNop()),
		Events:    &EventLog{},
		observers: map[string]*sandbox.Observer{},
	}
	s, err := session.New(session.Deps{
		World:    h.World,
		Display:  h.Display,
		Factory:  sandbox.Factory{},
		Catalogs: h.Cats,
		Tuning:   tune,
		Loop:     h.Loop,
		Logger:   zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)),
		Recorder: h.Events,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	h.Session = s
	return h
}

// Join creates an observer at pos looking along +Z and joins it.
func (h *Harness) Join(name string, pos mgl64.Vec3) *sandbox.Observer {
	h.T.Helper()
	o := sandbox.NewObserver(name)
	o.Pos = pos
	h.JoinObserver(o)
	return o
}

func (h *Harness) JoinObserver(o *sandbox.Observer) {
	h.observers[o.ID()] = o
	h.Session.Join(o)
}

func (h *Harness) Leave(o *sandbox.Observer) {
	o.Left = true
	h.Session.Leave(o)
	delete(h.observers, o.ID())
}

// Pulse scans every observer and then advances one tick so deferred overlay writes land.
func (h *Harness) Pulse() {
	h.Session.Pulse()
	h.Loop.Advance(1)
}

func (h *Harness) Advance(ticks int) { h.Loop.Advance(ticks) }

func (h *Harness) Place(b *sandbox.Block) *sandbox.Block {
	h.World.PlaceBlock(b)
	return b
}

func (h *Harness) Spawn(e *sandbox.Entity) *sandbox.Entity {
	h.World.Spawn(e)
	return e
}

// Interact opens the block at pos.
func (h *Harness) Interact(o *sandbox.Observer, pos [3]int) {
	h.T.Helper()
	b := h.World.BlockAt(pos)
	if b == nil {
		h.T.Fatalf("no block at %v", pos)
	}
	h.Session.OnBlockInteract(o, b)
}

// LastOverlay fails the test if nothing was shown to o.
func (h *Harness) LastOverlay(o host.Observer) host.Overlay {
	h.T.Helper()
	ov, ok := h.Display.Last(o.ID())
	if !ok {
		h.T.Fatalf("no overlay shown to %s", o.Name())
	}
	return ov
}

func (h *Harness) Shown(o host.Observer) int { return len(h.Display.Shown(o.ID())) }

// Item returns the stored stack of o's slot, nil if empty.
func (h *Harness) Item(o *sandbox.Observer, slot int) host.Item { return o.Inv.Peek(slot) }

// EventLog is a mirror.Recorder that keeps everything in memory.
type EventLog struct {
	Events []mirror.Event
}

func (l *EventLog) Record(e mirror.Event) { l.Events = append(l.Events, e) }

// Kinds lists the recorded event kinds in order.
func (l *EventLog) Kinds() []string {
	out := make([]string, 0, len(l.Events))
	for _, e := range l.Events {
		out = append(out, e.Kind)
	}
	return out
}
